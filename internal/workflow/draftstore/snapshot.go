// internal/workflow/draftstore/snapshot.go
package draftstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"admitbridge/internal/common/logger"
	"admitbridge/internal/models"

	"github.com/redis/go-redis/v9"
)

const (
	snapshotKeyPrefix = "draft:snapshot:"
	legacyKeyPrefix   = "draft:legacy:"
)

// SnapshotStore is the fallback persistence tier: session snapshots written
// when no backend identity exists or a backend save fails, and the legacy
// blobs older clients persisted before the draft table existed. The backend
// draft row always wins over anything stored here.
type SnapshotStore struct {
	client *redis.Client
	ttl    time.Duration
	logger logger.Logger
}

func NewSnapshotStore(client *redis.Client, ttl time.Duration, log logger.Logger) *SnapshotStore {
	return &SnapshotStore{
		client: client,
		ttl:    ttl,
		logger: log.WithFields(map[string]interface{}{"component": "snapshotstore"}),
	}
}

// Save writes the fallback snapshot for the student.
func (s *SnapshotStore) Save(ctx context.Context, studentID string, snap models.DraftSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := s.client.Set(ctx, snapshotKeyPrefix+studentID, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// Load returns the snapshot, or nil when absent.
func (s *SnapshotStore) Load(ctx context.Context, studentID string) (*models.DraftSnapshot, error) {
	data, err := s.client.Get(ctx, snapshotKeyPrefix+studentID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	var snap models.DraftSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &snap, nil
}

// Delete removes the snapshot; deleting an absent one is not an error.
func (s *SnapshotStore) Delete(ctx context.Context, studentID string) error {
	return s.client.Del(ctx, snapshotKeyPrefix+studentID).Err()
}

// LoadLegacyBlob returns the raw legacy draft blob for the student, or nil
// when none exists. The blob is returned unparsed: the migrator owns the
// decision of what malformed content means.
func (s *SnapshotStore) LoadLegacyBlob(ctx context.Context, studentID string) ([]byte, error) {
	data, err := s.client.Get(ctx, legacyKeyPrefix+studentID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load legacy blob: %w", err)
	}
	return data, nil
}

// DeleteLegacyBlob removes the legacy blob after a successful migration.
func (s *SnapshotStore) DeleteLegacyBlob(ctx context.Context, studentID string) error {
	return s.client.Del(ctx, legacyKeyPrefix+studentID).Err()
}

// SaveLegacyBlob exists for tests and for backfilling blobs captured from old
// clients.
func (s *SnapshotStore) SaveLegacyBlob(ctx context.Context, studentID string, blob []byte) error {
	return s.client.Set(ctx, legacyKeyPrefix+studentID, blob, s.ttl).Err()
}
