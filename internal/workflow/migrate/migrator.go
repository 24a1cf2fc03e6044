// internal/workflow/migrate/migrator.go
package migrate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"

	"admitbridge/internal/common/logger"
	"admitbridge/internal/models"
	"admitbridge/internal/workflow/draftstore"
	"admitbridge/internal/workflow/formschema"
	"admitbridge/internal/workflow/wizard"
)

var ErrMigrationUpsertFailed = errors.New("MIGRATION_UPSERT_FAILED")

// legacyStepKeys are the key names older clients used for the wizard step.
// The first one holding a valid step wins.
var legacyStepKeys = []string{"currentStep", "current_step", "lastStep", "last_step", "step"}

// Migrator reconciles a draft persisted only in the legacy fallback tier into
// the backend draft store. It runs at most once per session regardless of how
// many times dependency changes re-trigger it.
type Migrator struct {
	store     *draftstore.Store
	snapshots *draftstore.SnapshotStore
	logger    logger.Logger
	ran       atomic.Bool
}

func NewMigrator(store *draftstore.Store, snapshots *draftstore.SnapshotStore, log logger.Logger) *Migrator {
	return &Migrator{
		store:     store,
		snapshots: snapshots,
		logger:    log.WithFields(map[string]interface{}{"component": "migrate"}),
	}
}

// Result reports what the migration pass did.
type Result struct {
	Migrated bool
	Form     *models.ApplicationForm
	LastStep int
}

// Run performs the one-shot migration check. The caller must pass the draft
// already fetched for this session so the check never races the initial load:
// server state always wins over an orphaned legacy blob.
func (m *Migrator) Run(ctx context.Context, id models.Identity, serverDraft *models.Draft, currentForm *models.ApplicationForm) (*Result, error) {
	if !id.HasStudent() || id.TenantID == "" {
		return &Result{}, nil
	}
	if !m.ran.CompareAndSwap(false, true) {
		return &Result{}, nil
	}

	if serverDraft != nil {
		m.logger.Debug("server draft exists, skipping legacy migration", map[string]interface{}{
			"studentId": id.UserID,
		})
		return &Result{}, nil
	}

	blob, err := m.snapshots.LoadLegacyBlob(ctx, id.UserID)
	if err != nil {
		return nil, fmt.Errorf("load legacy draft: %w", err)
	}
	if blob == nil {
		return &Result{}, nil
	}

	var legacy map[string]interface{}
	if err := json.Unmarshal(blob, &legacy); err != nil {
		// An unparseable blob can never migrate; discard it so the check
		// does not repeat forever.
		m.logger.Warn("discarding unparseable legacy draft", map[string]interface{}{
			"studentId": id.UserID,
			"error":     err.Error(),
		})
		if delErr := m.snapshots.DeleteLegacyBlob(ctx, id.UserID); delErr != nil {
			m.logger.Warn("failed to delete unparseable legacy draft", map[string]interface{}{
				"error": delErr.Error(),
			})
		}
		return &Result{}, nil
	}

	lastStep := inferStep(legacy)
	merged := formschema.MergeLegacyFormData(currentForm, legacy)

	if _, err := m.store.Upsert(ctx, draftstore.UpsertPayload{
		Identity: id,
		Form:     merged,
		LastStep: lastStep,
	}); err != nil {
		// Leave the blob in place so the user does not lose data; the
		// failure surfaces as an autosave error.
		return nil, fmt.Errorf("%w: %v", ErrMigrationUpsertFailed, err)
	}

	if err := m.snapshots.DeleteLegacyBlob(ctx, id.UserID); err != nil {
		m.logger.Warn("migrated draft but failed to delete legacy blob", map[string]interface{}{
			"studentId": id.UserID,
			"error":     err.Error(),
		})
	}

	m.logger.Info("legacy draft migrated", map[string]interface{}{
		"studentId": id.UserID,
		"lastStep":  lastStep,
	})

	return &Result{Migrated: true, Form: merged, LastStep: lastStep}, nil
}

// inferStep picks the first legacy key holding an integer in [1, StepCount].
func inferStep(legacy map[string]interface{}) int {
	for _, key := range legacyStepKeys {
		if raw, ok := legacy[key]; ok {
			if step, ok := stepValue(raw); ok {
				return step
			}
		}
	}
	return 1
}

func stepValue(raw interface{}) (int, bool) {
	var step int
	switch n := raw.(type) {
	case float64:
		step = int(n)
	case int:
		step = n
	default:
		return 0, false
	}
	if step >= 1 && step <= wizard.StepCount {
		return step, true
	}
	return 0, false
}
