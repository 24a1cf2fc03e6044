// internal/workflow/docreuse/resolver.go
package docreuse

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"admitbridge/internal/common/config"
	"admitbridge/internal/common/logger"
	"admitbridge/internal/common/storage"
	"admitbridge/internal/models"
	"admitbridge/internal/workflow/formschema"

	"github.com/google/uuid"
)

// Resolver fills application document slots from previously verified student
// documents. It copies bytes, never shares references: later mutation or
// deletion of the source document cannot affect a submitted application.
type Resolver struct {
	db      *sql.DB
	store   storage.ObjectStore
	buckets config.StorageConfig
	logger  logger.Logger
}

func NewResolver(db *sql.DB, store storage.ObjectStore, buckets config.StorageConfig, log logger.Logger) *Resolver {
	return &Resolver{
		db:      db,
		store:   store,
		buckets: buckets,
		logger:  log.WithFields(map[string]interface{}{"component": "docreuse"}),
	}
}

// LoadVerifiedDocuments fetches the student's verified documents once per
// submission. Ordering encodes the tie-break rule: most recently verified
// first, then newest.
func (r *Resolver) LoadVerifiedDocuments(ctx context.Context, studentID string) ([]models.StudentDocument, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, student_id, document_type, file_name, storage_path, mime_type, file_size, status, verified_at, created_at
		FROM student_documents
		WHERE student_id = $1 AND status = 'verified'
		ORDER BY verified_at DESC NULLS LAST, created_at DESC`,
		studentID,
	)
	if err != nil {
		return nil, fmt.Errorf("load student documents: %w", err)
	}
	defer rows.Close()

	var docs []models.StudentDocument
	for rows.Next() {
		var doc models.StudentDocument
		if err := rows.Scan(&doc.ID, &doc.StudentID, &doc.DocumentType, &doc.FileName,
			&doc.StoragePath, &doc.MimeType, &doc.FileSize, &doc.Status,
			&doc.VerifiedAt, &doc.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan student document: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// Resolve copies the best compatible student document into the application's
// storage area and records an ApplicationDocument row. A slot with no
// compatible match, or whose source cannot be downloaded, is left empty; that
// is not an error. Callers must only invoke Resolve for slots without a fresh
// upload — re-running a populated slot would create a duplicate row.
func (r *Resolver) Resolve(ctx context.Context, id models.Identity, applicationID string, slot models.DocumentType, docs []models.StudentDocument) *models.ApplicationDocument {
	source := firstCompatible(slot, docs)
	if source == nil {
		r.logger.Debug("no compatible document for slot", map[string]interface{}{
			"slot":          string(slot),
			"applicationId": applicationID,
		})
		return nil
	}

	data, err := r.store.Download(ctx, r.buckets.StudentBucket, source.StoragePath)
	if err != nil {
		r.logger.Warn("reuse source download failed, leaving slot empty", map[string]interface{}{
			"slot":       string(slot),
			"documentId": source.ID,
			"error":      err.Error(),
		})
		return nil
	}

	destPath := fmt.Sprintf("%s/%s_%s", applicationID, slot, source.FileName)
	if err := r.store.Upload(ctx, r.buckets.ApplicationBucket, destPath, data, source.MimeType); err != nil {
		r.logger.Warn("reuse copy upload failed, leaving slot empty", map[string]interface{}{
			"slot":  string(slot),
			"error": err.Error(),
		})
		return nil
	}

	doc := &models.ApplicationDocument{
		ID:            uuid.New().String(),
		ApplicationID: applicationID,
		TenantID:      id.TenantID,
		DocumentType:  slot,
		StoragePath:   destPath,
		FileSize:      int64(len(data)),
		MimeType:      source.MimeType,
		CreatedAt:     time.Now().UTC(),
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO application_documents (id, application_id, tenant_id, document_type, storage_path, file_size, mime_type, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		doc.ID, doc.ApplicationID, doc.TenantID, string(doc.DocumentType),
		doc.StoragePath, doc.FileSize, doc.MimeType, doc.CreatedAt,
	)
	if err != nil {
		r.logger.Warn("reuse document row insert failed", map[string]interface{}{
			"slot":  string(slot),
			"error": err.Error(),
		})
		return nil
	}

	r.logger.Info("document reused", map[string]interface{}{
		"slot":          string(slot),
		"applicationId": applicationID,
		"sourceId":      source.ID,
	})
	return doc
}

// firstCompatible returns the first document whose recorded type is in the
// slot's compatibility list. The query ordering makes this the most recently
// verified match.
func firstCompatible(slot models.DocumentType, docs []models.StudentDocument) *models.StudentDocument {
	accepted := formschema.SlotCompatibility[slot]
	for i := range docs {
		for _, t := range accepted {
			if docs[i].DocumentType == t {
				return &docs[i]
			}
		}
	}
	return nil
}
