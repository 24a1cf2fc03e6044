// internal/workflow/draftstore/store.go
package draftstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"admitbridge/internal/common/logger"
	"admitbridge/internal/common/validation"
	"admitbridge/internal/models"

	"github.com/google/uuid"
)

var (
	ErrDraftSaveFailed  = errors.New("DRAFT_SAVE_FAILED")
	ErrDraftFetchFailed = errors.New("DRAFT_FETCH_FAILED")
)

// Store persists the single versioned draft row per student. Uniqueness is
// enforced by the student_id constraint; concurrent saves collapse into the
// backend's upsert semantics.
type Store struct {
	db     *sql.DB
	logger logger.Logger
}

func NewStore(db *sql.DB, log logger.Logger) *Store {
	return &Store{
		db:     db,
		logger: log.WithFields(map[string]interface{}{"component": "draftstore"}),
	}
}

// UpsertPayload is one draft save. Document slots never travel with it.
type UpsertPayload struct {
	Identity models.Identity
	Form     *models.ApplicationForm
	LastStep int
}

// Upsert writes the draft row, replacing any existing row for the student.
// A program id that is not a syntactically valid UUID is stored as NULL so a
// draft save never fails merely because the user works against demo catalog
// data. Backend errors are returned to the caller, not swallowed.
func (s *Store) Upsert(ctx context.Context, p UpsertPayload) (*models.Draft, error) {
	formJSON, err := json.Marshal(p.Form)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal form: %v", ErrDraftSaveFailed, err)
	}

	programID := coerceProgramID(p.Form)

	now := time.Now().UTC()
	draft := &models.Draft{
		StudentID: p.Identity.UserID,
		TenantID:  p.Identity.TenantID,
		Form:      p.Form,
		LastStep:  p.LastStep,
		UpdatedAt: now,
	}

	err = s.db.QueryRowContext(ctx, `
		INSERT INTO application_drafts (
			id, student_id, tenant_id, program_id, form_data, last_step, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		ON CONFLICT (student_id) DO UPDATE SET
			program_id = EXCLUDED.program_id,
			form_data  = EXCLUDED.form_data,
			last_step  = EXCLUDED.last_step,
			updated_at = EXCLUDED.updated_at
		RETURNING id, created_at`,
		uuid.New().String(),
		p.Identity.UserID,
		p.Identity.TenantID,
		programID,
		formJSON,
		p.LastStep,
		now,
	).Scan(&draft.ID, &draft.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDraftSaveFailed, err)
	}

	if programID.Valid {
		draft.ProgramID = &programID.String
	}

	s.logger.Debug("draft upserted", map[string]interface{}{
		"studentId": p.Identity.UserID,
		"lastStep":  p.LastStep,
	})
	return draft, nil
}

// Fetch returns the student's draft, or nil (not an error) when absent.
func (s *Store) Fetch(ctx context.Context, studentID string) (*models.Draft, error) {
	var (
		draft     models.Draft
		programID sql.NullString
		formJSON  []byte
	)

	err := s.db.QueryRowContext(ctx, `
		SELECT id, student_id, tenant_id, program_id, form_data, last_step, created_at, updated_at
		FROM application_drafts
		WHERE student_id = $1`,
		studentID,
	).Scan(&draft.ID, &draft.StudentID, &draft.TenantID, &programID,
		&formJSON, &draft.LastStep, &draft.CreatedAt, &draft.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDraftFetchFailed, err)
	}

	if programID.Valid {
		draft.ProgramID = &programID.String
	}

	var form models.ApplicationForm
	if err := json.Unmarshal(formJSON, &form); err != nil {
		return nil, fmt.Errorf("%w: decode form data: %v", ErrDraftFetchFailed, err)
	}
	draft.Form = &form

	return &draft, nil
}

// Delete removes the student's draft row. Deleting an absent draft is not an
// error.
func (s *Store) Delete(ctx context.Context, studentID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM application_drafts WHERE student_id = $1`, studentID)
	if err != nil {
		return fmt.Errorf("delete draft: %w", err)
	}
	return nil
}

func coerceProgramID(form *models.ApplicationForm) sql.NullString {
	if form == nil {
		return sql.NullString{}
	}
	if id := form.ProgramSelection.ProgramID; validation.IsUUID(id) {
		return sql.NullString{String: id, Valid: true}
	}
	return sql.NullString{}
}
