// internal/workflow/draftstore/store_test.go
package draftstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"admitbridge/internal/common/logger"
	"admitbridge/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
)

// ==========================
// Test Helper Functions
// ==========================

const (
	testStudentID = "7f9c24e5-2b31-4bde-a0a9-0a6ad0152cff"
	testTenantID  = "b3f1d7a2-5c4e-4f6b-9a8d-1e2f3a4b5c6d"
	testProgramID = "c1d2e3f4-a5b6-47c8-9d0e-f1a2b3c4d5e6"
)

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func testIdentity() models.Identity {
	return models.Identity{
		UserID:   testStudentID,
		TenantID: testTenantID,
		Role:     "student",
	}
}

func testForm(programID string) *models.ApplicationForm {
	form := models.NewApplicationForm(testIdentity())
	form.PersonalInfo.FullName = "Jane Doe"
	form.ProgramSelection.ProgramID = programID
	form.ProgramSelection.IntakeYear = 2025
	form.ProgramSelection.IntakeMonth = 9
	return form
}

// ==========================
// Upsert Tests
// ==========================

func TestStore_Upsert_ValidProgramID(t *testing.T) {
	db, mock := setupMockDB(t)

	mock.ExpectQuery(`INSERT INTO application_drafts`).
		WithArgs(
			sqlmock.AnyArg(), // draft id
			testStudentID,
			testTenantID,
			sql.NullString{String: testProgramID, Valid: true},
			sqlmock.AnyArg(), // form JSON
			3,
			sqlmock.AnyArg(), // now
		).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).
			AddRow("draft-row-id", time.Now().UTC()))

	store := NewStore(db, logger.NewTestLogger(t))
	draft, err := store.Upsert(context.Background(), UpsertPayload{
		Identity: testIdentity(),
		Form:     testForm(testProgramID),
		LastStep: 3,
	})

	assert.NoError(t, err)
	assert.Equal(t, "draft-row-id", draft.ID)
	assert.Equal(t, 3, draft.LastStep)
	assert.NotNil(t, draft.ProgramID)
	assert.Equal(t, testProgramID, *draft.ProgramID)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Upsert_NonUUIDProgramCoercedToNull(t *testing.T) {
	db, mock := setupMockDB(t)

	mock.ExpectQuery(`INSERT INTO application_drafts`).
		WithArgs(
			sqlmock.AnyArg(),
			testStudentID,
			testTenantID,
			sql.NullString{}, // demo program id stored as NULL
			sqlmock.AnyArg(),
			2,
			sqlmock.AnyArg(),
		).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).
			AddRow("draft-row-id", time.Now().UTC()))

	store := NewStore(db, logger.NewTestLogger(t))
	draft, err := store.Upsert(context.Background(), UpsertPayload{
		Identity: testIdentity(),
		Form:     testForm("demo-program-1"),
		LastStep: 2,
	})

	assert.NoError(t, err)
	assert.Nil(t, draft.ProgramID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Upsert_BackendErrorSurfaced(t *testing.T) {
	db, mock := setupMockDB(t)

	mock.ExpectQuery(`INSERT INTO application_drafts`).
		WillReturnError(sql.ErrConnDone)

	store := NewStore(db, logger.NewTestLogger(t))
	draft, err := store.Upsert(context.Background(), UpsertPayload{
		Identity: testIdentity(),
		Form:     testForm(testProgramID),
		LastStep: 1,
	})

	assert.Error(t, err)
	assert.ErrorIs(t, err, ErrDraftSaveFailed)
	assert.Nil(t, draft)
}

func TestStore_Upsert_SecondSaveReplacesFirst(t *testing.T) {
	// Two sequential upserts for the same student hit the same row; the
	// backend constraint guarantees at most one draft per student.
	db, mock := setupMockDB(t)

	for step := 1; step <= 2; step++ {
		mock.ExpectQuery(`INSERT INTO application_drafts`).
			WithArgs(
				sqlmock.AnyArg(),
				testStudentID,
				testTenantID,
				sqlmock.AnyArg(),
				sqlmock.AnyArg(),
				step,
				sqlmock.AnyArg(),
			).
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).
				AddRow("same-row-id", time.Now().UTC()))
	}

	store := NewStore(db, logger.NewTestLogger(t))

	first, err := store.Upsert(context.Background(), UpsertPayload{
		Identity: testIdentity(), Form: testForm(testProgramID), LastStep: 1,
	})
	assert.NoError(t, err)

	second, err := store.Upsert(context.Background(), UpsertPayload{
		Identity: testIdentity(), Form: testForm(testProgramID), LastStep: 2,
	})
	assert.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 2, second.LastStep)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ==========================
// Fetch / Delete Tests
// ==========================

func TestStore_Fetch_ReturnsDraft(t *testing.T) {
	db, mock := setupMockDB(t)

	formJSON, _ := json.Marshal(testForm(testProgramID))
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT id, student_id, tenant_id, program_id, form_data, last_step`).
		WithArgs(testStudentID).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "student_id", "tenant_id", "program_id", "form_data", "last_step", "created_at", "updated_at",
		}).AddRow("draft-row-id", testStudentID, testTenantID, testProgramID, formJSON, 4, now, now))

	store := NewStore(db, logger.NewTestLogger(t))
	draft, err := store.Fetch(context.Background(), testStudentID)

	assert.NoError(t, err)
	assert.NotNil(t, draft)
	assert.Equal(t, 4, draft.LastStep)
	assert.Equal(t, "Jane Doe", draft.Form.PersonalInfo.FullName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Fetch_AbsentIsNilNotError(t *testing.T) {
	db, mock := setupMockDB(t)

	mock.ExpectQuery(`SELECT id, student_id, tenant_id, program_id, form_data, last_step`).
		WithArgs(testStudentID).
		WillReturnError(sql.ErrNoRows)

	store := NewStore(db, logger.NewTestLogger(t))
	draft, err := store.Fetch(context.Background(), testStudentID)

	assert.NoError(t, err)
	assert.Nil(t, draft)
}

func TestStore_Delete(t *testing.T) {
	db, mock := setupMockDB(t)

	mock.ExpectExec(`DELETE FROM application_drafts`).
		WithArgs(testStudentID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	store := NewStore(db, logger.NewTestLogger(t))
	assert.NoError(t, store.Delete(context.Background(), testStudentID))
	assert.NoError(t, mock.ExpectationsWereMet())
}
