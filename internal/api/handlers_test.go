// internal/api/handlers_test.go
package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"admitbridge/internal/common/auth"
	"admitbridge/internal/common/config"
	"admitbridge/internal/common/logger"
	"admitbridge/internal/common/observability"
	"admitbridge/internal/common/storage"
	"admitbridge/internal/models"
	"admitbridge/internal/workflow/autosave"
	"admitbridge/internal/workflow/docreuse"
	"admitbridge/internal/workflow/draftstore"
	"admitbridge/internal/workflow/notify"
	"admitbridge/internal/workflow/submit"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testStudentID = "7f9c24e5-2b31-4bde-a0a9-0a6ad0152cff"
	testTenantID  = "b3f1d7a2-5c4e-4f6b-9a8d-1e2f3a4b5c6d"
	testProgramID = "c1d2e3f4-a5b6-47c8-9d0e-f1a2b3c4d5e6"
	testDraftID   = "a1b2c3d4-e5f6-47a8-9b0c-d1e2f3a4b5c6"
)

var draftColumns = []string{
	"id", "student_id", "tenant_id", "program_id", "form_data", "last_step", "created_at", "updated_at",
}

type apiFixture struct {
	router  http.Handler
	mock    sqlmock.Sqlmock
	mr      *miniredis.Miniredis
	objects *storage.MemStore
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	log := logger.NewTestLogger(t)
	obs := &observability.Observability{}
	buckets := config.StorageConfig{
		StudentBucket:     "student-documents",
		ApplicationBucket: "application-documents",
	}

	drafts := draftstore.NewStore(db, log)
	snapshots := draftstore.NewSnapshotStore(client, time.Hour, log)
	objects := storage.NewMemStore()
	saver := autosave.NewController(drafts, snapshots, obs, log)
	orchestrator := submit.NewOrchestrator(
		db, drafts, snapshots, objects,
		docreuse.NewResolver(db, objects, buckets, log),
		noopNotifier{}, buckets, log, obs,
	)

	h := NewHandler(db, client, drafts, snapshots, saver, orchestrator, log, 0)
	resolver := auth.StaticResolver{Identity: models.Identity{
		UserID:   testStudentID,
		TenantID: testTenantID,
		Role:     "student",
		FullName: "Ada Lovelace",
		Email:    "ada@example.com",
	}}

	return &apiFixture{
		router:  NewRouter(h, resolver, log),
		mock:    mock,
		mr:      mr,
		objects: objects,
	}
}

type noopNotifier struct{}

func (noopNotifier) NotifyCounselor(ctx context.Context, cn notify.CounselorNotification) error {
	return nil
}

func (f *apiFixture) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	req.Header.Set("Authorization", "Bearer test-token")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func formJSON(t *testing.T) []byte {
	t.Helper()
	form := models.ApplicationForm{
		PersonalInfo: models.PersonalInfo{FullName: "Ada Lovelace", Email: "ada@example.com"},
		ProgramSelection: models.ProgramSelection{
			ProgramID:   testProgramID,
			IntakeYear:  2026,
			IntakeMonth: 9,
		},
	}
	data, err := json.Marshal(form)
	require.NoError(t, err)
	return data
}

func snapshotJSON(t *testing.T, fullName string, step int) string {
	t.Helper()
	form := models.NewApplicationForm(models.Identity{})
	form.PersonalInfo.FullName = fullName
	data, err := json.Marshal(models.DraftSnapshot{
		Form:        form,
		CurrentStep: step,
		SavedAt:     time.Now().UTC(),
	})
	require.NoError(t, err)
	return string(data)
}

// ==========================
// DRAFT ENDPOINTS
// ==========================

func TestGetDraft_ExistingDraft(t *testing.T) {
	f := newAPIFixture(t)

	now := time.Now().UTC()
	f.mock.ExpectQuery("FROM application_drafts").
		WillReturnRows(sqlmock.NewRows(draftColumns).
			AddRow(testDraftID, testStudentID, testTenantID, testProgramID, formJSON(t), 9, now, now))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/draft", nil)
	rec := f.do(t, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp draftResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.HasDraft)
	assert.False(t, resp.Migrated)
	// out-of-range persisted steps are clamped to the wizard bounds
	assert.Equal(t, 5, resp.CurrentStep)
	assert.Equal(t, testProgramID, resp.Form.ProgramSelection.ProgramID)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestGetDraft_EmptyStateIsPrefilled(t *testing.T) {
	f := newAPIFixture(t)

	f.mock.ExpectQuery("FROM application_drafts").
		WillReturnError(sql.ErrNoRows)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/draft", nil)
	rec := f.do(t, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp draftResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.HasDraft)
	assert.Equal(t, 1, resp.CurrentStep)
	assert.Equal(t, "Ada Lovelace", resp.Form.PersonalInfo.FullName)
	assert.Equal(t, "ada@example.com", resp.Form.PersonalInfo.Email)
}

func TestGetDraft_MigratesLegacyBlob(t *testing.T) {
	f := newAPIFixture(t)

	f.mr.Set("draft:legacy:"+testStudentID,
		`{"programSelection":{"programId":"abc"},"currentStep":2}`)

	f.mock.ExpectQuery("FROM application_drafts").
		WillReturnError(sql.ErrNoRows)
	// migration upserts the merged draft; "abc" is not a UUID so program_id is NULL
	f.mock.ExpectQuery("INSERT INTO application_drafts").
		WithArgs(sqlmock.AnyArg(), testStudentID, testTenantID, sql.NullString{}, sqlmock.AnyArg(), 2, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).
			AddRow(testDraftID, time.Now().UTC()))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/draft", nil)
	rec := f.do(t, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp draftResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Migrated)
	assert.True(t, resp.HasDraft)
	assert.Equal(t, 2, resp.CurrentStep)

	// the legacy blob is consumed by a successful migration
	assert.False(t, f.mr.Exists("draft:legacy:"+testStudentID))
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestGetDraft_RecoversSnapshotTier(t *testing.T) {
	// Scenario: an implicit-trigger save fell back to the local snapshot and
	// the student returns with no server draft; hydrate must recover the
	// snapshot instead of handing back an empty form.
	f := newAPIFixture(t)

	f.mr.Set("draft:snapshot:"+testStudentID, snapshotJSON(t, "Saved Locally", 3))

	f.mock.ExpectQuery("FROM application_drafts").
		WillReturnError(sql.ErrNoRows)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/draft", nil)
	rec := f.do(t, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp draftResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.HasDraft)
	assert.False(t, resp.Migrated)
	assert.Equal(t, 3, resp.CurrentStep)
	assert.Equal(t, "Saved Locally", resp.Form.PersonalInfo.FullName)
}

func TestGetDraft_ServerDraftWinsOverSnapshot(t *testing.T) {
	f := newAPIFixture(t)

	f.mr.Set("draft:snapshot:"+testStudentID, snapshotJSON(t, "Stale Local Copy", 2))

	now := time.Now().UTC()
	f.mock.ExpectQuery("FROM application_drafts").
		WillReturnRows(sqlmock.NewRows(draftColumns).
			AddRow(testDraftID, testStudentID, testTenantID, testProgramID, formJSON(t), 4, now, now))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/draft", nil)
	rec := f.do(t, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp draftResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 4, resp.CurrentStep)
	assert.Equal(t, "Ada Lovelace", resp.Form.PersonalInfo.FullName)
}

func TestGetDraft_AdoptsAnonymousSnapshotAfterSignIn(t *testing.T) {
	f := newAPIFixture(t)

	f.mr.Set("draft:snapshot:anonymous:"+testTenantID, snapshotJSON(t, "Signed Out", 2))

	f.mock.ExpectQuery("FROM application_drafts").
		WillReturnError(sql.ErrNoRows)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/draft", nil)
	rec := f.do(t, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp draftResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.HasDraft)
	assert.Equal(t, 2, resp.CurrentStep)
	assert.Equal(t, "Signed Out", resp.Form.PersonalInfo.FullName)

	// the pre-sign-in snapshot is re-keyed under the student
	assert.True(t, f.mr.Exists("draft:snapshot:"+testStudentID))
	assert.False(t, f.mr.Exists("draft:snapshot:anonymous:"+testTenantID))
}

func TestGetDraft_MigrationFailureSurfacesAutoSaveError(t *testing.T) {
	f := newAPIFixture(t)

	f.mr.Set("draft:legacy:"+testStudentID,
		`{"personalInfo":{"fullName":"Old Client"},"currentStep":2}`)

	f.mock.ExpectQuery("FROM application_drafts").
		WillReturnError(sql.ErrNoRows)
	f.mock.ExpectQuery("INSERT INTO application_drafts").
		WillReturnError(sql.ErrConnDone)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/draft", nil)
	rec := f.do(t, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp draftResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Migrated)
	assert.NotEmpty(t, resp.AutoSaveError, "client must see the failed migration")

	// the blob survives for a later session
	assert.True(t, f.mr.Exists("draft:legacy:"+testStudentID))
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestSaveDraft_Manual(t *testing.T) {
	f := newAPIFixture(t)

	f.mock.ExpectQuery("INSERT INTO application_drafts").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).
			AddRow(testDraftID, time.Now().UTC()))

	body := `{"form":` + string(formJSON(t)) + `,"currentStep":3}`
	req := httptest.NewRequest(http.MethodPut, "/api/v1/draft?trigger=manual", strings.NewReader(body))
	rec := f.do(t, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp saveDraftResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "backend", resp.Tier)
	assert.False(t, resp.SavedAt.IsZero())
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestSaveDraft_UnknownTrigger(t *testing.T) {
	f := newAPIFixture(t)

	body := `{"form":` + string(formJSON(t)) + `,"currentStep":1}`
	req := httptest.NewRequest(http.MethodPut, "/api/v1/draft?trigger=typing", strings.NewReader(body))
	rec := f.do(t, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSaveDraft_MissingForm(t *testing.T) {
	f := newAPIFixture(t)

	req := httptest.NewRequest(http.MethodPut, "/api/v1/draft", strings.NewReader(`{"currentStep":1}`))
	rec := f.do(t, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteDraft(t *testing.T) {
	f := newAPIFixture(t)

	f.mr.Set("draft:snapshot:"+testStudentID, `{}`)
	f.mock.ExpectExec("DELETE FROM application_drafts").
		WillReturnResult(sqlmock.NewResult(0, 1))

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/draft", nil)
	rec := f.do(t, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.False(t, f.mr.Exists("draft:snapshot:"+testStudentID))
}

func TestDraft_RequiresBearerToken(t *testing.T) {
	f := newAPIFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/draft", nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

// ==========================
// SUBMISSION ENDPOINT
// ==========================

func multipartBody(t *testing.T, withTranscript bool, form []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	require.NoError(t, mw.WriteField("payload", `{"form":`+string(form)+`}`))
	if withTranscript {
		fw, err := mw.CreateFormFile("transcript", "transcript.pdf")
		require.NoError(t, err)
		_, err = fw.Write([]byte("%PDF-1.4 transcript"))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestSubmitApplication_Success(t *testing.T) {
	f := newAPIFixture(t)

	f.mock.ExpectExec("INSERT INTO applications").
		WillReturnResult(sqlmock.NewResult(1, 1))
	f.mock.ExpectQuery("FROM student_documents").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "student_id", "document_type", "file_name", "storage_path",
			"mime_type", "file_size", "status", "verified_at", "created_at",
		}))
	f.mock.ExpectExec("INSERT INTO application_documents").
		WillReturnResult(sqlmock.NewResult(1, 1))
	f.mock.ExpectQuery("FROM programs").
		WillReturnError(sql.ErrNoRows)
	f.mock.ExpectQuery("FROM students").
		WillReturnError(sql.ErrNoRows)
	f.mock.ExpectExec("INSERT INTO audit_log").
		WillReturnResult(sqlmock.NewResult(1, 1))
	f.mock.ExpectExec("DELETE FROM application_drafts").
		WillReturnResult(sqlmock.NewResult(0, 1))

	body, contentType := multipartBody(t, true, formJSON(t))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/applications", body)
	req.Header.Set("Content-Type", contentType)
	rec := f.do(t, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var out submit.Output
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Len(t, out.Reference, 8)
	require.Len(t, out.Documents, 1)
	assert.Equal(t, models.DocTranscript, out.Documents[0].DocumentType)
	assert.True(t, f.objects.Has("application-documents", out.Documents[0].StoragePath))
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestSubmitApplication_InvalidProgramID(t *testing.T) {
	f := newAPIFixture(t)

	form := models.ApplicationForm{
		ProgramSelection: models.ProgramSelection{ProgramID: "demo-program-1", IntakeYear: 2026},
	}
	data, err := json.Marshal(form)
	require.NoError(t, err)

	body, contentType := multipartBody(t, false, data)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/applications", body)
	req.Header.Set("Content-Type", contentType)
	rec := f.do(t, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "INVALID_PROGRAM_ID", resp.Error.Code)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestSubmitApplication_MissingPayload(t *testing.T) {
	f := newAPIFixture(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/applications", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := f.do(t, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// ==========================
// HEALTH
// ==========================

func TestHealth(t *testing.T) {
	f := newAPIFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}
