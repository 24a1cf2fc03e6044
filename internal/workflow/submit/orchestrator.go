// internal/workflow/submit/orchestrator.go
package submit

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"admitbridge/internal/common/config"
	commonerrors "admitbridge/internal/common/errors"
	"admitbridge/internal/common/logger"
	"admitbridge/internal/common/metrics"
	"admitbridge/internal/common/observability"
	"admitbridge/internal/common/storage"
	"admitbridge/internal/common/validation"
	"admitbridge/internal/models"
	"admitbridge/internal/workflow/docreuse"
	"admitbridge/internal/workflow/draftstore"
	"admitbridge/internal/workflow/notify"

	"github.com/google/uuid"
)

// optionalColumns are the attribution columns of the applications table, in
// the order they are stripped when the deployed schema does not carry them.
var optionalColumns = []string{
	"application_source",
	"submitted_by_agent",
	"submission_channel",
	"agent_id",
}

// CounselorNotifier is satisfied by notify.Notifier.
type CounselorNotifier interface {
	NotifyCounselor(ctx context.Context, cn notify.CounselorNotification) error
}

// Upload is a document received with the submission request. Uploads are
// session-scoped: they never pass through the draft store.
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}

type Input struct {
	Identity models.Identity
	Form     *models.ApplicationForm
	Uploads  map[models.DocumentType]Upload
}

type Output struct {
	ApplicationID string                       `json:"applicationId"`
	Reference     string                       `json:"reference"`
	SubmittedAt   time.Time                    `json:"submittedAt"`
	Documents     []models.ApplicationDocument `json:"documents"`
}

// Orchestrator turns a completed form into a durable application record.
// The applications insert is the only step that can fail the submission;
// everything after it is best-effort.
type Orchestrator struct {
	db        *sql.DB
	drafts    *draftstore.Store
	snapshots *draftstore.SnapshotStore
	objects   storage.ObjectStore
	resolver  *docreuse.Resolver
	notifier  CounselorNotifier
	buckets   config.StorageConfig
	logger    logger.Logger
	obs       *observability.Observability
}

func NewOrchestrator(
	db *sql.DB,
	drafts *draftstore.Store,
	snapshots *draftstore.SnapshotStore,
	objects storage.ObjectStore,
	resolver *docreuse.Resolver,
	notifier CounselorNotifier,
	buckets config.StorageConfig,
	log logger.Logger,
	obs *observability.Observability,
) *Orchestrator {
	return &Orchestrator{
		db:        db,
		drafts:    drafts,
		snapshots: snapshots,
		objects:   objects,
		resolver:  resolver,
		notifier:  notifier,
		buckets:   buckets,
		logger:    log.WithFields(map[string]interface{}{"component": "submit"}),
		obs:       obs,
	}
}

// Submit validates the input, inserts the application row with schema-drift
// tolerance, attaches documents per slot, and fires the post-insert side
// effects. A validation failure writes nothing.
func (o *Orchestrator) Submit(ctx context.Context, in Input) (*Output, error) {
	start := time.Now()

	if err := o.validate(in); err != nil {
		metrics.SubmissionsTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}

	appID := uuid.New().String()
	submittedAt := time.Now().UTC()

	if err := o.insertApplication(ctx, appID, in, submittedAt); err != nil {
		metrics.SubmissionsTotal.WithLabelValues("failed").Inc()
		o.obs.RecordSubmission(ctx, "failed")
		o.obs.RecordSubmitDuration(ctx, time.Since(start), "failed")
		return nil, err
	}

	docs := o.attachDocuments(ctx, appID, in)

	o.afterInsert(ctx, appID, in, submittedAt)

	out := &Output{
		ApplicationID: appID,
		Reference:     strings.ToUpper(appID[:8]),
		SubmittedAt:   submittedAt,
		Documents:     docs,
	}

	metrics.SubmissionsTotal.WithLabelValues("success").Inc()
	o.obs.RecordSubmission(ctx, "success")
	o.obs.RecordSubmitDuration(ctx, time.Since(start), "success")

	o.logger.Info("application submitted", map[string]interface{}{
		"applicationId": appID,
		"reference":     out.Reference,
		"studentId":     in.Identity.UserID,
		"documentCount": len(docs),
	})
	return out, nil
}

func (o *Orchestrator) validate(in Input) error {
	if !in.Identity.HasStudent() || in.Identity.TenantID == "" {
		return commonerrors.NewMissingIdentityError("submission requires an authenticated student with a tenant")
	}
	if in.Form == nil {
		return commonerrors.NewValidationError("application form is required", "")
	}
	if errs := validation.Required(map[string]string{
		"fullName": in.Form.PersonalInfo.FullName,
		"email":    in.Form.PersonalInfo.Email,
	}); len(errs) > 0 {
		return commonerrors.NewValidationError("required field missing", errs[0].Field)
	}
	if !validation.IsEmail(in.Form.PersonalInfo.Email) {
		return commonerrors.NewValidationError("invalid email address", "email")
	}
	programID := in.Form.ProgramSelection.ProgramID
	if !validation.IsUUID(programID) {
		return commonerrors.NewInvalidProgramIDError(programID)
	}
	if in.Form.ProgramSelection.IntakeYear == 0 {
		return commonerrors.NewValidationError("intake year is required", "")
	}
	return nil
}

// insertApplication writes the applications row. When the error names one of
// the still-attached optional attribution columns, that column is dropped and
// the insert retried until it succeeds or no optional column remains.
func (o *Orchestrator) insertApplication(ctx context.Context, appID string, in Input, submittedAt time.Time) error {
	remaining := append([]string(nil), optionalColumns...)

	var lastErr error
	for {
		query, args := o.buildInsert(appID, in, submittedAt, remaining)
		_, err := o.db.ExecContext(ctx, query, args...)
		if err == nil {
			return nil
		}
		lastErr = err

		column, ok := commonerrors.MissingColumn(err, remaining)
		if !ok || len(remaining) == 0 {
			o.logger.Error("application insert failed", map[string]interface{}{
				"applicationId": appID,
				"error":         err.Error(),
			})
			return commonerrors.NewDatabaseInsertFailedError(lastErr)
		}

		o.logger.Warn("retrying insert without missing column", map[string]interface{}{
			"applicationId": appID,
			"column":        column,
		})
		metrics.ColumnRetriesTotal.WithLabelValues(column).Inc()
		o.obs.RecordColumnRetry(ctx, column)
		remaining = removeColumn(remaining, column)
	}
}

func (o *Orchestrator) buildInsert(appID string, in Input, submittedAt time.Time, optional []string) (string, []interface{}) {
	sel := in.Form.ProgramSelection

	var intakeID sql.NullString
	if validation.IsUUID(sel.IntakeID) {
		intakeID = sql.NullString{String: sel.IntakeID, Valid: true}
	}

	columns := []string{
		"id", "student_id", "tenant_id", "program_id",
		"intake_year", "intake_month", "intake_id",
		"status", "notes", "submitted_at",
	}
	args := []interface{}{
		appID, in.Identity.UserID, in.Identity.TenantID, sel.ProgramID,
		sel.IntakeYear, sel.IntakeMonth, intakeID,
		models.StatusSubmitted, in.Form.Notes, submittedAt,
	}

	isAgent := in.Identity.Role == "agent"
	for _, col := range optional {
		switch col {
		case "application_source":
			if isAgent {
				args = append(args, "agent_portal")
			} else {
				args = append(args, "student_portal")
			}
		case "submitted_by_agent":
			args = append(args, isAgent)
		case "submission_channel":
			args = append(args, "web")
		case "agent_id":
			var agentID sql.NullString
			if isAgent {
				agentID = sql.NullString{String: in.Identity.UserID, Valid: true}
			}
			args = append(args, agentID)
		}
		columns = append(columns, col)
	}

	placeholders := make([]string, len(columns))
	for i := range columns {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}

	query := fmt.Sprintf(
		"INSERT INTO applications (%s) VALUES (%s)",
		strings.Join(columns, ", "),
		strings.Join(placeholders, ", "),
	)
	return query, args
}

func removeColumn(columns []string, name string) []string {
	out := columns[:0]
	for _, c := range columns {
		if c != name {
			out = append(out, c)
		}
	}
	return out
}

// attachDocuments fills each document slot: a fresh upload wins, otherwise
// the reuse resolver may copy a verified profile document. A slot that fails
// is logged and left empty.
func (o *Orchestrator) attachDocuments(ctx context.Context, appID string, in Input) []models.ApplicationDocument {
	var verified []models.StudentDocument
	needReuse := false
	for _, slot := range models.DocumentTypes {
		if _, ok := in.Uploads[slot]; !ok {
			needReuse = true
			break
		}
	}
	if needReuse {
		var err error
		verified, err = o.resolver.LoadVerifiedDocuments(ctx, in.Identity.UserID)
		if err != nil {
			o.logger.Warn("loading verified documents failed", map[string]interface{}{
				"studentId": in.Identity.UserID,
				"error":     err.Error(),
			})
		}
	}

	var docs []models.ApplicationDocument
	for _, slot := range models.DocumentTypes {
		if upload, ok := in.Uploads[slot]; ok {
			doc, err := o.storeUpload(ctx, appID, in.Identity, slot, upload)
			if err != nil {
				o.logger.Warn("document upload failed", map[string]interface{}{
					"applicationId": appID,
					"slot":          string(slot),
					"error":         err.Error(),
				})
				continue
			}
			docs = append(docs, *doc)
			continue
		}
		if doc := o.resolver.Resolve(ctx, in.Identity, appID, slot, verified); doc != nil {
			docs = append(docs, *doc)
		}
	}
	return docs
}

func (o *Orchestrator) storeUpload(ctx context.Context, appID string, id models.Identity, slot models.DocumentType, upload Upload) (*models.ApplicationDocument, error) {
	key := fmt.Sprintf("%s/%s_%d_%s", appID, slot, time.Now().UnixMilli(), upload.Filename)

	contentType := upload.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if err := o.objects.Upload(ctx, o.buckets.ApplicationBucket, key, upload.Data, contentType); err != nil {
		return nil, fmt.Errorf("upload to %s: %w", o.buckets.ApplicationBucket, err)
	}

	doc := &models.ApplicationDocument{
		ID:            uuid.New().String(),
		ApplicationID: appID,
		TenantID:      id.TenantID,
		DocumentType:  slot,
		StoragePath:   key,
		FileSize:      int64(len(upload.Data)),
		MimeType:      contentType,
		CreatedAt:     time.Now().UTC(),
	}

	_, err := o.db.ExecContext(ctx, `
		INSERT INTO application_documents (id, application_id, tenant_id, document_type, storage_path, file_size, mime_type, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		doc.ID, doc.ApplicationID, doc.TenantID, string(doc.DocumentType),
		doc.StoragePath, doc.FileSize, doc.MimeType, doc.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert application_documents: %w", err)
	}
	return doc, nil
}

// afterInsert runs the side effects that must never fail the submission:
// counselor notification, audit trail, and draft cleanup.
func (o *Orchestrator) afterInsert(ctx context.Context, appID string, in Input, submittedAt time.Time) {
	o.notifyCounselor(ctx, appID, in)
	o.writeAuditLog(ctx, appID, in, submittedAt)

	if err := o.drafts.Delete(ctx, in.Identity.UserID); err != nil {
		o.logger.Warn("draft cleanup failed", map[string]interface{}{
			"studentId": in.Identity.UserID,
			"error":     err.Error(),
		})
	}
	if err := o.snapshots.Delete(ctx, in.Identity.UserID); err != nil {
		o.logger.Warn("snapshot cleanup failed", map[string]interface{}{
			"studentId": in.Identity.UserID,
			"error":     err.Error(),
		})
	}
}

func (o *Orchestrator) notifyCounselor(ctx context.Context, appID string, in Input) {
	programName, universityName := o.lookupProgram(ctx, in.Form.ProgramSelection.ProgramID)

	counselor, err := o.lookupCounselor(ctx, in.Identity.UserID)
	if err != nil {
		o.logger.Warn("counselor lookup failed", map[string]interface{}{
			"studentId": in.Identity.UserID,
			"error":     err.Error(),
		})
		return
	}
	if counselor == nil {
		return
	}

	studentName := in.Form.PersonalInfo.FullName
	if studentName == "" {
		studentName = in.Identity.FullName
	}

	cn := notify.CounselorNotification{
		TenantID:       in.Identity.TenantID,
		CounselorID:    counselor.ID,
		CounselorEmail: counselor.Email,
		CounselorPhone: counselor.Phone,
		StudentName:    studentName,
		ProgramName:    programName,
		UniversityName: universityName,
		ApplicationID:  appID,
		Reference:      strings.ToUpper(appID[:8]),
		Priority:       "normal",
	}
	if err := o.notifier.NotifyCounselor(ctx, cn); err != nil {
		o.logger.Warn("counselor notification failed", map[string]interface{}{
			"applicationId": appID,
			"error":         err.Error(),
		})
	}
}

// lookupProgram resolves display names for the notification text. Failures
// fall back to generic wording.
func (o *Orchestrator) lookupProgram(ctx context.Context, programID string) (string, string) {
	var programName, universityName string
	err := o.db.QueryRowContext(ctx, `
		SELECT p.name, u.name
		FROM programs p
		JOIN universities u ON u.id = p.university_id
		WHERE p.id = $1`,
		programID,
	).Scan(&programName, &universityName)
	if err != nil {
		o.logger.Warn("program lookup failed", map[string]interface{}{
			"programId": programID,
			"error":     err.Error(),
		})
		return "the selected program", "the selected university"
	}
	return programName, universityName
}

func (o *Orchestrator) lookupCounselor(ctx context.Context, studentID string) (*models.Counselor, error) {
	var c models.Counselor
	err := o.db.QueryRowContext(ctx, `
		SELECT u.id, u.full_name, u.email, COALESCE(u.phone, '')
		FROM students s
		JOIN users u ON u.id = s.counselor_id
		WHERE s.id = $1`,
		studentID,
	).Scan(&c.ID, &c.FullName, &c.Email, &c.Phone)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (o *Orchestrator) writeAuditLog(ctx context.Context, appID string, in Input, submittedAt time.Time) {
	_, err := o.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, tenant_id, actor_id, action, entity_type, entity_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		uuid.New().String(),
		in.Identity.TenantID,
		in.Identity.UserID,
		"application.submitted",
		"application",
		appID,
		submittedAt,
	)
	if err != nil {
		o.logger.Warn("audit log write failed", map[string]interface{}{
			"applicationId": appID,
			"error":         err.Error(),
		})
	}
}
