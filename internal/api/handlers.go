// internal/api/handlers.go
package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	commonerrors "admitbridge/internal/common/errors"
	"admitbridge/internal/common/logger"
	"admitbridge/internal/models"
	"admitbridge/internal/workflow/autosave"
	"admitbridge/internal/workflow/draftstore"
	"admitbridge/internal/workflow/migrate"
	"admitbridge/internal/workflow/submit"
	"admitbridge/internal/workflow/wizard"

	"github.com/redis/go-redis/v9"
)

const defaultMaxUploadBytes = 32 << 20

// Handler exposes the draft lifecycle and submission endpoints.
type Handler struct {
	db             *sql.DB
	redisClient    *redis.Client
	drafts         *draftstore.Store
	snapshots      *draftstore.SnapshotStore
	saver          *autosave.Controller
	orchestrator   *submit.Orchestrator
	logger         logger.Logger
	maxUploadBytes int64
}

func NewHandler(
	db *sql.DB,
	redisClient *redis.Client,
	drafts *draftstore.Store,
	snapshots *draftstore.SnapshotStore,
	saver *autosave.Controller,
	orchestrator *submit.Orchestrator,
	log logger.Logger,
	maxUploadBytes int64,
) *Handler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = defaultMaxUploadBytes
	}
	return &Handler{
		db:             db,
		redisClient:    redisClient,
		drafts:         drafts,
		snapshots:      snapshots,
		saver:          saver,
		orchestrator:   orchestrator,
		logger:         log.WithFields(map[string]interface{}{"component": "api"}),
		maxUploadBytes: maxUploadBytes,
	}
}

type draftResponse struct {
	Form          *models.ApplicationForm `json:"form"`
	CurrentStep   int                     `json:"currentStep"`
	StepCount     int                     `json:"stepCount"`
	HasDraft      bool                    `json:"hasDraft"`
	Migrated      bool                    `json:"migrated"`
	UpdatedAt     *time.Time              `json:"updatedAt,omitempty"`
	AutoSaveError string                  `json:"autoSaveError,omitempty"`
}

// GetDraft hydrates the form for the session: it loads the server draft,
// runs the one-shot legacy migration check against it, and recovers the
// fallback snapshot tier when no server draft exists. The server draft
// always wins; the empty pre-filled form is the last resort.
func (h *Handler) GetDraft(w http.ResponseWriter, r *http.Request) {
	id, ok := IdentityFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "no identity")
		return
	}

	draft, err := h.drafts.Fetch(r.Context(), id.UserID)
	if err != nil {
		h.logger.Error("draft fetch failed", map[string]interface{}{
			"studentId": id.UserID,
			"error":     err.Error(),
		})
		writeError(w, http.StatusInternalServerError, string(commonerrors.ErrCodeDraftFetchFailed), "could not load draft")
		return
	}

	form := models.NewApplicationForm(id)
	if draft != nil && draft.Form != nil {
		form = draft.Form
	}

	resp := draftResponse{
		Form:      form,
		StepCount: wizard.StepCount,
		HasDraft:  draft != nil,
	}
	if draft != nil {
		resp.CurrentStep = wizard.Resume(draft.LastStep).Step()
		resp.UpdatedAt = &draft.UpdatedAt
	} else {
		resp.CurrentStep = wizard.New().Step()
	}

	// hydration is the start of a session, so the one-shot migration check
	// gets a fresh latch here
	migrator := migrate.NewMigrator(h.drafts, h.snapshots, h.logger)
	migration, err := migrator.Run(r.Context(), id, draft, form)
	migrated := err == nil && migration != nil && migration.Migrated
	if err != nil {
		// migration failures keep the legacy blob for a later session and
		// surface on the session's autosave state
		h.logger.Warn("legacy draft migration failed", map[string]interface{}{
			"studentId": id.UserID,
			"error":     err.Error(),
		})
		h.saver.RecordError(id, err)
	} else if migrated {
		resp.Form = migration.Form
		resp.CurrentStep = wizard.Resume(migration.LastStep).Step()
		resp.HasDraft = true
		resp.Migrated = true
	}

	if draft == nil && !migrated {
		h.recoverSnapshot(r.Context(), id, &resp)
	}

	if _, _, lastErr := h.saver.Status(id); lastErr != nil {
		resp.AutoSaveError = lastErr.Error()
	}

	writeJSON(w, http.StatusOK, resp)
}

// recoverSnapshot hydrates from the fallback snapshot tier when the student
// has no server draft: first the student's own snapshot, then a pre-sign-in
// snapshot keyed by tenant, which gets adopted under the student's key.
func (h *Handler) recoverSnapshot(ctx context.Context, id models.Identity, resp *draftResponse) {
	snap, err := h.snapshots.Load(ctx, id.UserID)
	if err != nil {
		h.logger.Warn("snapshot load failed", map[string]interface{}{
			"studentId": id.UserID,
			"error":     err.Error(),
		})
		return
	}

	if snap == nil && id.TenantID != "" {
		anonKey := autosave.AnonymousKey(id.TenantID)
		snap, err = h.snapshots.Load(ctx, anonKey)
		if err != nil || snap == nil {
			return
		}
		// re-key the pre-sign-in snapshot so it follows the student
		if err := h.snapshots.Save(ctx, id.UserID, *snap); err == nil {
			_ = h.snapshots.Delete(ctx, anonKey)
		}
	}

	if snap == nil || snap.Form == nil {
		return
	}

	resp.Form = snap.Form
	resp.CurrentStep = wizard.Resume(snap.CurrentStep).Step()
	resp.HasDraft = true
	resp.UpdatedAt = &snap.SavedAt
}

type saveDraftRequest struct {
	Form        *models.ApplicationForm `json:"form"`
	CurrentStep int                     `json:"currentStep"`
	Trigger     string                  `json:"trigger"`
}

type saveDraftResponse struct {
	Tier    string    `json:"tier"`
	SavedAt time.Time `json:"savedAt"`
}

// SaveDraft persists the in-progress form. The trigger query param (or body
// field) tells the save controller whether a backend failure may fall back to
// the snapshot tier.
func (h *Handler) SaveDraft(w http.ResponseWriter, r *http.Request) {
	id, ok := IdentityFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "no identity")
		return
	}

	var req saveDraftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, string(commonerrors.ErrCodeValidationFailed), "invalid request body")
		return
	}
	if req.Form == nil {
		writeError(w, http.StatusBadRequest, string(commonerrors.ErrCodeValidationFailed), "form is required")
		return
	}

	rawTrigger := r.URL.Query().Get("trigger")
	if rawTrigger == "" {
		rawTrigger = req.Trigger
	}
	trigger := autosave.Trigger(rawTrigger)
	switch trigger {
	case autosave.TriggerManual, autosave.TriggerVisibility, autosave.TriggerUnload:
	case "":
		trigger = autosave.TriggerManual
	default:
		writeError(w, http.StatusBadRequest, string(commonerrors.ErrCodeValidationFailed), "unknown trigger")
		return
	}

	// the incoming form is unsaved until the write lands
	h.saver.MarkDirty(id)

	result, err := h.saver.Save(r.Context(), id, req.Form, req.CurrentStep, trigger)
	if err != nil {
		writeError(w, http.StatusInternalServerError, string(commonerrors.ErrCodeDraftSaveFailed), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, saveDraftResponse{
		Tier:    string(result.Tier),
		SavedAt: result.SavedAt,
	})
}

// DeleteDraft discards the draft on both tiers.
func (h *Handler) DeleteDraft(w http.ResponseWriter, r *http.Request) {
	id, ok := IdentityFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "no identity")
		return
	}

	if err := h.drafts.Delete(r.Context(), id.UserID); err != nil {
		writeError(w, http.StatusInternalServerError, string(commonerrors.ErrCodeDraftDeleteFailed), "could not delete draft")
		return
	}
	if err := h.snapshots.Delete(r.Context(), id.UserID); err != nil {
		h.logger.Warn("snapshot delete failed", map[string]interface{}{
			"studentId": id.UserID,
			"error":     err.Error(),
		})
	}
	w.WriteHeader(http.StatusNoContent)
}

type submitPayload struct {
	Form *models.ApplicationForm `json:"form"`
}

// SubmitApplication accepts a multipart request: a "payload" JSON part with
// the completed form, plus at most one file part per document slot.
func (h *Handler) SubmitApplication(w http.ResponseWriter, r *http.Request) {
	id, ok := IdentityFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "no identity")
		return
	}

	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, string(commonerrors.ErrCodeValidationFailed), "invalid multipart request")
		return
	}

	var payload submitPayload
	if err := json.Unmarshal([]byte(r.FormValue("payload")), &payload); err != nil || payload.Form == nil {
		writeError(w, http.StatusBadRequest, string(commonerrors.ErrCodeValidationFailed), "payload part with form is required")
		return
	}

	uploads, err := h.readUploads(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, string(commonerrors.ErrCodeValidationFailed), err.Error())
		return
	}

	out, err := h.orchestrator.Submit(r.Context(), submit.Input{
		Identity: id,
		Form:     payload.Form,
		Uploads:  uploads,
	})
	if err != nil {
		writeError(w, statusForError(err), errorCode(err), err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, out)
}

func (h *Handler) readUploads(r *http.Request) (map[models.DocumentType]submit.Upload, error) {
	uploads := make(map[models.DocumentType]submit.Upload)
	for _, slot := range models.DocumentTypes {
		file, header, err := r.FormFile(string(slot))
		if err == http.ErrMissingFile {
			continue
		}
		if err != nil {
			continue
		}
		data, err := io.ReadAll(file)
		file.Close()
		if err != nil {
			return nil, err
		}
		uploads[slot] = submit.Upload{
			Filename:    header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Data:        data,
		}
	}
	return uploads, nil
}

// Health reports readiness of the backing stores.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	checks := map[string]string{"postgres": "ok", "redis": "ok"}

	if err := h.db.PingContext(r.Context()); err != nil {
		checks["postgres"] = err.Error()
		status = http.StatusServiceUnavailable
	}
	if err := h.redisClient.Ping(r.Context()).Err(); err != nil {
		checks["redis"] = err.Error()
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, map[string]interface{}{
		"status": http.StatusText(status),
		"checks": checks,
	})
}

func statusForError(err error) int {
	switch {
	case commonerrors.IsCode(err, commonerrors.ErrCodeValidationFailed),
		commonerrors.IsCode(err, commonerrors.ErrCodeInvalidProgramID):
		return http.StatusBadRequest
	case commonerrors.IsCode(err, commonerrors.ErrCodeMissingIdentity):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func errorCode(err error) string {
	var stdErr *commonerrors.StandardError
	if errors.As(err, &stdErr) {
		return string(stdErr.Code)
	}
	return string(commonerrors.ErrCodeDatabaseInsertFailed)
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	var resp errorResponse
	resp.Error.Code = code
	resp.Error.Message = message
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
