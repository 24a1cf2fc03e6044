// internal/workflow/autosave/controller.go
package autosave

import (
	"context"
	"sync"
	"time"

	"admitbridge/internal/common/logger"
	"admitbridge/internal/common/metrics"
	"admitbridge/internal/common/observability"
	"admitbridge/internal/models"
	"admitbridge/internal/workflow/draftstore"
)

// Trigger identifies what caused a save attempt.
type Trigger string

const (
	TriggerManual     Trigger = "manual" // explicit "Save & Continue Later"
	TriggerVisibility Trigger = "hidden" // tab hidden
	TriggerUnload     Trigger = "unload" // window unloading
)

// implicit reports whether the trigger is best-effort: implicit saves fall
// back to the snapshot tier instead of surfacing a backend failure.
func (t Trigger) implicit() bool {
	return t == TriggerVisibility || t == TriggerUnload
}

// Tier names where a save landed.
type Tier string

const (
	TierBackend Tier = "backend"
	TierLocal   Tier = "local"
)

// Result describes a completed save.
type Result struct {
	Tier    Tier
	SavedAt time.Time
}

// AnonymousKey keys pre-identity sessions by tenant so the data is
// recoverable once sign-in completes.
func AnonymousKey(tenantID string) string {
	return "anonymous:" + tenantID
}

// SessionKey identifies the session owner for both the snapshot tier and the
// per-session save state.
func SessionKey(id models.Identity) string {
	if id.HasStudent() {
		return id.UserID
	}
	return AnonymousKey(id.TenantID)
}

// session holds the save state for one student (or one anonymous tenant
// session): the unsaved-changes flag, the last successful save time, the last
// save error, and the response-sequencing counters.
type session struct {
	dirty       bool
	lastSavedAt time.Time
	lastError   error
	issuedSeq   uint64
	appliedSeq  uint64
}

// Controller routes each save attempt to the backend draft store or the
// fallback snapshot tier and tracks save state per session. Save responses
// are sequenced within a session: a response that raced a newer one never
// moves lastSavedAt backwards, and one student's stale response or save error
// never leaks into another student's state.
type Controller struct {
	store     *draftstore.Store
	snapshots *draftstore.SnapshotStore
	logger    logger.Logger
	obs       *observability.Observability

	mu       sync.Mutex
	sessions map[string]*session
}

func NewController(store *draftstore.Store, snapshots *draftstore.SnapshotStore, obs *observability.Observability, log logger.Logger) *Controller {
	return &Controller{
		store:     store,
		snapshots: snapshots,
		obs:       obs,
		logger:    log.WithFields(map[string]interface{}{"component": "autosave"}),
		sessions:  make(map[string]*session),
	}
}

// sessionLocked returns the session for key, creating it on first use. The
// caller must hold c.mu.
func (c *Controller) sessionLocked(key string) *session {
	s := c.sessions[key]
	if s == nil {
		s = &session{}
		c.sessions[key] = s
	}
	return s
}

// MarkDirty records that step or form data changed after hydration.
func (c *Controller) MarkDirty(id models.Identity) {
	c.mu.Lock()
	c.sessionLocked(SessionKey(id)).dirty = true
	c.mu.Unlock()
}

// RecordError notes a save-path failure for the session, for example a legacy
// draft migration whose upsert failed during hydration.
func (c *Controller) RecordError(id models.Identity, err error) {
	c.mu.Lock()
	c.sessionLocked(SessionKey(id)).lastError = err
	c.mu.Unlock()
}

// Status returns the three UI-facing flags for the identity's session.
func (c *Controller) Status(id models.Identity) (hasUnsavedChanges bool, lastSavedAt time.Time, lastError error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.sessionLocked(SessionKey(id))
	return s.dirty, s.lastSavedAt, s.lastError
}

// Save persists the current form. With a student identity it writes the
// backend draft; without one it writes the local snapshot and reports the
// save as local. Implicit triggers additionally fall back to the snapshot
// when the backend write fails, so closing the tab loses at most the
// keystrokes since the last trigger.
func (c *Controller) Save(ctx context.Context, id models.Identity, form *models.ApplicationForm, step int, trigger Trigger) (*Result, error) {
	key := SessionKey(id)
	seq := c.nextSeq(key)

	if !id.HasStudent() {
		return c.saveLocal(ctx, key, form, step, seq)
	}

	_, err := c.store.Upsert(ctx, draftstore.UpsertPayload{
		Identity: id,
		Form:     form,
		LastStep: step,
	})
	if err == nil {
		metrics.DraftSavesTotal.WithLabelValues(string(TierBackend), "ok").Inc()
		if c.obs != nil {
			c.obs.RecordDraftSave(ctx, string(TierBackend), "ok")
		}
		return c.applySuccess(key, seq, TierBackend), nil
	}

	metrics.DraftSavesTotal.WithLabelValues(string(TierBackend), "error").Inc()
	if c.obs != nil {
		c.obs.RecordDraftSave(ctx, string(TierBackend), "error")
	}
	c.recordError(key, err)

	if trigger.implicit() {
		c.logger.Warn("backend save failed on implicit trigger, falling back to local snapshot", map[string]interface{}{
			"trigger": string(trigger),
			"error":   err.Error(),
		})
		return c.saveLocal(ctx, key, form, step, seq)
	}

	return nil, err
}

func (c *Controller) saveLocal(ctx context.Context, key string, form *models.ApplicationForm, step int, seq uint64) (*Result, error) {
	err := c.snapshots.Save(ctx, key, models.DraftSnapshot{
		Form:        form,
		CurrentStep: step,
		SavedAt:     time.Now().UTC(),
	})
	if err != nil {
		metrics.DraftSavesTotal.WithLabelValues(string(TierLocal), "error").Inc()
		c.recordError(key, err)
		return nil, err
	}

	metrics.DraftSavesTotal.WithLabelValues(string(TierLocal), "ok").Inc()
	if c.obs != nil {
		c.obs.RecordDraftSave(ctx, string(TierLocal), "ok")
	}
	return c.applySuccess(key, seq, TierLocal), nil
}

func (c *Controller) nextSeq(key string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.sessionLocked(key)
	s.issuedSeq++
	return s.issuedSeq
}

// applySuccess clears the dirty flag and updates lastSavedAt, unless a newer
// request in the same session already completed.
func (c *Controller) applySuccess(key string, seq uint64, tier Tier) *Result {
	now := time.Now().UTC()

	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.sessionLocked(key)
	if seq > s.appliedSeq {
		s.appliedSeq = seq
		s.dirty = false
		s.lastError = nil
		s.lastSavedAt = now
	}
	return &Result{Tier: tier, SavedAt: s.lastSavedAt}
}

func (c *Controller) recordError(key string, err error) {
	c.mu.Lock()
	c.sessionLocked(key).lastError = err
	c.mu.Unlock()
}
