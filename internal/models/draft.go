// internal/models/draft.go
package models

import "time"

// Draft is the persisted single-row-per-student snapshot of in-progress form
// data. ProgramID is nil when the selected program has no syntactically valid
// identifier (demo/fallback catalog data).
type Draft struct {
	ID        string           `json:"id"`
	StudentID string           `json:"studentId"`
	TenantID  string           `json:"tenantId"`
	ProgramID *string          `json:"programId"`
	Form      *ApplicationForm `json:"form"`
	LastStep  int              `json:"lastStep"`
	CreatedAt time.Time        `json:"createdAt"`
	UpdatedAt time.Time        `json:"updatedAt"`
}

// DraftSnapshot is the fallback-tier snapshot kept when no backend identity is
// available or a backend save fails. It mirrors the legacy client-local shape:
// the form without files, plus the wizard step.
type DraftSnapshot struct {
	Form        *ApplicationForm `json:"form"`
	CurrentStep int              `json:"currentStep"`
	SavedAt     time.Time        `json:"savedAt"`
}
