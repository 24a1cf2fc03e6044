// internal/models/application.go
package models

import "time"

// ApplicationStatus values for the applications table.
const (
	StatusSubmitted = "submitted"
)

// Application is the durable record of a submission. The attribution fields
// are schema-fragile: they may be silently omitted when the deployed backend
// schema does not carry the matching columns.
type Application struct {
	ID          string    `json:"id"`
	StudentID   string    `json:"studentId"`
	TenantID    string    `json:"tenantId"`
	ProgramID   string    `json:"programId"`
	IntakeYear  int       `json:"intakeYear"`
	IntakeMonth int       `json:"intakeMonth"`
	IntakeID    *string   `json:"intakeId,omitempty"`
	Status      string    `json:"status"`
	Notes       string    `json:"notes"`
	SubmittedAt time.Time `json:"submittedAt"`

	// Attribution (optional columns).
	Source            string `json:"applicationSource,omitempty"`
	SubmittedByAgent  bool   `json:"submittedByAgent,omitempty"`
	SubmissionChannel string `json:"submissionChannel,omitempty"`
	AgentID           string `json:"agentId,omitempty"`
}

// ApplicationDocument is one uploaded-or-reused file owned by an Application.
type ApplicationDocument struct {
	ID            string       `json:"id"`
	ApplicationID string       `json:"applicationId"`
	TenantID      string       `json:"tenantId"`
	DocumentType  DocumentType `json:"documentType"`
	StoragePath   string       `json:"storagePath"`
	FileSize      int64        `json:"fileSize"`
	MimeType      string       `json:"mimeType"`
	CreatedAt     time.Time    `json:"createdAt"`
}

// StudentDocument is a document on the student's profile, read-only from this
// workflow. Only verified documents are eligible for reuse.
type StudentDocument struct {
	ID           string     `json:"id"`
	StudentID    string     `json:"studentId"`
	DocumentType string     `json:"documentType"`
	FileName     string     `json:"fileName"`
	StoragePath  string     `json:"storagePath"`
	MimeType     string     `json:"mimeType"`
	FileSize     int64      `json:"fileSize"`
	Status       string     `json:"status"` // "pending", "verified", "rejected"
	VerifiedAt   *time.Time `json:"verifiedAt"`
	CreatedAt    time.Time  `json:"createdAt"`
}
