// Package errors provides standardized error handling for the admissions workflow.
package errors

import (
	"fmt"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	ErrCodeInvalidProgramID ErrorCode = "INVALID_PROGRAM_ID"
	ErrCodeMissingIdentity  ErrorCode = "MISSING_IDENTITY"

	ErrCodeDraftFetchFailed  ErrorCode = "DRAFT_FETCH_FAILED"
	ErrCodeDraftSaveFailed   ErrorCode = "DRAFT_SAVE_FAILED"
	ErrCodeDraftDeleteFailed ErrorCode = "DRAFT_DELETE_FAILED"

	ErrCodeDatabaseInsertFailed ErrorCode = "DATABASE_INSERT_FAILED"
	ErrCodeSchemaColumnMissing  ErrorCode = "SCHEMA_COLUMN_MISSING"

	ErrCodeDocumentUploadFailed ErrorCode = "DOCUMENT_UPLOAD_FAILED"
	ErrCodeDocumentReuseFailed  ErrorCode = "DOCUMENT_REUSE_FAILED"

	ErrCodeNotificationSendFailed ErrorCode = "NOTIFICATION_SEND_FAILED"
	ErrCodeMigrationFailed        ErrorCode = "MIGRATION_FAILED"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// ==========================
// 2. Error Constructors
// ==========================

// NewValidationError creates a non-retryable, user-facing validation error.
func NewValidationError(message, details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeValidationFailed,
		Message:   message,
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewInvalidProgramIDError is raised on submit when the selected program id is
// not a real catalog identifier. Draft saves coerce such ids to null instead.
func NewInvalidProgramIDError(programID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidProgramID,
		Message:   "Please select a valid program before submitting",
		Details:   fmt.Sprintf("programId: %q", programID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewMissingIdentityError is raised when the workflow has no resolved student.
func NewMissingIdentityError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeMissingIdentity,
		Message:   "No signed-in student for this operation",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewDraftSaveFailedError creates a retryable draft persistence error. The
// literal backend message is kept so the UI can show it inline.
func NewDraftSaveFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeDraftSaveFailed,
		Message:   "Draft save failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewDatabaseInsertFailedError creates a retryable insert error.
func NewDatabaseInsertFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeDatabaseInsertFailed,
		Message:   "Application insert failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// IsCode reports whether err is a StandardError with the given code.
func IsCode(err error, code ErrorCode) bool {
	stdErr, ok := err.(*StandardError)
	return ok && stdErr.Code == code
}
