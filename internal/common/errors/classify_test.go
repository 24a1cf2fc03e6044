// internal/common/errors/classify_test.go
package errors

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

// ==========================
// Classify Tests
// ==========================

func TestClassify_PqUndefinedColumn(t *testing.T) {
	err := &pq.Error{
		Code:    "42703",
		Message: `column "application_source" of relation "applications" does not exist`,
	}

	c := Classify(err)

	assert.Equal(t, KindMissingColumn, c.Kind)
	assert.Equal(t, "application_source", c.MissingColumn)
}

func TestClassify_PqUndefinedColumnWrapped(t *testing.T) {
	pqErr := &pq.Error{
		Code:    "42703",
		Message: `column "agent_id" of relation "applications" does not exist`,
	}
	err := fmt.Errorf("insert failed: %w", pqErr)

	c := Classify(err)

	assert.Equal(t, KindMissingColumn, c.Kind)
	assert.Equal(t, "agent_id", c.MissingColumn)
}

func TestClassify_RESTStyleMissingColumn(t *testing.T) {
	// Shape emitted by REST data gateways rather than the wire driver.
	err := errors.New("Could not find the 'submission_channel' column of 'applications' in the schema cache")

	c := Classify(err)

	assert.Equal(t, KindMissingColumn, c.Kind)
	assert.Equal(t, "submission_channel", c.MissingColumn)
}

func TestClassify_CaseInsensitiveMessageMatch(t *testing.T) {
	err := errors.New(`COLUMN "submitted_by_agent" DOES NOT EXIST`)

	c := Classify(err)

	assert.Equal(t, KindMissingColumn, c.Kind)
	assert.Equal(t, "submitted_by_agent", c.MissingColumn)
}

func TestClassify_UniqueViolation(t *testing.T) {
	err := &pq.Error{
		Code:    "23505",
		Message: `duplicate key value violates unique constraint "application_drafts_student_id_key"`,
	}

	c := Classify(err)

	assert.Equal(t, KindUniqueViolation, c.Kind)
}

func TestClassify_NotFound(t *testing.T) {
	c := Classify(sql.ErrNoRows)
	assert.Equal(t, KindNotFound, c.Kind)
}

func TestClassify_Other(t *testing.T) {
	c := Classify(errors.New("connection refused"))
	assert.Equal(t, KindOther, c.Kind)
	assert.Empty(t, c.MissingColumn)
}

// ==========================
// MissingColumn Tests
// ==========================

func TestMissingColumn_MatchesCandidate(t *testing.T) {
	err := &pq.Error{
		Code:    "42703",
		Message: `column "application_source" of relation "applications" does not exist`,
	}

	col, ok := MissingColumn(err, []string{"application_source", "agent_id"})

	assert.True(t, ok)
	assert.Equal(t, "application_source", col)
}

func TestMissingColumn_ExtractedColumnNotACandidate(t *testing.T) {
	// A missing required column must never be mistaken for an optional one.
	err := &pq.Error{
		Code:    "42703",
		Message: `column "student_id" of relation "applications" does not exist`,
	}

	_, ok := MissingColumn(err, []string{"application_source", "agent_id"})

	assert.False(t, ok)
}

func TestMissingColumn_FallbackSubstringScan(t *testing.T) {
	err := errors.New("undefined column does not exist near APPLICATION_SOURCE")

	col, ok := MissingColumn(err, []string{"application_source"})

	assert.True(t, ok)
	assert.Equal(t, "application_source", col)
}

func TestMissingColumn_NonColumnError(t *testing.T) {
	_, ok := MissingColumn(errors.New("connection reset by peer"), []string{"agent_id"})
	assert.False(t, ok)
}
