// internal/common/validation/validation_test.go
package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsUUID(t *testing.T) {
	assert.True(t, IsUUID("a3bb189e-8bf9-3888-9912-ace4e6543002"))

	// Non-canonical and fallback-data shapes are rejected.
	assert.False(t, IsUUID("abc"))
	assert.False(t, IsUUID("demo-program-1"))
	assert.False(t, IsUUID(""))
	assert.False(t, IsUUID("{a3bb189e-8bf9-3888-9912-ace4e6543002}"))
	assert.False(t, IsUUID("a3bb189e8bf938889912ace4e6543002"))
}

func TestIsEmail(t *testing.T) {
	assert.True(t, IsEmail("student@example.com"))
	assert.False(t, IsEmail("not-an-email"))
	assert.False(t, IsEmail("a@b"))
}

func TestRequired(t *testing.T) {
	errs := Required(map[string]string{
		"fullName": "Jane Doe",
		"email":    "  ",
	})

	assert.Len(t, errs, 1)
	assert.Equal(t, "email", errs[0].Field)
	assert.Equal(t, "REQUIRED_FIELD_MISSING", errs[0].Code)
}
