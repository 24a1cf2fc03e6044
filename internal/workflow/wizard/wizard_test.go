// internal/workflow/wizard/wizard_test.go
package wizard

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWizard_LinearWalk(t *testing.T) {
	w := New()
	assert.Equal(t, 1, w.Step())

	for expected := 2; expected <= StepCount; expected++ {
		assert.True(t, w.Next())
		assert.Equal(t, expected, w.Step())
	}

	assert.True(t, w.OnFinalStep())
	assert.False(t, w.Next(), "no transition past the final step")
	assert.Equal(t, StepCount, w.Step())
}

func TestWizard_PreviousClampsAtFirstStep(t *testing.T) {
	w := New()
	assert.False(t, w.Previous())
	assert.Equal(t, 1, w.Step())

	w.Next()
	assert.True(t, w.Previous())
	assert.Equal(t, 1, w.Step())
}

func TestWizard_Resume(t *testing.T) {
	assert.Equal(t, 3, Resume(3).Step())
	assert.Equal(t, 1, Resume(0).Step())
	assert.Equal(t, 1, Resume(-2).Step())
	assert.Equal(t, StepCount, Resume(99).Step())
}
