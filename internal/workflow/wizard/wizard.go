// internal/workflow/wizard/wizard.go
package wizard

// StepCount is the number of wizard steps: personal info, education history,
// program selection, documents, review.
const StepCount = 5

// Wizard is the linear step state machine. There are no skip transitions and
// no validation gate here; each step's own UI decides whether "next" is
// enabled, the wizard trusts the caller.
type Wizard struct {
	step int
}

// New returns a wizard positioned at step 1.
func New() *Wizard {
	return &Wizard{step: 1}
}

// Resume returns a wizard positioned at a previously saved step, clamped into
// [1, StepCount] so a corrupt stored value cannot strand the user.
func Resume(lastStep int) *Wizard {
	w := New()
	if lastStep > 1 {
		w.step = lastStep
	}
	if w.step > StepCount {
		w.step = StepCount
	}
	return w
}

// Step returns the current step, 1-based.
func (w *Wizard) Step() int {
	return w.step
}

// Next advances while below the final step and reports whether it moved.
func (w *Wizard) Next() bool {
	if w.step < StepCount {
		w.step++
		return true
	}
	return false
}

// Previous steps back while above the first step and reports whether it moved.
func (w *Wizard) Previous() bool {
	if w.step > 1 {
		w.step--
		return true
	}
	return false
}

// OnFinalStep reports whether the review step is reached.
func (w *Wizard) OnFinalStep() bool {
	return w.step == StepCount
}
