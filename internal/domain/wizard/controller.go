// Package wizard owns step sequencing for the intake flow: per-step
// validation gating, jump-back for edits, and the session-level
// completeness predicate that gates final submission.
package wizard

import (
	"fmt"

	"github.com/woundcare/intake/internal/domain/intake"
)

// Step names one wizard step and the form-state paths it requires before
// the user may advance past it.
type Step struct {
	Name     string   `json:"name"`
	Required []string `json:"required"`
}

// DefaultSteps is the standard wound-care intake sequence.
func DefaultSteps() []Step {
	return []Step{
		{Name: "patient", Required: []string{
			"patient_first_name", "patient_last_name", "patient_dob",
		}},
		{Name: "insurance", Required: []string{
			"primary_insurance_name", "primary_member_id",
		}},
		{Name: "clinical", Required: []string{
			"primary_diagnosis", "wound_type", "wound_location",
		}},
		{Name: "product", Required: []string{
			"products",
		}},
		{Name: "shipping", Required: []string{
			"shipping.address_line1", "shipping.city", "shipping.state", "shipping.zip",
		}},
		{Name: "review", Required: nil},
	}
}

// Controller is the step state machine for one wizard session.
type Controller struct {
	steps   []Step
	state   *intake.FormState
	current int
	visited []bool
}

func NewController(steps []Step, state *intake.FormState) *Controller {
	c := &Controller{steps: steps, state: state, visited: make([]bool, len(steps))}
	if len(steps) > 0 {
		c.visited[0] = true
	}
	return c
}

// RestoreController rebuilds a controller at a stored position, used when
// rehydrating a session. Out-of-range positions fall back to step zero.
func RestoreController(steps []Step, state *intake.FormState, current int, visited []bool) *Controller {
	c := NewController(steps, state)
	if current >= 0 && current < len(steps) {
		c.current = current
	}
	for i := 0; i < len(visited) && i < len(c.visited); i++ {
		if visited[i] {
			c.visited[i] = true
		}
	}
	if len(c.visited) > 0 {
		c.visited[c.current] = true
	}
	return c
}

// VisitedSteps returns a copy of the per-step visited flags, for session
// persistence.
func (c *Controller) VisitedSteps() []bool {
	return append([]bool(nil), c.visited...)
}

// Current returns the active step index.
func (c *Controller) Current() int { return c.current }

// CurrentStep returns the active step definition.
func (c *Controller) CurrentStep() Step { return c.steps[c.current] }

// Steps returns the step definitions in order.
func (c *Controller) Steps() []Step { return append([]Step(nil), c.steps...) }

// Visited reports whether the step has ever been reached.
func (c *Controller) Visited(step int) bool {
	return step >= 0 && step < len(c.visited) && c.visited[step]
}

// validate runs the pure required-field predicate for one step against a
// snapshot of the form state.
func validate(step Step, snap *intake.Snapshot) map[string]string {
	var errs map[string]string
	for _, path := range step.Required {
		if _, ok := snap.Lookup(path); ok {
			continue
		}
		if errs == nil {
			errs = make(map[string]string)
		}
		errs[path] = fmt.Sprintf("%s is required", path)
	}
	return errs
}

// Validate returns the field-keyed error map for the given step, or nil
// when the step passes.
func (c *Controller) Validate(step int) map[string]string {
	if step < 0 || step >= len(c.steps) {
		return map[string]string{"step": "unknown step"}
	}
	return validate(c.steps[step], c.state.Snapshot())
}

// Advance moves to the next step when the current step validates. A
// non-nil error map means the move was refused; this is ordinary flow
// control, not a fault.
func (c *Controller) Advance() map[string]string {
	if errs := c.Validate(c.current); errs != nil {
		return errs
	}
	if c.current < len(c.steps)-1 {
		c.current++
		c.visited[c.current] = true
	}
	return nil
}

// JumpTo moves to an already-visited step for editing. Forward jumps past
// an unvalidated step are refused.
func (c *Controller) JumpTo(step int) error {
	if step < 0 || step >= len(c.steps) {
		return fmt.Errorf("step %d out of range", step)
	}
	if !c.visited[step] {
		return fmt.Errorf("step %q has not been visited", c.steps[step].Name)
	}
	c.current = step
	return nil
}

// IsComplete reports whether every step validates simultaneously against
// the current snapshot. Recomputed on every call; any field may have
// changed since the last evaluation.
func (c *Controller) IsComplete() bool {
	snap := c.state.Snapshot()
	for _, step := range c.steps {
		if validate(step, snap) != nil {
			return false
		}
	}
	return true
}

// Errors collects the failing fields of every step against one snapshot,
// for the review surface.
func (c *Controller) Errors() map[string]string {
	snap := c.state.Snapshot()
	var all map[string]string
	for _, step := range c.steps {
		for field, msg := range validate(step, snap) {
			if all == nil {
				all = make(map[string]string)
			}
			all[field] = msg
		}
	}
	return all
}
