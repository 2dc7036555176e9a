package enrollflow

import "sort"

// Navigator is the explicit flow state machine: current step, completed-step
// set and the current validation-error list. There is no automatic
// validation on transition; callers set validation errors before blocking a
// transition themselves.
type Navigator struct {
	currentStep      int
	completedSteps   map[int]struct{}
	validationErrors []string
	enterHooks       map[int][]func()
}

// NewNavigator creates a navigator positioned on step 0.
func NewNavigator() *Navigator {
	return &Navigator{
		completedSteps: make(map[int]struct{}),
		enterHooks:     make(map[int][]func()),
	}
}

// CurrentStep returns the current step index.
func (n *Navigator) CurrentStep() int {
	return n.currentStep
}

// GoToStep jumps to an absolute step, used when workflow logic
// short-circuits steps. Entry hooks for the target step run exactly once per
// transition; staying on the same step is not a transition.
func (n *Navigator) GoToStep(step int) {
	if step < 0 || step == n.currentStep {
		return
	}
	n.currentStep = step
	for _, hook := range n.enterHooks[step] {
		hook()
	}
}

// GoToNext advances one step.
func (n *Navigator) GoToNext() {
	n.GoToStep(n.currentStep + 1)
}

// GoToPrevious moves back one step, never below zero.
func (n *Navigator) GoToPrevious() {
	if n.currentStep == 0 {
		return
	}
	n.GoToStep(n.currentStep - 1)
}

// MarkStepComplete adds the current step to the completed set.
func (n *Navigator) MarkStepComplete() {
	n.completedSteps[n.currentStep] = struct{}{}
}

// IsStepComplete reports whether a step has been completed.
func (n *Navigator) IsStepComplete(step int) bool {
	_, ok := n.completedSteps[step]
	return ok
}

// CompletedSteps returns the completed step indices in ascending order.
func (n *Navigator) CompletedSteps() []int {
	out := make([]int, 0, len(n.completedSteps))
	for step := range n.completedSteps {
		out = append(out, step)
	}
	sort.Ints(out)
	return out
}

// SetValidationErrors replaces the current error list; an empty or nil list
// clears it.
func (n *Navigator) SetValidationErrors(errs []string) {
	if len(errs) == 0 {
		n.validationErrors = nil
		return
	}
	n.validationErrors = append([]string(nil), errs...)
}

// ValidationErrors returns the current step's validation errors.
func (n *Navigator) ValidationErrors() []string {
	return n.validationErrors
}

// OnEnter registers a hook that runs each time the given step is entered,
// exactly once per transition.
func (n *Navigator) OnEnter(step int, hook func()) {
	n.enterHooks[step] = append(n.enterHooks[step], hook)
}

// Reset returns the navigator to step 0 with no completed steps or errors.
// Registered hooks survive a reset.
func (n *Navigator) Reset() {
	n.currentStep = 0
	n.completedSteps = make(map[int]struct{})
	n.validationErrors = nil
}
