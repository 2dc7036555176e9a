// Package enrollflow drives MFA device enrollment and runtime challenges as
// an explicit state machine.
//
// A Session owns one flow: it collects credentials at the configure step,
// selects a controller through the factory, performs the registration call
// and routes the outcome through the Orchestrator's decision table. The
// Navigator tracks the current step, the completed-step set and inline
// validation errors; the challenge manager tracks per-target send cooldowns
// and validation phases.
//
// # Flow shape
//
// The canonical admin enrollment:
//
//	session := enrollflow.NewSession(client, token.NewInspector(), enrollflow.FlowTypeAdmin)
//	if !session.Configure(creds) {
//	    // inspect session.Navigator().ValidationErrors()
//	}
//	err := session.Register(ctx)
//	// the orchestrator decided: success view set, or the flow moved to
//	// the validation or manual-send step
//	ok, err := session.Validate(ctx, code)
//
// Registration never assumes the platform echoes the requested status; the
// decision table in Orchestrator.Decide is the single place that outcome is
// interpreted.
//
// Mutating operations are single-flight: a second call while one is in
// flight returns ErrBusy instead of queueing. State transitions triggered by
// an operation are applied after the operation finishes, so observers never
// see a half-applied step change.
package enrollflow
