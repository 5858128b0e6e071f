// Package definition loads state machines from YAML documents.
//
// A Definition names its states and transitions as plain strings; guards and
// actions are referenced by name and resolved through a Registry when the
// machine is built:
//
//	reg := definition.NewRegistry().
//	    MustRegisterGuard("has_funds", hasFunds).
//	    MustRegisterAction("charge", charge)
//
//	def, err := definition.Load("order.yaml")
//	if err != nil {
//	    return err
//	}
//	m, err := def.Build(reg, statemachine.WithLogger(log))
//
// Parse rejects unknown fields and Validate reports every structural problem
// at once, joined under ErrInvalidDefinition.
package definition
