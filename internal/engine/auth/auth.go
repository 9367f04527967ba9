// Package auth is the authorization policy gate for reservation
// transitions: a pure decision table over (role, relation, transition).
package auth

import (
	"fmt"

	"motorpool/internal/domain"
)

// Transition names a requested state-machine operation.
type Transition string

const (
	TransitionCreate   Transition = "create"
	TransitionApprove  Transition = "approve"
	TransitionReject   Transition = "reject"
	TransitionCancel   Transition = "cancel"
	TransitionCheckIn  Transition = "check_in"
	TransitionCheckOut Transition = "check_out"

	// TransitionManageVehicle covers the fleet maintenance workflow:
	// registering vehicles and setting maintenance/out-of-service states.
	TransitionManageVehicle Transition = "manage_vehicle"
)

// Relation describes how the actor relates to the reservation in question.
type Relation struct {
	Owner          bool
	AssignedDriver bool
}

// ForbiddenError indicates the gate denied a transition. Denials are always
// surfaced as errors, never as silent no-ops.
type ForbiddenError struct {
	Role       domain.Role
	Transition Transition
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("role %s may not %s this reservation", e.Role, e.Transition)
}

// Allowed is the decision table:
//   - create: any authenticated role
//   - approve/reject: approver roles only, regardless of ownership
//   - cancel: owner or approver
//   - check-in/check-out: owner or the assigned driver
func Allowed(role domain.Role, rel Relation, t Transition) bool {
	if !role.Valid() {
		return false
	}
	switch t {
	case TransitionCreate:
		return true
	case TransitionApprove, TransitionReject:
		return role.Approver()
	case TransitionCancel:
		return rel.Owner || role.Approver()
	case TransitionCheckIn, TransitionCheckOut:
		return rel.Owner || rel.AssignedDriver
	case TransitionManageVehicle:
		return role.Approver()
	}
	return false
}

// Check returns a ForbiddenError when the gate denies the transition.
func Check(actor domain.Actor, rel Relation, t Transition) error {
	if Allowed(actor.Role, rel, t) {
		return nil
	}
	return ForbiddenError{Role: actor.Role, Transition: t}
}
