package auth

import (
	"testing"

	"motorpool/internal/domain"
)

func TestDecisionTable(t *testing.T) {
	owner := Relation{Owner: true}
	driver := Relation{AssignedDriver: true}
	none := Relation{}

	cases := []struct {
		name string
		role domain.Role
		rel  Relation
		tr   Transition
		want bool
	}{
		{"employee creates", domain.RoleEmployee, none, TransitionCreate, true},
		{"driver creates", domain.RoleDriver, none, TransitionCreate, true},
		{"manager creates", domain.RoleManager, none, TransitionCreate, true},

		{"employee approves", domain.RoleEmployee, none, TransitionApprove, false},
		{"owner approves own", domain.RoleEmployee, owner, TransitionApprove, false},
		{"manager approves", domain.RoleManager, none, TransitionApprove, true},
		{"admin approves", domain.RoleAdmin, none, TransitionApprove, true},
		{"manager approves own", domain.RoleManager, owner, TransitionApprove, true},

		{"employee rejects", domain.RoleEmployee, owner, TransitionReject, false},
		{"manager rejects", domain.RoleManager, none, TransitionReject, true},

		{"owner cancels", domain.RoleEmployee, owner, TransitionCancel, true},
		{"stranger cancels", domain.RoleEmployee, none, TransitionCancel, false},
		{"manager cancels any", domain.RoleManager, none, TransitionCancel, true},
		{"assigned driver cancels", domain.RoleDriver, driver, TransitionCancel, false},

		{"owner checks in", domain.RoleEmployee, owner, TransitionCheckIn, true},
		{"assigned driver checks in", domain.RoleDriver, driver, TransitionCheckIn, true},
		{"manager checks in unrelated", domain.RoleManager, none, TransitionCheckIn, false},
		{"stranger checks out", domain.RoleEmployee, none, TransitionCheckOut, false},
		{"owner checks out", domain.RoleEmployee, owner, TransitionCheckOut, true},
		{"assigned driver checks out", domain.RoleDriver, driver, TransitionCheckOut, true},

		{"employee manages vehicles", domain.RoleEmployee, none, TransitionManageVehicle, false},
		{"manager manages vehicles", domain.RoleManager, none, TransitionManageVehicle, true},

		{"unknown role denied", domain.Role("intern"), owner, TransitionCreate, false},
	}
	for _, tc := range cases {
		if got := Allowed(tc.role, tc.rel, tc.tr); got != tc.want {
			t.Errorf("%s: Allowed = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestCheckReturnsTypedError(t *testing.T) {
	err := Check(domain.Actor{ID: "a1", Role: domain.RoleEmployee}, Relation{}, TransitionApprove)
	if err == nil {
		t.Fatalf("expected denial")
	}
	fe, ok := err.(ForbiddenError)
	if !ok {
		t.Fatalf("expected ForbiddenError, got %T", err)
	}
	if fe.Transition != TransitionApprove {
		t.Fatalf("unexpected transition in error: %s", fe.Transition)
	}
}
