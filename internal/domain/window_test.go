package domain

import (
	"testing"
	"time"
)

func window(t *testing.T, startMin, endMin int) Window {
	t.Helper()
	base := time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)
	w, err := NewWindow(base.Add(time.Duration(startMin)*time.Minute), base.Add(time.Duration(endMin)*time.Minute))
	if err != nil {
		t.Fatalf("new window: %v", err)
	}
	return w
}

func TestNewWindowRejectsEmptyAndInverted(t *testing.T) {
	base := time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)
	if _, err := NewWindow(base, base); err == nil {
		t.Fatalf("expected error for zero-length window")
	}
	if _, err := NewWindow(base.Add(time.Hour), base); err == nil {
		t.Fatalf("expected error for inverted window")
	}
}

func TestOverlaps(t *testing.T) {
	cases := []struct {
		name           string
		s1, e1, s2, e2 int
		want           bool
	}{
		{"disjoint", 0, 10, 20, 30, false},
		{"touching at endpoint", 0, 10, 10, 20, false},
		{"touching reversed", 10, 20, 0, 10, false},
		{"partial overlap", 0, 10, 5, 15, true},
		{"contained", 0, 60, 10, 20, true},
		{"containing", 10, 20, 0, 60, true},
		{"identical", 5, 15, 5, 15, true},
		{"one minute shared", 0, 11, 10, 20, true},
	}
	for _, tc := range cases {
		a := window(t, tc.s1, tc.e1)
		b := window(t, tc.s2, tc.e2)
		if got := a.Overlaps(b); got != tc.want {
			t.Errorf("%s: Overlaps = %v, want %v", tc.name, got, tc.want)
		}
		if got := b.Overlaps(a); got != tc.want {
			t.Errorf("%s (swapped): Overlaps = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestContainsHalfOpen(t *testing.T) {
	w := window(t, 0, 60)
	if !w.Contains(w.Start) {
		t.Fatalf("start instant should be inside")
	}
	if w.Contains(w.End) {
		t.Fatalf("end instant should be outside")
	}
	if !w.Contains(w.Start.Add(30 * time.Minute)) {
		t.Fatalf("midpoint should be inside")
	}
}

func TestCanTransition(t *testing.T) {
	allowed := []struct{ from, to ReservationStatus }{
		{ReservationPending, ReservationApproved},
		{ReservationPending, ReservationRejected},
		{ReservationPending, ReservationCancelled},
		{ReservationApproved, ReservationCheckedIn},
		{ReservationApproved, ReservationCancelled},
		{ReservationCheckedIn, ReservationCheckedOut},
	}
	for _, tr := range allowed {
		if !CanTransition(tr.from, tr.to) {
			t.Errorf("expected %s -> %s allowed", tr.from, tr.to)
		}
	}
	denied := []struct{ from, to ReservationStatus }{
		{ReservationPending, ReservationCheckedIn},
		{ReservationPending, ReservationCheckedOut},
		{ReservationApproved, ReservationCheckedOut},
		{ReservationApproved, ReservationRejected},
		{ReservationCheckedIn, ReservationCancelled},
		{ReservationCheckedOut, ReservationCheckedIn},
		{ReservationRejected, ReservationApproved},
		{ReservationCancelled, ReservationPending},
	}
	for _, tr := range denied {
		if CanTransition(tr.from, tr.to) {
			t.Errorf("expected %s -> %s denied", tr.from, tr.to)
		}
	}
	for _, s := range []ReservationStatus{ReservationCheckedOut, ReservationRejected, ReservationCancelled} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
}
