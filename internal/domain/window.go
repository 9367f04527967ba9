package domain

import (
	"errors"
	"time"
)

// Window is a half-open time interval [Start, End). End must be strictly
// after Start; NewWindow is the only constructor that enforces it.
type Window struct {
	Start time.Time `json:"start" format:"date-time"`
	End   time.Time `json:"end" format:"date-time"`
}

var ErrInvalidWindow = errors.New("window end must be after start")

// NewWindow builds a window, normalising both instants to UTC.
func NewWindow(start, end time.Time) (Window, error) {
	w := Window{Start: start.UTC(), End: end.UTC()}
	if !w.End.After(w.Start) {
		return Window{}, ErrInvalidWindow
	}
	return w, nil
}

// Overlaps reports whether two half-open windows share at least one instant.
// Touching endpoints do not overlap, so back-to-back bookings are allowed.
func (w Window) Overlaps(other Window) bool {
	return w.Start.Before(other.End) && w.End.After(other.Start)
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Duration returns the window length.
func (w Window) Duration() time.Duration {
	return w.End.Sub(w.Start)
}
