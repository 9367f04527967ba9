// Package refnum generates human-readable reference numbers and opaque
// check-in tokens: a category prefix, a base-36 timestamp component, and a
// short random suffix. The suffix space is small enough that callers must
// treat collisions as possible and retry on a uniqueness violation.
package refnum

import (
	"crypto/rand"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	// PrefixReservation tags reservation reference numbers.
	PrefixReservation = "RSV"
	// PrefixCheckIn tags check-in tokens.
	PrefixCheckIn = "CHK"

	suffixLen      = 4
	base36Alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
)

// New returns a reference like RSV-m2k3x9q1-7f0a for the given instant.
func New(prefix string, t time.Time) (string, error) {
	suffix, err := randomSuffix(suffixLen)
	if err != nil {
		return "", fmt.Errorf("reference suffix: %w", err)
	}
	stamp := strconv.FormatInt(t.UnixMilli(), 36)
	return strings.ToUpper(prefix) + "-" + stamp + "-" + suffix, nil
}

func randomSuffix(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	out := make([]byte, n)
	for i, b := range buf {
		out[i] = base36Alphabet[int(b)%len(base36Alphabet)]
	}
	return string(out), nil
}
