package refnum

import (
	"strings"
	"testing"
	"time"
)

func TestNewShape(t *testing.T) {
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	ref, err := New(PrefixReservation, at)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	parts := strings.Split(ref, "-")
	if len(parts) != 3 {
		t.Fatalf("expected 3 parts, got %q", ref)
	}
	if parts[0] != "RSV" {
		t.Fatalf("expected RSV prefix, got %q", parts[0])
	}
	if len(parts[2]) != suffixLen {
		t.Fatalf("expected %d-char suffix, got %q", suffixLen, parts[2])
	}
}

func TestDistinctPrefixes(t *testing.T) {
	at := time.Now()
	ref, err := New(PrefixReservation, at)
	if err != nil {
		t.Fatal(err)
	}
	token, err := New(PrefixCheckIn, at)
	if err != nil {
		t.Fatal(err)
	}
	if strings.HasPrefix(token, "RSV") || strings.HasPrefix(ref, "CHK") {
		t.Fatalf("prefixes crossed: %q %q", ref, token)
	}
}

// Uniqueness is probabilistic, not guaranteed; 10k draws at distinct
// millisecond timestamps must still never collide.
func TestUniqueAcrossTimestamps(t *testing.T) {
	seen := make(map[string]struct{}, 10000)
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 10000; i++ {
		ref, err := New(PrefixReservation, at.Add(time.Duration(i)*time.Millisecond))
		if err != nil {
			t.Fatal(err)
		}
		if _, dup := seen[ref]; dup {
			t.Fatalf("duplicate reference %q after %d draws", ref, i)
		}
		seen[ref] = struct{}{}
	}
}
