package domain

import (
	"testing"
	"time"

	"github.com/marloweh/tutti/internal/protocol"
)

func TestClampVelocity(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{0, protocol.DefaultVelocity}, // unset takes the default
		{0.05, protocol.MinVelocity},
		{0.1, 0.1},
		{0.7, 0.7},
		{1.0, 1.0},
		{1.5, protocol.MaxVelocity},
		{-2, protocol.MinVelocity},
	}
	for _, tt := range tests {
		if got := ClampVelocity(tt.in); got != tt.want {
			t.Errorf("ClampVelocity(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestClampDuration(t *testing.T) {
	tests := []struct {
		in   int
		want int
	}{
		{0, protocol.DefaultDurationMs},
		{50, protocol.MinDurationMs},
		{100, 100},
		{500, 500},
		{3000, 3000},
		{10000, protocol.MaxDurationMs},
		{-1, protocol.MinDurationMs},
	}
	for _, tt := range tests {
		if got := ClampDuration(tt.in); got != tt.want {
			t.Errorf("ClampDuration(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestNewSessionIDUnique(t *testing.T) {
	now := time.Now()
	seen := make(map[string]struct{})
	for i := 0; i < 1000; i++ {
		id := NewSessionID("p1", now)
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate session id after %d draws: %s", i, id)
		}
		seen[id] = struct{}{}
	}
}

func TestNoteEventAge(t *testing.T) {
	now := time.UnixMilli(1_000_000)

	ev := NoteEvent{ServerTimestamp: now.Add(-3 * time.Second).UnixMilli()}
	if got := ev.Age(now); got != 3*time.Second {
		t.Errorf("Age with server timestamp = %v, want 3s", got)
	}

	// Sender clock ahead of ours still counts against the budget.
	ev = NoteEvent{ServerTimestamp: now.Add(2 * time.Second).UnixMilli()}
	if got := ev.Age(now); got != 2*time.Second {
		t.Errorf("Age with future server timestamp = %v, want 2s", got)
	}

	// Falls back to the client timestamp when the server stamp is missing.
	ev = NoteEvent{ClientTimestamp: now.Add(-5 * time.Second).Format(time.RFC3339Nano)}
	if got := ev.Age(now); got != 5*time.Second {
		t.Errorf("Age with client timestamp = %v, want 5s", got)
	}

	// No timestamp at all means infinitely stale.
	ev = NoteEvent{}
	if got := ev.Age(now); got < protocol.StalenessThreshold {
		t.Errorf("Age with no timestamps = %v, must exceed the staleness threshold", got)
	}
}

func TestNoteEventDuration(t *testing.T) {
	ev := NoteEvent{DurationMs: 250}
	if got := ev.Duration(); got != 250*time.Millisecond {
		t.Errorf("Duration() = %v, want 250ms", got)
	}

	ev = NoteEvent{}
	if got := ev.Duration(); got != time.Duration(protocol.DefaultDurationMs)*time.Millisecond {
		t.Errorf("Duration() of unset event = %v, want default", got)
	}
}

func TestHandleKey(t *testing.T) {
	a := NoteEvent{PitchName: "C4", ParticipantID: "p1"}
	b := NoteEvent{PitchName: "C4", ParticipantID: "p2"}
	c := NoteEvent{PitchName: "D4", ParticipantID: "p1"}

	if a.HandleKey() == b.HandleKey() {
		t.Error("different participants must produce different handle keys")
	}
	if a.HandleKey() == c.HandleKey() {
		t.Error("different pitches must produce different handle keys")
	}
	if a.HandleKey() != (&NoteEvent{PitchName: "C4", ParticipantID: "p1"}).HandleKey() {
		t.Error("handle key must be deterministic")
	}
}
