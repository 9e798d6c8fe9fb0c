package broadcast

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/marloweh/tutti/internal/domain"
	"github.com/marloweh/tutti/internal/infrastructure/bus"
	"github.com/marloweh/tutti/internal/infrastructure/logging"
	"github.com/marloweh/tutti/internal/protocol"
)

type captureBus struct {
	mu         sync.Mutex
	published  []domain.NoteEvent
	publishErr error
}

func (c *captureBus) Publish(_ context.Context, _ string, ev domain.NoteEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.publishErr != nil {
		return c.publishErr
	}
	c.published = append(c.published, ev)
	return nil
}

func (c *captureBus) Subscribe(string, bus.Handler, bus.ErrorHandler) (bus.UnsubscribeFunc, error) {
	return func() {}, nil
}

func (c *captureBus) Close() error { return nil }

type captureToucher struct {
	touched []string
}

func (c *captureToucher) TouchActivity(roomID string, _ time.Time) error {
	c.touched = append(c.touched, roomID)
	return nil
}

var testIdentity = Identity{
	RoomID:          "room1",
	ParticipantID:   "p1",
	ParticipantName: "ada",
}

func TestBroadcastEnrichesEvent(t *testing.T) {
	cb := &captureBus{}
	toucher := &captureToucher{}
	b := New(cb, toucher, logging.NewNop())

	fixed := time.UnixMilli(1_000_000)
	b.now = func() time.Time { return fixed }

	b.Broadcast(context.Background(), testIdentity, LocalAction{
		PitchName:  "C4",
		Instrument: "piano",
	})

	if len(cb.published) != 1 {
		t.Fatalf("expected one published event, got %d", len(cb.published))
	}
	ev := cb.published[0]

	if ev.ServerTimestamp != fixed.UnixMilli() {
		t.Errorf("server timestamp = %d, want %d", ev.ServerTimestamp, fixed.UnixMilli())
	}
	if ev.ClientTimestamp != fixed.Format(time.RFC3339Nano) {
		t.Errorf("client timestamp = %q", ev.ClientTimestamp)
	}
	if ev.Velocity != protocol.DefaultVelocity {
		t.Errorf("unset velocity must take the default, got %v", ev.Velocity)
	}
	if ev.DurationMs != protocol.DefaultDurationMs {
		t.Errorf("unset duration must take the default, got %v", ev.DurationMs)
	}
	if ev.SessionID == "" {
		t.Error("session id must be set")
	}
	if ev.RoomID != "room1" || ev.ParticipantID != "p1" || ev.ParticipantName != "ada" {
		t.Errorf("identity not carried: %+v", ev)
	}

	if len(toucher.touched) != 1 || toucher.touched[0] != "room1" {
		t.Errorf("room activity not touched: %v", toucher.touched)
	}
}

func TestBroadcastUniqueSessionIDs(t *testing.T) {
	cb := &captureBus{}
	b := New(cb, nil, logging.NewNop())

	for i := 0; i < 50; i++ {
		b.Broadcast(context.Background(), testIdentity, LocalAction{PitchName: "C4", Instrument: "piano"})
	}

	seen := make(map[string]struct{})
	for _, ev := range cb.published {
		if _, dup := seen[ev.SessionID]; dup {
			t.Fatalf("duplicate session id %s", ev.SessionID)
		}
		seen[ev.SessionID] = struct{}{}
	}
}

func TestBroadcastDropsInvalidActions(t *testing.T) {
	cb := &captureBus{}
	b := New(cb, nil, logging.NewNop())

	cases := []struct {
		name   string
		id     Identity
		action LocalAction
	}{
		{"missing pitch", testIdentity, LocalAction{Instrument: "piano"}},
		{"missing instrument", testIdentity, LocalAction{PitchName: "C4"}},
		{"missing participant", Identity{RoomID: "room1"}, LocalAction{PitchName: "C4", Instrument: "piano"}},
		{"missing room", Identity{ParticipantID: "p1"}, LocalAction{PitchName: "C4", Instrument: "piano"}},
	}

	for _, tc := range cases {
		b.Broadcast(context.Background(), tc.id, tc.action)
	}

	if len(cb.published) != 0 {
		t.Fatalf("invalid actions must not publish, got %d events", len(cb.published))
	}
}

func TestBroadcastSwallowsPublishFailure(t *testing.T) {
	cb := &captureBus{publishErr: context.DeadlineExceeded}
	b := New(cb, nil, logging.NewNop())

	// Must not panic and must not propagate; local playback already happened.
	b.Broadcast(context.Background(), testIdentity, LocalAction{PitchName: "C4", Instrument: "piano"})
}

func TestBroadcastClampsOutOfRangeValues(t *testing.T) {
	cb := &captureBus{}
	b := New(cb, nil, logging.NewNop())

	b.Broadcast(context.Background(), testIdentity, LocalAction{
		PitchName:  "C4",
		Instrument: "piano",
		Velocity:   7.5,
		DurationMs: 60_000,
	})

	ev := cb.published[0]
	if ev.Velocity != protocol.MaxVelocity {
		t.Errorf("velocity = %v, want clamped to %v", ev.Velocity, protocol.MaxVelocity)
	}
	if ev.DurationMs != protocol.MaxDurationMs {
		t.Errorf("duration = %d, want clamped to %d", ev.DurationMs, protocol.MaxDurationMs)
	}
}
