package listener

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/marloweh/tutti/internal/domain"
	"github.com/marloweh/tutti/internal/infrastructure/bus"
	"github.com/marloweh/tutti/internal/infrastructure/logging"
	"github.com/marloweh/tutti/internal/protocol"
)

// fakeBus hands the registered handler back to the test so deliveries can be
// driven synchronously.
type fakeBus struct {
	mu           sync.Mutex
	handler      bus.Handler
	errHandler   bus.ErrorHandler
	subscribeN   int
	subscribeErr error
}

func (f *fakeBus) Publish(_ context.Context, _ string, _ domain.NoteEvent) error { return nil }

func (f *fakeBus) Subscribe(_ string, onEvent bus.Handler, onError bus.ErrorHandler) (bus.UnsubscribeFunc, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribeN++
	if f.subscribeErr != nil {
		return nil, f.subscribeErr
	}
	f.handler = onEvent
	f.errHandler = onError
	return func() {}, nil
}

func (f *fakeBus) Close() error { return nil }

func (f *fakeBus) deliver(ev domain.NoteEvent) {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	if h != nil {
		h(ev)
	}
}

func freshEvent(participantID string, at time.Time) domain.NoteEvent {
	return domain.NoteEvent{
		PitchName:       "C4",
		Instrument:      "piano",
		ParticipantID:   participantID,
		ServerTimestamp: at.UnixMilli(),
		SessionID:       "s1",
	}
}

func newTestListener(t *testing.T, fb *fakeBus, got *[]domain.NoteEvent) *Listener {
	t.Helper()
	var mu sync.Mutex
	l := New(Config{
		Bus:     fb,
		LocalID: "me",
		RoomID:  "room1",
		OnEvent: func(ev domain.NoteEvent) {
			mu.Lock()
			*got = append(*got, ev)
			mu.Unlock()
		},
		Logger: logging.NewNop(),
	})
	return l
}

func TestListenerDeliversRemoteNotes(t *testing.T) {
	fb := &fakeBus{}
	var got []domain.NoteEvent
	l := newTestListener(t, fb, &got)

	if err := l.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer l.Stop()

	fb.deliver(freshEvent("other", time.Now()))

	if len(got) != 1 || got[0].ParticipantID != "other" {
		t.Fatalf("expected one delivered event, got %v", got)
	}
}

func TestListenerDropsOwnNotes(t *testing.T) {
	fb := &fakeBus{}
	var got []domain.NoteEvent
	l := newTestListener(t, fb, &got)

	if err := l.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer l.Stop()

	fb.deliver(freshEvent("me", time.Now()))

	if len(got) != 0 {
		t.Fatalf("own notes must never reach the handler, got %v", got)
	}
}

func TestListenerDropsStaleNotes(t *testing.T) {
	fb := &fakeBus{}
	var got []domain.NoteEvent
	l := newTestListener(t, fb, &got)

	if err := l.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer l.Stop()

	fb.deliver(freshEvent("other", time.Now().Add(-protocol.StalenessThreshold-time.Second)))

	if len(got) != 0 {
		t.Fatalf("stale notes must be dropped, got %v", got)
	}
}

func TestListenerDebouncesSetup(t *testing.T) {
	fb := &fakeBus{}
	var got []domain.NoteEvent
	l := newTestListener(t, fb, &got)

	if err := l.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	l.Stop()

	// An immediate restart is inside the debounce window.
	if err := l.Start(); !errors.Is(err, ErrDebounced) {
		t.Fatalf("expected ErrDebounced, got %v", err)
	}

	// Backdating the last attempt reopens the window.
	l.mu.Lock()
	l.lastAttempt = time.Now().Add(-protocol.SetupDebounce - time.Second)
	l.mu.Unlock()
	if err := l.Start(); err != nil {
		t.Fatalf("restart after debounce window failed: %v", err)
	}
	l.Stop()

	if fb.subscribeN != 2 {
		t.Fatalf("expected 2 subscriptions, got %d", fb.subscribeN)
	}
}

func TestListenerStartWhileActive(t *testing.T) {
	fb := &fakeBus{}
	var got []domain.NoteEvent
	l := newTestListener(t, fb, &got)

	if err := l.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer l.Stop()

	if err := l.Start(); !errors.Is(err, ErrAlreadyActive) {
		t.Fatalf("expected ErrAlreadyActive, got %v", err)
	}
}

func TestListenerStopInvalidatesSynchronously(t *testing.T) {
	fb := &fakeBus{}
	var got []domain.NoteEvent
	l := newTestListener(t, fb, &got)

	if err := l.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	l.Stop()

	// A delivery still in flight after Stop must be discarded.
	fb.deliver(freshEvent("other", time.Now()))

	if len(got) != 0 {
		t.Fatalf("events after Stop must be dropped, got %v", got)
	}
	if l.State() != Idle {
		t.Fatalf("listener must be idle after Stop, got %v", l.State())
	}
}

func TestListenerSubscribeFailureResetsToIdle(t *testing.T) {
	fb := &fakeBus{subscribeErr: errors.New("broker down")}
	var got []domain.NoteEvent
	l := newTestListener(t, fb, &got)

	if err := l.Start(); err == nil {
		t.Fatal("Start must fail when the bus subscription fails")
	}
	if l.State() != Idle {
		t.Fatalf("failed setup must reset to idle, got %v", l.State())
	}
}

// gatedBus blocks Subscribe until the gate opens so a Stop can land while
// setup is still in flight.
type gatedBus struct {
	gate chan struct{}

	mu       sync.Mutex
	unsubbed bool
}

func (g *gatedBus) Publish(_ context.Context, _ string, _ domain.NoteEvent) error { return nil }

func (g *gatedBus) Subscribe(_ string, _ bus.Handler, _ bus.ErrorHandler) (bus.UnsubscribeFunc, error) {
	<-g.gate
	return func() {
		g.mu.Lock()
		g.unsubbed = true
		g.mu.Unlock()
	}, nil
}

func (g *gatedBus) Close() error { return nil }

func (g *gatedBus) wasUnsubscribed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.unsubbed
}

func TestListenerStopDuringSetupUnsubscribes(t *testing.T) {
	gb := &gatedBus{gate: make(chan struct{})}
	l := New(Config{
		Bus:     gb,
		LocalID: "me",
		RoomID:  "room1",
		OnEvent: func(domain.NoteEvent) {},
		Logger:  logging.NewNop(),
	})

	done := make(chan error, 1)
	go func() { done <- l.Start() }()

	deadline := time.Now().Add(2 * time.Second)
	for l.State() != SettingUp {
		if time.Now().After(deadline) {
			t.Fatal("listener never entered setup")
		}
		time.Sleep(time.Millisecond)
	}

	// Stop races the in-flight subscription; the late completion must not
	// come up active with nobody left to tear it down.
	l.Stop()
	close(gb.gate)

	if err := <-done; !errors.Is(err, ErrStopped) {
		t.Fatalf("expected ErrStopped, got %v", err)
	}
	if l.State() != Idle {
		t.Fatalf("listener must be idle after a stopped setup, got %v", l.State())
	}
	if !gb.wasUnsubscribed() {
		t.Fatal("the orphaned subscription must be torn down")
	}
}

func TestListenerDebounceOverride(t *testing.T) {
	fb := &fakeBus{}
	l := New(Config{
		Bus:      fb,
		LocalID:  "me",
		RoomID:   "room1",
		OnEvent:  func(domain.NoteEvent) {},
		Logger:   logging.NewNop(),
		Debounce: 10 * time.Millisecond,
	})

	if err := l.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	l.Stop()

	// With the default window this restart would be debounced; the short
	// override reopens it almost immediately.
	time.Sleep(20 * time.Millisecond)
	if err := l.Start(); err != nil {
		t.Fatalf("restart after the overridden window failed: %v", err)
	}
	l.Stop()

	if fb.subscribeN != 2 {
		t.Fatalf("expected 2 subscriptions, got %d", fb.subscribeN)
	}
}

func TestListenerAsyncFailureResetsToIdle(t *testing.T) {
	fb := &fakeBus{}
	var failed []error
	l := New(Config{
		Bus:     fb,
		LocalID: "me",
		RoomID:  "room1",
		OnEvent: func(domain.NoteEvent) {},
		OnError: func(err error) { failed = append(failed, err) },
		Logger:  logging.NewNop(),
	})

	if err := l.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	fb.errHandler(errors.New("connection dropped"))

	if l.State() != Idle {
		t.Fatalf("async failure must reset to idle, got %v", l.State())
	}
	if len(failed) != 1 {
		t.Fatalf("OnError must fire once, got %d", len(failed))
	}
}
