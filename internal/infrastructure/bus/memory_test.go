package bus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/marloweh/tutti/internal/domain"
)

// counter collects deliveries from the asynchronous pump goroutines.
type counter struct {
	mu     sync.Mutex
	events []domain.NoteEvent
}

func (c *counter) handle(ev domain.NoteEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *counter) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

// waitFor polls until the condition holds or the deadline passes. Delivery
// runs on subscriber goroutines, so tests observe it eventually rather than
// immediately.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func noteIn(roomID string) domain.NoteEvent {
	return domain.NoteEvent{
		RoomID:        roomID,
		PitchName:     "C4",
		Instrument:    "piano",
		ParticipantID: "p1",
		SessionID:     domain.NewSessionID("p1", time.Now()),
	}
}

func TestMemoryFanout(t *testing.T) {
	m := NewMemory()
	defer m.Close()

	var a, b counter
	if _, err := m.Subscribe("room1", a.handle, nil); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	if _, err := m.Subscribe("room1", b.handle, nil); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	if err := m.Publish(context.Background(), "room1", noteIn("room1")); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	// Fanout reaches every room subscriber, the publisher's own included;
	// echo suppression is the listener's job, not the bus's.
	waitFor(t, func() bool { return a.len() == 1 && b.len() == 1 })
}

func TestMemoryRoomIsolation(t *testing.T) {
	m := NewMemory()
	defer m.Close()

	var a, b counter
	if _, err := m.Subscribe("room1", a.handle, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Subscribe("room2", b.handle, nil); err != nil {
		t.Fatal(err)
	}

	if err := m.Publish(context.Background(), "room1", noteIn("room1")); err != nil {
		t.Fatal(err)
	}

	waitFor(t, func() bool { return a.len() == 1 })
	if b.len() != 0 {
		t.Fatalf("room2 must not see room1 traffic, got %d events", b.len())
	}
}

func TestMemoryUnsubscribeStopsDelivery(t *testing.T) {
	m := NewMemory()
	defer m.Close()

	var a counter
	unsubscribe, err := m.Subscribe("room1", a.handle, nil)
	if err != nil {
		t.Fatal(err)
	}

	if err := m.Publish(context.Background(), "room1", noteIn("room1")); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return a.len() == 1 })

	unsubscribe()
	if err := m.Publish(context.Background(), "room1", noteIn("room1")); err != nil {
		t.Fatal(err)
	}

	time.Sleep(50 * time.Millisecond)
	if a.len() != 1 {
		t.Fatalf("unsubscribed handler received %d events", a.len())
	}

	// A second call is harmless.
	unsubscribe()
}

func TestMemoryPublishToEmptyRoom(t *testing.T) {
	m := NewMemory()
	defer m.Close()

	if err := m.Publish(context.Background(), "empty", noteIn("empty")); err != nil {
		t.Fatalf("publishing to a room with no subscribers must succeed: %v", err)
	}
}

func TestMemoryClose(t *testing.T) {
	m := NewMemory()

	var a counter
	if _, err := m.Subscribe("room1", a.handle, nil); err != nil {
		t.Fatal(err)
	}

	if err := m.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if err := m.Publish(context.Background(), "room1", noteIn("room1")); !errors.Is(err, ErrBusClosed) {
		t.Fatalf("publish after close = %v, want ErrBusClosed", err)
	}
	if _, err := m.Subscribe("room1", a.handle, nil); !errors.Is(err, ErrBusClosed) {
		t.Fatalf("subscribe after close = %v, want ErrBusClosed", err)
	}

	// Idempotent.
	if err := m.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
}
