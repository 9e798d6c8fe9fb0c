package lifecycle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/marloweh/tutti/internal/domain"
	"github.com/marloweh/tutti/internal/infrastructure/logging"
	"github.com/marloweh/tutti/internal/protocol"
	"github.com/marloweh/tutti/internal/roomdoc"
)

type captureAudit struct {
	mu   sync.Mutex
	logs []*domain.RoomAuditLog
}

func (c *captureAudit) Log(_ context.Context, log *domain.RoomAuditLog) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logs = append(c.logs, log)
	return nil
}

func (c *captureAudit) GetByRoomID(context.Context, string, int) ([]domain.RoomAuditLog, error) {
	return nil, nil
}

func (c *captureAudit) GetByEventType(context.Context, domain.RoomEventType, time.Time, time.Time) ([]domain.RoomAuditLog, error) {
	return nil, nil
}

func (c *captureAudit) DeleteOlderThan(context.Context, time.Time) error { return nil }
func (c *captureAudit) EnsureIndexes(context.Context) error              { return nil }

type captureNotifier struct {
	closed []string
}

func (c *captureNotifier) RoomClosed(roomID string) {
	c.closed = append(c.closed, roomID)
}

// failingDocs wraps the store to make every delete fail.
type failingDocs struct {
	roomdoc.Store
}

func (f failingDocs) DeleteRoom(string) error { return errors.New("backing store unavailable") }

func setupRoom(t *testing.T, docs roomdoc.Store, participantIDs ...string) *domain.Room {
	t.Helper()
	room, err := domain.NewRoom("late-night-jam", participantIDs[0], false, 8)
	if err != nil {
		t.Fatal(err)
	}
	if err := docs.CreateRoom(room); err != nil {
		t.Fatal(err)
	}
	for _, id := range participantIDs {
		if err := docs.AddParticipant(room.ID, domain.Participant{ID: id, DisplayName: "player-" + id}); err != nil {
			t.Fatal(err)
		}
	}
	return room
}

func newTestManager(docs roomdoc.Store, audit domain.RoomAuditRepository, notifier Notifier) *Manager {
	return NewManager(Config{
		Docs:     docs,
		Audit:    audit,
		Notifier: notifier,
		Logger:   logging.NewNop(),
	})
}

func TestSweepClosesExpiredRoom(t *testing.T) {
	docs := roomdoc.NewMemory(0)
	audit := &captureAudit{}
	notifier := &captureNotifier{}
	m := newTestManager(docs, audit, notifier)

	room := setupRoom(t, docs, "host")

	base := time.Now()
	if err := docs.SetHostLiveness(room.ID, base); err != nil {
		t.Fatal(err)
	}
	m.now = func() time.Time { return base.Add(protocol.HostLivenessTimeout + time.Second) }

	m.Sweep(context.Background())

	if _, err := docs.GetRoom(room.ID); !errors.Is(err, domain.ErrRoomNotFound) {
		t.Fatalf("expired room must be deleted, lookup = %v", err)
	}
	if len(notifier.closed) != 1 || notifier.closed[0] != room.ID {
		t.Errorf("notifier must be told, closed = %v", notifier.closed)
	}
	if len(audit.logs) != 1 || audit.logs[0].EventType != domain.EventRoomExpired {
		t.Errorf("expiry must be audited, logs = %v", audit.logs)
	}
}

func TestSweepKeepsRoomWithFreshHeartbeat(t *testing.T) {
	docs := roomdoc.NewMemory(0)
	m := newTestManager(docs, &captureAudit{}, nil)

	room := setupRoom(t, docs, "host")

	base := time.Now()
	if err := docs.SetHostLiveness(room.ID, base); err != nil {
		t.Fatal(err)
	}
	// Just inside the timeout.
	m.now = func() time.Time { return base.Add(protocol.HostLivenessTimeout - time.Second) }

	m.Sweep(context.Background())

	if _, err := docs.GetRoom(room.ID); err != nil {
		t.Fatalf("room with a fresh heartbeat must survive: %v", err)
	}
}

func TestSweepKeepsRoomWithCompany(t *testing.T) {
	docs := roomdoc.NewMemory(0)
	notifier := &captureNotifier{}
	m := newTestManager(docs, &captureAudit{}, notifier)

	room := setupRoom(t, docs, "host", "guest")

	base := time.Now()
	if err := docs.SetHostLiveness(room.ID, base); err != nil {
		t.Fatal(err)
	}
	m.now = func() time.Time { return base.Add(protocol.HostLivenessTimeout * 2) }

	m.Sweep(context.Background())

	if _, err := docs.GetRoom(room.ID); err != nil {
		t.Fatalf("a silent host with company must not expire the room: %v", err)
	}
	if len(notifier.closed) != 0 {
		t.Errorf("notifier must stay quiet, closed = %v", notifier.closed)
	}
}

func TestSweepRetriesAfterDeleteFailure(t *testing.T) {
	docs := roomdoc.NewMemory(0)
	audit := &captureAudit{}
	m := newTestManager(failingDocs{docs}, audit, nil)

	room := setupRoom(t, docs, "host")

	base := time.Now()
	if err := docs.SetHostLiveness(room.ID, base); err != nil {
		t.Fatal(err)
	}
	m.now = func() time.Time { return base.Add(protocol.HostLivenessTimeout + time.Second) }

	m.Sweep(context.Background())

	// The room and its liveness record survive, so a later sweep retries.
	if _, err := docs.GetRoom(room.ID); err != nil {
		t.Fatalf("room must survive a failed delete: %v", err)
	}
	if _, err := docs.HostLiveness(room.ID); err != nil {
		t.Fatalf("liveness record must survive a failed delete: %v", err)
	}
	if len(audit.logs) != 0 {
		t.Errorf("no expiry may be audited for a failed delete, logs = %v", audit.logs)
	}
}

func TestHeartbeatRefreshesLiveness(t *testing.T) {
	docs := roomdoc.NewMemory(0)
	room := setupRoom(t, docs, "host")

	stale := time.Now().Add(-time.Hour)
	if err := docs.SetHostLiveness(room.ID, stale); err != nil {
		t.Fatal(err)
	}

	hb := NewHeartbeat(docs, logging.NewNop(), room.ID, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hb.Run(ctx)
		close(done)
	}()

	// The first beat lands immediately, before the first tick.
	deadline := time.Now().Add(2 * time.Second)
	for {
		seen, err := docs.HostLiveness(room.ID)
		if err != nil {
			t.Fatal(err)
		}
		if seen.After(stale) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("heartbeat did not refresh liveness")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("heartbeat did not stop on context cancel")
	}
}
