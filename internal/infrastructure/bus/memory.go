package bus

import (
	"context"
	"sync"

	"github.com/marloweh/tutti/internal/domain"
)

const subscriberBuffer = 64

// Memory is an in-process Bus. Every subscriber gets its own buffered
// channel drained by its own goroutine, so one slow handler cannot delay
// delivery to the others or block the publisher.
type Memory struct {
	mu     sync.Mutex
	rooms  map[string]map[*memorySub]struct{}
	closed bool
}

type memorySub struct {
	roomID  string
	ch      chan domain.NoteEvent
	onError ErrorHandler
	once    sync.Once
}

func NewMemory() *Memory {
	return &Memory{
		rooms: make(map[string]map[*memorySub]struct{}),
	}
}

func (m *Memory) Publish(_ context.Context, roomID string, event domain.NoteEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrBusClosed
	}

	for sub := range m.rooms[roomID] {
		// Non-blocking: a subscriber that cannot keep up loses events
		// rather than stalling the room.
		select {
		case sub.ch <- event:
		default:
		}
	}
	return nil
}

func (m *Memory) Subscribe(roomID string, onEvent Handler, onError ErrorHandler) (UnsubscribeFunc, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrBusClosed
	}

	sub := &memorySub{
		roomID:  roomID,
		ch:      make(chan domain.NoteEvent, subscriberBuffer),
		onError: onError,
	}

	if m.rooms[roomID] == nil {
		m.rooms[roomID] = make(map[*memorySub]struct{})
	}
	m.rooms[roomID][sub] = struct{}{}

	go func() {
		for event := range sub.ch {
			onEvent(event)
		}
	}()

	return func() { m.unsubscribe(sub) }, nil
}

func (m *Memory) unsubscribe(sub *memorySub) {
	m.mu.Lock()
	if subs, ok := m.rooms[sub.roomID]; ok {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(m.rooms, sub.roomID)
		}
	}
	m.mu.Unlock()

	sub.once.Do(func() { close(sub.ch) })
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true

	for _, subs := range m.rooms {
		for sub := range subs {
			sub.once.Do(func() { close(sub.ch) })
		}
	}
	m.rooms = make(map[string]map[*memorySub]struct{})
	return nil
}
