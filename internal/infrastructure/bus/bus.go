// Package bus is the message-bus boundary for note events. The sync core
// consumes it through the narrow Publish/Subscribe surface; fan-out,
// durability, and transport are the implementation's problem.
package bus

import (
	"context"
	"errors"

	"github.com/marloweh/tutti/internal/domain"
)

var (
	ErrBusClosed = errors.New("bus is closed")
)

// Handler receives one delivered note event. Deliveries for a single
// subscription arrive sequentially; the handler must not block for long.
type Handler func(event domain.NoteEvent)

// ErrorHandler receives asynchronous subscription errors.
type ErrorHandler func(err error)

// UnsubscribeFunc tears down one subscription. Safe to call more than once.
type UnsubscribeFunc func()

type Bus interface {
	// Publish sends an event to every subscriber of the room, including
	// the sender's own subscription. Echo suppression is the listener's
	// job, not the bus's.
	Publish(ctx context.Context, roomID string, event domain.NoteEvent) error

	// Subscribe registers a handler for a room's events. The listener
	// pipeline guarantees at most one active subscription per room per
	// client.
	Subscribe(roomID string, onEvent Handler, onError ErrorHandler) (UnsubscribeFunc, error)

	Close() error
}
