// Package listener manages a client's single subscription to a room's note
// stream. It owns the subscription lifecycle state machine and performs the
// first two delivery checks: drop our own notes, drop notes older than the
// staleness threshold. Everything that survives goes to the registered
// event callback.
package listener

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/marloweh/tutti/internal/domain"
	"github.com/marloweh/tutti/internal/infrastructure/bus"
	"github.com/marloweh/tutti/internal/infrastructure/logging"
	"github.com/marloweh/tutti/internal/infrastructure/metrics"
	"github.com/marloweh/tutti/internal/protocol"
)

type State int

const (
	Idle State = iota
	SettingUp
	Active
	TearingDown
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case SettingUp:
		return "setting_up"
	case Active:
		return "active"
	case TearingDown:
		return "tearing_down"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

var (
	ErrAlreadyActive = errors.New("listener is already active")
	ErrDebounced     = errors.New("listener setup attempted too soon after the last attempt")
	ErrStopped       = errors.New("listener stopped during setup")
)

type Config struct {
	Bus     bus.Bus
	LocalID string
	RoomID  string

	// OnEvent receives notes that passed the self and staleness checks.
	OnEvent func(event domain.NoteEvent)
	// OnError receives asynchronous subscription failures. The listener
	// has already reset itself to Idle when it fires.
	OnError func(err error)

	Logger logging.Logger

	// Staleness overrides the default threshold; zero keeps the default.
	Staleness time.Duration
	// Debounce overrides the default setup debounce window; zero keeps the
	// default.
	Debounce time.Duration
}

// Listener is one client's room subscription. All state transitions happen
// under the mutex; the delivery path checks mounted under the same mutex so
// a Stop concurrent with a delivery cannot leak a note into a dead pipeline.
type Listener struct {
	cfg       Config
	staleness time.Duration
	debounce  time.Duration
	now       func() time.Time

	mu            sync.Mutex
	state         State
	mounted       bool
	unsubscribe   bus.UnsubscribeFunc
	lastAttempt   time.Time
	stopRequested bool
}

func New(cfg Config) *Listener {
	staleness := cfg.Staleness
	if staleness <= 0 {
		staleness = protocol.StalenessThreshold
	}
	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = protocol.SetupDebounce
	}

	return &Listener{
		cfg:       cfg,
		staleness: staleness,
		debounce:  debounce,
		now:       time.Now,
	}
}

// Start subscribes to the room's note stream. Repeated calls within the
// debounce window are rejected so a flapping connection cannot stack
// subscriptions.
func (l *Listener) Start() error {
	l.mu.Lock()

	if l.state == Active || l.state == SettingUp {
		l.mu.Unlock()
		return ErrAlreadyActive
	}

	now := l.now()
	if !l.lastAttempt.IsZero() && now.Sub(l.lastAttempt) < l.debounce {
		l.mu.Unlock()
		return ErrDebounced
	}
	l.lastAttempt = now
	l.state = SettingUp
	l.mu.Unlock()

	unsubscribe, err := l.cfg.Bus.Subscribe(l.cfg.RoomID, l.handle, l.fail)
	if err != nil {
		l.mu.Lock()
		l.state = Idle
		l.stopRequested = false
		l.mu.Unlock()
		return fmt.Errorf("failed to subscribe to room %s: %w", l.cfg.RoomID, err)
	}

	l.mu.Lock()
	if l.stopRequested {
		// A Stop landed while Subscribe was in flight; nobody else will tear
		// this subscription down, so finish the stop here.
		l.stopRequested = false
		l.state = Idle
		l.mu.Unlock()
		unsubscribe()
		return ErrStopped
	}
	l.state = Active
	l.mounted = true
	l.unsubscribe = unsubscribe
	l.mu.Unlock()

	metrics.ActiveSubscriptions.Inc()

	if l.cfg.Logger != nil {
		l.cfg.Logger.Info(logging.Bus, logging.Subscribe, "listener active", map[logging.ExtraKey]any{
			logging.RoomID:        l.cfg.RoomID,
			logging.ParticipantID: l.cfg.LocalID,
		})
	}

	return nil
}

// Stop tears the subscription down synchronously. On return no further
// events will reach OnEvent, even if the bus still has deliveries in flight.
func (l *Listener) Stop() {
	l.mu.Lock()
	if l.state == SettingUp {
		// Subscribe is still in flight; the completing Start sees the flag
		// and unsubscribes itself.
		l.stopRequested = true
		l.mu.Unlock()
		return
	}
	if l.state != Active {
		l.mu.Unlock()
		return
	}
	l.state = TearingDown
	l.mounted = false
	unsubscribe := l.unsubscribe
	l.unsubscribe = nil
	l.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}

	l.mu.Lock()
	l.state = Idle
	l.mu.Unlock()

	metrics.ActiveSubscriptions.Dec()

	if l.cfg.Logger != nil {
		l.cfg.Logger.Info(logging.Bus, logging.Unsubscribe, "listener stopped", map[logging.ExtraKey]any{
			logging.RoomID:        l.cfg.RoomID,
			logging.ParticipantID: l.cfg.LocalID,
		})
	}
}

func (l *Listener) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *Listener) handle(event domain.NoteEvent) {
	l.mu.Lock()
	mounted := l.mounted
	l.mu.Unlock()
	if !mounted {
		return
	}

	if event.ParticipantID == l.cfg.LocalID {
		metrics.NotesDropped.WithLabelValues(metrics.DropReasonSelf).Inc()
		return
	}

	age := event.Age(l.now())
	if age > l.staleness {
		metrics.NotesDropped.WithLabelValues(metrics.DropReasonStale).Inc()
		if l.cfg.Logger != nil {
			l.cfg.Logger.Debug(logging.Bus, logging.Subscribe, "dropped stale note", map[logging.ExtraKey]any{
				logging.RoomID:        l.cfg.RoomID,
				logging.ParticipantID: event.ParticipantID,
				logging.Pitch:         event.PitchName,
				logging.AgeMs:         age.Milliseconds(),
			})
		}
		return
	}

	if l.cfg.OnEvent != nil {
		l.cfg.OnEvent(event)
	}
}

func (l *Listener) fail(err error) {
	l.mu.Lock()
	wasActive := l.state == Active
	if wasActive {
		l.state = Idle
		l.mounted = false
		l.unsubscribe = nil
	}
	l.mu.Unlock()

	if wasActive {
		metrics.ActiveSubscriptions.Dec()
	}

	if l.cfg.Logger != nil {
		l.cfg.Logger.Error(logging.Bus, logging.Subscribe, "listener subscription failed", map[logging.ExtraKey]any{
			logging.RoomID:       l.cfg.RoomID,
			logging.ErrorMessage: err.Error(),
		})
	}

	if l.cfg.OnError != nil {
		l.cfg.OnError(err)
	}
}
