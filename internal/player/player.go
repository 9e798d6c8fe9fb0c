// Package player is the last stop before synthesis for remote note events.
// It runs the echo filter, derives a frequency when the event carries none,
// and guards against retriggering a note that is still sounding for the same
// (pitch, participant) pair.
package player

import (
	"context"
	"sync"
	"time"

	"github.com/marloweh/tutti/internal/domain"
	"github.com/marloweh/tutti/internal/infrastructure/logging"
	"github.com/marloweh/tutti/internal/infrastructure/metrics"
	"github.com/marloweh/tutti/internal/protocol"
	"github.com/marloweh/tutti/internal/sync/echo"
)

// Engine renders a single note. The player does not care how.
type Engine interface {
	PlayNote(ctx context.Context, instrument domain.Instrument, freqHz, velocity float64, duration time.Duration, participantID string) error
}

type Player struct {
	engine  Engine
	filter  *echo.Filter
	localID string
	logger  logging.Logger
	now     func() time.Time

	mu     sync.Mutex
	active map[string]*time.Timer
	closed bool
}

func New(engine Engine, filter *echo.Filter, localID string, logger logging.Logger) *Player {
	return &Player{
		engine:  engine,
		filter:  filter,
		localID: localID,
		logger:  logger,
		now:     time.Now,
		active:  make(map[string]*time.Timer),
	}
}

// Play renders one remote note event and reports whether it reached
// synthesis. Filtered events return false: dropping a duplicate or an echo
// is normal operation, not a failure. Engine errors are logged and swallowed
// for the same reason, one bad render must not tear down the delivery
// pipeline.
func (p *Player) Play(ctx context.Context, event domain.NoteEvent) bool {
	if event.ParticipantID == p.localID {
		metrics.NotesDropped.WithLabelValues(metrics.DropReasonSelf).Inc()
		return false
	}

	if !p.filter.Accept(event) {
		metrics.NotesDropped.WithLabelValues(metrics.DropReasonEcho).Inc()
		return false
	}

	freq := event.FrequencyHz
	if freq <= 0 {
		derived, err := domain.Frequency(event.PitchName)
		if err != nil {
			metrics.NotesDropped.WithLabelValues(metrics.DropReasonInvalid).Inc()
			p.logger.Warn(logging.Audio, logging.Playback, "dropped note with unparseable pitch", map[logging.ExtraKey]any{
				logging.Pitch:         event.PitchName,
				logging.ParticipantID: event.ParticipantID,
				logging.ErrorMessage:  err.Error(),
			})
			return false
		}
		freq = derived
	}

	handleKey := event.HandleKey()

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return false
	}
	if _, sounding := p.active[handleKey]; sounding {
		p.mu.Unlock()
		metrics.NotesDropped.WithLabelValues(metrics.DropReasonRetrigger).Inc()
		return false
	}
	p.mu.Unlock()

	velocity := domain.ClampVelocity(event.Velocity)
	duration := event.Duration()
	instrument, _ := domain.ParseInstrument(event.Instrument)

	if err := p.engine.PlayNote(ctx, instrument, freq, velocity, duration, event.ParticipantID); err != nil {
		p.logger.Error(logging.Audio, logging.Playback, "synthesis failed for remote note", map[logging.ExtraKey]any{
			logging.Pitch:         event.PitchName,
			logging.ParticipantID: event.ParticipantID,
			logging.ErrorMessage:  err.Error(),
		})
		return false
	}

	metrics.NotesPlayed.Inc()

	// The handle outlives the note by a grace period so a retrigger racing
	// the note's tail still gets suppressed.
	p.mu.Lock()
	if !p.closed {
		p.active[handleKey] = time.AfterFunc(duration+protocol.HandleGrace, func() {
			p.release(handleKey)
		})
	}
	p.mu.Unlock()

	return true
}

func (p *Player) release(handleKey string) {
	p.mu.Lock()
	delete(p.active, handleKey)
	p.mu.Unlock()
}

// ActiveHandles reports how many (pitch, participant) pairs are currently
// guarded against retriggering.
func (p *Player) ActiveHandles() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.active)
}

func (p *Player) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.closed = true

	for key, timer := range p.active {
		timer.Stop()
		delete(p.active, key)
	}
}
