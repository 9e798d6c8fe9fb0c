// Package broadcast turns local play actions into enriched note events and
// publishes them to the room's bus topic. Broadcasting is fire-and-forget:
// local playback must never wait on, or fail because of, the network.
package broadcast

import (
	"context"
	"time"

	"github.com/marloweh/tutti/internal/domain"
	"github.com/marloweh/tutti/internal/infrastructure/bus"
	"github.com/marloweh/tutti/internal/infrastructure/logging"
	"github.com/marloweh/tutti/internal/infrastructure/metrics"
)

// Identity names the local participant inside a room.
type Identity struct {
	RoomID          string
	ParticipantID   string
	ParticipantName string
}

// LocalAction is a raw play gesture before enrichment. Velocity and
// DurationMs of zero take protocol defaults; FrequencyHz of zero lets
// receivers derive the frequency from the pitch name.
type LocalAction struct {
	PitchName   string
	Instrument  string
	Velocity    float64
	DurationMs  int
	FrequencyHz float64
}

// ActivityToucher records that a room just saw a note. Publish outcome does
// not depend on it.
type ActivityToucher interface {
	TouchActivity(roomID string, at time.Time) error
}

type Broadcaster struct {
	bus    bus.Bus
	docs   ActivityToucher
	logger logging.Logger
	now    func() time.Time
}

func New(b bus.Bus, docs ActivityToucher, logger logging.Logger) *Broadcaster {
	return &Broadcaster{
		bus:    b,
		docs:   docs,
		logger: logger,
		now:    time.Now,
	}
}

// Broadcast validates, enriches, and publishes one action. It never returns
// an error: an invalid action or a failed publish is logged and dropped so
// the caller's local playback path stays unconditional.
func (b *Broadcaster) Broadcast(ctx context.Context, id Identity, action LocalAction) {
	if err := validate(id, action); err != nil {
		metrics.NotesDropped.WithLabelValues(metrics.DropReasonInvalid).Inc()
		b.logger.Warn(logging.Validation, logging.Publish, "dropped invalid play action", map[logging.ExtraKey]any{
			logging.RoomID:        id.RoomID,
			logging.ParticipantID: id.ParticipantID,
			logging.Pitch:         action.PitchName,
			logging.ErrorMessage:  err.Error(),
		})
		return
	}

	now := b.now()

	event := domain.NoteEvent{
		PitchName:       action.PitchName,
		Instrument:      action.Instrument,
		ParticipantID:   id.ParticipantID,
		ParticipantName: id.ParticipantName,
		ClientTimestamp: now.Format(time.RFC3339Nano),
		ServerTimestamp: now.UnixMilli(),
		FrequencyHz:     action.FrequencyHz,
		Velocity:        domain.ClampVelocity(action.Velocity),
		DurationMs:      domain.ClampDuration(action.DurationMs),
		SessionID:       domain.NewSessionID(id.ParticipantID, now),
		RoomID:          id.RoomID,
	}

	if err := b.bus.Publish(ctx, id.RoomID, event); err != nil {
		metrics.BusPublishErrors.Inc()
		b.logger.Error(logging.Bus, logging.Publish, "failed to publish note event", map[logging.ExtraKey]any{
			logging.RoomID:       id.RoomID,
			logging.SessionID:    event.SessionID,
			logging.ErrorMessage: err.Error(),
		})
		return
	}

	metrics.NotesPublished.WithLabelValues(id.RoomID).Inc()

	if b.docs != nil {
		if err := b.docs.TouchActivity(id.RoomID, now); err != nil {
			b.logger.Debug(logging.Rooms, logging.Heartbeat, "failed to touch room activity", map[logging.ExtraKey]any{
				logging.RoomID:       id.RoomID,
				logging.ErrorMessage: err.Error(),
			})
		}
	}
}

func validate(id Identity, action LocalAction) error {
	if action.PitchName == "" {
		return domain.ErrMissingPitch
	}
	if action.Instrument == "" {
		return domain.ErrMissingInstrument
	}
	if id.ParticipantID == "" {
		return domain.ErrMissingIdentity
	}
	if id.RoomID == "" {
		return domain.ErrMissingRoom
	}
	return nil
}
