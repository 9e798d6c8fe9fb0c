package domain

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/marloweh/tutti/internal/protocol"
)

var (
	ErrMissingPitch      = errors.New("note event has no pitch")
	ErrMissingInstrument = errors.New("note event has no instrument")
	ErrMissingIdentity   = errors.New("local identity is not set")
	ErrMissingRoom       = errors.New("room id is not set")
)

// NoteEvent is a single instrument-trigger message sent from one participant
// to a room. It is created at the moment of a local play action, immutable
// afterwards, and never persisted.
//
// ServerTimestamp is stamped by the sender at enrichment time (not by the
// bus) and is the basis for staleness checks. SessionID is unique per send
// and is the basis for duplicate detection. FrequencyHz is optional on the
// wire; consumers recompute it from PitchName when absent.
type NoteEvent struct {
	PitchName       string  `json:"pitchName"`
	Instrument      string  `json:"instrument"`
	ParticipantID   string  `json:"participantId"`
	ParticipantName string  `json:"participantName"`
	ClientTimestamp string  `json:"clientTimestamp"`
	ServerTimestamp int64   `json:"serverTimestamp"`
	FrequencyHz     float64 `json:"frequencyHz,omitempty"`
	Velocity        float64 `json:"velocity"`
	DurationMs      int     `json:"durationMs"`
	SessionID       string  `json:"sessionId"`
	RoomID          string  `json:"roomId"`
}

// Age reports how far the event's origination time lies from now, preferring
// the sender-stamped ServerTimestamp and falling back to the client
// timestamp. The result is an absolute distance so clock skew in either
// direction counts against the staleness budget.
func (e *NoteEvent) Age(now time.Time) time.Duration {
	origin := e.ServerTimestamp
	if origin == 0 {
		if t, err := time.Parse(time.RFC3339Nano, e.ClientTimestamp); err == nil {
			origin = t.UnixMilli()
		}
	}
	if origin == 0 {
		// No usable timestamp at all: treat as infinitely old.
		return time.Duration(1<<62 - 1)
	}

	age := time.Duration(now.UnixMilli()-origin) * time.Millisecond
	if age < 0 {
		age = -age
	}
	return age
}

// Duration returns the clamped note duration.
func (e *NoteEvent) Duration() time.Duration {
	return time.Duration(ClampDuration(e.DurationMs)) * time.Millisecond
}

// HandleKey identifies the (pitch, participant) pair an active-note handle
// guards.
func (e *NoteEvent) HandleKey() string {
	return e.PitchName + "|" + e.ParticipantID
}

// ClampVelocity bounds a velocity to the protocol range. Zero (the zero
// value of an unset field) maps to the default rather than the minimum.
func ClampVelocity(v float64) float64 {
	if v == 0 {
		return protocol.DefaultVelocity
	}
	if v < protocol.MinVelocity {
		return protocol.MinVelocity
	}
	if v > protocol.MaxVelocity {
		return protocol.MaxVelocity
	}
	return v
}

// ClampDuration bounds a duration in milliseconds to the protocol range.
// Zero maps to the default.
func ClampDuration(ms int) int {
	if ms == 0 {
		return protocol.DefaultDurationMs
	}
	if ms < protocol.MinDurationMs {
		return protocol.MinDurationMs
	}
	if ms > protocol.MaxDurationMs {
		return protocol.MaxDurationMs
	}
	return ms
}

// NewSessionID builds a per-send identifier from the participant, the send
// time, and a random suffix. Uniqueness of the suffix is what makes redelivery
// of the same event detectable without comparing whole payloads.
func NewSessionID(participantID string, at time.Time) string {
	var suffix [4]byte
	_, _ = rand.Read(suffix[:])
	return fmt.Sprintf("%s-%d-%s", participantID, at.UnixMilli(), hex.EncodeToString(suffix[:]))
}
