package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/marloweh/tutti/internal/infrastructure/validate"
)

type Permission string

const (
	PermPlay  Permission = "play"
	PermAdmin Permission = "admin"
	PermMute  Permission = "mute"
	PermKick  Permission = "kick"
)

type ConnectionQuality string

const (
	ConnectionGood ConnectionQuality = "good"
	ConnectionFair ConnectionQuality = "fair"
	ConnectionPoor ConnectionQuality = "poor"
)

// ClassifyConnection buckets a measured round-trip time. The thresholds are
// coarse on purpose; the value drives a three-state indicator, not routing.
func ClassifyConnection(rtt time.Duration) ConnectionQuality {
	switch {
	case rtt < 100*time.Millisecond:
		return ConnectionGood
	case rtt < 300*time.Millisecond:
		return ConnectionFair
	default:
		return ConnectionPoor
	}
}

// Participant is one member of a room. Created on join, mutated on
// instrument switch / mute / activity, removed on leave or host kick.
// At most one participant per room holds the admin permissions; the room
// document store enforces that, not this type.
type Participant struct {
	ID             string       `json:"id"`
	DisplayName    string       `json:"displayName"`
	Avatar         string       `json:"avatar,omitempty"`
	Instrument     Instrument   `json:"-"`
	InstrumentName string       `json:"instrument"`
	IsActive       bool         `json:"isActive"`
	IsMuted        bool         `json:"isMuted"`
	LastActivityMs int64        `json:"lastActivityMs"`
	AudioLevel     float64      `json:"audioLevel"`
	Permissions    []Permission `json:"permissions"`

	// Connection is measured by the ws layer from ping round trips; empty
	// until the first pong arrives.
	Connection ConnectionQuality `json:"connectionQuality,omitempty"`
}

// NewParticipant validates the display name and builds a player-permission
// participant on the given instrument.
func NewParticipant(rawName, instrumentName string) (*Participant, error) {
	validateName := validate.Compose(
		validate.Required(),
		validate.MinLength(2),
		validate.MaxLength(32),
		validate.NoSpaces(),
		validate.Matches(`^[a-zA-Z0-9][a-zA-Z0-9_-]*[a-zA-Z0-9]$|^[a-zA-Z0-9]$`,
			"display name can only contain letters, numbers, underscores, and hyphens (cannot start/end with _ or -)"),
	)
	if err := validateName(rawName); err != nil {
		return nil, err
	}

	instr, _ := ParseInstrument(instrumentName)

	return &Participant{
		ID:             uuid.NewString(),
		DisplayName:    strings.TrimSpace(rawName),
		Instrument:     instr,
		InstrumentName: instr.String(),
		IsActive:       true,
		LastActivityMs: time.Now().UnixMilli(),
		Permissions:    []Permission{PermPlay},
	}, nil
}

func (p *Participant) HasPermission(perm Permission) bool {
	for _, have := range p.Permissions {
		if have == perm {
			return true
		}
	}
	return false
}

// GrantHost gives the participant the full host permission set.
func (p *Participant) GrantHost() {
	p.Permissions = []Permission{PermPlay, PermAdmin, PermMute, PermKick}
}

func (p *Participant) IsHost() bool {
	return p.HasPermission(PermAdmin)
}

// Touch refreshes the participant's activity timestamp.
func (p *Participant) Touch(at time.Time) {
	p.LastActivityMs = at.UnixMilli()
}
