package domain

import (
	"crypto/rand"
	"errors"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/marloweh/tutti/internal/infrastructure/validate"
)

const (
	DefaultMaxParticipants = 8
	joinCodeLength         = 6

	joinCodeChars = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

var (
	charsetLen = big.NewInt(int64(len(joinCodeChars)))

	ErrRoomNotFound        = errors.New("room not found")
	ErrRoomAlreadyExists   = errors.New("room already exists")
	ErrRoomFull            = errors.New("room is full")
	ErrRoomClosed          = errors.New("room is closed")
	ErrParticipantNotFound = errors.New("participant not found")
	ErrNotHost             = errors.New("participant is not the host")
)

// RoomSettings are the host-editable knobs. Tempo/Key/Scale feed the game
// session; the booleans gate join and side-channel behavior.
type RoomSettings struct {
	AllowGuestJoin  bool   `json:"allowGuestJoin"`
	RequireApproval bool   `json:"requireApproval"`
	EnableChat      bool   `json:"enableChat"`
	EnableVoice     bool   `json:"enableVoice"`
	Tempo           int    `json:"tempo"`
	Key             string `json:"key"`
	Scale           string `json:"scale"`
}

// Room is the shared-session record. Created on room creation, mutated by
// host-only settings operations, destroyed by explicit close or by the
// lifecycle manager.
type Room struct {
	ID              string       `json:"id"`
	Name            string       `json:"name"`
	IsPrivate       bool         `json:"isPrivate"`
	JoinCode        string       `json:"joinCode,omitempty"`
	MaxParticipants int          `json:"maxParticipants"`
	CreatedBy       string       `json:"createdBy"`
	CreatedAt       time.Time    `json:"createdAt"`
	Settings        RoomSettings `json:"settings"`

	// LastActivity / LastNote are unix-ms timestamps refreshed best-effort
	// by the broadcast pipeline.
	LastActivity int64 `json:"lastActivity"`
	LastNote     int64 `json:"lastNoteTimestamp"`
}

func validateRoomName(raw string) error {
	v := validate.Compose(
		validate.Required(),
		validate.MinLength(1),
		validate.MaxLength(64),
	)
	return v(raw)
}

// NewRoom builds a room owned by the creating participant. Private rooms get
// a short human-typable join code.
func NewRoom(name, createdBy string, isPrivate bool, maxParticipants int) (*Room, error) {
	if err := validateRoomName(name); err != nil {
		return nil, err
	}
	if maxParticipants <= 0 {
		maxParticipants = DefaultMaxParticipants
	}

	room := &Room{
		ID:              uuid.NewString(),
		Name:            strings.TrimSpace(name),
		IsPrivate:       isPrivate,
		MaxParticipants: maxParticipants,
		CreatedBy:       createdBy,
		CreatedAt:       time.Now(),
		Settings: RoomSettings{
			AllowGuestJoin: true,
			EnableChat:     true,
			Tempo:          120,
			Key:            "C",
			Scale:          "major",
		},
	}

	if isPrivate {
		code, err := generateJoinCode()
		if err != nil {
			return nil, err
		}
		room.JoinCode = code
	}

	return room, nil
}

func (r *Room) IsHost(participantID string) bool {
	return r.CreatedBy != "" && r.CreatedBy == participantID
}

func generateJoinCode() (string, error) {
	var sb strings.Builder
	sb.Grow(joinCodeLength)

	for i := 0; i < joinCodeLength; i++ {
		n, err := rand.Int(rand.Reader, charsetLen)
		if err != nil {
			return "", err
		}
		sb.WriteByte(joinCodeChars[n.Int64()])
	}

	return sb.String(), nil
}
