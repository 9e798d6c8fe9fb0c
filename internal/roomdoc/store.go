// Package roomdoc is the authoritative room document store: room metadata,
// the participant roster, host liveness, and change notification for
// connected clients. The sync core and the lifecycle manager both sit on
// top of this interface.
package roomdoc

import (
	"time"

	"github.com/marloweh/tutti/internal/domain"
)

// RoomData is one room's full document: the room record plus its roster.
type RoomData struct {
	Room         domain.Room          `json:"room"`
	Participants []domain.Participant `json:"participants"`
}

// SettingsPatch updates a subset of a room's settings; nil fields are left
// untouched.
type SettingsPatch struct {
	Name            *string
	IsPrivate       *bool
	MaxParticipants *int
	AllowGuestJoin  *bool
	RequireApproval *bool
	EnableChat      *bool
	EnableVoice     *bool
	Tempo           *int
	Key             *string
	Scale           *string
}

// DataHandler receives the room document after every mutation.
type DataHandler func(data RoomData)

// ErrorHandler receives asynchronous listen failures.
type ErrorHandler func(err error)

type Store interface {
	CreateRoom(room *domain.Room) error
	GetRoom(roomID string) (RoomData, error)
	// UpdateRoomSettings applies a patch; only the host may call it, which
	// the caller establishes via the room's CreatedBy.
	UpdateRoomSettings(roomID string, patch SettingsPatch) error
	// TouchActivity refreshes the room's last-activity and last-note
	// timestamps.
	TouchActivity(roomID string, at time.Time) error
	DeleteRoom(roomID string) error

	// AddParticipant joins a participant, enforcing capacity. The first
	// participant in (the creator) gets host permissions.
	AddParticipant(roomID string, p domain.Participant) error
	// RemoveParticipant leaves a participant. If the departing participant
	// was the host and others remain, the longest-present remaining
	// participant is promoted.
	RemoveParticipant(roomID, participantID string) error
	UpdateParticipantInstrument(roomID, participantID, instrumentName string) error
	ToggleParticipantMute(roomID, participantID string) (muted bool, err error)
	// SetParticipantConnection records a connection-quality measurement
	// taken by the transport layer.
	SetParticipantConnection(roomID, participantID string, quality domain.ConnectionQuality) error
	Participants(roomID string) ([]domain.Participant, error)

	// SetHostLiveness records when the room's host was last seen.
	SetHostLiveness(roomID string, at time.Time) error
	HostLiveness(roomID string) (time.Time, error)

	// Listen subscribes to the room's document changes. The cancel func
	// stops delivery synchronously.
	Listen(roomID string, onData DataHandler, onError ErrorHandler) (cancel func(), err error)

	// Rooms lists every live room document.
	Rooms() ([]RoomData, error)
}
