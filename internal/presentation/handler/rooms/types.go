package rooms

import (
	"time"

	"github.com/marloweh/tutti/internal/domain"
)

type createRoomRequest struct {
	Name            string `json:"name"`
	DisplayName     string `json:"displayName"`
	Instrument      string `json:"instrument"`
	IsPrivate       bool   `json:"isPrivate"`
	MaxParticipants int    `json:"maxParticipants"`
}

type createRoomResponse struct {
	RoomID    string    `json:"roomId"`
	JoinCode  string    `json:"joinCode,omitempty"`
	HostID    string    `json:"hostId"`
	CreatedAt time.Time `json:"createdAt"`
}

type roomResponse struct {
	Room         domain.Room          `json:"room"`
	Participants []domain.Participant `json:"participants"`
}

type updateSettingsRequest struct {
	Name            *string `json:"name,omitempty"`
	IsPrivate       *bool   `json:"isPrivate,omitempty"`
	MaxParticipants *int    `json:"maxParticipants,omitempty"`
	AllowGuestJoin  *bool   `json:"allowGuestJoin,omitempty"`
	RequireApproval *bool   `json:"requireApproval,omitempty"`
	EnableChat      *bool   `json:"enableChat,omitempty"`
	EnableVoice     *bool   `json:"enableVoice,omitempty"`
	Tempo           *int    `json:"tempo,omitempty"`
	Key             *string `json:"key,omitempty"`
	Scale           *string `json:"scale,omitempty"`
}

type setInstrumentRequest struct {
	Instrument string `json:"instrument"`
}

type kickRequest struct {
	ParticipantID string `json:"participantId"`
}

type muteResponse struct {
	ParticipantID string `json:"participantId"`
	IsMuted       bool   `json:"isMuted"`
}

type auditResponse struct {
	Logs []domain.RoomAuditLog `json:"logs"`
}
