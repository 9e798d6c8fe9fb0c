package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type RoomEventType string

const (
	EventRoomCreated       RoomEventType = "room_created"
	EventRoomDeleted       RoomEventType = "room_deleted"
	EventRoomExpired       RoomEventType = "room_expired"
	EventParticipantJoined RoomEventType = "participant_joined"
	EventParticipantLeft   RoomEventType = "participant_left"
	EventParticipantKicked RoomEventType = "participant_kicked"
	EventHostTransferred   RoomEventType = "host_transferred"
	EventRoomFullRejection RoomEventType = "room_full_rejected"
	EventSettingsUpdated   RoomEventType = "settings_updated"
)

// RoomAuditLog records a room lifecycle event for after-the-fact inspection.
// Note events are never audited; only membership and lifecycle transitions.
type RoomAuditLog struct {
	ID        string         `bson:"_id" json:"id"`
	RoomID    string         `bson:"room_id" json:"roomId"`
	EventType RoomEventType  `bson:"event_type" json:"eventType"`
	Timestamp time.Time      `bson:"timestamp" json:"timestamp"`
	Metadata  map[string]any `bson:"metadata,omitempty" json:"metadata,omitempty"`
}

type RoomAuditRepository interface {
	Log(ctx context.Context, log *RoomAuditLog) error
	GetByRoomID(ctx context.Context, roomID string, limit int) ([]RoomAuditLog, error)
	GetByEventType(ctx context.Context, eventType RoomEventType, from, to time.Time) ([]RoomAuditLog, error)
	DeleteOlderThan(ctx context.Context, before time.Time) error
	EnsureIndexes(ctx context.Context) error
}

func newAuditLog(roomID string, eventType RoomEventType, metadata map[string]any) *RoomAuditLog {
	return &RoomAuditLog{
		ID:        uuid.NewString(),
		RoomID:    roomID,
		EventType: eventType,
		Timestamp: time.Now(),
		Metadata:  metadata,
	}
}

func NewRoomCreatedLog(roomID string, isPrivate bool, maxParticipants int) *RoomAuditLog {
	return newAuditLog(roomID, EventRoomCreated, map[string]any{
		"private":          isPrivate,
		"max_participants": maxParticipants,
	})
}

func NewRoomDeletedLog(roomID, reason string, participantCount int) *RoomAuditLog {
	return newAuditLog(roomID, EventRoomDeleted, map[string]any{
		"reason":            reason,
		"participant_count": participantCount,
	})
}

// NewRoomExpiredLog marks an auto-close by the lifecycle manager.
func NewRoomExpiredLog(roomID string, hostSilentFor time.Duration, participantCount int) *RoomAuditLog {
	return newAuditLog(roomID, EventRoomExpired, map[string]any{
		"host_silent_seconds": hostSilentFor.Seconds(),
		"participant_count":   participantCount,
	})
}

func NewParticipantJoinedLog(roomID string, participantCount int) *RoomAuditLog {
	return newAuditLog(roomID, EventParticipantJoined, map[string]any{
		"participant_count": participantCount,
	})
}

func NewParticipantLeftLog(roomID string, participantCount int, wasHost bool) *RoomAuditLog {
	return newAuditLog(roomID, EventParticipantLeft, map[string]any{
		"participant_count": participantCount,
		"was_host":          wasHost,
	})
}

func NewParticipantKickedLog(roomID, kickedBy string) *RoomAuditLog {
	return newAuditLog(roomID, EventParticipantKicked, map[string]any{
		"kicked_by": kickedBy,
	})
}

func NewHostTransferredLog(roomID, reason string) *RoomAuditLog {
	return newAuditLog(roomID, EventHostTransferred, map[string]any{
		"reason": reason, // "host_left", "manual_transfer"
	})
}

func NewRoomFullRejectionLog(roomID string, maxParticipants int) *RoomAuditLog {
	return newAuditLog(roomID, EventRoomFullRejection, map[string]any{
		"max_participants": maxParticipants,
	})
}

func NewSettingsUpdatedLog(roomID, updatedBy string) *RoomAuditLog {
	return newAuditLog(roomID, EventSettingsUpdated, map[string]any{
		"updated_by": updatedBy,
	})
}
