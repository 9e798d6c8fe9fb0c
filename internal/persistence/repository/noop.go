package repository

import (
	"context"
	"time"

	"github.com/marloweh/tutti/internal/domain"
)

// noopAuditRepository discards audit writes. Used when Mongo is disabled so
// the lifecycle manager and room handlers never branch on persistence.
type noopAuditRepository struct{}

func NewNoopAuditRepository() domain.RoomAuditRepository {
	return noopAuditRepository{}
}

func (noopAuditRepository) Log(context.Context, *domain.RoomAuditLog) error { return nil }

func (noopAuditRepository) GetByRoomID(context.Context, string, int) ([]domain.RoomAuditLog, error) {
	return nil, nil
}

func (noopAuditRepository) GetByEventType(context.Context, domain.RoomEventType, time.Time, time.Time) ([]domain.RoomAuditLog, error) {
	return nil, nil
}

func (noopAuditRepository) DeleteOlderThan(context.Context, time.Time) error { return nil }

func (noopAuditRepository) EnsureIndexes(context.Context) error { return nil }
