// Package lifecycle reaps rooms whose host has gone silent. A sweep runs on
// a fixed tick; a room is closed when its host has not been seen for the
// liveness timeout and at most one participant remains.
package lifecycle

import (
	"context"
	"time"

	"github.com/marloweh/tutti/internal/domain"
	"github.com/marloweh/tutti/internal/infrastructure/logging"
	"github.com/marloweh/tutti/internal/infrastructure/metrics"
	"github.com/marloweh/tutti/internal/protocol"
	"github.com/marloweh/tutti/internal/roomdoc"
)

// Notifier tells connected clients that a room went away.
type Notifier interface {
	RoomClosed(roomID string)
}

type Config struct {
	Docs     roomdoc.Store
	Audit    domain.RoomAuditRepository
	Notifier Notifier
	Logger   logging.Logger

	// Tick and HostTimeout override the protocol defaults; zero keeps them.
	Tick        time.Duration
	HostTimeout time.Duration
}

type Manager struct {
	docs     roomdoc.Store
	audit    domain.RoomAuditRepository
	notifier Notifier
	logger   logging.Logger

	tick        time.Duration
	hostTimeout time.Duration
	now         func() time.Time
}

func NewManager(cfg Config) *Manager {
	tick := cfg.Tick
	if tick <= 0 {
		tick = protocol.LifecycleTick
	}
	hostTimeout := cfg.HostTimeout
	if hostTimeout <= 0 {
		hostTimeout = protocol.HostLivenessTimeout
	}

	return &Manager{
		docs:        cfg.Docs,
		audit:       cfg.Audit,
		notifier:    cfg.Notifier,
		logger:      cfg.Logger,
		tick:        tick,
		hostTimeout: hostTimeout,
		now:         time.Now,
	}
}

// Run sweeps until the context is canceled.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.tick)
	defer ticker.Stop()

	m.logger.Info(logging.Lifecycle, logging.Startup, "lifecycle manager started", map[logging.ExtraKey]any{})

	for {
		select {
		case <-ticker.C:
			m.Sweep(ctx)
		case <-ctx.Done():
			m.logger.Info(logging.Lifecycle, logging.Eviction, "lifecycle manager stopped", nil)
			return
		}
	}
}

// Sweep examines every room once and closes the expired ones.
func (m *Manager) Sweep(ctx context.Context) {
	rooms, err := m.docs.Rooms()
	if err != nil {
		m.logger.Error(logging.Lifecycle, logging.Eviction, "failed to list rooms for sweep", map[logging.ExtraKey]any{
			logging.ErrorMessage: err.Error(),
		})
		return
	}

	now := m.now()
	for _, data := range rooms {
		m.sweepRoom(ctx, data, now)
	}
}

func (m *Manager) sweepRoom(ctx context.Context, data roomdoc.RoomData, now time.Time) {
	roomID := data.Room.ID

	hostSeen, err := m.docs.HostLiveness(roomID)
	if err != nil {
		// The room vanished between listing and inspection; nothing to do.
		return
	}

	silentFor := now.Sub(hostSeen)
	if silentFor < m.hostTimeout {
		return
	}
	// A silent host with company is not expiry; the remaining participants
	// keep the room alive until a host promotion or their own departure.
	if len(data.Participants) > 1 {
		return
	}

	if err := m.docs.DeleteRoom(roomID); err != nil {
		// Leaving the liveness record in place means the next sweep retries.
		m.logger.Error(logging.Lifecycle, logging.Eviction, "failed to delete expired room", map[logging.ExtraKey]any{
			logging.RoomID:       roomID,
			logging.ErrorMessage: err.Error(),
		})
		return
	}

	metrics.RoomsAutoClosed.Inc()

	if err := m.audit.Log(ctx, domain.NewRoomExpiredLog(roomID, silentFor, len(data.Participants))); err != nil {
		m.logger.Warn(logging.Lifecycle, logging.Eviction, "failed to write expiry audit log", map[logging.ExtraKey]any{
			logging.RoomID:       roomID,
			logging.ErrorMessage: err.Error(),
		})
	}

	if m.notifier != nil {
		m.notifier.RoomClosed(roomID)
	}

	m.logger.Info(logging.Lifecycle, logging.Eviction, "closed expired room", map[logging.ExtraKey]any{
		logging.RoomID: roomID,
		logging.AgeMs:  silentFor.Milliseconds(),
	})
}
