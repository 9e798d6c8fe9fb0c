package lifecycle

import (
	"context"
	"time"

	"github.com/marloweh/tutti/internal/infrastructure/logging"
	"github.com/marloweh/tutti/internal/protocol"
	"github.com/marloweh/tutti/internal/roomdoc"
)

// Heartbeat refreshes host liveness for one room while its host stays
// connected. The ws layer runs one per hosted room and cancels it when the
// host's socket closes.
type Heartbeat struct {
	docs     roomdoc.Store
	logger   logging.Logger
	roomID   string
	interval time.Duration
}

func NewHeartbeat(docs roomdoc.Store, logger logging.Logger, roomID string, interval time.Duration) *Heartbeat {
	if interval <= 0 {
		interval = protocol.HeartbeatInterval
	}
	return &Heartbeat{
		docs:     docs,
		logger:   logger,
		roomID:   roomID,
		interval: interval,
	}
}

// Run beats until the context is canceled. The first beat fires immediately
// so a freshly created room never starts its life already aging.
func (h *Heartbeat) Run(ctx context.Context) {
	h.beat()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			h.beat()
		case <-ctx.Done():
			return
		}
	}
}

func (h *Heartbeat) beat() {
	if err := h.docs.SetHostLiveness(h.roomID, time.Now()); err != nil {
		h.logger.Debug(logging.Lifecycle, logging.Heartbeat, "failed to refresh host liveness", map[logging.ExtraKey]any{
			logging.RoomID:       h.roomID,
			logging.ErrorMessage: err.Error(),
		})
	}
}
