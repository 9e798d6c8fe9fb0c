// Package ws bridges room sockets to the sync core. Each connected client
// gets a listener pipeline (self filter, staleness check, echo filter) whose
// surviving notes are pushed down the socket, and its play frames go through
// the broadcaster onto the bus.
package ws

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/marloweh/tutti/internal/domain"
	"github.com/marloweh/tutti/internal/infrastructure/bus"
	"github.com/marloweh/tutti/internal/infrastructure/logging"
	"github.com/marloweh/tutti/internal/infrastructure/metrics"
	"github.com/marloweh/tutti/internal/infrastructure/ratelimiter"
	"github.com/marloweh/tutti/internal/lifecycle"
	"github.com/marloweh/tutti/internal/protocol"
	"github.com/marloweh/tutti/internal/roomdoc"
	"github.com/marloweh/tutti/internal/sync/broadcast"
	"github.com/marloweh/tutti/internal/sync/echo"
	"github.com/marloweh/tutti/internal/sync/listener"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	sendBuffer = 64
)

// Tunables are the deployment-tunable protocol knobs the socket layer
// threads into its pipelines. Zero values fall back to the defaults in
// internal/protocol.
type Tunables struct {
	Staleness         time.Duration
	EchoTTL           time.Duration
	SetupDebounce     time.Duration
	HeartbeatInterval time.Duration
}

type ClientConfig struct {
	Conn        *websocket.Conn
	Registry    *Registry
	Bus         bus.Bus
	Docs        roomdoc.Store
	Broadcaster *broadcast.Broadcaster
	Limiter     ratelimiter.Limiter
	Logger      logging.Logger

	RoomID      string
	Participant domain.Participant
	Tunables    Tunables
}

type Client struct {
	conn     *websocket.Conn
	registry *Registry
	docs     roomdoc.Store
	bcast    *broadcast.Broadcaster
	limiter  ratelimiter.Limiter
	logger   logging.Logger

	roomID         string
	participant    domain.Participant
	identity       broadcast.Identity
	isHost         bool
	heartbeatEvery time.Duration

	send chan Envelope

	filter     *echo.Filter
	listener   *listener.Listener
	cancelDocs func()
	cancelBeat context.CancelFunc

	sendMu    sync.Mutex
	sendDone  bool
	closeOnce sync.Once

	pingMu   sync.Mutex
	pingSent time.Time
}

func NewClient(cfg ClientConfig) *Client {
	c := &Client{
		conn:        cfg.Conn,
		registry:    cfg.Registry,
		docs:        cfg.Docs,
		bcast:       cfg.Broadcaster,
		limiter:     cfg.Limiter,
		logger:      cfg.Logger,
		roomID:      cfg.RoomID,
		participant: cfg.Participant,
		identity: broadcast.Identity{
			RoomID:          cfg.RoomID,
			ParticipantID:   cfg.Participant.ID,
			ParticipantName: cfg.Participant.DisplayName,
		},
		send: make(chan Envelope, sendBuffer),
	}

	echoTTL := cfg.Tunables.EchoTTL
	if echoTTL <= 0 {
		echoTTL = protocol.EchoTTL
	}
	c.heartbeatEvery = cfg.Tunables.HeartbeatInterval
	if c.heartbeatEvery <= 0 {
		c.heartbeatEvery = protocol.HeartbeatInterval
	}

	c.filter = echo.NewFilter(echoTTL, protocol.EchoBucket)
	c.listener = listener.New(listener.Config{
		Bus:       cfg.Bus,
		LocalID:   cfg.Participant.ID,
		RoomID:    cfg.RoomID,
		Staleness: cfg.Tunables.Staleness,
		Debounce:  cfg.Tunables.SetupDebounce,
		OnEvent:   c.deliverNote,
		OnError: func(err error) {
			c.enqueue(errorMessage("listener_failed", err.Error()))
		},
		Logger: cfg.Logger,
	})

	return c
}

// Run drives the connection to completion. It returns when the socket
// closes; all pipeline teardown has happened by then.
func (c *Client) Run(ctx context.Context, isHost bool) error {
	c.isHost = isHost

	if err := c.listener.Start(); err != nil {
		c.filter.Close()
		_ = c.conn.Close()
		return err
	}

	cancelDocs, err := c.docs.Listen(c.roomID, func(data roomdoc.RoomData) {
		c.enqueue(roomUpdatedMessage(data))
	}, func(err error) {
		c.enqueue(errorMessage("room_listener_failed", err.Error()))
	})
	if err != nil {
		c.listener.Stop()
		c.filter.Close()
		_ = c.conn.Close()
		return err
	}
	c.cancelDocs = cancelDocs

	if isHost {
		beatCtx, cancel := context.WithCancel(ctx)
		c.cancelBeat = cancel
		go lifecycle.NewHeartbeat(c.docs, c.logger, c.roomID, c.heartbeatEvery).Run(beatCtx)
	}

	c.registry.add(c)

	go c.writePump()
	c.readPump(ctx)
	return nil
}

func (c *Client) deliverNote(event domain.NoteEvent) {
	if !c.filter.Accept(event) {
		metrics.NotesDropped.WithLabelValues(metrics.DropReasonEcho).Inc()
		return
	}
	c.enqueue(noteMessage(event))
}

func (c *Client) enqueue(msg Envelope) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.sendDone {
		return
	}
	select {
	case c.send <- msg:
	default:
		// A client that cannot drain its queue loses frames rather than
		// blocking the room.
	}
}

func (c *Client) readPump(ctx context.Context) {
	defer c.shutdown()

	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.pingMu.Lock()
		sent := c.pingSent
		c.pingMu.Unlock()
		if !sent.IsZero() {
			quality := domain.ClassifyConnection(time.Since(sent))
			_ = c.docs.SetParticipantConnection(c.roomID, c.participant.ID, quality)
		}
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg Envelope
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("ws read error (participant %s): %v", c.participant.ID, err)
			}
			return
		}

		switch msg.Type {
		case TypeNotePlay:
			c.handlePlay(ctx, msg.Play)
		case TypeHeartbeat:
			c.handleHeartbeat()
		case TypeSetVolume:
			// volume is a client-local setting; nothing to do server-side
		case TypeGameStart, TypeGameEnd, TypeGameBeat:
			c.relayGame(msg)
		default:
			c.enqueue(errorMessage("unknown_type", "unsupported message type: "+msg.Type))
		}
	}
}

// handleHeartbeat refreshes host liveness. Only the host's beats count; a
// guest keeping an abandoned room alive would defeat the lifecycle sweep.
func (c *Client) handleHeartbeat() {
	if !c.isHost {
		return
	}
	_ = c.docs.SetHostLiveness(c.roomID, time.Now())
}

func (c *Client) handlePlay(ctx context.Context, play *PlayPayload) {
	if play == nil {
		c.enqueue(errorMessage("bad_payload", "note.play requires a play payload"))
		return
	}

	if !c.limiter.Allow(c.participant.ID) {
		metrics.NotesDropped.WithLabelValues(metrics.DropReasonRateLimited).Inc()
		c.enqueue(errorMessage("rate_limited", "too many notes, slow down"))
		return
	}

	c.bcast.Broadcast(ctx, c.identity, broadcast.LocalAction{
		PitchName:   play.PitchName,
		Instrument:  play.Instrument,
		Velocity:    play.Velocity,
		DurationMs:  play.DurationMs,
		FrequencyHz: play.FrequencyHz,
	})
}

// relayGame forwards a game control frame to the other clients in the room.
// Game session state lives on the clients; the server only fans it out.
func (c *Client) relayGame(msg Envelope) {
	out := Envelope{Type: TypeGameState, Game: msg.Game}
	for _, other := range c.registry.clients(c.roomID) {
		if other != c {
			other.enqueue(out)
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error (participant %s): %v", c.participant.ID, err)
				return
			}
		case <-ticker.C:
			c.pingMu.Lock()
			c.pingSent = time.Now()
			c.pingMu.Unlock()
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// shutdown tears the client down exactly once: pipeline first, then
// membership, then the socket.
func (c *Client) shutdown() {
	c.closeOnce.Do(func() {
		if c.cancelBeat != nil {
			c.cancelBeat()
		}
		if c.cancelDocs != nil {
			c.cancelDocs()
		}
		c.listener.Stop()
		c.filter.Close()
		c.registry.remove(c)

		if err := c.docs.RemoveParticipant(c.roomID, c.participant.ID); err != nil {
			c.logger.Debug(logging.Rooms, logging.Membership, "participant already removed", map[logging.ExtraKey]any{
				logging.RoomID:        c.roomID,
				logging.ParticipantID: c.participant.ID,
			})
		}

		c.sendMu.Lock()
		c.sendDone = true
		close(c.send)
		c.sendMu.Unlock()

		_ = c.conn.Close()
	})
}
