// Package session wires one client's room membership together: the document
// listener, the note listener, the broadcaster, the remote player, and the
// synthesis engine. It is the only package that owns the join/leave ordering.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/marloweh/tutti/internal/domain"
	"github.com/marloweh/tutti/internal/infrastructure/bus"
	"github.com/marloweh/tutti/internal/infrastructure/logging"
	"github.com/marloweh/tutti/internal/player"
	"github.com/marloweh/tutti/internal/protocol"
	"github.com/marloweh/tutti/internal/roomdoc"
	"github.com/marloweh/tutti/internal/state"
	"github.com/marloweh/tutti/internal/sync/broadcast"
	"github.com/marloweh/tutti/internal/sync/echo"
	"github.com/marloweh/tutti/internal/sync/listener"
)

type Config struct {
	Bus    bus.Bus
	Docs   roomdoc.Store
	Engine Engine
	Logger logging.Logger

	// Staleness and EchoTTL override the protocol defaults for the note
	// pipeline; zero values keep them.
	Staleness time.Duration
	EchoTTL   time.Duration
}

// Engine is the audio surface the session drives. *synth.Engine satisfies
// it; tests substitute a fake.
type Engine interface {
	player.Engine
	Initialize(localParticipantID string) error
	SetMasterVolume(volume float64)
	Initialized() bool
	Dispose()
}

// Session is one client's presence in at most one room at a time.
type Session struct {
	bus    bus.Bus
	docs   roomdoc.Store
	engine Engine
	logger logging.Logger

	staleness time.Duration
	echoTTL   time.Duration

	store *state.Store

	mu          sync.Mutex
	identity    broadcast.Identity
	listener    *listener.Listener
	filter      *echo.Filter
	player      *player.Player
	broadcaster *broadcast.Broadcaster
	cancelDocs  func()
	joined      bool
}

func New(cfg Config) *Session {
	echoTTL := cfg.EchoTTL
	if echoTTL <= 0 {
		echoTTL = protocol.EchoTTL
	}

	return &Session{
		bus:       cfg.Bus,
		docs:      cfg.Docs,
		engine:    cfg.Engine,
		logger:    cfg.Logger,
		staleness: cfg.Staleness,
		echoTTL:   echoTTL,
		store:     state.NewStore(),
	}
}

func (s *Session) Store() *state.Store {
	return s.store
}

// Join enters a room: registers the participant in the document store,
// resets local state, and brings up the note pipeline. Joining while already
// in a room leaves the old room first.
func (s *Session) Join(ctx context.Context, roomID string, participant domain.Participant) error {
	s.mu.Lock()
	alreadyJoined := s.joined
	s.mu.Unlock()
	if alreadyJoined {
		s.Leave(ctx)
	}

	if err := s.docs.AddParticipant(roomID, participant); err != nil {
		return fmt.Errorf("failed to join room %s: %w", roomID, err)
	}

	identity := broadcast.Identity{
		RoomID:          roomID,
		ParticipantID:   participant.ID,
		ParticipantName: participant.DisplayName,
	}

	s.store.JoinRoom(roomID)
	s.store.UpsertParticipant(participant)

	filter := echo.NewFilter(s.echoTTL, protocol.EchoBucket)
	p := player.New(s.engine, filter, participant.ID, s.logger)

	l := listener.New(listener.Config{
		Bus:       s.bus,
		LocalID:   participant.ID,
		RoomID:    roomID,
		Staleness: s.staleness,
		OnEvent: func(event domain.NoteEvent) {
			s.playRemote(event)
		},
		OnError: func(err error) {
			s.logger.Error(logging.Bus, logging.Subscribe, "note listener failed", map[logging.ExtraKey]any{
				logging.RoomID:       roomID,
				logging.ErrorMessage: err.Error(),
			})
		},
		Logger: s.logger,
	})

	if err := l.Start(); err != nil {
		filter.Close()
		p.Close()
		_ = s.docs.RemoveParticipant(roomID, participant.ID)
		s.store.LeaveRoom()
		return fmt.Errorf("failed to start note listener: %w", err)
	}

	cancelDocs, err := s.docs.Listen(roomID, s.applyRoomData, func(err error) {
		s.logger.Error(logging.Rooms, logging.Membership, "room document listener failed", map[logging.ExtraKey]any{
			logging.RoomID:       roomID,
			logging.ErrorMessage: err.Error(),
		})
	})
	if err != nil {
		l.Stop()
		filter.Close()
		p.Close()
		_ = s.docs.RemoveParticipant(roomID, participant.ID)
		s.store.LeaveRoom()
		return fmt.Errorf("failed to listen to room document: %w", err)
	}

	s.mu.Lock()
	s.identity = identity
	s.listener = l
	s.filter = filter
	s.player = p
	s.broadcaster = broadcast.New(s.bus, s.docs, s.logger)
	s.cancelDocs = cancelDocs
	s.joined = true
	s.mu.Unlock()

	return nil
}

// Leave tears the pipeline down in the reverse of join order and removes the
// participant from the document store. Leaving while not joined is a no-op.
func (s *Session) Leave(ctx context.Context) {
	s.mu.Lock()
	if !s.joined {
		s.mu.Unlock()
		return
	}
	identity := s.identity
	l := s.listener
	filter := s.filter
	p := s.player
	cancelDocs := s.cancelDocs

	s.joined = false
	s.listener = nil
	s.filter = nil
	s.player = nil
	s.broadcaster = nil
	s.cancelDocs = nil
	s.mu.Unlock()

	if cancelDocs != nil {
		cancelDocs()
	}
	if l != nil {
		l.Stop()
	}
	if p != nil {
		p.Close()
	}
	if filter != nil {
		filter.Close()
	}

	if err := s.docs.RemoveParticipant(identity.RoomID, identity.ParticipantID); err != nil {
		s.logger.Warn(logging.Rooms, logging.Membership, "failed to remove participant on leave", map[logging.ExtraKey]any{
			logging.RoomID:        identity.RoomID,
			logging.ParticipantID: identity.ParticipantID,
			logging.ErrorMessage:  err.Error(),
		})
	}

	s.store.LeaveRoom()
}

// PlayAction handles a local play gesture: immediate local synthesis, then a
// fire-and-forget broadcast. The local note never waits on the network.
func (s *Session) PlayAction(ctx context.Context, action broadcast.LocalAction) {
	s.mu.Lock()
	joined := s.joined
	identity := s.identity
	b := s.broadcaster
	s.mu.Unlock()
	if !joined {
		return
	}

	freq := action.FrequencyHz
	if freq <= 0 {
		derived, err := domain.Frequency(action.PitchName)
		if err != nil {
			s.logger.Warn(logging.Audio, logging.Playback, "ignored play action with invalid pitch", map[logging.ExtraKey]any{
				logging.Pitch:        action.PitchName,
				logging.ErrorMessage: err.Error(),
			})
			return
		}
		freq = derived
	}

	instrument, _ := domain.ParseInstrument(action.Instrument)
	velocity := domain.ClampVelocity(action.Velocity)
	duration := time.Duration(domain.ClampDuration(action.DurationMs)) * time.Millisecond

	if s.engine.Initialized() {
		if err := s.engine.PlayNote(ctx, instrument, freq, velocity, duration, identity.ParticipantID); err != nil {
			s.logger.Error(logging.Audio, logging.Playback, "local synthesis failed", map[logging.ExtraKey]any{
				logging.Pitch:        action.PitchName,
				logging.ErrorMessage: err.Error(),
			})
		} else {
			handleKey := action.PitchName + "|" + identity.ParticipantID
			s.store.NoteOn(handleKey)
			time.AfterFunc(duration, func() { s.store.NoteOff(handleKey) })
		}
	}

	action.FrequencyHz = freq
	b.Broadcast(ctx, identity, action)
}

// InitializeAudio brings the synthesis engine up for the local participant.
// Safe to call repeatedly; only the first call after a Dispose does work.
func (s *Session) InitializeAudio() error {
	s.mu.Lock()
	identity := s.identity
	s.mu.Unlock()

	if err := s.engine.Initialize(identity.ParticipantID); err != nil {
		return err
	}
	s.engine.SetMasterVolume(s.store.MasterVolume())
	return nil
}

// SetMasterVolume applies a 0..1 volume to both the state store and the
// engine.
func (s *Session) SetMasterVolume(volume float64) {
	s.store.SetMasterVolume(volume)
	s.engine.SetMasterVolume(s.store.MasterVolume())
}

// DisposeAudio releases the synthesis engine; the session stays joined and
// keeps filtering events so audio can come back without a rejoin.
func (s *Session) DisposeAudio() {
	s.engine.Dispose()
}

func (s *Session) playRemote(event domain.NoteEvent) {
	s.mu.Lock()
	p := s.player
	s.mu.Unlock()
	if p == nil {
		return
	}

	// Only a note that actually triggered synthesis shows up as sounding;
	// filtered duplicates and failed renders never touch the active map.
	if !p.Play(context.Background(), event) {
		return
	}

	key := event.HandleKey()
	s.store.NoteOn(key)
	time.AfterFunc(event.Duration(), func() { s.store.NoteOff(key) })
}

func (s *Session) applyRoomData(data roomdoc.RoomData) {
	current := make(map[string]struct{}, len(data.Participants))
	for _, p := range data.Participants {
		current[p.ID] = struct{}{}
		s.store.UpsertParticipant(p)
	}
	for _, p := range s.store.Snapshot().Participants {
		if _, ok := current[p.ID]; !ok {
			s.store.RemoveParticipant(p.ID)
		}
	}
}
