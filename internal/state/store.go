// Package state holds the client-side view of the current room: who is in
// it, which notes are sounding, the game session, and the master volume.
// One store exists per client; joining a different room resets everything
// room-scoped.
package state

import (
	"sync"
	"time"

	"github.com/marloweh/tutti/internal/domain"
)

// GameSession is a structured play mode running inside a room.
type GameSession struct {
	Mode        string    `json:"mode"`
	Tempo       int       `json:"tempo"`
	ConductorID string    `json:"conductorId"`
	Beat        int       `json:"beat"`
	StartedAt   time.Time `json:"startedAt"`
}

// Snapshot is a consistent copy of the store at one instant.
type Snapshot struct {
	RoomID       string
	Participants []domain.Participant
	ActiveNotes  []string
	Session      *GameSession
	MasterVolume float64
}

type Store struct {
	mu           sync.RWMutex
	roomID       string
	participants map[string]domain.Participant
	activeNotes  map[string]struct{}
	session      *GameSession
	masterVolume float64
}

func NewStore() *Store {
	return &Store{
		participants: make(map[string]domain.Participant),
		activeNotes:  make(map[string]struct{}),
		masterVolume: 1,
	}
}

// JoinRoom switches the store to a new room. All room-scoped state from the
// previous room is discarded; the master volume is a device setting and
// survives.
func (s *Store) JoinRoom(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.roomID = roomID
	s.participants = make(map[string]domain.Participant)
	s.activeNotes = make(map[string]struct{})
	s.session = nil
}

// LeaveRoom clears all room-scoped state.
func (s *Store) LeaveRoom() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.roomID = ""
	s.participants = make(map[string]domain.Participant)
	s.activeNotes = make(map[string]struct{})
	s.session = nil
}

func (s *Store) RoomID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.roomID
}

// UpsertParticipant inserts or fully replaces a roster entry.
func (s *Store) UpsertParticipant(p domain.Participant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.participants[p.ID] = p
}

// RemoveParticipant drops a roster entry; removing an absent participant is
// a no-op.
func (s *Store) RemoveParticipant(participantID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.participants, participantID)
}

func (s *Store) Participant(participantID string) (domain.Participant, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.participants[participantID]
	return p, ok
}

func (s *Store) ParticipantCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.participants)
}

// NoteOn marks a note handle as sounding.
func (s *Store) NoteOn(handleKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeNotes[handleKey] = struct{}{}
}

// NoteOff clears a sounding handle; clearing an absent one is a no-op.
func (s *Store) NoteOff(handleKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.activeNotes, handleKey)
}

func (s *Store) IsNoteActive(handleKey string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.activeNotes[handleKey]
	return ok
}

// StartGameSession installs a session, replacing any running one.
func (s *Store) StartGameSession(session GameSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = &session
}

func (s *Store) EndGameSession() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = nil
}

func (s *Store) GameSession() (GameSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session == nil {
		return GameSession{}, false
	}
	return *s.session, true
}

// SetMasterVolume clamps to [0, 1].
func (s *Store) SetMasterVolume(volume float64) {
	if volume < 0 {
		volume = 0
	}
	if volume > 1 {
		volume = 1
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.masterVolume = volume
}

func (s *Store) MasterVolume() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.masterVolume
}

func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		RoomID:       s.roomID,
		Participants: make([]domain.Participant, 0, len(s.participants)),
		ActiveNotes:  make([]string, 0, len(s.activeNotes)),
		MasterVolume: s.masterVolume,
	}
	for _, p := range s.participants {
		snap.Participants = append(snap.Participants, p)
	}
	for key := range s.activeNotes {
		snap.ActiveNotes = append(snap.ActiveNotes, key)
	}
	if s.session != nil {
		session := *s.session
		snap.Session = &session
	}
	return snap
}
