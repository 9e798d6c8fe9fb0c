package state

import (
	"testing"
	"time"

	"github.com/marloweh/tutti/internal/domain"
)

func TestJoinRoomResetsRoomScopedState(t *testing.T) {
	s := NewStore()
	s.JoinRoom("room1")
	s.UpsertParticipant(domain.Participant{ID: "p1", DisplayName: "ada"})
	s.NoteOn("C4|p1")
	s.StartGameSession(GameSession{Mode: "follow-the-leader"})
	s.SetMasterVolume(0.4)

	s.JoinRoom("room2")

	if got := s.RoomID(); got != "room2" {
		t.Errorf("room id = %q", got)
	}
	if s.ParticipantCount() != 0 {
		t.Error("roster must reset on join")
	}
	if s.IsNoteActive("C4|p1") {
		t.Error("active notes must reset on join")
	}
	if _, ok := s.GameSession(); ok {
		t.Error("game session must reset on join")
	}
	if got := s.MasterVolume(); got != 0.4 {
		t.Errorf("master volume is a device setting and must survive, got %v", got)
	}
}

func TestLeaveRoomClearsEverything(t *testing.T) {
	s := NewStore()
	s.JoinRoom("room1")
	s.UpsertParticipant(domain.Participant{ID: "p1"})
	s.NoteOn("C4|p1")

	s.LeaveRoom()

	if s.RoomID() != "" {
		t.Error("room id must clear on leave")
	}
	if s.ParticipantCount() != 0 || s.IsNoteActive("C4|p1") {
		t.Error("room-scoped state must clear on leave")
	}
}

func TestUpsertParticipantReplaces(t *testing.T) {
	s := NewStore()
	s.UpsertParticipant(domain.Participant{ID: "p1", DisplayName: "ada", InstrumentName: "piano"})
	s.UpsertParticipant(domain.Participant{ID: "p1", DisplayName: "ada", InstrumentName: "guitar"})

	p, ok := s.Participant("p1")
	if !ok {
		t.Fatal("participant must exist")
	}
	if p.InstrumentName != "guitar" {
		t.Errorf("upsert must fully replace, instrument = %q", p.InstrumentName)
	}
	if s.ParticipantCount() != 1 {
		t.Errorf("count = %d, want 1", s.ParticipantCount())
	}
}

func TestRemoveParticipantAbsentIsNoop(t *testing.T) {
	s := NewStore()
	s.RemoveParticipant("ghost")

	s.UpsertParticipant(domain.Participant{ID: "p1"})
	s.RemoveParticipant("p1")
	if _, ok := s.Participant("p1"); ok {
		t.Error("removed participant must be gone")
	}
}

func TestNoteLifecycle(t *testing.T) {
	s := NewStore()

	s.NoteOn("C4|p1")
	if !s.IsNoteActive("C4|p1") {
		t.Error("note must be active after NoteOn")
	}
	s.NoteOff("C4|p1")
	if s.IsNoteActive("C4|p1") {
		t.Error("note must be inactive after NoteOff")
	}

	// Releasing an already-released handle is a no-op.
	s.NoteOff("C4|p1")
}

func TestStartGameSessionOverwrites(t *testing.T) {
	s := NewStore()
	s.StartGameSession(GameSession{Mode: "follow-the-leader", Tempo: 90})
	s.StartGameSession(GameSession{Mode: "call-and-response", Tempo: 120})

	session, ok := s.GameSession()
	if !ok {
		t.Fatal("session must be running")
	}
	if session.Mode != "call-and-response" || session.Tempo != 120 {
		t.Errorf("session = %+v", session)
	}

	s.EndGameSession()
	if _, ok := s.GameSession(); ok {
		t.Error("session must end")
	}
}

func TestSetMasterVolumeClamps(t *testing.T) {
	s := NewStore()

	s.SetMasterVolume(1.5)
	if got := s.MasterVolume(); got != 1 {
		t.Errorf("volume above 1 must clamp, got %v", got)
	}
	s.SetMasterVolume(-0.5)
	if got := s.MasterVolume(); got != 0 {
		t.Errorf("negative volume must clamp, got %v", got)
	}
	s.SetMasterVolume(0.7)
	if got := s.MasterVolume(); got != 0.7 {
		t.Errorf("in-range volume = %v", got)
	}
}

func TestSnapshotIsolation(t *testing.T) {
	s := NewStore()
	s.JoinRoom("room1")
	s.UpsertParticipant(domain.Participant{ID: "p1", DisplayName: "ada"})
	s.NoteOn("C4|p1")
	s.StartGameSession(GameSession{Mode: "jam", StartedAt: time.Now()})

	snap := s.Snapshot()

	// Mutating the snapshot must not leak into the store.
	snap.Participants[0].DisplayName = "mallory"
	snap.Session.Mode = "stolen"

	p, _ := s.Participant("p1")
	if p.DisplayName != "ada" {
		t.Error("snapshot must be a copy of the roster")
	}
	session, _ := s.GameSession()
	if session.Mode != "jam" {
		t.Error("snapshot must be a copy of the game session")
	}

	if snap.RoomID != "room1" || len(snap.ActiveNotes) != 1 {
		t.Errorf("snapshot = %+v", snap)
	}
}
