package domain

import (
	"strings"
	"testing"
	"time"
)

func TestNewRoomDefaults(t *testing.T) {
	room, err := NewRoom("evening-jam", "p1", false, 0)
	if err != nil {
		t.Fatalf("NewRoom failed: %v", err)
	}

	if room.ID == "" {
		t.Error("room must get an id")
	}
	if room.MaxParticipants != DefaultMaxParticipants {
		t.Errorf("max participants = %d, want default %d", room.MaxParticipants, DefaultMaxParticipants)
	}
	if room.JoinCode != "" {
		t.Error("public rooms must not carry a join code")
	}
	if room.Settings.Tempo != 120 || room.Settings.Key != "C" || room.Settings.Scale != "major" {
		t.Errorf("default settings = %+v", room.Settings)
	}
	if !room.IsHost("p1") || room.IsHost("p2") {
		t.Error("creator must be the host")
	}
}

func TestNewRoomPrivateJoinCode(t *testing.T) {
	room, err := NewRoom("secret-session", "p1", true, 4)
	if err != nil {
		t.Fatalf("NewRoom failed: %v", err)
	}

	if len(room.JoinCode) != 6 {
		t.Fatalf("join code %q, want 6 characters", room.JoinCode)
	}
	// The code alphabet skips the lookalikes 0, O, 1 and I.
	for _, c := range room.JoinCode {
		if !strings.ContainsRune(joinCodeChars, c) {
			t.Errorf("join code contains %q, outside the alphabet", c)
		}
	}
}

func TestNewRoomRejectsBadNames(t *testing.T) {
	for _, name := range []string{"", "   ", strings.Repeat("x", 65)} {
		if _, err := NewRoom(name, "p1", false, 4); err == nil {
			t.Errorf("name %q must be rejected", name)
		}
	}
}

func TestNewParticipant(t *testing.T) {
	p, err := NewParticipant("ada_42", "guitar")
	if err != nil {
		t.Fatalf("NewParticipant failed: %v", err)
	}

	if p.ID == "" {
		t.Error("participant must get an id")
	}
	if p.Instrument != InstrumentGuitar || p.InstrumentName != "guitar" {
		t.Errorf("instrument = %v/%q", p.Instrument, p.InstrumentName)
	}
	if p.IsHost() {
		t.Error("new participants start without host permissions")
	}
	if !p.HasPermission(PermPlay) {
		t.Error("new participants must be able to play")
	}
}

func TestNewParticipantRejectsBadNames(t *testing.T) {
	for _, name := range []string{"", "a", "has space", "_leading", "trailing-", strings.Repeat("x", 33)} {
		if _, err := NewParticipant(name, "piano"); err == nil {
			t.Errorf("name %q must be rejected", name)
		}
	}
}

func TestClassifyConnection(t *testing.T) {
	cases := []struct {
		rtt  time.Duration
		want ConnectionQuality
	}{
		{10 * time.Millisecond, ConnectionGood},
		{99 * time.Millisecond, ConnectionGood},
		{100 * time.Millisecond, ConnectionFair},
		{299 * time.Millisecond, ConnectionFair},
		{300 * time.Millisecond, ConnectionPoor},
		{2 * time.Second, ConnectionPoor},
	}
	for _, tc := range cases {
		if got := ClassifyConnection(tc.rtt); got != tc.want {
			t.Errorf("ClassifyConnection(%v) = %q, want %q", tc.rtt, got, tc.want)
		}
	}
}

func TestGrantHost(t *testing.T) {
	p, err := NewParticipant("ada", "piano")
	if err != nil {
		t.Fatal(err)
	}

	p.GrantHost()

	if !p.IsHost() {
		t.Error("granted participant must be host")
	}
	for _, perm := range []Permission{PermPlay, PermAdmin, PermMute, PermKick} {
		if !p.HasPermission(perm) {
			t.Errorf("host must hold %q", perm)
		}
	}
}
