package ws

import (
	"github.com/marloweh/tutti/internal/domain"
	"github.com/marloweh/tutti/internal/roomdoc"
)

// Message types on the room socket. Inbound messages come from the client;
// outbound ones are pushed by the server.
const (
	// inbound
	TypeNotePlay  = "note.play"
	TypeSetVolume = "volume.set"
	TypeHeartbeat = "heartbeat"
	TypeGameStart = "game.start"
	TypeGameEnd   = "game.end"
	TypeGameBeat  = "game.beat"

	// outbound
	TypeNotePlayed  = "note.played"
	TypeRoomUpdated = "room.updated"
	TypeRoomClosed  = "room.closed"
	TypeGameState   = "game.state"
	TypeError       = "error"
)

// Envelope is the wire frame for every socket message. Exactly one payload
// field is set, matching Type.
type Envelope struct {
	Type string `json:"type"`

	Note   *domain.NoteEvent `json:"note,omitempty"`
	Play   *PlayPayload      `json:"play,omitempty"`
	Room   *roomdoc.RoomData `json:"room,omitempty"`
	Volume *VolumePayload    `json:"volume,omitempty"`
	Game   *GamePayload      `json:"game,omitempty"`
	Error  *ErrorPayload     `json:"error,omitempty"`
}

// PlayPayload is a raw play gesture from the client keyboard.
type PlayPayload struct {
	PitchName   string  `json:"pitchName"`
	Instrument  string  `json:"instrument"`
	Velocity    float64 `json:"velocity,omitempty"`
	DurationMs  int     `json:"durationMs,omitempty"`
	FrequencyHz float64 `json:"frequencyHz,omitempty"`
}

type VolumePayload struct {
	Volume float64 `json:"volume"`
}

// GamePayload carries structured-play session control.
type GamePayload struct {
	Mode        string `json:"mode,omitempty"`
	Tempo       int    `json:"tempo,omitempty"`
	ConductorID string `json:"conductorId,omitempty"`
	Beat        int    `json:"beat,omitempty"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func noteMessage(event domain.NoteEvent) Envelope {
	return Envelope{Type: TypeNotePlayed, Note: &event}
}

func roomUpdatedMessage(data roomdoc.RoomData) Envelope {
	return Envelope{Type: TypeRoomUpdated, Room: &data}
}

func roomClosedMessage() Envelope {
	return Envelope{Type: TypeRoomClosed}
}

func errorMessage(code, message string) Envelope {
	return Envelope{Type: TypeError, Error: &ErrorPayload{Code: code, Message: message}}
}
