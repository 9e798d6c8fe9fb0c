package domain

import "strings"

// Instrument is the closed enumeration of supported instrument families.
// Wire payloads carry free-form strings; ParseInstrument resolves them once
// at the edge so pool lookup never does string matching at trigger time.
type Instrument int

const (
	InstrumentPiano Instrument = iota
	InstrumentGuitar
	InstrumentBass
	InstrumentDrums
	InstrumentSynth
	InstrumentStrings
	InstrumentFlute
)

// Instruments lists every known family, in pool construction order.
var Instruments = []Instrument{
	InstrumentPiano,
	InstrumentGuitar,
	InstrumentBass,
	InstrumentDrums,
	InstrumentSynth,
	InstrumentStrings,
	InstrumentFlute,
}

func (i Instrument) String() string {
	switch i {
	case InstrumentPiano:
		return "piano"
	case InstrumentGuitar:
		return "guitar"
	case InstrumentBass:
		return "bass"
	case InstrumentDrums:
		return "drums"
	case InstrumentSynth:
		return "synth"
	case InstrumentStrings:
		return "strings"
	case InstrumentFlute:
		return "flute"
	}
	return "unknown"
}

// ParseInstrument resolves a wire string to a family. The second return is
// false when the name is unknown; callers fall back to the default pool.
func ParseInstrument(s string) (Instrument, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "piano", "keys", "keyboard":
		return InstrumentPiano, true
	case "guitar", "acoustic":
		return InstrumentGuitar, true
	case "bass":
		return InstrumentBass, true
	case "drums", "drum", "percussion", "pads":
		return InstrumentDrums, true
	case "synth", "lead":
		return InstrumentSynth, true
	case "strings", "violin", "cello":
		return InstrumentStrings, true
	case "flute", "wind":
		return InstrumentFlute, true
	}
	return InstrumentPiano, false
}

// VoiceProfile is the timbre/envelope profile of one family's voice pool.
// Program is a General MIDI program number; Percussive families get a short
// envelope from their program, sustained families a longer one. VelocityScale
// shapes how hard incoming velocities drive the pool.
type VoiceProfile struct {
	Program       int32
	OctaveShift   int
	VelocityScale float64
	Percussive    bool
}

// Profile returns the synthesis profile for the family.
func (i Instrument) Profile() VoiceProfile {
	switch i {
	case InstrumentGuitar:
		return VoiceProfile{Program: 24, OctaveShift: 0, VelocityScale: 0.95}
	case InstrumentBass:
		return VoiceProfile{Program: 33, OctaveShift: -1, VelocityScale: 1.0}
	case InstrumentDrums:
		return VoiceProfile{Program: 115, OctaveShift: 0, VelocityScale: 1.0, Percussive: true}
	case InstrumentSynth:
		return VoiceProfile{Program: 80, OctaveShift: 0, VelocityScale: 0.85}
	case InstrumentStrings:
		return VoiceProfile{Program: 48, OctaveShift: 0, VelocityScale: 0.9}
	case InstrumentFlute:
		return VoiceProfile{Program: 73, OctaveShift: 1, VelocityScale: 0.9}
	}
	return VoiceProfile{Program: 0, OctaveShift: 0, VelocityScale: 1.0}
}
