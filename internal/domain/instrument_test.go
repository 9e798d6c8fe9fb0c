package domain

import "testing"

func TestParseInstrument(t *testing.T) {
	tests := []struct {
		in    string
		want  Instrument
		known bool
	}{
		{"piano", InstrumentPiano, true},
		{"Piano", InstrumentPiano, true},
		{"  GUITAR  ", InstrumentGuitar, true},
		{"keys", InstrumentPiano, true},
		{"percussion", InstrumentDrums, true},
		{"violin", InstrumentStrings, true},
		{"lead", InstrumentSynth, true},
		{"wind", InstrumentFlute, true},
		{"theremin", InstrumentPiano, false}, // unknown falls back to piano
		{"", InstrumentPiano, false},
	}

	for _, tt := range tests {
		got, known := ParseInstrument(tt.in)
		if got != tt.want || known != tt.known {
			t.Errorf("ParseInstrument(%q) = (%v, %v), want (%v, %v)", tt.in, got, known, tt.want, tt.known)
		}
	}
}

func TestInstrumentRoundTrip(t *testing.T) {
	for _, instr := range Instruments {
		parsed, known := ParseInstrument(instr.String())
		if !known || parsed != instr {
			t.Errorf("ParseInstrument(%q) = (%v, %v), want (%v, true)", instr.String(), parsed, known, instr)
		}
	}
}

func TestVoiceProfiles(t *testing.T) {
	if p := InstrumentBass.Profile(); p.OctaveShift != -1 {
		t.Errorf("bass must shift down an octave, got %d", p.OctaveShift)
	}
	if p := InstrumentFlute.Profile(); p.OctaveShift != 1 {
		t.Errorf("flute must shift up an octave, got %d", p.OctaveShift)
	}
	if p := InstrumentDrums.Profile(); !p.Percussive {
		t.Error("drums must be percussive")
	}

	seen := make(map[int32]Instrument)
	for _, instr := range Instruments {
		p := instr.Profile()
		if p.VelocityScale <= 0 || p.VelocityScale > 1 {
			t.Errorf("%v velocity scale out of range: %v", instr, p.VelocityScale)
		}
		if prev, dup := seen[p.Program]; dup {
			t.Errorf("%v and %v share program %d", instr, prev, p.Program)
		}
		seen[p.Program] = instr
	}
}
