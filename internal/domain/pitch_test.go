package domain

import (
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestFrequencyReference(t *testing.T) {
	freq, err := Frequency("A4")
	if err != nil {
		t.Fatalf("Frequency(A4) failed: %v", err)
	}
	if freq != 440.0 {
		t.Fatalf("A4 must be exactly 440 Hz, got %v", freq)
	}
}

func TestFrequencyTable(t *testing.T) {
	tests := []struct {
		pitch string
		want  float64
	}{
		{"C4", 261.6256},
		{"A3", 220.0},
		{"A5", 880.0},
		{"C#4", 277.1826},
		{"Db4", 277.1826},
		{"Bb3", 233.0819},
		{"E2", 82.4069},
		{"G7", 3135.9635},
		{"A", 440.0}, // bare letter defaults to octave 4
		{"Fs3", 184.9972},
	}

	for _, tt := range tests {
		got, err := Frequency(tt.pitch)
		if err != nil {
			t.Errorf("Frequency(%q) failed: %v", tt.pitch, err)
			continue
		}
		if math.Abs(got-tt.want) > 0.01 {
			t.Errorf("Frequency(%q) = %v, want %v", tt.pitch, got, tt.want)
		}
	}
}

func TestFrequencyInvalid(t *testing.T) {
	for _, pitch := range []string{"", "H4", "X", "C4x", "4C", "##"} {
		if _, err := Frequency(pitch); err == nil {
			t.Errorf("Frequency(%q) should fail", pitch)
		}
	}
}

func TestFrequencyOctaveDoubling(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	letters := []string{"C", "D", "E", "F", "G", "A", "B"}

	properties.Property("one octave up doubles the frequency", prop.ForAll(
		func(letterIdx, octave int) bool {
			letter := letters[letterIdx]
			lo, err1 := Frequency(letter + string(rune('0'+octave)))
			hi, err2 := Frequency(letter + string(rune('0'+octave+1)))
			if err1 != nil || err2 != nil {
				return false
			}
			return math.Abs(hi/lo-2.0) < 1e-9
		},
		gen.IntRange(0, 6),
		gen.IntRange(1, 6),
	))

	properties.Property("sharp and next flat agree", prop.ForAll(
		func(octave int) bool {
			sharp, err1 := Frequency("C#" + string(rune('0'+octave)))
			flat, err2 := Frequency("Db" + string(rune('0'+octave)))
			if err1 != nil || err2 != nil {
				return false
			}
			return math.Abs(sharp-flat) < 1e-9
		},
		gen.IntRange(1, 7),
	))

	properties.TestingRun(t)
}

func TestMIDIKey(t *testing.T) {
	tests := []struct {
		freq float64
		want int
	}{
		{440.0, 69},  // A4
		{261.63, 60}, // middle C
		{880.0, 81},
		{220.0, 57},
		{8.18, 0},      // bottom of the MIDI range
		{13000.0, 127}, // clamped high
		{0, 0},
		{-5, 0},
	}

	for _, tt := range tests {
		if got := MIDIKey(tt.freq); got != tt.want {
			t.Errorf("MIDIKey(%v) = %d, want %d", tt.freq, got, tt.want)
		}
	}
}

func TestMIDIKeyRoundTrips(t *testing.T) {
	// Every pitch the keyboard can produce must land on the MIDI key for
	// that note name.
	pitchToKey := map[string]int{
		"C4": 60, "D4": 62, "E4": 64, "F4": 65, "G4": 67, "A4": 69, "B4": 71,
		"C5": 72, "A0": 21, "C8": 108,
	}
	for pitch, want := range pitchToKey {
		freq, err := Frequency(pitch)
		if err != nil {
			t.Fatalf("Frequency(%q) failed: %v", pitch, err)
		}
		if got := MIDIKey(freq); got != want {
			t.Errorf("MIDIKey(Frequency(%q)) = %d, want %d", pitch, got, want)
		}
	}
}
