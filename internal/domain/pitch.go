package domain

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Twelve-tone equal temperament referenced to A4 = 440 Hz.
const (
	ReferenceFrequency = 440.0
	ReferenceOctave    = 4
	referenceMIDIKey   = 69 // A4
)

var ErrInvalidPitch = errors.New("invalid pitch name")

// Semitone offsets from C within one octave.
var pitchClasses = map[string]int{
	"C": 0, "D": 2, "E": 4, "F": 5, "G": 7, "A": 9, "B": 11,
}

// Frequency derives a frequency in Hz from a pitch name such as "C4", "F#3"
// or "Bb5". A bare letter ("A") defaults to the reference octave.
func Frequency(pitchName string) (float64, error) {
	semis, err := semitonesFromA4(pitchName)
	if err != nil {
		return 0, err
	}
	return ReferenceFrequency * math.Pow(2, float64(semis)/12), nil
}

// MIDIKey converts a frequency to the nearest discrete MIDI key, clamped to
// the 0..127 range the synthesis backend understands.
func MIDIKey(freqHz float64) int {
	if freqHz <= 0 {
		return 0
	}
	key := int(math.Round(referenceMIDIKey + 12*math.Log2(freqHz/ReferenceFrequency)))
	if key < 0 {
		key = 0
	}
	if key > 127 {
		key = 127
	}
	return key
}

func semitonesFromA4(pitchName string) (int, error) {
	name := strings.TrimSpace(pitchName)
	if name == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidPitch)
	}

	letter := strings.ToUpper(name[:1])
	class, ok := pitchClasses[letter]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPitch, pitchName)
	}

	rest := name[1:]
	for len(rest) > 0 {
		if rest[0] == '#' || rest[0] == 's' {
			class++
		} else if rest[0] == 'b' {
			class--
		} else {
			break
		}
		rest = rest[1:]
	}

	octave := ReferenceOctave
	if rest != "" {
		o, err := strconv.Atoi(rest)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidPitch, pitchName)
		}
		octave = o
	}

	// A4 sits 9 semitones above C4.
	return class - pitchClasses["A"] + (octave-ReferenceOctave)*12, nil
}
