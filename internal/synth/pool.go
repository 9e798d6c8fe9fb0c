package synth

import (
	"fmt"
	"sync"

	meltysynth "github.com/sinshu/go-meltysynth/meltysynth"
)

// voicePool wraps one synthesizer preloaded with an instrument program.
// Keeping a pool per instrument means a program change never interrupts a
// note that another instrument is still sounding.
type voicePool struct {
	mu      sync.Mutex
	syn     *meltysynth.Synthesizer
	program int32
}

func newVoicePool(sf *meltysynth.SoundFont, settings *meltysynth.SynthesizerSettings, program int32) (*voicePool, error) {
	syn, err := meltysynth.NewSynthesizer(sf, settings)
	if err != nil {
		return nil, fmt.Errorf("failed to create synthesizer for program %d: %w", program, err)
	}

	// Program change on channel 0; every pool only ever uses channel 0.
	syn.ProcessMidiMessage(0, 0xC0, program, 0)

	return &voicePool{
		syn:     syn,
		program: program,
	}, nil
}

func (p *voicePool) noteOn(key, velocity int32) {
	p.mu.Lock()
	p.syn.NoteOn(0, key, velocity)
	p.mu.Unlock()
}

func (p *voicePool) noteOff(key int32) {
	p.mu.Lock()
	p.syn.NoteOff(0, key)
	p.mu.Unlock()
}

func (p *voicePool) render(left, right []float32) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return safeRender(p.syn, left, right)
}

// safeRender calls Render while protecting against panics inside the
// synthesizer; a malformed soundfont region can index out of range deep in
// the voice code.
func safeRender(s *meltysynth.Synthesizer, left, right []float32) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("synthesizer render panicked: %v", r)
		}
	}()
	s.Render(left, right)
	return nil
}
