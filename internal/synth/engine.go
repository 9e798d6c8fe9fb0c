// Package synth renders note events to PCM with a soundfont synthesizer.
// The engine keeps one voice pool per instrument family and mixes their
// output through a soft-knee compressor into a single stereo stream that an
// audio sink pulls via io.Reader.
package synth

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"sync"
	"time"

	meltysynth "github.com/sinshu/go-meltysynth/meltysynth"

	"github.com/marloweh/tutti/internal/domain"
	"github.com/marloweh/tutti/internal/infrastructure/logging"
	"github.com/marloweh/tutti/internal/protocol"
)

const (
	// DefaultSampleRate matches the soundfonts shipped with the project.
	DefaultSampleRate = 44100

	// DefaultBlockSize is the per-Render frame count. Small blocks keep
	// NoteOn latency low; the sink buffers ahead of us anyway.
	DefaultBlockSize = 64

	// minVolumeDB is the floor of the master volume mapping; below it the
	// engine is effectively muted.
	minVolumeDB = -60.0

	// remoteDamp scales velocities of notes played by other participants
	// so the local player keeps the foreground.
	remoteDamp = 0.8
)

var (
	ErrNotInitialized = errors.New("synthesis engine is not initialized")
	ErrNoSoundFont    = errors.New("no soundfont path configured")
)

type Config struct {
	SampleRate    int
	SoundFontPath string
	BlockSize     int
	// MasterVolume is linear 0..1; it maps to a dB gain with a -60 dB floor.
	MasterVolume float64
}

// Engine is the polyphonic synthesis core. Initialize loads the soundfont
// and builds the pools; Dispose releases them; both may be called repeatedly
// over the engine's life as the client mounts and unmounts audio.
type Engine struct {
	cfg    Config
	logger logging.Logger

	mu          sync.Mutex
	initialized bool
	pools       map[domain.Instrument]*voicePool
	comp        *compressor
	gain        float64
	volumeDB    float64
	localID     string

	left  []float32
	right []float32
	// per-pool render scratch, reused across blocks
	poolLeft  []float32
	poolRight []float32
}

func NewEngine(cfg Config, logger logging.Logger) *Engine {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = DefaultSampleRate
	}
	if cfg.BlockSize <= 0 {
		cfg.BlockSize = DefaultBlockSize
	}
	if cfg.MasterVolume <= 0 || cfg.MasterVolume > 1 {
		cfg.MasterVolume = 1
	}

	e := &Engine{
		cfg:    cfg,
		logger: logger,
	}
	e.setVolumeLocked(cfg.MasterVolume)
	return e
}

// Initialize loads the soundfont and builds one voice pool per instrument
// family. Calling it on an initialized engine is a no-op, which is what the
// debounced audio-setup path wants.
func (e *Engine) Initialize(localParticipantID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.initialized {
		return nil
	}
	if e.cfg.SoundFontPath == "" {
		return ErrNoSoundFont
	}

	data, err := os.ReadFile(e.cfg.SoundFontPath)
	if err != nil {
		return fmt.Errorf("failed to read soundfont %s: %w", e.cfg.SoundFontPath, err)
	}

	sf, err := meltysynth.NewSoundFont(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to parse soundfont %s: %w", e.cfg.SoundFontPath, err)
	}

	settings := meltysynth.NewSynthesizerSettings(int32(e.cfg.SampleRate))
	settings.BlockSize = int32(e.cfg.BlockSize)
	settings.EnableReverbAndChorus = true

	pools := make(map[domain.Instrument]*voicePool, len(domain.Instruments))
	for _, instrument := range domain.Instruments {
		pool, err := newVoicePool(sf, settings, instrument.Profile().Program)
		if err != nil {
			return fmt.Errorf("failed to build %s pool: %w", instrument, err)
		}
		pools[instrument] = pool
	}

	e.pools = pools
	e.comp = newCompressor(e.cfg.SampleRate)
	e.left = make([]float32, e.cfg.BlockSize)
	e.right = make([]float32, e.cfg.BlockSize)
	e.poolLeft = make([]float32, e.cfg.BlockSize)
	e.poolRight = make([]float32, e.cfg.BlockSize)
	e.localID = localParticipantID
	e.initialized = true

	e.logger.Info(logging.Audio, logging.Synthesis, "synthesis engine initialized", map[logging.ExtraKey]any{
		logging.ParticipantID: localParticipantID,
	})

	return nil
}

// PlayNote triggers one note. The scheduled NoteOff survives Dispose; firing
// a NoteOff at a torn-down pool is harmless.
func (e *Engine) PlayNote(_ context.Context, instrument domain.Instrument, freqHz, velocity float64, duration time.Duration, participantID string) error {
	e.mu.Lock()
	if !e.initialized {
		e.mu.Unlock()
		return ErrNotInitialized
	}
	pool := e.pools[instrument]
	localID := e.localID
	e.mu.Unlock()

	if pool == nil {
		// Unknown family falls back to the default pool.
		e.mu.Lock()
		pool = e.pools[domain.InstrumentPiano]
		e.mu.Unlock()
		if pool == nil {
			return ErrNotInitialized
		}
	}

	profile := instrument.Profile()

	key := domain.MIDIKey(freqHz) + profile.OctaveShift*12
	if key < 0 {
		key = 0
	}
	if key > 127 {
		key = 127
	}

	scaled := velocity * profile.VelocityScale
	if participantID != "" && participantID != localID {
		scaled *= remoteDamp
	}
	midiVelocity := int32(math.Round(scaled * 127))
	if midiVelocity < 1 {
		midiVelocity = 1
	}
	if midiVelocity > 127 {
		midiVelocity = 127
	}

	pool.noteOn(int32(key), midiVelocity)

	if duration <= 0 {
		duration = time.Duration(protocol.DefaultDurationMs) * time.Millisecond
	}
	time.AfterFunc(duration, func() {
		pool.noteOff(int32(key))
	})

	return nil
}

// Read renders the next chunk of interleaved 16-bit little-endian stereo
// PCM. It implements io.Reader so an audio sink can pull from the engine at
// its own pace. An uninitialized engine renders silence.
func (e *Engine) Read(p []byte) (int, error) {
	// 2 channels x 2 bytes per sample
	frames := len(p) / 4
	if frames == 0 {
		return 0, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.initialized {
		for i := range p {
			p[i] = 0
		}
		return len(p), nil
	}

	written := 0
	for written < frames {
		n := frames - written
		if n > e.cfg.BlockSize {
			n = e.cfg.BlockSize
		}
		left := e.left[:n]
		right := e.right[:n]
		e.renderBlockLocked(left, right)

		for i := 0; i < n; i++ {
			off := (written + i) * 4
			binary.LittleEndian.PutUint16(p[off:], uint16(pcm16(float64(left[i])*e.gain)))
			binary.LittleEndian.PutUint16(p[off+2:], uint16(pcm16(float64(right[i])*e.gain)))
		}
		written += n
	}

	return frames * 4, nil
}

func (e *Engine) renderBlockLocked(left, right []float32) {
	for i := range left {
		left[i] = 0
		right[i] = 0
	}

	for instrument, pool := range e.pools {
		pl := e.poolLeft[:len(left)]
		pr := e.poolRight[:len(right)]
		if err := pool.render(pl, pr); err != nil {
			e.logger.Error(logging.Audio, logging.Synthesis, "voice pool render failed", map[logging.ExtraKey]any{
				logging.InstrumentKey: instrument.String(),
				logging.ErrorMessage:  err.Error(),
			})
			continue
		}
		for i := range left {
			left[i] += pl[i]
			right[i] += pr[i]
		}
	}

	e.comp.process(left, right)
}

func pcm16(v float64) int16 {
	if v > 1 {
		v = 1
	} else if v < -1 {
		v = -1
	}
	return int16(v * math.MaxInt16)
}

// SetMasterVolume maps a linear 0..1 volume onto a dB gain with a -60 dB
// floor, so the bottom of the slider fades out instead of jumping to
// silence. Volume 1 is unity gain.
func (e *Engine) SetMasterVolume(volume float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.setVolumeLocked(volume)
}

func (e *Engine) setVolumeLocked(volume float64) {
	if volume > 1 {
		volume = 1
	}

	var db float64
	if volume <= 0 {
		db = minVolumeDB
	} else {
		db = 20 * math.Log10(volume)
		if db < minVolumeDB {
			db = minVolumeDB
		}
	}

	e.volumeDB = db
	e.gain = math.Pow(10, db/20)
}

// VolumeDB reports the current master gain in decibels.
func (e *Engine) VolumeDB() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.volumeDB
}

// Initialized reports whether the pools are loaded.
func (e *Engine) Initialized() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.initialized
}

// Dispose releases the voice pools. The engine can be re-initialized
// afterwards; Read renders silence in between.
func (e *Engine) Dispose() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.initialized {
		return
	}

	e.initialized = false
	e.pools = nil
	e.comp = nil

	e.logger.Info(logging.Audio, logging.Synthesis, "synthesis engine disposed", nil)
}
