package synth

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/hajimehoshi/oto/v2"
)

const (
	channelCount    = 2
	bitDepthInBytes = 2
)

// Output is an audio sink that pulls PCM from a reader.
type Output interface {
	Start(source io.Reader) error
	Close() error
}

// SpeakerOutput drives the OS audio device. One oto context exists per
// process; constructing a second SpeakerOutput reuses the ready context with
// the original sample rate.
type SpeakerOutput struct {
	sampleRate int

	mu     sync.Mutex
	player oto.Player
}

var (
	otoOnce sync.Once
	otoCtx  *oto.Context
	otoErr  error
)

func NewSpeakerOutput(sampleRate int) *SpeakerOutput {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	return &SpeakerOutput{sampleRate: sampleRate}
}

func (s *SpeakerOutput) Start(source io.Reader) error {
	otoOnce.Do(func() {
		ctx, ready, err := oto.NewContext(s.sampleRate, channelCount, bitDepthInBytes)
		if err != nil {
			otoErr = fmt.Errorf("failed to open audio device: %w", err)
			return
		}
		<-ready
		otoCtx = ctx
	})
	if otoErr != nil {
		return otoErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.player != nil {
		return errors.New("speaker output already started")
	}

	s.player = otoCtx.NewPlayer(source)
	s.player.Play()
	return nil
}

func (s *SpeakerOutput) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.player == nil {
		return nil
	}
	err := s.player.Close()
	s.player = nil
	return err
}

// BufferOutput captures rendered PCM in memory. Tests use it to inspect the
// engine's output without an audio device.
type BufferOutput struct {
	mu   sync.Mutex
	pcm  []byte
	stop chan struct{}
	once sync.Once
}

func NewBufferOutput() *BufferOutput {
	return &BufferOutput{stop: make(chan struct{})}
}

// Start drains the source synchronously until Drain is satisfied or Close is
// called. Unlike the speaker it does not run in real time; call PullFrames
// instead for bounded reads.
func (b *BufferOutput) Start(source io.Reader) error {
	go func() {
		buf := make([]byte, 4096)
		for {
			select {
			case <-b.stop:
				return
			default:
			}
			n, err := source.Read(buf)
			if n > 0 {
				b.mu.Lock()
				b.pcm = append(b.pcm, buf[:n]...)
				b.mu.Unlock()
			}
			if err != nil {
				return
			}
		}
	}()
	return nil
}

// PullFrames reads exactly frames stereo frames from the source into the
// buffer, bypassing the background goroutine.
func (b *BufferOutput) PullFrames(source io.Reader, frames int) error {
	buf := make([]byte, frames*channelCount*bitDepthInBytes)
	if _, err := io.ReadFull(source, buf); err != nil {
		return err
	}
	b.mu.Lock()
	b.pcm = append(b.pcm, buf...)
	b.mu.Unlock()
	return nil
}

func (b *BufferOutput) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]byte, len(b.pcm))
	copy(out, b.pcm)
	return out
}

func (b *BufferOutput) Close() error {
	b.once.Do(func() { close(b.stop) })
	return nil
}
