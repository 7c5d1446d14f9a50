// Package capture records microphone input through PortAudio.
package capture

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gordonklaus/portaudio"
	"github.com/rs/zerolog"

	"github.com/skypro1111/voice-analyzer/internal/audio"
)

// ErrNoAudio is returned when recording stops before any frame was captured
var ErrNoAudio = errors.New("no audio captured")

// Config contains capture configuration
type Config struct {
	SampleRate      int
	Channels        int
	FramesPerBuffer int
	MaxDuration     time.Duration
}

// Stream is the part of a PortAudio input stream the recorder drives.
// Read blocks until the buffer passed to the opener has been filled.
type Stream interface {
	Start() error
	Read() error
	Stop() error
	Close() error
}

// StreamOpener opens an input stream that reads interleaved frames into buf
type StreamOpener func(channels int, sampleRate float64, framesPerBuffer int, buf []float32) (Stream, error)

// Recorder captures audio from the default input device
type Recorder struct {
	config Config
	logger zerolog.Logger

	open       StreamOpener
	initialize func() error
	terminate  func() error
}

// NewRecorder creates a recorder for the default PortAudio input device
func NewRecorder(config Config, logger zerolog.Logger) (*Recorder, error) {
	if config.SampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", config.SampleRate)
	}
	if config.Channels <= 0 {
		return nil, fmt.Errorf("channels must be positive, got %d", config.Channels)
	}
	if config.FramesPerBuffer <= 0 {
		return nil, fmt.Errorf("frames per buffer must be positive, got %d", config.FramesPerBuffer)
	}

	return &Recorder{
		config:     config,
		logger:     logger.With().Str("component", "capture").Logger(),
		open:       openDefaultStream,
		initialize: portaudio.Initialize,
		terminate:  portaudio.Terminate,
	}, nil
}

func openDefaultStream(channels int, sampleRate float64, framesPerBuffer int, buf []float32) (Stream, error) {
	return portaudio.OpenDefaultStream(channels, 0, sampleRate, framesPerBuffer, buf)
}

// Record captures until ctx is done or MaxDuration elapses and returns the
// frames split per channel. Cancelling ctx is the normal way to stop.
func (r *Recorder) Record(ctx context.Context) (*audio.DecodedAudio, error) {
	if err := r.initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize portaudio: %w", err)
	}
	defer r.terminate()

	channels := r.config.Channels
	buf := make([]float32, r.config.FramesPerBuffer*channels)

	stream, err := r.open(channels, float64(r.config.SampleRate), r.config.FramesPerBuffer, buf)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio stream: %w", err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return nil, fmt.Errorf("failed to start audio stream: %w", err)
	}

	maxFrames := -1
	if r.config.MaxDuration > 0 {
		maxFrames = int(r.config.MaxDuration.Seconds() * float64(r.config.SampleRate))
	}

	samples := make([][]float32, channels)
	frames := 0
	overflows := 0

	r.logger.Info().
		Int("sample_rate", r.config.SampleRate).
		Int("channels", channels).
		Dur("max_duration", r.config.MaxDuration).
		Msg("Recording started")

	for maxFrames < 0 || frames < maxFrames {
		if ctx.Err() != nil {
			break
		}

		// An overflow reports input lost before this read; buf is still filled.
		if err := stream.Read(); err != nil {
			if !errors.Is(err, portaudio.InputOverflowed) {
				stream.Stop()
				return nil, fmt.Errorf("failed to read audio stream: %w", err)
			}
			overflows++
		}

		n := r.config.FramesPerBuffer
		if maxFrames >= 0 && frames+n > maxFrames {
			n = maxFrames - frames
		}
		for i := 0; i < n; i++ {
			for c := 0; c < channels; c++ {
				samples[c] = append(samples[c], buf[i*channels+c])
			}
		}
		frames += n
	}

	if err := stream.Stop(); err != nil {
		r.logger.Warn().Err(err).Msg("Failed to stop audio stream")
	}

	r.logger.Info().
		Int("frames", frames).
		Int("overflows", overflows).
		Float64("seconds", float64(frames)/float64(r.config.SampleRate)).
		Msg("Recording stopped")

	if frames == 0 {
		return nil, ErrNoAudio
	}

	return &audio.DecodedAudio{
		SampleRate:   r.config.SampleRate,
		ChannelCount: channels,
		Samples:      samples,
	}, nil
}
