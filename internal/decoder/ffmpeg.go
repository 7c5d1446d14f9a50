package decoder

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/skypro1111/voice-analyzer/internal/audio"
)

// FFmpegConfig contains ffmpeg decoder configuration
type FFmpegConfig struct {
	Path       string        // ffmpeg binary, resolved through PATH when not absolute
	SampleRate int           // output sample rate in Hz
	Channels   int           // output channel count
	Timeout    time.Duration // upper bound for a single decode
}

// FFmpegDecoder decodes arbitrary compressed audio by piping it through ffmpeg
// and reading back interleaved 32-bit float PCM
type FFmpegDecoder struct {
	config FFmpegConfig

	// command builds the process; replaced in tests
	command func(ctx context.Context, name string, args ...string) *exec.Cmd
}

// NewFFmpegDecoder creates a new ffmpeg backed decoder
func NewFFmpegDecoder(config FFmpegConfig) (*FFmpegDecoder, error) {
	if config.Path == "" {
		config.Path = "ffmpeg"
	}

	if config.SampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", config.SampleRate)
	}

	if config.Channels < 1 {
		return nil, fmt.Errorf("channels must be at least 1, got %d", config.Channels)
	}

	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}

	return &FFmpegDecoder{
		config:  config,
		command: exec.CommandContext,
	}, nil
}

// Name implements Decoder
func (d *FFmpegDecoder) Name() string {
	return "ffmpeg"
}

// Args returns the ffmpeg argument list used for decoding
func (d *FFmpegDecoder) Args() []string {
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-i", "pipe:0",
		"-vn",
		"-ac", strconv.Itoa(d.config.Channels),
		"-ar", strconv.Itoa(d.config.SampleRate),
		"-f", "f32le",
		"-acodec", "pcm_f32le",
		"pipe:1",
	}
}

// Decode implements Decoder
func (d *FFmpegDecoder) Decode(ctx context.Context, data []byte) (*audio.DecodedAudio, error) {
	if len(data) == 0 {
		return nil, d.fail(errors.New("empty input"))
	}

	ctx, cancel := context.WithTimeout(ctx, d.config.Timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := d.command(ctx, d.config.Path, d.Args()...)
	cmd.Stdin = bytes.NewReader(data)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, d.fail(fmt.Errorf("ffmpeg interrupted: %w", ctxErr))
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return nil, d.fail(fmt.Errorf("ffmpeg failed: %s", msg))
	}

	out, err := Deinterleave(stdout.Bytes(), d.config.Channels, d.config.SampleRate)
	if err != nil {
		return nil, d.fail(err)
	}

	return out, nil
}

// Deinterleave splits little-endian interleaved float32 PCM into channels
func Deinterleave(pcm []byte, channels, sampleRate int) (*audio.DecodedAudio, error) {
	frameSize := 4 * channels
	if channels < 1 {
		return nil, fmt.Errorf("channels must be at least 1, got %d", channels)
	}

	if len(pcm)%frameSize != 0 {
		return nil, fmt.Errorf("PCM length %d is not a multiple of the %d-byte frame size", len(pcm), frameSize)
	}

	frames := len(pcm) / frameSize
	out := &audio.DecodedAudio{
		SampleRate:   sampleRate,
		ChannelCount: channels,
		Samples:      make([][]float32, channels),
	}
	for c := range out.Samples {
		out.Samples[c] = make([]float32, frames)
	}

	for i := 0; i < frames; i++ {
		for c := 0; c < channels; c++ {
			off := i*frameSize + c*4
			out.Samples[c][i] = math.Float32frombits(binary.LittleEndian.Uint32(pcm[off : off+4]))
		}
	}

	return out, nil
}

func (d *FFmpegDecoder) fail(err error) error {
	return &DecodeError{Decoder: d.Name(), Err: err}
}
