package decoder

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/skypro1111/voice-analyzer/internal/audio"
)

// ErrDecode is matched by every error a Decoder returns for unusable input
var ErrDecode = errors.New("audio decode failed")

// DecodeError reports which decoder rejected the input and why
type DecodeError struct {
	Decoder string
	Err     error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s decoder: %v", e.Decoder, e.Err)
}

func (e *DecodeError) Unwrap() []error {
	return []error{ErrDecode, e.Err}
}

// Decoder converts a compressed or containerized recording into DecodedAudio
type Decoder interface {
	Decode(ctx context.Context, data []byte) (*audio.DecodedAudio, error)

	// Name identifies the decoder in logs and metrics
	Name() string
}

// Auto dispatches RIFF/WAVE input to the WAV decoder and everything else to
// the fallback decoder
type Auto struct {
	WAV      Decoder
	Fallback Decoder
}

// NewAuto creates a sniffing decoder backed by the native WAV decoder and ffmpeg
func NewAuto(ffmpeg *FFmpegDecoder) *Auto {
	a := &Auto{WAV: NewWAVDecoder()}
	if ffmpeg != nil {
		a.Fallback = ffmpeg
	}
	return a
}

// Name implements Decoder
func (a *Auto) Name() string {
	return "auto"
}

// Decode implements Decoder
func (a *Auto) Decode(ctx context.Context, data []byte) (*audio.DecodedAudio, error) {
	d := a.Select(data)
	if d == nil {
		return nil, &DecodeError{Decoder: a.Name(), Err: fmt.Errorf("no decoder available for %s input", Sniff(data))}
	}
	return d.Decode(ctx, data)
}

// Select returns the decoder Decode would use for data
func (a *Auto) Select(data []byte) Decoder {
	if Sniff(data) == "wav" && a.WAV != nil {
		return a.WAV
	}
	return a.Fallback
}

// Sniff guesses the container format from magic bytes
func Sniff(data []byte) string {
	switch {
	case len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE":
		return "wav"
	case len(data) >= 4 && bytes.Equal(data[0:4], []byte{0x1A, 0x45, 0xDF, 0xA3}):
		return "webm"
	case len(data) >= 4 && string(data[0:4]) == "OggS":
		return "ogg"
	case len(data) >= 4 && string(data[0:4]) == "fLaC":
		return "flac"
	case len(data) >= 3 && string(data[0:3]) == "ID3",
		len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		return "mp3"
	case len(data) >= 8 && string(data[4:8]) == "ftyp":
		return "mp4"
	default:
		return "unknown"
	}
}
