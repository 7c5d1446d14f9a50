package decoder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/youpy/go-wav"

	"github.com/skypro1111/voice-analyzer/internal/audio"
)

// WAVDecoder decodes integer PCM WAV files of up to two channels.
// Stereo input is averaged down to a single channel.
type WAVDecoder struct {
	// ReadSize is the number of frames read per call into the WAV reader
	ReadSize uint32
}

// NewWAVDecoder creates a WAV decoder with the default read size
func NewWAVDecoder() *WAVDecoder {
	return &WAVDecoder{ReadSize: 4096}
}

// Name implements Decoder
func (d *WAVDecoder) Name() string {
	return "wav"
}

// Decode implements Decoder
func (d *WAVDecoder) Decode(ctx context.Context, data []byte) (*audio.DecodedAudio, error) {
	if len(data) == 0 {
		return nil, d.fail(errors.New("empty input"))
	}

	reader := wav.NewReader(bytes.NewReader(data))
	format, err := reader.Format()
	if err != nil {
		return nil, d.fail(fmt.Errorf("failed to read format chunk: %w", err))
	}

	if format.AudioFormat != wav.AudioFormatPCM {
		return nil, d.fail(fmt.Errorf("unsupported audio format %d (only integer PCM is supported)", format.AudioFormat))
	}

	switch format.BitsPerSample {
	case 8, 16, 24, 32:
	default:
		return nil, d.fail(fmt.Errorf("unsupported bit depth %d", format.BitsPerSample))
	}

	if format.NumChannels < 1 || format.NumChannels > 2 {
		return nil, d.fail(fmt.Errorf("unsupported channel count %d", format.NumChannels))
	}

	if format.SampleRate == 0 {
		return nil, d.fail(errors.New("sample rate is 0"))
	}

	channels := int(format.NumChannels)
	mono := make([]float32, 0)

	readSize := d.ReadSize
	if readSize == 0 {
		readSize = 4096
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		samples, err := reader.ReadSamples(readSize)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, d.fail(fmt.Errorf("failed to read samples: %w", err))
		}

		for _, s := range samples {
			var sum float64
			for c := 0; c < channels; c++ {
				sum += reader.FloatValue(s, uint(c))
			}
			mono = append(mono, float32(sum/float64(channels)))
		}
	}

	return &audio.DecodedAudio{
		SampleRate:   int(format.SampleRate),
		ChannelCount: 1,
		Samples:      [][]float32{mono},
	}, nil
}

func (d *WAVDecoder) fail(err error) error {
	return &DecodeError{Decoder: d.Name(), Err: err}
}
