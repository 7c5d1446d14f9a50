package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

const (
	// HeaderSize is the size of the canonical RIFF/WAVE header written by EncodeWAV
	HeaderSize = 44

	// FormatPCM is the WAVE format tag for integer PCM
	FormatPCM = 1

	// BitsPerSample is the only bit depth EncodeWAV produces
	BitsPerSample = 16

	bytesPerSample = BitsPerSample / 8
)

// ErrEncode is returned when a DecodedAudio value cannot be turned into a valid container
var ErrEncode = errors.New("wav encode failed")

// DecodedAudio is floating point audio as produced by a decoder or a capture device
type DecodedAudio struct {
	SampleRate   int         `json:"sample_rate"`
	ChannelCount int         `json:"channel_count"`
	Samples      [][]float32 `json:"-"` // per channel, nominally in [-1.0, 1.0]
}

// NumFrames returns the number of samples in the first channel
func (d *DecodedAudio) NumFrames() int {
	if d == nil || len(d.Samples) == 0 {
		return 0
	}
	return len(d.Samples[0])
}

// Duration returns the playback length of the first channel in seconds
func (d *DecodedAudio) Duration() float64 {
	if d == nil || d.SampleRate <= 0 {
		return 0
	}
	return float64(d.NumFrames()) / float64(d.SampleRate)
}

// WAVHeader represents the header structure of a WAV file
type WAVHeader struct {
	ChunkID       [4]byte // "RIFF"
	ChunkSize     uint32  // 36 + Subchunk2Size
	Format        [4]byte // "WAVE"
	Subchunk1ID   [4]byte // "fmt "
	Subchunk1Size uint32  // 16 for PCM
	AudioFormat   uint16  // 1 for PCM
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32 // SampleRate * BlockAlign
	BlockAlign    uint16 // NumChannels * 2
	BitsPerSample uint16
	Subchunk2ID   [4]byte // "data"
	Subchunk2Size uint32  // bytes of sample data
}

// Quantize maps a float sample to signed 16-bit PCM.
// Input is clamped to [-1, 1]; negative values scale by 32768 and
// non-negative values by 32767, truncating toward zero.
func Quantize(s float32) int16 {
	v := float64(s)
	if math.IsNaN(v) {
		return 0
	}
	v = math.Max(-1, math.Min(1, v))
	if v < 0 {
		return int16(v * 0x8000)
	}
	return int16(v * 0x7FFF)
}

// EncodeWAV serializes decoded audio into a 16-bit PCM RIFF/WAVE container.
//
// Only the first channel's samples are written. NumChannels, BlockAlign and
// ByteRate are still derived from ChannelCount, so multi-channel input yields
// a header that declares every channel while the data chunk carries the first
// one. Callers that need true multi-channel output must downmix or interleave
// before encoding.
func EncodeWAV(in *DecodedAudio) ([]byte, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: no audio", ErrEncode)
	}

	if in.SampleRate <= 0 || int64(in.SampleRate) > math.MaxUint32 {
		return nil, fmt.Errorf("%w: sample rate must be positive, got %d", ErrEncode, in.SampleRate)
	}

	if in.ChannelCount < 1 || in.ChannelCount > math.MaxUint16/bytesPerSample {
		return nil, fmt.Errorf("%w: invalid channel count %d", ErrEncode, in.ChannelCount)
	}

	if len(in.Samples) == 0 || in.Samples[0] == nil {
		return nil, fmt.Errorf("%w: missing channel data", ErrEncode)
	}

	data := in.Samples[0]
	dataSize := uint64(len(data)) * bytesPerSample
	if dataSize > math.MaxUint32-36 {
		return nil, fmt.Errorf("%w: %d samples exceed the RIFF size limit", ErrEncode, len(data))
	}

	numChannels := uint16(in.ChannelCount)
	blockAlign := numChannels * bytesPerSample
	if uint64(in.SampleRate)*uint64(blockAlign) > math.MaxUint32 {
		return nil, fmt.Errorf("%w: byte rate of %d Hz x %d channels overflows the header",
			ErrEncode, in.SampleRate, in.ChannelCount)
	}

	header := WAVHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     36 + uint32(dataSize),
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   FormatPCM,
		NumChannels:   numChannels,
		SampleRate:    uint32(in.SampleRate),
		ByteRate:      uint32(in.SampleRate) * uint32(blockAlign),
		BlockAlign:    blockAlign,
		BitsPerSample: BitsPerSample,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: uint32(dataSize),
	}

	pcm := make([]int16, len(data))
	for i, s := range data {
		pcm[i] = Quantize(s)
	}

	buf := bytes.NewBuffer(make([]byte, 0, HeaderSize+int(dataSize)))

	if err := binary.Write(buf, binary.LittleEndian, header); err != nil {
		return nil, fmt.Errorf("%w: failed to write WAV header: %v", ErrEncode, err)
	}

	if err := binary.Write(buf, binary.LittleEndian, pcm); err != nil {
		return nil, fmt.Errorf("%w: failed to write audio data: %v", ErrEncode, err)
	}

	return buf.Bytes(), nil
}

// ParseHeader reads and validates the 44-byte canonical header
func ParseHeader(data []byte) (*WAVHeader, error) {
	if err := ValidateWAV(data); err != nil {
		return nil, err
	}

	var header WAVHeader
	if err := binary.Read(bytes.NewReader(data[:HeaderSize]), binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("failed to read WAV header: %w", err)
	}

	return &header, nil
}

// DecodePCM16 reads the 16-bit sample data of a PCM container back out
func DecodePCM16(data []byte) ([]int16, *WAVHeader, error) {
	header, err := ParseHeader(data)
	if err != nil {
		return nil, nil, err
	}

	if header.AudioFormat != FormatPCM {
		return nil, nil, fmt.Errorf("unsupported audio format: %d (only PCM is supported)", header.AudioFormat)
	}

	if header.BitsPerSample != BitsPerSample {
		return nil, nil, fmt.Errorf("unsupported bit depth: %d (only 16-bit is supported)", header.BitsPerSample)
	}

	available := uint32(len(data) - HeaderSize)
	if header.Subchunk2Size > available {
		return nil, nil, fmt.Errorf("data chunk truncated: header declares %d bytes, %d present",
			header.Subchunk2Size, available)
	}

	samples := make([]int16, header.Subchunk2Size/bytesPerSample)
	if err := binary.Read(bytes.NewReader(data[HeaderSize:]), binary.LittleEndian, samples); err != nil {
		return nil, nil, fmt.Errorf("failed to read audio samples: %w", err)
	}

	return samples, header, nil
}

// ValidateWAV validates a WAV file format without decoding the entire audio data
func ValidateWAV(data []byte) error {
	if len(data) < HeaderSize {
		return fmt.Errorf("WAV data too short: need at least %d bytes, got %d", HeaderSize, len(data))
	}

	if string(data[0:4]) != "RIFF" {
		return fmt.Errorf("invalid WAV file: missing RIFF header")
	}

	if string(data[8:12]) != "WAVE" {
		return fmt.Errorf("invalid WAV file: missing WAVE format")
	}

	if string(data[12:16]) != "fmt " {
		return fmt.Errorf("invalid WAV file: missing fmt chunk")
	}

	if string(data[36:40]) != "data" {
		return fmt.Errorf("invalid WAV file: missing data chunk")
	}

	return nil
}

// GetWAVDuration calculates the duration of a WAV file in seconds
func GetWAVDuration(data []byte) (float64, error) {
	info, err := GetWAVInfo(data)
	if err != nil {
		return 0, err
	}
	return info.Duration, nil
}

// WAVInfo holds the header fields of a WAV file plus derived values
type WAVInfo struct {
	AudioFormat   uint16  `json:"audio_format"`
	SampleRate    uint32  `json:"sample_rate"`
	Channels      uint16  `json:"channels"`
	BitsPerSample uint16  `json:"bits_per_sample"`
	ByteRate      uint32  `json:"byte_rate"`
	BlockAlign    uint16  `json:"block_align"`
	Duration      float64 `json:"duration_seconds"`
	DataSize      uint32  `json:"data_size_bytes"`
	NumSamples    uint32  `json:"num_samples"`
}

// GetWAVInfo extracts metadata from a WAV file
func GetWAVInfo(data []byte) (*WAVInfo, error) {
	header, err := ParseHeader(data)
	if err != nil {
		return nil, err
	}

	if header.SampleRate == 0 {
		return nil, fmt.Errorf("invalid sample rate: 0")
	}

	if header.BitsPerSample == 0 || header.BlockAlign == 0 {
		return nil, fmt.Errorf("invalid sample layout: %d bits, block align %d",
			header.BitsPerSample, header.BlockAlign)
	}

	numSamples := header.Subchunk2Size / (uint32(header.BitsPerSample) / 8)
	frames := header.Subchunk2Size / uint32(header.BlockAlign)

	return &WAVInfo{
		AudioFormat:   header.AudioFormat,
		SampleRate:    header.SampleRate,
		Channels:      header.NumChannels,
		BitsPerSample: header.BitsPerSample,
		ByteRate:      header.ByteRate,
		BlockAlign:    header.BlockAlign,
		Duration:      float64(frames) / float64(header.SampleRate),
		DataSize:      header.Subchunk2Size,
		NumSamples:    numSamples,
	}, nil
}
