package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"math"
	"testing"

	"github.com/youpy/go-wav"
)

func sine(sampleRate int, seconds, frequency float64) []float32 {
	n := int(float64(sampleRate) * seconds)
	out := make([]float32, n)
	for i := range out {
		t := float64(i) / float64(sampleRate)
		out[i] = float32(0.5 * math.Sin(2*math.Pi*frequency*t))
	}
	return out
}

func TestEncodeWAV(t *testing.T) {
	in := &DecodedAudio{
		SampleRate:   8000,
		ChannelCount: 1,
		Samples:      [][]float32{sine(8000, 0.1, 440)},
	}

	wavData, err := EncodeWAV(in)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	expectedSize := HeaderSize + in.NumFrames()*2
	if len(wavData) != expectedSize {
		t.Errorf("Expected WAV size %d, got %d", expectedSize, len(wavData))
	}

	if err := ValidateWAV(wavData); err != nil {
		t.Errorf("Generated WAV is invalid: %v", err)
	}

	info, err := GetWAVInfo(wavData)
	if err != nil {
		t.Fatalf("Failed to get WAV info: %v", err)
	}

	if info.SampleRate != 8000 {
		t.Errorf("Expected sample rate 8000, got %d", info.SampleRate)
	}

	if info.Channels != 1 {
		t.Errorf("Expected 1 channel, got %d", info.Channels)
	}

	if info.BitsPerSample != 16 {
		t.Errorf("Expected 16 bits per sample, got %d", info.BitsPerSample)
	}

	if math.Abs(info.Duration-in.Duration()) > 0.001 {
		t.Errorf("Expected duration %.3f, got %.3f", in.Duration(), info.Duration)
	}
}

func TestEncodeWAVHeaderFields(t *testing.T) {
	tests := []struct {
		name       string
		sampleRate int
		channels   int
		frames     int
	}{
		{"mono 8k", 8000, 1, 10},
		{"mono 44.1k", 44100, 1, 1},
		{"stereo 48k", 48000, 2, 7},
		{"six channels 16k", 16000, 6, 3},
		{"empty", 22050, 1, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			samples := make([][]float32, tt.channels)
			for c := range samples {
				samples[c] = make([]float32, tt.frames)
			}

			data, err := EncodeWAV(&DecodedAudio{
				SampleRate:   tt.sampleRate,
				ChannelCount: tt.channels,
				Samples:      samples,
			})
			if err != nil {
				t.Fatalf("EncodeWAV failed: %v", err)
			}

			n := tt.frames
			if len(data) != 44+2*n {
				t.Fatalf("Expected %d bytes, got %d", 44+2*n, len(data))
			}

			le := binary.LittleEndian
			if got := le.Uint32(data[4:8]); got != uint32(36+2*n) {
				t.Errorf("ChunkSize: expected %d, got %d", 36+2*n, got)
			}
			if got := le.Uint32(data[16:20]); got != 16 {
				t.Errorf("Subchunk1Size: expected 16, got %d", got)
			}
			if got := le.Uint16(data[20:22]); got != 1 {
				t.Errorf("AudioFormat: expected 1, got %d", got)
			}
			if got := le.Uint16(data[22:24]); got != uint16(tt.channels) {
				t.Errorf("NumChannels: expected %d, got %d", tt.channels, got)
			}
			if got := le.Uint32(data[24:28]); got != uint32(tt.sampleRate) {
				t.Errorf("SampleRate: expected %d, got %d", tt.sampleRate, got)
			}
			if got := le.Uint32(data[28:32]); got != uint32(tt.sampleRate*tt.channels*2) {
				t.Errorf("ByteRate: expected %d, got %d", tt.sampleRate*tt.channels*2, got)
			}
			if got := le.Uint16(data[32:34]); got != uint16(tt.channels*2) {
				t.Errorf("BlockAlign: expected %d, got %d", tt.channels*2, got)
			}
			if got := le.Uint16(data[34:36]); got != 16 {
				t.Errorf("BitsPerSample: expected 16, got %d", got)
			}
			if got := le.Uint32(data[40:44]); got != uint32(2*n) {
				t.Errorf("Subchunk2Size: expected %d, got %d", 2*n, got)
			}
		})
	}
}

func TestEncodeWAVEndToEnd(t *testing.T) {
	in := &DecodedAudio{
		SampleRate:   44100,
		ChannelCount: 1,
		Samples:      [][]float32{{0.0, 0.5, -0.5, 1.0}},
	}

	data, err := EncodeWAV(in)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	if len(data) != 52 {
		t.Fatalf("Expected 52 bytes, got %d", len(data))
	}

	if string(data[0:4]) != "RIFF" {
		t.Errorf("Expected RIFF at 0, got %q", data[0:4])
	}
	if string(data[8:12]) != "WAVE" {
		t.Errorf("Expected WAVE at 8, got %q", data[8:12])
	}
	if string(data[36:40]) != "data" {
		t.Errorf("Expected data at 36, got %q", data[36:40])
	}
	if got := binary.LittleEndian.Uint32(data[40:44]); got != 8 {
		t.Errorf("Expected data size 8, got %d", got)
	}

	samples := make([]int16, 4)
	if err := binary.Read(bytes.NewReader(data[44:]), binary.LittleEndian, samples); err != nil {
		t.Fatalf("Failed to read samples: %v", err)
	}

	expected := []int16{0, 16383, -16384, 32767}
	for i, want := range expected {
		if samples[i] != want {
			t.Errorf("Sample %d: expected %d, got %d", i, want, samples[i])
		}
	}
}

func TestQuantize(t *testing.T) {
	tests := []struct {
		in   float32
		want int16
	}{
		{1.0, 32767},
		{-1.0, -32768},
		{0.0, 0},
		{1.5, 32767},
		{-7.0, -32768},
		{0.5, 16383},
		{-0.5, -16384},
		{float32(math.Inf(1)), 32767},
		{float32(math.Inf(-1)), -32768},
		{float32(math.NaN()), 0},
	}

	for _, tt := range tests {
		if got := Quantize(tt.in); got != tt.want {
			t.Errorf("Quantize(%v): expected %d, got %d", tt.in, tt.want, got)
		}
	}

	if Quantize(1.5) != Quantize(1.0) {
		t.Error("Expected out-of-range sample to clamp to full scale")
	}
}

func TestEncodeWAVOnlyFirstChannel(t *testing.T) {
	in := &DecodedAudio{
		SampleRate:   16000,
		ChannelCount: 2,
		Samples:      [][]float32{{1, 1, 1}, {-1, -1, -1}},
	}

	data, err := EncodeWAV(in)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	if len(data) != 44+6 {
		t.Fatalf("Expected %d bytes, got %d", 44+6, len(data))
	}

	for i := 0; i < 3; i++ {
		got := int16(binary.LittleEndian.Uint16(data[44+2*i:]))
		if got != 32767 {
			t.Errorf("Sample %d: expected first channel value 32767, got %d", i, got)
		}
	}
}

func TestEncodeWAVDoesNotMutateInput(t *testing.T) {
	ch := []float32{2, -2, 0.25}
	in := &DecodedAudio{SampleRate: 8000, ChannelCount: 1, Samples: [][]float32{ch}}

	if _, err := EncodeWAV(in); err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	if ch[0] != 2 || ch[1] != -2 || ch[2] != 0.25 {
		t.Errorf("Input samples were modified: %v", ch)
	}
}

func TestEncodeWAVDeterministic(t *testing.T) {
	in := &DecodedAudio{SampleRate: 48000, ChannelCount: 1, Samples: [][]float32{sine(48000, 0.01, 1000)}}

	a, err := EncodeWAV(in)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}
	b, err := EncodeWAV(in)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	if !bytes.Equal(a, b) {
		t.Error("Expected identical output for identical input")
	}
}

func TestEncodeWAVInvalidInput(t *testing.T) {
	tests := []struct {
		name string
		in   *DecodedAudio
	}{
		{"nil audio", nil},
		{"zero sample rate", &DecodedAudio{SampleRate: 0, ChannelCount: 1, Samples: [][]float32{{0}}}},
		{"negative sample rate", &DecodedAudio{SampleRate: -1000, ChannelCount: 1, Samples: [][]float32{{0}}}},
		{"zero channels", &DecodedAudio{SampleRate: 8000, ChannelCount: 0, Samples: [][]float32{{0}}}},
		{"missing channel data", &DecodedAudio{SampleRate: 8000, ChannelCount: 1}},
		{"nil first channel", &DecodedAudio{SampleRate: 8000, ChannelCount: 1, Samples: [][]float32{nil}}},
		{"byte rate overflow", &DecodedAudio{SampleRate: 1 << 30, ChannelCount: 4, Samples: [][]float32{{0}}}},
		{"mono byte rate overflow", &DecodedAudio{SampleRate: 1 << 31, ChannelCount: 1, Samples: [][]float32{{0}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := EncodeWAV(tt.in)
			if err == nil {
				t.Fatal("Expected error")
			}
			if !errors.Is(err, ErrEncode) {
				t.Errorf("Expected ErrEncode, got %v", err)
			}
			if data != nil {
				t.Error("Expected no output on error")
			}
		})
	}
}

func TestEncodeWAVMaxByteRate(t *testing.T) {
	in := &DecodedAudio{SampleRate: math.MaxUint32 / 2, ChannelCount: 1, Samples: [][]float32{{0.5}}}

	data, err := EncodeWAV(in)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	info, err := GetWAVInfo(data)
	if err != nil {
		t.Fatalf("GetWAVInfo failed: %v", err)
	}
	if uint64(info.ByteRate) != uint64(info.SampleRate)*uint64(info.BlockAlign) {
		t.Errorf("ByteRate %d != SampleRate %d * BlockAlign %d", info.ByteRate, info.SampleRate, info.BlockAlign)
	}
}

func TestEncodeWAVEmpty(t *testing.T) {
	data, err := EncodeWAV(&DecodedAudio{SampleRate: 8000, ChannelCount: 1, Samples: [][]float32{{}}})
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	if len(data) != HeaderSize {
		t.Fatalf("Expected %d bytes, got %d", HeaderSize, len(data))
	}

	info, err := GetWAVInfo(data)
	if err != nil {
		t.Fatalf("GetWAVInfo failed: %v", err)
	}
	if info.DataSize != 0 || info.NumSamples != 0 || info.Duration != 0 {
		t.Errorf("Expected empty data chunk, got %+v", info)
	}
}

func TestDecodePCM16RoundTrip(t *testing.T) {
	in := &DecodedAudio{
		SampleRate:   8000,
		ChannelCount: 1,
		Samples:      [][]float32{{0.1, -0.2, 0.3, -0.4, 1}},
	}

	data, err := EncodeWAV(in)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	samples, header, err := DecodePCM16(data)
	if err != nil {
		t.Fatalf("DecodePCM16 failed: %v", err)
	}

	if header.SampleRate != 8000 || header.NumChannels != 1 || header.BitsPerSample != 16 || header.AudioFormat != 1 {
		t.Errorf("Unexpected header: %+v", header)
	}

	if len(samples) != 5 {
		t.Fatalf("Expected 5 samples, got %d", len(samples))
	}

	for i, s := range in.Samples[0] {
		if samples[i] != Quantize(s) {
			t.Errorf("Sample %d: expected %d, got %d", i, Quantize(s), samples[i])
		}
	}
}

func TestDecodePCM16Truncated(t *testing.T) {
	data, err := EncodeWAV(&DecodedAudio{SampleRate: 8000, ChannelCount: 1, Samples: [][]float32{{0, 0, 0}}})
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	if _, _, err := DecodePCM16(data[:len(data)-2]); err == nil {
		t.Error("Expected error for truncated data chunk")
	}
}

// Reading the output with an independent WAV reader guards against layout
// mistakes that a self-consistent reader would miss.
func TestEncodeWAVReadableByGoWav(t *testing.T) {
	in := &DecodedAudio{
		SampleRate:   44100,
		ChannelCount: 1,
		Samples:      [][]float32{{0.0, 0.5, -0.5, 1.0, -1.0}},
	}

	data, err := EncodeWAV(in)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	reader := wav.NewReader(bytes.NewReader(data))
	format, err := reader.Format()
	if err != nil {
		t.Fatalf("Format failed: %v", err)
	}

	if format.AudioFormat != wav.AudioFormatPCM {
		t.Errorf("Expected PCM format, got %d", format.AudioFormat)
	}
	if format.NumChannels != 1 {
		t.Errorf("Expected 1 channel, got %d", format.NumChannels)
	}
	if format.SampleRate != 44100 {
		t.Errorf("Expected sample rate 44100, got %d", format.SampleRate)
	}
	if format.BitsPerSample != 16 {
		t.Errorf("Expected 16 bits, got %d", format.BitsPerSample)
	}

	var got []int
	for {
		samples, err := reader.ReadSamples()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("ReadSamples failed: %v", err)
		}
		for _, s := range samples {
			got = append(got, reader.IntValue(s, 0))
		}
	}

	expected := []int{0, 16383, -16384, 32767, -32768}
	if len(got) != len(expected) {
		t.Fatalf("Expected %d samples, got %d", len(expected), len(got))
	}
	for i := range expected {
		if got[i] != expected[i] {
			t.Errorf("Sample %d: expected %d, got %d", i, expected[i], got[i])
		}
	}
}

func TestValidateWAV(t *testing.T) {
	if err := ValidateWAV([]byte{1, 2, 3}); err == nil {
		t.Error("Expected error for too short WAV data")
	}

	invalidWAV := make([]byte, 50)
	copy(invalidWAV[0:4], []byte("FAKE"))
	if err := ValidateWAV(invalidWAV); err == nil {
		t.Error("Expected error for invalid RIFF header")
	}
}

func TestGetWAVDuration(t *testing.T) {
	in := &DecodedAudio{SampleRate: 8000, ChannelCount: 1, Samples: [][]float32{make([]float32, 8000)}}

	wavData, err := EncodeWAV(in)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	duration, err := GetWAVDuration(wavData)
	if err != nil {
		t.Fatalf("GetWAVDuration failed: %v", err)
	}

	if math.Abs(duration-1.0) > 0.001 {
		t.Errorf("Expected duration 1.000, got %.3f", duration)
	}
}
