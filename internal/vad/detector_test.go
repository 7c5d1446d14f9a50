package vad

import (
	"testing"
	"time"
)

func tone(n int, amplitude int16) []int16 {
	out := make([]int16, n)
	for i := range out {
		if i%2 == 0 {
			out[i] = amplitude
		} else {
			out[i] = -amplitude
		}
	}
	return out
}

func TestNewDetectorValidation(t *testing.T) {
	tests := []struct {
		name      string
		modify    func(*Config)
		expectErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"zero threshold", func(c *Config) { c.Threshold = 0 }, true},
		{"threshold of one", func(c *Config) { c.Threshold = 1 }, true},
		{"zero window", func(c *Config) { c.Window = 0 }, true},
		{"zero smoothing", func(c *Config) { c.Smoothing = 0 }, true},
		{"smoothing above one", func(c *Config) { c.Smoothing = 1.5 }, true},
		{"no smoothing", func(c *Config) { c.Smoothing = 1 }, false},
		{"negative min speech", func(c *Config) { c.MinSpeechDuration = -time.Millisecond }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.modify(&config)

			_, err := NewDetector(config)
			if tt.expectErr && err == nil {
				t.Error("expected error")
			}
			if !tt.expectErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestDetectSilence(t *testing.T) {
	d, _ := NewDetector(DefaultConfig())

	result, err := d.Detect(make([]int16, 8000), 8000)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}

	if result.HasSpeech() {
		t.Error("expected no speech in silence")
	}
	if result.VoiceRatio != 0 {
		t.Errorf("expected voice ratio 0, got %f", result.VoiceRatio)
	}
	if result.Windows != 32 {
		t.Errorf("expected 32 windows, got %d", result.Windows)
	}
}

func TestDetectSegment(t *testing.T) {
	config := DefaultConfig()
	config.Smoothing = 1
	config.Window = 10 * time.Millisecond
	d, _ := NewDetector(config)

	// 200ms silence, 300ms speech, 500ms silence at 1 kHz
	samples := make([]int16, 0, 1000)
	samples = append(samples, make([]int16, 200)...)
	samples = append(samples, tone(300, 8000)...)
	samples = append(samples, make([]int16, 500)...)

	result, err := d.Detect(samples, 1000)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}

	if len(result.Segments) != 1 {
		t.Fatalf("expected 1 segment, got %d", len(result.Segments))
	}

	seg := result.Segments[0]
	if seg.Start != 200*time.Millisecond || seg.End != 500*time.Millisecond {
		t.Errorf("unexpected segment %v-%v", seg.Start, seg.End)
	}
	if result.Speech != 300*time.Millisecond {
		t.Errorf("expected 300ms speech, got %v", result.Speech)
	}
	if result.VoiceRatio != 0.3 {
		t.Errorf("expected voice ratio 0.3, got %f", result.VoiceRatio)
	}
}

func TestDetectSpeechRunsToEnd(t *testing.T) {
	config := DefaultConfig()
	config.Smoothing = 1
	d, _ := NewDetector(config)

	result, err := d.Detect(tone(1000, 10000), 8000)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}

	if len(result.Segments) != 1 || result.Segments[0].Start != 0 {
		t.Fatalf("unexpected segments %+v", result.Segments)
	}
	if result.Segments[0].End != 125*time.Millisecond {
		t.Errorf("expected segment to end at 125ms, got %v", result.Segments[0].End)
	}
}

func TestDetectDropsShortBursts(t *testing.T) {
	config := DefaultConfig()
	config.Smoothing = 1
	config.Window = 10 * time.Millisecond
	config.MinSpeechDuration = 100 * time.Millisecond
	d, _ := NewDetector(config)

	samples := append(tone(50, 8000), make([]int16, 500)...)

	result, err := d.Detect(samples, 1000)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}

	if result.HasSpeech() {
		t.Errorf("expected short burst to be dropped, got %+v", result.Segments)
	}
	if result.VoiceWindows != 5 {
		t.Errorf("expected 5 voice windows, got %d", result.VoiceWindows)
	}
}

func TestDetectInvalidSampleRate(t *testing.T) {
	d, _ := NewDetector(DefaultConfig())
	if _, err := d.Detect([]int16{1, 2, 3}, 0); err == nil {
		t.Error("expected error for zero sample rate")
	}
}

func TestDetectEmpty(t *testing.T) {
	d, _ := NewDetector(DefaultConfig())

	result, err := d.Detect(nil, 8000)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if result.Windows != 0 || result.HasSpeech() {
		t.Errorf("unexpected result for empty input: %+v", result)
	}
}
