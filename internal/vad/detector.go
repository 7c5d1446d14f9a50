package vad

import (
	"fmt"
	"math"
	"time"
)

// Config holds detector parameters
type Config struct {
	Threshold         float64       // normalized RMS at or above which a window is speech
	Window            time.Duration // analysis window length
	Smoothing         float64       // weight of the current window, 1 disables smoothing
	MinSpeechDuration time.Duration // shorter segments are dropped
}

// DefaultConfig returns settings suited to close-talk microphone recordings
func DefaultConfig() Config {
	return Config{
		Threshold:         0.02,
		Window:            32 * time.Millisecond,
		Smoothing:         0.6,
		MinSpeechDuration: 100 * time.Millisecond,
	}
}

// Segment is a contiguous stretch of speech
type Segment struct {
	Start time.Duration `json:"start"`
	End   time.Duration `json:"end"`
}

// Duration returns the segment length
func (s Segment) Duration() time.Duration {
	return s.End - s.Start
}

// Result summarizes voice activity over a recording
type Result struct {
	Windows      int           `json:"windows"`
	VoiceWindows int           `json:"voice_windows"`
	VoiceRatio   float64       `json:"voice_ratio"`
	Speech       time.Duration `json:"speech"`
	Segments     []Segment     `json:"segments"`
}

// HasSpeech reports whether any segment survived filtering
func (r *Result) HasSpeech() bool {
	return r != nil && len(r.Segments) > 0
}

// SpeechSeconds returns the total speech duration in seconds; nil is zero
func (r *Result) SpeechSeconds() float64 {
	if r == nil {
		return 0
	}
	return r.Speech.Seconds()
}

// Detector classifies windows of 16-bit PCM as speech or silence
type Detector struct {
	config Config
}

// NewDetector validates config and creates a detector
func NewDetector(config Config) (*Detector, error) {
	if config.Threshold <= 0 || config.Threshold >= 1 {
		return nil, fmt.Errorf("threshold must be in (0, 1), got %f", config.Threshold)
	}
	if config.Window <= 0 {
		return nil, fmt.Errorf("window must be positive, got %s", config.Window)
	}
	if config.Smoothing <= 0 || config.Smoothing > 1 {
		return nil, fmt.Errorf("smoothing must be in (0, 1], got %f", config.Smoothing)
	}
	if config.MinSpeechDuration < 0 {
		return nil, fmt.Errorf("min speech duration cannot be negative, got %s", config.MinSpeechDuration)
	}
	return &Detector{config: config}, nil
}

// Detect scans samples recorded at sampleRate. A trailing partial window is
// evaluated on the samples it has.
func (d *Detector) Detect(samples []int16, sampleRate int) (*Result, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}

	window := int(d.config.Window.Seconds() * float64(sampleRate))
	if window < 1 {
		window = 1
	}

	offset := func(sample int) time.Duration {
		return time.Duration(float64(sample) / float64(sampleRate) * float64(time.Second))
	}

	result := &Result{Segments: []Segment{}}
	var level float64
	start := -1

	for pos := 0; pos < len(samples); pos += window {
		end := min(pos+window, len(samples))

		energy := rms(samples[pos:end])
		if result.Windows == 0 {
			level = energy
		} else {
			level = d.config.Smoothing*energy + (1-d.config.Smoothing)*level
		}
		result.Windows++

		if level >= d.config.Threshold {
			result.VoiceWindows++
			if start < 0 {
				start = pos
			}
			continue
		}

		if start >= 0 {
			d.appendSegment(result, Segment{Start: offset(start), End: offset(pos)})
			start = -1
		}
	}

	if start >= 0 {
		d.appendSegment(result, Segment{Start: offset(start), End: offset(len(samples))})
	}

	if result.Windows > 0 {
		result.VoiceRatio = float64(result.VoiceWindows) / float64(result.Windows)
	}

	return result, nil
}

func (d *Detector) appendSegment(r *Result, s Segment) {
	if s.Duration() < d.config.MinSpeechDuration {
		return
	}
	r.Segments = append(r.Segments, s)
	r.Speech += s.Duration()
}

// rms returns the root mean square of samples relative to full scale
func rms(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum/float64(len(samples))) / math.MaxInt16
}
