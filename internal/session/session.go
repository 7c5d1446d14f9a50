package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/skypro1111/voice-analyzer/internal/analysis"
	"github.com/skypro1111/voice-analyzer/internal/audio"
	"github.com/skypro1111/voice-analyzer/internal/vad"
)

var (
	// ErrBusy is returned when another stage is already running on the session
	ErrBusy = errors.New("session busy")

	// ErrNoRecording is returned when a stage needs a recording the session does not have
	ErrNoRecording = errors.New("no recording")

	// ErrNoWAV is returned by Submit before the recording has been encoded
	ErrNoWAV = errors.New("no encoded WAV")

	// ErrNotFound is returned for unknown session IDs
	ErrNotFound = errors.New("session not found")

	// ErrTooManySessions is returned when the manager is at capacity
	ErrTooManySessions = errors.New("too many sessions")
)

// Stage names a step of the pipeline
type Stage string

const (
	StageDecode Stage = "decode"
	StageEncode Stage = "encode"
	StageSubmit Stage = "submit"
)

// StageError reports which pipeline stage failed
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// State is the lifecycle position of a session
type State string

const (
	StateCreated   State = "created"
	StateRecorded  State = "recorded"
	StateDecoded   State = "decoded"
	StateEncoded   State = "encoded"
	StateAnalyzing State = "analyzing"
	StateAnalyzed  State = "analyzed"
	StateFailed    State = "failed"
)

// Session is one prompt and the recording made for it
type Session struct {
	ID        string
	Prompt    string
	CreatedAt time.Time

	mu           sync.RWMutex
	lastActivity time.Time
	state        State
	busy         bool

	recording  []byte
	audio      *audio.DecodedAudio
	wav        []byte
	noiseLevel float64
	speech     *vad.Result
	result     *analysis.Result
	lastErr    error
	failedAt   Stage
	submits    int
}

// New creates a session for the given prompt
func New(prompt string) *Session {
	now := time.Now()
	return &Session{
		ID:           uuid.NewString(),
		Prompt:       prompt,
		CreatedAt:    now,
		lastActivity: now,
		state:        StateCreated,
	}
}

// SetRecording attaches compressed audio and discards everything derived
// from a previous recording.
func (s *Session) SetRecording(data []byte) error {
	if len(data) == 0 {
		return ErrNoRecording
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.busy {
		return ErrBusy
	}

	s.reset()
	s.recording = data
	s.state = StateRecorded
	return nil
}

// SetAudio attaches already decoded audio, skipping the decode stage
func (s *Session) SetAudio(a *audio.DecodedAudio) error {
	if a == nil || a.NumFrames() == 0 {
		return ErrNoRecording
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.busy {
		return ErrBusy
	}

	s.reset()
	s.audio = a
	s.state = StateDecoded
	return nil
}

// reset clears derived state. Caller holds s.mu.
func (s *Session) reset() {
	s.recording = nil
	s.audio = nil
	s.wav = nil
	s.noiseLevel = 0
	s.speech = nil
	s.result = nil
	s.lastErr = nil
	s.failedAt = ""
	s.submits = 0
	s.lastActivity = time.Now()
}

// acquire marks the session busy. The returned release must be called.
func (s *Session) acquire() (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.busy {
		return nil, ErrBusy
	}
	s.busy = true
	s.lastActivity = time.Now()

	return func() {
		s.mu.Lock()
		s.busy = false
		s.lastActivity = time.Now()
		s.mu.Unlock()
	}, nil
}

func (s *Session) fail(stage Stage, err error) *StageError {
	s.mu.Lock()
	s.lastErr = err
	s.failedAt = stage
	s.state = StateFailed
	s.mu.Unlock()
	return &StageError{Stage: stage, Err: err}
}

// Recording returns the compressed recording, if any
func (s *Session) Recording() []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.recording
}

// Audio returns the decoded audio, if any
func (s *Session) Audio() *audio.DecodedAudio {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.audio
}

// WAV returns the encoded container, if any
func (s *Session) WAV() []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.wav
}

// Result returns the last analysis result, if any
func (s *Session) Result() *analysis.Result {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.result
}

// Err returns the error of the last failed stage
func (s *Session) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// State returns the current lifecycle state
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Busy reports whether a stage is running
func (s *Session) Busy() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.busy
}

// LastActivity returns when the session was last touched
func (s *Session) LastActivity() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActivity
}

// Info is a point-in-time snapshot of a session
type Info struct {
	ID              string           `json:"id"`
	Prompt          string           `json:"prompt"`
	State           State            `json:"state"`
	Busy            bool             `json:"busy"`
	CreatedAt       time.Time        `json:"created_at"`
	LastActivity    time.Time        `json:"last_activity"`
	RecordingBytes  int              `json:"recording_bytes"`
	SampleRate      int              `json:"sample_rate,omitempty"`
	ChannelCount    int              `json:"channel_count,omitempty"`
	DurationSeconds float64          `json:"duration_seconds,omitempty"`
	WAVBytes        int              `json:"wav_bytes"`
	NoiseLevel      float64          `json:"noise_level"`
	HasSpeech       bool             `json:"has_speech"`
	SpeechSeconds   float64          `json:"speech_seconds"`
	VoiceRatio      float64          `json:"voice_ratio"`
	Submissions     int              `json:"submissions"`
	Result          *analysis.Result `json:"result,omitempty"`
	FailedStage     Stage            `json:"failed_stage,omitempty"`
	Error           string           `json:"error,omitempty"`
}

// Info returns a snapshot of the session
func (s *Session) Info() Info {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info := Info{
		ID:             s.ID,
		Prompt:         s.Prompt,
		State:          s.state,
		Busy:           s.busy,
		CreatedAt:      s.CreatedAt,
		LastActivity:   s.lastActivity,
		RecordingBytes: len(s.recording),
		WAVBytes:       len(s.wav),
		NoiseLevel:     s.noiseLevel,
		Submissions:    s.submits,
		Result:         s.result,
		FailedStage:    s.failedAt,
	}

	if s.audio != nil {
		info.SampleRate = s.audio.SampleRate
		info.ChannelCount = s.audio.ChannelCount
		info.DurationSeconds = s.audio.Duration()
	}

	if s.speech != nil {
		info.HasSpeech = s.speech.HasSpeech()
		info.SpeechSeconds = s.speech.SpeechSeconds()
		info.VoiceRatio = s.speech.VoiceRatio
	}

	if s.lastErr != nil {
		info.Error = s.lastErr.Error()
	}

	return info
}
