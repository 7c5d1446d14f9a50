package session

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/skypro1111/voice-analyzer/internal/analysis"
	"github.com/skypro1111/voice-analyzer/internal/audio"
	"github.com/skypro1111/voice-analyzer/internal/decoder"
	"github.com/skypro1111/voice-analyzer/internal/events"
	"github.com/skypro1111/voice-analyzer/internal/logging"
	"github.com/skypro1111/voice-analyzer/internal/metrics"
	"github.com/skypro1111/voice-analyzer/internal/prompt"
	"github.com/skypro1111/voice-analyzer/internal/vad"
)

// Analyzer submits an encoded recording together with the prompt text
type Analyzer interface {
	Analyze(ctx context.Context, wav []byte, text string) (*analysis.Result, error)
}

// Publisher receives completed analyses
type Publisher interface {
	PublishResult(ctx context.Context, key string, event any) error
}

// Pipeline runs the decode, encode and submit stages against sessions
type Pipeline struct {
	decoder   decoder.Decoder
	analyzer  Analyzer
	publisher Publisher
	detector  *vad.Detector
	logger    zerolog.Logger
	metrics   *metrics.Metrics
}

// NewPipeline creates a pipeline. dec may be nil when every session is fed
// with SetAudio; m may be nil.
func NewPipeline(dec decoder.Decoder, analyzer Analyzer, logger zerolog.Logger, m *metrics.Metrics) *Pipeline {
	detector, _ := vad.NewDetector(vad.DefaultConfig())

	return &Pipeline{
		decoder:  dec,
		analyzer: analyzer,
		detector: detector,
		logger:   logger.With().Str("component", "pipeline").Logger(),
		metrics:  m,
	}
}

// WithDetector replaces the voice activity detector run after encoding
func (p *Pipeline) WithDetector(d *vad.Detector) *Pipeline {
	p.detector = d
	return p
}

// WithPublisher makes the pipeline publish every successful analysis
func (p *Pipeline) WithPublisher(pub Publisher) *Pipeline {
	p.publisher = pub
	return p
}

// Decode turns the session's compressed recording into PCM
func (p *Pipeline) Decode(ctx context.Context, s *Session) error {
	release, err := s.acquire()
	if err != nil {
		return &StageError{Stage: StageDecode, Err: err}
	}
	defer release()

	return p.decode(ctx, s)
}

// Encode wraps the session's decoded audio in a WAV container
func (p *Pipeline) Encode(s *Session) error {
	release, err := s.acquire()
	if err != nil {
		return &StageError{Stage: StageEncode, Err: err}
	}
	defer release()

	return p.encode(s)
}

// Submit sends the session's WAV to the analysis service. A failed
// submission leaves the WAV in place so Submit can be called again.
func (p *Pipeline) Submit(ctx context.Context, s *Session) (*analysis.Result, error) {
	release, err := s.acquire()
	if err != nil {
		return nil, &StageError{Stage: StageSubmit, Err: err}
	}
	defer release()

	return p.submit(ctx, s)
}

// Prepare decodes and encodes the session, skipping stages whose output is
// already present.
func (p *Pipeline) Prepare(ctx context.Context, s *Session) error {
	release, err := s.acquire()
	if err != nil {
		return &StageError{Stage: StageDecode, Err: err}
	}
	defer release()

	return p.prepare(ctx, s)
}

// Run executes every outstanding stage in order and returns the verdict
func (p *Pipeline) Run(ctx context.Context, s *Session) (*analysis.Result, error) {
	release, err := s.acquire()
	if err != nil {
		return nil, &StageError{Stage: StageDecode, Err: err}
	}
	defer release()

	if err := p.prepare(ctx, s); err != nil {
		return nil, err
	}
	return p.submit(ctx, s)
}

func (p *Pipeline) prepare(ctx context.Context, s *Session) error {
	s.mu.RLock()
	needDecode := s.audio == nil
	needEncode := s.wav == nil
	s.mu.RUnlock()

	if needDecode {
		if err := p.decode(ctx, s); err != nil {
			return err
		}
		needEncode = true
	}

	if !needEncode {
		return nil
	}

	// Encoding starts only from a complete, still wanted decode.
	if err := ctx.Err(); err != nil {
		if needDecode {
			s.mu.Lock()
			s.audio = nil
			s.state = StateRecorded
			s.mu.Unlock()
		}
		return &StageError{Stage: StageEncode, Err: err}
	}

	return p.encode(s)
}

func (p *Pipeline) decode(ctx context.Context, s *Session) error {
	s.mu.RLock()
	recording := s.recording
	s.mu.RUnlock()

	if len(recording) == 0 {
		return &StageError{Stage: StageDecode, Err: ErrNoRecording}
	}
	if p.decoder == nil {
		return s.fail(StageDecode, errors.New("no decoder configured"))
	}
	if err := ctx.Err(); err != nil {
		return &StageError{Stage: StageDecode, Err: err}
	}

	logger := logging.WithSession(p.logger, s.ID)
	start := time.Now()

	decoded, err := p.decoder.Decode(ctx, recording)
	p.metrics.RecordDecode(p.decoderName(recording), err, time.Since(start).Seconds())
	if err != nil {
		logger.Warn().Err(err).Int("bytes", len(recording)).Msg("Decode failed")
		return s.fail(StageDecode, err)
	}

	// A cancelled context drops whatever the decoder returned.
	if err := ctx.Err(); err != nil {
		return &StageError{Stage: StageDecode, Err: err}
	}

	s.mu.Lock()
	s.audio = decoded
	s.wav = nil
	s.result = nil
	s.lastErr = nil
	s.failedAt = ""
	s.state = StateDecoded
	s.mu.Unlock()

	logger.Debug().
		Int("sample_rate", decoded.SampleRate).
		Int("channels", decoded.ChannelCount).
		Int("frames", decoded.NumFrames()).
		Dur("took", time.Since(start)).
		Msg("Recording decoded")

	return nil
}

func (p *Pipeline) decoderName(data []byte) string {
	if auto, ok := p.decoder.(*decoder.Auto); ok {
		if d := auto.Select(data); d != nil {
			return d.Name()
		}
	}
	return p.decoder.Name()
}

func (p *Pipeline) encode(s *Session) error {
	s.mu.RLock()
	decoded := s.audio
	s.mu.RUnlock()

	if decoded == nil {
		return &StageError{Stage: StageEncode, Err: ErrNoRecording}
	}

	logger := logging.WithSession(p.logger, s.ID)

	wav, err := audio.EncodeWAV(decoded)
	p.metrics.RecordEncode(err, len(wav), decoded.Duration())
	if err != nil {
		logger.Warn().Err(err).Msg("Encode failed")
		return s.fail(StageEncode, err)
	}

	noise, speech := p.measure(wav, logger)

	s.mu.Lock()
	s.wav = wav
	s.noiseLevel = noise
	s.speech = speech
	s.result = nil
	s.lastErr = nil
	s.failedAt = ""
	s.submits = 0
	s.state = StateEncoded
	s.mu.Unlock()

	logger.Debug().
		Int("bytes", len(wav)).
		Float64("noise_level", noise).
		Float64("duration_seconds", decoded.Duration()).
		Msg("Recording encoded")

	return nil
}

// measure computes the noise level and voice activity of an encoded recording
func (p *Pipeline) measure(wav []byte, logger zerolog.Logger) (float64, *vad.Result) {
	samples, header, err := audio.DecodePCM16(wav)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to read back encoded recording")
		return 0, nil
	}

	noise := audio.NoiseLevel(samples)
	p.metrics.RecordNoiseLevel(noise)

	if p.detector == nil {
		return noise, nil
	}

	speech, err := p.detector.Detect(samples, int(header.SampleRate))
	if err != nil {
		logger.Warn().Err(err).Msg("Voice activity detection failed")
		return noise, nil
	}
	if !speech.HasSpeech() {
		logger.Warn().Float64("noise_level", noise).Msg("No speech detected in recording")
	}

	return noise, speech
}

func (p *Pipeline) submit(ctx context.Context, s *Session) (*analysis.Result, error) {
	s.mu.Lock()
	wav := s.wav
	if wav == nil {
		s.mu.Unlock()
		return nil, &StageError{Stage: StageSubmit, Err: ErrNoWAV}
	}
	s.state = StateAnalyzing
	s.submits++
	attempt := s.submits
	s.mu.Unlock()

	if p.analyzer == nil {
		return nil, s.fail(StageSubmit, errors.New("no analyzer configured"))
	}

	logger := logging.WithSession(p.logger, s.ID)
	logger.Debug().Int("bytes", len(wav)).Int("attempt", attempt).Msg("Submitting recording")

	result, err := p.analyzer.Analyze(ctx, wav, s.Prompt)
	if err != nil {
		logger.Warn().Err(err).Int("attempt", attempt).Msg("Analysis failed")
		return nil, s.fail(StageSubmit, err)
	}

	s.mu.Lock()
	s.result = result
	s.lastErr = nil
	s.failedAt = ""
	s.state = StateAnalyzed
	noise := s.noiseLevel
	speech := s.speech
	var duration float64
	var sampleRate int
	if s.audio != nil {
		duration = s.audio.Duration()
		sampleRate = s.audio.SampleRate
	}
	s.mu.Unlock()

	logger.Info().
		Str("quality", result.QualityAssessment).
		Str("result", result.Result).
		Str("request_id", result.RequestID).
		Msg("Analysis completed")

	if p.publisher != nil {
		event := events.ResultEvent{
			SessionID:         s.ID,
			RequestID:         result.RequestID,
			Prompt:            s.Prompt,
			Transcription:     result.Transcription,
			QualityAssessment: result.QualityAssessment,
			IsNoisy:           result.IsNoisy,
			ServiceNoiseLevel: result.NoiseLevel,
			LocalNoiseLevel:   noise,
			DigitsMatch:       prompt.Match(s.Prompt, result.Transcription),
			Verdict:           result.Result,
			DurationSeconds:   duration,
			SpeechSeconds:     speech.SpeechSeconds(),
			SampleRate:        sampleRate,
			Timestamp:         result.ReceivedAt,
		}
		if err := p.publisher.PublishResult(ctx, s.ID, event); err != nil {
			logger.Warn().Err(err).Msg("Failed to publish analysis result")
		}
	}

	return result, nil
}
