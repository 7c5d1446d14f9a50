// Package events publishes analysis outcomes to Kafka.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/skypro1111/voice-analyzer/internal/metrics"
)

// ResultEvent is the message written for every completed analysis.
type ResultEvent struct {
	SessionID         string    `json:"sessionId"`
	RequestID         string    `json:"requestId,omitempty"`
	Prompt            string    `json:"prompt"`
	Transcription     string    `json:"transcription"`
	QualityAssessment string    `json:"qualityAssessment"`
	IsNoisy           bool      `json:"isNoisy"`
	ServiceNoiseLevel *float64  `json:"serviceNoiseLevel,omitempty"`
	LocalNoiseLevel   float64   `json:"localNoiseLevel"`
	DigitsMatch       bool      `json:"digitsMatch"`
	Verdict           string    `json:"verdict"`
	DurationSeconds   float64   `json:"durationSeconds"`
	SpeechSeconds     float64   `json:"speechSeconds"`
	SampleRate        int       `json:"sampleRate"`
	Timestamp         time.Time `json:"timestamp"`
}

// Config holds Kafka publisher configuration.
type Config struct {
	Brokers []string
	Topic   string
	Enabled bool
}

// messageWriter is the subset of *kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher publishes result events to a Kafka topic. When disabled it only logs.
type Publisher struct {
	writer  messageWriter
	topic   string
	enabled bool
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

// New creates a new Kafka event publisher. m may be nil.
func New(cfg *Config, logger zerolog.Logger, m *metrics.Metrics) *Publisher {
	logger = logger.With().Str("component", "events").Logger()

	if cfg == nil {
		logger.Info().Msg("Kafka disabled (nil config), using log-only mode")
		return &Publisher{logger: logger, metrics: m}
	}

	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		logger.Info().Msg("Kafka disabled, using log-only mode")
		return &Publisher{
			topic:   cfg.Topic,
			logger:  logger,
			metrics: m,
		}
	}

	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
		Transport: &kafka.Transport{
			Dial: dialer.DialFunc,
		},
	}

	logger.Info().
		Strs("brokers", cfg.Brokers).
		Str("topic", cfg.Topic).
		Msg("Kafka publisher initialized")

	return &Publisher{
		writer:  writer,
		topic:   cfg.Topic,
		enabled: true,
		logger:  logger,
		metrics: m,
	}
}

// Enabled reports whether events are written to Kafka.
func (p *Publisher) Enabled() bool {
	return p.enabled
}

// PublishResult writes a result event keyed by session so a session's
// events stay on one partition.
func (p *Publisher) PublishResult(ctx context.Context, key string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		p.logger.Error().Err(err).Str("topic", p.topic).Msg("Failed to marshal event")
		p.metrics.RecordEventPublished(err)
		return err
	}

	p.logger.Debug().
		Str("topic", p.topic).
		Str("key", key).
		RawJSON("payload", payload).
		Msg("Publishing event")

	if !p.enabled || p.writer == nil {
		return nil
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte("analysis.result")},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error().
			Err(err).
			Str("topic", p.topic).
			Str("key", key).
			Msg("Failed to write to Kafka")
		p.metrics.RecordEventPublished(err)
		return err
	}

	p.metrics.RecordEventPublished(nil)
	return nil
}

// Close closes the Kafka writer.
func (p *Publisher) Close() error {
	if p.writer == nil {
		return nil
	}
	if err := p.writer.Close(); err != nil {
		p.logger.Error().Err(err).Msg("Error closing Kafka writer")
		return err
	}
	return nil
}
