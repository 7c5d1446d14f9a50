package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "voice_analyzer"

// Metrics contains all Prometheus metrics for the voice analyzer
type Metrics struct {
	registry *prometheus.Registry

	// Decode metrics
	DecodesTotal   *prometheus.CounterVec
	DecodeDuration *prometheus.HistogramVec

	// Encode metrics
	EncodesTotal     *prometheus.CounterVec
	EncodedBytes     prometheus.Histogram
	RecordingSeconds prometheus.Histogram
	NoiseLevel       prometheus.Histogram

	// Analysis metrics
	AnalysisRequests  prometheus.Counter
	AnalysisSuccesses prometheus.Counter
	AnalysisFailures  *prometheus.CounterVec
	AnalysisRetries   prometheus.Counter
	AnalysisDuration  prometheus.Histogram
	Verdicts          *prometheus.CounterVec

	// Session metrics
	ActiveSessions   prometheus.Gauge
	SessionsCreated  prometheus.Counter
	SessionsExpired  prometheus.Counter
	SessionsRejected prometheus.Counter

	// Event metrics
	EventsPublished *prometheus.CounterVec

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates all metrics on a private registry, so several instances
// can coexist in one process
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		DecodesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decodes_total",
			Help:      "Total number of recordings decoded",
		}, []string{"decoder", "result"}),
		DecodeDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "decode_duration_seconds",
			Help:      "Time spent decoding recordings",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~2.5s
		}, []string{"decoder"}),

		EncodesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "encodes_total",
			Help:      "Total number of WAV containers encoded",
		}, []string{"result"}),
		EncodedBytes: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "encoded_wav_bytes",
			Help:      "Size of encoded WAV containers in bytes",
			Buckets:   prometheus.ExponentialBuckets(1024, 2, 14), // 1KB to ~8MB
		}),
		RecordingSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "recording_duration_seconds",
			Help:      "Duration of encoded recordings",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 8), // 0.5s to ~1 minute
		}),
		NoiseLevel: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "recording_noise_level",
			Help:      "RMS noise level of encoded recordings relative to full scale",
			Buckets:   prometheus.LinearBuckets(0, 0.1, 11), // 0.0 to 1.0
		}),

		AnalysisRequests: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analysis_requests_total",
			Help:      "Total number of analysis submissions",
		}),
		AnalysisSuccesses: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analysis_successes_total",
			Help:      "Total number of successful analysis submissions",
		}),
		AnalysisFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analysis_failures_total",
			Help:      "Total number of failed analysis submissions",
		}, []string{"reason"}),
		AnalysisRetries: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analysis_retries_total",
			Help:      "Total number of analysis request retries",
		}),
		AnalysisDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analysis_duration_seconds",
			Help:      "Duration of analysis submissions",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~1 minute
		}),
		Verdicts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verdicts_total",
			Help:      "Analysis verdicts by quality assessment",
		}, []string{"quality"}),

		ActiveSessions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Current number of recording sessions",
		}),
		SessionsCreated: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_created_total",
			Help:      "Total number of recording sessions created",
		}),
		SessionsExpired: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_expired_total",
			Help:      "Total number of sessions removed for inactivity",
		}),
		SessionsRejected: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_rejected_total",
			Help:      "Total number of sessions refused because the limit was reached",
		}),

		EventsPublished: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Total number of result events published",
		}, []string{"result"}),

		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_errors_total",
			Help:      "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// Registry returns the registry the metrics are registered on
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordDecode records a decode attempt
func (m *Metrics) RecordDecode(decoder string, err error, durationSeconds float64) {
	if m == nil {
		return
	}
	m.DecodesTotal.WithLabelValues(decoder, result(err)).Inc()
	m.DecodeDuration.WithLabelValues(decoder).Observe(durationSeconds)
}

// RecordEncode records an encode attempt and, on success, the container size and duration
func (m *Metrics) RecordEncode(err error, sizeBytes int, durationSeconds float64) {
	if m == nil {
		return
	}
	m.EncodesTotal.WithLabelValues(result(err)).Inc()
	if err == nil {
		m.EncodedBytes.Observe(float64(sizeBytes))
		m.RecordingSeconds.Observe(durationSeconds)
	}
}

// RecordNoiseLevel records the noise level of an encoded recording
func (m *Metrics) RecordNoiseLevel(level float64) {
	if m == nil {
		return
	}
	m.NoiseLevel.Observe(level)
}

// RecordAnalysisRequest increments analysis requests counter
func (m *Metrics) RecordAnalysisRequest() {
	if m == nil {
		return
	}
	m.AnalysisRequests.Inc()
}

// RecordAnalysisSuccess records a successful analysis and its verdict
func (m *Metrics) RecordAnalysisSuccess(durationSeconds float64, quality string) {
	if m == nil {
		return
	}
	m.AnalysisSuccesses.Inc()
	m.AnalysisDuration.Observe(durationSeconds)
	if quality == "" {
		quality = "unknown"
	}
	m.Verdicts.WithLabelValues(quality).Inc()
}

// RecordAnalysisFailure records a failed analysis
func (m *Metrics) RecordAnalysisFailure(durationSeconds float64, reason string) {
	if m == nil {
		return
	}
	m.AnalysisFailures.WithLabelValues(reason).Inc()
	m.AnalysisDuration.Observe(durationSeconds)
}

// RecordAnalysisRetry increments the retry counter
func (m *Metrics) RecordAnalysisRetry() {
	if m == nil {
		return
	}
	m.AnalysisRetries.Inc()
}

// SetActiveSessions sets the current number of sessions
func (m *Metrics) SetActiveSessions(count int) {
	if m == nil {
		return
	}
	m.ActiveSessions.Set(float64(count))
}

// RecordSessionCreated increments the sessions created counter
func (m *Metrics) RecordSessionCreated() {
	if m == nil {
		return
	}
	m.SessionsCreated.Inc()
}

// RecordSessionExpired increments the sessions expired counter
func (m *Metrics) RecordSessionExpired() {
	if m == nil {
		return
	}
	m.SessionsExpired.Inc()
}

// RecordSessionRejected increments the sessions rejected counter
func (m *Metrics) RecordSessionRejected() {
	if m == nil {
		return
	}
	m.SessionsRejected.Inc()
}

// RecordEventPublished records a publish attempt
func (m *Metrics) RecordEventPublished(err error) {
	if m == nil {
		return
	}
	m.EventsPublished.WithLabelValues(result(err)).Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	if m == nil {
		return
	}
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
