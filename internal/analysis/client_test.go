package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/skypro1111/voice-analyzer/internal/audio"
	"github.com/skypro1111/voice-analyzer/internal/metrics"
)

func testWAV(t *testing.T) []byte {
	t.Helper()
	data, err := audio.EncodeWAV(&audio.DecodedAudio{
		SampleRate:   44100,
		ChannelCount: 1,
		Samples:      [][]float32{{0.0, 0.5, -0.5, 1.0}},
	})
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}
	return data
}

func newTestClient(t *testing.T, endpoint string, retries int) (*Client, *metrics.Metrics) {
	t.Helper()
	m := metrics.NewMetrics()
	c, err := NewClient(Config{
		Endpoint:    endpoint,
		MaxRetries:  retries,
		BackoffBase: time.Millisecond,
		Timeout:     5 * time.Second,
	}, zerolog.Nop(), m)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return c, m
}

func TestNewClientValidation(t *testing.T) {
	tests := []struct {
		name     string
		endpoint string
	}{
		{"empty", ""},
		{"relative", "/analyze"},
		{"bad scheme", "ftp://localhost/analyze"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewClient(Config{Endpoint: tt.endpoint}, zerolog.Nop(), nil); err == nil {
				t.Error("Expected error")
			}
		})
	}

	c, err := NewClient(Config{Endpoint: "http://localhost:8000/analyze/"}, zerolog.Nop(), nil)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if c.config.MaxConcurrent != 4 || c.config.Timeout != 60*time.Second || c.config.BackoffBase != time.Second {
		t.Errorf("Unexpected defaults: %+v", c.config)
	}
}

func TestAnalyzeMultipartRequest(t *testing.T) {
	wav := testWAV(t)
	prompt := "My verification code is 4 7 2 9."

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST, got %s", r.Method)
		}
		if r.Header.Get("X-Request-ID") == "" {
			t.Error("Expected request ID header")
		}
		if r.Header.Get("Authorization") != "" {
			t.Error("Expected no Authorization header without API key")
		}

		if err := r.ParseMultipartForm(10 << 20); err != nil {
			t.Errorf("ParseMultipartForm failed: %v", err)
			return
		}

		if got := r.FormValue("text"); got != prompt {
			t.Errorf("Expected text %q, got %q", prompt, got)
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("FormFile failed: %v", err)
			return
		}
		defer file.Close()

		if header.Filename != "recording.wav" {
			t.Errorf("Expected filename recording.wav, got %s", header.Filename)
		}
		if ct := header.Header.Get("Content-Type"); ct != "audio/wav" {
			t.Errorf("Expected content type audio/wav, got %s", ct)
		}

		got, _ := io.ReadAll(file)
		if string(got) != string(wav) {
			t.Error("Uploaded WAV does not match the encoded buffer")
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"transcription":      " My verification code is 4 7 2 9.",
			"noise_level":        0.012,
			"is_noisy":           false,
			"quality_assessment": "Good",
			"result":             "You are cleared. No noise detected. You pass.",
		})
	}))
	defer server.Close()

	c, m := newTestClient(t, server.URL, 0)

	result, err := c.Analyze(context.Background(), wav, prompt)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	if !result.Good() {
		t.Errorf("Expected Good verdict, got %q", result.QualityAssessment)
	}
	if result.NoiseLevel == nil || *result.NoiseLevel != 0.012 {
		t.Errorf("Expected noise level 0.012, got %v", result.NoiseLevel)
	}
	if result.IsNoisy {
		t.Error("Expected is_noisy false")
	}
	if result.RequestID == "" {
		t.Error("Expected request ID on result")
	}

	stats := c.GetStats()
	if stats.TotalRequests != 1 || stats.SuccessRequests != 1 || stats.SuccessRate != 100 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
	if got := testutil.ToFloat64(m.Verdicts.WithLabelValues("Good")); got != 1 {
		t.Errorf("Expected Good verdict metric, got %f", got)
	}
}

func TestAnalyzeAPIKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("Expected bearer token, got %q", got)
		}
		w.Write([]byte(`{"quality_assessment":"Good"}`))
	}))
	defer server.Close()

	c, err := NewClient(Config{Endpoint: server.URL, APIKey: "secret"}, zerolog.Nop(), nil)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	if _, err := c.Analyze(context.Background(), testWAV(t), "1 2 3"); err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
}

func TestAnalyzeServiceError(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write([]byte(`{"error":"could not decode audio"}`))
	}))
	defer server.Close()

	c, _ := newTestClient(t, server.URL, 3)

	_, err := c.Analyze(context.Background(), testWAV(t), "1 2 3")
	if !errors.Is(err, ErrService) {
		t.Fatalf("Expected ErrService, got %v", err)
	}

	var serviceErr *ServiceError
	if !errors.As(err, &serviceErr) || serviceErr.Message != "could not decode audio" {
		t.Errorf("Unexpected service error: %v", err)
	}

	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("Expected service errors not to be retried, got %d calls", calls)
	}
}

func TestAnalyzeRetriesServerErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			http.Error(w, "model loading", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"quality_assessment":"Noisy","is_noisy":true,"noise_level":0.7}`))
	}))
	defer server.Close()

	c, m := newTestClient(t, server.URL, 3)

	wav := testWAV(t)
	original := append([]byte(nil), wav...)

	result, err := c.Analyze(context.Background(), wav, "1 2 3")
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	if result.QualityAssessment != QualityNoisy || !result.IsNoisy {
		t.Errorf("Unexpected result: %+v", result)
	}
	if atomic.LoadInt32(&calls) != 3 {
		t.Errorf("Expected 3 calls, got %d", calls)
	}
	if string(wav) != string(original) {
		t.Error("Expected WAV buffer to be left untouched")
	}
	if stats := c.GetStats(); stats.TotalRetries != 2 {
		t.Errorf("Expected 2 retries, got %d", stats.TotalRetries)
	}
	if got := testutil.ToFloat64(m.AnalysisRetries); got != 2 {
		t.Errorf("Expected retry metric 2, got %f", got)
	}
}

func TestAnalyzeClientErrorNotRetried(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, `{"detail":"field required"}`, http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	c, m := newTestClient(t, server.URL, 3)

	_, err := c.Analyze(context.Background(), testWAV(t), "1 2 3")

	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("Expected HTTPError, got %v", err)
	}
	if httpErr.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("Expected status 422, got %d", httpErr.StatusCode)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("Expected 1 call, got %d", calls)
	}
	if stats := c.GetStats(); stats.FailedRequests != 1 {
		t.Errorf("Expected 1 failed request, got %d", stats.FailedRequests)
	}
	if got := testutil.ToFloat64(m.AnalysisFailures.WithLabelValues("http")); got != 1 {
		t.Errorf("Expected http failure metric, got %f", got)
	}
}

func TestAnalyzeMalformedJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>oops</html>`))
	}))
	defer server.Close()

	c, _ := newTestClient(t, server.URL, 0)

	if _, err := c.Analyze(context.Background(), testWAV(t), "1 2 3"); err == nil {
		t.Error("Expected error for malformed JSON")
	}
}

func TestAnalyzeInvalidRecording(t *testing.T) {
	c, _ := newTestClient(t, "http://127.0.0.1:1/analyze", 0)

	if _, err := c.Analyze(context.Background(), []byte("not a wav"), "1 2 3"); err == nil {
		t.Error("Expected error for invalid recording")
	}
	if stats := c.GetStats(); stats.TotalRequests != 0 {
		t.Errorf("Expected no request for invalid recording, got %d", stats.TotalRequests)
	}
}

func TestAnalyzeContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "busy", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	c, err := NewClient(Config{Endpoint: server.URL, MaxRetries: 5, BackoffBase: time.Hour}, zerolog.Nop(), nil)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = c.Analyze(ctx, testWAV(t), "1 2 3")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}
}

func TestAnalyzeAfterClose(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer server.Close()

	c, _ := newTestClient(t, server.URL, 0)

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Close()
		c.Close()
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if _, err := c.Analyze(ctx, testWAV(t), "1 2 3"); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
	if n := atomic.LoadInt32(&hits); n != 0 {
		t.Errorf("Expected no request after Close, got %d", n)
	}
	if stats := c.GetStats(); stats.ActiveRequests != 0 {
		t.Errorf("Expected no active requests, got %d", stats.ActiveRequests)
	}
}

func TestParseResponse(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantErr    bool
		wantServer bool
	}{
		{"verdict", `{"quality_assessment":"Good","result":"pass"}`, false, false},
		{"null error", `{"error":null,"quality_assessment":"Good"}`, false, false},
		{"empty error", `{"error":"","quality_assessment":"Good"}`, false, false},
		{"false error", `{"error":false,"quality_assessment":"Good"}`, false, false},
		{"string error", `{"error":"boom"}`, true, true},
		{"object error", `{"error":{"code":3}}`, true, true},
		{"true error", `{"error":true}`, true, true},
		{"not json", `nope`, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseResponse([]byte(tt.body))
			if (err != nil) != tt.wantErr {
				t.Fatalf("Expected error=%v, got %v", tt.wantErr, err)
			}
			if errors.Is(err, ErrService) != tt.wantServer {
				t.Errorf("Expected ErrService=%v, got %v", tt.wantServer, err)
			}
		})
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"service", &ServiceError{Message: "x"}, false},
		{"500", &HTTPError{StatusCode: 500}, true},
		{"429", &HTTPError{StatusCode: 429}, true},
		{"400", &HTTPError{StatusCode: 400}, false},
		{"deadline", context.DeadlineExceeded, true},
		{"canceled", context.Canceled, false},
		{"other", errors.New("failed to parse response JSON"), false},
	}

	for _, tt := range tests {
		if got := IsRetryable(tt.err); got != tt.want {
			t.Errorf("%s: expected %v, got %v", tt.name, tt.want, got)
		}
	}
}
