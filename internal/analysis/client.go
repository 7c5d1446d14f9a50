package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/skypro1111/voice-analyzer/internal/audio"
	"github.com/skypro1111/voice-analyzer/internal/metrics"
)

const (
	// FileField is the multipart part carrying the WAV recording
	FileField = "file"
	// TextField is the multipart part carrying the prompt that was read aloud
	TextField = "text"
	// FileName is the filename declared for the recording part
	FileName = "recording.wav"
	// ContentTypeWAV is the content type declared for the recording part
	ContentTypeWAV = "audio/wav"

	maxBackoff      = 30 * time.Second
	maxResponseBody = 1 << 20
)

// Config contains analysis client configuration
type Config struct {
	Endpoint      string
	APIKey        string // optional, sent as a Bearer token
	Timeout       time.Duration
	MaxRetries    int
	MaxConcurrent int
	BackoffBase   time.Duration
	UserAgent     string
}

// Client provides HTTP client functionality for analysis API requests
type Client struct {
	config     Config
	httpClient *http.Client
	semaphore  chan struct{}
	closed     chan struct{}
	closeOnce  sync.Once
	logger     zerolog.Logger
	metrics    *metrics.Metrics

	// Statistics
	totalRequests   uint64
	successRequests uint64
	failedRequests  uint64
	totalRetries    uint64
	avgResponseTime time.Duration

	mu sync.RWMutex
}

// NewClient creates a new analysis HTTP client. m may be nil.
func NewClient(config Config, logger zerolog.Logger, m *metrics.Metrics) (*Client, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("endpoint cannot be empty")
	}

	u, err := url.Parse(config.Endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("endpoint must be an absolute http(s) URL, got %q", config.Endpoint)
	}

	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}

	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}

	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 4
	}

	if config.BackoffBase <= 0 {
		config.BackoffBase = time.Second
	}

	if config.UserAgent == "" {
		config.UserAgent = "Voice-Analyzer/1.0"
	}

	httpClient := &http.Client{
		Timeout: config.Timeout,
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        20,
			MaxIdleConnsPerHost: config.MaxConcurrent,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	return &Client{
		config:     config,
		httpClient: httpClient,
		semaphore:  make(chan struct{}, config.MaxConcurrent),
		closed:     make(chan struct{}),
		logger:     logger.With().Str("component", "analysis").Logger(),
		metrics:    m,
	}, nil
}

// Endpoint returns the configured service URL
func (c *Client) Endpoint() string {
	return c.config.Endpoint
}

// Analyze submits a WAV recording and the prompt it should contain.
// wav is only read, so a failed call can be retried with the same buffer.
func (c *Client) Analyze(ctx context.Context, wav []byte, text string) (*Result, error) {
	if err := audio.ValidateWAV(wav); err != nil {
		return nil, fmt.Errorf("refusing to submit invalid recording: %w", err)
	}

	select {
	case <-c.closed:
		return nil, ErrClosed
	default:
	}

	select {
	case c.semaphore <- struct{}{}:
		defer func() { <-c.semaphore }()
	case <-c.closed:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	startTime := time.Now()
	requestID := uuid.NewString()
	logger := c.logger.With().Str("requestId", requestID).Logger()

	c.incrementTotalRequests()
	c.metrics.RecordAnalysisRequest()

	var lastErr error

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			c.incrementTotalRetries()
			c.metrics.RecordAnalysisRetry()

			backoff := c.backoff(attempt)
			logger.Warn().
				Err(lastErr).
				Int("attempt", attempt).
				Dur("backoff", backoff).
				Msg("Retrying analysis request")

			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				c.recordFailure(startTime, ctx.Err())
				return nil, ctx.Err()
			}
		}

		result, err := c.doRequest(ctx, requestID, wav, text)
		if err == nil {
			elapsed := time.Since(startTime)
			c.incrementSuccessRequests()
			c.updateAvgResponseTime(elapsed)
			c.metrics.RecordAnalysisSuccess(elapsed.Seconds(), result.QualityAssessment)

			logger.Info().
				Str("quality", result.QualityAssessment).
				Bool("noisy", result.IsNoisy).
				Dur("elapsed", elapsed).
				Msg("Analysis completed")
			return result, nil
		}

		lastErr = err

		if ctx.Err() != nil || !IsRetryable(err) {
			break
		}
	}

	c.recordFailure(startTime, lastErr)

	var serviceErr *ServiceError
	if errors.As(lastErr, &serviceErr) {
		return nil, lastErr
	}
	return nil, fmt.Errorf("analysis failed: %w", lastErr)
}

func (c *Client) backoff(attempt int) time.Duration {
	d := time.Duration(math.Pow(2, float64(attempt-1))) * c.config.BackoffBase
	if d > maxBackoff || d <= 0 {
		d = maxBackoff
	}
	return d
}

func (c *Client) recordFailure(startTime time.Time, err error) {
	c.incrementFailedRequests()
	c.metrics.RecordAnalysisFailure(time.Since(startTime).Seconds(), failureReason(err))
	c.logger.Error().Err(err).Msg("Analysis request failed")
}

// doRequest performs a single HTTP request to the analysis API
func (c *Client) doRequest(ctx context.Context, requestID string, wav []byte, text string) (*Result, error) {
	body, contentType, err := NewMultipartBody(wav, text)
	if err != nil {
		return nil, fmt.Errorf("failed to create multipart request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", c.config.UserAgent)
	httpReq.Header.Set("X-Request-ID", requestID)
	if c.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}

	result, err := ParseResponse(respBody)
	if err != nil {
		return nil, err
	}

	result.RequestID = requestID
	result.ReceivedAt = time.Now()
	return result, nil
}

// NewMultipartBody builds the form the analysis service expects: the recording
// under "file" as recording.wav (audio/wav) and the prompt under "text"
func NewMultipartBody(wav []byte, text string) (io.Reader, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, FileField, FileName))
	h.Set("Content-Type", ContentTypeWAV)

	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create file part: %w", err)
	}

	if _, err := part.Write(wav); err != nil {
		return nil, "", fmt.Errorf("failed to write audio data: %w", err)
	}

	if err := writer.WriteField(TextField, text); err != nil {
		return nil, "", fmt.Errorf("failed to write field %s: %w", TextField, err)
	}

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close multipart writer: %w", err)
	}

	return &buf, writer.FormDataContentType(), nil
}

// ParseResponse decodes a service reply, turning a populated "error" field into
// a *ServiceError
func ParseResponse(body []byte) (*Result, error) {
	var resp response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response JSON: %w", err)
	}

	if msg, ok := errorMessage(resp.Error); ok {
		return nil, &ServiceError{Message: msg}
	}

	result := resp.Result
	return &result, nil
}

// errorMessage reports whether v is a set error value and renders it
func errorMessage(v any) (string, bool) {
	switch e := v.(type) {
	case nil:
		return "", false
	case bool:
		return "unspecified error", e
	case string:
		return e, e != ""
	case float64:
		return fmt.Sprint(e), e != 0
	default:
		raw, err := json.Marshal(e)
		if err != nil {
			return fmt.Sprint(e), true
		}
		return string(raw), true
	}
}

// IsRetryable determines if a failed request may succeed when retried
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		return false
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Temporary()
	}

	if errors.Is(err, context.Canceled) {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var opErr *net.OpError
	return errors.As(err, &opErr)
}

func failureReason(err error) string {
	var serviceErr *ServiceError
	var httpErr *HTTPError
	switch {
	case errors.As(err, &serviceErr):
		return "service"
	case errors.As(err, &httpErr):
		return "http"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "transport"
	}
}

// Statistics methods
func (c *Client) incrementTotalRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalRequests++
}

func (c *Client) incrementSuccessRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.successRequests++
}

func (c *Client) incrementFailedRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failedRequests++
}

func (c *Client) incrementTotalRetries() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalRetries++
}

func (c *Client) updateAvgResponseTime(responseTime time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Simple moving average
	if c.avgResponseTime == 0 {
		c.avgResponseTime = responseTime
	} else {
		c.avgResponseTime = (c.avgResponseTime + responseTime) / 2
	}
}

// GetStats returns current client statistics
func (c *Client) GetStats() ClientStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	successRate := float64(0)
	if c.totalRequests > 0 {
		successRate = float64(c.successRequests) / float64(c.totalRequests) * 100
	}

	return ClientStats{
		TotalRequests:   c.totalRequests,
		SuccessRequests: c.successRequests,
		FailedRequests:  c.failedRequests,
		SuccessRate:     successRate,
		TotalRetries:    c.totalRetries,
		AvgResponseTime: c.avgResponseTime,
		ActiveRequests:  len(c.semaphore),
	}
}

// Close rejects new requests, waits for in-flight ones to finish and
// releases idle connections. It is safe to call more than once.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
		for i := 0; i < cap(c.semaphore); i++ {
			c.semaphore <- struct{}{}
		}
		for i := 0; i < cap(c.semaphore); i++ {
			<-c.semaphore
		}
		c.httpClient.CloseIdleConnections()
	})
	return nil
}
