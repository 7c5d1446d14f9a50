package analysis

import (
	"errors"
	"fmt"
	"time"
)

// Quality assessments returned by the analysis service
const (
	QualityGood  = "Good"
	QualityNoisy = "Noisy"
)

// ErrService is matched by errors the analysis service reports in its response body
var ErrService = errors.New("analysis service error")

// ErrClosed is returned by Analyze once the client has been closed
var ErrClosed = errors.New("analysis client closed")

// Result is the verdict returned by the analysis service
type Result struct {
	QualityAssessment string   `json:"quality_assessment"`
	NoiseLevel        *float64 `json:"noise_level,omitempty"`
	Transcription     string   `json:"transcription"`
	IsNoisy           bool     `json:"is_noisy"`
	Result            string   `json:"result"`

	// Set locally, not part of the service response
	RequestID  string    `json:"request_id,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
}

// Good reports whether the service judged the recording clean
func (r *Result) Good() bool {
	return r != nil && r.QualityAssessment == QualityGood
}

// response is the wire form of a reply, which carries either a verdict or an error
type response struct {
	Result
	Error any `json:"error,omitempty"`
}

// ServiceError is an application-level failure reported in the "error" field
type ServiceError struct {
	Message string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("analysis service error: %s", e.Message)
}

func (e *ServiceError) Unwrap() error {
	return ErrService
}

// HTTPError is a non-2xx response from the analysis service
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP error %d: %s", e.StatusCode, e.Body)
}

// Temporary reports whether the request may succeed if retried
func (e *HTTPError) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == 429
}

// ClientStats represents client statistics
type ClientStats struct {
	TotalRequests   uint64        `json:"total_requests"`
	SuccessRequests uint64        `json:"success_requests"`
	FailedRequests  uint64        `json:"failed_requests"`
	SuccessRate     float64       `json:"success_rate"`
	TotalRetries    uint64        `json:"total_retries"`
	AvgResponseTime time.Duration `json:"avg_response_time"`
	ActiveRequests  int           `json:"active_requests"`
}
