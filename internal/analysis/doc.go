// Package analysis implements the HTTP client for the voice analysis service.
// It uploads an encoded recording together with the prompt that was read aloud
// as multipart form data, retries transient failures with exponential backoff
// and bounds the number of concurrent requests.
package analysis
