// Package server implements the browser-facing HTTP API. A client creates a
// session, uploads the compressed recording, and asks for it to be analyzed.
// Uploads are decoded and encoded to WAV synchronously; analysis is submitted
// on request so a failed submission can be retried without re-uploading.
package server
