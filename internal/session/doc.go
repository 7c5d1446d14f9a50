// Package session holds per-recording state and runs the
// decode, encode and submit stages over it.
//
// A Session is created for each prompt the user reads. The recording is
// attached with SetRecording (compressed bytes from a browser) or SetAudio
// (PCM from a local capture device). A Pipeline then decodes the recording,
// encodes it into a 16-bit PCM WAV container and submits the container to
// the analysis service. Each stage fails with a *StageError naming it.
//
// Only one stage may run against a session at a time; a concurrent attempt
// fails with ErrBusy. A failed submission keeps the encoded WAV so Submit
// can be retried without re-encoding.
//
// The Manager keeps sessions by ID and expires idle ones.
package session
