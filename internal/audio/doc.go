// Package audio handles the RIFF/WAVE container used for analysis uploads.
// It quantizes floating point audio to 16-bit PCM, writes the canonical 44-byte
// header, reads headers back for inspection and measures recording noise level.
package audio
