// Package decoder turns captured recordings into floating point audio.
// It decodes PCM WAV input natively and delegates compressed containers
// (webm/opus, ogg, mp3, m4a) to an ffmpeg process.
package decoder
