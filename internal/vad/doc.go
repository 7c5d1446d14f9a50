// Package vad finds speech in a recording with an energy detector over
// fixed windows. It is used to tell an empty or silent upload apart from one
// that is merely quiet before it is sent for analysis.
package vad
