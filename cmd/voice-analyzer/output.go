package main

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"

	"github.com/skypro1111/voice-analyzer/internal/analysis"
	"github.com/skypro1111/voice-analyzer/internal/prompt"
	"github.com/skypro1111/voice-analyzer/internal/session"
)

var (
	green  = color.New(color.FgGreen, color.Bold)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
	faint  = color.New(color.Faint)
)

// printResult renders a verdict for a terminal
func printResult(w io.Writer, s *session.Session, result *analysis.Result) {
	info := s.Info()

	faint.Fprintf(w, "session    %s\n", s.ID)
	fmt.Fprintf(w, "prompt     %s\n", s.Prompt)
	fmt.Fprintf(w, "heard      %s\n", result.Transcription)
	fmt.Fprintf(w, "recording  %.2fs at %d Hz, %d bytes WAV, local noise %.3f\n",
		info.DurationSeconds, info.SampleRate, info.WAVBytes, info.NoiseLevel)
	if result.NoiseLevel != nil {
		fmt.Fprintf(w, "noise      %.3f\n", *result.NoiseLevel)
	}

	switch {
	case result.QualityAssessment == analysis.QualityNoisy:
		yellow.Fprintf(w, "quality    %s\n", result.QualityAssessment)
	case result.Good():
		green.Fprintf(w, "quality    %s\n", result.QualityAssessment)
	default:
		red.Fprintf(w, "quality    %s\n", result.QualityAssessment)
	}

	if result.Good() && prompt.Match(s.Prompt, result.Transcription) {
		green.Fprintf(w, "result     %s\n", result.Result)
	} else {
		red.Fprintf(w, "result     %s\n", result.Result)
	}
}

func printError(err error) {
	red.Fprintf(os.Stderr, "error: %v\n", err)
}
