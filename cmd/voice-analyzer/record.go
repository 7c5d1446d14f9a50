package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/skypro1111/voice-analyzer/internal/capture"
	"github.com/skypro1111/voice-analyzer/internal/metrics"
	"github.com/skypro1111/voice-analyzer/internal/prompt"
	"github.com/skypro1111/voice-analyzer/internal/session"
)

func runRecord(args []string) error {
	flags, common := newFlagSet("record")
	text := flags.String("prompt", "", "Text to read aloud (random when empty)")
	duration := flags.Duration("duration", 0, "Stop after this long (default: capture.max_duration)")
	wavOut := flags.String("o", "", "Write the encoded WAV to this path")
	noSubmit := flags.Bool("no-submit", false, "Only record and encode")
	if err := flags.Parse(args); err != nil {
		return err
	}

	cfg, closer, err := common.setup()
	if err != nil {
		return err
	}
	defer closer.Close()

	maxDuration := cfg.Capture.GetMaxDuration()
	if *duration > 0 {
		maxDuration = *duration
	}

	recorder, err := capture.NewRecorder(capture.Config{
		SampleRate:      cfg.Capture.SampleRate,
		Channels:        cfg.Capture.Channels,
		FramesPerBuffer: cfg.Capture.FramesPerBuffer,
		MaxDuration:     maxDuration,
	}, log.Logger)
	if err != nil {
		return err
	}

	if *text == "" {
		*text = prompt.Random(nil)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Println("Read this aloud:")
	green.Printf("\n    %s\n\n", *text)
	faint.Printf("Recording for up to %s. Press Enter to stop.\n", maxDuration.Round(time.Second))

	recordCtx, stopRecording := context.WithCancel(ctx)
	defer stopRecording()
	go func() {
		_, _ = bufio.NewReader(os.Stdin).ReadString('\n')
		stopRecording()
	}()

	recorded, err := recorder.Record(recordCtx)
	if err != nil {
		return err
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	m := metrics.NewMetrics()

	var analyzer session.Analyzer
	if !*noSubmit {
		client, err := newAnalysisClient(cfg, log.Logger, m)
		if err != nil {
			return err
		}
		defer client.Close()
		analyzer = client
	}

	pipeline := session.NewPipeline(nil, analyzer, log.Logger, m)

	s := session.New(*text)
	if err := s.SetAudio(recorded); err != nil {
		return err
	}

	if err := pipeline.Prepare(ctx, s); err != nil {
		return err
	}

	if *wavOut != "" {
		if err := os.WriteFile(*wavOut, s.WAV(), 0o644); err != nil {
			return fmt.Errorf("failed to write WAV: %w", err)
		}
		faint.Printf("Wrote %s (%d bytes)\n", *wavOut, len(s.WAV()))
	}

	if *noSubmit {
		return nil
	}

	result, err := pipeline.Submit(ctx, s)
	if err != nil {
		return err
	}

	printResult(os.Stdout, s, result)
	return nil
}
