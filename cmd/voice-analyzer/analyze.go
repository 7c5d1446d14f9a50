package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/skypro1111/voice-analyzer/internal/audio"
	"github.com/skypro1111/voice-analyzer/internal/metrics"
	"github.com/skypro1111/voice-analyzer/internal/prompt"
	"github.com/skypro1111/voice-analyzer/internal/session"
)

func runAnalyze(args []string) error {
	flags, common := newFlagSet("analyze")
	text := flags.String("prompt", "", "Text that was read aloud (random when empty)")
	wavOut := flags.String("wav", "", "Also write the encoded WAV to this path")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if flags.NArg() != 1 {
		return errors.New("expected exactly one input file")
	}

	cfg, closer, err := common.setup()
	if err != nil {
		return err
	}
	defer closer.Close()

	data, err := os.ReadFile(flags.Arg(0))
	if err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}

	if *text == "" {
		*text = prompt.Random(nil)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.NewMetrics()

	dec, err := newDecoder(cfg)
	if err != nil {
		return err
	}

	client, err := newAnalysisClient(cfg, log.Logger, m)
	if err != nil {
		return err
	}
	defer client.Close()

	pipeline := session.NewPipeline(dec, client, log.Logger, m)

	s := session.New(*text)
	if err := s.SetRecording(data); err != nil {
		return err
	}

	if err := pipeline.Prepare(ctx, s); err != nil {
		return err
	}

	if *wavOut != "" {
		if err := os.WriteFile(*wavOut, s.WAV(), 0o644); err != nil {
			return fmt.Errorf("failed to write WAV: %w", err)
		}
	}

	result, err := pipeline.Submit(ctx, s)
	if err != nil {
		return err
	}

	printResult(os.Stdout, s, result)
	return nil
}

func runEncode(args []string) error {
	flags, common := newFlagSet("encode")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if flags.NArg() != 2 {
		return errors.New("expected an input file and an output path")
	}

	cfg, closer, err := common.setup()
	if err != nil {
		return err
	}
	defer closer.Close()

	data, err := os.ReadFile(flags.Arg(0))
	if err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dec, err := newDecoder(cfg)
	if err != nil {
		return err
	}

	decoded, err := dec.Decode(ctx, data)
	if err != nil {
		return err
	}

	wav, err := audio.EncodeWAV(decoded)
	if err != nil {
		return err
	}

	if err := os.WriteFile(flags.Arg(1), wav, 0o644); err != nil {
		return fmt.Errorf("failed to write WAV: %w", err)
	}

	info, err := audio.GetWAVInfo(wav)
	if err != nil {
		return err
	}

	fmt.Printf("%s: %d Hz, %d channel(s), %.2fs, %d bytes\n",
		flags.Arg(1), info.SampleRate, info.Channels, info.Duration, len(wav))
	return nil
}
