package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/rs/zerolog"

	"github.com/skypro1111/voice-analyzer/internal/analysis"
	"github.com/skypro1111/voice-analyzer/internal/config"
	"github.com/skypro1111/voice-analyzer/internal/decoder"
	"github.com/skypro1111/voice-analyzer/internal/logging"
	"github.com/skypro1111/voice-analyzer/internal/metrics"
)

const (
	defaultConfigPath = "configs/config.yaml"
	defaultEnvFile    = ".env"
	serviceName       = "voice-analyzer"
	serviceVersion    = "1.0.0"
)

type command struct {
	name  string
	usage string
	run   func(args []string) error
}

var commands = []command{
	{"serve", "Run the HTTP API", runServe},
	{"analyze", "Decode, encode and submit an audio file: analyze [flags] <file>", runAnalyze},
	{"encode", "Convert an audio file to 16-bit PCM WAV: encode [flags] <in> <out.wav>", runEncode},
	{"record", "Record from the microphone and submit: record [flags]", runRecord},
	{"prompt", "Print a random phrase to read aloud", runPrompt},
}

func main() {
	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(2)
	}

	name := os.Args[1]
	if name == "-h" || name == "--help" || name == "help" {
		usage(os.Stdout)
		return
	}

	for _, c := range commands {
		if c.name != name {
			continue
		}
		if err := c.run(os.Args[2:]); err != nil {
			if errors.Is(err, flag.ErrHelp) {
				return
			}
			printError(fmt.Errorf("%s: %w", name, err))
			os.Exit(1)
		}
		return
	}

	fmt.Fprintf(os.Stderr, "unknown command %q\n\n", name)
	usage(os.Stderr)
	os.Exit(2)
}

func usage(w io.Writer) {
	fmt.Fprintf(w, "Usage: %s <command> [flags]\n\nCommands:\n", serviceName)
	for _, c := range commands {
		fmt.Fprintf(w, "  %-8s %s\n", c.name, c.usage)
	}
	fmt.Fprintf(w, "\nEvery command accepts -config <path> (default %s).\n", defaultConfigPath)
}

// commonFlags are shared by every subcommand
type commonFlags struct {
	configPath string
	envFile    string
	logLevel   string
}

func newFlagSet(name string) (*flag.FlagSet, *commonFlags) {
	flags := flag.NewFlagSet(name, flag.ContinueOnError)
	c := &commonFlags{}
	flags.StringVar(&c.configPath, "config", defaultConfigPath, "Path to configuration file")
	flags.StringVar(&c.envFile, "env", defaultEnvFile, "Optional .env file with overrides")
	flags.StringVar(&c.logLevel, "log-level", "", "Override the configured log level")
	return flags, c
}

// setup loads configuration and initializes the global logger
func (c *commonFlags) setup() (*config.Config, io.Closer, error) {
	path := c.configPath
	if path == defaultConfigPath {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			path = ""
		}
	}

	cfg, err := config.Load(path, c.envFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if c.logLevel != "" {
		cfg.Logging.Level = c.logLevel
	}

	closer, err := logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logging: %w", err)
	}

	return cfg, closer, nil
}

func newDecoder(cfg *config.Config) (*decoder.Auto, error) {
	ffmpeg, err := decoder.NewFFmpegDecoder(decoder.FFmpegConfig{
		Path:       cfg.Decoder.FFmpegPath,
		SampleRate: cfg.Decoder.SampleRate,
		Channels:   cfg.Decoder.Channels,
		Timeout:    cfg.Decoder.GetTimeoutDuration(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create ffmpeg decoder: %w", err)
	}
	return decoder.NewAuto(ffmpeg), nil
}

func newAnalysisClient(cfg *config.Config, logger zerolog.Logger, m *metrics.Metrics) (*analysis.Client, error) {
	client, err := analysis.NewClient(analysis.Config{
		Endpoint:      cfg.Analysis.Endpoint,
		APIKey:        cfg.Analysis.APIKey,
		Timeout:       cfg.Analysis.GetTimeoutDuration(),
		MaxRetries:    cfg.Analysis.MaxRetries,
		MaxConcurrent: cfg.Analysis.MaxConcurrent,
		BackoffBase:   cfg.Analysis.GetBackoffBaseDuration(),
		UserAgent:     serviceName + "/" + serviceVersion,
	}, logger, m)
	if err != nil {
		return nil, fmt.Errorf("failed to create analysis client: %w", err)
	}
	return client, nil
}
