// Command analysis-stub serves the /analyze endpoint locally so the analyzer
// can be exercised without the speech recognition service. The transcription
// is the submitted text unless -transcript overrides it.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/skypro1111/voice-analyzer/internal/analysis"
	"github.com/skypro1111/voice-analyzer/internal/audio"
	"github.com/skypro1111/voice-analyzer/internal/logging"
	"github.com/skypro1111/voice-analyzer/internal/prompt"
)

const (
	verdictNoisy    = "Audio is noisy. Please go to a quieter environment and record again."
	verdictLiveness = "voice liveness failed."
	verdictPass     = "You are cleared. No noise detected. You pass."

	maxFormBytes = 32 << 20
)

type analyzeResponse struct {
	Transcription     string  `json:"transcription"`
	NoiseLevel        float64 `json:"noise_level"`
	IsNoisy           bool    `json:"is_noisy"`
	QualityAssessment string  `json:"quality_assessment"`
	Result            string  `json:"result"`
}

// verdict applies the service rules: noise first, then the digits check
func verdict(noiseLevel float64, text, transcription string) analyzeResponse {
	resp := analyzeResponse{
		Transcription: transcription,
		NoiseLevel:    noiseLevel,
		IsNoisy:       noiseLevel > audio.NoisyThreshold,
	}

	switch {
	case resp.IsNoisy:
		resp.QualityAssessment = analysis.QualityNoisy
		resp.Result = verdictNoisy
	case !prompt.Match(text, transcription):
		resp.QualityAssessment = analysis.QualityGood
		resp.Result = verdictLiveness
	default:
		resp.QualityAssessment = analysis.QualityGood
		resp.Result = verdictPass
	}

	return resp
}

type stub struct {
	logger     zerolog.Logger
	transcript string
	delay      time.Duration
}

func (s *stub) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Post("/analyze", s.handleAnalyze)
	r.Post("/analyze/", s.handleAnalyze)
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return r
}

func (s *stub) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxFormBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid multipart form"})
		return
	}

	text := r.FormValue(analysis.TextField)

	file, header, err := r.FormFile(analysis.FileField)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing file part"})
		return
	}
	defer file.Close()

	wav, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to read file part"})
		return
	}

	noiseLevel, err := audio.WAVNoiseLevel(wav)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]string{"error": fmt.Sprintf("unreadable recording: %v", err)})
		return
	}

	transcription := text
	if s.transcript != "" {
		transcription = s.transcript
	}

	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-r.Context().Done():
			return
		}
	}

	resp := verdict(noiseLevel, text, transcription)

	s.logger.Info().
		Str("requestId", r.Header.Get("X-Request-ID")).
		Str("filename", header.Filename).
		Str("content_type", header.Header.Get("Content-Type")).
		Int("bytes", len(wav)).
		Str("text", text).
		Float64("noise_level", noiseLevel).
		Str("quality", resp.QualityAssessment).
		Str("result", resp.Result).
		Msg("Analysis request")

	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func main() {
	addr := flag.String("addr", "127.0.0.1:8000", "Listen address")
	transcript := flag.String("transcript", "", "Fixed transcription to return instead of echoing the text part")
	delay := flag.Duration("delay", 0, "Artificial processing delay")
	logLevel := flag.String("log-level", "info", "Log level")
	flag.Parse()

	closer, err := logging.Init(logging.Config{Level: *logLevel, Format: "console", Output: "stderr"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logging: %v\n", err)
		os.Exit(1)
	}
	defer closer.Close()

	s := &stub{
		logger:     logging.WithComponent("analysis-stub"),
		transcript: *transcript,
		delay:      *delay,
	}

	server := &http.Server{
		Addr:              *addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("address", *addr).Msgf("Analysis stub listening on http://%s/analyze/", *addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("Shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Shutdown failed")
	}
}
