// Command loanvoice is a terminal client for the LoanVoice realtime loan
// assistant: it streams microphone audio to the backend, plays the
// assistant's voice back, and renders transcripts, decisions and
// verification handoffs.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/loanvoice/loanvoice/internal/call"
	"github.com/loanvoice/loanvoice/internal/config"
	"github.com/loanvoice/loanvoice/internal/handoff"
	"github.com/loanvoice/loanvoice/internal/notify"
	"github.com/loanvoice/loanvoice/internal/observe"
	"github.com/loanvoice/loanvoice/internal/transport"
	"github.com/loanvoice/loanvoice/internal/wire"
	"github.com/loanvoice/loanvoice/pkg/audio"
	"github.com/loanvoice/loanvoice/pkg/audio/capture"
	"github.com/loanvoice/loanvoice/pkg/audio/codec"
	"github.com/loanvoice/loanvoice/pkg/audio/playback"
)

// version is stamped by the build; "dev" for local builds.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// Tokens live in the environment, not the config file. A missing .env is
	// fine; the variables may come from the shell.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "loanvoice: loading .env: %v\n", err)
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "loanvoice: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "loanvoice: %v\n", err)
		}
		return 1
	}

	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("loanvoice starting",
		"version", version,
		"config", *configPath,
		"server", cfg.Server.URL,
		"encoding", cfg.Capture.Encoding,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "loanvoice",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── Transport ─────────────────────────────────────────────────────────────
	var clientOpts []transport.ClientOption
	clientOpts = append(clientOpts, transport.WithLogger(logger), transport.WithMetrics(metrics))
	if cfg.Server.TokenEnv != "" {
		src := handoff.EnvToken{Var: cfg.Server.TokenEnv}
		clientOpts = append(clientOpts, transport.WithTokenSource(src.Token))
	}
	client := transport.NewClient(cfg.Server.URL, clientOpts...)

	// ── Audio pipeline ────────────────────────────────────────────────────────
	sampleRate := cfg.Capture.SampleRate
	if sampleRate <= 0 {
		sampleRate = 16000
	}

	var graphOpts []capture.Option
	graphOpts = append(graphOpts, capture.WithLogger(logger))
	if cfg.Capture.Gain > 0 {
		graphOpts = append(graphOpts, capture.WithGain(cfg.Capture.Gain))
	}
	graph := capture.NewGraph(newMicDevice(cfg.Capture.Device), capture.Config{
		SampleRate:       sampleRate,
		Channels:         1,
		FrameDuration:    cfg.Capture.FrameDuration.Std(),
		EchoCancellation: cfg.Capture.EchoCancellation,
		NoiseSuppression: cfg.Capture.NoiseSuppression,
	}, graphOpts...)

	encoder, err := codec.NewEncoder(string(cfg.Capture.Encoding), audio.Format{
		SampleRate: sampleRate,
		Channels:   1,
	})
	if err != nil {
		slog.Error("failed to build audio encoder", "err", err)
		return 1
	}

	decoder, err := playback.NewChunkDecoder(cfg.Playback.Encoding, audio.Format{
		SampleRate: cfg.Playback.SampleRate,
		Channels:   cfg.Playback.Channels,
	})
	if err != nil {
		slog.Error("failed to build playback decoder", "err", err)
		return 1
	}

	out := newSpeaker()
	defer out.Close()
	queue := playback.NewQueue(out,
		playback.WithQueueLogger(logger),
		playback.WithDecoder(decoder),
		playback.WithDecodeErrorFunc(func(error) {
			metrics.DecodeErrors.Add(context.Background(), 1)
		}),
		playback.WithDepthFunc(func(delta int) {
			metrics.QueueDepth.Add(context.Background(), int64(delta))
		}),
	)

	// ── Controller and console ────────────────────────────────────────────────
	ui := &console{out: os.Stdout, errOut: os.Stderr}
	controller := call.New(call.Config{
		Client:      client,
		Graph:       graph,
		Player:      queue,
		Encoder:     encoder,
		View:        ui,
		Verifier:    ui,
		OnPhase:     ui.showPhase,
		OnUserError: ui.showError,
		Metrics:     metrics,
		Logger:      logger,
	})

	// ── Notification channel (optional) ───────────────────────────────────────
	if cfg.Notify.URL != "" {
		listener := notify.NewListener(notify.Config{
			Client: transport.NewClient(cfg.Notify.URL, clientOpts...),
			Policy: transport.ReconnectPolicy{
				MaxAttempts: cfg.Notify.MaxAttempts,
				Backoff:     cfg.Notify.Backoff.Std(),
				MaxBackoff:  cfg.Notify.MaxBackoff.Std(),
			},
			Handler: func(env wire.Envelope) {
				if text, err := env.Text(); err == nil && text != "" {
					fmt.Fprintf(os.Stdout, "[notify] %s\n", text)
					return
				}
				slog.Debug("notification received", "type", env.Type)
			},
			Logger: logger,
		})
		if err := listener.Start(ctx); err != nil {
			// Notifications are auxiliary; the voice flow works without them.
			slog.Warn("notification channel unavailable", "err", err)
		} else {
			defer listener.Stop()
		}
	}

	// The controller's exit ends the process: cancelRun releases the console
	// and the metrics server even when Run returns nil (user /quit).
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		defer cancelRun()
		return ignoreCanceled(controller.Run(gctx))
	})

	g.Go(func() error {
		defer controller.Shutdown()
		return ignoreCanceled(ui.runConsole(gctx, os.Stdin, controller))
	})

	if cfg.Metrics.ListenAddr != "" {
		srv := metricsServer(cfg.Metrics.ListenAddr, metrics)
		g.Go(func() error {
			slog.Info("metrics listening", "addr", cfg.Metrics.ListenAddr)
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if err := g.Wait(); err != nil {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// metricsServer serves /metrics and /healthz behind the observability
// middleware so scrapes carry trace correlation too.
func metricsServer(addr string, metrics *observe.Metrics) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return &http.Server{
		Addr:              addr,
		Handler:           observe.Middleware(metrics)(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
