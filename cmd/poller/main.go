package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samuelvanderwaal/phoenix-sdk/internal/alert"
	"github.com/samuelvanderwaal/phoenix-sdk/internal/config"
	"github.com/samuelvanderwaal/phoenix-sdk/internal/ledger"
	"github.com/samuelvanderwaal/phoenix-sdk/internal/market"
	"github.com/samuelvanderwaal/phoenix-sdk/internal/metrics"
	"github.com/samuelvanderwaal/phoenix-sdk/internal/poller"
	"github.com/samuelvanderwaal/phoenix-sdk/internal/sink"
	"github.com/samuelvanderwaal/phoenix-sdk/internal/solana/ratelimit"
	"github.com/samuelvanderwaal/phoenix-sdk/internal/solana/rpc"
	"github.com/samuelvanderwaal/phoenix-sdk/internal/tracing"
	"golang.org/x/sync/errgroup"
)

const queueDepthSampleInterval = 5 * time.Second

func buildAlerter(cfg *config.Config, logger *slog.Logger) alert.Alerter {
	var channels []alert.Alerter
	if cfg.Alert.SlackWebhookURL != "" {
		channels = append(channels, alert.NewSlackAlerter(cfg.Alert.SlackWebhookURL))
	}
	if cfg.Alert.WebhookURL != "" {
		channels = append(channels, alert.NewWebhookAlerter(cfg.Alert.WebhookURL))
	}
	if len(channels) == 0 {
		return &alert.NoopAlerter{}
	}
	return alert.NewMultiAlerter(cfg.Alert.Cooldown, logger, channels...)
}

func buildSink(cfg *config.Config, out <-chan market.EventBatch, logger *slog.Logger) (sink.Sink, error) {
	if cfg.Sink.RedisEnabled {
		return sink.NewRedisStreamSink(cfg.Sink.RedisURL, cfg.Sink.RedisStream, out, logger)
	}
	return sink.NewLogSink(out, logger), nil
}

// startQueueDepthPump samples the output queue occupancy into a gauge so
// dashboards can see consumer lag building up before the queue blocks.
func startQueueDepthPump(ctx context.Context, out chan market.EventBatch) {
	ticker := time.NewTicker(queueDepthSampleInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				metrics.QueueDepth.Set(float64(len(out)))
			}
		}
	}()
}

func main() {
	logLevel := slog.LevelInfo
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	switch cfg.Log.Level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	logger.Info("starting phoenix-poller",
		"rpc", cfg.Solana.RPCURL,
		"program_id", cfg.Market.ProgramID,
		"markets", len(cfg.Market.Addresses),
		"interval_ms", cfg.Poller.IntervalMs,
		"queue_capacity", cfg.Poller.QueueCapacity,
		"redis_sink", cfg.Sink.RedisEnabled,
	)

	tracingEndpoint := ""
	if cfg.Tracing.Enabled {
		tracingEndpoint = cfg.Tracing.Endpoint
	}
	shutdownTracing, err := tracing.Init(context.Background(), "phoenix-poller", tracingEndpoint, cfg.Tracing.Insecure, cfg.Tracing.SampleRatio)
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("tracing shutdown error", "error", err)
		}
	}()
	if cfg.Tracing.Enabled {
		logger.Info("tracing enabled", "endpoint", cfg.Tracing.Endpoint)
	}

	limiter := ratelimit.NewLimiter(cfg.Solana.RateLimitRPS, cfg.Solana.RateLimitBurst)
	client := rpc.NewClient(cfg.Solana.RPCURL, logger, rpc.WithRateLimiter(limiter))

	// RPC preflight: fail fast on a bad endpoint instead of inside the
	// first poll cycle.
	preflightCtx, preflightCancel := context.WithTimeout(context.Background(), 15*time.Second)
	slot, err := client.GetSlot(preflightCtx, "confirmed")
	preflightCancel()
	if err != nil {
		logger.Error("rpc endpoint preflight failed", "rpc", cfg.Solana.RPCURL, "error", err)
		os.Exit(1)
	}
	logger.Info("rpc endpoint reachable", "slot", slot)

	query := ledger.NewSolanaQuery(client, logger)

	out := make(chan market.EventBatch, cfg.Poller.QueueCapacity)

	pollers := make([]*poller.Poller, 0, len(cfg.Market.Addresses))
	for _, addr := range cfg.Market.Addresses {
		decoder, err := market.NewLedgerDecoder(client, cfg.Market.ProgramID, addr, logger)
		if err != nil {
			logger.Error("failed to create decoder", "market", addr, "error", err)
			os.Exit(1)
		}
		pollers = append(pollers, poller.New(addr, query, decoder, out, logger,
			poller.WithInterval(cfg.PollInterval()),
		))
	}

	batchSink, err := buildSink(cfg, out, logger)
	if err != nil {
		logger.Error("failed to create sink", "error", err)
		os.Exit(1)
	}

	alerter := buildAlerter(cfg, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	g, gCtx := errgroup.WithContext(ctx)

	// Health check server
	g.Go(func() error {
		return runHealthServer(gCtx, cfg.Server.HealthPort, logger)
	})

	// One poller per watched market
	for i, p := range pollers {
		p := p
		addr := cfg.Market.Addresses[i]
		g.Go(func() error {
			err := p.Run(gCtx)
			if err != nil && gCtx.Err() == nil {
				alertCtx, alertCancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer alertCancel()
				if sendErr := alerter.Send(alertCtx, alert.Alert{
					Type:    alert.AlertTypePollerFailed,
					Market:  addr,
					Title:   "Poller terminated",
					Message: err.Error(),
				}); sendErr != nil {
					logger.Warn("failed to send poller alert", "market", addr, "error", sendErr)
				}
			}
			return err
		})
	}

	// Sink
	g.Go(func() error {
		return batchSink.Run(gCtx)
	})

	startQueueDepthPump(gCtx, out)

	// Signal handler
	g.Go(func() error {
		select {
		case sig := <-sigCh:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
			return nil
		case <-gCtx.Done():
			return nil
		}
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		logger.Error("poller exited with error", "error", err)
		os.Exit(1)
	}

	logger.Info("poller shut down gracefully")
}

func runHealthServer(ctx context.Context, port int, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("ok")); err != nil {
			logger.Warn("failed to write health response", "error", err)
		}
	})
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && err != http.ErrServerClosed {
			logger.Warn("health server shutdown error", "error", err)
		}
	}()

	logger.Info("health server started", "port", port)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("health server: %w", err)
	}
	return nil
}
