// Command wear-worker serves the banded wear model to the API over NATS
// request-reply and gRPC.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/WessleyAI/wessley-upkeep/engine/wear"
	"github.com/WessleyAI/wessley-upkeep/pkg/metrics"
	"github.com/WessleyAI/wessley-upkeep/pkg/natsutil"
	"github.com/WessleyAI/wessley-upkeep/pkg/resilience"
)

// Config holds all environment-based configuration.
type Config struct {
	GRPCPort       string // empty disables gRPC
	MetricsPort    string
	NATSURL        string // empty disables NATS
	Subject        string
	Queue          string
	ModelPath      string // empty: built-in bands
	ConnectTimeout time.Duration
}

func loadConfig() Config {
	timeout, err := time.ParseDuration(envOr("CONNECT_TIMEOUT", "30s"))
	if err != nil {
		timeout = 30 * time.Second
	}
	return Config{
		GRPCPort:       envOr("GRPC_PORT", "50061"),
		MetricsPort:    envOr("METRICS_PORT", "9091"),
		NATSURL:        envOr("NATS_URL", ""),
		Subject:        envOr("WEAR_SUBJECT", wear.DefaultSubject),
		Queue:          envOr("WEAR_QUEUE", "wear-workers"),
		ModelPath:      envOr("WEAR_MODEL_PATH", ""),
		ConnectTimeout: timeout,
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(loadConfig(), logger); err != nil {
		logger.Error("wear worker exited with error", "err", err)
		os.Exit(1)
	}
}

func loadModel(path string) (*wear.BandModel, error) {
	if path == "" {
		return wear.DefaultBandModel(), nil
	}
	return wear.LoadBandModel(path)
}

func run(cfg Config, logger *slog.Logger) error {
	if cfg.GRPCPort == "" && cfg.NATSURL == "" {
		return fmt.Errorf("nothing to serve: set GRPC_PORT or NATS_URL")
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	model, err := loadModel(cfg.ModelPath)
	if err != nil {
		return err
	}
	logger.Info("wear model ready", "version", model.Version, "bands", len(model.Bands))

	reg := metrics.New()
	// A local model only fails on bad input, which must not trip the breaker.
	classifier := wear.NewGuard(model, wear.GuardOpts{
		Name:    "band",
		Breaker: resilience.BreakerOpts{FailThreshold: 1 << 30},
		Metrics: reg,
		Logger:  logger,
	})

	errCh := make(chan error, 3)

	// --- NATS responder ---
	if cfg.NATSURL != "" {
		nc, err := natsutil.Connect(ctx, cfg.NATSURL, "upkeep-wear-worker", cfg.ConnectTimeout, logger)
		if err != nil {
			return err
		}
		defer nc.Drain()
		if _, err := wear.ServeNATS(nc, cfg.Subject, cfg.Queue, classifier, logger); err != nil {
			return fmt.Errorf("subscribe %s: %w", cfg.Subject, err)
		}
		logger.Info("nats responder ready", "subject", cfg.Subject, "queue", cfg.Queue)
	}

	// --- gRPC server ---
	var gs *grpc.Server
	if cfg.GRPCPort != "" {
		lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
		if err != nil {
			return fmt.Errorf("listen grpc: %w", err)
		}
		gs = grpc.NewServer()
		wear.RegisterGRPC(gs, classifier)
		hs := health.NewServer()
		hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
		healthpb.RegisterHealthServer(gs, hs)
		go func() {
			logger.Info("grpc server starting", "port", cfg.GRPCPort)
			errCh <- gs.Serve(lis)
		}()
	}

	// --- Metrics ---
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", reg.Handler())
	msrv := &http.Server{Addr: ":" + cfg.MetricsPort, Handler: mux, ReadTimeout: 5 * time.Second}
	go func() {
		if err := msrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	if gs != nil {
		gs.GracefulStop()
	}
	shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return msrv.Shutdown(shutCtx)
}
