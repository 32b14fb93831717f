// Package main implements the Wessley Upkeep API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/nats-io/nats.go"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/WessleyAI/wessley-upkeep/engine/catalog"
	"github.com/WessleyAI/wessley-upkeep/engine/history"
	"github.com/WessleyAI/wessley-upkeep/engine/urgency"
	"github.com/WessleyAI/wessley-upkeep/engine/wear"
	"github.com/WessleyAI/wessley-upkeep/pkg/metrics"
	"github.com/WessleyAI/wessley-upkeep/pkg/mid"
	"github.com/WessleyAI/wessley-upkeep/pkg/natsutil"
	"github.com/WessleyAI/wessley-upkeep/pkg/resilience"
)

// Config holds all environment-based configuration.
type Config struct {
	Port        string
	CatalogPath string // empty: embedded catalog
	HistoryPath string
	CORSOrigin  string
	AuthUser    string
	AuthPass    string
	WriteRPS    float64
	WriteBurst  int

	// WearBackend is one of band, nats, grpc, index or none.
	WearBackend       string
	WearModelPath     string // band backend; empty: built-in bands
	WearGRPCAddr      string
	WearSubject       string
	ClassifierTimeout time.Duration
	MaxConcurrency    int
	BreakerThreshold  int
	BreakerTimeout    time.Duration

	NATSURL          string // empty disables publishing
	QdrantURL        string
	QdrantCollection string
	KNN              int
	Neo4jURL         string // empty disables the graph sink; with NATS it follows published records
	Neo4jUser        string
	Neo4jPass        string
	ConnectTimeout   time.Duration
}

func loadConfig() Config {
	return Config{
		Port:              envOr("PORT", "8080"),
		CatalogPath:       envOr("CATALOG_PATH", ""),
		HistoryPath:       envOr("HISTORY_PATH", "data/history.jsonl"),
		CORSOrigin:        envOr("CORS_ORIGIN", "*"),
		AuthUser:          envOr("AUTH_USERNAME", ""),
		AuthPass:          envOr("AUTH_PASSWORD", ""),
		WriteRPS:          envFloat("WRITE_RPS", 20),
		WriteBurst:        envInt("WRITE_BURST", 40),
		WearBackend:       envOr("WEAR_BACKEND", "band"),
		WearModelPath:     envOr("WEAR_MODEL_PATH", ""),
		WearGRPCAddr:      envOr("WEAR_GRPC_ADDR", "localhost:50061"),
		WearSubject:       envOr("WEAR_SUBJECT", wear.DefaultSubject),
		ClassifierTimeout: envDuration("CLASSIFIER_TIMEOUT", urgency.DefaultClassifierTimeout),
		MaxConcurrency:    envInt("CLASSIFIER_CONCURRENCY", urgency.DefaultMaxConcurrency),
		BreakerThreshold:  envInt("BREAKER_THRESHOLD", 5),
		BreakerTimeout:    envDuration("BREAKER_TIMEOUT", 30*time.Second),
		NATSURL:           envOr("NATS_URL", ""),
		QdrantURL:         envOr("QDRANT_URL", "localhost:6334"),
		QdrantCollection:  envOr("QDRANT_COLLECTION", "upkeep_wear"),
		KNN:               envInt("WEAR_KNN", 7),
		Neo4jURL:          envOr("NEO4J_URL", ""),
		Neo4jUser:         envOr("NEO4J_USER", "neo4j"),
		Neo4jPass:         envOr("NEO4J_PASS", "password"),
		ConnectTimeout:    envDuration("CONNECT_TIMEOUT", 30*time.Second),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return n
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if f, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return f
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return d
	}
	return fallback
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := loadConfig()

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := metrics.New()

	// --- Catalog ---
	store, err := catalog.NewStore(catalog.SourceLoader(cfg.CatalogPath, logger), logger)
	if err != nil {
		return err
	}

	// --- Optional NATS ---
	var nc *nats.Conn
	if cfg.NATSURL != "" {
		nc, err = natsutil.Connect(ctx, cfg.NATSURL, "upkeep-api", cfg.ConnectTimeout, logger)
		if err != nil {
			return err
		}
		defer nc.Drain()
	}

	// --- Wear classifier ---
	classifier, closer, err := buildClassifier(cfg, nc, logger)
	if err != nil {
		return err
	}
	defer closer.Close()

	var guard *wear.Guard
	var classify urgency.Classifier
	if classifier != nil {
		guard = wear.NewGuard(classifier, wear.GuardOpts{
			Name:    cfg.WearBackend,
			Breaker: resilience.BreakerOpts{FailThreshold: cfg.BreakerThreshold, Timeout: cfg.BreakerTimeout},
			Metrics: reg,
			Logger:  logger,
		})
		classify = guard
	}

	engine := urgency.New(store, urgency.Options{
		Classifier:     classify,
		Timeout:        cfg.ClassifierTimeout,
		MaxConcurrency: cfg.MaxConcurrency,
		Logger:         logger,
		Metrics:        reg,
	})

	// --- History sinks ---
	journal, err := history.OpenJSONL(cfg.HistoryPath)
	if err != nil {
		return err
	}
	defer journal.Close()

	var secondary []history.Sink
	if nc != nil {
		secondary = append(secondary, history.NewPublisher(nc))
	}
	var graph *history.Graph
	if cfg.Neo4jURL != "" {
		driver, err := connectNeo4j(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer driver.Close(context.Background())
		graph = history.NewGraph(driver)
		if nc != nil {
			// Every replica follows the published records; graph appends are idempotent.
			stopFollow, err := history.Follow(nc, graph, logger)
			if err != nil {
				return err
			}
			defer stopFollow()
		} else {
			secondary = append(secondary, graph)
		}
	}

	srv := &server{
		svc:      urgency.NewService(engine, store, catalog.NewResolver(), logger),
		store:    store,
		resolver: catalog.NewResolver(),
		recorder: history.NewRecorder(store, journal, logger, secondary...),
		logger:   logger,
	}
	if graph != nil {
		srv.histories = graph
	}
	if guard != nil {
		srv.breaker = guard
	}

	// --- HTTP server ---
	mux := http.NewServeMux()
	srv.routes(mux,
		mid.BasicAuth(cfg.AuthUser, cfg.AuthPass, "upkeep"),
		mid.RateLimit(cfg.WriteRPS, cfg.WriteBurst),
	)
	mux.Handle("GET /metrics", reg.Handler())

	handler := mid.Chain(mux,
		mid.Recover(logger),
		mid.RequestID(),
		mid.Logger(logger),
		mid.CORS(cfg.CORSOrigin),
		mid.OTel("upkeep-api"),
		mid.Metrics(reg),
	)

	httpSrv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// --- Graceful shutdown ---
	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "port", cfg.Port, "wear_backend", cfg.WearBackend,
			"classifier", engine.ClassifierEnabled(), "history", journal.Path())
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutCtx)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// buildClassifier selects the wear backend. A band model that fails to load
// leaves the service running without a classifier.
func buildClassifier(cfg Config, nc *nats.Conn, logger *slog.Logger) (wear.Classifier, io.Closer, error) {
	switch cfg.WearBackend {
	case "none", "":
		return nil, nopCloser{}, nil
	case "band":
		if cfg.WearModelPath == "" {
			return wear.DefaultBandModel(), nopCloser{}, nil
		}
		m, err := wear.LoadBandModel(cfg.WearModelPath)
		if err != nil {
			logger.Warn("wear model not loaded, verdicts unavailable", "path", cfg.WearModelPath, "err", err)
			return nil, nopCloser{}, nil
		}
		logger.Info("wear model loaded", "path", cfg.WearModelPath, "version", m.Version)
		return m, nopCloser{}, nil
	case "nats":
		if nc == nil {
			return nil, nil, fmt.Errorf("wear backend nats requires NATS_URL")
		}
		return wear.NewNATSClient(nc, cfg.WearSubject, cfg.ClassifierTimeout), nopCloser{}, nil
	case "grpc":
		conn, err := grpc.NewClient(cfg.WearGRPCAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return nil, nil, fmt.Errorf("dial wear worker: %w", err)
		}
		return wear.NewGRPCClient(conn), conn, nil
	case "index":
		idx, err := wear.DialIndex(cfg.QdrantURL, cfg.QdrantCollection, cfg.KNN)
		if err != nil {
			return nil, nil, err
		}
		return idx, idx, nil
	default:
		return nil, nil, fmt.Errorf("unknown wear backend %q", cfg.WearBackend)
	}
}

// connectNeo4j creates the driver and waits for the server to answer.
func connectNeo4j(ctx context.Context, cfg Config, logger *slog.Logger) (neo4j.DriverWithContext, error) {
	driver, err := neo4j.NewDriverWithContext(cfg.Neo4jURL, neo4j.BasicAuth(cfg.Neo4jUser, cfg.Neo4jPass, ""))
	if err != nil {
		return nil, fmt.Errorf("neo4j driver: %w", err)
	}
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = cfg.ConnectTimeout
	err = backoff.RetryNotify(func() error {
		return driver.VerifyConnectivity(ctx)
	}, backoff.WithContext(bo, ctx), func(err error, wait time.Duration) {
		logger.Warn("neo4j not reachable, retrying", "url", cfg.Neo4jURL, "wait", wait, "err", err)
	})
	if err != nil {
		driver.Close(context.Background())
		return nil, fmt.Errorf("neo4j connect: %w", err)
	}
	return driver, nil
}
