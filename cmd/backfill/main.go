// Command backfill loads labelled service reports from the history log into
// the Qdrant wear index used by the kNN classifier. Reports without a wear
// condition or without a recommended distance are skipped.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"

	"github.com/google/uuid"

	"github.com/WessleyAI/wessley-upkeep/engine/domain"
	"github.com/WessleyAI/wessley-upkeep/engine/history"
	"github.com/WessleyAI/wessley-upkeep/engine/wear"
)

// sampleSink is satisfied by *wear.Index.
type sampleSink interface {
	EnsureCollection(ctx context.Context) error
	Add(ctx context.Context, samples []wear.Sample) (int, error)
}

type stats struct {
	read, loaded, skipped int
}

// toSample converts a service record; ok is false for records that carry
// no training signal.
func toSample(r history.Record, newID func() string) (wear.Sample, bool) {
	if r.IsOdometerUpdate() || r.RecommendedKm <= 0 {
		return wear.Sample{}, false
	}
	label, ok := domain.ParseWearLabel(r.Condition)
	if !ok {
		return wear.Sample{}, false
	}
	id := r.ID
	if _, err := uuid.Parse(id); err != nil {
		id = newID()
	}
	return wear.Sample{
		ID:          id,
		ProfileID:   r.ProfileID,
		ComponentID: r.ComponentID,
		AccruedKm:   r.DoneKm,
		TargetKm:    r.RecommendedKm,
		Label:       label,
	}, true
}

// backfill streams records from r into sink in batches.
func backfill(ctx context.Context, r io.Reader, sink sampleSink, batch int, logger *slog.Logger) (stats, error) {
	var st stats
	if err := sink.EnsureCollection(ctx); err != nil {
		return st, err
	}
	buf := make([]wear.Sample, 0, batch)
	flush := func() error {
		if len(buf) == 0 {
			return nil
		}
		skipped, err := sink.Add(ctx, buf)
		if err != nil {
			return err
		}
		st.loaded += len(buf) - skipped
		st.skipped += skipped
		buf = buf[:0]
		logger.Info("batch loaded", "loaded", st.loaded, "skipped", st.skipped, "read", st.read)
		return nil
	}
	err := history.Scan(r, func(rec history.Record) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		st.read++
		s, ok := toSample(rec, uuid.NewString)
		if !ok {
			st.skipped++
			return nil
		}
		buf = append(buf, s)
		if len(buf) >= batch {
			return flush()
		}
		return nil
	})
	if err != nil {
		return st, err
	}
	return st, flush()
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, logger); err != nil {
		logger.Error("backfill failed", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	path := envOr("HISTORY_PATH", "data/history.jsonl")
	qdrantURL := envOr("QDRANT_URL", "localhost:6334")
	collection := envOr("QDRANT_COLLECTION", "upkeep_wear")
	batch, err := strconv.Atoi(envOr("BATCH_SIZE", "256"))
	if err != nil || batch < 1 {
		return fmt.Errorf("invalid BATCH_SIZE")
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	defer f.Close()

	idx, err := wear.DialIndex(qdrantURL, collection, 0)
	if err != nil {
		return err
	}
	defer idx.Close()

	st, err := backfill(ctx, f, idx, batch, logger)
	if err != nil {
		return err
	}
	logger.Info("backfill done", "read", st.read, "loaded", st.loaded, "skipped", st.skipped, "collection", collection)
	return nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
