package history

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/WessleyAI/wessley-upkeep/pkg/natsutil"
)

// Follow feeds every record announced by a Publisher into sink. Every
// follower sees every record, so sink must be idempotent on the record id.
// The returned func unsubscribes.
func Follow(nc natsutil.Subscriber, sink Sink, logger *slog.Logger) (func(), error) {
	if logger == nil {
		logger = slog.Default()
	}
	var subs []*nats.Subscription
	stop := func() {
		for _, s := range subs {
			if s != nil {
				s.Unsubscribe()
			}
		}
	}
	for _, subject := range []string{SubjectServiceReported, SubjectOdometerUpdated} {
		sub, err := natsutil.Subscribe(nc, subject, func(ctx context.Context, r Record) {
			if err := sink.Append(ctx, r); err != nil {
				logger.Warn("history: follow append failed", "subject", subject, "id", r.ID, "err", err)
			}
		})
		if err != nil {
			stop()
			return nil, fmt.Errorf("history: follow %s: %w", subject, err)
		}
		subs = append(subs, sub)
	}
	return stop, nil
}
