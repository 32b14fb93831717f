package natsutil

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/nats-io/nats.go"
)

// Connect dials NATS, retrying with exponential backoff for up to
// maxElapsed (0 retries until ctx is done).
func Connect(ctx context.Context, url, name string, maxElapsed time.Duration, logger *slog.Logger) (*nats.Conn, error) {
	if logger == nil {
		logger = slog.Default()
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 250 * time.Millisecond
	bo.MaxInterval = 5 * time.Second
	bo.MaxElapsedTime = maxElapsed

	var nc *nats.Conn
	err := backoff.RetryNotify(func() error {
		var err error
		nc, err = nats.Connect(url, nats.Name(name), nats.MaxReconnects(-1))
		return err
	}, backoff.WithContext(bo, ctx), func(err error, wait time.Duration) {
		logger.Warn("nats connect failed, retrying", "url", url, "wait", wait, "err", err)
	})
	if err != nil {
		return nil, fmt.Errorf("natsutil: connect %s: %w", url, err)
	}
	logger.Info("nats connected", "url", nc.ConnectedUrl())
	return nc, nil
}
