package history

import (
	"context"
	"fmt"

	"github.com/WessleyAI/wessley-upkeep/pkg/natsutil"
)

// Subjects on which records are announced.
const (
	SubjectServiceReported = "upkeep.service.reported"
	SubjectOdometerUpdated = "upkeep.odometer.updated"
)

// Publisher announces records on NATS.
type Publisher struct {
	nc natsutil.Publisher
}

// NewPublisher wraps a connection, usually a *nats.Conn.
func NewPublisher(nc natsutil.Publisher) *Publisher {
	return &Publisher{nc: nc}
}

// Append implements Sink.
func (p *Publisher) Append(ctx context.Context, r Record) error {
	subject := SubjectServiceReported
	if r.IsOdometerUpdate() {
		subject = SubjectOdometerUpdated
	}
	if err := natsutil.Publish(ctx, p.nc, subject, r); err != nil {
		return fmt.Errorf("history: publish %s: %w", subject, err)
	}
	return nil
}
