package wear

import (
	"context"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/WessleyAI/wessley-upkeep/engine/domain"
	"github.com/WessleyAI/wessley-upkeep/pkg/natsutil"
)

// DefaultSubject is the request-reply subject of the wear worker.
const DefaultSubject = "upkeep.wear.classify"

// NATSClient asks a remote wear worker over NATS request-reply.
type NATSClient struct {
	nc      natsutil.Requester
	subject string
	timeout time.Duration
}

// NewNATSClient creates a client. nc is usually a *nats.Conn.
func NewNATSClient(nc natsutil.Requester, subject string, timeout time.Duration) *NATSClient {
	if subject == "" {
		subject = DefaultSubject
	}
	return &NATSClient{nc: nc, subject: subject, timeout: timeout}
}

// Classify implements Classifier.
func (c *NATSClient) Classify(ctx context.Context, accruedKm, targetKm float64) (domain.Verdict, error) {
	resp, err := natsutil.Request[Request, Response](ctx, c.nc, c.subject,
		Request{AccruedKm: accruedKm, TargetKm: targetKm}, c.timeout)
	if err != nil {
		return domain.Unavailable, err
	}
	return resp.verdict()
}

// ServeNATS answers classification requests on subject with c, load
// balanced across the queue group.
func ServeNATS(nc *nats.Conn, subject, queue string, c Classifier, logger *slog.Logger) (*nats.Subscription, error) {
	if subject == "" {
		subject = DefaultSubject
	}
	return natsutil.Respond(nc, subject, queue,
		func(ctx context.Context, req Request) Response { return Serve(ctx, c, req) },
		func(err error) Response { return Response{Error: err.Error()} },
		logger)
}
