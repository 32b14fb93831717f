package wear

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"github.com/WessleyAI/wessley-upkeep/engine/domain"
	"github.com/WessleyAI/wessley-upkeep/pkg/metrics"
	"github.com/WessleyAI/wessley-upkeep/pkg/resilience"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

type stubClassifier struct {
	verdict domain.Verdict
	err     error
	calls   int
}

func (s *stubClassifier) Classify(context.Context, float64, float64) (domain.Verdict, error) {
	s.calls++
	return s.verdict, s.err
}

func TestGuardPassesVerdict(t *testing.T) {
	reg := metrics.New()
	inner := &stubClassifier{verdict: domain.Verdict{Label: domain.WearNormal, Confidence: 1.7}}
	g := NewGuard(inner, GuardOpts{Name: "stub", Metrics: reg, Logger: quiet})

	v, err := g.Classify(context.Background(), 100, 200)
	if err != nil {
		t.Fatal(err)
	}
	if v.Label != domain.WearNormal || v.Confidence != 1 {
		t.Fatalf("unexpected verdict %+v", v)
	}
	if !strings.Contains(reg.Render(), `upkeep_classifier_verdicts_total{backend="stub",label="NORMAL_WEAR"} 1`) {
		t.Fatalf("verdict counter missing:\n%s", reg.Render())
	}
}

func TestGuardRejectsInvalidLabel(t *testing.T) {
	g := NewGuard(&stubClassifier{verdict: domain.Verdict{Label: "RUSTY"}}, GuardOpts{Logger: quiet})
	v, err := g.Classify(context.Background(), 1, 2)
	if !errors.Is(err, domain.ErrClassifierInvalidLabel) || v.Available() {
		t.Fatalf("expected invalid label error, got %+v %v", v, err)
	}
}

func TestGuardOpensBreaker(t *testing.T) {
	reg := metrics.New()
	inner := &stubClassifier{err: errors.New("model crashed")}
	g := NewGuard(inner, GuardOpts{
		Name:    "flaky",
		Metrics: reg,
		Logger:  quiet,
		Breaker: resilience.BreakerOpts{FailThreshold: 2, Timeout: time.Hour},
	})
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if _, err := g.Classify(ctx, 1, 2); err == nil {
			t.Fatal("expected failure")
		}
	}
	if g.BreakerState() != resilience.StateOpen {
		t.Fatalf("expected open breaker, got %v", g.BreakerState())
	}
	_, err := g.Classify(ctx, 1, 2)
	if !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if inner.calls != 2 {
		t.Fatalf("open breaker must not reach the model, calls=%d", inner.calls)
	}
	out := reg.Render()
	if !strings.Contains(out, `upkeep_classifier_failures_total{backend="flaky"} 3`) ||
		!strings.Contains(out, `upkeep_classifier_breaker_state{backend="flaky"} 1`) {
		t.Fatalf("unexpected metrics:\n%s", out)
	}
}

type fakeRequester struct {
	reply []byte
	err   error
	got   Request
}

func (f *fakeRequester) RequestMsg(m *nats.Msg, _ time.Duration) (*nats.Msg, error) {
	_ = json.Unmarshal(m.Data, &f.got)
	if f.err != nil {
		return nil, f.err
	}
	return &nats.Msg{Data: f.reply}, nil
}

func TestNATSClient(t *testing.T) {
	fr := &fakeRequester{reply: []byte(`{"label":"muy_desgastado","confidence":0.8}`)}
	c := NewNATSClient(fr, "", time.Second)
	v, err := c.Classify(context.Background(), 600, 500)
	if err != nil {
		t.Fatal(err)
	}
	if v.Label != domain.WearHeavilyWorn || v.Confidence != 0.8 {
		t.Fatalf("unexpected verdict %+v", v)
	}
	if fr.got.AccruedKm != 600 || fr.got.TargetKm != 500 {
		t.Fatalf("request not forwarded: %+v", fr.got)
	}

	fr.reply = []byte(`{"error":"model not loaded"}`)
	if _, err := c.Classify(context.Background(), 1, 2); !errors.Is(err, domain.ErrClassifierUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
	fr.reply = []byte(`{"label":"BROKEN"}`)
	if _, err := c.Classify(context.Background(), 1, 2); !errors.Is(err, domain.ErrClassifierInvalidLabel) {
		t.Fatalf("expected invalid label, got %v", err)
	}
	fr.err = nats.ErrNoResponders
	if _, err := c.Classify(context.Background(), 1, 2); !errors.Is(err, nats.ErrNoResponders) {
		t.Fatalf("expected transport error, got %v", err)
	}
}

func dialBufconn(t *testing.T, c Classifier) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	RegisterGRPC(srv, c)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial bufconn: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestGRPCRoundTrip(t *testing.T) {
	client := NewGRPCClient(dialBufconn(t, DefaultBandModel()))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	v, err := client.Classify(ctx, 1200, 500)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if v.Label != domain.WearCriticalFailure || v.Confidence != 1 {
		t.Fatalf("unexpected verdict %+v", v)
	}

	if _, err := client.Classify(ctx, 10, 0); err == nil {
		t.Fatal("expected invalid argument for zero target")
	}
}

func TestGRPCUnavailableModel(t *testing.T) {
	client := NewGRPCClient(dialBufconn(t, &stubClassifier{err: errors.New("weights missing")}))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.Classify(ctx, 1, 2); !errors.Is(err, domain.ErrClassifierUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
}

type mockPoints struct {
	upserted []*pb.PointStruct
	search   *pb.SearchResponse
	err      error
}

func (m *mockPoints) Upsert(_ context.Context, in *pb.UpsertPoints, _ ...grpc.CallOption) (*pb.PointsOperationResponse, error) {
	m.upserted = append(m.upserted, in.GetPoints()...)
	return &pb.PointsOperationResponse{}, m.err
}

func (m *mockPoints) Search(_ context.Context, _ *pb.SearchPoints, _ ...grpc.CallOption) (*pb.SearchResponse, error) {
	return m.search, m.err
}

type mockCollections struct {
	existing []string
	created  string
}

func (m *mockCollections) List(context.Context, *pb.ListCollectionsRequest, ...grpc.CallOption) (*pb.ListCollectionsResponse, error) {
	resp := &pb.ListCollectionsResponse{}
	for _, n := range m.existing {
		resp.Collections = append(resp.Collections, &pb.CollectionDescription{Name: n})
	}
	return resp, nil
}

func (m *mockCollections) Create(_ context.Context, in *pb.CreateCollection, _ ...grpc.CallOption) (*pb.CollectionOperationResponse, error) {
	m.created = in.GetCollectionName()
	return &pb.CollectionOperationResponse{Result: true}, nil
}

func hit(label string, dist float32) *pb.ScoredPoint {
	return &pb.ScoredPoint{
		Score:   dist,
		Payload: map[string]*pb.Value{"label": str(label)},
	}
}

func TestIndexEnsureCollection(t *testing.T) {
	cols := &mockCollections{existing: []string{"wear"}}
	if err := NewIndex(&mockPoints{}, cols, "wear", 0).EnsureCollection(context.Background()); err != nil || cols.created != "" {
		t.Fatalf("existing collection should be kept (err=%v created=%q)", err, cols.created)
	}
	cols = &mockCollections{}
	if err := NewIndex(&mockPoints{}, cols, "wear", 0).EnsureCollection(context.Background()); err != nil || cols.created != "wear" {
		t.Fatalf("collection not created (err=%v created=%q)", err, cols.created)
	}
}

func TestIndexAddSkipsInvalid(t *testing.T) {
	pts := &mockPoints{}
	idx := NewIndex(pts, &mockCollections{}, "wear", 3)
	skipped, err := idx.Add(context.Background(), []Sample{
		{ID: "a", AccruedKm: 500, TargetKm: 500, Label: domain.WearNormal},
		{ID: "b", AccruedKm: 500, TargetKm: 0, Label: domain.WearNormal},
		{ID: "c", AccruedKm: 500, TargetKm: 500, Label: "??"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if skipped != 2 || len(pts.upserted) != 1 {
		t.Fatalf("skipped=%d upserted=%d", skipped, len(pts.upserted))
	}
	if got := pts.upserted[0].GetVectors().GetVector().GetData(); len(got) != vectorDims || got[0] != 1 {
		t.Fatalf("unexpected vector %v", got)
	}
}

func TestIndexClassifyVotes(t *testing.T) {
	pts := &mockPoints{search: &pb.SearchResponse{Result: []*pb.ScoredPoint{
		hit("CRITICAL_FAILURE", 0),
		hit("NORMAL_WEAR", 1),
		hit("NORMAL_WEAR", 1),
		hit("nonsense", 0),
	}}}
	v, err := NewIndex(pts, &mockCollections{}, "wear", 4).Classify(context.Background(), 700, 500)
	if err != nil {
		t.Fatal(err)
	}
	// Weights: critical 1.0, normal 0.5+0.5; the tie goes to the severe label.
	if v.Label != domain.WearCriticalFailure || v.Confidence != 0.5 {
		t.Fatalf("unexpected verdict %+v", v)
	}
}

func TestIndexClassifyNoNeighbours(t *testing.T) {
	pts := &mockPoints{search: &pb.SearchResponse{}}
	_, err := NewIndex(pts, &mockCollections{}, "wear", 4).Classify(context.Background(), 1, 2)
	if !errors.Is(err, domain.ErrClassifierUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
}
