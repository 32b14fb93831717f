package wear

import (
	"context"
	"fmt"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/WessleyAI/wessley-upkeep/engine/domain"
)

// vectorDims is the length of a feature vector.
const vectorDims = 4

// kmScale brings kilometre features to the same order as the ratio.
const kmScale = 10000

// pointsAPI is the subset of pb.PointsClient the index uses.
type pointsAPI interface {
	Upsert(ctx context.Context, in *pb.UpsertPoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Search(ctx context.Context, in *pb.SearchPoints, opts ...grpc.CallOption) (*pb.SearchResponse, error)
}

// collectionsAPI is the subset of pb.CollectionsClient the index uses.
type collectionsAPI interface {
	List(ctx context.Context, in *pb.ListCollectionsRequest, opts ...grpc.CallOption) (*pb.ListCollectionsResponse, error)
	Create(ctx context.Context, in *pb.CreateCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
}

// Sample is one labelled service report.
type Sample struct {
	ID          string
	ProfileID   string
	ComponentID string
	AccruedKm   float64
	TargetKm    float64
	Label       domain.WearLabel
}

// Index stores labelled wear samples in Qdrant and classifies by majority
// vote of the nearest neighbours.
type Index struct {
	conn        *grpc.ClientConn
	points      pointsAPI
	collections collectionsAPI
	collection  string
	k           int
}

// DialIndex connects to Qdrant at the given gRPC address.
func DialIndex(addr, collection string, k int) (*Index, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("wear: dial qdrant %s: %w", addr, err)
	}
	idx := NewIndex(pb.NewPointsClient(conn), pb.NewCollectionsClient(conn), collection, k)
	idx.conn = conn
	return idx, nil
}

// NewIndex builds an index over existing clients. k below 1 selects 7.
func NewIndex(points pointsAPI, collections collectionsAPI, collection string, k int) *Index {
	if k < 1 {
		k = 7
	}
	return &Index{points: points, collections: collections, collection: collection, k: k}
}

// Close closes the underlying connection, if the index owns one.
func (x *Index) Close() error {
	if x.conn == nil {
		return nil
	}
	return x.conn.Close()
}

// EnsureCollection creates the collection if it doesn't exist.
func (x *Index) EnsureCollection(ctx context.Context) error {
	list, err := x.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("wear: list collections: %w", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == x.collection {
			return nil
		}
	}
	_, err = x.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: x.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{Size: vectorDims, Distance: pb.Distance_Euclid},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("wear: create collection %s: %w", x.collection, err)
	}
	return nil
}

func vector(f Features) []float32 {
	return []float32{
		float32(f.Ratio),
		float32(f.Diff / kmScale),
		float32(f.DoneKm / kmScale),
		float32(f.RecommendedKm / kmScale),
	}
}

func str(s string) *pb.Value   { return &pb.Value{Kind: &pb.Value_StringValue{StringValue: s}} }
func num(v float64) *pb.Value { return &pb.Value{Kind: &pb.Value_DoubleValue{DoubleValue: v}} }

// Add upserts samples. Samples with an invalid target or label are skipped
// and counted in the returned skip total.
func (x *Index) Add(ctx context.Context, samples []Sample) (skipped int, err error) {
	points := make([]*pb.PointStruct, 0, len(samples))
	for _, s := range samples {
		f, err := Derive(s.AccruedKm, s.TargetKm)
		if err != nil || !domain.ValidWearLabels[s.Label] || s.ID == "" {
			skipped++
			continue
		}
		points = append(points, &pb.PointStruct{
			Id:      &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: s.ID}},
			Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: vector(f)}}},
			Payload: map[string]*pb.Value{
				"label":        str(string(s.Label)),
				"profile_id":   str(s.ProfileID),
				"component_id": str(s.ComponentID),
				"accrued_km":   num(s.AccruedKm),
				"target_km":    num(s.TargetKm),
			},
		})
	}
	if len(points) == 0 {
		return skipped, nil
	}
	wait := true
	if _, err := x.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: x.collection,
		Wait:           &wait,
		Points:         points,
	}); err != nil {
		return skipped, fmt.Errorf("wear: upsert %d points: %w", len(points), err)
	}
	return skipped, nil
}

// Classify implements Classifier. Each neighbour votes with weight
// 1/(1+distance); confidence is the winning share of the total weight.
func (x *Index) Classify(ctx context.Context, accruedKm, targetKm float64) (domain.Verdict, error) {
	f, err := Derive(accruedKm, targetKm)
	if err != nil {
		return domain.Unavailable, err
	}
	resp, err := x.points.Search(ctx, &pb.SearchPoints{
		CollectionName: x.collection,
		Vector:         vector(f),
		Limit:          uint64(x.k),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return domain.Unavailable, fmt.Errorf("wear: search: %w", err)
	}

	votes := map[domain.WearLabel]float64{}
	var total float64
	for _, hit := range resp.GetResult() {
		label := domain.WearLabel(hit.GetPayload()["label"].GetStringValue())
		if !domain.ValidWearLabels[label] {
			continue
		}
		w := 1 / (1 + float64(hit.GetScore()))
		votes[label] += w
		total += w
	}
	if total == 0 {
		return domain.Unavailable, fmt.Errorf("%w: no labelled neighbours", domain.ErrClassifierUnavailable)
	}

	// Ties go to the more severe label.
	var best domain.WearLabel
	for _, l := range []domain.WearLabel{domain.WearCriticalFailure, domain.WearHeavilyWorn, domain.WearNormal, domain.WearLikeNew} {
		if votes[l] > votes[best] {
			best = l
		}
	}
	return domain.Verdict{Label: best, Confidence: clamp01(votes[best] / total)}, nil
}
