package wear

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/WessleyAI/wessley-upkeep/engine/domain"
)

// Messages are google.protobuf.Struct values carrying the same fields as
// Request and Response, so no generated stubs are needed.
const (
	grpcServiceName    = "wessley.upkeep.v1.WearService"
	grpcClassifyMethod = "/" + grpcServiceName + "/Classify"
)

type wearService interface {
	classify(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
}

type grpcServer struct{ c Classifier }

func (s *grpcServer) classify(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	f := in.GetFields()
	accrued, okA := f["accrued_km"].GetKind().(*structpb.Value_NumberValue)
	target, okT := f["target_km"].GetKind().(*structpb.Value_NumberValue)
	if !okA || !okT {
		return nil, status.Error(codes.InvalidArgument, "accrued_km and target_km are required numbers")
	}
	if _, err := Derive(accrued.NumberValue, target.NumberValue); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	resp := Serve(ctx, s.c, Request{AccruedKm: accrued.NumberValue, TargetKm: target.NumberValue})
	if resp.Error != "" {
		return nil, status.Error(codes.Unavailable, resp.Error)
	}
	return structpb.NewStruct(map[string]any{"label": resp.Label, "confidence": resp.Confidence})
}

func classifyHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(wearService).classify(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: grpcClassifyMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(wearService).classify(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

var wearServiceDesc = grpc.ServiceDesc{
	ServiceName: grpcServiceName,
	HandlerType: (*wearService)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Classify", Handler: classifyHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "wessley/upkeep/v1/wear.proto",
}

// RegisterGRPC exposes c as the WearService on s.
func RegisterGRPC(s grpc.ServiceRegistrar, c Classifier) {
	s.RegisterService(&wearServiceDesc, &grpcServer{c: c})
}

// GRPCClient calls a remote WearService.
type GRPCClient struct {
	cc grpc.ClientConnInterface
}

// NewGRPCClient wraps an established connection.
func NewGRPCClient(cc grpc.ClientConnInterface) *GRPCClient {
	return &GRPCClient{cc: cc}
}

// Classify implements Classifier.
func (c *GRPCClient) Classify(ctx context.Context, accruedKm, targetKm float64) (domain.Verdict, error) {
	in, err := structpb.NewStruct(map[string]any{"accrued_km": accruedKm, "target_km": targetKm})
	if err != nil {
		return domain.Unavailable, fmt.Errorf("wear: grpc: encode: %w", err)
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, grpcClassifyMethod, in, out); err != nil {
		if st, ok := status.FromError(err); ok && st.Code() == codes.Unavailable {
			return domain.Unavailable, fmt.Errorf("%w: %s", domain.ErrClassifierUnavailable, st.Message())
		}
		return domain.Unavailable, fmt.Errorf("wear: grpc: %w", err)
	}
	f := out.GetFields()
	return Response{
		Label:      f["label"].GetStringValue(),
		Confidence: f["confidence"].GetNumberValue(),
	}.verdict()
}
