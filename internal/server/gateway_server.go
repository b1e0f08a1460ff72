// Package server exposes the dispatcher as a gRPC service.
package server

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/triage-ai/sqlgate/internal/auth"
	"github.com/triage-ai/sqlgate/internal/dispatch"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// GatewayServer implements GatewayServiceServer.
type GatewayServer struct {
	dispatcher *dispatch.Dispatcher
	logger     *zap.Logger
}

// NewGatewayServer creates a new GatewayServer with the given dependencies.
func NewGatewayServer(d *dispatch.Dispatcher, logger *zap.Logger) *GatewayServer {
	return &GatewayServer{dispatcher: d, logger: logger}
}

// ListOperations implements GatewayService.ListOperations.
func (s *GatewayServer) ListOperations(_ context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	raw, err := json.Marshal(map[string]any{"operations": s.dispatcher.Operations()})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode operations: %v", err)
	}
	out := new(structpb.Struct)
	if err := protojson.Unmarshal(raw, out); err != nil {
		return nil, status.Errorf(codes.Internal, "encode operations: %v", err)
	}
	return out, nil
}

// CallOperation implements GatewayService.CallOperation. Operation failures
// are a normal response with is_error set, not a gRPC error.
func (s *GatewayServer) CallOperation(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.GetFields()
	name := fields["name"].GetStringValue()
	if name == "" {
		return nil, status.Error(codes.InvalidArgument, "name is required")
	}

	// Struct numbers are float64; integers past 2^53 are refused when bound.
	var args map[string]any
	if v, ok := fields["arguments"]; ok {
		switch v.GetKind().(type) {
		case *structpb.Value_StructValue:
			args = v.GetStructValue().AsMap()
		case *structpb.Value_NullValue:
		default:
			return nil, status.Error(codes.InvalidArgument, "arguments must be an object")
		}
	}

	res := s.dispatcher.Handle(ctx, dispatch.Call{
		Operation: name,
		Arguments: args,
		ClientID:  auth.ClientID(ctx),
		Transport: "grpc",
	})

	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"text":     structpb.NewStringValue(res.Text),
		"is_error": structpb.NewBoolValue(res.IsError),
	}}, nil
}

// AuthInterceptor authenticates every GatewayService call and attaches the
// caller to the context. Other services (health) pass through.
func AuthInterceptor(authn auth.Authenticator, logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if !strings.HasPrefix(info.FullMethod, "/"+ServiceName+"/") {
			return handler(ctx, req)
		}
		token, err := auth.TokenFromMetadata(ctx)
		if err != nil {
			return nil, status.Errorf(codes.Unauthenticated, "authentication failed: %v", err)
		}
		caller, err := authn.Authenticate(ctx, token)
		if err != nil {
			logger.Warn("grpc auth failed", zap.String("method", info.FullMethod), zap.Error(err))
			return nil, status.Errorf(codes.Unauthenticated, "authentication failed: %v", err)
		}
		return handler(auth.WithCaller(ctx, caller), req)
	}
}
