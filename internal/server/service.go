package server

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/triage-ai/sqlgate/internal/catalog"
	"github.com/triage-ai/sqlgate/internal/dispatch"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "sqlgate.v1.GatewayService"

const (
	ListOperationsMethod = "/" + ServiceName + "/ListOperations"
	CallOperationMethod  = "/" + ServiceName + "/CallOperation"
)

// GatewayServiceServer is the server API for GatewayService. Messages are
// protobuf well-known types so no generated code is needed on either side:
//
//	ListOperations(Empty) -> Struct{operations: [{name, description, inputSchema}]}
//	CallOperation(Struct{name, arguments}) -> Struct{text, is_error}
type GatewayServiceServer interface {
	ListOperations(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	CallOperation(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// RegisterGatewayServiceServer registers srv on s.
func RegisterGatewayServiceServer(s grpc.ServiceRegistrar, srv GatewayServiceServer) {
	s.RegisterService(&GatewayServiceDesc, srv)
}

// GatewayServiceDesc is the grpc.ServiceDesc for GatewayService.
var GatewayServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*GatewayServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ListOperations", Handler: listOperationsHandler},
		{MethodName: "CallOperation", Handler: callOperationHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "sqlgate/v1/gateway.proto",
}

func listOperationsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(GatewayServiceServer).ListOperations(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ListOperationsMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(GatewayServiceServer).ListOperations(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func callOperationHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(GatewayServiceServer).CallOperation(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: CallOperationMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(GatewayServiceServer).CallOperation(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// GatewayClient calls a remote GatewayService.
type GatewayClient struct {
	cc grpc.ClientConnInterface
}

func NewGatewayClient(cc grpc.ClientConnInterface) *GatewayClient {
	return &GatewayClient{cc: cc}
}

// ListOperations returns the operations the remote gateway advertises.
func (c *GatewayClient) ListOperations(ctx context.Context, opts ...grpc.CallOption) ([]catalog.Descriptor, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, ListOperationsMethod, &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	raw, err := protojson.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("ListOperations: %w", err)
	}
	var resp struct {
		Operations []catalog.Descriptor `json:"operations"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("ListOperations: %w", err)
	}
	return resp.Operations, nil
}

// CallOperation invokes name with args. Operation failures come back in the
// Result; the error is only for transport and auth failures.
func (c *GatewayClient) CallOperation(ctx context.Context, name string, args *structpb.Struct, opts ...grpc.CallOption) (dispatch.Result, error) {
	if args == nil {
		args = &structpb.Struct{}
	}
	in := &structpb.Struct{Fields: map[string]*structpb.Value{
		"name":      structpb.NewStringValue(name),
		"arguments": structpb.NewStructValue(args),
	}}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, CallOperationMethod, in, out, opts...); err != nil {
		return dispatch.Result{}, err
	}
	return dispatch.Result{
		Text:    out.GetFields()["text"].GetStringValue(),
		IsError: out.GetFields()["is_error"].GetBoolValue(),
	}, nil
}
