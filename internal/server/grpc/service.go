package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "fileshare.v1.AccessService"

const (
	methodEvaluateAccess    = "/" + ServiceName + "/EvaluateAccess"
	methodCreateShareToken  = "/" + ServiceName + "/CreateShareToken"
	methodResolveShareToken = "/" + ServiceName + "/ResolveShareToken"
)

// AccessServiceServer is implemented by GRPCServer. Payloads are
// google.protobuf.Struct so the service needs no generated code.
type AccessServiceServer interface {
	EvaluateAccess(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CreateShareToken(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ResolveShareToken(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryMethod func(AccessServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(fullMethod string, call unaryMethod) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(AccessServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(AccessServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var accessServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AccessServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "EvaluateAccess", Handler: unaryHandler(methodEvaluateAccess, AccessServiceServer.EvaluateAccess)},
		{MethodName: "CreateShareToken", Handler: unaryHandler(methodCreateShareToken, AccessServiceServer.CreateShareToken)},
		{MethodName: "ResolveShareToken", Handler: unaryHandler(methodResolveShareToken, AccessServiceServer.ResolveShareToken)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "fileshare/v1/access.proto",
}

// RegisterAccessServiceServer attaches srv to s.
func RegisterAccessServiceServer(s grpc.ServiceRegistrar, srv AccessServiceServer) {
	s.RegisterService(&accessServiceDesc, srv)
}

// AccessClient is a thin client for AccessService.
type AccessClient struct {
	cc grpc.ClientConnInterface
}

func NewAccessClient(cc grpc.ClientConnInterface) *AccessClient {
	return &AccessClient{cc: cc}
}

func (c *AccessClient) invoke(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *AccessClient) EvaluateAccess(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, methodEvaluateAccess, in, opts...)
}

func (c *AccessClient) CreateShareToken(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, methodCreateShareToken, in, opts...)
}

func (c *AccessClient) ResolveShareToken(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, methodResolveShareToken, in, opts...)
}
