package rpc

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName is this package's gRPC service name, the "/<pkg>.<svc>/"
// prefix every method is registered under.
const ServiceName = "spectrum.rpc.Control"

func getInfoHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(GetInfoRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(*Server).GetInfo(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ServiceName + "/GetInfo"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(*Server).GetInfo(ctx, req.(*GetInfoRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func reportPeerHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(ReportPeerRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(*Server).ReportPeer(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ServiceName + "/ReportPeer"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(*Server).ReportPeer(ctx, req.(*ReportPeerRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func getPeerReputationHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(GetPeerReputationRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(*Server).GetPeerReputation(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ServiceName + "/GetPeerReputation"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(*Server).GetPeerReputation(ctx, req.(*GetPeerReputationRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func dispatchVaultHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(VaultDispatchRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(*Server).DispatchVault(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ServiceName + "/DispatchVault"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(*Server).DispatchVault(ctx, req.(*VaultDispatchRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// serviceDesc wires Server's methods into grpc.Server.RegisterService by
// hand, the way protoc-gen-go-grpc would generate it, since this
// control surface forgoes a .proto/protoc step in favor of the plain
// jsonCodec defined in codec.go.
var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*any)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetInfo", Handler: getInfoHandler},
		{MethodName: "ReportPeer", Handler: reportPeerHandler},
		{MethodName: "GetPeerReputation", Handler: getPeerReputationHandler},
		{MethodName: "DispatchVault", Handler: dispatchVaultHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "rpc/control.proto",
}
