package gearjob

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const serviceName = "gearjob.JobServer"

// jobServer is the server API of the JobServer service.
type jobServer interface {
	Submit(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Status(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Grab(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Update(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Requeue(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Watch(req *structpb.Struct, stream grpc.ServerStream) error
}

type unaryMethod func(srv jobServer, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)

// serviceDesc describes the JobServer service for grpc.Server.RegisterService.
var serviceDesc = grpc.ServiceDesc{ //nolint:gochecknoglobals
	ServiceName: serviceName,
	HandlerType: (*jobServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Submit", Handler: unaryHandler("Submit", jobServer.Submit)},
		{MethodName: "Status", Handler: unaryHandler("Status", jobServer.Status)},
		{MethodName: "Grab", Handler: unaryHandler("Grab", jobServer.Grab)},
		{MethodName: "Update", Handler: unaryHandler("Update", jobServer.Update)},
		{MethodName: "Requeue", Handler: unaryHandler("Requeue", jobServer.Requeue)},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Watch", Handler: watchHandler, ServerStreams: true},
	},
	Metadata: "gearjob",
}

func fullMethod(method string) string {
	return "/" + serviceName + "/" + method
}

// unaryHandler adapts call to the handler of a grpc.MethodDesc, running it
// through the server's unary interceptor if there is one.
func unaryHandler(method string, call unaryMethod) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(jobServer), ctx, in) //nolint:forcetypeassert // enforced by RegisterService
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(method)}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(jobServer), ctx, req.(*structpb.Struct)) //nolint:forcetypeassert // enforced by RegisterService
		}
		return interceptor(ctx, in, info, handler)
	}
}

func watchHandler(srv any, stream grpc.ServerStream) error {
	in := new(structpb.Struct)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(jobServer).Watch(in, stream) //nolint:forcetypeassert // enforced by RegisterService
}

// jobClient is the client API of the JobServer service.
type jobClient struct {
	cc grpc.ClientConnInterface
}

func (c jobClient) invoke(ctx context.Context, method string, in *structpb.Struct) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, fullMethod(method), in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c jobClient) watch(ctx context.Context, in *structpb.Struct) (grpc.ClientStream, error) {
	stream, err := c.cc.NewStream(ctx, &serviceDesc.Streams[0], fullMethod("Watch"))
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(in); err != nil {
		return nil, fmt.Errorf("cannot send watch request: %w", err)
	}
	if err := stream.CloseSend(); err != nil {
		return nil, fmt.Errorf("cannot close watch request: %w", err)
	}
	return stream, nil
}
