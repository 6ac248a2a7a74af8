package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const ServiceName = "chairbook.v1.SchedulingService"

// SchedulingServiceServer is the server API for chairbook.v1.SchedulingService. Messages are
// google.protobuf.Struct so clients need no generated stubs.
type SchedulingServiceServer interface {
	GetAvailableSlots(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	CreateAppointment(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ConfirmAppointment(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	CompleteAppointment(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	CancelAppointment(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

func RegisterSchedulingServiceServer(s grpc.ServiceRegistrar, srv SchedulingServiceServer) {
	s.RegisterService(&SchedulingServiceDesc, srv)
}

func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

type structCall func(srv SchedulingServiceServer, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)

func unaryMethod(name string, call structCall) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(SchedulingServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(name)}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(SchedulingServiceServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

var SchedulingServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SchedulingServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod("GetAvailableSlots", SchedulingServiceServer.GetAvailableSlots),
		unaryMethod("CreateAppointment", SchedulingServiceServer.CreateAppointment),
		unaryMethod("ConfirmAppointment", SchedulingServiceServer.ConfirmAppointment),
		unaryMethod("CompleteAppointment", SchedulingServiceServer.CompleteAppointment),
		unaryMethod("CancelAppointment", SchedulingServiceServer.CancelAppointment),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "chairbook/v1/scheduling.proto",
}
