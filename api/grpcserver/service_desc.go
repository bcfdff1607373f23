package grpcserver

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	ServiceName         = "lobcast.MarketData"
	getBookMethod       = "/" + ServiceName + "/GetBook"
	subscribeMethod     = "/" + ServiceName + "/Subscribe"
	subscribeStreamName = "Subscribe"
)

// MarketDataServer is implemented by Server. Messages are protobuf
// well-known types: requests name the instrument, responses carry the
// JSON encoding of a view or message.
type MarketDataServer interface {
	GetBook(context.Context, *structpb.Struct) (*wrapperspb.BytesValue, error)
	Subscribe(*wrapperspb.StringValue, MarketData_SubscribeServer) error
}

type MarketData_SubscribeServer interface {
	Send(*wrapperspb.BytesValue) error
	grpc.ServerStream
}

type marketDataSubscribeServer struct {
	grpc.ServerStream
}

func (x *marketDataSubscribeServer) Send(m *wrapperspb.BytesValue) error {
	return x.ServerStream.SendMsg(m)
}

func getBookHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(MarketDataServer).GetBook(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: getBookMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(MarketDataServer).GetBook(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func subscribeHandler(srv interface{}, stream grpc.ServerStream) error {
	m := new(wrapperspb.StringValue)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(MarketDataServer).Subscribe(m, &marketDataSubscribeServer{stream})
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*MarketDataServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetBook", Handler: getBookHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: subscribeStreamName, Handler: subscribeHandler, ServerStreams: true},
	},
}

func Register(s grpc.ServiceRegistrar, srv MarketDataServer) {
	s.RegisterService(&serviceDesc, srv)
}
