package server

import (
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const serviceName = "gosight.engagement.v1.SignalService"

// StreamSignalsMethod is the full method name of the signal stream.
const StreamSignalsMethod = "/" + serviceName + "/StreamSignals"

// SignalServiceServer is the server API of the signal service.
type SignalServiceServer interface {
	StreamSignals(SignalService_StreamSignalsServer) error
}

// SignalService_StreamSignalsServer is the server side of a signal stream.
type SignalService_StreamSignalsServer interface {
	Send(*structpb.Struct) error
	Recv() (*structpb.Struct, error)
	grpc.ServerStream
}

// SignalServiceDesc describes the signal service. Messages are
// google.protobuf.Struct values.
var SignalServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*SignalServiceServer)(nil),
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "StreamSignals",
			Handler:       streamSignalsHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "gosight/engagement/v1/signals.proto",
}

// RegisterSignalServiceServer registers srv on s.
func RegisterSignalServiceServer(s grpc.ServiceRegistrar, srv SignalServiceServer) {
	s.RegisterService(&SignalServiceDesc, srv)
}

func streamSignalsHandler(srv interface{}, stream grpc.ServerStream) error {
	return srv.(SignalServiceServer).StreamSignals(&signalStreamServer{stream})
}

type signalStreamServer struct {
	grpc.ServerStream
}

func (x *signalStreamServer) Send(m *structpb.Struct) error {
	return x.ServerStream.SendMsg(m)
}

func (x *signalStreamServer) Recv() (*structpb.Struct, error) {
	m := new(structpb.Struct)
	if err := x.ServerStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}
