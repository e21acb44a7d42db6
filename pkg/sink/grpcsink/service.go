// Package grpcsink carries sink frames over a client-streaming gRPC call.
//
// There is no generated protobuf code: the service is described by hand and the frames
// are CBOR encoded through a codec registered under CodecName.
package grpcsink

import (
	"google.golang.org/grpc"
)

const (
	// ServiceName is the fully qualified sink service, also used for grpc.health.v1.
	ServiceName  = "vizbridge.sink.v1.Sink"
	streamMethod = "/" + ServiceName + "/Stream"

	// SessionHeader carries the per-connection session id.
	SessionHeader = "x-vizbridge-session"
)

// SinkServer receives frame streams. The implementation reads sink.Frame values with
// RecvMsg until io.EOF and answers with one sink.Summary.
type SinkServer interface {
	Stream(stream grpc.ServerStream) error
}

var streamDesc = grpc.StreamDesc{
	StreamName:    "Stream",
	Handler:       streamHandler,
	ClientStreams: true,
}

func streamHandler(srv any, stream grpc.ServerStream) error {
	return srv.(SinkServer).Stream(stream)
}

// ServiceDesc describes the sink service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SinkServer)(nil),
	Streams:     []grpc.StreamDesc{streamDesc},
	Metadata:    "vizbridge/sink/v1/sink.proto",
}

// RegisterSinkServer registers srv on s.
func RegisterSinkServer(s grpc.ServiceRegistrar, srv SinkServer) {
	s.RegisterService(&ServiceDesc, srv)
}
