package grpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/therealutkarshpriyadarshi/vocabtree/pkg/api"
)

// ServiceName is the fully qualified gRPC service name
const ServiceName = "vocab.v1.VocabDB"

// Full method names
const (
	ScoreMethod       = "/" + ServiceName + "/Score"
	StatsMethod       = "/" + ServiceName + "/GetStats"
	HealthCheckMethod = "/" + ServiceName + "/HealthCheck"
)

// VocabDBServer is the server API of the query service. Messages are
// google.protobuf.Struct documents holding the JSON form of the api types.
type VocabDBServer interface {
	Score(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetStats(context.Context, *structpb.Struct) (*structpb.Struct, error)
	HealthCheck(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// ServiceDesc describes the query service for grpc.Server.RegisterService
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*VocabDBServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Score", Handler: unaryHandler(ScoreMethod, VocabDBServer.Score)},
		{MethodName: "GetStats", Handler: unaryHandler(StatsMethod, VocabDBServer.GetStats)},
		{MethodName: "HealthCheck", Handler: unaryHandler(HealthCheckMethod, VocabDBServer.HealthCheck)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "vocab/v1/vocab.proto",
}

// RegisterVocabDBServer registers srv on s
func RegisterVocabDBServer(s grpc.ServiceRegistrar, srv VocabDBServer) {
	s.RegisterService(&ServiceDesc, srv)
}

type unaryMethod func(VocabDBServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(fullMethod string, call unaryMethod) func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(VocabDBServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(VocabDBServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// toStruct converts a JSON-tagged value to a Struct message
func toStruct(v interface{}) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	s := new(structpb.Struct)
	if err := protojson.Unmarshal(data, s); err != nil {
		return nil, err
	}
	return s, nil
}

// fromStruct fills a JSON-tagged value from a Struct message
func fromStruct(s *structpb.Struct, v interface{}) error {
	if s == nil {
		s = new(structpb.Struct)
	}
	data, err := protojson.Marshal(s)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// toStatus maps service errors onto gRPC status codes
func toStatus(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, api.ErrInvalidRequest):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, api.ErrUnavailable):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// fromStatus maps gRPC status codes back onto service errors
func fromStatus(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.InvalidArgument:
		return fmt.Errorf("%w: %s", api.ErrInvalidRequest, st.Message())
	case codes.FailedPrecondition:
		return fmt.Errorf("%w: %s", api.ErrUnavailable, st.Message())
	default:
		return err
	}
}
