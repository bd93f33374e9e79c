package grpc

import (
	"context"
	"edgeml/internal/inference"
	"edgeml/internal/manager"
	"encoding/json"
	"github.com/pkg/errors"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/durationpb"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// The control API is expressed with well-known protobuf types only, so the
// service descriptor is declared here instead of generated.
const ServiceName = "edgeml.v1.InferenceService"

const (
	methodClassify       = "/" + ServiceName + "/Classify"
	methodGetStatus      = "/" + ServiceName + "/GetStatus"
	methodListChannels   = "/" + ServiceName + "/ListChannels"
	methodSetAcquisition = "/" + ServiceName + "/SetAcquisition"
	methodWatchStatus    = "/" + ServiceName + "/WatchStatus"
)

// InferenceServiceServer is the server side of the control API
type InferenceServiceServer interface {
	// Classify runs one classification and returns {class, probs}
	Classify(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	GetStatus(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	// ListChannels returns {channels: [{kind, width, samples, capacity}]}
	ListChannels(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	// SetAcquisition starts (true) or stops (false) the pipeline
	SetAcquisition(context.Context, *wrapperspb.BoolValue) (*structpb.Struct, error)
	// WatchStatus streams the status every interval until the client leaves
	WatchStatus(*durationpb.Duration, InferenceService_WatchStatusServer) error
}

type InferenceService_WatchStatusServer interface {
	Send(*structpb.Struct) error
	grpc.ServerStream
}

type watchStatusServer struct {
	grpc.ServerStream
}

func (x *watchStatusServer) Send(m *structpb.Struct) error {
	return x.ServerStream.SendMsg(m)
}

func unaryHandler[In any](method string, call func(InferenceServiceServer, context.Context, *In) (*structpb.Struct, error)) func(interface{}, context.Context, func(interface{}) error, grpc.UnaryServerInterceptor) (interface{}, error) {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(In)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(InferenceServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(InferenceServiceServer), ctx, req.(*In))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func watchStatusHandler(srv interface{}, stream grpc.ServerStream) error {
	in := new(durationpb.Duration)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(InferenceServiceServer).WatchStatus(in, &watchStatusServer{stream})
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*InferenceServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Classify",
			Handler:    unaryHandler(methodClassify, InferenceServiceServer.Classify),
		},
		{
			MethodName: "GetStatus",
			Handler:    unaryHandler(methodGetStatus, InferenceServiceServer.GetStatus),
		},
		{
			MethodName: "ListChannels",
			Handler:    unaryHandler(methodListChannels, InferenceServiceServer.ListChannels),
		},
		{
			MethodName: "SetAcquisition",
			Handler:    unaryHandler(methodSetAcquisition, InferenceServiceServer.SetAcquisition),
		},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "WatchStatus",
			Handler:       watchStatusHandler,
			ServerStreams: true,
		},
	},
	Metadata: "edgeml/v1/inference.proto",
}

func RegisterInferenceServiceServer(s grpc.ServiceRegistrar, srv InferenceServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// Client is the client side of the control API
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) invoke(ctx context.Context, method string, in interface{}, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Classify(ctx context.Context, opts ...grpc.CallOption) (inference.Result, error) {
	out, err := c.invoke(ctx, methodClassify, new(emptypb.Empty), opts...)
	if err != nil {
		return inference.Result{}, err
	}
	var res inference.Result
	err = decodeStruct(out, &res)
	return res, err
}

func (c *Client) GetStatus(ctx context.Context, opts ...grpc.CallOption) (manager.Status, error) {
	out, err := c.invoke(ctx, methodGetStatus, new(emptypb.Empty), opts...)
	if err != nil {
		return manager.Status{}, err
	}
	return DecodeStatus(out)
}

func (c *Client) ListChannels(ctx context.Context, opts ...grpc.CallOption) ([]manager.ChannelStatus, error) {
	out, err := c.invoke(ctx, methodListChannels, new(emptypb.Empty), opts...)
	if err != nil {
		return nil, err
	}
	var res struct {
		Channels []manager.ChannelStatus `json:"channels"`
	}
	err = decodeStruct(out, &res)
	return res.Channels, err
}

func (c *Client) SetAcquisition(ctx context.Context, on bool, opts ...grpc.CallOption) (manager.Status, error) {
	out, err := c.invoke(ctx, methodSetAcquisition, wrapperspb.Bool(on), opts...)
	if err != nil {
		return manager.Status{}, err
	}
	return DecodeStatus(out)
}

type InferenceService_WatchStatusClient interface {
	Recv() (manager.Status, error)
	grpc.ClientStream
}

type watchStatusClient struct {
	grpc.ClientStream
}

func (x *watchStatusClient) Recv() (manager.Status, error) {
	m := new(structpb.Struct)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return manager.Status{}, err
	}
	return DecodeStatus(m)
}

func (c *Client) WatchStatus(ctx context.Context, interval *durationpb.Duration, opts ...grpc.CallOption) (InferenceService_WatchStatusClient, error) {
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], methodWatchStatus, opts...)
	if err != nil {
		return nil, err
	}
	x := &watchStatusClient{stream}
	if err := x.ClientStream.SendMsg(interval); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

// encodeStruct converts a JSON-tagged value into a protobuf Struct
func encodeStruct(v interface{}) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return structpb.NewStruct(m)
}

func decodeStruct(s *structpb.Struct, v interface{}) error {
	raw, err := json.Marshal(s.AsMap())
	if err != nil {
		return errors.Wrap(err, "decode struct")
	}
	return errors.Wrap(json.Unmarshal(raw, v), "decode struct")
}

// DecodeStatus converts a GetStatus payload back into a Status
func DecodeStatus(s *structpb.Struct) (manager.Status, error) {
	var st manager.Status
	err := decodeStruct(s, &st)
	return st, err
}
