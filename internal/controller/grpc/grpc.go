package grpc

import (
	"context"
	"edgeml/internal/inference"
	"edgeml/internal/manager"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/durationpb"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
	"time"
)

const (
	DefaultWatchInterval = time.Second
	MinWatchInterval     = 10 * time.Millisecond
)

type server struct {
	manager manager.Manager
}

// toStatusError maps pipeline errors onto grpc codes
func toStatusError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, inference.ErrEngineNotReady):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, manager.ErrNotRunning):
		return status.Error(codes.Unavailable, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

func (s *server) statusStruct() (*structpb.Struct, error) {
	res, err := encodeStruct(s.manager.Status())
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return res, nil
}

// Classify runs one classification on the current frame
func (s *server) Classify(ctx context.Context, req *emptypb.Empty) (*structpb.Struct, error) {
	res, err := s.manager.Classify()
	if err != nil {
		log.Debugf("Classify: %v", err)
		return nil, toStatusError(err)
	}
	out, err := encodeStruct(res)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

// GetStatus returns the status of the manager
func (s *server) GetStatus(ctx context.Context, req *emptypb.Empty) (*structpb.Struct, error) {
	return s.statusStruct()
}

func (s *server) ListChannels(ctx context.Context, req *emptypb.Empty) (*structpb.Struct, error) {
	if !s.manager.Ready() {
		return nil, status.Error(codes.FailedPrecondition, inference.ErrEngineNotReady.Error())
	}
	out, err := encodeStruct(struct {
		Channels []manager.ChannelStatus `json:"channels"`
	}{s.manager.Status().Channels})
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

// SetAcquisition starts or stops the manager
func (s *server) SetAcquisition(ctx context.Context, req *wrapperspb.BoolValue) (*structpb.Struct, error) {
	log.Infof("SetAcquisition: %v", req.GetValue())
	var err error
	if req.GetValue() {
		err = s.manager.Start()
	} else {
		err = s.manager.Stop()
	}
	if err != nil {
		return nil, toStatusError(err)
	}
	return s.statusStruct()
}

// WatchStatus streams the status of the manager
func (s *server) WatchStatus(req *durationpb.Duration, srv InferenceService_WatchStatusServer) error {
	interval := DefaultWatchInterval
	if req != nil && req.IsValid() && req.AsDuration() > 0 {
		interval = req.AsDuration()
	}
	if interval < MinWatchInterval {
		interval = MinWatchInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		out, err := s.statusStruct()
		if err != nil {
			return err
		}
		if err := srv.Send(out); err != nil {
			return err
		}
		select {
		case <-srv.Context().Done():
			return nil
		case <-ticker.C:
		}
	}
}

var _ InferenceServiceServer = &server{}

func NewGRPCServer(manager manager.Manager) InferenceServiceServer {
	return &server{
		manager: manager,
	}
}
