package rpc

import (
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/wfunc/storyserver/logger"
)

// HealthServer serves the standard grpc.health.v1.Health service.
type HealthServer struct {
	listener net.Listener
	grpc     *grpc.Server
	health   *health.Server
}

func NewHealthServer(addr string) (*HealthServer, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	srv := grpc.NewServer()
	h := health.NewServer()
	healthpb.RegisterHealthServer(srv, h)
	h.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	return &HealthServer{listener: listener, grpc: srv, health: h}, nil
}

func (s *HealthServer) Addr() string {
	return s.listener.Addr().String()
}

// Start blocks serving until Stop.
func (s *HealthServer) Start() {
	logger.Log.Infof("gRPC health server listening on %s", s.Addr())
	if err := s.grpc.Serve(s.listener); err != nil {
		logger.Log.Errorf("gRPC health server: %v", err)
	}
}

// Stop reports NOT_SERVING to watchers and shuts down.
func (s *HealthServer) Stop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}
