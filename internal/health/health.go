// Package health implements the standard gRPC health service, backed by a storage ping.
package health

import (
	"context"
	"sync/atomic"
	"time"

	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

// ServiceName is the service name accepted by Check besides the empty overall name.
const ServiceName = "linkgate"

const pingTimeout = 2 * time.Second

// Pinger is used for readiness (e.g. *sql.DB). A nil Pinger skips the ping.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Server implements grpc.health.v1.Health. It reports NOT_SERVING until SetServing(true).
type Server struct {
	healthpb.UnimplementedHealthServer
	pinger  Pinger
	serving atomic.Bool
}

// NewServer returns a Server using pinger for readiness.
func NewServer(pinger Pinger) *Server {
	return &Server{pinger: pinger}
}

// SetServing flips the overall status, e.g. after startup load or at shutdown.
func (s *Server) SetServing(serving bool) {
	s.serving.Store(serving)
}

// Check returns SERVING when started and the pinger (if any) succeeds.
func (s *Server) Check(ctx context.Context, req *healthpb.HealthCheckRequest) (*healthpb.HealthCheckResponse, error) {
	if svc := req.GetService(); svc != "" && svc != ServiceName {
		return nil, status.Errorf(codes.NotFound, "unknown service %q", svc)
	}
	return &healthpb.HealthCheckResponse{Status: s.status(ctx)}, nil
}

func (s *Server) status(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	if !s.serving.Load() {
		return healthpb.HealthCheckResponse_NOT_SERVING
	}
	if s.pinger != nil {
		ctx, cancel := context.WithTimeout(ctx, pingTimeout)
		defer cancel()
		if err := s.pinger.PingContext(ctx); err != nil {
			return healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	return healthpb.HealthCheckResponse_SERVING
}
