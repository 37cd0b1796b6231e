package server

import (
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"linkgate/internal/server/interceptors"
	"linkgate/internal/telemetry"
)

// Deps holds the gRPC service implementations.
type Deps struct {
	// Health answers grpc.health.v1.Health. If nil, no health service is registered.
	Health healthpb.HealthServer
	// Events receives one grpc_request event per non-health RPC. May be nil.
	Events telemetry.EventEmitter
}

// publicMethods skip API key checks.
var publicMethods = map[string]bool{
	healthpb.Health_Check_FullMethodName: true,
	healthpb.Health_Watch_FullMethodName: true,
}

// NewGRPCServer returns a gRPC server with otelgrpc instrumentation and the logging, telemetry
// and API key interceptors, with the services in deps registered.
func NewGRPCServer(apiKey string, deps Deps, log zerolog.Logger) *grpc.Server {
	log = log.With().Str("component", "grpc").Logger()
	s := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			interceptors.LoggingUnary(log, 500*time.Millisecond),
			interceptors.TelemetryUnary(deps.Events, publicMethods, log),
			interceptors.AuthUnary(apiKey, publicMethods),
		),
	)
	RegisterServices(s, deps)
	return s
}

// RegisterServices registers the services in deps with s.
func RegisterServices(s grpc.ServiceRegistrar, deps Deps) {
	if deps.Health != nil {
		healthpb.RegisterHealthServer(s, deps.Health)
	}
}
