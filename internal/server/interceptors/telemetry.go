package interceptors

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"linkgate/internal/telemetry"
)

// EventGRPCRequest is the telemetry event type emitted per RPC.
const EventGRPCRequest = "grpc_request"

// grpcRequestMetadata is the JSON shape stored in Event.Metadata for grpc_request events.
type grpcRequestMetadata struct {
	FullMethod string `json:"full_method"`
	StatusCode string `json:"status_code"`
	DurationMs int64  `json:"duration_ms"`
	ClientIP   string `json:"client_ip"`
}

// TelemetryUnary returns a unary server interceptor that emits a telemetry event after each RPC.
// If emitter is nil, the interceptor no-ops. skipMethods are never emitted.
func TelemetryUnary(emitter telemetry.EventEmitter, skipMethods map[string]bool, log zerolog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		if emitter == nil || skipMethods[info.FullMethod] {
			return resp, err
		}
		meta, _ := json.Marshal(grpcRequestMetadata{
			FullMethod: info.FullMethod,
			StatusCode: status.Code(err).String(),
			DurationMs: time.Since(start).Milliseconds(),
			ClientIP:   ClientIP(ctx),
		})
		telemetry.EmitAsync(emitter, &telemetry.Event{
			Type:      EventGRPCRequest,
			Source:    "grpc",
			Metadata:  string(meta),
			CreatedAt: time.Now().UTC(),
		}, log)
		return resp, err
	}
}
