package interceptors

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"

	"linkgate/internal/telemetry"
)

type captureEmitter struct {
	mu     sync.Mutex
	events []*telemetry.Event
	done   chan struct{}
}

func (c *captureEmitter) Emit(_ context.Context, e *telemetry.Event) error {
	c.mu.Lock()
	c.events = append(c.events, e)
	c.mu.Unlock()
	close(c.done)
	return nil
}

func TestTelemetryUnary_EmitsEvent(t *testing.T) {
	em := &captureEmitter{done: make(chan struct{})}
	interceptor := TelemetryUnary(em, nil, zerolog.Nop())
	if _, err := interceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/a/B"}, okHandler); err != nil {
		t.Fatalf("interceptor: %v", err)
	}
	select {
	case <-em.done:
	case <-time.After(2 * time.Second):
		t.Fatal("event not emitted")
	}
	em.mu.Lock()
	defer em.mu.Unlock()
	ev := em.events[0]
	if ev.Type != EventGRPCRequest {
		t.Errorf("Type = %q", ev.Type)
	}
	var meta grpcRequestMetadata
	if err := json.Unmarshal([]byte(ev.Metadata), &meta); err != nil {
		t.Fatalf("metadata: %v", err)
	}
	if meta.FullMethod != "/a/B" || meta.StatusCode != "OK" {
		t.Errorf("meta = %+v", meta)
	}
}

func TestTelemetryUnary_SkipAndNil(t *testing.T) {
	em := &captureEmitter{done: make(chan struct{})}
	skip := TelemetryUnary(em, map[string]bool{"/a/B": true}, zerolog.Nop())
	if _, err := skip(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/a/B"}, okHandler); err != nil {
		t.Fatalf("interceptor: %v", err)
	}
	nilEmitter := TelemetryUnary(nil, nil, zerolog.Nop())
	if _, err := nilEmitter(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/a/B"}, okHandler); err != nil {
		t.Fatalf("interceptor: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	em.mu.Lock()
	defer em.mu.Unlock()
	if len(em.events) != 0 {
		t.Errorf("events = %d, want 0", len(em.events))
	}
}
