package telemetry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// mockEventEmitter implements EventEmitter for tests.
type mockEventEmitter struct {
	mu      sync.Mutex
	events  []*Event
	emitErr error
	done    chan struct{}
}

func (m *mockEventEmitter) Emit(ctx context.Context, event *Event) error {
	m.mu.Lock()
	m.events = append(m.events, event)
	m.mu.Unlock()
	if m.done != nil {
		close(m.done)
	}
	return m.emitErr
}

func (m *mockEventEmitter) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

func TestEmitAsync_DeliversEvent(t *testing.T) {
	em := &mockEventEmitter{done: make(chan struct{})}
	EmitAsync(em, &Event{Type: "link_created", AccountID: "acct-1"}, zerolog.Nop())

	select {
	case <-em.done:
	case <-time.After(2 * time.Second):
		t.Fatal("event was not emitted")
	}
	if em.count() != 1 {
		t.Errorf("events = %d, want 1", em.count())
	}
}

func TestEmitAsync_EmitErrorIsSwallowed(t *testing.T) {
	em := &mockEventEmitter{done: make(chan struct{}), emitErr: errors.New("collector down")}
	EmitAsync(em, &Event{Type: "link_created"}, zerolog.Nop())
	select {
	case <-em.done:
	case <-time.After(2 * time.Second):
		t.Fatal("event was not emitted")
	}
}

func TestEmitAsync_NilArgs(t *testing.T) {
	EmitAsync(nil, &Event{}, zerolog.Nop())
	em := &mockEventEmitter{}
	EmitAsync(em, nil, zerolog.Nop())
	time.Sleep(10 * time.Millisecond)
	if em.count() != 0 {
		t.Error("nil event should not be emitted")
	}
}

func TestShutdownDrainDuration_CoversEmitTimeout(t *testing.T) {
	if ShutdownDrainDuration < emitTimeout {
		t.Errorf("ShutdownDrainDuration = %v, want >= %v", ShutdownDrainDuration, emitTimeout)
	}
}
