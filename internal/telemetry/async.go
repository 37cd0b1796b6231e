package telemetry

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// emitTimeout bounds one background emit.
const emitTimeout = 5 * time.Second

// ShutdownDrainDuration is the pause between stopping transports and shutting down the
// providers. It is never shorter than emitTimeout.
const ShutdownDrainDuration = emitTimeout

// EmitAsync hands event to emitter on a new goroutine detached from the caller's context.
// A nil emitter or event is a no-op.
func EmitAsync(emitter EventEmitter, event *Event, log zerolog.Logger) {
	if emitter == nil || event == nil {
		return
	}
	go func() {
		emitCtx, cancel := context.WithTimeout(context.Background(), emitTimeout)
		defer cancel()
		if err := emitter.Emit(emitCtx, event); err != nil {
			log.Warn().Err(err).Str("event_type", event.Type).Msg("telemetry event emit failed")
		}
	}()
}
