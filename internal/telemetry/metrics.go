package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "linkgate/linking"

// Verify results recorded on linkgate.verify.attempts.
const (
	VerifyLinked   = "linked"
	VerifyRejected = "rejected"
	VerifyInvalid  = "invalid"
)

// LinkMetrics records linking counters. A nil *LinkMetrics is a no-op.
type LinkMetrics struct {
	codesIssued    metric.Int64Counter
	verifyAttempts metric.Int64Counter
	unlinks        metric.Int64Counter
	swept          metric.Int64Counter
}

// NewLinkMetrics registers the linking instruments on mp. links reports the current link count
// for the linkgate.links gauge and may be nil.
func NewLinkMetrics(mp metric.MeterProvider, links func() int) (*LinkMetrics, error) {
	meter := mp.Meter(meterName)
	m := &LinkMetrics{}
	var err error
	if m.codesIssued, err = meter.Int64Counter("linkgate.codes.issued",
		metric.WithDescription("Linking codes issued")); err != nil {
		return nil, err
	}
	if m.verifyAttempts, err = meter.Int64Counter("linkgate.verify.attempts",
		metric.WithDescription("Code verification attempts by result")); err != nil {
		return nil, err
	}
	if m.unlinks, err = meter.Int64Counter("linkgate.unlinks",
		metric.WithDescription("Links removed")); err != nil {
		return nil, err
	}
	if m.swept, err = meter.Int64Counter("linkgate.codes.swept",
		metric.WithDescription("Expired codes removed by the sweeper")); err != nil {
		return nil, err
	}
	if links != nil {
		_, err = meter.Int64ObservableGauge("linkgate.links",
			metric.WithDescription("Current confirmed links"),
			metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
				o.Observe(int64(links()))
				return nil
			}))
		if err != nil {
			return nil, err
		}
	}
	return m, nil
}

// CodeIssued counts one issued code.
func (m *LinkMetrics) CodeIssued(ctx context.Context) {
	if m == nil {
		return
	}
	m.codesIssued.Add(ctx, 1)
}

// VerifyAttempt counts one verification with the given result.
func (m *LinkMetrics) VerifyAttempt(ctx context.Context, result string) {
	if m == nil {
		return
	}
	m.verifyAttempts.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// Unlinked counts one removed link; by is "account" or "external".
func (m *LinkMetrics) Unlinked(ctx context.Context, by string) {
	if m == nil {
		return
	}
	m.unlinks.Add(ctx, 1, metric.WithAttributes(attribute.String("by", by)))
}

// Swept counts removed expired codes.
func (m *LinkMetrics) Swept(ctx context.Context, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.swept.Add(ctx, int64(n))
}
