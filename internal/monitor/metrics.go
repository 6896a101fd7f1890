package monitor

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/greenpath/greenpath/internal/monitor"

// Metrics holds the operation monitor instruments. A nil *Metrics records nothing.
type Metrics struct {
	operations metric.Int64Counter
	frames     metric.Int64Counter
	duration   metric.Float64Histogram
}

// NewMetrics creates the monitor instruments on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	operations, err := meter.Int64Counter(
		"greenpath.operations",
		metric.WithDescription("Load operations by outcome (started, complete, failed, cancelled)"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, err
	}

	frames, err := meter.Int64Counter(
		"greenpath.operation.frames",
		metric.WithDescription("Progress stream frames by kind"),
		metric.WithUnit("{frame}"),
	)
	if err != nil {
		return nil, err
	}

	duration, err := meter.Float64Histogram(
		"greenpath.operation.duration",
		metric.WithDescription("Time from subscription to terminal state in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		operations: operations,
		frames:     frames,
		duration:   duration,
	}, nil
}

func (m *Metrics) operation(outcome string) {
	if m == nil {
		return
	}
	m.operations.Add(context.Background(), 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (m *Metrics) frame(kind string) {
	if m == nil {
		return
	}
	m.frames.Add(context.Background(), 1, metric.WithAttributes(attribute.String("kind", kind)))
}

func (m *Metrics) finished(state State, since time.Time) {
	if m == nil {
		return
	}
	m.duration.Record(context.Background(), time.Since(since).Seconds(),
		metric.WithAttributes(attribute.String("state", state.String())))
}
