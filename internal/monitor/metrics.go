package monitor

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "github.com/alesut/pixel-agents/internal/monitor"

// pollMetrics records poller activity on the global OpenTelemetry meter.
// Without an installed SDK every instrument is a no-op.
type pollMetrics struct {
	ticks        metric.Int64Counter
	lines        metric.Int64Counter
	malformed    metric.Int64Counter
	truncations  metric.Int64Counter
	events       metric.Int64Counter
	tickDuration metric.Float64Histogram
}

func newPollMetrics() *pollMetrics {
	meter := otel.Meter(meterName)
	m := &pollMetrics{
		ticks:       counter(meter, "pixel_agents.poll.ticks", "Completed poll ticks"),
		lines:       counter(meter, "pixel_agents.tail.lines", "Transcript lines processed"),
		malformed:   counter(meter, "pixel_agents.tail.malformed_lines", "Transcript lines that were not JSON objects"),
		truncations: counter(meter, "pixel_agents.tail.truncations", "Session files that shrank and were replayed"),
		events:      counter(meter, "pixel_agents.events", "State-change events emitted"),
	}
	h, err := meter.Float64Histogram("pixel_agents.poll.duration",
		metric.WithDescription("Time spent in one poll tick"),
		metric.WithUnit("s"))
	if err != nil {
		h = noop.Float64Histogram{}
	}
	m.tickDuration = h
	return m
}

func counter(meter metric.Meter, name, desc string) metric.Int64Counter {
	c, err := meter.Int64Counter(name, metric.WithDescription(desc))
	if err != nil {
		return noop.Int64Counter{}
	}
	return c
}

func (m *pollMetrics) recordTick(ctx context.Context, d time.Duration) {
	m.ticks.Add(ctx, 1)
	m.tickDuration.Record(ctx, d.Seconds())
}

func (m *pollMetrics) recordPoll(ctx context.Context, res PollResult) {
	if res.Lines > 0 {
		m.lines.Add(ctx, int64(res.Lines))
	}
	if res.Malformed > 0 {
		m.malformed.Add(ctx, int64(res.Malformed))
	}
	if res.Truncated {
		m.truncations.Add(ctx, 1)
	}
}

func (m *pollMetrics) recordEvent(ctx context.Context, eventType string) {
	m.events.Add(ctx, 1, metric.WithAttributes(attribute.String("type", eventType)))
}
