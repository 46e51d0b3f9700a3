package supervisor

import (
	"context"
	"errors"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const (
	meterName  = "backdesk/supervisor"
	tracerName = "backdesk/supervisor"
)

type instruments struct {
	spawns        metric.Int64Counter
	spawnFailures metric.Int64Counter
	restarts      metric.Int64Counter
	exits         metric.Int64Counter
	droppedLines  metric.Int64Counter
}

// newInstruments registers the supervisor's counters and its asynchronous
// gauges. Registration errors fall back to no-op instruments.
func newInstruments(meter metric.Meter, s *Supervisor) *instruments {
	in, err := buildInstruments(meter, s)
	if err != nil {
		otel.Handle(err)
		in, _ = buildInstruments(noop.NewMeterProvider().Meter(meterName), s)
	}
	return in
}

func buildInstruments(meter metric.Meter, s *Supervisor) (*instruments, error) {
	var in instruments
	var errs []error
	var err error

	in.spawns, err = meter.Int64Counter("backdesk.engine.spawns",
		metric.WithDescription("Engine processes spawned"))
	errs = append(errs, err)
	in.spawnFailures, err = meter.Int64Counter("backdesk.engine.spawn_failures",
		metric.WithDescription("Engine spawn attempts that failed"))
	errs = append(errs, err)
	in.restarts, err = meter.Int64Counter("backdesk.engine.restarts",
		metric.WithDescription("Scheduled restarts that fired"))
	errs = append(errs, err)
	in.exits, err = meter.Int64Counter("backdesk.engine.exits",
		metric.WithDescription("Engine exits by exit code"))
	errs = append(errs, err)
	in.droppedLines, err = meter.Int64Counter("backdesk.engine.log.dropped_lines",
		metric.WithDescription("Engine output lines dropped by the log throttle"))
	errs = append(errs, err)

	// Async gauges are read on scrape.
	_, err = meter.Int64ObservableGauge("backdesk.engine.up",
		metric.WithDescription("1 while an engine process is live"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			snap := s.Snapshot()
			var up int64
			if snap.State == StateRunning {
				up = 1
			}
			obs.Observe(up, metric.WithAttributes(attribute.String("state", string(snap.State))))
			return nil
		}),
	)
	errs = append(errs, err)
	_, err = meter.Int64ObservableGauge("backdesk.engine.memory.rss",
		metric.WithDescription("Resident set size of the engine process"),
		metric.WithUnit("By"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			stats, err := s.Stats(ctx)
			if err != nil {
				// Don't fail the scrape when no engine is running
				return nil
			}
			obs.Observe(int64(stats.RSSBytes))
			return nil
		}),
	)
	errs = append(errs, err)

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return &in, nil
}

func (in *instruments) spawned(ctx context.Context, restart bool) {
	in.spawns.Add(ctx, 1, metric.WithAttributes(attribute.Bool("restart", restart)))
}

func (in *instruments) spawnFailed() {
	in.spawnFailures.Add(context.Background(), 1)
}

func (in *instruments) restarted() {
	in.restarts.Add(context.Background(), 1)
}

func (in *instruments) exited(code *int) {
	label := "none"
	if code != nil {
		label = strconv.Itoa(*code)
	}
	in.exits.Add(context.Background(), 1, metric.WithAttributes(attribute.String("exit_code", label)))
}

func (in *instruments) dropped(n int64) {
	in.droppedLines.Add(context.Background(), n)
}
