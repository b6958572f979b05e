package scheduler

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/monstrox/monstro/internal/clock"
	obscontext "github.com/monstrox/monstro/internal/observability/context"
	obslogger "github.com/monstrox/monstro/internal/observability/logger"
	obsmetrics "github.com/monstrox/monstro/internal/observability/metrics"
	"go.uber.org/zap"
)

// sweepRun tallies one firing of a job. Nested runJob calls share the
// outer run through the context.
type sweepRun struct {
	log       *zap.Logger
	clock     clock.Clock
	started   time.Time
	processed int
	failed    int
}

type sweepRunKey struct{}

func (s *Scheduler) beginRun(ctx context.Context, job string, batchSize int) (context.Context, *sweepRun, bool) {
	if run := runFrom(ctx); run != nil {
		return ctx, run, false
	}

	ctx = obscontext.WithActor(ctx, "system", "scheduler")
	run := &sweepRun{
		log: obslogger.WithContext(ctx, s.log).With(
			zap.String("job", job),
			zap.String("run_id", s.genID.Generate().String()),
		),
		clock:   s.clock,
		started: s.clock.Now(),
	}
	run.log.Info("scheduler.job.start", zap.Int("batch_size", batchSize))
	return context.WithValue(ctx, sweepRunKey{}, run), run, true
}

func runFrom(ctx context.Context) *sweepRun {
	run, _ := ctx.Value(sweepRunKey{}).(*sweepRun)
	return run
}

// at scopes the run logger to one location.
func (r *sweepRun) at(locationID snowflake.ID) *zap.Logger {
	if r == nil {
		return zap.NewNop()
	}
	if locationID == 0 {
		return r.log
	}
	return r.log.With(zap.String("location_id", locationID.String()))
}

func (r *sweepRun) done(n int) {
	if r != nil && n > 0 {
		r.processed += n
	}
}

// fail records a per-row failure. The sweep carries on with the next row.
func (r *sweepRun) fail(msg string, locationID snowflake.ID, err error, fields ...zap.Field) {
	if r == nil || err == nil {
		return
	}
	r.failed++
	class := obsmetrics.ClassifyJobError(err)
	r.at(locationID).Error(msg, append([]zap.Field{
		zap.String("error_type", class.Kind),
		zap.Bool("retryable", class.Retryable),
		zap.Error(err),
	}, fields...)...)
}

func (r *sweepRun) finish(err error) {
	if err != nil && r.failed == 0 {
		r.failed = 1
	}
	level := zap.InfoLevel
	if r.failed > 0 {
		level = zap.WarnLevel
	}
	r.log.Log(level, "scheduler.job.finish",
		zap.Int64("duration_ms", r.clock.Now().Sub(r.started).Milliseconds()),
		zap.Int("processed_count", r.processed),
		zap.Int("error_count", r.failed),
	)
}
