package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/monstrox/monstro/internal/clock"
	"github.com/monstrox/monstro/internal/config"
	obscontext "github.com/monstrox/monstro/internal/observability/context"
	"github.com/monstrox/monstro/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrUnknownTaskType = errors.New("unknown_task_type")

// Client is the producer side of the job queues.
type Client interface {
	// Enqueue pushes a task for immediate processing.
	Enqueue(ctx context.Context, taskType string, payload any, opts ...asynq.Option) (string, error)
	// Schedule pushes a delayed task. A task id that already exists is treated
	// as success and its id returned.
	Schedule(ctx context.Context, taskType string, payload any, at time.Time, taskID string) (string, error)
	// Ensure is Schedule for work that must eventually succeed: a task left
	// under taskID in the completed or archived set is replaced, while a
	// pending, scheduled, retrying or running one is kept.
	Ensure(ctx context.Context, taskType string, payload any, at time.Time, taskID string) (string, error)
	// Remove deletes a pending or scheduled task. Missing tasks are not an error.
	Remove(ctx context.Context, queue, taskID string) error
}

type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

type inspector interface {
	GetTaskInfo(queue, id string) (*asynq.TaskInfo, error)
	DeleteTask(queue, id string) error
	Close() error
}

type ClientParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	RedisOpt  asynq.RedisClientOpt
	Jobs      *config.JobsConfigHolder
	Clock     clock.Clock
	Log       *zap.Logger
}

type client struct {
	producer  enqueuer
	inspector inspector
	jobs      *config.JobsConfigHolder
	clock     clock.Clock
	log       *zap.Logger
	metrics   *metrics.QueueMetrics
}

func NewClient(p ClientParams) Client {
	c := newClient(asynq.NewClient(p.RedisOpt), asynq.NewInspector(p.RedisOpt), p.Jobs, p.Clock, p.Log)
	p.Lifecycle.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return errors.Join(c.producer.Close(), c.inspector.Close())
		},
	})
	return c
}

func newClient(producer enqueuer, insp inspector, jobs *config.JobsConfigHolder, clk clock.Clock, log *zap.Logger) *client {
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &client{
		producer:  producer,
		inspector: insp,
		jobs:      jobs,
		clock:     clk,
		log:       log.Named("queue.client"),
		metrics:   metrics.Queue(),
	}
}

// optionsFor applies the queue policy ahead of caller options so callers can override.
func (c *client) optionsFor(queue string, extra []asynq.Option) []asynq.Option {
	policy := c.jobs.Get().Policy(queue)
	opts := []asynq.Option{
		asynq.Queue(queue),
		asynq.MaxRetry(policy.MaxRetry()),
	}
	if policy.Timeout > 0 {
		opts = append(opts, asynq.Timeout(policy.Timeout))
	}
	if policy.Retention > 0 {
		opts = append(opts, asynq.Retention(policy.Retention))
	}
	return append(opts, extra...)
}

func (c *client) newTask(ctx context.Context, taskType string, payload any) (*asynq.Task, string, error) {
	queue, ok := QueueFor(taskType)
	if !ok {
		return nil, "", fmt.Errorf("%w: %s", ErrUnknownTaskType, taskType)
	}
	body, err := encode(obscontext.CorrelationIDFromContext(ctx), payload, c.clock.Now())
	if err != nil {
		return nil, "", err
	}
	return asynq.NewTask(taskType, body), queue, nil
}

func (c *client) Enqueue(ctx context.Context, taskType string, payload any, opts ...asynq.Option) (string, error) {
	task, queue, err := c.newTask(ctx, taskType, payload)
	if err != nil {
		return "", err
	}

	info, err := c.producer.EnqueueContext(ctx, task, c.optionsFor(queue, opts)...)
	if err != nil {
		c.metrics.IncEnqueueError(queue, taskType)
		return "", fmt.Errorf("enqueue %s: %w", taskType, err)
	}
	c.metrics.IncEnqueued(queue, taskType)
	c.log.Debug("task enqueued",
		zap.String("task_type", taskType),
		zap.String("queue", queue),
		zap.String("task_id", info.ID),
	)
	return info.ID, nil
}

func (c *client) Schedule(ctx context.Context, taskType string, payload any, at time.Time, taskID string) (string, error) {
	return c.schedule(ctx, taskType, payload, at, taskID, false)
}

func (c *client) Ensure(ctx context.Context, taskType string, payload any, at time.Time, taskID string) (string, error) {
	return c.schedule(ctx, taskType, payload, at, taskID, true)
}

func (c *client) schedule(ctx context.Context, taskType string, payload any, at time.Time, taskID string, replaceFinished bool) (string, error) {
	task, queue, err := c.newTask(ctx, taskType, payload)
	if err != nil {
		return "", err
	}

	extra := []asynq.Option{asynq.ProcessAt(at)}
	if taskID != "" {
		extra = append(extra, asynq.TaskID(taskID))
	}
	opts := c.optionsFor(queue, extra)
	info, err := c.producer.EnqueueContext(ctx, task, opts...)
	if errors.Is(err, asynq.ErrTaskIDConflict) && taskID != "" {
		if !replaceFinished {
			c.log.Debug("task already scheduled",
				zap.String("task_type", taskType),
				zap.String("task_id", taskID),
			)
			return taskID, nil
		}
		replaced, rerr := c.dropFinished(queue, taskID)
		if rerr != nil {
			c.metrics.IncEnqueueError(queue, taskType)
			return "", fmt.Errorf("schedule %s: %w", taskType, rerr)
		}
		if !replaced {
			return taskID, nil
		}
		info, err = c.producer.EnqueueContext(ctx, task, opts...)
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			// another producer won the race after the delete
			return taskID, nil
		}
	}
	if err != nil {
		c.metrics.IncEnqueueError(queue, taskType)
		return "", fmt.Errorf("schedule %s: %w", taskType, err)
	}
	c.metrics.IncEnqueued(queue, taskType)
	c.log.Debug("task scheduled",
		zap.String("task_type", taskType),
		zap.String("queue", queue),
		zap.String("task_id", info.ID),
		zap.Time("process_at", at),
	)
	return info.ID, nil
}

// dropFinished deletes a completed or archived task so its id can be reused.
// It reports false when the existing task is still live.
func (c *client) dropFinished(queue, taskID string) (bool, error) {
	info, err := c.inspector.GetTaskInfo(queue, taskID)
	switch {
	case errors.Is(err, asynq.ErrTaskNotFound):
		// expired between the conflict and the lookup
		return true, nil
	case err != nil:
		return false, err
	}
	if info.State != asynq.TaskStateArchived && info.State != asynq.TaskStateCompleted {
		return false, nil
	}
	if err := c.inspector.DeleteTask(queue, taskID); err != nil && !errors.Is(err, asynq.ErrTaskNotFound) {
		return false, err
	}
	c.log.Info("queue.task.replaced",
		zap.String("queue", queue),
		zap.String("task_id", taskID),
		zap.String("previous_state", info.State.String()),
	)
	return true, nil
}

func (c *client) Remove(ctx context.Context, queue, taskID string) error {
	if taskID == "" {
		return nil
	}
	err := c.inspector.DeleteTask(queue, taskID)
	switch {
	case err == nil:
		c.metrics.IncRemoved(queue)
		c.log.Debug("task removed", zap.String("queue", queue), zap.String("task_id", taskID))
		return nil
	case errors.Is(err, asynq.ErrTaskNotFound), errors.Is(err, asynq.ErrQueueNotFound):
		return nil
	default:
		return fmt.Errorf("remove task %s: %w", taskID, err)
	}
}
