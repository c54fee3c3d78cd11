package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/hibiken/asynq"

	"github.com/firmdesk/firmdesk/jobs"
)

type taskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

type queueInspector interface {
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
	Close() error
}

// JobsCLI wraps manual management helpers for Asynq jobs.
type JobsCLI struct {
	client    taskEnqueuer
	inspector queueInspector
	retention time.Duration
}

// NewJobsCLI initialises the CLI helpers using the provided Redis options.
func NewJobsCLI(redisOpts asynq.RedisClientOpt, retention time.Duration) *JobsCLI {
	return &JobsCLI{
		client:    asynq.NewClient(redisOpts),
		inspector: asynq.NewInspector(redisOpts),
		retention: retention,
	}
}

// Close releases underlying resources.
func (c *JobsCLI) Close() error {
	var err error
	if c.inspector != nil {
		if closeErr := c.inspector.Close(); closeErr != nil {
			err = closeErr
		}
	}
	if c.client != nil {
		if closeErr := c.client.Close(); closeErr != nil {
			err = closeErr
		}
	}
	return err
}

// Trigger enqueues a supported job by name with default payload.
func (c *JobsCLI) Trigger(ctx context.Context, name string) (*asynq.TaskInfo, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("jobs cli: client not configured")
	}
	var task *asynq.Task
	var err error
	switch name {
	case jobs.TaskAuditPrune, "prune":
		task, err = jobs.NewAuditPruneTask(c.retention)
	default:
		return nil, fmt.Errorf("jobs cli: unsupported job %s", name)
	}
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(ctx, task, asynq.MaxRetry(3))
}

// QueueStats summarises the current queue state.
type QueueStats struct {
	Queue     string
	Pending   int
	Active    int
	Scheduled int
	Retry     int
	Failed    int
}

// InspectQueues reports metrics for every queue the worker serves.
func (c *JobsCLI) InspectQueues() ([]QueueStats, error) {
	if c == nil || c.inspector == nil {
		return nil, errors.New("jobs cli: inspector not configured")
	}
	var out []QueueStats
	for _, queue := range []string{jobs.QueueAudit, jobs.QueueDefault} {
		stats := QueueStats{Queue: queue}
		info, err := c.inspector.GetQueueInfo(queue)
		if err != nil && !errors.Is(err, asynq.ErrQueueNotFound) {
			return nil, err
		}
		if info != nil {
			stats.Pending = info.Pending
			stats.Active = info.Active
			stats.Scheduled = info.Scheduled
			stats.Retry = info.Retry
			stats.Failed = info.Failed
		}
		out = append(out, stats)
	}
	return out, nil
}

// RunJobs executes `jobs <subcommand>` and returns the process exit code.
func RunJobs(ctx context.Context, redisOpts asynq.RedisClientOpt, retention time.Duration, args []string, out io.Writer) int {
	c := NewJobsCLI(redisOpts, retention)
	defer c.Close()
	return c.run(ctx, args, out)
}

func (c *JobsCLI) run(ctx context.Context, args []string, out io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(out, "usage: firmdesk jobs (stats | trigger <job>)")
		return 2
	}
	switch args[0] {
	case "stats":
		stats, err := c.InspectQueues()
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
			return 1
		}
		for _, s := range stats {
			fmt.Fprintf(out, "%-8s pending=%d active=%d scheduled=%d retry=%d failed=%d\n",
				s.Queue, s.Pending, s.Active, s.Scheduled, s.Retry, s.Failed)
		}
		return 0
	case "trigger":
		if len(args) < 2 {
			fmt.Fprintln(out, "usage: firmdesk jobs trigger <job>")
			return 2
		}
		info, err := c.Trigger(ctx, args[1])
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
			return 1
		}
		fmt.Fprintf(out, "enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
		return 0
	default:
		fmt.Fprintf(out, "unknown jobs command %q\n", args[0])
		return 2
	}
}
