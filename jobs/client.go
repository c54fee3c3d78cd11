package jobs

import (
	"context"

	"github.com/hibiken/asynq"

	"github.com/firmdesk/firmdesk/internal/shared"
)

type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

// Client submits tasks to the queue.
type Client struct {
	client enqueuer
}

// NewClient constructs an Asynq client.
func NewClient(redisOpts asynq.RedisClientOpt) (*Client, error) {
	return &Client{client: asynq.NewClient(redisOpts)}, nil
}

// EnqueueAudit enqueues an audit record task.
func (c *Client) EnqueueAudit(ctx context.Context, log shared.AuditLog) (*asynq.TaskInfo, error) {
	task, err := NewAuditRecordTask(log)
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(ctx, task)
}

// Close releases client resources.
func (c *Client) Close() error {
	return c.client.Close()
}
