package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

type Client struct {
	client    *asynq.Client
	inspector *asynq.Inspector
	queue     string
	timeout   time.Duration
	retention time.Duration
}

func NewClient(redisOpt asynq.RedisClientOpt, queueName string, taskTimeout time.Duration) *Client {
	if taskTimeout <= 0 {
		taskTimeout = 3 * time.Minute
	}
	return &Client{
		client:    asynq.NewClient(redisOpt),
		inspector: asynq.NewInspector(redisOpt),
		queue:     queueName,
		timeout:   taskTimeout,
		retention: time.Hour,
	}
}

func (c *Client) Queue() string {
	return c.queue
}

// EnqueueTransform submits a task whose result is retained so the caller can
// collect it with TaskInfo.
func (c *Client) EnqueueTransform(ctx context.Context, payload TransformPayload) (*asynq.TaskInfo, error) {
	task, err := NewTransformTask(payload)
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(
		ctx,
		task,
		asynq.Queue(c.queue),
		asynq.TaskID(payload.RequestID),
		asynq.MaxRetry(2),
		asynq.Timeout(c.timeout),
		asynq.Retention(c.retention),
	)
}

func (c *Client) TaskInfo(taskID string) (*asynq.TaskInfo, error) {
	return c.inspector.GetTaskInfo(c.queue, taskID)
}

// Cancel stops a task wherever it is: running tasks get a cancellation
// signal, waiting ones are deleted.
func (c *Client) Cancel(taskID string) error {
	info, err := c.inspector.GetTaskInfo(c.queue, taskID)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskNotFound) {
			return nil
		}
		return fmt.Errorf("inspect task %s: %w", taskID, err)
	}

	switch info.State {
	case asynq.TaskStateActive:
		if err := c.inspector.CancelProcessing(taskID); err != nil {
			return fmt.Errorf("cancel task %s: %w", taskID, err)
		}
	case asynq.TaskStateCompleted:
		return nil
	default:
		if err := c.inspector.DeleteTask(c.queue, taskID); err != nil && !errors.Is(err, asynq.ErrTaskNotFound) {
			return fmt.Errorf("delete task %s: %w", taskID, err)
		}
	}
	return nil
}

func (c *Client) Close() error {
	return errors.Join(c.client.Close(), c.inspector.Close())
}
