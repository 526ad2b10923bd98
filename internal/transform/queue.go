package transform

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/dunamismax/styleflow/internal/domain"
	"github.com/dunamismax/styleflow/internal/id"
	"github.com/dunamismax/styleflow/internal/queue"
	"github.com/dunamismax/styleflow/internal/storage"
	"github.com/hibiken/asynq"
)

type taskQueue interface {
	EnqueueTransform(ctx context.Context, payload queue.TransformPayload) (*asynq.TaskInfo, error)
	TaskInfo(taskID string) (*asynq.TaskInfo, error)
	Cancel(taskID string) error
}

type objectStore interface {
	WriteObject(ctx context.Context, objectKey string, data []byte, contentType string) error
	ReadObject(ctx context.Context, objectKey string) ([]byte, error)
	DeleteObject(ctx context.Context, objectKey string) error
}

// QueueProvider hands transforms to the worker fleet. The source image is
// staged in object storage, the task is polled until it completes, and the
// result object is read back. Cancelling ctx cancels the task.
type QueueProvider struct {
	logger       *log.Logger
	queue        taskQueue
	objects      objectStore
	pollInterval time.Duration
	maxPollErrs  int
}

func NewQueueProvider(logger *log.Logger, q taskQueue, objects objectStore, pollInterval time.Duration) (*QueueProvider, error) {
	if q == nil {
		return nil, errors.New("task queue is required")
	}
	if objects == nil {
		return nil, errors.New("object store is required")
	}
	if pollInterval <= 0 {
		pollInterval = 250 * time.Millisecond
	}
	return &QueueProvider{
		logger:       logger,
		queue:        q,
		objects:      objects,
		pollInterval: pollInterval,
		maxPollErrs:  5,
	}, nil
}

func (p *QueueProvider) Transform(ctx context.Context, img domain.ImageAsset, style domain.StylePreset) (domain.ImageAsset, error) {
	sessionID := SessionFromContext(ctx)
	requestID := id.New()
	payload := queue.TransformPayload{
		RequestID:      requestID,
		SessionID:      sessionID,
		Style:          style,
		SourceKey:      storage.ObjectKey("sources", sessionID, requestID),
		SourceName:     img.Name,
		SourceMimeType: img.MimeType,
		ResultKey:      storage.ObjectKey("results", sessionID, requestID),
		RequestedAt:    time.Now().UTC(),
	}

	if err := p.objects.WriteObject(ctx, payload.SourceKey, img.Data, img.MimeType); err != nil {
		return domain.ImageAsset{}, fmt.Errorf("stage source image: %w", err)
	}
	defer p.cleanup(payload.SourceKey, payload.ResultKey)

	if _, err := p.queue.EnqueueTransform(ctx, payload); err != nil {
		return domain.ImageAsset{}, fmt.Errorf("enqueue transform: %w", err)
	}

	result, err := p.await(ctx, requestID)
	if err != nil {
		return domain.ImageAsset{}, err
	}

	data, err := p.objects.ReadObject(ctx, result.ResultKey)
	if err != nil {
		return domain.ImageAsset{}, fmt.Errorf("read transform result: %w", err)
	}
	return newResult(img, style, data, result.MimeType, result.Width, result.Height), nil
}

func (p *QueueProvider) await(ctx context.Context, taskID string) (queue.TransformResult, error) {
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	pollErrs := 0
	for {
		select {
		case <-ctx.Done():
			if err := p.queue.Cancel(taskID); err != nil {
				p.logf("cancel task failed task_id=%s err=%v", taskID, err)
			}
			return queue.TransformResult{}, ctx.Err()
		case <-ticker.C:
		}

		info, err := p.queue.TaskInfo(taskID)
		if err != nil {
			if errors.Is(err, asynq.ErrTaskNotFound) {
				return queue.TransformResult{}, fmt.Errorf("transform task %s disappeared", taskID)
			}
			pollErrs++
			if pollErrs >= p.maxPollErrs {
				return queue.TransformResult{}, fmt.Errorf("inspect transform task %s: %w", taskID, err)
			}
			continue
		}
		pollErrs = 0

		switch info.State {
		case asynq.TaskStateCompleted:
			return queue.ParseTransformResult(info.Result)
		case asynq.TaskStateArchived:
			return queue.TransformResult{}, fmt.Errorf("worker gave up on task %s: %s", taskID, info.LastErr)
		}
	}
}

// cleanup removes staged objects once the caller has the result in memory.
func (p *QueueProvider) cleanup(keys ...string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, key := range keys {
		if err := p.objects.DeleteObject(ctx, key); err != nil {
			p.logf("cleanup failed object_key=%s err=%v", key, err)
		}
	}
}

func (p *QueueProvider) logf(format string, args ...any) {
	if p.logger != nil {
		p.logger.Printf(format, args...)
	}
}
