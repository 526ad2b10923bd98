package session

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/dunamismax/styleflow/internal/domain"
	"github.com/dunamismax/styleflow/internal/id"
	"github.com/dunamismax/styleflow/internal/store"
	"github.com/dunamismax/styleflow/internal/webhook"
)

const recorderQueueSize = 256

// Recorder is the workflow.Observer used by the binaries. It updates
// metrics inline and hands history writes and webhook deliveries to a
// background goroutine so the controller loop never waits on I/O.
type Recorder struct {
	logger   *log.Logger
	metrics  *Metrics
	records  store.TransformRecordStore
	webhooks *webhook.Client
	timeout  time.Duration

	tasks     chan func(context.Context)
	done      chan struct{}
	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
}

type RecorderOptions struct {
	Logger   *log.Logger
	Metrics  *Metrics
	Records  store.TransformRecordStore
	Webhooks *webhook.Client
	// Timeout bounds each background write. Defaults to 15s.
	Timeout time.Duration
}

func NewRecorder(opts RecorderOptions) *Recorder {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	r := &Recorder{
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		records:  opts.Records,
		webhooks: opts.Webhooks,
		timeout:  opts.Timeout,
		tasks:    make(chan func(context.Context), recorderQueueSize),
		done:     make(chan struct{}),
	}
	go r.loop()
	return r
}

func (r *Recorder) StateChanged(_ context.Context, prev, next domain.WorkflowState) {
	if prev.Status != next.Status {
		r.metrics.transition(prev.Status, next.Status)
	}
}

func (r *Recorder) TransformFinished(_ context.Context, record domain.TransformRecord) {
	r.metrics.transformFinished(record)

	if r.records != nil {
		r.enqueue(func(ctx context.Context) {
			if err := r.records.CreateTransformRecord(ctx, record); err != nil {
				r.logf("history write failed session_id=%s record_id=%s err=%v", record.SessionID, record.ID, err)
			}
		})
	}

	event := eventFor(record)
	if event == "" || !r.webhooks.Enabled() {
		return
	}
	r.enqueue(func(ctx context.Context) {
		err := r.webhooks.Send(ctx, webhook.Event{
			ID:         id.New(),
			Type:       event,
			SessionID:  record.SessionID,
			OccurredAt: record.CreatedAt,
			Data:       record,
		})
		if err != nil {
			r.logf("webhook delivery failed session_id=%s event=%s err=%v", record.SessionID, event, err)
		}
	})
}

// Forget drops the stored history of a removed session.
func (r *Recorder) Forget(sessionID string) {
	if r.records == nil {
		return
	}
	r.enqueue(func(ctx context.Context) {
		if err := r.records.DeleteTransformRecords(ctx, sessionID); err != nil {
			r.logf("history delete failed session_id=%s err=%v", sessionID, err)
		}
	})
}

// Close waits for queued work to finish.
func (r *Recorder) Close() error {
	r.closeOnce.Do(func() {
		r.mu.Lock()
		r.closed = true
		close(r.tasks)
		r.mu.Unlock()
		<-r.done
	})
	return nil
}

func (r *Recorder) enqueue(task func(context.Context)) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}
	select {
	case r.tasks <- task:
	default:
		r.logf("recorder queue full, dropping task")
	}
}

func (r *Recorder) loop() {
	defer close(r.done)
	for task := range r.tasks {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		task(ctx)
		cancel()
	}
}

func eventFor(record domain.TransformRecord) string {
	switch record.Status {
	case domain.RecordStatusSucceeded:
		return webhook.EventTransformCompleted
	case domain.RecordStatusFailed:
		return webhook.EventTransformFailed
	default:
		return ""
	}
}

func (r *Recorder) logf(format string, args ...any) {
	if r.logger != nil {
		r.logger.Printf(format, args...)
	}
}
