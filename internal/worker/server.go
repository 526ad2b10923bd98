package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/dunamismax/styleflow/internal/config"
	"github.com/dunamismax/styleflow/internal/domain"
	"github.com/dunamismax/styleflow/internal/ingest"
	"github.com/dunamismax/styleflow/internal/queue"
	"github.com/dunamismax/styleflow/internal/transform"
	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	outcomeSucceeded = "succeeded"
	outcomeFailed    = "failed"
	outcomeRejected  = "rejected"
)

type objectStore interface {
	ReadObject(ctx context.Context, objectKey string) ([]byte, error)
	WriteObject(ctx context.Context, objectKey string, data []byte, contentType string) error
}

// Server consumes style transform tasks. Each task names a staged source
// object; the worker runs its provider and writes the styled image back
// to the task's result key.
type Server struct {
	logger   *log.Logger
	server   *asynq.Server
	sem      chan struct{}
	provider transform.Provider
	objects  objectStore
	metrics  *metrics
	tracer   trace.Tracer
}

func NewServer(
	logger *log.Logger,
	queueCfg config.QueueConfig,
	workerCfg config.WorkerConfig,
	provider transform.Provider,
	objects objectStore,
) (*Server, error) {
	if provider == nil {
		return nil, fmt.Errorf("transform provider is required")
	}
	if objects == nil {
		return nil, fmt.Errorf("object store is required")
	}

	s := newServer(logger, provider, objects, workerCfg.MaxActiveJobs)
	s.server = asynq.NewServer(
		queueCfg.RedisClientOpt(),
		asynq.Config{
			Concurrency: workerCfg.Concurrency,
			Queues: map[string]int{
				queueCfg.Name: 1,
			},
			LogLevel: asynq.InfoLevel,
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				retried, _ := asynq.GetRetryCount(ctx)
				maxRetry, _ := asynq.GetMaxRetry(ctx)
				logger.Printf("task failed type=%s retry=%d/%d err=%v", task.Type(), retried, maxRetry, err)
			}),
		},
	)
	return s, nil
}

func newServer(logger *log.Logger, provider transform.Provider, objects objectStore, maxActive int) *Server {
	return &Server{
		logger:   logger,
		sem:      make(chan struct{}, max(1, maxActive)),
		provider: provider,
		objects:  objects,
		metrics:  newMetrics(),
		tracer:   otel.Tracer("styleflow/worker"),
	}
}

func (s *Server) Run() error {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TypeTransformImage, s.handleTransform)
	return s.server.Run(mux)
}

func (s *Server) MetricsHandler() http.Handler {
	return s.metrics.Handler()
}

func (s *Server) handleTransform(ctx context.Context, task *asynq.Task) error {
	startedAt := time.Now()
	outcome := outcomeFailed

	payload, err := queue.ParseTransformPayload(task)
	if err != nil {
		s.metrics.tasksTotal.WithLabelValues("unknown", outcomeRejected).Inc()
		return fmt.Errorf("parse payload: %v: %w", err, asynq.SkipRetry)
	}

	ctx, span := s.tracer.Start(ctx, "worker.transform", trace.WithSpanKind(trace.SpanKindConsumer))
	span.SetAttributes(
		attribute.String("request.id", payload.RequestID),
		attribute.String("session.id", payload.SessionID),
		attribute.String("style.id", payload.Style.ID),
	)
	defer span.End()
	defer func() {
		s.metrics.taskDuration.WithLabelValues(payload.Style.ID, outcome).Observe(time.Since(startedAt).Seconds())
		s.metrics.tasksTotal.WithLabelValues(payload.Style.ID, outcome).Inc()
	}()

	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	s.metrics.activeTasks.Inc()
	defer func() {
		<-s.sem
		s.metrics.activeTasks.Dec()
	}()

	s.logger.Printf(
		"Working... request_id=%s session_id=%s style=%s source_key=%s",
		payload.RequestID,
		payload.SessionID,
		payload.Style.ID,
		payload.SourceKey,
	)

	result, err := s.process(ctx, payload)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transform failed")
		if errors.Is(err, asynq.SkipRetry) {
			outcome = outcomeRejected
		}
		return err
	}

	raw, err := queue.EncodeTransformResult(result)
	if err != nil {
		return err
	}
	// Tasks built outside a server have no result writer.
	if w := task.ResultWriter(); w != nil {
		if _, err := w.Write(raw); err != nil {
			span.RecordError(err)
			return fmt.Errorf("write task result: %w", err)
		}
	}

	s.logger.Printf("Processed request_id=%s style=%s result_bytes=%d", payload.RequestID, payload.Style.ID, result.SizeBytes)
	s.metrics.bytesWrittenTotal.Add(float64(result.SizeBytes))
	outcome = outcomeSucceeded
	span.SetStatus(codes.Ok, "processed")
	return nil
}

// process runs one transform end to end. Errors that retrying cannot fix
// are wrapped with asynq.SkipRetry.
func (s *Server) process(ctx context.Context, payload queue.TransformPayload) (queue.TransformResult, error) {
	data, err := s.objects.ReadObject(ctx, payload.SourceKey)
	if err != nil {
		return queue.TransformResult{}, fmt.Errorf("fetch source: %w", err)
	}

	source, err := ingest.Ingest(ctx, ingest.FromBytes(payload.SourceName, payload.SourceMimeType, data))
	if err != nil {
		if kind := domain.KindOf(err); kind == domain.KindUnsupportedFormat || kind == domain.KindFileTooLarge {
			return queue.TransformResult{}, fmt.Errorf("invalid source: %v: %w", err, asynq.SkipRetry)
		}
		return queue.TransformResult{}, fmt.Errorf("load source: %w", err)
	}

	out, err := s.provider.Transform(ctx, source, payload.Style)
	if err != nil {
		return queue.TransformResult{}, fmt.Errorf("transform style=%s: %w", payload.Style.ID, err)
	}
	if err := transform.CheckResult(out); err != nil {
		return queue.TransformResult{}, fmt.Errorf("transform style=%s: %w", payload.Style.ID, err)
	}

	if err := s.objects.WriteObject(ctx, payload.ResultKey, out.Data, out.MimeType); err != nil {
		return queue.TransformResult{}, fmt.Errorf("store result: %w", err)
	}

	return queue.TransformResult{
		ResultKey: payload.ResultKey,
		MimeType:  out.MimeType,
		SizeBytes: out.SizeBytes,
		Width:     out.Width,
		Height:    out.Height,
	}, nil
}
