// Package workflow implements the per-session style transfer state machine.
//
// Each Controller owns a single event loop goroutine. Commands and transform
// completions are funnelled through channels into that loop, which is the
// only writer of the session state. Every transform started by the loop is
// tagged with a sequence number; a completion whose sequence is no longer
// the in-flight one is discarded, so the last selected style always wins.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/dunamismax/styleflow/internal/catalog"
	"github.com/dunamismax/styleflow/internal/domain"
	"github.com/dunamismax/styleflow/internal/id"
	"github.com/dunamismax/styleflow/internal/ingest"
	"github.com/dunamismax/styleflow/internal/transform"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/dunamismax/styleflow/internal/workflow"

type Options struct {
	// SessionID defaults to a fresh id.
	SessionID string
	Logger    *log.Logger
	// Styles defaults to the built-in catalog.
	Styles   StyleFinder
	Observer Observer
	// TransformTimeout bounds a single transform. Zero means no limit.
	TransformTimeout time.Duration
}

type Controller struct {
	sessionID string
	provider  transform.Provider
	styles    StyleFinder
	observer  Observer
	logger    *log.Logger
	timeout   time.Duration
	tracer    trace.Tracer

	ctx       context.Context
	cancel    context.CancelFunc
	requests  chan request
	outcomes  chan outcome
	retire    chan chan bool
	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once

	// owned by the event loop
	state    domain.WorkflowState
	seq      uint64
	inflight *inflight
	retired  bool

	mu          sync.RWMutex
	snapshot    domain.WorkflowState
	subscribers map[int]chan domain.WorkflowState
	nextSubID   int
	closed      bool
}

type request struct {
	cmd   Command
	asset domain.ImageAsset
	reply chan reply
}

type reply struct {
	state domain.WorkflowState
	err   error
}

type inflight struct {
	seq    uint64
	cancel context.CancelFunc
}

type outcome struct {
	seq         uint64
	style       domain.StylePreset
	sourceBytes int64
	startedAt   time.Time
	result      domain.ImageAsset
	err         error
}

func New(provider transform.Provider, opts Options) (*Controller, error) {
	if provider == nil {
		return nil, errors.New("transform provider is required")
	}
	if opts.SessionID == "" {
		opts.SessionID = id.New()
	}
	if opts.Styles == nil {
		opts.Styles = catalog.Default()
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	if opts.TransformTimeout < 0 {
		opts.TransformTimeout = 0
	}

	ctx, cancel := context.WithCancel(context.Background())
	initial := domain.IdleState(opts.SessionID)
	initial.UpdatedAt = time.Now().UTC()

	c := &Controller{
		sessionID:   opts.SessionID,
		provider:    provider,
		styles:      opts.Styles,
		observer:    opts.Observer,
		logger:      opts.Logger,
		timeout:     opts.TransformTimeout,
		tracer:      otel.Tracer(tracerName),
		ctx:         ctx,
		cancel:      cancel,
		requests:    make(chan request),
		outcomes:    make(chan outcome),
		retire:      make(chan chan bool),
		done:        make(chan struct{}),
		stopped:     make(chan struct{}),
		state:       initial,
		snapshot:    initial,
		subscribers: make(map[int]chan domain.WorkflowState),
	}
	go c.run()
	return c, nil
}

func (c *Controller) SessionID() string {
	return c.sessionID
}

// Dispatch applies cmd and returns the resulting snapshot. On a guard or
// ingest failure the returned snapshot is the unchanged current state.
func (c *Controller) Dispatch(ctx context.Context, cmd Command) (domain.WorkflowState, error) {
	req := request{cmd: cmd, reply: make(chan reply, 1)}

	switch cmd := cmd.(type) {
	case UploadImage:
		asset, err := c.ingest(ctx, cmd.File)
		if err != nil {
			return c.Snapshot(), err
		}
		req.asset = asset
	case RemoveImage, SelectStyle:
	case nil:
		return c.Snapshot(), errors.New("nil command")
	default:
		return c.Snapshot(), fmt.Errorf("unsupported command %T", cmd)
	}

	select {
	case c.requests <- req:
	case <-c.done:
		return c.Snapshot(), domain.ErrClosed
	case <-ctx.Done():
		return c.Snapshot(), ctx.Err()
	}

	select {
	case r := <-req.reply:
		return r.state, r.err
	case <-c.stopped:
		return c.Snapshot(), domain.ErrClosed
	case <-ctx.Done():
		return c.Snapshot(), ctx.Err()
	}
}

func (c *Controller) UploadImage(ctx context.Context, file ingest.File) (domain.WorkflowState, error) {
	return c.Dispatch(ctx, UploadImage{File: file})
}

func (c *Controller) RemoveImage(ctx context.Context) (domain.WorkflowState, error) {
	return c.Dispatch(ctx, RemoveImage{})
}

func (c *Controller) SelectStyle(ctx context.Context, styleID string) (domain.WorkflowState, error) {
	return c.Dispatch(ctx, SelectStyle{StyleID: styleID})
}

// Snapshot returns the latest committed state. Image pointers inside the
// snapshot are shared and must be treated as read-only.
func (c *Controller) Snapshot() domain.WorkflowState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot
}

// Subscribe streams snapshots, starting with the current one. Slow readers
// only ever see the most recent state. The channel is closed when the
// returned cancel func is called or the controller closes.
func (c *Controller) Subscribe() (<-chan domain.WorkflowState, func()) {
	ch := make(chan domain.WorkflowState, 1)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		ch <- c.snapshot
		close(ch)
		return ch, func() {}
	}

	subID := c.nextSubID
	c.nextSubID++
	c.subscribers[subID] = ch
	ch <- c.snapshot

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if sub, ok := c.subscribers[subID]; ok {
				delete(c.subscribers, subID)
				close(sub)
			}
		})
	}
}

// Close cancels any in-flight transform and stops the event loop.
func (c *Controller) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		c.cancel()
		<-c.stopped

		c.mu.Lock()
		defer c.mu.Unlock()
		c.closed = true
		for subID, ch := range c.subscribers {
			delete(c.subscribers, subID)
			close(ch)
		}
	})
	return nil
}

// Retire closes the controller unless a transform is in flight. The check
// and the shutdown happen inside the event loop, so no command can start a
// transform in between. It reports whether the controller is now closed.
func (c *Controller) Retire() bool {
	answer := make(chan bool, 1)
	select {
	case c.retire <- answer:
	case <-c.stopped:
		return true
	}
	if !<-answer {
		return false
	}
	_ = c.Close()
	return true
}

// Done is closed once the controller has stopped.
func (c *Controller) Done() <-chan struct{} {
	return c.stopped
}

func (c *Controller) ingest(ctx context.Context, file ingest.File) (domain.ImageAsset, error) {
	ctx, span := c.tracer.Start(ctx, "workflow.ingest", trace.WithAttributes(
		attribute.String("session.id", c.sessionID),
		attribute.String("image.mime_type", file.MimeType),
	))
	defer span.End()

	asset, err := ingest.Ingest(ctx, file)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logf("upload rejected session_id=%s kind=%s err=%v", c.sessionID, domain.KindOf(err), err)
		return domain.ImageAsset{}, err
	}
	span.SetAttributes(attribute.Int64("image.size_bytes", asset.SizeBytes))
	return asset, nil
}

func (c *Controller) run() {
	defer close(c.stopped)
	for {
		select {
		case <-c.done:
			c.cancelInflight()
			return
		case req := <-c.requests:
			if c.retired {
				req.reply <- reply{state: c.state, err: domain.ErrClosed}
				continue
			}
			state, err := c.handle(req)
			req.reply <- reply{state: state, err: err}
		case answer := <-c.retire:
			if c.inflight != nil {
				answer <- false
				continue
			}
			c.retired = true
			answer <- true
		case out := <-c.outcomes:
			c.resolve(out)
		}
	}
}

func (c *Controller) handle(req request) (domain.WorkflowState, error) {
	switch cmd := req.cmd.(type) {
	case UploadImage:
		c.cancelInflight()
		source := req.asset
		c.commit(domain.WorkflowState{
			SessionID:   c.sessionID,
			Status:      domain.StatusAwaitingStyle,
			SourceImage: &source,
		})
		c.logf("image uploaded session_id=%s name=%q size_bytes=%d", c.sessionID, source.Name, source.SizeBytes)
		return c.state, nil

	case RemoveImage:
		if c.state.Status == domain.StatusIdle && c.inflight == nil {
			return c.state, nil
		}
		c.cancelInflight()
		c.commit(domain.IdleState(c.sessionID))
		c.logf("image removed session_id=%s", c.sessionID)
		return c.state, nil

	case SelectStyle:
		if c.state.SourceImage == nil {
			return c.state, domain.ErrNoImage
		}
		style, ok := c.styles.Find(cmd.StyleID)
		if !ok {
			return c.state, fmt.Errorf("%w: %q", domain.ErrUnknownStyle, cmd.StyleID)
		}

		c.cancelInflight()
		c.start(*c.state.SourceImage, style)
		c.commit(domain.WorkflowState{
			SessionID:     c.sessionID,
			Status:        domain.StatusProcessing,
			SourceImage:   c.state.SourceImage,
			SelectedStyle: &style,
		})
		c.logf("transform started session_id=%s style=%s seq=%d", c.sessionID, style.ID, c.seq)
		return c.state, nil
	}
	return c.state, fmt.Errorf("unsupported command %T", req.cmd)
}

func (c *Controller) start(source domain.ImageAsset, style domain.StylePreset) {
	c.seq++
	seq := c.seq

	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if c.timeout > 0 {
		ctx, cancel = context.WithTimeout(c.ctx, c.timeout)
	} else {
		ctx, cancel = context.WithCancel(c.ctx)
	}
	c.inflight = &inflight{seq: seq, cancel: cancel}

	go c.runTransform(ctx, seq, source, style)
}

func (c *Controller) runTransform(ctx context.Context, seq uint64, source domain.ImageAsset, style domain.StylePreset) {
	ctx = transform.ContextWithSession(ctx, c.sessionID)
	ctx, span := c.tracer.Start(ctx, "workflow.transform", trace.WithAttributes(
		attribute.String("session.id", c.sessionID),
		attribute.String("style.id", style.ID),
		attribute.Int64("transform.seq", int64(seq)),
	))
	defer span.End()

	out := outcome{
		seq:         seq,
		style:       style,
		sourceBytes: source.SizeBytes,
		startedAt:   time.Now(),
	}
	out.result, out.err = c.callProvider(ctx, source, style)
	if out.err == nil {
		out.err = transform.CheckResult(out.result)
	}
	if out.err != nil {
		span.RecordError(out.err)
		span.SetStatus(codes.Error, out.err.Error())
	}

	select {
	case c.outcomes <- out:
	case <-c.done:
	}
}

func (c *Controller) callProvider(ctx context.Context, source domain.ImageAsset, style domain.StylePreset) (result domain.ImageAsset, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("provider panic: %v", r)
		}
	}()
	return c.provider.Transform(ctx, source, style)
}

func (c *Controller) resolve(out outcome) {
	record := domain.TransformRecord{
		ID:          id.New(),
		SessionID:   c.sessionID,
		StyleID:     out.style.ID,
		SourceBytes: out.sourceBytes,
		DurationMS:  time.Since(out.startedAt).Milliseconds(),
		CreatedAt:   time.Now().UTC(),
	}

	if c.inflight == nil || out.seq != c.inflight.seq {
		record.Status = domain.RecordStatusCancelled
		record.Error = domain.ErrTransformCancelled.Error()
		c.logf("stale transform discarded session_id=%s style=%s seq=%d", c.sessionID, out.style.ID, out.seq)
		c.observer.TransformFinished(c.ctx, record)
		return
	}

	c.inflight.cancel()
	c.inflight = nil

	next := c.state
	if out.err != nil {
		failure := fmt.Errorf("%w: %s", domain.ErrTransformFailed, describeFailure(out.err))
		next.Status = domain.StatusFailed
		next.ResultImage = nil
		next.Error = &domain.ErrorRecord{
			Kind:       domain.KindTransformFailed,
			Message:    failure.Error(),
			StyleID:    out.style.ID,
			OccurredAt: time.Now().UTC(),
		}
		record.Status = domain.RecordStatusFailed
		record.Error = failure.Error()
		c.logf("transform failed session_id=%s style=%s err=%v", c.sessionID, out.style.ID, out.err)
	} else {
		result := out.result
		next.Status = domain.StatusComplete
		next.ResultImage = &result
		next.Error = nil
		record.Status = domain.RecordStatusSucceeded
		record.ResultBytes = result.SizeBytes
		c.logf("transform complete session_id=%s style=%s duration_ms=%d", c.sessionID, out.style.ID, record.DurationMS)
	}

	c.observer.TransformFinished(c.ctx, record)
	c.commit(next)
}

func describeFailure(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "transform timed out"
	}
	return err.Error()
}

func (c *Controller) cancelInflight() {
	if c.inflight == nil {
		return
	}
	c.inflight.cancel()
	c.inflight = nil
}

func (c *Controller) commit(next domain.WorkflowState) {
	prev := c.state
	next.SessionID = c.sessionID
	next.Revision = prev.Revision + 1
	next.UpdatedAt = time.Now().UTC()
	c.state = next

	c.mu.Lock()
	c.snapshot = next
	for _, ch := range c.subscribers {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- next:
		default:
		}
	}
	c.mu.Unlock()

	c.observer.StateChanged(c.ctx, prev, next)
}

func (c *Controller) logf(format string, args ...any) {
	if c.logger != nil {
		c.logger.Printf(format, args...)
	}
}
