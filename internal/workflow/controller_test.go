package workflow

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dunamismax/styleflow/internal/domain"
	"github.com/dunamismax/styleflow/internal/ingest"
	"github.com/dunamismax/styleflow/internal/transform"
)

func TestUploadSelectComplete(t *testing.T) {
	obs := &recordingObserver{t: t}
	c := newTestController(t, transform.NewDelayProvider(20*time.Millisecond), obs)

	state, err := c.UploadImage(context.Background(), pngFile(t, 32, 24, 0))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if state.Status != domain.StatusAwaitingStyle || state.SourceImage == nil {
		t.Fatalf("expected awaiting_style with source, got %+v", state)
	}
	if state.SourceImage.Width != 32 || state.SourceImage.Height != 24 {
		t.Fatalf("unexpected dimensions %dx%d", state.SourceImage.Width, state.SourceImage.Height)
	}

	state, err = c.SelectStyle(context.Background(), "van-gogh")
	if err != nil {
		t.Fatalf("select style: %v", err)
	}
	if state.Status != domain.StatusProcessing || state.SelectedStyle.ID != "van-gogh" {
		t.Fatalf("expected processing van-gogh, got %+v", state)
	}

	final := waitForStatus(t, c, domain.StatusComplete)
	if final.ResultImage == nil {
		t.Fatal("expected result image")
	}
	if !bytes.Equal(final.ResultImage.Data, final.SourceImage.Data) {
		t.Fatal("expected delay provider result to equal source bytes")
	}
	if final.ResultImage.ID == final.SourceImage.ID {
		t.Fatal("expected result to be a distinct asset")
	}

	records := obs.recordsSnapshot()
	if len(records) != 1 || records[0].Status != domain.RecordStatusSucceeded {
		t.Fatalf("expected one succeeded record, got %+v", records)
	}
}

func TestLargePNGThenVanGogh(t *testing.T) {
	c := newTestController(t, transform.NewDelayProvider(10*time.Millisecond), nil)

	file := pngFile(t, 64, 64, 2*1024*1024)
	if _, err := c.UploadImage(context.Background(), file); err != nil {
		t.Fatalf("upload 2MB png: %v", err)
	}
	if _, err := c.SelectStyle(context.Background(), "van-gogh"); err != nil {
		t.Fatalf("select style: %v", err)
	}

	final := waitForStatus(t, c, domain.StatusComplete)
	if final.SourceImage.SizeBytes != 2*1024*1024 {
		t.Fatalf("expected 2MB source, got %d", final.SourceImage.SizeBytes)
	}
	if final.SelectedStyle.Name != "Van Gogh" {
		t.Fatalf("expected Van Gogh, got %q", final.SelectedStyle.Name)
	}
}

func TestUploadRejectionsLeaveStateUnchanged(t *testing.T) {
	c := newTestController(t, transform.NewDelayProvider(time.Millisecond), nil)
	before := c.Snapshot()

	_, err := c.UploadImage(context.Background(), ingest.File{
		Name:     "photo.jpg",
		MimeType: "image/jpeg",
		Size:     11 * 1024 * 1024,
		Body:     strings.NewReader("never read"),
	})
	if !errors.Is(err, domain.ErrFileTooLarge) {
		t.Fatalf("expected ErrFileTooLarge, got %v", err)
	}

	state, err := c.UploadImage(context.Background(), ingest.File{
		Name:     "anim.gif",
		MimeType: "image/gif",
		Size:     10,
		Body:     strings.NewReader("GIF89a...."),
	})
	if !errors.Is(err, domain.ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
	if state.Revision != before.Revision || state.Status != domain.StatusIdle {
		t.Fatalf("expected unchanged idle state, got %+v", state)
	}
}

func TestRejectedUploadKeepsExistingImage(t *testing.T) {
	c := newTestController(t, transform.NewDelayProvider(time.Millisecond), nil)
	uploaded, err := c.UploadImage(context.Background(), pngFile(t, 8, 8, 0))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}

	state, err := c.UploadImage(context.Background(), ingest.FromBytes("x.png", "image/png", []byte("not a png")))
	if !errors.Is(err, domain.ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
	if state.SourceImage == nil || state.SourceImage.ID != uploaded.SourceImage.ID {
		t.Fatal("expected previous source image to remain")
	}
}

func TestSelectStyleGuards(t *testing.T) {
	c := newTestController(t, transform.NewDelayProvider(time.Millisecond), nil)

	state, err := c.SelectStyle(context.Background(), "van-gogh")
	if !errors.Is(err, domain.ErrNoImage) {
		t.Fatalf("expected ErrNoImage, got %v", err)
	}
	if state.Status != domain.StatusIdle {
		t.Fatalf("expected idle, got %s", state.Status)
	}

	if _, err := c.UploadImage(context.Background(), pngFile(t, 8, 8, 0)); err != nil {
		t.Fatalf("upload: %v", err)
	}
	before := c.Snapshot()
	state, err = c.SelectStyle(context.Background(), "cubism-deluxe")
	if !errors.Is(err, domain.ErrUnknownStyle) {
		t.Fatalf("expected ErrUnknownStyle, got %v", err)
	}
	if state.Revision != before.Revision || state.Status != domain.StatusAwaitingStyle {
		t.Fatalf("expected unchanged state, got %+v", state)
	}
}

func TestLatestSelectionWins(t *testing.T) {
	delays := map[string]time.Duration{
		"van-gogh": 100 * time.Millisecond,
		"monet":    10 * time.Millisecond,
	}
	// Ignores cancellation so the stale result really arrives.
	provider := transform.Func(func(_ context.Context, img domain.ImageAsset, style domain.StylePreset) (domain.ImageAsset, error) {
		time.Sleep(delays[style.ID])
		out := img.Clone()
		out.ID = "result-" + style.ID
		return out, nil
	})

	obs := &recordingObserver{t: t}
	c := newTestController(t, provider, obs)
	if _, err := c.UploadImage(context.Background(), pngFile(t, 8, 8, 0)); err != nil {
		t.Fatalf("upload: %v", err)
	}
	if _, err := c.SelectStyle(context.Background(), "van-gogh"); err != nil {
		t.Fatalf("select van-gogh: %v", err)
	}
	if _, err := c.SelectStyle(context.Background(), "monet"); err != nil {
		t.Fatalf("select monet: %v", err)
	}

	final := waitForStatus(t, c, domain.StatusComplete)
	if final.ResultImage.ID != "result-monet" || final.SelectedStyle.ID != "monet" {
		t.Fatalf("expected monet result, got style=%s result=%s", final.SelectedStyle.ID, final.ResultImage.ID)
	}

	waitFor(t, func() bool { return len(obs.recordsSnapshot()) == 2 })
	after := c.Snapshot()
	if after.Revision != final.Revision || after.ResultImage.ID != "result-monet" {
		t.Fatalf("stale result changed state: %+v", after)
	}

	var cancelled int
	for _, rec := range obs.recordsSnapshot() {
		if rec.Status == domain.RecordStatusCancelled {
			cancelled++
			if rec.StyleID != "van-gogh" {
				t.Fatalf("expected van-gogh to be cancelled, got %s", rec.StyleID)
			}
		}
	}
	if cancelled != 1 {
		t.Fatalf("expected one cancelled record, got %d", cancelled)
	}
}

func TestSupersededTransformIsCancelled(t *testing.T) {
	var cancelled atomic.Int32
	provider := transform.Func(func(ctx context.Context, img domain.ImageAsset, style domain.StylePreset) (domain.ImageAsset, error) {
		if style.ID == "picasso" {
			<-ctx.Done()
			cancelled.Add(1)
			return domain.ImageAsset{}, ctx.Err()
		}
		return img.Clone(), nil
	})

	c := newTestController(t, provider, nil)
	if _, err := c.UploadImage(context.Background(), pngFile(t, 8, 8, 0)); err != nil {
		t.Fatalf("upload: %v", err)
	}
	if _, err := c.SelectStyle(context.Background(), "picasso"); err != nil {
		t.Fatalf("select picasso: %v", err)
	}
	if _, err := c.SelectStyle(context.Background(), "hokusai"); err != nil {
		t.Fatalf("select hokusai: %v", err)
	}

	final := waitForStatus(t, c, domain.StatusComplete)
	if final.SelectedStyle.ID != "hokusai" {
		t.Fatalf("expected hokusai, got %s", final.SelectedStyle.ID)
	}
	waitFor(t, func() bool { return cancelled.Load() == 1 })
}

func TestRemoveImageDuringProcessing(t *testing.T) {
	obs := &recordingObserver{t: t}
	c := newTestController(t, transform.NewDelayProvider(50*time.Millisecond), obs)
	if _, err := c.UploadImage(context.Background(), pngFile(t, 8, 8, 0)); err != nil {
		t.Fatalf("upload: %v", err)
	}
	if _, err := c.SelectStyle(context.Background(), "monet"); err != nil {
		t.Fatalf("select: %v", err)
	}

	state, err := c.RemoveImage(context.Background())
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if state.Status != domain.StatusIdle || state.SourceImage != nil || state.SelectedStyle != nil {
		t.Fatalf("expected clean idle state, got %+v", state)
	}

	waitFor(t, func() bool { return len(obs.recordsSnapshot()) == 1 })
	if got := c.Snapshot(); got.Status != domain.StatusIdle || got.Revision != state.Revision {
		t.Fatalf("late transform changed idle state: %+v", got)
	}
	if rec := obs.recordsSnapshot()[0]; rec.Status != domain.RecordStatusCancelled {
		t.Fatalf("expected cancelled record, got %s", rec.Status)
	}
}

func TestRemoveImageFromEveryState(t *testing.T) {
	c := newTestController(t, transform.NewDelayProvider(time.Millisecond), nil)

	state, err := c.RemoveImage(context.Background())
	if err != nil || state.Status != domain.StatusIdle {
		t.Fatalf("remove from idle: state=%s err=%v", state.Status, err)
	}

	if _, err := c.UploadImage(context.Background(), pngFile(t, 8, 8, 0)); err != nil {
		t.Fatalf("upload: %v", err)
	}
	if state, _ := c.RemoveImage(context.Background()); state.Status != domain.StatusIdle {
		t.Fatalf("remove from awaiting_style: %s", state.Status)
	}

	if _, err := c.UploadImage(context.Background(), pngFile(t, 8, 8, 0)); err != nil {
		t.Fatalf("upload: %v", err)
	}
	if _, err := c.SelectStyle(context.Background(), "abstract"); err != nil {
		t.Fatalf("select: %v", err)
	}
	waitForStatus(t, c, domain.StatusComplete)
	if state, _ := c.RemoveImage(context.Background()); state.Status != domain.StatusIdle || state.ResultImage != nil {
		t.Fatalf("remove from complete: %+v", state)
	}
}

func TestUploadAfterCompleteResetsWorkflow(t *testing.T) {
	c := newTestController(t, transform.NewDelayProvider(time.Millisecond), nil)
	if _, err := c.UploadImage(context.Background(), pngFile(t, 8, 8, 0)); err != nil {
		t.Fatalf("upload: %v", err)
	}
	if _, err := c.SelectStyle(context.Background(), "kandinsky"); err != nil {
		t.Fatalf("select: %v", err)
	}
	waitForStatus(t, c, domain.StatusComplete)

	state, err := c.UploadImage(context.Background(), pngFile(t, 12, 12, 0))
	if err != nil {
		t.Fatalf("second upload: %v", err)
	}
	if state.Status != domain.StatusAwaitingStyle || state.SelectedStyle != nil || state.ResultImage != nil {
		t.Fatalf("expected reset to awaiting_style, got %+v", state)
	}
	if state.SourceImage.Width != 12 {
		t.Fatalf("expected new source, got width %d", state.SourceImage.Width)
	}
}

func TestRemoveThenReuploadSameImage(t *testing.T) {
	c := newTestController(t, transform.NewFilterProvider(), nil)
	ctx := context.Background()

	x, err := io.ReadAll(pngFile(t, 10, 6, 0).Body)
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	if _, err := c.UploadImage(ctx, ingest.FromBytes("x.png", "image/png", x)); err != nil {
		t.Fatalf("upload: %v", err)
	}
	if _, err := c.SelectStyle(ctx, "hokusai"); err != nil {
		t.Fatalf("select: %v", err)
	}
	waitForStatus(t, c, domain.StatusComplete)

	if state, err := c.RemoveImage(ctx); err != nil || state.Status != domain.StatusIdle {
		t.Fatalf("remove: state=%+v err=%v", state, err)
	}

	state, err := c.UploadImage(ctx, ingest.FromBytes("x.png", "image/png", x))
	if err != nil {
		t.Fatalf("reupload: %v", err)
	}
	if state.Status != domain.StatusAwaitingStyle {
		t.Fatalf("expected awaiting_style, got %s", state.Status)
	}
	if state.SelectedStyle != nil || state.ResultImage != nil || state.Error != nil {
		t.Fatalf("expected no leftovers from the previous run, got %+v", state)
	}
	if !bytes.Equal(state.SourceImage.Data, x) || state.SourceImage.Name != "x.png" {
		t.Fatalf("expected source to be the reuploaded image")
	}
	if err := state.Validate(); err != nil {
		t.Fatalf("invalid state: %v", err)
	}
}

func TestFailureThenRetry(t *testing.T) {
	var calls atomic.Int32
	provider := transform.Func(func(_ context.Context, img domain.ImageAsset, _ domain.StylePreset) (domain.ImageAsset, error) {
		if calls.Add(1) == 1 {
			return domain.ImageAsset{}, errors.New("gpu on fire")
		}
		return img.Clone(), nil
	})

	c := newTestController(t, provider, nil)
	if _, err := c.UploadImage(context.Background(), pngFile(t, 8, 8, 0)); err != nil {
		t.Fatalf("upload: %v", err)
	}
	if _, err := c.SelectStyle(context.Background(), "monet"); err != nil {
		t.Fatalf("select: %v", err)
	}

	failed := waitForStatus(t, c, domain.StatusFailed)
	if failed.Error == nil || failed.Error.Kind != domain.KindTransformFailed {
		t.Fatalf("expected transform_failed record, got %+v", failed.Error)
	}
	if !strings.Contains(failed.Error.Message, "gpu on fire") || failed.Error.StyleID != "monet" {
		t.Fatalf("unexpected error record %+v", failed.Error)
	}
	if failed.SourceImage == nil || failed.SelectedStyle == nil {
		t.Fatal("expected source and style to survive failure")
	}

	if _, err := c.SelectStyle(context.Background(), "monet"); err != nil {
		t.Fatalf("retry: %v", err)
	}
	done := waitForStatus(t, c, domain.StatusComplete)
	if done.Error != nil {
		t.Fatal("expected error to be cleared on success")
	}
}

func TestTransformTimeoutFails(t *testing.T) {
	c, err := New(transform.NewDelayProvider(time.Second), Options{
		Logger:           log.New(io.Discard, "", 0),
		TransformTimeout: 20 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("new controller: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })

	if _, err := c.UploadImage(context.Background(), pngFile(t, 8, 8, 0)); err != nil {
		t.Fatalf("upload: %v", err)
	}
	if _, err := c.SelectStyle(context.Background(), "hokusai"); err != nil {
		t.Fatalf("select: %v", err)
	}
	failed := waitForStatus(t, c, domain.StatusFailed)
	if !strings.Contains(failed.Error.Message, "timed out") {
		t.Fatalf("expected timeout message, got %q", failed.Error.Message)
	}
}

func TestInvalidProviderResultFails(t *testing.T) {
	provider := transform.Func(func(context.Context, domain.ImageAsset, domain.StylePreset) (domain.ImageAsset, error) {
		return domain.ImageAsset{MimeType: "image/webp", Data: []byte{1}}, nil
	})
	c := newTestController(t, provider, nil)
	if _, err := c.UploadImage(context.Background(), pngFile(t, 8, 8, 0)); err != nil {
		t.Fatalf("upload: %v", err)
	}
	if _, err := c.SelectStyle(context.Background(), "picasso"); err != nil {
		t.Fatalf("select: %v", err)
	}
	waitForStatus(t, c, domain.StatusFailed)
}

func TestProviderPanicFails(t *testing.T) {
	provider := transform.Func(func(context.Context, domain.ImageAsset, domain.StylePreset) (domain.ImageAsset, error) {
		panic("boom")
	})
	c := newTestController(t, provider, nil)
	if _, err := c.UploadImage(context.Background(), pngFile(t, 8, 8, 0)); err != nil {
		t.Fatalf("upload: %v", err)
	}
	if _, err := c.SelectStyle(context.Background(), "picasso"); err != nil {
		t.Fatalf("select: %v", err)
	}
	failed := waitForStatus(t, c, domain.StatusFailed)
	if !strings.Contains(failed.Error.Message, "boom") {
		t.Fatalf("expected panic message in error, got %q", failed.Error.Message)
	}
}

func TestRevisionIncreasesMonotonically(t *testing.T) {
	c := newTestController(t, transform.NewDelayProvider(time.Millisecond), nil)
	updates, cancel := c.Subscribe()
	defer cancel()

	if _, err := c.UploadImage(context.Background(), pngFile(t, 8, 8, 0)); err != nil {
		t.Fatalf("upload: %v", err)
	}
	if _, err := c.SelectStyle(context.Background(), "monet"); err != nil {
		t.Fatalf("select: %v", err)
	}

	var last uint64
	timeout := time.After(2 * time.Second)
	for {
		select {
		case state := <-updates:
			if state.Revision < last {
				t.Fatalf("revision went backwards: %d after %d", state.Revision, last)
			}
			last = state.Revision
			if state.Status == domain.StatusComplete {
				return
			}
		case <-timeout:
			t.Fatal("timed out waiting for completion")
		}
	}
}

func TestCloseStopsController(t *testing.T) {
	c := newTestController(t, transform.NewDelayProvider(time.Second), nil)
	updates, _ := c.Subscribe()

	if _, err := c.UploadImage(context.Background(), pngFile(t, 8, 8, 0)); err != nil {
		t.Fatalf("upload: %v", err)
	}
	if _, err := c.SelectStyle(context.Background(), "monet"); err != nil {
		t.Fatalf("select: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if _, err := c.SelectStyle(context.Background(), "monet"); !errors.Is(err, domain.ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	for range updates {
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestRetireRefusesWhileProcessing(t *testing.T) {
	c := newTestController(t, transform.NewDelayProvider(time.Second), nil)
	ctx := context.Background()

	idle := newTestController(t, transform.NewDelayProvider(time.Millisecond), nil)
	if !idle.Retire() {
		t.Fatal("expected idle controller to retire")
	}
	if _, err := idle.UploadImage(ctx, pngFile(t, 4, 4, 0)); !errors.Is(err, domain.ErrClosed) {
		t.Fatalf("expected retired controller to refuse uploads, got %v", err)
	}

	if _, err := c.UploadImage(ctx, pngFile(t, 8, 8, 0)); err != nil {
		t.Fatalf("upload: %v", err)
	}
	if _, err := c.SelectStyle(ctx, "picasso"); err != nil {
		t.Fatalf("select: %v", err)
	}
	if c.Retire() {
		t.Fatal("expected controller with a transform in flight to stay open")
	}
	if _, err := c.RemoveImage(ctx); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if !c.Retire() {
		t.Fatal("expected controller to retire once the transform was cancelled")
	}
	select {
	case <-c.Done():
	case <-time.After(time.Second):
		t.Fatal("expected retired controller to stop")
	}
}

func TestConcurrentDispatch(t *testing.T) {
	c := newTestController(t, transform.NewDelayProvider(time.Millisecond), &recordingObserver{t: t})
	if _, err := c.UploadImage(context.Background(), pngFile(t, 8, 8, 0)); err != nil {
		t.Fatalf("upload: %v", err)
	}

	styles := []string{"van-gogh", "picasso", "monet", "abstract", "kandinsky", "hokusai"}
	var wg sync.WaitGroup
	for i := 0; i < 24; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = c.SelectStyle(context.Background(), styles[i%len(styles)])
		}(i)
	}
	wg.Wait()

	final := waitForStatus(t, c, domain.StatusComplete)
	if err := final.Validate(); err != nil {
		t.Fatalf("invalid final state: %v", err)
	}
}

type recordingObserver struct {
	t       *testing.T
	mu      sync.Mutex
	records []domain.TransformRecord
}

func (o *recordingObserver) StateChanged(_ context.Context, _, next domain.WorkflowState) {
	if err := next.Validate(); err != nil {
		o.t.Errorf("invalid state committed: %v (%+v)", err, next)
	}
}

func (o *recordingObserver) TransformFinished(_ context.Context, record domain.TransformRecord) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.records = append(o.records, record)
}

func (o *recordingObserver) recordsSnapshot() []domain.TransformRecord {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]domain.TransformRecord(nil), o.records...)
}

func newTestController(t *testing.T, provider transform.Provider, obs Observer) *Controller {
	t.Helper()

	c, err := New(provider, Options{
		SessionID: "session-test",
		Logger:    log.New(io.Discard, "", 0),
		Observer:  obs,
	})
	if err != nil {
		t.Fatalf("new controller: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func waitForStatus(t *testing.T, c *Controller, status domain.Status) domain.WorkflowState {
	t.Helper()

	updates, cancel := c.Subscribe()
	defer cancel()

	timeout := time.After(3 * time.Second)
	for {
		select {
		case state, ok := <-updates:
			if !ok {
				t.Fatalf("controller closed while waiting for %s", status)
			}
			if state.Status == status {
				return state
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s, last state %s", status, c.Snapshot().Status)
		}
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

// pngFile builds an upload; padTo > 0 appends zero bytes after IEND until
// the payload reaches that size.
func pngFile(t *testing.T, w, h, padTo int) ingest.File {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 7), G: uint8(y * 5), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	if padTo > buf.Len() {
		buf.Write(make([]byte, padTo-buf.Len()))
	}
	return ingest.FromBytes("photo.png", "image/png", buf.Bytes())
}
