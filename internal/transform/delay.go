package transform

import (
	"context"
	"time"

	"github.com/dunamismax/styleflow/internal/domain"
)

// DelayProvider is the reference stub: it waits Latency and then returns an
// unmodified copy of the input.
type DelayProvider struct {
	Latency time.Duration
}

func NewDelayProvider(latency time.Duration) DelayProvider {
	if latency < 0 {
		latency = 0
	}
	return DelayProvider{Latency: latency}
}

func (p DelayProvider) Transform(ctx context.Context, img domain.ImageAsset, style domain.StylePreset) (domain.ImageAsset, error) {
	timer := time.NewTimer(p.Latency)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return domain.ImageAsset{}, ctx.Err()
	case <-timer.C:
	}

	out := img.Clone()
	return newResult(img, style, out.Data, out.MimeType, out.Width, out.Height), nil
}
