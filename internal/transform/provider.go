// Package transform defines the pluggable style transfer backends.
//
// A Provider is called synchronously with a context; callers that need the
// call to be asynchronous run it on their own goroutine. Implementations
// must return exactly once, must not modify the input asset, and must stop
// promptly with ctx.Err() once the context is cancelled.
package transform

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dunamismax/styleflow/internal/domain"
	"github.com/dunamismax/styleflow/internal/id"
)

const DefaultLatency = 3000 * time.Millisecond

type Provider interface {
	Transform(ctx context.Context, img domain.ImageAsset, style domain.StylePreset) (domain.ImageAsset, error)
}

// Func adapts a plain function to Provider.
type Func func(ctx context.Context, img domain.ImageAsset, style domain.StylePreset) (domain.ImageAsset, error)

func (f Func) Transform(ctx context.Context, img domain.ImageAsset, style domain.StylePreset) (domain.ImageAsset, error) {
	return f(ctx, img, style)
}

// CheckResult verifies that a provider produced a usable asset.
func CheckResult(out domain.ImageAsset) error {
	if len(out.Data) == 0 {
		return errors.New("provider returned an empty image")
	}
	if !domain.SupportedMimeType(out.MimeType) {
		return fmt.Errorf("provider returned unsupported mime type %q", out.MimeType)
	}
	if int64(len(out.Data)) > domain.MaxImageBytes {
		return fmt.Errorf("provider returned %d bytes, above the %d byte limit", len(out.Data), domain.MaxImageBytes)
	}
	return nil
}

// newResult builds the output asset for a styled payload.
func newResult(src domain.ImageAsset, style domain.StylePreset, data []byte, mimeType string, width, height int) domain.ImageAsset {
	return domain.ImageAsset{
		ID:        id.New(),
		Name:      resultName(src, style),
		MimeType:  mimeType,
		Data:      data,
		SizeBytes: int64(len(data)),
		Width:     width,
		Height:    height,
		CreatedAt: time.Now().UTC(),
	}
}

func resultName(src domain.ImageAsset, style domain.StylePreset) string {
	if src.Name == "" {
		return style.ID
	}
	return style.ID + "-" + src.Name
}
