package workflow

import (
	"context"

	"github.com/dunamismax/styleflow/internal/domain"
	"github.com/dunamismax/styleflow/internal/ingest"
)

// Command is a user intent accepted by Controller.Dispatch.
type Command interface {
	commandName() string
}

// UploadImage replaces the session's source image. The file is validated
// before the state is touched.
type UploadImage struct {
	File ingest.File
}

// RemoveImage returns the session to idle from any state.
type RemoveImage struct{}

// SelectStyle starts a transform of the current source image.
type SelectStyle struct {
	StyleID string
}

func (UploadImage) commandName() string { return "upload_image" }
func (RemoveImage) commandName() string { return "remove_image" }
func (SelectStyle) commandName() string { return "select_style" }

// Observer is notified from the controller's event loop. Implementations
// must not block.
type Observer interface {
	StateChanged(ctx context.Context, prev, next domain.WorkflowState)
	TransformFinished(ctx context.Context, record domain.TransformRecord)
}

// StyleFinder resolves style ids. *catalog.Catalog satisfies it.
type StyleFinder interface {
	Find(id string) (domain.StylePreset, bool)
}

type nopObserver struct{}

func (nopObserver) StateChanged(context.Context, domain.WorkflowState, domain.WorkflowState) {}
func (nopObserver) TransformFinished(context.Context, domain.TransformRecord)                {}
