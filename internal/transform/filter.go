package transform

import (
	"context"
	"fmt"

	"github.com/dunamismax/styleflow/internal/domain"
)

// FilterProvider stylizes images locally with a per-style colour treatment.
// It is not neural style transfer; it gives the workflow a visible,
// deterministic result without any external service.
type FilterProvider struct {
	renderer renderer
}

func NewFilterProvider() *FilterProvider {
	return &FilterProvider{renderer: newRenderer()}
}

func (p *FilterProvider) Transform(ctx context.Context, img domain.ImageAsset, style domain.StylePreset) (domain.ImageAsset, error) {
	data, format, width, height, err := p.renderer.Render(ctx, img.Data, style)
	if err != nil {
		return domain.ImageAsset{}, fmt.Errorf("render style=%s: %w", style.ID, err)
	}
	return newResult(img, style, data, formatToMimeType(format), width, height), nil
}
