package export

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"

	"github.com/dunamismax/styleflow/internal/domain"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	compareGap    = 16
	compareHeader = 28
	maxPaneHeight = 1024
)

var (
	compareBackground = color.NRGBA{R: 17, G: 24, B: 39, A: 255}
	compareLabel      = color.NRGBA{R: 229, G: 231, B: 235, A: 255}
)

// Compare renders source and result next to each other, labelled
// "Original" and "<Name> Style". Both panes are scaled to a common height.
func Compare(source, result domain.ImageAsset, style *domain.StylePreset) ([]byte, error) {
	left, _, err := image.Decode(bytes.NewReader(source.Data))
	if err != nil {
		return nil, fmt.Errorf("decode source: %w", err)
	}
	right, _, err := image.Decode(bytes.NewReader(result.Data))
	if err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}

	paneHeight := min(left.Bounds().Dy(), maxPaneHeight)
	leftWidth := scaledWidth(left.Bounds(), paneHeight)
	rightWidth := scaledWidth(right.Bounds(), paneHeight)

	canvas := image.NewNRGBA(image.Rect(0, 0, leftWidth+rightWidth+3*compareGap, paneHeight+compareHeader+compareGap))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(compareBackground), image.Point{}, draw.Src)

	leftRect := image.Rect(compareGap, compareHeader, compareGap+leftWidth, compareHeader+paneHeight)
	rightRect := image.Rect(leftRect.Max.X+compareGap, compareHeader, leftRect.Max.X+compareGap+rightWidth, compareHeader+paneHeight)
	draw.CatmullRom.Scale(canvas, leftRect, left, left.Bounds(), draw.Over, nil)
	draw.CatmullRom.Scale(canvas, rightRect, right, right.Bounds(), draw.Over, nil)

	drawLabel(canvas, "Original", leftRect.Min.X)
	drawLabel(canvas, resultLabel(style), rightRect.Min.X)

	var buf bytes.Buffer
	if err := png.Encode(&buf, canvas); err != nil {
		return nil, fmt.Errorf("encode comparison: %w", err)
	}
	return buf.Bytes(), nil
}

func resultLabel(style *domain.StylePreset) string {
	if style == nil || style.Name == "" {
		return "Styled"
	}
	return style.Name + " Style"
}

func scaledWidth(b image.Rectangle, height int) int {
	if b.Dy() == 0 {
		return 1
	}
	return max(1, b.Dx()*height/b.Dy())
}

func drawLabel(dst *image.NRGBA, text string, x int) {
	drawer := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(compareLabel),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, compareHeader-9),
	}
	drawer.DrawString(text)
}
