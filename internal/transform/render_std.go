package transform

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"

	"github.com/dunamismax/styleflow/internal/domain"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

type stdlibRenderer struct{}

func (stdlibRenderer) Render(ctx context.Context, input []byte, style domain.StylePreset) ([]byte, string, int, int, error) {
	select {
	case <-ctx.Done():
		return nil, "", 0, 0, ctx.Err()
	default:
	}

	src, format, err := image.Decode(bytes.NewReader(input))
	if err != nil {
		return nil, "", 0, 0, fmt.Errorf("decode source image: %w", err)
	}
	if format != "jpeg" && format != "png" {
		return nil, "", 0, 0, fmt.Errorf("%w: %s", domain.ErrUnsupportedFormat, format)
	}

	t := treatmentFor(style)
	dst := toNRGBA(src)
	if t.soften > 1 {
		dst = soften(dst, t.soften)
	}

	bounds := dst.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		if y%64 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, "", 0, 0, err
			}
		}
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			dst.SetNRGBA(x, y, t.grade(dst.NRGBAAt(x, y)))
		}
	}

	stampText(dst, style.Name, 0.7)

	out, err := encodeImage(dst, format, 90)
	if err != nil {
		return nil, "", 0, 0, err
	}
	return out, format, bounds.Dx(), bounds.Dy(), nil
}

func toNRGBA(src image.Image) *image.NRGBA {
	dst := image.NewNRGBA(image.Rect(0, 0, src.Bounds().Dx(), src.Bounds().Dy()))
	draw.Draw(dst, dst.Bounds(), src, src.Bounds().Min, draw.Src)
	return dst
}

// soften blurs by resampling through an image factor times smaller.
func soften(src *image.NRGBA, factor int) *image.NRGBA {
	b := src.Bounds()
	w, h := b.Dx()/factor, b.Dy()/factor
	if w < 1 || h < 1 {
		return src
	}

	small := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(small, small.Bounds(), src, b, draw.Src, nil)

	out := image.NewNRGBA(b)
	draw.CatmullRom.Scale(out, b, small, small.Bounds(), draw.Src, nil)
	return out
}

// stampText writes text in the bottom-right corner when the image is wide
// enough to hold it.
func stampText(dst *image.NRGBA, text string, opacity float64) {
	if text == "" {
		return
	}

	const pad = 12

	face := basicfont.Face7x13
	drawer := &font.Drawer{Dst: dst, Face: face}
	width := drawer.MeasureString(text).Ceil()
	bounds := dst.Bounds()
	if bounds.Dx() < width+2*pad || bounds.Dy() < face.Metrics().Height.Ceil()+2*pad {
		return
	}

	x := bounds.Max.X - width - pad
	baseline := bounds.Max.Y - pad
	alpha := uint8(opacity * 255)

	drawer.Src = image.NewUniform(color.NRGBA{A: alpha / 2})
	drawer.Dot = fixed.P(x+1, baseline+1)
	drawer.DrawString(text)

	drawer.Src = image.NewUniform(color.NRGBA{R: 255, G: 255, B: 255, A: alpha})
	drawer.Dot = fixed.P(x, baseline)
	drawer.DrawString(text)
}

func encodeImage(img image.Image, format string, quality int) ([]byte, error) {
	var buf bytes.Buffer

	switch format {
	case "jpeg":
		if quality <= 0 || quality > 100 {
			quality = 80
		}
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return nil, fmt.Errorf("encode jpeg: %w", err)
		}
	case "png":
		encoder := png.Encoder{CompressionLevel: png.DefaultCompression}
		if err := encoder.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("encode png: %w", err)
		}
	default:
		return nil, errors.New("unsupported output format: " + format)
	}

	return buf.Bytes(), nil
}
