package transform

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"
	"time"

	"github.com/dunamismax/styleflow/internal/domain"
)

func TestDelayProviderReturnsCopyAfterLatency(t *testing.T) {
	src := testAsset(t, 16, 16)
	p := NewDelayProvider(20 * time.Millisecond)

	start := time.Now()
	out, err := p.Transform(context.Background(), src, domain.StylePreset{ID: "monet", Name: "Monet"})
	if err != nil {
		t.Fatalf("transform: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Fatalf("expected to wait at least 20ms, waited %s", elapsed)
	}
	if !bytes.Equal(out.Data, src.Data) {
		t.Fatal("expected stub output to equal input bytes")
	}
	if out.ID == src.ID {
		t.Fatal("expected a new asset id")
	}

	out.Data[0] ^= 0xff
	if out.Data[0] == src.Data[0] {
		t.Fatal("stub output shares its buffer with the input")
	}
	if err := CheckResult(out); err != nil {
		t.Fatalf("stub output failed result check: %v", err)
	}
}

func TestDelayProviderCancellation(t *testing.T) {
	p := NewDelayProvider(time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := p.Transform(ctx, testAsset(t, 4, 4), domain.StylePreset{ID: "monet"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestFilterProviderStylizesEveryPreset(t *testing.T) {
	src := testAsset(t, 240, 120)
	original := bytes.Clone(src.Data)
	p := NewFilterProvider()

	for _, id := range []string{"van-gogh", "picasso", "monet", "abstract", "kandinsky", "hokusai", "custom"} {
		out, err := p.Transform(context.Background(), src, domain.StylePreset{ID: id, Name: id})
		if err != nil {
			t.Fatalf("%s: transform: %v", id, err)
		}
		if out.MimeType != domain.MimeTypePNG {
			t.Fatalf("%s: expected png output, got %s", id, out.MimeType)
		}
		if out.Width != 240 || out.Height != 120 {
			t.Fatalf("%s: expected 240x120, got %dx%d", id, out.Width, out.Height)
		}
		if bytes.Equal(out.Data, src.Data) {
			t.Fatalf("%s: expected output to differ from source", id)
		}
		if _, _, err := image.Decode(bytes.NewReader(out.Data)); err != nil {
			t.Fatalf("%s: output does not decode: %v", id, err)
		}
	}

	if !bytes.Equal(src.Data, original) {
		t.Fatal("filter provider modified its input")
	}
}

func TestFilterProviderKeepsJPEG(t *testing.T) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, gradient(64, 64), &jpeg.Options{Quality: 85}); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	src := domain.ImageAsset{ID: "src", MimeType: domain.MimeTypeJPEG, Data: buf.Bytes()}

	out, err := NewFilterProvider().Transform(context.Background(), src, domain.StylePreset{ID: "hokusai", Name: "Hokusai"})
	if err != nil {
		t.Fatalf("transform: %v", err)
	}
	if out.MimeType != domain.MimeTypeJPEG {
		t.Fatalf("expected jpeg output, got %s", out.MimeType)
	}
}

func TestTreatmentGradeClampsAndPosterizes(t *testing.T) {
	tr := treatment{contrast: 3, levels: 2}
	got := tr.grade(color.NRGBA{R: 250, G: 10, B: 128, A: 200})
	if got.R != 255 || got.G != 0 {
		t.Fatalf("expected clamped extremes, got %+v", got)
	}
	if got.B != 0 && got.B != 255 {
		t.Fatalf("expected two-level posterize, got %d", got.B)
	}
	if got.A != 200 {
		t.Fatalf("alpha must be preserved, got %d", got.A)
	}
}

func TestCheckResult(t *testing.T) {
	if err := CheckResult(domain.ImageAsset{}); err == nil {
		t.Fatal("expected error for empty result")
	}
	if err := CheckResult(domain.ImageAsset{MimeType: "image/gif", Data: []byte{1}}); err == nil {
		t.Fatal("expected error for gif result")
	}
}

func testAsset(t *testing.T, w, h int) domain.ImageAsset {
	t.Helper()

	var buf bytes.Buffer
	if err := png.Encode(&buf, gradient(w, h)); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return domain.ImageAsset{
		ID:        "src",
		Name:      "input.png",
		MimeType:  domain.MimeTypePNG,
		Data:      buf.Bytes(),
		SizeBytes: int64(buf.Len()),
		Width:     w,
		Height:    h,
	}
}

func gradient(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{
				R: uint8((x * 255) / w),
				G: uint8((y * 255) / h),
				B: 140,
				A: 255,
			})
		}
	}
	return img
}

func TestNewLocal(t *testing.T) {
	p, err := NewLocal(context.Background(), LocalConfig{Provider: "", Delay: 5 * time.Millisecond})
	if err != nil {
		t.Fatalf("default provider: %v", err)
	}
	if d, ok := p.(DelayProvider); !ok || d.Latency != 5*time.Millisecond {
		t.Fatalf("expected delay provider with 5ms latency, got %#v", p)
	}

	if _, err := NewLocal(context.Background(), LocalConfig{Provider: "Filter"}); err != nil {
		t.Fatalf("filter provider: %v", err)
	}
	if _, err := NewLocal(context.Background(), LocalConfig{Provider: ProviderQueue}); err == nil {
		t.Fatal("expected queue provider to be rejected")
	}
	if _, err := NewLocal(context.Background(), LocalConfig{Provider: "oil-paint"}); err == nil {
		t.Fatal("expected unknown provider to be rejected")
	}
}
