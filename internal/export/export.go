// Package export turns workflow results into downloadable files.
package export

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"
	"io"
	"strings"
	"unicode"

	"github.com/dunamismax/styleflow/internal/domain"
)

const (
	filenamePrefix = "styled-image-"
	fallbackName   = "art"
	ContentTypePNG = domain.MimeTypePNG
)

// Filename names the download for a result styled with style. The style
// name is lower-cased and kept otherwise intact, except for characters that
// cannot appear in a file name.
func Filename(style *domain.StylePreset) string {
	name := fallbackName
	if style != nil {
		if cleaned := cleanName(style.Name); cleaned != "" {
			name = cleaned
		}
	}
	return filenamePrefix + name + ".png"
}

func cleanName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	return strings.Map(func(r rune) rune {
		switch {
		case r == '/', r == '\\', r == ':':
			return '-'
		case unicode.IsControl(r):
			return '-'
		}
		return r
	}, name)
}

// Download is a ready-to-save file.
type Download struct {
	Filename    string
	ContentType string
	Data        []byte
}

func (d Download) Reader() io.Reader {
	return bytes.NewReader(d.Data)
}

func (d Download) Size() int64 {
	return int64(len(d.Data))
}

// Payload returns the bytes of img as a PNG file. JPEG results are
// transcoded so the advertised extension always matches the content.
func Payload(img domain.ImageAsset) (Download, error) {
	if len(img.Data) == 0 {
		return Download{}, domain.ErrNoResult
	}

	data := img.Data
	if img.MimeType != domain.MimeTypePNG {
		decoded, _, err := image.Decode(bytes.NewReader(img.Data))
		if err != nil {
			return Download{}, fmt.Errorf("decode %s result: %w", img.MimeType, err)
		}
		var buf bytes.Buffer
		if err := png.Encode(&buf, decoded); err != nil {
			return Download{}, fmt.Errorf("encode png: %w", err)
		}
		data = buf.Bytes()
	}

	return Download{
		Filename:    Filename(nil),
		ContentType: ContentTypePNG,
		Data:        data,
	}, nil
}

// FromState builds the download for a completed workflow.
func FromState(state domain.WorkflowState) (Download, error) {
	if state.Status != domain.StatusComplete || state.ResultImage == nil {
		return Download{}, domain.ErrNoResult
	}
	d, err := Payload(*state.ResultImage)
	if err != nil {
		return Download{}, err
	}
	d.Filename = Filename(state.SelectedStyle)
	return d, nil
}
