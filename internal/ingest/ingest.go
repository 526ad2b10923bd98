// Package ingest validates and decodes user supplied image files.
package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"strings"
	"time"

	"github.com/dunamismax/styleflow/internal/domain"
	"github.com/dunamismax/styleflow/internal/id"
)

// File is a readable upload. Size is the declared byte length; a negative
// value means unknown and only the measured length is checked. Body is read
// at most once.
type File struct {
	Name     string
	MimeType string
	Size     int64
	Body     io.Reader
}

var formatByMimeType = map[string]string{
	domain.MimeTypeJPEG: "jpeg",
	domain.MimeTypePNG:  "png",
}

// Ingest turns f into an ImageAsset. The MIME type is checked before any
// read so unsupported files never reach the decoder.
func Ingest(ctx context.Context, f File) (domain.ImageAsset, error) {
	mimeType := domain.NormalizeMimeType(f.MimeType)
	if !domain.SupportedMimeType(mimeType) {
		return domain.ImageAsset{}, fmt.Errorf("%w: %q", domain.ErrUnsupportedFormat, f.MimeType)
	}
	if f.Size > domain.MaxImageBytes {
		return domain.ImageAsset{}, fmt.Errorf("%w: %d bytes exceeds %d", domain.ErrFileTooLarge, f.Size, domain.MaxImageBytes)
	}
	if f.Body == nil {
		return domain.ImageAsset{}, errors.New("file body is required")
	}

	data, err := io.ReadAll(io.LimitReader(f.Body, domain.MaxImageBytes+1))
	if err != nil {
		return domain.ImageAsset{}, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > domain.MaxImageBytes {
		return domain.ImageAsset{}, fmt.Errorf("%w: payload exceeds %d bytes", domain.ErrFileTooLarge, domain.MaxImageBytes)
	}

	if err := ctx.Err(); err != nil {
		return domain.ImageAsset{}, err
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return domain.ImageAsset{}, fmt.Errorf("%w: payload does not decode as %s: %v", domain.ErrUnsupportedFormat, mimeType, err)
	}
	if format != formatByMimeType[mimeType] {
		return domain.ImageAsset{}, fmt.Errorf("%w: declared %s but payload is %s", domain.ErrUnsupportedFormat, mimeType, format)
	}

	return domain.ImageAsset{
		ID:        id.New(),
		Name:      strings.TrimSpace(f.Name),
		MimeType:  mimeType,
		Data:      data,
		SizeBytes: int64(len(data)),
		Width:     cfg.Width,
		Height:    cfg.Height,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// FromBytes wraps an in-memory payload as a File.
func FromBytes(name, mimeType string, data []byte) File {
	return File{
		Name:     name,
		MimeType: mimeType,
		Size:     int64(len(data)),
		Body:     bytes.NewReader(data),
	}
}
