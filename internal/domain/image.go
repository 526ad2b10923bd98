package domain

import (
	"bytes"
	"encoding/base64"
	"strings"
	"time"
)

const (
	MimeTypeJPEG = "image/jpeg"
	MimeTypePNG  = "image/png"

	// MaxImageBytes is the largest payload ingest accepts (10 MB).
	MaxImageBytes int64 = 10 * 1024 * 1024
)

// ImageAsset is one fully loaded image. Data is never modified after
// construction; share the asset freely but copy Data before mutating it.
type ImageAsset struct {
	ID        string
	Name      string
	MimeType  string
	Data      []byte
	SizeBytes int64
	Width     int
	Height    int
	CreatedAt time.Time
}

// SupportedMimeType reports whether mimeType is one of the accepted image types.
// The comparison is exact; callers normalise case and parameters first.
func SupportedMimeType(mimeType string) bool {
	return mimeType == MimeTypeJPEG || mimeType == MimeTypePNG
}

// NormalizeMimeType lower-cases a declared content type and strips parameters.
func NormalizeMimeType(mimeType string) string {
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = mimeType[:i]
	}
	return strings.ToLower(strings.TrimSpace(mimeType))
}

// Clone returns a deep copy of the asset.
func (a ImageAsset) Clone() ImageAsset {
	a.Data = bytes.Clone(a.Data)
	return a
}

// DataURL encodes the asset the way browsers read local files.
func (a ImageAsset) DataURL() string {
	return "data:" + a.MimeType + ";base64," + base64.StdEncoding.EncodeToString(a.Data)
}

// Extension returns the file extension matching the asset's MIME type.
func (a ImageAsset) Extension() string {
	if a.MimeType == MimeTypeJPEG {
		return "jpg"
	}
	return "png"
}
