package domain

import (
	"context"
	"errors"
)

var (
	ErrUnsupportedFormat  = errors.New("unsupported image format")
	ErrFileTooLarge       = errors.New("file too large")
	ErrTransformFailed    = errors.New("transform failed")
	ErrTransformCancelled = errors.New("transform cancelled")
	ErrNoImage            = errors.New("no image uploaded")
	ErrUnknownStyle       = errors.New("unknown style")
	ErrNoResult           = errors.New("no styled result available")
	ErrSessionNotFound    = errors.New("session not found")
	ErrClosed             = errors.New("workflow closed")
)

// ErrorKind is the stable, machine-readable name of an error class.
type ErrorKind string

const (
	KindUnsupportedFormat  ErrorKind = "unsupported_format"
	KindFileTooLarge       ErrorKind = "file_too_large"
	KindTransformFailed    ErrorKind = "transform_failed"
	KindTransformCancelled ErrorKind = "transform_cancelled"
	KindNoImage            ErrorKind = "no_image"
	KindUnknownStyle       ErrorKind = "unknown_style"
	KindNoResult           ErrorKind = "no_result"
	KindSessionNotFound    ErrorKind = "session_not_found"
	KindClosed             ErrorKind = "closed"
	KindInternal           ErrorKind = "internal"
)

// KindOf classifies err. Unrecognised errors are internal.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnsupportedFormat):
		return KindUnsupportedFormat
	case errors.Is(err, ErrFileTooLarge):
		return KindFileTooLarge
	case errors.Is(err, ErrTransformCancelled), errors.Is(err, context.Canceled):
		return KindTransformCancelled
	case errors.Is(err, ErrTransformFailed):
		return KindTransformFailed
	case errors.Is(err, ErrNoImage):
		return KindNoImage
	case errors.Is(err, ErrUnknownStyle):
		return KindUnknownStyle
	case errors.Is(err, ErrNoResult):
		return KindNoResult
	case errors.Is(err, ErrSessionNotFound):
		return KindSessionNotFound
	case errors.Is(err, ErrClosed):
		return KindClosed
	default:
		return KindInternal
	}
}
