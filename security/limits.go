package security

import (
	"runtime"
	"time"
)

// Limits bounds the work a single validation run may do.
type Limits struct {
	// Maximum form/transparency-group nesting while walking a page. Default: 64.
	MaxFormDepth int

	// Time a page's validation tasks may take before they are abandoned. Default: 10m.
	PageTimeout time.Duration

	// Images with more pixels than this are not submitted for validation.
	// Zero means unlimited.
	MaxImagePixels int64

	// Maximum decoded size of a single stream. Default: 256 MB.
	MaxDecompressedSize int64

	// Worker pool size. Zero means runtime.GOMAXPROCS(0).
	Workers int
}

// DefaultLimits returns a Limits struct with safe default values.
func DefaultLimits() Limits {
	return Limits{
		MaxFormDepth:        64,
		PageTimeout:         10 * time.Minute,
		MaxDecompressedSize: 256 * 1024 * 1024,
	}
}

// WorkerCount resolves Workers against the available parallelism.
func (l Limits) WorkerCount() int {
	if l.Workers > 0 {
		return l.Workers
	}
	return runtime.GOMAXPROCS(0)
}

// Normalize fills zero fields with defaults.
func (l Limits) Normalize() Limits {
	d := DefaultLimits()
	if l.MaxFormDepth <= 0 {
		l.MaxFormDepth = d.MaxFormDepth
	}
	if l.PageTimeout <= 0 {
		l.PageTimeout = d.PageTimeout
	}
	if l.MaxDecompressedSize <= 0 {
		l.MaxDecompressedSize = d.MaxDecompressedSize
	}
	return l
}
