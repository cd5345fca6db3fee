// Package pdfdoc adapts a page-rendering library to the engine. The engine
// never parses documents itself; it only sees Library and Document.
package pdfdoc

import (
	"context"
	"errors"
	"image/color"
	"sync"

	"annotate/internal/raster"
)

// ErrPageRange is returned for page numbers outside [1, NumPages].
var ErrPageRange = errors.New("page out of range")

// Library opens documents from bytes.
type Library interface {
	Open(ctx context.Context, data []byte) (Document, error)
}

// Document is one opened document. Page numbers are 1-based.
type Document interface {
	NumPages() int
	// PageSize is the intrinsic page size at scale 1.
	PageSize(n int) (width, height float64, err error)
	// RenderPage draws page n onto dst at scale document units per pixel.
	RenderPage(ctx context.Context, n int, dst *raster.Surface, scale float64) error
	Close() error
}

// Options is process-wide rendering configuration.
type Options struct {
	// MaxConcurrentRenders bounds page renders across all documents.
	MaxConcurrentRenders int
	Background           color.Color
}

var (
	configOnce sync.Once
	settings   = Options{MaxConcurrentRenders: 4, Background: color.White}
	renderSem  chan struct{}
)

// Configure sets process-wide options. Only the first call has any effect;
// call it at startup before any engine exists.
func Configure(opts Options) {
	configOnce.Do(func() {
		if opts.MaxConcurrentRenders > 0 {
			settings.MaxConcurrentRenders = opts.MaxConcurrentRenders
		}
		if opts.Background != nil {
			settings.Background = opts.Background
		}
		renderSem = make(chan struct{}, settings.MaxConcurrentRenders)
	})
}

// Settings returns the active process-wide options.
func Settings() Options {
	Configure(Options{})
	return settings
}

// acquire takes a render slot or fails when ctx ends first.
func acquire(ctx context.Context) (func(), error) {
	Configure(Options{})
	select {
	case renderSem <- struct{}{}:
		return func() { <-renderSem }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
