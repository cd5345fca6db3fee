package engine

import (
	"errors"
	"fmt"

	"annotate/internal/persist"
)

var (
	ErrDestroyed   = errors.New("engine destroyed")
	ErrNoDocument  = errors.New("no document loaded")
	ErrPageNotLive = errors.New("page is not rendered")
)

// LoadError means no source tier produced an openable document. The
// engine stays Empty.
type LoadError struct {
	Source string
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s: %v", e.Source, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// PageRenderError marks one page unrenderable. Other pages are unaffected.
type PageRenderError struct {
	Page int
	Err  error
}

func (e *PageRenderError) Error() string {
	return fmt.Sprintf("render page %d: %v", e.Page, e.Err)
}

func (e *PageRenderError) Unwrap() error { return e.Err }

// PersistenceError is a failed save or restore; logged, never fatal.
type PersistenceError = persist.Error
