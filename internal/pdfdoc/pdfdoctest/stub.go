// Package pdfdoctest provides an in-memory pdfdoc.Library for tests.
package pdfdoctest

import (
	"context"
	"fmt"
	"sync"

	"annotate/internal/pdfdoc"
	"annotate/internal/raster"
)

// Stub is an in-memory pdfdoc.Library with fixed-size blank pages. Pages
// default to US Letter.
type Stub struct {
	Pages         int
	Width, Height float64

	// Reject, when set, decides whether Open accepts the bytes.
	Reject func(data []byte) error
	// FailPages makes RenderPage fail for the listed pages.
	FailPages map[int]error
	// Gate, when non-nil, holds every render until it is closed or the
	// render context ends.
	Gate chan struct{}

	mu      sync.Mutex
	opens   int
	renders []int
	closed  int
}

func (s *Stub) Open(ctx context.Context, data []byte) (pdfdoc.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.Reject != nil {
		if err := s.Reject(data); err != nil {
			return nil, err
		}
	}
	s.mu.Lock()
	s.opens++
	s.mu.Unlock()
	return &stubDocument{s: s}, nil
}

// Opens is the number of successful Open calls.
func (s *Stub) Opens() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opens
}

// Renders lists every page number passed to a completed RenderPage.
func (s *Stub) Renders() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.renders...)
}

// Closed is the number of documents closed.
func (s *Stub) Closed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type stubDocument struct {
	s *Stub
}

func (d *stubDocument) NumPages() int { return d.s.Pages }

func (d *stubDocument) PageSize(n int) (float64, float64, error) {
	if n < 1 || n > d.s.Pages {
		return 0, 0, fmt.Errorf("page %d: %w", n, pdfdoc.ErrPageRange)
	}
	w, h := d.s.Width, d.s.Height
	if w == 0 || h == 0 {
		w, h = 612, 792
	}
	return w, h, nil
}

func (d *stubDocument) RenderPage(ctx context.Context, n int, dst *raster.Surface, scale float64) error {
	if n < 1 || n > d.s.Pages {
		return fmt.Errorf("page %d: %w", n, pdfdoc.ErrPageRange)
	}
	if d.s.Gate != nil {
		select {
		case <-d.s.Gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := d.s.FailPages[n]; err != nil {
		return err
	}
	if dst.Disposed() {
		return fmt.Errorf("render page %d: surface disposed", n)
	}
	dst.Fill(pdfdoc.Settings().Background)
	d.s.mu.Lock()
	d.s.renders = append(d.s.renders, n)
	d.s.mu.Unlock()
	return nil
}

func (d *stubDocument) Close() error {
	d.s.mu.Lock()
	d.s.closed++
	d.s.mu.Unlock()
	return nil
}
