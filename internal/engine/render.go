package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"

	"github.com/samber/lo"

	"annotate/internal/annotation"
	"annotate/internal/domain"
	"annotate/internal/layout"
	"annotate/internal/persist"
	"annotate/internal/raster"
	"annotate/internal/service"
)

func (e *Engine) layoutInput(n int) layout.Input {
	sz := e.sizes[n-1]
	return layout.Input{
		ContainerWidth:   e.viewport.Width,
		PageWidth:        sz.w,
		PageHeight:       sz.h,
		Zoom:             e.zoom,
		DevicePixelRatio: e.viewport.DevicePixelRatio,
		Padding:          e.opts.Padding,
	}
}

// heightsLocked returns each page's logical height at the current zoom.
func (e *Engine) heightsLocked() ([]float64, error) {
	hs := make([]float64, len(e.sizes))
	for i := range e.sizes {
		l, err := layout.Compute(e.layoutInput(i + 1))
		if err != nil {
			return nil, err
		}
		hs[i] = l.Height
	}
	return hs, nil
}

// topLocked is the stacking offset of page n in logical pixels.
func (e *Engine) topLocked(n int) float64 {
	hs, err := e.heightsLocked()
	if err != nil {
		return 0
	}
	return lo.Sum(hs[:n-1]) + float64(n-1)*e.opts.PageGap
}

func (e *Engine) scrollHeightLocked() float64 {
	hs, err := e.heightsLocked()
	if err != nil || len(hs) == 0 {
		return 0
	}
	return lo.Sum(hs) + float64(len(hs)-1)*e.opts.PageGap
}

func (e *Engine) pageLocked(n int) *page {
	p := e.pages[n]
	if p == nil {
		p = &page{number: n}
		p.layer = annotation.New(n, e.tool, func() { e.onLayerChange(p) })
		e.pages[n] = p
	}
	return p
}

// onLayerChange runs with the engine lock held, from a layer mutation.
func (e *Engine) onLayerChange(p *page) {
	p.revision++
	if e.bridge != nil {
		e.bridge.ScheduleSave(p.number)
	}
}

// renderPage lays out page n, replaces its surfaces and draws it. The
// annotation state is restored before the vector surface is attached, so
// the page is never interactive with a partial state. A render whose page
// was torn down or re-rendered meanwhile resolves to a no-op.
func (e *Engine) renderPage(ctx context.Context, n int) error {
	e.mu.Lock()
	if e.state == StateDestroyed {
		e.mu.Unlock()
		return ErrDestroyed
	}
	if e.doc == nil {
		e.mu.Unlock()
		return ErrNoDocument
	}
	if n < 1 || n > len(e.sizes) {
		e.mu.Unlock()
		return fmt.Errorf("render page %d: out of range", n)
	}
	lay, err := layout.Compute(e.layoutInput(n))
	if err != nil {
		e.mu.Unlock()
		return err
	}
	p := e.pageLocked(n)
	p.layer.Detach()
	if p.raster != nil {
		p.raster.Dispose()
		p.raster = nil
	}
	p.gen++
	gen := p.gen
	doc := e.doc
	bridge := e.bridge
	restore := !p.restored && bridge != nil
	e.mu.Unlock()

	var (
		state    *domain.AnnotationState
		revision int64
	)
	if restore {
		var perr error
		state, revision, perr = bridge.Restore(ctx, n)
		if perr != nil {
			log.Printf("engine: %v", perr)
		}
	}

	rs := raster.NewSurface(lay.DeviceWidth, lay.DeviceHeight)
	rerr := doc.RenderPage(ctx, n, rs, lay.RenderScale())

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateDestroyed {
		rs.Dispose()
		return ErrDestroyed
	}
	if e.pages[n] != p || p.gen != gen {
		rs.Dispose()
		return nil
	}
	if restore && !p.restored {
		if err := p.layer.Load(state); err != nil {
			log.Printf("engine: restore page %d: %v", n, err)
		}
		p.revision = max(p.revision, revision)
		p.restored = true
	}
	if rerr != nil {
		rs.Dispose()
		if errors.Is(rerr, context.Canceled) && ctx.Err() != nil {
			return rerr
		}
		p.failed = true
		perr := &PageRenderError{Page: n, Err: rerr}
		if !p.reported {
			p.reported = true
			e.emit(service.EventPageRenderFailed, map[string]any{"page": n, "error": rerr.Error()})
		}
		return perr
	}
	p.raster = rs
	p.layout = lay
	p.failed = false
	p.top = e.topLocked(n)
	if err := p.layer.Attach(rs, lay); err != nil {
		log.Printf("engine: attach layer for page %d: %v", n, err)
	}
	e.emit(service.EventPageRendered, map[string]any{
		"page": n, "width": lay.DeviceWidth, "height": lay.DeviceHeight, "top": p.top,
	})
	return nil
}

// relayout tears down every live page and renders it again with the
// current zoom and viewport, keeping the scroll ratio.
func (e *Engine) relayout(ctx context.Context) error {
	e.mu.Lock()
	if e.state == StateDestroyed {
		e.mu.Unlock()
		return ErrDestroyed
	}
	if e.doc == nil {
		e.mu.Unlock()
		return nil
	}
	// A container without width skips this cycle and keeps the old surfaces.
	if _, err := e.heightsLocked(); err != nil {
		e.mu.Unlock()
		return err
	}
	oldHeight := e.scrollHeightBefore()
	ratio := 0.0
	if oldHeight > 0 {
		ratio = e.scrollTop / oldHeight
	}
	live := e.livePagesLocked()
	if len(live) == 0 {
		live = []int{max(e.current, 1)}
	}
	for _, n := range live {
		p := e.pages[n]
		if p == nil {
			continue
		}
		p.layer.Detach()
		if p.raster != nil {
			p.raster.Dispose()
			p.raster = nil
		}
		p.gen++
	}
	// Overlapping relayouts share one Resizing period; the state settles
	// when the last of them finishes.
	if e.relayouts == 0 {
		e.settled = e.state
	}
	e.relayouts++
	e.state = StateResizing
	e.mu.Unlock()

	var destroyed error
	for _, n := range live {
		if err := e.renderPage(ctx, n); err != nil {
			if errors.Is(err, ErrDestroyed) {
				destroyed = err
				break
			}
			log.Printf("engine: %v", err)
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.relayouts--
	if destroyed != nil || e.state == StateDestroyed {
		return ErrDestroyed
	}
	if e.state == StateResizing && e.relayouts == 0 {
		e.state = e.settled
	}
	e.scrollTop = e.clampScrollLocked(ratio * e.scrollHeightLocked())
	e.layoutHeight = e.scrollHeightLocked()
	return nil
}

// scrollHeightBefore is the document height the current scrollTop refers
// to, measured at the last completed layout.
func (e *Engine) scrollHeightBefore() float64 {
	if e.layoutHeight > 0 {
		return e.layoutHeight
	}
	return e.scrollHeightLocked()
}

func (e *Engine) clampScrollLocked(y float64) float64 {
	maxTop := math.Max(0, e.scrollHeightLocked()-e.viewport.Height)
	return math.Max(0, math.Min(y, maxTop))
}

func (e *Engine) onViewport(v Viewport) {
	e.mu.Lock()
	if e.state == StateDestroyed {
		e.mu.Unlock()
		return
	}
	e.viewport = v
	e.mu.Unlock()
	if err := e.relayout(e.ctx); err != nil && !errors.Is(err, ErrDestroyed) {
		if errors.Is(err, layout.ErrInvalidContainer) {
			log.Printf("engine: skipping layout: %v", err)
			return
		}
		log.Printf("engine: relayout: %v", err)
	}
}

// snapshot serializes page n for the persistence bridge.
func (e *Engine) snapshot(n int) ([]byte, int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateDestroyed {
		return nil, 0, ErrDestroyed
	}
	p := e.pages[n]
	if p == nil {
		return nil, 0, fmt.Errorf("page %d: %w", n, ErrPageNotLive)
	}
	data, err := p.layer.Serialize()
	if err != nil {
		if errors.Is(err, annotation.ErrStale) && !p.failed {
			return nil, p.revision, fmt.Errorf("%w: %w", persist.ErrNotReady, err)
		}
		return nil, p.revision, err
	}
	return data, p.revision, nil
}

// rebase moves page n's revision past stored so the next write is accepted.
func (e *Engine) rebase(n int, stored int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if p := e.pages[n]; p != nil && p.revision <= stored {
		p.revision = stored + 1
	}
}
