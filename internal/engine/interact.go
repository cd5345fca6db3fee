package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"annotate/internal/annotation"
	"annotate/internal/domain"
	"annotate/internal/layout"
	"annotate/internal/raster"
	"annotate/internal/service"
)

// readyLocked fails unless a document is loaded and the engine is alive.
func (e *Engine) readyLocked() error {
	if e.state == StateDestroyed {
		return ErrDestroyed
	}
	if e.doc == nil {
		return ErrNoDocument
	}
	return nil
}

// ─── Navigation ──────────────────────────────────────────────

// GoToPage clamps n to [1, TotalPages], renders the page if it has no
// surfaces yet and scrolls it into view.
func (e *Engine) GoToPage(ctx context.Context, n int) error {
	e.mu.Lock()
	if err := e.readyLocked(); err != nil {
		e.mu.Unlock()
		return err
	}
	n = max(1, min(n, len(e.sizes)))
	p := e.pages[n]
	needRender := p == nil || !p.live()
	e.mu.Unlock()

	if needRender {
		if err := e.renderPage(ctx, n); err != nil {
			if errors.Is(err, ErrDestroyed) {
				return err
			}
			// A failed page is still navigable.
			e.logErr(err)
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.readyLocked(); err != nil {
		return err
	}
	changed := e.current != n
	e.current = n
	e.scrollTop = e.clampScrollLocked(e.topLocked(n))
	if changed {
		e.emit(service.EventPageChanged, map[string]any{"page": n})
	}
	return nil
}

// ScrollTo moves the viewport to y logical pixels, updates the current
// page to the one at the top edge and renders every visible page.
func (e *Engine) ScrollTo(ctx context.Context, y float64) error {
	e.mu.Lock()
	if err := e.readyLocked(); err != nil {
		e.mu.Unlock()
		return err
	}
	e.scrollTop = e.clampScrollLocked(y)
	hs, err := e.heightsLocked()
	if err != nil {
		e.mu.Unlock()
		return err
	}
	top, bottom := e.scrollTop, e.scrollTop+e.viewport.Height
	var visible []int
	offset := 0.0
	current := e.current
	for i, h := range hs {
		start, end := offset, offset+h
		if start <= top && top < end+e.opts.PageGap {
			current = i + 1
		}
		if end >= top && start <= bottom {
			p := e.pages[i+1]
			if p == nil || !p.live() {
				visible = append(visible, i+1)
			}
		}
		offset = end + e.opts.PageGap
	}
	changed := current != e.current
	e.current = current
	if changed {
		e.emit(service.EventPageChanged, map[string]any{"page": current})
	}
	e.mu.Unlock()

	for _, n := range visible {
		if err := e.renderPage(ctx, n); err != nil {
			if errors.Is(err, ErrDestroyed) {
				return err
			}
			e.logErr(err)
		}
	}
	return nil
}

func (e *Engine) ScrollTop() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.scrollTop
}

// ScrollHeight is the stacked height of every page at the current zoom.
func (e *Engine) ScrollHeight() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.scrollHeightLocked()
}

// ─── Zoom ────────────────────────────────────────────────────

func (e *Engine) ZoomIn(ctx context.Context) error  { return e.zoomBy(ctx, zoomInStep) }
func (e *Engine) ZoomOut(ctx context.Context) error { return e.zoomBy(ctx, zoomOutStep) }

func (e *Engine) ResetZoom(ctx context.Context) error { return e.SetZoom(ctx, 1) }

func (e *Engine) zoomBy(ctx context.Context, factor float64) error {
	e.mu.Lock()
	z := e.zoom * factor
	e.mu.Unlock()
	return e.SetZoom(ctx, z)
}

// SetZoom sets the zoom factor, clamped to [0.25, 3], and re-lays-out every
// live page.
func (e *Engine) SetZoom(ctx context.Context, z float64) error {
	e.mu.Lock()
	if e.state == StateDestroyed {
		e.mu.Unlock()
		return ErrDestroyed
	}
	z = layout.ClampZoom(z)
	if z == e.zoom {
		e.mu.Unlock()
		return nil
	}
	e.zoom = z
	e.mu.Unlock()

	e.emit(service.EventZoomChanged, map[string]any{"zoom": z})
	return e.relayout(ctx)
}

// ─── Tools ───────────────────────────────────────────────────

// SetTool replaces the tool on the engine and every live layer.
func (e *Engine) SetTool(t domain.DrawingTool) error {
	if err := t.Validate(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateDestroyed {
		return ErrDestroyed
	}
	e.tool = t
	for _, p := range e.pages {
		p.layer.ApplyTool(t)
	}
	return nil
}

// InsertShape adds a default shape of kind to the current page.
func (e *Engine) InsertShape(kind domain.ToolKind) (domain.Object, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.readyLocked(); err != nil {
		return domain.Object{}, err
	}
	l, err := e.liveLayerLocked(e.current)
	if err != nil {
		return domain.Object{}, err
	}
	return l.InsertShape(kind)
}

func (e *Engine) liveLayerLocked(n int) (*annotation.Layer, error) {
	p := e.pages[n]
	if p == nil || !p.live() {
		return nil, fmt.Errorf("page %d: %w", n, ErrPageNotLive)
	}
	return p.layer, nil
}

// withLayer runs fn on page n's live layer under the engine lock.
func (e *Engine) withLayer(n int, fn func(l *annotation.Layer) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.readyLocked(); err != nil {
		return err
	}
	l, err := e.liveLayerLocked(n)
	if err != nil {
		return err
	}
	return fn(l)
}

// ─── Drawing ─────────────────────────────────────────────────

// DrawStroke commits a freehand stroke on page n with the active tool.
// Points are logical pixels relative to the page's top-left corner.
func (e *Engine) DrawStroke(n int, points []domain.Point) (domain.Object, error) {
	var o domain.Object
	err := e.withLayer(n, func(l *annotation.Layer) error {
		var err error
		o, err = l.CommitStroke(points)
		return err
	})
	return o, err
}

func (e *Engine) MoveObject(n int, id string, dx, dy float64) error {
	return e.withLayer(n, func(l *annotation.Layer) error { return l.MoveObject(id, dx, dy) })
}

func (e *Engine) ResizeObject(n int, id string, width, height float64) error {
	return e.withLayer(n, func(l *annotation.Layer) error { return l.ResizeObject(id, width, height) })
}

func (e *Engine) SetText(n int, id, text string) error {
	return e.withLayer(n, func(l *annotation.Layer) error { return l.SetText(id, text) })
}

func (e *Engine) RemoveObject(n int, id string) error {
	return e.withLayer(n, func(l *annotation.Layer) error { return l.RemoveObject(id) })
}

// Undo reports whether there was anything to undo on page n.
func (e *Engine) Undo(n int) (bool, error) {
	var ok bool
	err := e.withLayer(n, func(l *annotation.Layer) error {
		var err error
		ok, err = l.Undo()
		return err
	})
	return ok, err
}

func (e *Engine) Redo(n int) (bool, error) {
	var ok bool
	err := e.withLayer(n, func(l *annotation.Layer) error {
		var err error
		ok, err = l.Redo()
		return err
	})
	return ok, err
}

// ClearPage removes every object from page n and deletes its stored
// record.
func (e *Engine) ClearPage(ctx context.Context, n int) error {
	var rev int64
	err := e.withLayer(n, func(l *annotation.Layer) error {
		if err := l.Clear(); err != nil {
			return err
		}
		rev = e.pages[n].revision
		return nil
	})
	if err != nil {
		return err
	}
	e.mu.Lock()
	bridge := e.bridge
	e.mu.Unlock()
	if bridge == nil {
		return nil
	}
	if err := bridge.Delete(ctx, n); err != nil {
		return err
	}
	bridge.MarkSaved(n, rev)
	return nil
}

// Objects returns the working annotation state of page n. Pages that were
// never rendered are read from the store.
func (e *Engine) Objects(ctx context.Context, n int) ([]domain.Object, error) {
	e.mu.Lock()
	if err := e.readyLocked(); err != nil {
		e.mu.Unlock()
		return nil, err
	}
	if n < 1 || n > len(e.sizes) {
		e.mu.Unlock()
		return nil, fmt.Errorf("page %d: out of range", n)
	}
	if p := e.pages[n]; p != nil && (p.restored || e.bridge == nil) {
		objs := p.layer.Objects()
		e.mu.Unlock()
		return objs, nil
	}
	bridge := e.bridge
	e.mu.Unlock()

	if bridge == nil {
		return nil, nil
	}
	state, _, err := bridge.Restore(ctx, n)
	if err != nil || state == nil {
		return nil, err
	}
	return state.Objects, nil
}

// ExportPage writes page n, raster and annotations composited, as PNG.
// maxWidth > 0 scales the image down to that width.
func (e *Engine) ExportPage(ctx context.Context, n int, w io.Writer, maxWidth int) error {
	e.mu.Lock()
	if err := e.readyLocked(); err != nil {
		e.mu.Unlock()
		return err
	}
	p := e.pages[n]
	needRender := p == nil || !p.live()
	e.mu.Unlock()
	if needRender {
		if err := e.renderPage(ctx, n); err != nil {
			return err
		}
	}

	e.mu.Lock()
	p = e.pages[n]
	if p == nil || !p.live() {
		e.mu.Unlock()
		return fmt.Errorf("page %d: %w", n, ErrPageNotLive)
	}
	img := raster.Flatten(maxWidth, p.raster, p.layer.Surface())
	e.mu.Unlock()

	var buf bytes.Buffer
	if err := raster.EncodePNG(&buf, img); err != nil {
		return fmt.Errorf("encode page %d: %w", n, err)
	}
	_, err := w.Write(buf.Bytes())
	return err
}

// PageLayout returns the layout page n was last rendered with.
func (e *Engine) PageLayout(n int) (layout.Layout, float64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p := e.pages[n]
	if p == nil || !p.live() {
		return layout.Layout{}, 0, false
	}
	return p.layout, p.top, true
}

// VectorMatchesRaster reports whether page n's vector surface has the
// raster surface's pixel size.
func (e *Engine) VectorMatchesRaster(n int) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	p := e.pages[n]
	return p != nil && p.live() && p.layer.Check() == nil
}
