// Package engine is the document orchestrator: it owns the live pages, the
// zoom and current page, re-lays-out on viewport or zoom changes, and
// wires annotation layers to persistence.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"slices"
	"sync"
	"time"

	"github.com/samber/lo"

	"annotate/internal/annotation"
	"annotate/internal/domain"
	"annotate/internal/layout"
	"annotate/internal/pdfdoc"
	"annotate/internal/persist"
	"annotate/internal/raster"
	"annotate/internal/service"
	"annotate/internal/source"
)

type State int

const (
	StateEmpty State = iota
	StateLoading
	StateReady
	StateResizing
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateResizing:
		return "resizing"
	case StateDestroyed:
		return "destroyed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// RenderMode selects which pages are rendered on load.
type RenderMode int

const (
	// RenderLazy renders the first page on load and others on demand.
	RenderLazy RenderMode = iota
	// RenderEager renders every page on load.
	RenderEager
)

func ParseRenderMode(s string) (RenderMode, error) {
	switch s {
	case "", "lazy":
		return RenderLazy, nil
	case "eager":
		return RenderEager, nil
	}
	return RenderLazy, fmt.Errorf("unknown render mode %q", s)
}

const (
	zoomInStep  = 1.25
	zoomOutStep = 0.8

	// DefaultPageGap is the vertical space between stacked pages.
	DefaultPageGap = 16.0
)

type Options struct {
	Library pdfdoc.Library
	// Resolver defaults to one built from Library with no object store.
	Resolver *source.Resolver
	// Annotations may be nil, which disables persistence.
	Annotations domain.AnnotationStore

	Emitter  service.EventEmitter
	Viewport ViewportObserver
	Clock    persist.Clock

	UserID       string
	Debounce     time.Duration
	SaveInterval time.Duration
	Padding      float64
	PageGap      float64
	RenderMode   RenderMode
	Tool         *domain.DrawingTool
}

// page is one live page. Raster and vector surfaces are created and
// disposed together.
type page struct {
	number   int
	raster   *raster.Surface
	layer    *annotation.Layer
	layout   layout.Layout
	top      float64
	gen      int
	failed   bool
	reported bool
	restored bool
	revision int64
}

func (p *page) live() bool { return p.raster != nil && !p.raster.Disposed() }

type pageSize struct{ w, h float64 }

// Engine is safe for concurrent use. Library and store calls run without
// the engine lock held.
type Engine struct {
	opts     Options
	resolver *source.Resolver
	emitter  service.EventEmitter

	mu          sync.Mutex
	state       State
	ctx         context.Context
	cancel      context.CancelFunc
	loadGen     int
	doc         pdfdoc.Document
	docID       string
	sizes       []pageSize
	zoom        float64
	current     int
	pages       map[int]*page
	viewport    Viewport
	scrollTop   float64
	tool        domain.DrawingTool
	bridge      *persist.Bridge
	unsubscribe func()

	// layoutHeight is the document height at the last completed layout.
	layoutHeight float64

	relayouts int   // relayouts in flight
	settled   State // state to return to once relayouts reaches zero
}

// New builds an Empty engine and subscribes to the viewport observer.
func New(opts Options) (*Engine, error) {
	if opts.Library == nil {
		return nil, errors.New("engine: page library is required")
	}
	if opts.Viewport == nil {
		opts.Viewport = NewStaticViewport(1024, 768, 1)
	}
	if opts.Emitter == nil {
		opts.Emitter = service.LogEmitter{}
	}
	if opts.Clock == nil {
		opts.Clock = persist.RealClock{}
	}
	if opts.Padding <= 0 {
		opts.Padding = layout.DefaultPadding
	}
	if opts.PageGap <= 0 {
		opts.PageGap = DefaultPageGap
	}
	if opts.Debounce <= 0 {
		opts.Debounce = persist.DefaultDebounce
	}
	if opts.SaveInterval <= 0 {
		opts.SaveInterval = persist.DefaultInterval
	}
	tool := domain.DefaultTool
	if opts.Tool != nil {
		tool = *opts.Tool
	}
	resolver := opts.Resolver
	if resolver == nil {
		resolver = source.NewResolver(opts.Library, nil, nil, source.Options{})
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		opts:     opts,
		resolver: resolver,
		emitter:  opts.Emitter,
		state:    StateEmpty,
		ctx:      ctx,
		cancel:   cancel,
		zoom:     1,
		pages:    make(map[int]*page),
		viewport: opts.Viewport.Current(),
		tool:     tool,
	}
	e.unsubscribe = opts.Viewport.Subscribe(e.onViewport)
	return e, nil
}

func (e *Engine) emit(event string, data any) {
	e.emitter.Emit(context.Background(), event, data)
}

// ─── Queries ─────────────────────────────────────────────────

func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// CurrentPage is 0 when no document is loaded.
func (e *Engine) CurrentPage() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current
}

func (e *Engine) TotalPages() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.sizes)
}

func (e *Engine) Zoom() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.zoom
}

// DocumentID is empty when no document is loaded.
func (e *Engine) DocumentID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.docID
}

func (e *Engine) Tool() domain.DrawingTool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tool
}

// LivePages lists the pages that currently hold surfaces.
func (e *Engine) LivePages() []int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.livePagesLocked()
}

func (e *Engine) livePagesLocked() []int {
	live := lo.Filter(lo.Values(e.pages), func(p *page, _ int) bool { return p.live() })
	nums := lo.Map(live, func(p *page, _ int) int { return p.number })
	slices.Sort(nums)
	return nums
}

// ─── Load ────────────────────────────────────────────────────

func describe(src source.Source) string {
	switch {
	case src.DocumentID != "":
		return "document " + src.DocumentID
	case src.URL != "":
		return src.URL
	case src.Path != "":
		return src.Path
	}
	return fmt.Sprintf("%d bytes", len(src.Bytes))
}

// Load replaces the current document with src. It returns once the
// initial render pass is done. Exhausting every source tier leaves the
// engine Empty and returns a *LoadError.
func (e *Engine) Load(ctx context.Context, src source.Source) error {
	e.mu.Lock()
	if e.state == StateDestroyed {
		e.mu.Unlock()
		return ErrDestroyed
	}
	old := e.unloadLocked()
	e.state = StateLoading
	e.loadGen++
	gen := e.loadGen
	ectx := e.ctx
	e.mu.Unlock()
	old.release()

	ctx, cancel := mergeContext(ctx, ectx)
	defer cancel()

	opened, err := e.resolver.Resolve(ctx, src)
	if err != nil {
		lerr := &LoadError{Source: describe(src), Err: err}
		e.mu.Lock()
		defer e.mu.Unlock()
		if e.state == StateDestroyed {
			return ErrDestroyed
		}
		if e.loadGen == gen {
			e.state = StateEmpty
		}
		log.Printf("engine: %v", lerr)
		e.emit(service.EventDocumentLoadFailed, map[string]any{"source": lerr.Source, "error": err.Error()})
		return lerr
	}

	sizes := pageSizes(opened.Doc)
	docID := opened.DocumentID

	e.mu.Lock()
	if e.state == StateDestroyed || e.loadGen != gen {
		e.mu.Unlock()
		opened.Doc.Close()
		if e.State() == StateDestroyed {
			return ErrDestroyed
		}
		return context.Canceled
	}
	e.doc = opened.Doc
	e.docID = docID
	e.sizes = sizes
	e.zoom = 1
	e.current = 1
	e.scrollTop = 0
	e.pages = make(map[int]*page)
	if e.opts.Annotations != nil && docID != "" {
		e.bridge = persist.NewBridge(e.ctx, persist.Config{
			Store:      e.opts.Annotations,
			Emitter:    e.emitter,
			UserID:     e.opts.UserID,
			DocumentID: docID,
			Clock:      e.opts.Clock,
			Debounce:   e.opts.Debounce,
			Interval:   e.opts.SaveInterval,
			Snapshot:   e.snapshot,
			Current:    e.CurrentPage,
			Rebase:     e.rebase,
		})
		e.bridge.Start()
	}
	first := []int{1}
	if e.opts.RenderMode == RenderEager {
		first = lo.RangeFrom(1, len(sizes))
	}
	e.mu.Unlock()

	for _, n := range first {
		if err := e.renderPage(ctx, n); err != nil {
			if errors.Is(err, ErrDestroyed) || errors.Is(err, context.Canceled) {
				return err
			}
			log.Printf("engine: %v", err)
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateDestroyed {
		return ErrDestroyed
	}
	if e.loadGen != gen {
		return context.Canceled
	}
	e.state = StateReady
	e.layoutHeight = e.scrollHeightLocked()
	e.emit(service.EventDocumentLoaded, map[string]any{
		"documentId": docID, "pages": len(sizes), "tier": string(opened.Tier),
	})
	return nil
}

func pageSizes(doc pdfdoc.Document) []pageSize {
	n := doc.NumPages()
	sizes := make([]pageSize, n)
	fallback := pageSize{612, 792}
	for i := range sizes {
		w, h, err := doc.PageSize(i + 1)
		if err != nil || w <= 0 || h <= 0 {
			if i > 0 {
				sizes[i] = sizes[0]
			} else {
				sizes[i] = fallback
			}
			continue
		}
		sizes[i] = pageSize{w, h}
	}
	return sizes
}

// released holds what unloadLocked detached; release runs outside the lock.
type released struct {
	doc    pdfdoc.Document
	bridge *persist.Bridge
}

func (r released) release() {
	if r.bridge != nil {
		r.bridge.Stop()
	}
	if r.doc != nil {
		if err := r.doc.Close(); err != nil {
			log.Printf("engine: close document: %v", err)
		}
	}
}

// unloadLocked disposes every page and detaches the document.
func (e *Engine) unloadLocked() released {
	for _, p := range e.pages {
		p.layer.Detach()
		if p.raster != nil {
			p.raster.Dispose()
			p.raster = nil
		}
		p.gen++
	}
	r := released{doc: e.doc, bridge: e.bridge}
	e.pages = make(map[int]*page)
	e.doc = nil
	e.bridge = nil
	e.docID = ""
	e.sizes = nil
	e.current = 0
	e.scrollTop = 0
	e.layoutHeight = 0
	return r
}

// Destroy releases every surface, timer and subscription. It is terminal;
// later calls return ErrDestroyed.
func (e *Engine) Destroy() {
	e.mu.Lock()
	if e.state == StateDestroyed {
		e.mu.Unlock()
		return
	}
	e.state = StateDestroyed
	e.cancel()
	old := e.unloadLocked()
	unsubscribe := e.unsubscribe
	e.unsubscribe = nil
	e.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	old.release()
}

// mergeContext returns a context cancelled when either parent ends.
func mergeContext(a, b context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(a)
	stop := context.AfterFunc(b, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

func (e *Engine) logErr(err error) {
	log.Printf("engine: %v", err)
}
