package engine_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"annotate/internal/domain"
	"annotate/internal/engine"
	"annotate/internal/pdfdoc"
	"annotate/internal/pdfdoc/pdfdoctest"
	"annotate/internal/persist"
	"annotate/internal/raster"
	"annotate/internal/service"
	"annotate/internal/source"
)

// rawObjects serves every key from Download only.
type rawObjects struct{ fail bool }

func (rawObjects) SignedURL(context.Context, string, time.Duration) (string, error) {
	return "", errors.New("signing disabled")
}

func (rawObjects) PublicURL(context.Context, string) (string, error) {
	return "", domain.ErrPublicLinksDisabled
}

func (o rawObjects) Download(_ context.Context, key string) ([]byte, error) {
	if o.fail {
		return nil, errors.New("bucket unreachable")
	}
	return []byte("%PDF " + key), nil
}

func (rawObjects) Upload(context.Context, string, []byte, string) error { return nil }
func (rawObjects) Delete(context.Context, string) error                 { return nil }

// memAnnotations is an AnnotationStore that records every write.
type memAnnotations struct {
	mu      sync.Mutex
	records map[string]domain.AnnotationRecord
	writes  []domain.AnnotationRecord
}

func newMemAnnotations() *memAnnotations {
	return &memAnnotations{records: make(map[string]domain.AnnotationRecord)}
}

func akey(user, doc string, page int) string { return fmt.Sprintf("%s/%s/%d", user, doc, page) }

func (m *memAnnotations) GetAnnotation(_ context.Context, user, doc string, page int) (*domain.AnnotationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[akey(user, doc, page)]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (m *memAnnotations) UpsertAnnotation(_ context.Context, r *domain.AnnotationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.records[akey(r.UserID, r.DocumentID, r.PageNumber)]; ok && cur.Revision > r.Revision {
		return domain.ErrStaleRevision
	}
	m.writes = append(m.writes, *r)
	m.records[akey(r.UserID, r.DocumentID, r.PageNumber)] = *r
	return nil
}

func (m *memAnnotations) ListAnnotations(context.Context, string, string) ([]domain.AnnotationRecord, error) {
	return nil, nil
}

func (m *memAnnotations) DeleteAnnotation(_ context.Context, user, doc string, page int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, akey(user, doc, page))
	return nil
}

func (m *memAnnotations) Writes() []domain.AnnotationRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.AnnotationRecord(nil), m.writes...)
}

// heldLibrary wraps a Stub and parks each render on the next held gate,
// in order. Renders with no gate queued run straight through.
type heldLibrary struct {
	*pdfdoctest.Stub

	mu      sync.Mutex
	gates   []chan struct{}
	waiting int
}

// hold queues a gate for the next render and returns it.
func (h *heldLibrary) hold() chan struct{} {
	g := make(chan struct{})
	h.mu.Lock()
	h.gates = append(h.gates, g)
	h.mu.Unlock()
	return g
}

// parked is the number of renders currently waiting on a gate.
func (h *heldLibrary) parked() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.waiting
}

func (h *heldLibrary) Open(ctx context.Context, data []byte) (pdfdoc.Document, error) {
	doc, err := h.Stub.Open(ctx, data)
	if err != nil {
		return nil, err
	}
	return heldDocument{Document: doc, h: h}, nil
}

type heldDocument struct {
	pdfdoc.Document
	h *heldLibrary
}

func (d heldDocument) RenderPage(ctx context.Context, n int, dst *raster.Surface, scale float64) error {
	d.h.mu.Lock()
	var g chan struct{}
	if len(d.h.gates) > 0 {
		g, d.h.gates = d.h.gates[0], d.h.gates[1:]
		d.h.waiting++
	}
	d.h.mu.Unlock()
	if g != nil {
		<-g
		d.h.mu.Lock()
		d.h.waiting--
		d.h.mu.Unlock()
	}
	return d.Document.RenderPage(ctx, n, dst, scale)
}

// waitFor polls cond for up to two seconds.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

type fixture struct {
	eng      *engine.Engine
	lib      *pdfdoctest.Stub
	store    *memAnnotations
	clock    *persist.ManualClock
	viewport *engine.StaticViewport
	emitter  *service.MockEmitter
}

func newFixture(t *testing.T, lib *pdfdoctest.Stub, store *memAnnotations, mode engine.RenderMode) *fixture {
	t.Helper()
	if store == nil {
		store = newMemAnnotations()
	}
	f := &fixture{
		lib:      lib,
		store:    store,
		clock:    persist.NewManualClock(),
		viewport: engine.NewStaticViewport(652, 600, 1),
		emitter:  &service.MockEmitter{},
	}
	resolver := source.NewResolver(lib, rawObjects{}, nil, source.Options{})
	eng, err := engine.New(engine.Options{
		Library:     lib,
		Resolver:    resolver,
		Annotations: store,
		Emitter:     f.emitter,
		Viewport:    f.viewport,
		Clock:       f.clock,
		UserID:      "u1",
		RenderMode:  mode,
	})
	if err != nil {
		t.Fatal(err)
	}
	f.eng = eng
	t.Cleanup(eng.Destroy)
	return f
}

func (f *fixture) load(t *testing.T, docID string) {
	t.Helper()
	if err := f.eng.Load(context.Background(), source.Source{DocumentID: docID}); err != nil {
		t.Fatalf("Load: %v", err)
	}
}
