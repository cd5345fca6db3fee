package service_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"annotate/internal/domain"
	"annotate/internal/pdfdoc/pdfdoctest"
	"annotate/internal/service"
	"annotate/internal/storage"
)

// ─────────────────────────────────────────────────────────────
// RunGuard tests
// ─────────────────────────────────────────────────────────────

func TestRunGuard_TryLock(t *testing.T) {
	var g service.RunGuard

	if !g.TryLock("doc:1") {
		t.Fatal("expected first TryLock to succeed")
	}
	if g.TryLock("doc:1") {
		t.Fatal("expected second TryLock for same page to fail")
	}
	if !g.TryLock("doc:2") {
		t.Fatal("expected TryLock for different page to succeed")
	}
	if !g.Running("doc:1") {
		t.Error("expected doc:1 to be running")
	}
	g.Unlock("doc:1")
	g.Unlock("doc:2")

	if !g.TryLock("doc:1") {
		t.Fatal("expected TryLock to succeed after unlock")
	}
	g.Unlock("doc:1")
}

func TestRunGuard_WaitAll(t *testing.T) {
	var g service.RunGuard

	if !g.TryLock("doc:a") {
		t.Fatal("expected lock to succeed")
	}

	done := make(chan struct{})
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		defer cancel()
		g.WaitAll(ctx)
		close(done)
	}()

	go func() {
		time.Sleep(20 * time.Millisecond)
		g.Unlock("doc:a")
	}()

	select {
	case <-done:
		// success
	case <-time.After(1 * time.Second):
		t.Fatal("WaitAll timed out")
	}
}

// ─────────────────────────────────────────────────────────────
// Emitter tests
// ─────────────────────────────────────────────────────────────

func TestMockEmitter_RecordsEvents(t *testing.T) {
	m := &service.MockEmitter{}
	ctx := context.Background()

	m.Emit(ctx, service.EventPageRendered, map[string]int{"page": 1})
	m.Emit(ctx, service.EventPageRendered, map[string]int{"page": 2})
	m.Emit(ctx, service.EventZoomChanged, nil)

	if len(m.Events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(m.Events))
	}
	if n := m.Count(service.EventPageRendered); n != 2 {
		t.Errorf("expected 2 page:rendered, got %d", n)
	}
}

func TestMultiEmitter_FansOut(t *testing.T) {
	a, b := &service.MockEmitter{}, &service.MockEmitter{}
	multi := service.MultiEmitter{a, nil, b}
	multi.Emit(context.Background(), "x", 1)
	if a.Count("x") != 1 || b.Count("x") != 1 {
		t.Errorf("fan-out counts: a=%d b=%d", a.Count("x"), b.Count("x"))
	}
}

// ─────────────────────────────────────────────────────────────
// DocumentService tests
// ─────────────────────────────────────────────────────────────

type memDocs struct {
	mu   sync.Mutex
	docs map[string]domain.DocumentRecord
	fail error
}

func (m *memDocs) CreateDocument(_ context.Context, d *domain.DocumentRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	if m.docs == nil {
		m.docs = make(map[string]domain.DocumentRecord)
	}
	m.docs[d.ID] = *d
	return nil
}

func (m *memDocs) GetDocument(_ context.Context, id string) (*domain.DocumentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok {
		return nil, fmt.Errorf("document %s: %w", id, domain.ErrNotFound)
	}
	return &d, nil
}

func (m *memDocs) ListDocuments(_ context.Context, by string) ([]domain.DocumentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.DocumentRecord
	for _, d := range m.docs {
		if by == "" || d.UploadedBy == by {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *memDocs) DeleteDocument(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, id)
	return nil
}

type memObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (m *memObjects) SignedURL(context.Context, string, time.Duration) (string, error) {
	return "", errors.New("not supported")
}

func (m *memObjects) PublicURL(context.Context, string) (string, error) {
	return "", domain.ErrPublicLinksDisabled
}

func (m *memObjects) Download(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return data, nil
}

func (m *memObjects) Upload(_ context.Context, key string, data []byte, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.objects == nil {
		m.objects = make(map[string][]byte)
	}
	m.objects[key] = data
	return nil
}

func (m *memObjects) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *memObjects) Has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok
}

func TestDocumentService_Upload(t *testing.T) {
	docs, objects, em := &memDocs{}, &memObjects{}, &service.MockEmitter{}
	svc := service.NewDocumentService(docs, objects, nil, &pdfdoctest.Stub{Pages: 7}, em)
	ctx := context.Background()

	rec, err := svc.Upload(ctx, "u1", "../notes/report.pdf", []byte("%PDF-1.4"))
	if err != nil {
		t.Fatal(err)
	}
	if rec.TotalPages != 7 || rec.StorageKey != "u1/report.pdf" || rec.Filename != "report.pdf" {
		t.Errorf("record = %+v", rec)
	}
	if rec.SizeBytes != 8 {
		t.Errorf("size = %d, want 8", rec.SizeBytes)
	}
	if !objects.Has("u1/report.pdf") {
		t.Error("bytes not uploaded")
	}
	if got, err := svc.Get(ctx, rec.ID); err != nil || got.ID != rec.ID {
		t.Errorf("Get = %+v, %v", got, err)
	}
	if em.Count(service.EventDocumentUploaded) != 1 {
		t.Error("expected document:uploaded event")
	}
}

func TestDocumentService_UploadRejectsUnreadable(t *testing.T) {
	docs, objects := &memDocs{}, &memObjects{}
	lib := &pdfdoctest.Stub{Pages: 1, Reject: func([]byte) error { return errors.New("not a pdf") }}
	svc := service.NewDocumentService(docs, objects, nil, lib, &service.MockEmitter{})

	if _, err := svc.Upload(context.Background(), "u1", "x.pdf", []byte("junk")); err == nil {
		t.Fatal("expected error for unreadable document")
	}
	if objects.Has("u1/x.pdf") {
		t.Error("rejected bytes were uploaded")
	}
}

func TestDocumentService_UploadCleansUpOnRecordFailure(t *testing.T) {
	docs, objects := &memDocs{fail: errors.New("db down")}, &memObjects{}
	svc := service.NewDocumentService(docs, objects, nil, &pdfdoctest.Stub{Pages: 1}, &service.MockEmitter{})

	if _, err := svc.Upload(context.Background(), "u1", "x.pdf", []byte("%PDF")); err == nil {
		t.Fatal("expected error")
	}
	if objects.Has("u1/x.pdf") {
		t.Error("orphaned object left after failed record creation")
	}
}

func TestDocumentService_Validation(t *testing.T) {
	svc := service.NewDocumentService(&memDocs{}, &memObjects{}, nil, &pdfdoctest.Stub{Pages: 1}, &service.MockEmitter{})
	cases := []struct{ user, name, field string }{
		{"", "a.pdf", "uploadedBy"},
		{"u1", "", "filename"},
	}
	for _, c := range cases {
		_, err := svc.Upload(context.Background(), c.user, c.name, []byte("%PDF"))
		var verr *domain.ValidationError
		if !errors.As(err, &verr) || verr.Field != c.field {
			t.Errorf("Upload(%q, %q) err = %v, want ValidationError on %s", c.user, c.name, err, c.field)
		}
	}
}

func TestDocumentService_Delete(t *testing.T) {
	docs, objects, em := &memDocs{}, &memObjects{}, &service.MockEmitter{}
	svc := service.NewDocumentService(docs, objects, nil, &pdfdoctest.Stub{Pages: 1}, em)
	ctx := context.Background()

	rec, _ := svc.Upload(ctx, "u1", "a.pdf", []byte("%PDF"))
	if err := svc.Delete(ctx, rec.ID); err != nil {
		t.Fatal(err)
	}
	if objects.Has(rec.StorageKey) {
		t.Error("object left after delete")
	}
	if _, err := svc.Get(ctx, rec.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Get after delete: %v", err)
	}
	if err := svc.Delete(ctx, rec.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("second delete: %v", err)
	}
}

// ─────────────────────────────────────────────────────────────
// PositionService tests
// ─────────────────────────────────────────────────────────────

type memPositions struct {
	saved map[string]domain.ReadingPosition
}

func (m *memPositions) GetPosition(_ context.Context, user, doc string) (*domain.ReadingPosition, error) {
	p, ok := m.saved[user+"/"+doc]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (m *memPositions) SavePosition(_ context.Context, p *domain.ReadingPosition) error {
	if m.saved == nil {
		m.saved = make(map[string]domain.ReadingPosition)
	}
	m.saved[p.UserID+"/"+p.DocumentID] = *p
	return nil
}

func TestPositionService(t *testing.T) {
	svc := service.NewPositionService(&memPositions{})
	ctx := context.Background()

	p, err := svc.Get(ctx, "u1", "d1")
	if err != nil || p.PageNumber != 1 || p.Zoom != 1 {
		t.Errorf("first visit = %+v, %v", p, err)
	}
	if err := svc.Save(ctx, "u1", "d1", 4, 1.25); err != nil {
		t.Fatal(err)
	}
	p, _ = svc.Get(ctx, "u1", "d1")
	if p.PageNumber != 4 || p.Zoom != 1.25 {
		t.Errorf("saved position = %+v", p)
	}

	var nilSvc *service.PositionService
	if p, err := nilSvc.Get(ctx, "u1", "d1"); err != nil || p.PageNumber != 1 {
		t.Errorf("nil service Get = %+v, %v", p, err)
	}
}

// ─────────────────────────────────────────────────────────────
// Bookmark and note tests
// ─────────────────────────────────────────────────────────────

func markServices(t *testing.T) (*service.BookmarkService, *service.NoteService, *service.MockEmitter) {
	t.Helper()
	db, err := storage.OpenSQLite(filepath.Join(t.TempDir(), "marks.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	docs := &memDocs{}
	docs.CreateDocument(context.Background(), &domain.DocumentRecord{ID: "d1", TotalPages: 5, UploadedBy: "u1"})
	em := &service.MockEmitter{}
	return service.NewBookmarkService(storage.NewBookmarkStore(db), docs, em),
		service.NewNoteService(storage.NewNoteStore(db), docs, em), em
}

func TestBookmarkService_PageRange(t *testing.T) {
	marks, _, em := markServices(t)
	ctx := context.Background()

	for _, page := range []int{0, 6} {
		_, err := marks.Add(ctx, "u1", "d1", page, "")
		var verr *domain.ValidationError
		if !errors.As(err, &verr) || verr.Field != "pageNumber" {
			t.Errorf("Add(page %d) err = %v, want ValidationError on pageNumber", page, err)
		}
	}
	if _, err := marks.Add(ctx, "u1", "missing", 1, ""); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Add on unknown document: err = %v, want ErrNotFound", err)
	}

	b, err := marks.Add(ctx, "u1", "d1", 5, "  Appendix ")
	if err != nil {
		t.Fatal(err)
	}
	if b.Label != "Appendix" {
		t.Errorf("label = %q, want trimmed", b.Label)
	}
	if found, _ := marks.Find(ctx, "u1", "d1", 5); found == nil || found.ID != b.ID {
		t.Errorf("Find(5) = %+v", found)
	}
	if found, _ := marks.Find(ctx, "u1", "d1", 4); found != nil {
		t.Errorf("Find(4) = %+v, want nil", found)
	}
	if err := marks.Remove(ctx, "u1", "d1", 5); err != nil {
		t.Fatal(err)
	}
	if n := em.Count(service.EventBookmarksChanged); n != 2 {
		t.Errorf("bookmarks:changed emitted %d times, want 2", n)
	}
}

func TestNoteService_TagsAndUpdate(t *testing.T) {
	_, notes, em := markServices(t)
	ctx := context.Background()

	if _, err := notes.Add(ctx, "u1", "d1", 1, " \t", nil); err == nil {
		t.Error("blank note accepted")
	}
	n, err := notes.Add(ctx, "u1", "d1", 2, "Check figure 3", []string{" review", "", "review", "fig "})
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"review", "fig"}; fmt.Sprint(n.Tags) != fmt.Sprint(want) {
		t.Errorf("tags = %q, want %q", n.Tags, want)
	}

	// Nil tags keep the current ones.
	n, err = notes.Update(ctx, "u1", n.ID, "Check figure 4", nil)
	if err != nil {
		t.Fatal(err)
	}
	if n.Text != "Check figure 4" || len(n.Tags) != 2 {
		t.Errorf("after update = %+v", n)
	}
	if _, err := notes.Update(ctx, "u2", n.ID, "hijack", nil); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("update as u2: err = %v, want ErrNotFound", err)
	}

	notes.Add(ctx, "u1", "d1", 3, "other page", nil)
	if onPage, _ := notes.List(ctx, "u1", "d1", 2); len(onPage) != 1 || onPage[0].ID != n.ID {
		t.Errorf("List(page 2) = %+v", onPage)
	}
	if all, _ := notes.List(ctx, "u1", "d1", 0); len(all) != 2 {
		t.Errorf("List(all) = %d notes, want 2", len(all))
	}

	if err := notes.Delete(ctx, "u1", n.ID); err != nil {
		t.Fatal(err)
	}
	if got := em.Count(service.EventNotesChanged); got != 4 {
		t.Errorf("notes:changed emitted %d times, want 4", got)
	}
}

func TestSearchRequiresQueryAndClampsLimit(t *testing.T) {
	marks, notes, _ := markServices(t)
	ctx := context.Background()

	if _, err := notes.Search(ctx, "u1", "  ", 0); err == nil {
		t.Error("empty note query accepted")
	}
	if _, err := marks.Search(ctx, "u1", "", 0); err == nil {
		t.Error("empty bookmark query accepted")
	}

	for i := 0; i < service.DefaultSearchLimit+5; i++ {
		if _, err := notes.Add(ctx, "u1", "d1", 1, fmt.Sprintf("memo %d", i), nil); err != nil {
			t.Fatal(err)
		}
	}
	if got, _ := notes.Search(ctx, "u1", "memo", 0); len(got) != service.DefaultSearchLimit {
		t.Errorf("default limit returned %d, want %d", len(got), service.DefaultSearchLimit)
	}
	if got, _ := notes.Search(ctx, "u1", "memo", 3); len(got) != 3 {
		t.Errorf("limit 3 returned %d", len(got))
	}
	if got, _ := notes.Search(ctx, "u1", "memo", 10_000); len(got) != service.DefaultSearchLimit+5 {
		t.Errorf("large limit returned %d, want every match", len(got))
	}
}
