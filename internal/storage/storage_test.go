package storage_test

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"annotate/internal/domain"
	"annotate/internal/storage"
)

func openDB(t *testing.T) *storage.DB {
	t.Helper()
	db, err := storage.OpenSQLite(filepath.Join(t.TempDir(), "annotate.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func state(t *testing.T, ids ...string) json.RawMessage {
	t.Helper()
	s := domain.AnnotationState{Version: domain.SchemaVersion}
	for _, id := range ids {
		s.Objects = append(s.Objects, domain.Object{ID: id, Kind: domain.ObjectRect, Width: 10, Height: 10})
	}
	data, err := json.Marshal(s)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

// ─── Migrations ──────────────────────────────────────────────

func TestMigrationsAreRerunnable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "annotate.db")
	for i := 0; i < 2; i++ {
		db, err := storage.OpenSQLite(path)
		if err != nil {
			t.Fatalf("open #%d: %v", i+1, err)
		}
		db.Close()
	}
}

func TestParseDialect(t *testing.T) {
	for in, want := range map[string]storage.Dialect{
		"":           storage.SQLite,
		"sqlite":     storage.SQLite,
		"postgresql": storage.Postgres,
		"MySQL":      storage.MySQL,
	} {
		got, err := storage.ParseDialect(in)
		if err != nil || got != want {
			t.Errorf("ParseDialect(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := storage.ParseDialect("oracle"); err == nil {
		t.Error("expected error for unsupported driver")
	}
}

// ─── Documents ───────────────────────────────────────────────

func TestDocumentCRUD(t *testing.T) {
	db := openDB(t)
	docs := storage.NewDocumentStore(db)
	ctx := context.Background()

	older := &domain.DocumentRecord{
		ID: "d1", Filename: "a.pdf", TotalPages: 3, UploadedBy: "u1",
		StorageKey: "u1/a.pdf", SizeBytes: 100, CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	newer := &domain.DocumentRecord{
		ID: "d2", Filename: "b.pdf", TotalPages: 1, UploadedBy: "u1",
		StorageKey: "u1/b.pdf", CreatedAt: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
	}
	other := &domain.DocumentRecord{ID: "d3", Filename: "c.pdf", UploadedBy: "u2", StorageKey: "u2/c.pdf"}
	for _, d := range []*domain.DocumentRecord{older, newer, other} {
		if err := docs.CreateDocument(ctx, d); err != nil {
			t.Fatal(err)
		}
	}

	got, err := docs.GetDocument(ctx, "d1")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(older, got, cmpopts.EquateApproxTime(time.Second)); diff != "" {
		t.Errorf("GetDocument (-want +got):\n%s", diff)
	}

	list, err := docs.ListDocuments(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].ID != "d2" || list[1].ID != "d1" {
		t.Errorf("ListDocuments(u1) = %+v, want d2 then d1", list)
	}
	all, _ := docs.ListDocuments(ctx, "")
	if len(all) != 3 {
		t.Errorf("ListDocuments(\"\") = %d records, want 3", len(all))
	}

	if err := docs.DeleteDocument(ctx, "d1"); err != nil {
		t.Fatal(err)
	}
	if _, err := docs.GetDocument(ctx, "d1"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("GetDocument after delete: err = %v, want ErrNotFound", err)
	}
}

func TestDeleteDocumentCascades(t *testing.T) {
	db := openDB(t)
	docs := storage.NewDocumentStore(db)
	anns := storage.NewAnnotationStore(db)
	pos := storage.NewPositionStore(db)
	ctx := context.Background()

	docs.CreateDocument(ctx, &domain.DocumentRecord{ID: "d1", UploadedBy: "u1", StorageKey: "k"})
	anns.UpsertAnnotation(ctx, &domain.AnnotationRecord{UserID: "u1", DocumentID: "d1", PageNumber: 1, Revision: 1, Data: state(t, "a")})
	pos.SavePosition(ctx, &domain.ReadingPosition{UserID: "u1", DocumentID: "d1", PageNumber: 2, Zoom: 1})
	marks := storage.NewBookmarkStore(db)
	notes := storage.NewNoteStore(db)
	marks.AddBookmark(ctx, &domain.Bookmark{ID: "b1", UserID: "u1", DocumentID: "d1", PageNumber: 1})
	notes.CreateNote(ctx, &domain.Note{ID: "n1", UserID: "u1", DocumentID: "d1", PageNumber: 1, Text: "x"})

	if err := docs.DeleteDocument(ctx, "d1"); err != nil {
		t.Fatal(err)
	}
	if recs, _ := anns.ListAnnotations(ctx, "u1", "d1"); len(recs) != 0 {
		t.Errorf("annotations left after delete: %d", len(recs))
	}
	if p, _ := pos.GetPosition(ctx, "u1", "d1"); p != nil {
		t.Errorf("position left after delete: %+v", p)
	}
	if bs, _ := marks.ListBookmarks(ctx, "u1", "d1"); len(bs) != 0 {
		t.Errorf("bookmarks left after delete: %d", len(bs))
	}
	if ns, _ := notes.ListNotes(ctx, "u1", "d1"); len(ns) != 0 {
		t.Errorf("notes left after delete: %d", len(ns))
	}
}

// ─── Annotations ─────────────────────────────────────────────

func TestAnnotationUpsertKeepsHighestRevision(t *testing.T) {
	anns := storage.NewAnnotationStore(openDB(t))
	ctx := context.Background()

	if rec, err := anns.GetAnnotation(ctx, "u1", "d1", 1); rec != nil || err != nil {
		t.Fatalf("missing record = %+v, %v; want nil, nil", rec, err)
	}

	put := func(rev int64, ids ...string) {
		t.Helper()
		err := anns.UpsertAnnotation(ctx, &domain.AnnotationRecord{
			UserID: "u1", DocumentID: "d1", PageNumber: 1, Revision: rev, Data: state(t, ids...),
		})
		if err != nil {
			t.Fatalf("upsert rev %d: %v", rev, err)
		}
	}
	put(2, "a", "b")
	put(5, "a", "b", "c")
	err := anns.UpsertAnnotation(ctx, &domain.AnnotationRecord{
		UserID: "u1", DocumentID: "d1", PageNumber: 1, Revision: 3, Data: state(t, "stale"),
	})
	if !errors.Is(err, domain.ErrStaleRevision) {
		t.Fatalf("stale upsert err = %v, want ErrStaleRevision", err)
	}
	put(5, "a", "b", "c", "d")

	rec, err := anns.GetAnnotation(ctx, "u1", "d1", 1)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Revision != 5 {
		t.Errorf("revision = %d, want 5", rec.Revision)
	}
	st, err := rec.State()
	if err != nil {
		t.Fatal(err)
	}
	if len(st.Objects) != 4 {
		t.Errorf("objects = %d, want 4", len(st.Objects))
	}
}

func TestAnnotationValidation(t *testing.T) {
	anns := storage.NewAnnotationStore(openDB(t))
	err := anns.UpsertAnnotation(context.Background(), &domain.AnnotationRecord{UserID: "u1", DocumentID: "d1", PageNumber: 0, Data: state(t)})
	var verr *domain.ValidationError
	if !errors.As(err, &verr) || verr.Field != "pageNumber" {
		t.Errorf("err = %v, want ValidationError on pageNumber", err)
	}
}

func TestListAndDeleteAnnotations(t *testing.T) {
	anns := storage.NewAnnotationStore(openDB(t))
	ctx := context.Background()
	for _, page := range []int{3, 1, 2} {
		anns.UpsertAnnotation(ctx, &domain.AnnotationRecord{UserID: "u1", DocumentID: "d1", PageNumber: page, Revision: 1, Data: state(t, "x")})
	}
	anns.UpsertAnnotation(ctx, &domain.AnnotationRecord{UserID: "u2", DocumentID: "d1", PageNumber: 1, Revision: 1, Data: state(t, "y")})

	recs, err := anns.ListAnnotations(ctx, "u1", "d1")
	if err != nil {
		t.Fatal(err)
	}
	pages := make([]int, len(recs))
	for i, r := range recs {
		pages[i] = r.PageNumber
	}
	if diff := cmp.Diff([]int{1, 2, 3}, pages); diff != "" {
		t.Errorf("pages (-want +got):\n%s", diff)
	}

	if err := anns.DeleteAnnotation(ctx, "u1", "d1", 2); err != nil {
		t.Fatal(err)
	}
	if rec, _ := anns.GetAnnotation(ctx, "u1", "d1", 2); rec != nil {
		t.Error("page 2 still stored after delete")
	}
	if rec, _ := anns.GetAnnotation(ctx, "u2", "d1", 1); rec == nil {
		t.Error("other user's record removed")
	}
}

// ─── Positions & links ───────────────────────────────────────

func TestPositionUpsert(t *testing.T) {
	pos := storage.NewPositionStore(openDB(t))
	ctx := context.Background()

	pos.SavePosition(ctx, &domain.ReadingPosition{UserID: "u1", DocumentID: "d1", PageNumber: 2, Zoom: 1.25})
	pos.SavePosition(ctx, &domain.ReadingPosition{UserID: "u1", DocumentID: "d1", PageNumber: 7, Zoom: 0.8})

	p, err := pos.GetPosition(ctx, "u1", "d1")
	if err != nil {
		t.Fatal(err)
	}
	if p.PageNumber != 7 || p.Zoom != 0.8 {
		t.Errorf("position = %+v, want page 7 zoom 0.8", p)
	}
}

func TestLinkExpiryAndPurge(t *testing.T) {
	links := storage.NewLinkStore(openDB(t))
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	links.CreateLink(ctx, &domain.ObjectLink{Token: "old", Key: "k1", ExpiresAt: now.Add(-time.Hour)})
	links.CreateLink(ctx, &domain.ObjectLink{Token: "fresh", Key: "k2", ExpiresAt: now.Add(time.Hour)})
	links.CreateLink(ctx, &domain.ObjectLink{Token: "pub", Key: "k3", Public: true})

	l, err := links.GetLink(ctx, "fresh")
	if err != nil {
		t.Fatal(err)
	}
	if l.Key != "k2" || l.Expired(now) {
		t.Errorf("fresh link = %+v", l)
	}

	n, err := links.PurgeExpired(ctx, now)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("purged %d links, want 1", n)
	}
	if _, err := links.GetLink(ctx, "old"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expired link still present: %v", err)
	}
	pub, err := links.GetLink(ctx, "pub")
	if err != nil || !pub.Public || pub.Expired(now.Add(1000*time.Hour)) {
		t.Errorf("public link = %+v, %v", pub, err)
	}
}

// ─── Bookmarks & notes ───────────────────────────────────────

func TestBookmarkUpsertListRemove(t *testing.T) {
	marks := storage.NewBookmarkStore(openDB(t))
	ctx := context.Background()

	first := &domain.Bookmark{ID: "b1", UserID: "u1", DocumentID: "d1", PageNumber: 3, Label: "Intro"}
	if err := marks.AddBookmark(ctx, first); err != nil {
		t.Fatal(err)
	}
	marks.AddBookmark(ctx, &domain.Bookmark{ID: "b2", UserID: "u1", DocumentID: "d1", PageNumber: 1})
	again := &domain.Bookmark{ID: "b3", UserID: "u1", DocumentID: "d1", PageNumber: 3, Label: "Methods"}
	if err := marks.AddBookmark(ctx, again); err != nil {
		t.Fatal(err)
	}
	if again.ID != "b1" {
		t.Errorf("re-bookmarked page ID = %q, want b1", again.ID)
	}

	list, err := marks.ListBookmarks(ctx, "u1", "d1")
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].PageNumber != 1 || list[1].PageNumber != 3 || list[1].Label != "Methods" {
		t.Errorf("ListBookmarks = %+v", list)
	}
	if other, _ := marks.ListBookmarks(ctx, "u2", "d1"); len(other) != 0 {
		t.Errorf("u2 sees %d bookmarks", len(other))
	}

	if err := marks.RemoveBookmark(ctx, "u1", "d1", 1); err != nil {
		t.Fatal(err)
	}
	if err := marks.RemoveBookmark(ctx, "u1", "d1", 1); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("second remove: err = %v, want ErrNotFound", err)
	}
	if err := marks.AddBookmark(ctx, &domain.Bookmark{ID: "b4", DocumentID: "d1"}); err == nil {
		t.Error("bookmark on page 0 accepted")
	}
}

func TestBookmarkSearch(t *testing.T) {
	marks := storage.NewBookmarkStore(openDB(t))
	ctx := context.Background()
	marks.AddBookmark(ctx, &domain.Bookmark{ID: "b1", UserID: "u1", DocumentID: "d1", PageNumber: 1, Label: "Results table"})
	marks.AddBookmark(ctx, &domain.Bookmark{ID: "b2", UserID: "u1", DocumentID: "d2", PageNumber: 4, Label: "100% done"})
	marks.AddBookmark(ctx, &domain.Bookmark{ID: "b3", UserID: "u2", DocumentID: "d1", PageNumber: 1, Label: "results"})

	got, err := marks.SearchBookmarks(ctx, "u1", "RESULTS", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != "b1" {
		t.Errorf("search RESULTS = %+v, want b1 only", got)
	}
	// Wildcards in the query match literally.
	if got, _ := marks.SearchBookmarks(ctx, "u1", "0%", 10); len(got) != 1 || got[0].ID != "b2" {
		t.Errorf("search 0%% = %+v, want b2", got)
	}
	if got, _ := marks.SearchBookmarks(ctx, "u1", "_", 10); len(got) != 0 {
		t.Errorf("search _ = %+v, want none", got)
	}
}

func TestNoteCRUDScopedToOwner(t *testing.T) {
	notes := storage.NewNoteStore(openDB(t))
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	older := &domain.Note{ID: "n1", UserID: "u1", DocumentID: "d1", PageNumber: 2, Text: "first", Tags: []string{"todo"}, CreatedAt: base}
	newer := &domain.Note{ID: "n2", UserID: "u1", DocumentID: "d1", PageNumber: 5, Text: "second", CreatedAt: base.Add(time.Hour)}
	for _, n := range []*domain.Note{older, newer} {
		if err := notes.CreateNote(ctx, n); err != nil {
			t.Fatal(err)
		}
	}
	if err := notes.CreateNote(ctx, &domain.Note{ID: "n3", DocumentID: "d1", PageNumber: 1, Text: "  "}); err == nil {
		t.Error("blank note accepted")
	}

	got, err := notes.GetNote(ctx, "u1", "n1")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(older, got, cmpopts.EquateApproxTime(time.Second)); diff != "" {
		t.Errorf("GetNote (-want +got):\n%s", diff)
	}
	if _, err := notes.GetNote(ctx, "u2", "n1"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("GetNote as u2: err = %v, want ErrNotFound", err)
	}

	list, _ := notes.ListNotes(ctx, "u1", "d1")
	if len(list) != 2 || list[0].ID != "n2" || list[1].ID != "n1" {
		t.Errorf("ListNotes = %+v, want n2 then n1", list)
	}
	if list[0].Tags == nil || len(list[0].Tags) != 0 {
		t.Errorf("untagged note tags = %#v, want empty", list[0].Tags)
	}

	got.Text, got.Tags = "first, revised", []string{"done"}
	if err := notes.UpdateNote(ctx, got); err != nil {
		t.Fatal(err)
	}
	got.UserID = "u2"
	if err := notes.UpdateNote(ctx, got); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("UpdateNote as u2: err = %v, want ErrNotFound", err)
	}
	if n, _ := notes.GetNote(ctx, "u1", "n1"); n.Text != "first, revised" || !cmp.Equal(n.Tags, []string{"done"}) {
		t.Errorf("after update = %+v", n)
	}

	if err := notes.DeleteNote(ctx, "u2", "n1"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("DeleteNote as u2: err = %v, want ErrNotFound", err)
	}
	if err := notes.DeleteNote(ctx, "u1", "n1"); err != nil {
		t.Fatal(err)
	}
	if list, _ := notes.ListNotes(ctx, "u1", "d1"); len(list) != 1 {
		t.Errorf("%d notes after delete, want 1", len(list))
	}
}

func TestNoteSearchMatchesTextAndTags(t *testing.T) {
	notes := storage.NewNoteStore(openDB(t))
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	for i, n := range []domain.Note{
		{ID: "n1", UserID: "u1", DocumentID: "d1", PageNumber: 1, Text: "Check the Proof"},
		{ID: "n2", UserID: "u1", DocumentID: "d2", PageNumber: 1, Text: "unrelated", Tags: []string{"proof-reading"}},
		{ID: "n3", UserID: "u1", DocumentID: "d2", PageNumber: 2, Text: "nothing here"},
		{ID: "n4", UserID: "u2", DocumentID: "d1", PageNumber: 1, Text: "proof"},
	} {
		n.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		if err := notes.CreateNote(ctx, &n); err != nil {
			t.Fatal(err)
		}
	}

	got, err := notes.SearchNotes(ctx, "u1", "proof", 10)
	if err != nil {
		t.Fatal(err)
	}
	ids := make([]string, len(got))
	for i, n := range got {
		ids[i] = n.ID
	}
	if !cmp.Equal(ids, []string{"n2", "n1"}) {
		t.Errorf("search proof = %v, want [n2 n1]", ids)
	}
	if got, _ := notes.SearchNotes(ctx, "u1", "proof", 1); len(got) != 1 {
		t.Errorf("limit 1 returned %d notes", len(got))
	}
}

// ─── Approvals ───────────────────────────────────────────────

func TestApprovalLifecycle(t *testing.T) {
	approvals := storage.NewApprovalStore(openDB(t))
	ctx := context.Background()

	if err := approvals.CreateApproval(ctx, &domain.Approval{ID: "a1", Tool: "clear_page", Description: "clear page 2"}); err != nil {
		t.Fatal(err)
	}
	pending, err := approvals.ListPendingApprovals(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 || pending[0].Metadata != "{}" {
		t.Fatalf("pending = %+v", pending)
	}

	if err := approvals.ResolveApproval(ctx, "a1", true); err != nil {
		t.Fatal(err)
	}
	if status, _ := approvals.ApprovalStatus(ctx, "a1"); status != domain.ApprovalApproved {
		t.Errorf("status = %q", status)
	}
	if err := approvals.ResolveApproval(ctx, "a1", false); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("resolving twice: err = %v", err)
	}

	approvals.DeleteApproval(ctx, "a1")
	if _, err := approvals.ApprovalStatus(ctx, "a1"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("status after delete: %v", err)
	}
}
