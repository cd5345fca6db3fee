package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"annotate/internal/domain"
)

// Search limits shared by bookmark and note search.
const (
	DefaultSearchLimit = 20
	MaxSearchLimit     = 100
)

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultSearchLimit
	}
	return min(limit, MaxSearchLimit)
}

// checkPage verifies that page exists in the document.
func checkPage(ctx context.Context, docs domain.DocumentStore, documentID string, page int) error {
	if docs == nil {
		return nil
	}
	doc, err := docs.GetDocument(ctx, documentID)
	if err != nil {
		return err
	}
	if page < 1 || (doc.TotalPages > 0 && page > doc.TotalPages) {
		return &domain.ValidationError{
			Field:   "pageNumber",
			Message: fmt.Sprintf("page %d outside 1..%d", page, doc.TotalPages),
		}
	}
	return nil
}

// BookmarkService keeps one bookmark per user and page.
type BookmarkService struct {
	store   domain.BookmarkStore
	docs    domain.DocumentStore
	emitter EventEmitter
}

func NewBookmarkService(store domain.BookmarkStore, docs domain.DocumentStore, emitter EventEmitter) *BookmarkService {
	if emitter == nil {
		emitter = LogEmitter{}
	}
	return &BookmarkService{store: store, docs: docs, emitter: emitter}
}

// Add bookmarks page. Bookmarking a page again replaces its label.
func (s *BookmarkService) Add(ctx context.Context, userID, documentID string, page int, label string) (*domain.Bookmark, error) {
	if err := checkPage(ctx, s.docs, documentID, page); err != nil {
		return nil, err
	}
	b := &domain.Bookmark{
		ID:         uuid.NewString(),
		UserID:     userID,
		DocumentID: documentID,
		PageNumber: page,
		Label:      strings.TrimSpace(label),
	}
	if err := s.store.AddBookmark(ctx, b); err != nil {
		return nil, err
	}
	s.changed(ctx, documentID)
	return b, nil
}

func (s *BookmarkService) List(ctx context.Context, userID, documentID string) ([]domain.Bookmark, error) {
	return s.store.ListBookmarks(ctx, userID, documentID)
}

func (s *BookmarkService) Remove(ctx context.Context, userID, documentID string, page int) error {
	if err := s.store.RemoveBookmark(ctx, userID, documentID, page); err != nil {
		return err
	}
	s.changed(ctx, documentID)
	return nil
}

// Find returns the bookmark on page, or nil when the page is not bookmarked.
func (s *BookmarkService) Find(ctx context.Context, userID, documentID string, page int) (*domain.Bookmark, error) {
	all, err := s.store.ListBookmarks(ctx, userID, documentID)
	if err != nil {
		return nil, err
	}
	for i := range all {
		if all[i].PageNumber == page {
			return &all[i], nil
		}
	}
	return nil, nil
}

func (s *BookmarkService) Search(ctx context.Context, userID, query string, limit int) ([]domain.Bookmark, error) {
	if strings.TrimSpace(query) == "" {
		return nil, &domain.ValidationError{Field: "q", Message: "query is required"}
	}
	return s.store.SearchBookmarks(ctx, userID, query, clampLimit(limit))
}

func (s *BookmarkService) changed(ctx context.Context, documentID string) {
	s.emitter.Emit(ctx, EventBookmarksChanged, map[string]any{"documentId": documentID})
}
