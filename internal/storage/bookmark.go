package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"annotate/internal/domain"
)

// BookmarkStore implements domain.BookmarkStore.
type BookmarkStore struct {
	db *DB
}

func NewBookmarkStore(db *DB) *BookmarkStore {
	return &BookmarkStore{db: db}
}

func (s *BookmarkStore) AddBookmark(ctx context.Context, b *domain.Bookmark) error {
	if err := b.Validate(); err != nil {
		return err
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	q := `INSERT INTO bookmarks (id, user_id, document_id, page_number, label, created_at) VALUES (?, ?, ?, ?, ?, ?)`
	if s.db.dialect == MySQL {
		q += ` ON DUPLICATE KEY UPDATE label = VALUES(label)`
	} else {
		q += ` ON CONFLICT (user_id, document_id, page_number) DO UPDATE SET label = excluded.label`
	}
	if _, err := s.db.exec(ctx, q, b.ID, b.UserID, b.DocumentID, b.PageNumber, b.Label, b.CreatedAt); err != nil {
		return fmt.Errorf("add bookmark: %w", err)
	}
	// An existing bookmark keeps its ID and creation time.
	err := s.db.queryRow(ctx,
		`SELECT id, created_at FROM bookmarks WHERE user_id = ? AND document_id = ? AND page_number = ?`,
		b.UserID, b.DocumentID, b.PageNumber,
	).Scan(&b.ID, &b.CreatedAt)
	if err != nil {
		return fmt.Errorf("add bookmark: %w", err)
	}
	return nil
}

// ListBookmarks returns the bookmarks of a document in page order.
func (s *BookmarkStore) ListBookmarks(ctx context.Context, userID, documentID string) ([]domain.Bookmark, error) {
	return s.list(ctx,
		`SELECT id, user_id, document_id, page_number, label, created_at FROM bookmarks WHERE user_id = ? AND document_id = ? ORDER BY page_number ASC`,
		userID, documentID,
	)
}

func (s *BookmarkStore) RemoveBookmark(ctx context.Context, userID, documentID string, page int) error {
	res, err := s.db.exec(ctx,
		`DELETE FROM bookmarks WHERE user_id = ? AND document_id = ? AND page_number = ?`,
		userID, documentID, page,
	)
	if err != nil {
		return fmt.Errorf("remove bookmark: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("bookmark on page %d: %w", page, domain.ErrNotFound)
	}
	return nil
}

func (s *BookmarkStore) SearchBookmarks(ctx context.Context, userID, query string, limit int) ([]domain.Bookmark, error) {
	return s.list(ctx,
		`SELECT id, user_id, document_id, page_number, label, created_at FROM bookmarks
		WHERE user_id = ? AND LOWER(label) LIKE ? ESCAPE '!'
		ORDER BY created_at DESC LIMIT ?`,
		userID, likePattern(query), limit,
	)
}

func (s *BookmarkStore) list(ctx context.Context, q string, args ...any) ([]domain.Bookmark, error) {
	rows, err := s.db.query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list bookmarks: %w", err)
	}
	defer rows.Close()

	var out []domain.Bookmark
	for rows.Next() {
		var b domain.Bookmark
		if err := rows.Scan(&b.ID, &b.UserID, &b.DocumentID, &b.PageNumber, &b.Label, &b.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// likePattern turns a search query into a case-insensitive substring
// pattern with '!' as the escape character.
func likePattern(query string) string {
	r := strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")
	return "%" + r.Replace(strings.ToLower(strings.TrimSpace(query))) + "%"
}
