package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"annotate/internal/domain"
)

// NoteStore implements domain.NoteStore. Tags are stored as a JSON array.
type NoteStore struct {
	db *DB
}

func NewNoteStore(db *DB) *NoteStore {
	return &NoteStore{db: db}
}

const noteColumns = `id, user_id, document_id, page_number, text, tags, created_at, updated_at`

func (s *NoteStore) CreateNote(ctx context.Context, n *domain.Note) error {
	if err := n.Validate(); err != nil {
		return err
	}
	now := time.Now().UTC()
	if n.CreatedAt.IsZero() {
		n.CreatedAt = now
	}
	n.UpdatedAt = n.CreatedAt
	tags, err := encodeTags(n.Tags)
	if err != nil {
		return err
	}
	_, err = s.db.exec(ctx,
		`INSERT INTO notes (`+noteColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.UserID, n.DocumentID, n.PageNumber, n.Text, tags, n.CreatedAt, n.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create note: %w", err)
	}
	return nil
}

func (s *NoteStore) GetNote(ctx context.Context, userID, id string) (*domain.Note, error) {
	n, err := scanNote(s.db.queryRow(ctx,
		`SELECT `+noteColumns+` FROM notes WHERE id = ? AND user_id = ?`, id, userID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("note %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get note: %w", err)
	}
	return n, nil
}

// UpdateNote replaces the text and tags of n.
func (s *NoteStore) UpdateNote(ctx context.Context, n *domain.Note) error {
	if err := n.Validate(); err != nil {
		return err
	}
	n.UpdatedAt = time.Now().UTC()
	tags, err := encodeTags(n.Tags)
	if err != nil {
		return err
	}
	res, err := s.db.exec(ctx,
		`UPDATE notes SET text = ?, tags = ?, updated_at = ? WHERE id = ? AND user_id = ?`,
		n.Text, tags, n.UpdatedAt, n.ID, n.UserID,
	)
	if err != nil {
		return fmt.Errorf("update note: %w", err)
	}
	if c, _ := res.RowsAffected(); c == 0 {
		return fmt.Errorf("note %s: %w", n.ID, domain.ErrNotFound)
	}
	return nil
}

func (s *NoteStore) DeleteNote(ctx context.Context, userID, id string) error {
	res, err := s.db.exec(ctx, `DELETE FROM notes WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete note: %w", err)
	}
	if c, _ := res.RowsAffected(); c == 0 {
		return fmt.Errorf("note %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (s *NoteStore) ListNotes(ctx context.Context, userID, documentID string) ([]domain.Note, error) {
	return s.list(ctx,
		`SELECT `+noteColumns+` FROM notes WHERE user_id = ? AND document_id = ? ORDER BY created_at DESC`,
		userID, documentID,
	)
}

func (s *NoteStore) SearchNotes(ctx context.Context, userID, query string, limit int) ([]domain.Note, error) {
	pattern := likePattern(query)
	return s.list(ctx,
		`SELECT `+noteColumns+` FROM notes
		WHERE user_id = ? AND (LOWER(text) LIKE ? ESCAPE '!' OR LOWER(tags) LIKE ? ESCAPE '!')
		ORDER BY created_at DESC LIMIT ?`,
		userID, pattern, pattern, limit,
	)
}

func (s *NoteStore) list(ctx context.Context, q string, args ...any) ([]domain.Note, error) {
	rows, err := s.db.query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	defer rows.Close()

	var out []domain.Note
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *n)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanNote(row scanner) (*domain.Note, error) {
	var n domain.Note
	var tags string
	if err := row.Scan(&n.ID, &n.UserID, &n.DocumentID, &n.PageNumber, &n.Text, &tags, &n.CreatedAt, &n.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(tags), &n.Tags); err != nil {
		return nil, fmt.Errorf("note %s tags: %w", n.ID, err)
	}
	return &n, nil
}

func encodeTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	data, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("encode tags: %w", err)
	}
	return string(data), nil
}
