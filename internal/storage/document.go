package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"annotate/internal/domain"
)

// DocumentStore implements domain.DocumentStore.
type DocumentStore struct {
	db *DB
}

func NewDocumentStore(db *DB) *DocumentStore {
	return &DocumentStore{db: db}
}

func (s *DocumentStore) CreateDocument(ctx context.Context, d *domain.DocumentRecord) error {
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.exec(ctx,
		`INSERT INTO documents (id, filename, total_pages, uploaded_by, storage_key, size_bytes, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.Filename, d.TotalPages, d.UploadedBy, d.StorageKey, d.SizeBytes, d.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create document: %w", err)
	}
	return nil
}

func (s *DocumentStore) GetDocument(ctx context.Context, id string) (*domain.DocumentRecord, error) {
	d := &domain.DocumentRecord{}
	err := s.db.queryRow(ctx,
		`SELECT id, filename, total_pages, uploaded_by, storage_key, size_bytes, created_at FROM documents WHERE id = ?`, id,
	).Scan(&d.ID, &d.Filename, &d.TotalPages, &d.UploadedBy, &d.StorageKey, &d.SizeBytes, &d.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get document %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	return d, nil
}

// ListDocuments returns the documents uploaded by uploadedBy, newest first.
// An empty uploadedBy lists every document.
func (s *DocumentStore) ListDocuments(ctx context.Context, uploadedBy string) ([]domain.DocumentRecord, error) {
	q := `SELECT id, filename, total_pages, uploaded_by, storage_key, size_bytes, created_at FROM documents`
	var args []any
	if uploadedBy != "" {
		q += ` WHERE uploaded_by = ?`
		args = append(args, uploadedBy)
	}
	rows, err := s.db.query(ctx, q+` ORDER BY created_at DESC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []domain.DocumentRecord
	for rows.Next() {
		var d domain.DocumentRecord
		if err := rows.Scan(&d.ID, &d.Filename, &d.TotalPages, &d.UploadedBy, &d.StorageKey, &d.SizeBytes, &d.CreatedAt); err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// DeleteDocument removes the record together with its annotations,
// reading positions, bookmarks and notes.
func (s *DocumentStore) DeleteDocument(ctx context.Context, id string) error {
	tx, err := s.db.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, q := range []string{
		`DELETE FROM annotations WHERE document_id = ?`,
		`DELETE FROM reading_positions WHERE document_id = ?`,
		`DELETE FROM bookmarks WHERE document_id = ?`,
		`DELETE FROM notes WHERE document_id = ?`,
		`DELETE FROM documents WHERE id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, s.db.rebind(q), id); err != nil {
			return fmt.Errorf("delete document: %w", err)
		}
	}
	return tx.Commit()
}
