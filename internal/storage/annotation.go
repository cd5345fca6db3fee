package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"annotate/internal/domain"
)

// AnnotationStore implements domain.AnnotationStore. An upsert never
// replaces a stored record with a lower revision.
type AnnotationStore struct {
	db *DB
}

func NewAnnotationStore(db *DB) *AnnotationStore {
	return &AnnotationStore{db: db}
}

func (s *AnnotationStore) GetAnnotation(ctx context.Context, userID, documentID string, page int) (*domain.AnnotationRecord, error) {
	r := &domain.AnnotationRecord{}
	var data string
	err := s.db.queryRow(ctx,
		`SELECT user_id, document_id, page_number, revision, data, updated_at FROM annotations WHERE user_id = ? AND document_id = ? AND page_number = ?`,
		userID, documentID, page,
	).Scan(&r.UserID, &r.DocumentID, &r.PageNumber, &r.Revision, &data, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get annotation: %w", err)
	}
	r.Data = []byte(data)
	return r, nil
}

func (s *AnnotationStore) upsertSQL() string {
	const insert = `INSERT INTO annotations (user_id, document_id, page_number, revision, data, updated_at, schema_version) VALUES (?, ?, ?, ?, ?, ?, ?)`
	if s.db.dialect == MySQL {
		// Column assignments run left to right; revision goes last.
		return insert + ` ON DUPLICATE KEY UPDATE
			data = IF(revision <= VALUES(revision), VALUES(data), data),
			updated_at = IF(revision <= VALUES(revision), VALUES(updated_at), updated_at),
			schema_version = IF(revision <= VALUES(revision), VALUES(schema_version), schema_version),
			revision = GREATEST(revision, VALUES(revision))`
	}
	return insert + ` ON CONFLICT (user_id, document_id, page_number) DO UPDATE SET
			data = excluded.data,
			updated_at = excluded.updated_at,
			schema_version = excluded.schema_version,
			revision = excluded.revision
		WHERE annotations.revision <= excluded.revision`
}

func (s *AnnotationStore) UpsertAnnotation(ctx context.Context, r *domain.AnnotationRecord) error {
	if err := r.Validate(); err != nil {
		return err
	}
	r.UpdatedAt = time.Now().UTC()
	res, err := s.db.exec(ctx, s.upsertSQL(),
		r.UserID, r.DocumentID, r.PageNumber, r.Revision, string(r.Data), r.UpdatedAt, domain.SchemaVersion,
	)
	if err != nil {
		return fmt.Errorf("upsert annotation: %w", err)
	}
	// The guarded update touches no row when the stored revision is higher.
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("upsert annotation: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("upsert annotation page %d rev %d: %w", r.PageNumber, r.Revision, domain.ErrStaleRevision)
	}
	return nil
}

// ListAnnotations returns every stored page of a document in page order.
func (s *AnnotationStore) ListAnnotations(ctx context.Context, userID, documentID string) ([]domain.AnnotationRecord, error) {
	rows, err := s.db.query(ctx,
		`SELECT user_id, document_id, page_number, revision, data, updated_at FROM annotations WHERE user_id = ? AND document_id = ? ORDER BY page_number ASC`,
		userID, documentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []domain.AnnotationRecord
	for rows.Next() {
		var r domain.AnnotationRecord
		var data string
		if err := rows.Scan(&r.UserID, &r.DocumentID, &r.PageNumber, &r.Revision, &data, &r.UpdatedAt); err != nil {
			return nil, err
		}
		r.Data = []byte(data)
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

func (s *AnnotationStore) DeleteAnnotation(ctx context.Context, userID, documentID string, page int) error {
	_, err := s.db.exec(ctx,
		`DELETE FROM annotations WHERE user_id = ? AND document_id = ? AND page_number = ?`,
		userID, documentID, page,
	)
	if err != nil {
		return fmt.Errorf("delete annotation: %w", err)
	}
	return nil
}
