package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"annotate/internal/domain"
)

// PositionStore implements domain.PositionStore.
type PositionStore struct {
	db *DB
}

func NewPositionStore(db *DB) *PositionStore {
	return &PositionStore{db: db}
}

// GetPosition returns (nil, nil) when the user never opened the document.
func (s *PositionStore) GetPosition(ctx context.Context, userID, documentID string) (*domain.ReadingPosition, error) {
	p := &domain.ReadingPosition{}
	err := s.db.queryRow(ctx,
		`SELECT user_id, document_id, page_number, zoom, updated_at FROM reading_positions WHERE user_id = ? AND document_id = ?`,
		userID, documentID,
	).Scan(&p.UserID, &p.DocumentID, &p.PageNumber, &p.Zoom, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get position: %w", err)
	}
	return p, nil
}

func (s *PositionStore) SavePosition(ctx context.Context, p *domain.ReadingPosition) error {
	p.UpdatedAt = time.Now().UTC()
	q := `INSERT INTO reading_positions (user_id, document_id, page_number, zoom, updated_at) VALUES (?, ?, ?, ?, ?)`
	if s.db.dialect == MySQL {
		q += ` ON DUPLICATE KEY UPDATE page_number = VALUES(page_number), zoom = VALUES(zoom), updated_at = VALUES(updated_at)`
	} else {
		q += ` ON CONFLICT (user_id, document_id) DO UPDATE SET page_number = excluded.page_number, zoom = excluded.zoom, updated_at = excluded.updated_at`
	}
	if _, err := s.db.exec(ctx, q, p.UserID, p.DocumentID, p.PageNumber, p.Zoom, p.UpdatedAt); err != nil {
		return fmt.Errorf("save position: %w", err)
	}
	return nil
}
