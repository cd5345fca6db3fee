package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"annotate/internal/domain"
)

// LinkStore implements domain.LinkStore.
type LinkStore struct {
	db *DB
}

func NewLinkStore(db *DB) *LinkStore {
	return &LinkStore{db: db}
}

func (s *LinkStore) CreateLink(ctx context.Context, l *domain.ObjectLink) error {
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}
	var expires sql.NullTime
	if !l.Public {
		expires = sql.NullTime{Time: l.ExpiresAt.UTC(), Valid: true}
	}
	_, err := s.db.exec(ctx,
		`INSERT INTO object_links (token, object_key, is_public, expires_at, created_at) VALUES (?, ?, ?, ?, ?)`,
		l.Token, l.Key, boolInt(l.Public), expires, l.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create link: %w", err)
	}
	return nil
}

func (s *LinkStore) GetLink(ctx context.Context, token string) (*domain.ObjectLink, error) {
	l := &domain.ObjectLink{}
	var public int
	var expires sql.NullTime
	err := s.db.queryRow(ctx,
		`SELECT token, object_key, is_public, expires_at, created_at FROM object_links WHERE token = ?`, token,
	).Scan(&l.Token, &l.Key, &public, &expires, &l.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("link: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get link: %w", err)
	}
	l.Public = public != 0
	if expires.Valid {
		l.ExpiresAt = expires.Time
	}
	return l, nil
}

func (s *LinkStore) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.exec(ctx,
		`DELETE FROM object_links WHERE is_public = 0 AND expires_at <= ?`, now.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("purge links: %w", err)
	}
	return res.RowsAffected()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
