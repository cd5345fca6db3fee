package domain

import (
	"context"
	"time"
)

// ObjectLink is an issued link token for one object key. Public links have
// a zero ExpiresAt.
type ObjectLink struct {
	Token     string    `json:"token"`
	Key       string    `json:"key"`
	Public    bool      `json:"public"`
	ExpiresAt time.Time `json:"expiresAt"`
	CreatedAt time.Time `json:"createdAt"`
}

// Expired reports whether the link stopped working at now.
func (l *ObjectLink) Expired(now time.Time) bool {
	return !l.Public && !l.ExpiresAt.IsZero() && !now.Before(l.ExpiresAt)
}

type LinkStore interface {
	CreateLink(ctx context.Context, l *ObjectLink) error
	// GetLink returns ErrNotFound for unknown tokens.
	GetLink(ctx context.Context, token string) (*ObjectLink, error)
	// PurgeExpired deletes every signed link expired at now.
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}
