package domain

import (
	"context"
	"time"
)

// ReadingPosition is where a user left a document.
type ReadingPosition struct {
	UserID     string    `json:"userId"`
	DocumentID string    `json:"documentId"`
	PageNumber int       `json:"pageNumber"`
	Zoom       float64   `json:"zoom"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

type PositionStore interface {
	GetPosition(ctx context.Context, userID, documentID string) (*ReadingPosition, error)
	SavePosition(ctx context.Context, p *ReadingPosition) error
}
