package service

import (
	"context"

	"annotate/internal/domain"
)

// PositionService remembers where each user left each document.
type PositionService struct {
	store domain.PositionStore
}

func NewPositionService(store domain.PositionStore) *PositionService {
	return &PositionService{store: store}
}

// Get returns the saved position, or page 1 at zoom 1 for a first visit.
func (s *PositionService) Get(ctx context.Context, userID, documentID string) (domain.ReadingPosition, error) {
	def := domain.ReadingPosition{UserID: userID, DocumentID: documentID, PageNumber: 1, Zoom: 1}
	if s == nil || s.store == nil {
		return def, nil
	}
	p, err := s.store.GetPosition(ctx, userID, documentID)
	if err != nil || p == nil {
		return def, err
	}
	if p.PageNumber < 1 {
		p.PageNumber = 1
	}
	if p.Zoom <= 0 {
		p.Zoom = 1
	}
	return *p, nil
}

func (s *PositionService) Save(ctx context.Context, userID, documentID string, page int, zoom float64) error {
	if s == nil || s.store == nil || documentID == "" || page < 1 {
		return nil
	}
	return s.store.SavePosition(ctx, &domain.ReadingPosition{
		UserID:     userID,
		DocumentID: documentID,
		PageNumber: page,
		Zoom:       zoom,
	})
}
