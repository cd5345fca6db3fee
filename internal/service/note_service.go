package service

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"annotate/internal/domain"
)

// NoteService manages the notes users attach to pages.
type NoteService struct {
	store   domain.NoteStore
	docs    domain.DocumentStore
	emitter EventEmitter
}

func NewNoteService(store domain.NoteStore, docs domain.DocumentStore, emitter EventEmitter) *NoteService {
	if emitter == nil {
		emitter = LogEmitter{}
	}
	return &NoteService{store: store, docs: docs, emitter: emitter}
}

// normalizeTags trims tags and drops blanks and repeats.
func normalizeTags(tags []string) []string {
	return lo.Uniq(lo.Compact(lo.Map(tags, func(t string, _ int) string {
		return strings.TrimSpace(t)
	})))
}

func (s *NoteService) Add(ctx context.Context, userID, documentID string, page int, text string, tags []string) (*domain.Note, error) {
	if err := checkPage(ctx, s.docs, documentID, page); err != nil {
		return nil, err
	}
	n := &domain.Note{
		ID:         uuid.NewString(),
		UserID:     userID,
		DocumentID: documentID,
		PageNumber: page,
		Text:       strings.TrimSpace(text),
		Tags:       normalizeTags(tags),
	}
	if err := s.store.CreateNote(ctx, n); err != nil {
		return nil, err
	}
	s.changed(ctx, documentID)
	return n, nil
}

// Update replaces the text of a note. Nil tags keep the current tags.
func (s *NoteService) Update(ctx context.Context, userID, id, text string, tags []string) (*domain.Note, error) {
	n, err := s.store.GetNote(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	n.Text = strings.TrimSpace(text)
	if tags != nil {
		n.Tags = normalizeTags(tags)
	}
	if err := s.store.UpdateNote(ctx, n); err != nil {
		return nil, err
	}
	s.changed(ctx, n.DocumentID)
	return n, nil
}

func (s *NoteService) Delete(ctx context.Context, userID, id string) error {
	n, err := s.store.GetNote(ctx, userID, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteNote(ctx, userID, id); err != nil {
		return err
	}
	s.changed(ctx, n.DocumentID)
	return nil
}

// List returns the notes of a document, newest first. page > 0 keeps only
// the notes on that page.
func (s *NoteService) List(ctx context.Context, userID, documentID string, page int) ([]domain.Note, error) {
	notes, err := s.store.ListNotes(ctx, userID, documentID)
	if err != nil || page <= 0 {
		return notes, err
	}
	return lo.Filter(notes, func(n domain.Note, _ int) bool { return n.PageNumber == page }), nil
}

func (s *NoteService) Search(ctx context.Context, userID, query string, limit int) ([]domain.Note, error) {
	if strings.TrimSpace(query) == "" {
		return nil, &domain.ValidationError{Field: "q", Message: "query is required"}
	}
	return s.store.SearchNotes(ctx, userID, query, clampLimit(limit))
}

func (s *NoteService) changed(ctx context.Context, documentID string) {
	s.emitter.Emit(ctx, EventNotesChanged, map[string]any{"documentId": documentID})
}
