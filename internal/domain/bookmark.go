package domain

import (
	"context"
	"strings"
	"time"
)

// Bookmark marks one page of a document for a user. A page carries at most
// one bookmark per user.
type Bookmark struct {
	ID         string    `json:"id"`
	UserID     string    `json:"userId"`
	DocumentID string    `json:"documentId"`
	PageNumber int       `json:"pageNumber"`
	Label      string    `json:"label,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

func (b *Bookmark) Validate() error {
	if b.DocumentID == "" {
		return &ValidationError{Field: "documentId", Message: "document ID is required"}
	}
	if b.PageNumber < 1 {
		return &ValidationError{Field: "pageNumber", Message: "page number must be at least 1"}
	}
	return nil
}

// Note is free text a user attached to a page.
type Note struct {
	ID         string    `json:"id"`
	UserID     string    `json:"userId"`
	DocumentID string    `json:"documentId"`
	PageNumber int       `json:"pageNumber"`
	Text       string    `json:"text"`
	Tags       []string  `json:"tags"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

func (n *Note) Validate() error {
	if n.DocumentID == "" {
		return &ValidationError{Field: "documentId", Message: "document ID is required"}
	}
	if n.PageNumber < 1 {
		return &ValidationError{Field: "pageNumber", Message: "page number must be at least 1"}
	}
	if strings.TrimSpace(n.Text) == "" {
		return &ValidationError{Field: "text", Message: "note text cannot be empty"}
	}
	return nil
}

// BookmarkStore persists bookmarks. AddBookmark on a page that is already
// bookmarked replaces the label and keeps the original ID.
type BookmarkStore interface {
	AddBookmark(ctx context.Context, b *Bookmark) error
	ListBookmarks(ctx context.Context, userID, documentID string) ([]Bookmark, error)
	RemoveBookmark(ctx context.Context, userID, documentID string, page int) error
	// SearchBookmarks matches query against labels, case-insensitively,
	// across every document of the user.
	SearchBookmarks(ctx context.Context, userID, query string, limit int) ([]Bookmark, error)
}

// NoteStore persists notes. Update and delete are scoped to the owner and
// return ErrNotFound for someone else's note.
type NoteStore interface {
	CreateNote(ctx context.Context, n *Note) error
	GetNote(ctx context.Context, userID, id string) (*Note, error)
	UpdateNote(ctx context.Context, n *Note) error
	DeleteNote(ctx context.Context, userID, id string) error
	// ListNotes returns the notes of a document, newest first.
	ListNotes(ctx context.Context, userID, documentID string) ([]Note, error)
	// SearchNotes matches query against note text and tags,
	// case-insensitively, newest first.
	SearchNotes(ctx context.Context, userID, query string, limit int) ([]Note, error)
}
