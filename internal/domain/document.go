package domain

import (
	"context"
	"time"
)

// DocumentRecord is the metadata row for one uploaded document.
// The document bytes live in the ObjectStore under StorageKey.
type DocumentRecord struct {
	ID         string    `json:"id"`
	Filename   string    `json:"filename"`
	TotalPages int       `json:"totalPages"`
	UploadedBy string    `json:"uploadedBy"`
	StorageKey string    `json:"storageKey"`
	SizeBytes  int64     `json:"sizeBytes"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Validate checks the record read back from a store before it is used.
func (d *DocumentRecord) Validate() error {
	if d.ID == "" {
		return &ValidationError{Field: "id", Message: "document ID is required"}
	}
	if d.StorageKey == "" {
		return &ValidationError{Field: "storageKey", Message: "storage key is required"}
	}
	if d.TotalPages < 0 {
		return &ValidationError{Field: "totalPages", Message: "page count cannot be negative"}
	}
	return nil
}

type DocumentStore interface {
	CreateDocument(ctx context.Context, d *DocumentRecord) error
	GetDocument(ctx context.Context, id string) (*DocumentRecord, error)
	ListDocuments(ctx context.Context, uploadedBy string) ([]DocumentRecord, error)
	DeleteDocument(ctx context.Context, id string) error
}

// ObjectStore holds document bytes and hands out links to them.
type ObjectStore interface {
	// SignedURL returns a link that stops working after ttl.
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
	// PublicURL returns a permanent link. Stores configured private-only
	// return ErrPublicLinksDisabled.
	PublicURL(ctx context.Context, key string) (string, error)
	Download(ctx context.Context, key string) ([]byte, error)
	Upload(ctx context.Context, key string, data []byte, contentType string) error
	Delete(ctx context.Context, key string) error
}
