package service

import (
	"context"
	"fmt"
	"log"
	"path"
	"strings"

	"github.com/google/uuid"

	"annotate/internal/domain"
	"annotate/internal/pdfdoc"
)

// ─────────────────────────────────────────────────────────────
// Document Service: upload, listing and removal of documents
// ─────────────────────────────────────────────────────────────

// DocumentService owns the document lifecycle outside the engine: bytes go
// to the object store, metadata to the document store.
type DocumentService struct {
	docs    domain.DocumentStore
	objects domain.ObjectStore
	anns    domain.AnnotationStore
	lib     pdfdoc.Library
	emitter EventEmitter
}

func NewDocumentService(
	docs domain.DocumentStore,
	objects domain.ObjectStore,
	anns domain.AnnotationStore,
	lib pdfdoc.Library,
	emitter EventEmitter,
) *DocumentService {
	return &DocumentService{
		docs:    docs,
		objects: objects,
		anns:    anns,
		lib:     lib,
		emitter: emitter,
	}
}

// ── Upload ─────────────────────────────────────────────────

// Upload stores data under <user>/<filename>, counts its pages with the
// rendering library and creates the document record. Bytes that do not
// open as a document are rejected before anything is written.
func (s *DocumentService) Upload(ctx context.Context, userID, filename string, data []byte) (*domain.DocumentRecord, error) {
	if userID == "" {
		return nil, &domain.ValidationError{Field: "uploadedBy", Message: "user is required"}
	}
	name := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		return nil, &domain.ValidationError{Field: "filename", Message: "filename is required"}
	}
	if len(data) == 0 {
		return nil, &domain.ValidationError{Field: "data", Message: "document is empty"}
	}

	doc, err := s.lib.Open(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	pages := doc.NumPages()
	doc.Close()

	rec := &domain.DocumentRecord{
		ID:         uuid.NewString(),
		Filename:   name,
		TotalPages: pages,
		UploadedBy: userID,
		StorageKey: userID + "/" + name,
		SizeBytes:  int64(len(data)),
	}
	if err := s.objects.Upload(ctx, rec.StorageKey, data, "application/pdf"); err != nil {
		return nil, fmt.Errorf("upload %s: %w", name, err)
	}
	if err := s.docs.CreateDocument(ctx, rec); err != nil {
		if derr := s.objects.Delete(ctx, rec.StorageKey); derr != nil {
			log.Printf("document: cleanup %s: %v", rec.StorageKey, derr)
		}
		return nil, fmt.Errorf("create document: %w", err)
	}

	s.emitter.Emit(ctx, EventDocumentUploaded, rec)
	return rec, nil
}

// ── Queries ────────────────────────────────────────────────

func (s *DocumentService) Get(ctx context.Context, id string) (*domain.DocumentRecord, error) {
	return s.docs.GetDocument(ctx, id)
}

func (s *DocumentService) List(ctx context.Context, userID string) ([]domain.DocumentRecord, error) {
	return s.docs.ListDocuments(ctx, userID)
}

// Annotations returns every stored page of a document for userID.
func (s *DocumentService) Annotations(ctx context.Context, userID, documentID string) ([]domain.AnnotationRecord, error) {
	if s.anns == nil {
		return nil, nil
	}
	return s.anns.ListAnnotations(ctx, userID, documentID)
}

// ── Removal ────────────────────────────────────────────────

// Delete removes the record and then the stored bytes. A missing object is
// not an error.
func (s *DocumentService) Delete(ctx context.Context, id string) error {
	rec, err := s.docs.GetDocument(ctx, id)
	if err != nil {
		return err
	}
	if err := s.docs.DeleteDocument(ctx, id); err != nil {
		return err
	}
	if err := s.objects.Delete(ctx, rec.StorageKey); err != nil {
		log.Printf("document: delete object %s: %v", rec.StorageKey, err)
	}
	s.emitter.Emit(ctx, EventDocumentChanged, map[string]any{"documentId": id, "deleted": true})
	return nil
}
