package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerResources() {
	// ── annotate://documents ───────────────────────────
	s.mcp.AddResource(mcp.NewResource(
		"annotate://documents",
		"Uploaded Documents",
		mcp.WithMIMEType("application/json"),
	), s.handleDocumentsResource)

	// ── annotate://document/{documentId}/annotations ───
	s.mcp.AddResourceTemplate(
		mcp.NewResourceTemplate(
			"annotate://document/{documentId}/annotations",
			"Saved Annotations of a Document",
		),
		s.handleAnnotationsResource,
	)
}

func (s *Server) handleDocumentsResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	docs, err := s.documents.List(ctx, s.userID)
	if err != nil {
		return nil, err
	}

	type documentSummary struct {
		ID       string `json:"id"`
		Filename string `json:"filename"`
		Pages    int    `json:"pages"`
	}

	summaries := make([]documentSummary, 0, len(docs))
	for _, d := range docs {
		summaries = append(summaries, documentSummary{ID: d.ID, Filename: d.Filename, Pages: d.TotalPages})
	}

	data, _ := json.MarshalIndent(summaries, "", "  ")
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "annotate://documents",
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func (s *Server) handleAnnotationsResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	uri := req.Params.URI
	docID := documentIDFromURI(uri)
	if docID == "" {
		return nil, fmt.Errorf("could not extract documentId from URI: %s", uri)
	}

	records, err := s.documents.Annotations(ctx, s.userID, docID)
	if err != nil {
		return nil, err
	}

	type pageAnnotations struct {
		Page     int             `json:"page"`
		Revision int64           `json:"revision"`
		Objects  []objectSummary `json:"objects"`
	}

	pages := make([]pageAnnotations, 0, len(records))
	for _, r := range records {
		state, err := r.State()
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", r.PageNumber, err)
		}
		pages = append(pages, pageAnnotations{
			Page:     r.PageNumber,
			Revision: r.Revision,
			Objects:  summarizeObjects(state.Objects),
		})
	}

	data, _ := json.MarshalIndent(pages, "", "  ")
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

// documentIDFromURI extracts the ID from "annotate://document/{id}/annotations".
func documentIDFromURI(uri string) string {
	rest, ok := strings.CutPrefix(uri, "annotate://document/")
	if !ok {
		return ""
	}
	id, ok := strings.CutSuffix(rest, "/annotations")
	if !ok || strings.Contains(id, "/") {
		return ""
	}
	return id
}
