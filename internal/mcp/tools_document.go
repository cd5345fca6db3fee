package mcpserver

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"annotate/internal/source"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerDocumentTools() {
	// ── list_documents ─────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("list_documents",
		mcp.WithDescription("List the documents uploaded by the current user, newest first"),
	), s.handleListDocuments)

	// ── upload_document ────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("upload_document",
		mcp.WithDescription("Upload a PDF from the local filesystem into the document store"),
		mcp.WithString("path",
			mcp.Description("Path of the PDF file to upload"),
			mcp.Required(),
		),
	), s.handleUploadDocument)

	// ── open_document ──────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("open_document",
		mcp.WithDescription("Open a document in the viewer. Pass exactly one of documentId, path or url. Stored documents reopen at the saved reading position."),
		mcp.WithString("documentId", mcp.Description("ID of an uploaded document")),
		mcp.WithString("path", mcp.Description("Local PDF path")),
		mcp.WithString("url", mcp.Description("HTTP(S) URL of a PDF")),
	), s.handleOpenDocument)

	// ── document_state ─────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("document_state",
		mcp.WithDescription("Describe the open document: current page, total pages, zoom, active tool and rendered pages"),
	), s.handleDocumentState)

	// ── export_page ────────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("export_page",
		mcp.WithDescription("Write a PNG of a page with its annotations composited on top"),
		mcp.WithNumber("page", mcp.Description("Page number (defaults to the current page)")),
		mcp.WithString("path", mcp.Description("Output PNG path"), mcp.Required()),
		mcp.WithNumber("maxWidth", mcp.Description("Scale the image down to at most this many pixels wide (0 keeps the rendered size)")),
	), s.handleExportPage)

	// ── delete_document ────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("delete_document",
		mcp.WithDescription("🛑 DESTRUCTIVE: Delete an uploaded document with all of its annotations. Requires user approval."),
		mcp.WithString("documentId", mcp.Description("ID of the document"), mcp.Required()),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{DestructiveHint: boolPtr(true)}),
	), s.handleDeleteDocument)
}

func (s *Server) handleListDocuments(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	docs, err := s.documents.List(ctx, s.userID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return jsonResult(docs)
}

func (s *Server) handleUploadDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path := req.GetString("path", "")
	if path == "" {
		return nil, fmt.Errorf("path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	rec, err := s.documents.Upload(ctx, s.userID, filepath.Base(path), data)
	if err != nil {
		return nil, err
	}
	return jsonResult(rec)
}

func (s *Server) handleOpenDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	src := source.Source{
		DocumentID: req.GetString("documentId", ""),
		Path:       req.GetString("path", ""),
		URL:        req.GetString("url", ""),
	}
	if err := s.open(ctx, src); err != nil {
		return nil, err
	}
	return s.handleDocumentState(ctx, req)
}

type documentState struct {
	DocumentID  string  `json:"documentId"`
	State       string  `json:"state"`
	CurrentPage int     `json:"currentPage"`
	TotalPages  int     `json:"totalPages"`
	Zoom        float64 `json:"zoom"`
	Tool        any     `json:"tool"`
	LivePages   []int   `json:"livePages"`
}

func (s *Server) handleDocumentState(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(documentState{
		DocumentID:  s.engine.DocumentID(),
		State:       s.engine.State().String(),
		CurrentPage: s.engine.CurrentPage(),
		TotalPages:  s.engine.TotalPages(),
		Zoom:        s.engine.Zoom(),
		Tool:        s.engine.Tool(),
		LivePages:   s.engine.LivePages(),
	})
}

func (s *Server) handleExportPage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path := req.GetString("path", "")
	if path == "" {
		return nil, fmt.Errorf("path is required")
	}
	page := s.pageArg(req)

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}
	if err := s.engine.ExportPage(ctx, page, f, req.GetInt("maxWidth", 0)); err != nil {
		f.Close()
		os.Remove(path)
		return nil, err
	}
	if err := f.Close(); err != nil {
		return nil, err
	}
	return textResult(fmt.Sprintf("Page %d exported to %s", page, path)), nil
}

func (s *Server) handleDeleteDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("documentId", "")
	if id == "" {
		return nil, fmt.Errorf("documentId is required")
	}
	rec, err := s.documents.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	meta := fmt.Sprintf(`{"documentId":%q}`, rec.ID)
	approved, err := s.approval.Request("delete_document",
		fmt.Sprintf("Delete %s (%d pages) and its annotations", rec.Filename, rec.TotalPages), meta)
	if err != nil || !approved {
		return textResult("Action rejected by user"), nil
	}

	if err := s.documents.Delete(ctx, id); err != nil {
		return nil, fmt.Errorf("delete document: %w", err)
	}
	return textResult(fmt.Sprintf("Document %s deleted", id)), nil
}
