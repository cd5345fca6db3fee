package mcpserver

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerMarkTools() {
	// ── Bookmarks ──────────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("add_bookmark",
		mcp.WithDescription("Bookmark a page of the open document. Bookmarking a page again replaces its label."),
		mcp.WithNumber("page", mcp.Description("1-based page number (default: current page)")),
		mcp.WithString("label", mcp.Description("Optional label")),
	), s.handleAddBookmark)

	s.mcp.AddTool(mcp.NewTool("list_bookmarks",
		mcp.WithDescription("List bookmarks of a document in page order"),
		mcp.WithString("documentId", mcp.Description("Document ID (default: open document)")),
	), s.handleListBookmarks)

	s.mcp.AddTool(mcp.NewTool("remove_bookmark",
		mcp.WithDescription("Remove the bookmark on a page of the open document"),
		mcp.WithNumber("page", mcp.Description("1-based page number (default: current page)")),
	), s.handleRemoveBookmark)

	s.mcp.AddTool(mcp.NewTool("go_to_bookmark",
		mcp.WithDescription("Jump to a bookmarked page, found by label (case-insensitive substring) or page"),
		mcp.WithString("label", mcp.Description("Label to look for")),
		mcp.WithNumber("page", mcp.Description("Bookmarked page number")),
	), s.handleGoToBookmark)

	// ── Notes ──────────────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("add_note",
		mcp.WithDescription("Attach a note to a page of the open document"),
		mcp.WithString("text", mcp.Description("Note text"), mcp.Required()),
		mcp.WithNumber("page", mcp.Description("1-based page number (default: current page)")),
		mcp.WithString("tags", mcp.Description("Comma-separated tags")),
	), s.handleAddNote)

	s.mcp.AddTool(mcp.NewTool("list_notes",
		mcp.WithDescription("List notes of a document, newest first"),
		mcp.WithString("documentId", mcp.Description("Document ID (default: open document)")),
		mcp.WithNumber("page", mcp.Description("Only notes on this page")),
	), s.handleListNotes)

	s.mcp.AddTool(mcp.NewTool("update_note",
		mcp.WithDescription("Replace the text of a note, and optionally its tags"),
		mcp.WithString("noteId", mcp.Description("Note ID"), mcp.Required()),
		mcp.WithString("text", mcp.Description("New text"), mcp.Required()),
		mcp.WithString("tags", mcp.Description("Comma-separated tags (omit to keep)")),
	), s.handleUpdateNote)

	s.mcp.AddTool(mcp.NewTool("delete_note",
		mcp.WithDescription("Delete a note"),
		mcp.WithString("noteId", mcp.Description("Note ID"), mcp.Required()),
	), s.handleDeleteNote)

	// ── Search ─────────────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("search",
		mcp.WithDescription("Search notes (text and tags) or bookmark labels across all documents"),
		mcp.WithString("type", mcp.Description("notes or bookmarks"), mcp.Required()),
		mcp.WithString("query", mcp.Description("Text to look for"), mcp.Required()),
		mcp.WithNumber("limit", mcp.Description("Maximum results (default 20)")),
	), s.handleSearch)
}

// openDocument returns the ID of the loaded document.
func (s *Server) openDocument() (string, error) {
	id := s.engine.DocumentID()
	if id == "" {
		return "", fmt.Errorf("no stored document is open")
	}
	return id, nil
}

// documentArg returns the "documentId" argument, defaulting to the open document.
func (s *Server) documentArg(req mcp.CallToolRequest) (string, error) {
	if id := req.GetString("documentId", ""); id != "" {
		return id, nil
	}
	return s.openDocument()
}

// splitTags parses a comma-separated list. An empty string gives nil.
func splitTags(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	return strings.Split(raw, ",")
}

func (s *Server) handleAddBookmark(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	docID, err := s.openDocument()
	if err != nil {
		return nil, err
	}
	b, err := s.bookmarks.Add(ctx, s.userID, docID, s.pageArg(req), req.GetString("label", ""))
	if err != nil {
		return nil, err
	}
	return textResult(fmt.Sprintf("Bookmarked page %d", b.PageNumber)), nil
}

func (s *Server) handleListBookmarks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	docID, err := s.documentArg(req)
	if err != nil {
		return nil, err
	}
	marks, err := s.bookmarks.List(ctx, s.userID, docID)
	if err != nil {
		return nil, err
	}
	if len(marks) == 0 {
		return textResult("No bookmarks"), nil
	}
	return jsonResult(marks)
}

func (s *Server) handleRemoveBookmark(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	docID, err := s.openDocument()
	if err != nil {
		return nil, err
	}
	page := s.pageArg(req)
	if err := s.bookmarks.Remove(ctx, s.userID, docID, page); err != nil {
		return nil, err
	}
	return textResult(fmt.Sprintf("Removed bookmark on page %d", page)), nil
}

func (s *Server) handleGoToBookmark(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	docID, err := s.openDocument()
	if err != nil {
		return nil, err
	}
	marks, err := s.bookmarks.List(ctx, s.userID, docID)
	if err != nil {
		return nil, err
	}
	label := strings.ToLower(strings.TrimSpace(req.GetString("label", "")))
	page := req.GetInt("page", 0)
	if label == "" && page < 1 {
		return nil, fmt.Errorf("label or page is required")
	}

	target := 0
	for _, b := range marks {
		if (page > 0 && b.PageNumber == page) || (label != "" && strings.Contains(strings.ToLower(b.Label), label)) {
			target = b.PageNumber
			break
		}
	}
	if target == 0 {
		return textResult("No matching bookmark"), nil
	}
	if err := s.engine.GoToPage(ctx, target); err != nil {
		return nil, err
	}
	s.rememberPosition(ctx)
	return textResult(fmt.Sprintf("Page %d of %d", s.engine.CurrentPage(), s.engine.TotalPages())), nil
}

func (s *Server) handleAddNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	docID, err := s.openDocument()
	if err != nil {
		return nil, err
	}
	n, err := s.notes.Add(ctx, s.userID, docID, s.pageArg(req), req.GetString("text", ""), splitTags(req.GetString("tags", "")))
	if err != nil {
		return nil, err
	}
	return textResult(fmt.Sprintf("Added note %s on page %d", n.ID, n.PageNumber)), nil
}

func (s *Server) handleListNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	docID, err := s.documentArg(req)
	if err != nil {
		return nil, err
	}
	notes, err := s.notes.List(ctx, s.userID, docID, req.GetInt("page", 0))
	if err != nil {
		return nil, err
	}
	if len(notes) == 0 {
		return textResult("No notes"), nil
	}
	return jsonResult(notes)
}

func (s *Server) handleUpdateNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	n, err := s.notes.Update(ctx, s.userID, req.GetString("noteId", ""), req.GetString("text", ""), splitTags(req.GetString("tags", "")))
	if err != nil {
		return nil, err
	}
	return textResult(fmt.Sprintf("Updated note %s", n.ID)), nil
}

func (s *Server) handleDeleteNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("noteId", "")
	if err := s.notes.Delete(ctx, s.userID, id); err != nil {
		return nil, err
	}
	return textResult(fmt.Sprintf("Deleted note %s", id)), nil
}

func (s *Server) handleSearch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, limit := req.GetString("query", ""), req.GetInt("limit", 0)
	switch kind := req.GetString("type", ""); kind {
	case "notes":
		notes, err := s.notes.Search(ctx, s.userID, query, limit)
		if err != nil {
			return nil, err
		}
		return jsonResult(notes)
	case "bookmarks":
		marks, err := s.bookmarks.Search(ctx, s.userID, query, limit)
		if err != nil {
			return nil, err
		}
		return jsonResult(marks)
	default:
		return nil, fmt.Errorf("unknown search type %q, use notes or bookmarks", kind)
	}
}
