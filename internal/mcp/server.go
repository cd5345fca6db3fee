package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"annotate/internal/domain"
	"annotate/internal/engine"
	"annotate/internal/service"
	"annotate/internal/source"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Server is the MCP server for the annotation engine.
// It exposes tools, resources, and prompts so AI agents can read and mark up documents.
type Server struct {
	mcp      *server.MCPServer
	emitter  EventEmitter
	approval *ApprovalQueue

	// Services (injected from app layer)
	engine    *engine.Engine
	documents *service.DocumentService
	positions *service.PositionService
	bookmarks *service.BookmarkService
	notes     *service.NoteService
	userID    string
}

// Deps holds all dependencies passed from the App layer to the MCP server.
type Deps struct {
	Emitter   EventEmitter
	Engine    *engine.Engine
	Documents *service.DocumentService
	Positions *service.PositionService
	Bookmarks *service.BookmarkService
	Notes     *service.NoteService
	UserID    string
	// When set, approvals go through the shared database (standalone mode)
	Approvals domain.ApprovalStore
}

// New creates and configures a new MCP server with all tools and resources.
func New(ctx context.Context, deps Deps) *Server {
	emitter := deps.Emitter
	if emitter == nil {
		emitter = service.LogEmitter{}
	}
	approval := NewApprovalQueue(ctx, emitter)
	if deps.Approvals != nil {
		approval.SetStore(deps.Approvals)
	}
	s := &Server{
		emitter:   emitter,
		approval:  approval,
		engine:    deps.Engine,
		documents: deps.Documents,
		positions: deps.Positions,
		bookmarks: deps.Bookmarks,
		notes:     deps.Notes,
		userID:    deps.UserID,
	}

	s.mcp = server.NewMCPServer(
		"annotate-mcp",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(true, false),
		server.WithPromptCapabilities(true),
	)

	s.registerDocumentTools()
	s.registerNavigationTools()
	s.registerDrawingTools()
	if s.bookmarks != nil && s.notes != nil {
		s.registerMarkTools()
	}
	s.registerResources()
	s.registerPrompts()

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	log.Println("[MCP] Starting stdio server...")
	return server.ServeStdio(s.mcp)
}

// HTTPHandler serves the MCP protocol over streamable HTTP for the serve command.
func (s *Server) HTTPHandler() http.Handler {
	return server.NewStreamableHTTPServer(s.mcp)
}

// Approve forwards a user approval to the approval queue.
func (s *Server) Approve(actionID string) {
	s.approval.Approve(actionID)
}

// Reject forwards a user rejection to the approval queue.
func (s *Server) Reject(actionID string) {
	s.approval.Reject(actionID)
}

// Pending lists in-process approvals still waiting for a decision.
func (s *Server) Pending() []PendingAction {
	return s.approval.Pending()
}

// ── Helpers ────────────────────────────────────────────────

// open loads src into the engine and moves to the reader's saved position.
func (s *Server) open(ctx context.Context, src source.Source) error {
	if err := s.engine.Load(ctx, src); err != nil {
		return err
	}
	docID := s.engine.DocumentID()
	pos, err := s.positions.Get(ctx, s.userID, docID)
	if err != nil {
		log.Printf("[MCP] reading position for %s: %v", docID, err)
		return nil
	}
	if pos.Zoom != 1 {
		if err := s.engine.SetZoom(ctx, pos.Zoom); err != nil {
			return err
		}
	}
	if pos.PageNumber > 1 {
		return s.engine.GoToPage(ctx, pos.PageNumber)
	}
	return nil
}

// rememberPosition stores the current page and zoom. Failures are logged;
// a lost reading position is not worth failing a tool call.
func (s *Server) rememberPosition(ctx context.Context) {
	docID := s.engine.DocumentID()
	if docID == "" {
		return
	}
	if err := s.positions.Save(ctx, s.userID, docID, s.engine.CurrentPage(), s.engine.Zoom()); err != nil {
		log.Printf("[MCP] save position for %s: %v", docID, err)
	}
}

// pageArg returns the "page" argument, defaulting to the current page.
func (s *Server) pageArg(req mcp.CallToolRequest) int {
	if n := req.GetInt("page", 0); n > 0 {
		return n
	}
	return s.engine.CurrentPage()
}

func (s *Server) emitAnnotationsChanged(ctx context.Context, page int) {
	s.emitter.Emit(ctx, "mcp:annotations-changed", map[string]any{
		"documentId": s.engine.DocumentID(),
		"page":       page,
	})
}

// textResult creates a simple text tool result.
func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

// jsonResult serializes v to JSON and wraps it in a text tool result.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return textResult(string(data)), nil
}

func boolPtr(v bool) *bool { return &v }
