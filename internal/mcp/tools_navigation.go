package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerNavigationTools() {
	// ── go_to_page ─────────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("go_to_page",
		mcp.WithDescription("Scroll the open document to a page. Out of range numbers are clamped."),
		mcp.WithNumber("page",
			mcp.Description("1-based page number"),
			mcp.Required(),
		),
	), s.handleGoToPage)

	// ── scroll_to ──────────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("scroll_to",
		mcp.WithDescription("Set the vertical scroll offset in logical pixels"),
		mcp.WithNumber("offset", mcp.Description("Scroll offset from the top of the document"), mcp.Required()),
	), s.handleScrollTo)

	// ── zoom ───────────────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("zoom",
		mcp.WithDescription("Change the zoom level. Action is one of in, out, reset or set (with value)."),
		mcp.WithString("action", mcp.Description("in, out, reset or set"), mcp.Required()),
		mcp.WithNumber("value", mcp.Description("Zoom level for set, between 0.25 and 3")),
	), s.handleZoom)
}

func (s *Server) handleGoToPage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	n := req.GetInt("page", 0)
	if err := s.engine.GoToPage(ctx, n); err != nil {
		return nil, err
	}
	s.rememberPosition(ctx)
	return textResult(fmt.Sprintf("Page %d of %d", s.engine.CurrentPage(), s.engine.TotalPages())), nil
}

func (s *Server) handleScrollTo(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := s.engine.ScrollTo(ctx, req.GetFloat("offset", 0)); err != nil {
		return nil, err
	}
	s.rememberPosition(ctx)
	return textResult(fmt.Sprintf("Scrolled to %.0f of %.0f, page %d",
		s.engine.ScrollTop(), s.engine.ScrollHeight(), s.engine.CurrentPage())), nil
}

func (s *Server) handleZoom(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var err error
	switch action := req.GetString("action", ""); action {
	case "in":
		err = s.engine.ZoomIn(ctx)
	case "out":
		err = s.engine.ZoomOut(ctx)
	case "reset":
		err = s.engine.ResetZoom(ctx)
	case "set":
		err = s.engine.SetZoom(ctx, req.GetFloat("value", 1))
	default:
		return nil, fmt.Errorf("unknown zoom action %q", action)
	}
	if err != nil {
		return nil, err
	}
	s.rememberPosition(ctx)
	return textResult(fmt.Sprintf("Zoom %.0f%%", s.engine.Zoom()*100)), nil
}
