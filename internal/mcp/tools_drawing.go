package mcpserver

import (
	"context"
	"fmt"

	"annotate/internal/domain"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerDrawingTools() {
	s.mcp.AddTool(mcp.NewTool("set_tool",
		mcp.WithDescription("Select the drawing tool used for strokes and inserted shapes"),
		mcp.WithString("type", mcp.Description("pen, highlighter, eraser, rectangle, circle, line, arrow or text"), mcp.Required()),
		mcp.WithString("color", mcp.Description("Stroke color hex (default #000000)")),
		mcp.WithNumber("width", mcp.Description("Stroke width in page units (default 2)")),
		mcp.WithNumber("opacity", mcp.Description("Opacity between 0 and 1 (highlighter defaults to 0.4)")),
	), s.handleSetTool)

	s.mcp.AddTool(mcp.NewTool("insert_shape",
		mcp.WithDescription("Insert a default-sized shape or text box on the current page"),
		mcp.WithString("type", mcp.Description("rectangle, circle, line, arrow or text"), mcp.Required()),
	), s.handleInsertShape)

	s.mcp.AddTool(mcp.NewTool("draw_stroke",
		mcp.WithDescription("Draw a freehand stroke with the active tool. Points are page pixels from the page's top-left corner at the current zoom."),
		mcp.WithNumber("page", mcp.Description("Page number (defaults to the current page)")),
		mcp.WithString("points", mcp.Description(`JSON array of points, e.g. [{"x":10,"y":20},{"x":40,"y":25}] or [[10,20],[40,25]]`), mcp.Required()),
	), s.handleDrawStroke)

	s.mcp.AddTool(mcp.NewTool("list_objects",
		mcp.WithDescription("List the annotation objects on a page with their page-space bounds"),
		mcp.WithNumber("page", mcp.Description("Page number (defaults to the current page)")),
	), s.handleListObjects)

	s.mcp.AddTool(mcp.NewTool("move_object",
		mcp.WithDescription("Move an annotation object by an offset in page units"),
		mcp.WithNumber("page", mcp.Description("Page number (defaults to the current page)")),
		mcp.WithString("objectId", mcp.Description("Object ID"), mcp.Required()),
		mcp.WithNumber("dx", mcp.Description("Horizontal offset"), mcp.Required()),
		mcp.WithNumber("dy", mcp.Description("Vertical offset"), mcp.Required()),
	), s.handleMoveObject)

	s.mcp.AddTool(mcp.NewTool("resize_object",
		mcp.WithDescription("Resize an annotation object"),
		mcp.WithNumber("page", mcp.Description("Page number (defaults to the current page)")),
		mcp.WithString("objectId", mcp.Description("Object ID"), mcp.Required()),
		mcp.WithNumber("width", mcp.Description("New width"), mcp.Required()),
		mcp.WithNumber("height", mcp.Description("New height"), mcp.Required()),
	), s.handleResizeObject)

	s.mcp.AddTool(mcp.NewTool("set_text",
		mcp.WithDescription("Replace the text of a text annotation"),
		mcp.WithNumber("page", mcp.Description("Page number (defaults to the current page)")),
		mcp.WithString("objectId", mcp.Description("Object ID"), mcp.Required()),
		mcp.WithString("text", mcp.Description("New text"), mcp.Required()),
	), s.handleSetText)

	s.mcp.AddTool(mcp.NewTool("remove_object",
		mcp.WithDescription("Remove one annotation object. It can be restored with undo."),
		mcp.WithNumber("page", mcp.Description("Page number (defaults to the current page)")),
		mcp.WithString("objectId", mcp.Description("Object ID"), mcp.Required()),
	), s.handleRemoveObject)

	s.mcp.AddTool(mcp.NewTool("undo",
		mcp.WithDescription("Undo the last annotation change on a page"),
		mcp.WithNumber("page", mcp.Description("Page number (defaults to the current page)")),
	), s.handleUndo)

	s.mcp.AddTool(mcp.NewTool("redo",
		mcp.WithDescription("Redo the last undone annotation change on a page"),
		mcp.WithNumber("page", mcp.Description("Page number (defaults to the current page)")),
	), s.handleRedo)

	s.mcp.AddTool(mcp.NewTool("clear_page",
		mcp.WithDescription("🛑 DESTRUCTIVE: Remove every annotation on a page and delete its saved record. Requires user approval."),
		mcp.WithNumber("page", mcp.Description("Page number (defaults to the current page)")),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{DestructiveHint: boolPtr(true)}),
	), s.handleClearPage)
}

func (s *Server) handleSetTool(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tool := domain.DrawingTool{
		Kind:  domain.ToolKind(req.GetString("type", "")),
		Color: req.GetString("color", domain.DefaultTool.Color),
		Width: req.GetFloat("width", domain.DefaultTool.Width),
	}
	if _, ok := req.GetArguments()["opacity"]; ok {
		o := req.GetFloat("opacity", 1)
		tool.Opacity = &o
	}
	if err := s.engine.SetTool(tool); err != nil {
		return nil, err
	}
	return jsonResult(tool)
}

func (s *Server) handleInsertShape(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	obj, err := s.engine.InsertShape(domain.ToolKind(req.GetString("type", "")))
	if err != nil {
		return nil, err
	}
	s.emitAnnotationsChanged(ctx, s.engine.CurrentPage())
	return jsonResult(obj)
}

func (s *Server) handleDrawStroke(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	points, err := parsePoints(req.GetString("points", ""))
	if err != nil {
		return nil, err
	}
	page := s.pageArg(req)
	obj, err := s.engine.DrawStroke(page, points)
	if err != nil {
		return nil, err
	}
	s.emitAnnotationsChanged(ctx, page)
	return jsonResult(summarizeObjects([]domain.Object{obj})[0])
}

func (s *Server) handleListObjects(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	objs, err := s.engine.Objects(ctx, s.pageArg(req))
	if err != nil {
		return nil, err
	}
	return jsonResult(summarizeObjects(objs))
}

func (s *Server) handleMoveObject(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	page, id := s.pageArg(req), req.GetString("objectId", "")
	if err := s.engine.MoveObject(page, id, req.GetFloat("dx", 0), req.GetFloat("dy", 0)); err != nil {
		return nil, err
	}
	s.emitAnnotationsChanged(ctx, page)
	return textResult(fmt.Sprintf("Object %s moved", id)), nil
}

func (s *Server) handleResizeObject(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	page, id := s.pageArg(req), req.GetString("objectId", "")
	if err := s.engine.ResizeObject(page, id, req.GetFloat("width", 0), req.GetFloat("height", 0)); err != nil {
		return nil, err
	}
	s.emitAnnotationsChanged(ctx, page)
	return textResult(fmt.Sprintf("Object %s resized", id)), nil
}

func (s *Server) handleSetText(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	page, id := s.pageArg(req), req.GetString("objectId", "")
	if err := s.engine.SetText(page, id, req.GetString("text", "")); err != nil {
		return nil, err
	}
	s.emitAnnotationsChanged(ctx, page)
	return textResult(fmt.Sprintf("Object %s updated", id)), nil
}

func (s *Server) handleRemoveObject(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	page, id := s.pageArg(req), req.GetString("objectId", "")
	if err := s.engine.RemoveObject(page, id); err != nil {
		return nil, err
	}
	s.emitAnnotationsChanged(ctx, page)
	return textResult(fmt.Sprintf("Object %s removed", id)), nil
}

func (s *Server) handleUndo(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	page := s.pageArg(req)
	ok, err := s.engine.Undo(page)
	if err != nil {
		return nil, err
	}
	if !ok {
		return textResult("Nothing to undo"), nil
	}
	s.emitAnnotationsChanged(ctx, page)
	return textResult(fmt.Sprintf("Undid last change on page %d", page)), nil
}

func (s *Server) handleRedo(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	page := s.pageArg(req)
	ok, err := s.engine.Redo(page)
	if err != nil {
		return nil, err
	}
	if !ok {
		return textResult("Nothing to redo"), nil
	}
	s.emitAnnotationsChanged(ctx, page)
	return textResult(fmt.Sprintf("Redid last change on page %d", page)), nil
}

func (s *Server) handleClearPage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	page := s.pageArg(req)
	objs, err := s.engine.Objects(ctx, page)
	if err != nil {
		return nil, err
	}
	if len(objs) == 0 {
		return textResult(fmt.Sprintf("Page %d has no annotations", page)), nil
	}

	meta := fmt.Sprintf(`{"documentId":%q,"page":%d}`, s.engine.DocumentID(), page)
	approved, err := s.approval.Request("clear_page",
		fmt.Sprintf("Remove %d annotations from page %d", len(objs), page), meta)
	if err != nil || !approved {
		return textResult("Action rejected by user"), nil
	}

	if err := s.engine.ClearPage(ctx, page); err != nil {
		return nil, fmt.Errorf("clear page: %w", err)
	}
	s.emitAnnotationsChanged(ctx, page)
	return textResult(fmt.Sprintf("Page %d cleared", page)), nil
}
