package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerPrompts() {
	s.mcp.AddPrompt(mcp.NewPrompt("review_document",
		mcp.WithPromptDescription("Read through a document page by page and highlight the passages that matter for a topic"),
		mcp.WithArgument("documentId",
			mcp.ArgumentDescription("ID of the uploaded document"),
			mcp.RequiredArgument(),
		),
		mcp.WithArgument("topic",
			mcp.ArgumentDescription("What the review should focus on"),
			mcp.RequiredArgument(),
		),
	), s.handleReviewPrompt)

	s.mcp.AddPrompt(mcp.NewPrompt("summarize_annotations",
		mcp.WithPromptDescription("Summarize the notes already drawn on a document"),
		mcp.WithArgument("documentId",
			mcp.ArgumentDescription("ID of the uploaded document"),
			mcp.RequiredArgument(),
		),
	), s.handleSummarizePrompt)
}

func (s *Server) handleReviewPrompt(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	docID := req.Params.Arguments["documentId"]
	topic := req.Params.Arguments["topic"]
	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Review %s for: %s", docID, topic),
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.TextContent{
					Type: "text",
					Text: fmt.Sprintf(`Review document %s with a focus on "%s". Follow these steps:

1. Use open_document with documentId "%s", then document_state to learn the page count
2. For each page, use go_to_page and export_page to look at it
3. Where a passage is relevant, select the highlighter with set_tool and mark it with draw_stroke
4. Add a short text note next to important findings with insert_shape (type text) and set_text
5. Finish with list_objects on each annotated page and report what you marked

Do not clear pages or delete objects you did not create.`, docID, topic, docID),
				},
			},
		},
	}, nil
}

func (s *Server) handleSummarizePrompt(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	docID := req.Params.Arguments["documentId"]
	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Summarize annotations on %s", docID),
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.TextContent{
					Type: "text",
					Text: fmt.Sprintf(`Read the resource annotate://document/%s/annotations and summarize the notes per page.
Group highlights, shapes and text notes separately and mention the page numbers they appear on.`, docID),
				},
			},
		},
	}, nil
}
