package domain

import "fmt"

type ToolKind string

const (
	ToolPen         ToolKind = "pen"
	ToolHighlighter ToolKind = "highlighter"
	ToolEraser      ToolKind = "eraser"
	ToolRectangle   ToolKind = "rectangle"
	ToolCircle      ToolKind = "circle"
	ToolLine        ToolKind = "line"
	ToolArrow       ToolKind = "arrow"
	ToolText        ToolKind = "text"
)

// DrawingTool is replaced wholesale on every tool change.
type DrawingTool struct {
	Kind    ToolKind `json:"type"`
	Color   string   `json:"color"`
	Width   float64  `json:"width"`
	Opacity *float64 `json:"opacity,omitempty"`
}

// DefaultTool is a 2px black pen.
var DefaultTool = DrawingTool{Kind: ToolPen, Color: "#000000", Width: 2}

// DrawMode reports whether the tool paints freehand strokes rather than
// inserting discrete objects.
func (t DrawingTool) DrawMode() bool {
	switch t.Kind {
	case ToolPen, ToolHighlighter, ToolEraser:
		return true
	}
	return false
}

// Composite is the blending used for strokes made with this tool.
func (t DrawingTool) Composite() CompositeOp {
	switch t.Kind {
	case ToolHighlighter:
		return CompositeMultiply
	case ToolEraser:
		return CompositeDestinationOut
	}
	return CompositeSourceOver
}

// EffectiveOpacity returns the explicit opacity or the tool default.
// Highlighters default to 0.4 so the page stays readable underneath.
func (t DrawingTool) EffectiveOpacity() float64 {
	if t.Opacity != nil {
		return *t.Opacity
	}
	if t.Kind == ToolHighlighter {
		return 0.4
	}
	return 1
}

func (t DrawingTool) Validate() error {
	switch t.Kind {
	case ToolPen, ToolHighlighter, ToolEraser, ToolRectangle, ToolCircle, ToolLine, ToolArrow, ToolText:
	default:
		return &ValidationError{Field: "type", Message: fmt.Sprintf("unknown tool %q", t.Kind)}
	}
	if t.Width <= 0 {
		return &ValidationError{Field: "width", Message: "width must be positive"}
	}
	if t.Opacity != nil && (*t.Opacity < 0 || *t.Opacity > 1) {
		return &ValidationError{Field: "opacity", Message: "opacity must be between 0 and 1"}
	}
	return nil
}

// ShapeKind maps an insert-mode tool to the object it creates.
func ShapeKind(t ToolKind) (ObjectKind, bool) {
	switch t {
	case ToolRectangle:
		return ObjectRect, true
	case ToolCircle:
		return ObjectCircle, true
	case ToolLine:
		return ObjectLine, true
	case ToolArrow:
		return ObjectArrow, true
	case ToolText:
		return ObjectText, true
	}
	return "", false
}
