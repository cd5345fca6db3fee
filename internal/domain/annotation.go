package domain

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// SchemaVersion is written into every serialized AnnotationState.
const SchemaVersion = 1

type ObjectKind string

const (
	ObjectPath   ObjectKind = "path"
	ObjectRect   ObjectKind = "rect"
	ObjectCircle ObjectKind = "circle"
	ObjectLine   ObjectKind = "line"
	ObjectArrow  ObjectKind = "arrow"
	ObjectText   ObjectKind = "text"
)

// CompositeOp selects how an object's pixels combine with what is below it.
type CompositeOp string

const (
	CompositeSourceOver     CompositeOp = "source-over"
	CompositeMultiply       CompositeOp = "multiply"
	CompositeDestinationOut CompositeOp = "destination-out"
)

// Point is a position in page space: unscaled document units, origin top-left.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Object is one vector annotation. Geometry is stored in page space so a
// saved state is independent of the zoom it was drawn at.
type Object struct {
	ID          string      `json:"id"`
	Kind        ObjectKind  `json:"kind"`
	X           float64     `json:"x,omitempty"`
	Y           float64     `json:"y,omitempty"`
	Width       float64     `json:"width,omitempty"`
	Height      float64     `json:"height,omitempty"`
	Radius      float64     `json:"radius,omitempty"`
	Points      []Point     `json:"points,omitempty"`
	Text        string      `json:"text,omitempty"`
	FontSize    float64     `json:"fontSize,omitempty"`
	Stroke      string      `json:"stroke,omitempty"`
	Fill        string      `json:"fill,omitempty"`
	StrokeWidth float64     `json:"strokeWidth,omitempty"`
	Opacity     float64     `json:"opacity,omitempty"`
	Composite   CompositeOp `json:"composite,omitempty"`
}

// Bounds returns the object's axis-aligned box in page space.
func (o Object) Bounds() (x0, y0, x1, y1 float64) {
	switch o.Kind {
	case ObjectCircle:
		return o.X, o.Y, o.X + 2*o.Radius, o.Y + 2*o.Radius
	case ObjectPath, ObjectLine, ObjectArrow:
		if len(o.Points) == 0 {
			return 0, 0, 0, 0
		}
		x0, y0 = o.Points[0].X, o.Points[0].Y
		x1, y1 = x0, y0
		for _, p := range o.Points[1:] {
			x0, y0 = min(x0, p.X), min(y0, p.Y)
			x1, y1 = max(x1, p.X), max(y1, p.Y)
		}
		return x0, y0, x1, y1
	default:
		return o.X, o.Y, o.X + o.Width, o.Y + o.Height
	}
}

// AnnotationState is the serialized vector object graph of one page.
type AnnotationState struct {
	Version int      `json:"version"`
	Objects []Object `json:"objects"`
}

func (s *AnnotationState) Validate() error {
	if s.Version != SchemaVersion {
		return &ValidationError{Field: "version", Message: fmt.Sprintf("unsupported schema version %d", s.Version)}
	}
	seen := make(map[string]bool, len(s.Objects))
	for i, o := range s.Objects {
		field := fmt.Sprintf("objects[%d]", i)
		if o.ID == "" {
			return &ValidationError{Field: field + ".id", Message: "object ID is required"}
		}
		if seen[o.ID] {
			return &ValidationError{Field: field + ".id", Message: "duplicate object ID " + o.ID}
		}
		seen[o.ID] = true
		switch o.Kind {
		case ObjectPath:
			if len(o.Points) == 0 {
				return &ValidationError{Field: field + ".points", Message: "path needs at least one point"}
			}
		case ObjectLine, ObjectArrow:
			if len(o.Points) != 2 {
				return &ValidationError{Field: field + ".points", Message: "line needs exactly two points"}
			}
		case ObjectRect, ObjectText:
			if o.Width < 0 || o.Height < 0 {
				return &ValidationError{Field: field, Message: "negative size"}
			}
		case ObjectCircle:
			if o.Radius < 0 {
				return &ValidationError{Field: field + ".radius", Message: "negative radius"}
			}
		default:
			return &ValidationError{Field: field + ".kind", Message: fmt.Sprintf("unknown object kind %q", o.Kind)}
		}
		switch o.Composite {
		case "", CompositeSourceOver, CompositeMultiply, CompositeDestinationOut:
		default:
			return &ValidationError{Field: field + ".composite", Message: fmt.Sprintf("unknown composite %q", o.Composite)}
		}
		if o.Opacity < 0 || o.Opacity > 1 {
			return &ValidationError{Field: field + ".opacity", Message: "opacity must be between 0 and 1"}
		}
	}
	return nil
}

// DecodeAnnotationState parses and validates a stored payload.
func DecodeAnnotationState(data []byte) (*AnnotationState, error) {
	var s AnnotationState
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, &ValidationError{Field: "data", Message: err.Error()}
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// AnnotationRecord is the stored row for one (user, document, page).
// Revision grows with every local mutation; stores keep the highest one.
type AnnotationRecord struct {
	UserID     string          `json:"userId"`
	DocumentID string          `json:"documentId"`
	PageNumber int             `json:"pageNumber"`
	Revision   int64           `json:"revision"`
	Data       json.RawMessage `json:"data"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

func (r *AnnotationRecord) Validate() error {
	if r.DocumentID == "" {
		return &ValidationError{Field: "documentId", Message: "document ID is required"}
	}
	if r.PageNumber < 1 {
		return &ValidationError{Field: "pageNumber", Message: "page number must be at least 1"}
	}
	if len(r.Data) == 0 {
		return &ValidationError{Field: "data", Message: "annotation data is required"}
	}
	return nil
}

// State decodes the record payload.
func (r *AnnotationRecord) State() (*AnnotationState, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return DecodeAnnotationState(r.Data)
}

// AnnotationStore persists annotation records. GetAnnotation returns
// (nil, nil) when no record exists. UpsertAnnotation never lowers a stored
// revision; a write it skips returns ErrStaleRevision.
type AnnotationStore interface {
	GetAnnotation(ctx context.Context, userID, documentID string, page int) (*AnnotationRecord, error)
	UpsertAnnotation(ctx context.Context, r *AnnotationRecord) error
	ListAnnotations(ctx context.Context, userID, documentID string) ([]AnnotationRecord, error)
	DeleteAnnotation(ctx context.Context, userID, documentID string, page int) error
}
