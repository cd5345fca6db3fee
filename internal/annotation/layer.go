// Package annotation implements the vector layer stacked on each rendered
// page: tools, shapes, strokes, history and (de)serialization.
//
// A Layer is not safe for concurrent use; the engine serializes access.
package annotation

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"annotate/internal/domain"
	"annotate/internal/layout"
	"annotate/internal/raster"
)

var (
	// ErrStale means the vector surface no longer matches its raster
	// sibling; drawing and persisting wait for the next render.
	ErrStale         = errors.New("annotation layer is stale")
	ErrNotDrawMode   = errors.New("current tool does not draw strokes")
	ErrNotInsertTool = errors.New("tool does not insert shapes")
	ErrNoObject      = errors.New("no such object")
)

// historyLimit bounds the undo stack.
const historyLimit = 40

// Shape anchors in page space.
const (
	anchorX = 100.0
	anchorY = 100.0
)

type Layer struct {
	page     int
	tool     domain.DrawingTool
	objects  []domain.Object
	selected string

	undo [][]domain.Object
	redo [][]domain.Object

	raster  *raster.Surface
	surface *raster.Surface
	layout  layout.Layout

	onChange func()
}

// New returns an empty, detached layer for page. onChange runs after every
// mutation.
func New(page int, tool domain.DrawingTool, onChange func()) *Layer {
	if onChange == nil {
		onChange = func() {}
	}
	return &Layer{page: page, tool: tool, onChange: onChange}
}

func (l *Layer) Page() int { return l.page }

// Attach creates the vector surface at the raster's device size and
// repaints the working state onto it. Any previous surface is disposed
// first.
func (l *Layer) Attach(rs *raster.Surface, lay layout.Layout) error {
	l.Detach()
	l.raster = rs
	l.layout = lay
	l.surface = raster.NewSurface(rs.Width(), rs.Height())
	return l.repaint()
}

// Detach disposes the vector surface. The working state is kept.
func (l *Layer) Detach() {
	if l.surface != nil {
		l.surface.Dispose()
	}
	l.surface = nil
	l.raster = nil
}

func (l *Layer) Attached() bool { return l.surface != nil }

// Surface returns the vector surface, nil when detached.
func (l *Layer) Surface() *raster.Surface { return l.surface }

// Check reports ErrStale unless the vector surface exists and matches the
// raster surface pixel for pixel.
func (l *Layer) Check() error {
	if l.surface == nil || l.raster == nil || l.surface.Disposed() || l.raster.Disposed() {
		return ErrStale
	}
	if !l.surface.SameSize(l.raster) {
		return ErrStale
	}
	return nil
}

// ApplyTool replaces the active tool.
func (l *Layer) ApplyTool(t domain.DrawingTool) {
	l.tool = t
}

func (l *Layer) Tool() domain.DrawingTool { return l.tool }

// DrawMode reports whether pointer input paints freehand strokes.
func (l *Layer) DrawMode() bool { return l.tool.DrawMode() }

// Selected is the ID of the selected object, empty for none.
func (l *Layer) Selected() string { return l.selected }

// Objects returns a copy of the working state.
func (l *Layer) Objects() []domain.Object { return cloneObjects(l.objects) }

// State returns the serializable working state.
func (l *Layer) State() domain.AnnotationState {
	return domain.AnnotationState{Version: domain.SchemaVersion, Objects: l.Objects()}
}

// Serialize encodes the working state. Stale layers refuse.
func (l *Layer) Serialize() ([]byte, error) {
	if err := l.Check(); err != nil {
		return nil, err
	}
	return json.Marshal(l.State())
}

// Load replaces the working state without touching history or firing the
// change hook.
func (l *Layer) Load(s *domain.AnnotationState) error {
	if s == nil {
		l.objects = nil
	} else {
		l.objects = cloneObjects(s.Objects)
	}
	l.selected = ""
	l.undo, l.redo = nil, nil
	if l.surface == nil {
		return nil
	}
	return l.repaint()
}

// toPage converts a logical (CSS) pixel length to page units.
func (l *Layer) toPage(v float64) float64 {
	if l.layout.Scale == 0 {
		return v
	}
	return v / l.layout.Scale
}

// CommitStroke appends a freehand path. Points are logical pixels
// relative to the page's top-left corner.
func (l *Layer) CommitStroke(points []domain.Point) (domain.Object, error) {
	if err := l.Check(); err != nil {
		return domain.Object{}, err
	}
	if !l.DrawMode() {
		return domain.Object{}, ErrNotDrawMode
	}
	if len(points) == 0 {
		return domain.Object{}, fmt.Errorf("stroke has no points")
	}
	pts := make([]domain.Point, len(points))
	for i, p := range points {
		pts[i] = domain.Point{X: l.toPage(p.X), Y: l.toPage(p.Y)}
	}
	o := domain.Object{
		ID:          uuid.NewString(),
		Kind:        domain.ObjectPath,
		Points:      pts,
		Stroke:      l.tool.Color,
		StrokeWidth: l.tool.Width,
		Opacity:     l.tool.EffectiveOpacity(),
		Composite:   l.tool.Composite(),
	}
	return o, l.mutate(func() { l.objects = append(l.objects, o) })
}

// InsertShape places a default-sized instance of kind at the fixed anchor
// and selects it.
func (l *Layer) InsertShape(kind domain.ToolKind) (domain.Object, error) {
	if err := l.Check(); err != nil {
		return domain.Object{}, err
	}
	objKind, ok := domain.ShapeKind(kind)
	if !ok {
		return domain.Object{}, ErrNotInsertTool
	}
	o := domain.Object{
		ID:          uuid.NewString(),
		Kind:        objKind,
		Stroke:      l.tool.Color,
		Fill:        "transparent",
		StrokeWidth: l.tool.Width,
		Opacity:     l.tool.EffectiveOpacity(),
		Composite:   domain.CompositeSourceOver,
	}
	switch objKind {
	case domain.ObjectRect:
		o.X, o.Y, o.Width, o.Height = anchorX, anchorY, 100, 60
	case domain.ObjectCircle:
		o.X, o.Y, o.Radius = anchorX, anchorY, 50
	case domain.ObjectLine, domain.ObjectArrow:
		o.Points = []domain.Point{{X: 50, Y: 100}, {X: 200, Y: 100}}
	case domain.ObjectText:
		o.Text = "Text"
		o.FontSize = l.tool.Width * 8
		o.X, o.Y = anchorX, anchorY
		o.Width = float64(len(o.Text)) * o.FontSize * 0.6
		o.Height = o.FontSize * 1.2
		o.Fill = ""
	}
	err := l.mutate(func() {
		l.objects = append(l.objects, o)
		l.selected = o.ID
	})
	return o, err
}

func (l *Layer) find(id string) int {
	for i := range l.objects {
		if l.objects[i].ID == id {
			return i
		}
	}
	return -1
}

// MoveObject translates an object by a logical pixel delta.
func (l *Layer) MoveObject(id string, dx, dy float64) error {
	if err := l.Check(); err != nil {
		return err
	}
	i := l.find(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNoObject, id)
	}
	px, py := l.toPage(dx), l.toPage(dy)
	return l.mutate(func() {
		o := &l.objects[i]
		if len(o.Points) == 0 {
			o.X += px
			o.Y += py
		}
		for j := range o.Points {
			o.Points[j].X += px
			o.Points[j].Y += py
		}
		l.selected = id
	})
}

// ResizeObject sets an object's bounding box size in logical pixels,
// keeping its top-left corner.
func (l *Layer) ResizeObject(id string, width, height float64) error {
	if err := l.Check(); err != nil {
		return err
	}
	if width <= 0 || height <= 0 {
		return fmt.Errorf("resize: size must be positive")
	}
	i := l.find(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNoObject, id)
	}
	w, h := l.toPage(width), l.toPage(height)
	return l.mutate(func() {
		o := &l.objects[i]
		switch o.Kind {
		case domain.ObjectCircle:
			o.Radius = min(w, h) / 2
		case domain.ObjectPath, domain.ObjectLine, domain.ObjectArrow:
			x0, y0, x1, y1 := o.Bounds()
			sx, sy := 1.0, 1.0
			if x1 > x0 {
				sx = w / (x1 - x0)
			}
			if y1 > y0 {
				sy = h / (y1 - y0)
			}
			for j := range o.Points {
				o.Points[j].X = x0 + (o.Points[j].X-x0)*sx
				o.Points[j].Y = y0 + (o.Points[j].Y-y0)*sy
			}
		case domain.ObjectText:
			if o.Height > 0 {
				o.FontSize *= h / o.Height
			}
			o.Width, o.Height = w, h
		default:
			o.Width, o.Height = w, h
		}
		l.selected = id
	})
}

// SetText replaces a text object's content.
func (l *Layer) SetText(id, text string) error {
	if err := l.Check(); err != nil {
		return err
	}
	i := l.find(id)
	if i < 0 || l.objects[i].Kind != domain.ObjectText {
		return fmt.Errorf("%w: text %s", ErrNoObject, id)
	}
	return l.mutate(func() { l.objects[i].Text = text })
}

func (l *Layer) RemoveObject(id string) error {
	if err := l.Check(); err != nil {
		return err
	}
	i := l.find(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNoObject, id)
	}
	return l.mutate(func() {
		l.objects = append(l.objects[:i], l.objects[i+1:]...)
		if l.selected == id {
			l.selected = ""
		}
	})
}

// Clear removes every object. It can be undone.
func (l *Layer) Clear() error {
	if err := l.Check(); err != nil {
		return err
	}
	return l.mutate(func() {
		l.objects = nil
		l.selected = ""
	})
}

// Undo restores the state before the last mutation. It reports false when
// there is nothing to undo.
func (l *Layer) Undo() (bool, error) {
	if err := l.Check(); err != nil {
		return false, err
	}
	if len(l.undo) == 0 {
		return false, nil
	}
	prev := l.undo[len(l.undo)-1]
	l.undo = l.undo[:len(l.undo)-1]
	l.redo = append(l.redo, cloneObjects(l.objects))
	l.objects = prev
	return true, l.changed()
}

func (l *Layer) Redo() (bool, error) {
	if err := l.Check(); err != nil {
		return false, err
	}
	if len(l.redo) == 0 {
		return false, nil
	}
	next := l.redo[len(l.redo)-1]
	l.redo = l.redo[:len(l.redo)-1]
	l.pushUndo()
	l.objects = next
	return true, l.changed()
}

func (l *Layer) pushUndo() {
	l.undo = append(l.undo, cloneObjects(l.objects))
	if len(l.undo) > historyLimit {
		l.undo = l.undo[len(l.undo)-historyLimit:]
	}
}

func (l *Layer) mutate(fn func()) error {
	l.pushUndo()
	l.redo = nil
	fn()
	return l.changed()
}

func (l *Layer) changed() error {
	err := l.repaint()
	l.onChange()
	return err
}

func (l *Layer) repaint() error {
	if l.surface == nil {
		return nil
	}
	l.surface.Clear()
	return raster.PaintObjects(l.surface, l.objects, l.layout.RenderScale())
}

func cloneObjects(in []domain.Object) []domain.Object {
	if in == nil {
		return nil
	}
	out := make([]domain.Object, len(in))
	for i, o := range in {
		out[i] = o
		if o.Points != nil {
			out[i].Points = append([]domain.Point(nil), o.Points...)
		}
	}
	return out
}
