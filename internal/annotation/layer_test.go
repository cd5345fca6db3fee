package annotation_test

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"annotate/internal/annotation"
	"annotate/internal/domain"
	"annotate/internal/layout"
	"annotate/internal/raster"
)

func attached(t *testing.T, scale float64) (*annotation.Layer, *int) {
	t.Helper()
	changes := 0
	l := annotation.New(1, domain.DefaultTool, func() { changes++ })
	lay := layout.Layout{Scale: scale, DevicePixelRatio: 1, Width: 300 * scale, Height: 400 * scale}
	lay.DeviceWidth, lay.DeviceHeight = int(lay.Width), int(lay.Height)
	if err := l.Attach(raster.NewSurface(lay.DeviceWidth, lay.DeviceHeight), lay); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	return l, &changes
}

// ─── Tools ───────────────────────────────────────────────────

func TestToolComposite(t *testing.T) {
	cases := map[domain.ToolKind]domain.CompositeOp{
		domain.ToolPen:         domain.CompositeSourceOver,
		domain.ToolHighlighter: domain.CompositeMultiply,
		domain.ToolEraser:      domain.CompositeDestinationOut,
	}
	for kind, want := range cases {
		l, _ := attached(t, 1)
		l.ApplyTool(domain.DrawingTool{Kind: kind, Color: "#ff0000", Width: 4})
		if !l.DrawMode() {
			t.Errorf("%s: expected draw mode", kind)
		}
		o, err := l.CommitStroke([]domain.Point{{X: 1, Y: 1}, {X: 20, Y: 20}})
		if err != nil {
			t.Fatalf("%s: %v", kind, err)
		}
		if o.Composite != want {
			t.Errorf("%s: composite = %s, want %s", kind, o.Composite, want)
		}
	}
}

func TestShapeToolIsInsertMode(t *testing.T) {
	l, _ := attached(t, 1)
	l.ApplyTool(domain.DrawingTool{Kind: domain.ToolRectangle, Color: "#000", Width: 2})
	if l.DrawMode() {
		t.Error("rectangle tool should not be draw mode")
	}
	if _, err := l.CommitStroke([]domain.Point{{X: 1, Y: 1}}); !errors.Is(err, annotation.ErrNotDrawMode) {
		t.Errorf("err = %v, want ErrNotDrawMode", err)
	}
}

func TestHighlighterDefaultOpacity(t *testing.T) {
	l, _ := attached(t, 1)
	l.ApplyTool(domain.DrawingTool{Kind: domain.ToolHighlighter, Color: "#ffff00", Width: 12})
	o, err := l.CommitStroke([]domain.Point{{X: 5, Y: 5}, {X: 50, Y: 5}})
	if err != nil {
		t.Fatal(err)
	}
	if o.Opacity != 0.4 {
		t.Errorf("opacity = %v, want 0.4", o.Opacity)
	}
}

// ─── Geometry ────────────────────────────────────────────────

func TestStrokeStoredInPageSpace(t *testing.T) {
	l, _ := attached(t, 2)
	o, err := l.CommitStroke([]domain.Point{{X: 20, Y: 40}, {X: 60, Y: 80}})
	if err != nil {
		t.Fatal(err)
	}
	want := []domain.Point{{X: 10, Y: 20}, {X: 30, Y: 40}}
	if diff := cmp.Diff(want, o.Points); diff != "" {
		t.Errorf("points mismatch (-want +got):\n%s", diff)
	}
}

func TestInsertShapeDefaults(t *testing.T) {
	l, changes := attached(t, 1)
	l.ApplyTool(domain.DrawingTool{Kind: domain.ToolText, Color: "#000000", Width: 2})

	rect, err := l.InsertShape(domain.ToolRectangle)
	if err != nil {
		t.Fatal(err)
	}
	if rect.X != 100 || rect.Y != 100 || rect.Width != 100 || rect.Height != 60 {
		t.Errorf("rect = %+v", rect)
	}
	if l.Selected() != rect.ID {
		t.Errorf("selected = %q, want new rect", l.Selected())
	}

	circle, _ := l.InsertShape(domain.ToolCircle)
	if circle.Radius != 50 {
		t.Errorf("circle radius = %v, want 50", circle.Radius)
	}

	line, _ := l.InsertShape(domain.ToolLine)
	if diff := cmp.Diff([]domain.Point{{X: 50, Y: 100}, {X: 200, Y: 100}}, line.Points); diff != "" {
		t.Errorf("line points (-want +got):\n%s", diff)
	}

	text, err := l.InsertShape(domain.ToolText)
	if err != nil {
		t.Fatal(err)
	}
	if text.Text != "Text" || text.FontSize != 16 {
		t.Errorf("text = %+v", text)
	}
	if *changes != 4 {
		t.Errorf("change hook fired %d times, want 4", *changes)
	}
	if _, err := l.InsertShape(domain.ToolPen); !errors.Is(err, annotation.ErrNotInsertTool) {
		t.Errorf("pen insert err = %v", err)
	}
}

func TestMoveAndResize(t *testing.T) {
	l, _ := attached(t, 2)
	rect, _ := l.InsertShape(domain.ToolRectangle)
	if err := l.MoveObject(rect.ID, 20, 10); err != nil {
		t.Fatal(err)
	}
	if err := l.ResizeObject(rect.ID, 100, 100); err != nil {
		t.Fatal(err)
	}
	got := l.Objects()[0]
	if got.X != 110 || got.Y != 105 || got.Width != 50 || got.Height != 50 {
		t.Errorf("rect after move+resize = %+v", got)
	}
	if err := l.MoveObject("missing", 1, 1); !errors.Is(err, annotation.ErrNoObject) {
		t.Errorf("err = %v, want ErrNoObject", err)
	}
}

// ─── History ─────────────────────────────────────────────────

func TestUndoRedo(t *testing.T) {
	l, _ := attached(t, 1)
	l.CommitStroke([]domain.Point{{X: 1, Y: 1}, {X: 2, Y: 2}})
	l.CommitStroke([]domain.Point{{X: 3, Y: 3}, {X: 4, Y: 4}})

	if ok, err := l.Undo(); !ok || err != nil {
		t.Fatalf("Undo = %v, %v", ok, err)
	}
	if n := len(l.Objects()); n != 1 {
		t.Errorf("after undo: %d objects, want 1", n)
	}
	if ok, _ := l.Redo(); !ok {
		t.Fatal("Redo reported nothing to redo")
	}
	if n := len(l.Objects()); n != 2 {
		t.Errorf("after redo: %d objects, want 2", n)
	}

	l.Clear()
	l.Undo()
	if n := len(l.Objects()); n != 2 {
		t.Errorf("after undoing clear: %d objects, want 2", n)
	}
}

func TestHistoryBounded(t *testing.T) {
	l, _ := attached(t, 1)
	for i := 0; i < 50; i++ {
		l.CommitStroke([]domain.Point{{X: float64(i), Y: 1}})
	}
	undone := 0
	for {
		ok, err := l.Undo()
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			break
		}
		undone++
	}
	if undone != 40 {
		t.Errorf("undo depth = %d, want 40", undone)
	}
	if n := len(l.Objects()); n != 10 {
		t.Errorf("objects left = %d, want 10", n)
	}
}

// ─── Staleness & serialization ───────────────────────────────

func TestDetachedLayerIsStale(t *testing.T) {
	l, _ := attached(t, 1)
	l.CommitStroke([]domain.Point{{X: 1, Y: 1}})
	l.Detach()

	if _, err := l.Serialize(); !errors.Is(err, annotation.ErrStale) {
		t.Errorf("Serialize err = %v, want ErrStale", err)
	}
	if _, err := l.CommitStroke([]domain.Point{{X: 1, Y: 1}}); !errors.Is(err, annotation.ErrStale) {
		t.Errorf("CommitStroke err = %v, want ErrStale", err)
	}
	if n := len(l.Objects()); n != 1 {
		t.Errorf("working state lost on detach: %d objects", n)
	}
}

func TestSerializeLoadRoundTrip(t *testing.T) {
	src, _ := attached(t, 1.5)
	src.CommitStroke([]domain.Point{{X: 3, Y: 6}, {X: 30, Y: 60}})
	src.InsertShape(domain.ToolCircle)
	src.InsertShape(domain.ToolArrow)

	data, err := src.Serialize()
	if err != nil {
		t.Fatal(err)
	}
	state, err := domain.DecodeAnnotationState(data)
	if err != nil {
		t.Fatal(err)
	}

	dst, changes := attached(t, 0.5)
	if err := dst.Load(state); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(src.Objects(), dst.Objects()); diff != "" {
		t.Errorf("round trip mismatch (-src +dst):\n%s", diff)
	}
	if *changes != 0 {
		t.Errorf("Load fired change hook %d times", *changes)
	}
}
