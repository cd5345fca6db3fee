package layout_test

import (
	"errors"
	"math"
	"testing"

	"annotate/internal/layout"
)

// ─── Width law ───────────────────────────────────────────────

func TestComputeWidthLaw(t *testing.T) {
	widths := []float64{200, 640, 1024, 1920}
	zooms := []float64{0.25, 0.5, 1, 1.25, 2, 3}
	for _, w := range widths {
		for _, z := range zooms {
			// Page width equal to the available width gives fit scale 1,
			// so the effective scale is z itself and stays inside the clamp.
			in := layout.Input{
				ContainerWidth:   w,
				PageWidth:        w - layout.DefaultPadding,
				PageHeight:       800,
				Zoom:             z,
				DevicePixelRatio: 2,
				Padding:          layout.DefaultPadding,
			}
			l, err := layout.Compute(in)
			if err != nil {
				t.Fatalf("Compute(w=%v z=%v): %v", w, z, err)
			}
			want := (w - layout.DefaultPadding) * z
			if math.Abs(l.Width-want) > 0.5 {
				t.Errorf("w=%v z=%v: width = %v, want %v", w, z, l.Width, want)
			}
			if got := float64(l.DeviceWidth); math.Abs(got-want*2) > 1 {
				t.Errorf("w=%v z=%v: device width = %v, want %v", w, z, got, want*2)
			}

			again, _ := layout.Compute(in)
			if again != l {
				t.Errorf("w=%v z=%v: not idempotent: %+v vs %+v", w, z, l, again)
			}
		}
	}
}

func TestComputeClampsScale(t *testing.T) {
	l, err := layout.Compute(layout.Input{ContainerWidth: 10040, PageWidth: 100, PageHeight: 100, Zoom: 1, Padding: 40})
	if err != nil {
		t.Fatal(err)
	}
	if l.Scale != layout.MaxZoom {
		t.Errorf("scale = %v, want %v", l.Scale, layout.MaxZoom)
	}

	l, err = layout.Compute(layout.Input{ContainerWidth: 50, PageWidth: 1000, PageHeight: 100, Zoom: 1, Padding: 40})
	if err != nil {
		t.Fatal(err)
	}
	if l.Scale != layout.MinZoom {
		t.Errorf("scale = %v, want %v", l.Scale, layout.MinZoom)
	}
	if l.DeviceHeight < 1 || l.DeviceWidth < 1 {
		t.Errorf("device size must be at least 1px, got %dx%d", l.DeviceWidth, l.DeviceHeight)
	}
}

// ─── Failures ────────────────────────────────────────────────

func TestComputeInvalidContainer(t *testing.T) {
	for _, w := range []float64{0, -10, 40} {
		_, err := layout.Compute(layout.Input{ContainerWidth: w, PageWidth: 600, PageHeight: 800, Zoom: 1, Padding: 40})
		if !errors.Is(err, layout.ErrInvalidContainer) {
			t.Errorf("width %v: err = %v, want ErrInvalidContainer", w, err)
		}
	}
}

func TestClampZoom(t *testing.T) {
	cases := map[float64]float64{0.1: 0.25, 0.25: 0.25, 1: 1, 3: 3, 4.5: 3}
	for in, want := range cases {
		if got := layout.ClampZoom(in); got != want {
			t.Errorf("ClampZoom(%v) = %v, want %v", in, got, want)
		}
	}
}
