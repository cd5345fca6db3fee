package raster

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"strings"
	"sync"

	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers/rasterizer"
	"golang.org/x/image/font/gofont/goregular"

	"annotate/internal/domain"
)

// Canvas units are mapped 1:1 to device pixels.
var pixelResolution = canvas.DPMM(1)

// ptPerPx converts a pixel size to the point size canvas font faces expect
// when one canvas unit is one pixel.
const ptPerPx = 72 / 25.4

var (
	fontOnce   sync.Once
	fontFamily *canvas.FontFamily
	fontErr    error
)

func textFamily() (*canvas.FontFamily, error) {
	fontOnce.Do(func() {
		family := canvas.NewFontFamily("annotate")
		if err := family.LoadFont(goregular.TTF, 0, canvas.FontRegular); err != nil {
			fontErr = fmt.Errorf("load text font: %w", err)
			return
		}
		fontFamily = family
	})
	return fontFamily, fontErr
}

// PaintObjects rasterizes objs onto dst in order, each with its own
// composite mode. Geometry is in page space and is multiplied by scale.
func PaintObjects(dst *Surface, objs []domain.Object, scale float64) error {
	if dst.Disposed() {
		return fmt.Errorf("paint: surface disposed")
	}
	for _, o := range objs {
		layer, err := paintObject(dst.Width(), dst.Height(), o, scale)
		if err != nil {
			return fmt.Errorf("paint %s %s: %w", o.Kind, o.ID, err)
		}
		Composite(dst.img, layer, OpFor(o.Composite))
	}
	return nil
}

func paintObject(w, h int, o domain.Object, scale float64) (*image.RGBA, error) {
	c := canvas.New(float64(w), float64(h))
	ctx := canvas.NewContext(c)
	ctx.SetCoordSystem(canvas.CartesianIV)

	opacity := o.Opacity
	if opacity == 0 {
		opacity = 1
	}
	stroke := ParseColor(o.Stroke, opacity)
	fill := color.RGBA{}
	if o.Fill != "" && o.Fill != "transparent" {
		fill = ParseColor(o.Fill, opacity)
	}
	sw := o.StrokeWidth * scale
	if sw <= 0 {
		sw = scale
	}
	ctx.SetStrokeColor(stroke)
	ctx.SetStrokeWidth(sw)
	ctx.SetStrokeCapper(canvas.RoundCap)
	ctx.SetStrokeJoiner(canvas.RoundJoin)
	ctx.SetFillColor(fill)

	switch o.Kind {
	case domain.ObjectPath:
		if len(o.Points) == 1 {
			ctx.SetFillColor(stroke)
			ctx.SetStrokeColor(canvas.Transparent)
			ctx.DrawPath(o.Points[0].X*scale, o.Points[0].Y*scale, canvas.Circle(sw/2))
			break
		}
		ctx.SetFillColor(canvas.Transparent)
		ctx.DrawPath(0, 0, polyline(o.Points, scale))
	case domain.ObjectRect:
		ctx.DrawPath(o.X*scale, o.Y*scale, canvas.Rectangle(o.Width*scale, o.Height*scale))
	case domain.ObjectCircle:
		// canvas circles are centered on the draw position
		r := o.Radius * scale
		ctx.DrawPath(o.X*scale+r, o.Y*scale+r, canvas.Circle(r))
	case domain.ObjectLine:
		ctx.DrawPath(0, 0, polyline(o.Points, scale))
	case domain.ObjectArrow:
		ctx.DrawPath(0, 0, polyline(o.Points, scale))
		if len(o.Points) == 2 {
			ctx.DrawPath(0, 0, arrowHead(o.Points[0], o.Points[1], scale, sw))
		}
	case domain.ObjectText:
		family, err := textFamily()
		if err != nil {
			return nil, err
		}
		face := family.Face(o.FontSize*scale*ptPerPx, stroke, canvas.FontRegular, canvas.FontNormal)
		for i, line := range strings.Split(o.Text, "\n") {
			baseline := (o.Y + o.FontSize*float64(i+1)) * scale
			ctx.DrawText(o.X*scale, baseline, canvas.NewTextLine(face, line, canvas.Left))
		}
	default:
		return nil, fmt.Errorf("unknown kind")
	}
	return rasterizer.Draw(c, pixelResolution, canvas.DefaultColorSpace), nil
}

func polyline(pts []domain.Point, scale float64) *canvas.Path {
	p := &canvas.Path{}
	for i, pt := range pts {
		if i == 0 {
			p.MoveTo(pt.X*scale, pt.Y*scale)
			continue
		}
		p.LineTo(pt.X*scale, pt.Y*scale)
	}
	return p
}

func arrowHead(from, to domain.Point, scale, strokeWidth float64) *canvas.Path {
	size := math.Max(10*scale, 3*strokeWidth)
	angle := math.Atan2(to.Y-from.Y, to.X-from.X)
	tx, ty := to.X*scale, to.Y*scale
	p := &canvas.Path{}
	for _, a := range []float64{angle + math.Pi*5/6, angle - math.Pi*5/6} {
		p.MoveTo(tx, ty)
		p.LineTo(tx+size*math.Cos(a), ty+size*math.Sin(a))
	}
	return p
}

// ParseColor reads "#rgb" or "#rrggbb" and applies opacity. Anything it
// cannot parse is black.
func ParseColor(s string, opacity float64) color.RGBA {
	s = strings.TrimSpace(s)
	if len(s) == 4 && s[0] == '#' {
		s = "#" + string([]byte{s[1], s[1], s[2], s[2], s[3], s[3]})
	}
	base := color.RGBA{A: 255}
	if len(s) == 7 && s[0] == '#' {
		base = canvas.Hex(s)
	}
	a := math.Max(0, math.Min(1, opacity))
	return color.RGBA{
		R: uint8(float64(base.R) * a),
		G: uint8(float64(base.G) * a),
		B: uint8(float64(base.B) * a),
		A: uint8(float64(base.A) * a),
	}
}
