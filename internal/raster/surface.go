// Package raster holds the pixel surfaces pages and annotation layers draw
// into, and the compositing rules between them.
package raster

import (
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"

	xdraw "golang.org/x/image/draw"
)

// Surface is a device-pixel drawing target. A disposed surface refuses
// every further draw.
type Surface struct {
	img      *image.RGBA
	disposed bool
}

func NewSurface(width, height int) *Surface {
	return &Surface{img: image.NewRGBA(image.Rect(0, 0, max(1, width), max(1, height)))}
}

func (s *Surface) Width() int  { return s.img.Rect.Dx() }
func (s *Surface) Height() int { return s.img.Rect.Dy() }

// Image exposes the backing pixels. Callers must not keep it past Dispose.
func (s *Surface) Image() *image.RGBA { return s.img }

// SameSize reports whether s and o have identical pixel dimensions.
func (s *Surface) SameSize(o *Surface) bool {
	return o != nil && s.img.Rect.Eq(o.img.Rect)
}

func (s *Surface) Clear() {
	clear(s.img.Pix)
}

func (s *Surface) Fill(c color.Color) {
	draw.Draw(s.img, s.img.Rect, image.NewUniform(c), image.Point{}, draw.Src)
}

// Dispose releases the pixel buffer.
func (s *Surface) Dispose() {
	s.disposed = true
	s.img = image.NewRGBA(image.Rect(0, 0, 1, 1))
}

func (s *Surface) Disposed() bool { return s.disposed }

// Flatten returns a copy of base with every layer composited on top,
// optionally scaled down to maxWidth pixels.
func Flatten(maxWidth int, base *Surface, layers ...*Surface) *image.RGBA {
	out := image.NewRGBA(base.img.Rect)
	copy(out.Pix, base.img.Pix)
	for _, l := range layers {
		if l == nil || !l.SameSize(base) {
			continue
		}
		Composite(out, l.img, OpSourceOver)
	}
	if maxWidth <= 0 || out.Rect.Dx() <= maxWidth {
		return out
	}
	h := out.Rect.Dy() * maxWidth / out.Rect.Dx()
	scaled := image.NewRGBA(image.Rect(0, 0, maxWidth, max(1, h)))
	xdraw.CatmullRom.Scale(scaled, scaled.Rect, out, out.Rect, xdraw.Src, nil)
	return scaled
}

// EncodePNG writes img as PNG.
func EncodePNG(w io.Writer, img image.Image) error {
	return png.Encode(w, img)
}
