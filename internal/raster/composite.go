package raster

import (
	"image"

	"annotate/internal/domain"
)

// Op is a Porter-Duff style compositing operator.
type Op int

const (
	OpSourceOver Op = iota
	OpMultiply
	OpDestinationOut
)

// OpFor maps an object's composite mode to an Op.
func OpFor(c domain.CompositeOp) Op {
	switch c {
	case domain.CompositeMultiply:
		return OpMultiply
	case domain.CompositeDestinationOut:
		return OpDestinationOut
	}
	return OpSourceOver
}

// Composite blends src onto dst in place. Both images are premultiplied
// and must share bounds; extra pixels on either side are ignored.
func Composite(dst, src *image.RGBA, op Op) {
	r := dst.Rect.Intersect(src.Rect)
	for y := r.Min.Y; y < r.Max.Y; y++ {
		di := dst.PixOffset(r.Min.X, y)
		si := src.PixOffset(r.Min.X, y)
		for x := r.Min.X; x < r.Max.X; x++ {
			sa := uint32(src.Pix[si+3])
			if sa != 0 {
				blend(dst.Pix[di:di+4:di+4], src.Pix[si:si+4:si+4], op)
			}
			di += 4
			si += 4
		}
	}
}

func blend(d, s []byte, op Op) {
	sa := uint32(s[3])
	da := uint32(d[3])
	switch op {
	case OpDestinationOut:
		// d * (1 - sa)
		for i := range 4 {
			d[i] = byte(uint32(d[i]) * (255 - sa) / 255)
		}
	case OpMultiply:
		// s*(1-da) + d*(1-sa) + s*d
		for i := range 3 {
			sc, dc := uint32(s[i]), uint32(d[i])
			v := (sc*(255-da) + dc*(255-sa) + sc*dc) / 255
			d[i] = byte(min(v, 255))
		}
		d[3] = byte(sa + da - sa*da/255)
	default:
		// s + d * (1 - sa)
		for i := range 4 {
			v := uint32(s[i]) + uint32(d[i])*(255-sa)/255
			d[i] = byte(min(v, 255))
		}
	}
}
