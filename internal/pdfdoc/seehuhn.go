package pdfdoc

import (
	"bytes"
	"context"
	"fmt"
	"image/color"
	"sync"

	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers/rasterizer"
	"seehuhn.de/go/pdf"
	"seehuhn.de/go/pdf/graphics"
	"seehuhn.de/go/pdf/pagetree"
	"seehuhn.de/go/pdf/reader"

	"annotate/internal/raster"
)

// PDF opens documents with seehuhn.de/go/pdf and paints their vector
// content with tdewolff/canvas. Text and images are not drawn.
type PDF struct{}

func NewPDF() *PDF { return &PDF{} }

func (PDF) Open(ctx context.Context, data []byte) (Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r, err := pdf.NewReader(bytes.NewReader(data), nil)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	n, err := pagetree.NumPages(r)
	if err != nil {
		r.Close()
		return nil, fmt.Errorf("count pages: %w", err)
	}
	if n < 1 {
		r.Close()
		return nil, fmt.Errorf("open pdf: document has no pages")
	}
	return &pdfDocument{r: r, pages: n}, nil
}

type pdfDocument struct {
	mu    sync.Mutex // the reader is not safe for concurrent use
	r     *pdf.Reader
	pages int
}

func (d *pdfDocument) NumPages() int { return d.pages }

func (d *pdfDocument) page(n int) (pdf.Dict, *pdf.Rectangle, error) {
	if n < 1 || n > d.pages {
		return nil, nil, fmt.Errorf("page %d: %w", n, ErrPageRange)
	}
	dict, err := pagetree.GetPage(d.r, n-1)
	if err != nil {
		return nil, nil, fmt.Errorf("page %d: %w", n, err)
	}
	box, err := pdf.GetRectangle(d.r, dict["MediaBox"])
	if err != nil || box == nil {
		// US Letter when the page tree carries no usable MediaBox.
		box = &pdf.Rectangle{URx: 612, URy: 792}
	}
	return dict, box, nil
}

func (d *pdfDocument) PageSize(n int) (float64, float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, box, err := d.page(n)
	if err != nil {
		return 0, 0, err
	}
	return box.URx - box.LLx, box.URy - box.LLy, nil
}

func (d *pdfDocument) RenderPage(ctx context.Context, n int, dst *raster.Surface, scale float64) error {
	release, err := acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	d.mu.Lock()
	dict, box, err := d.page(n)
	if err != nil {
		d.mu.Unlock()
		return err
	}
	w, h := float64(dst.Width()), float64(dst.Height())
	c := canvas.New(w, h)
	cctx := canvas.NewContext(c)
	cctx.SetCoordSystem(canvas.CartesianIV)
	cctx.SetFillColor(settings.Background)
	cctx.DrawPath(0, 0, canvas.Rectangle(w, h))

	p := &pagePainter{ctx: cctx, box: box, scale: scale}
	rd := reader.New(d.r, nil)
	rd.EveryOp = func(op string, args []pdf.Object) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return p.op(rd, op, args)
	}
	err = rd.ParsePage(dict, graphics.IdentityMatrix)
	d.mu.Unlock()
	if err != nil {
		return fmt.Errorf("render page %d: %w", n, err)
	}
	if dst.Disposed() {
		return fmt.Errorf("render page %d: surface disposed", n)
	}
	img := rasterizer.Draw(c, canvas.DPMM(1), canvas.DefaultColorSpace)
	copy(dst.Image().Pix, img.Pix)
	return nil
}

func (d *pdfDocument) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.r.Close()
}

// pagePainter turns content-stream path operators into canvas paths in
// device pixels.
type pagePainter struct {
	ctx   *canvas.Context
	box   *pdf.Rectangle
	scale float64
	path  *canvas.Path
}

func (p *pagePainter) device(m graphics.Matrix, x, y float64) (float64, float64) {
	x, y = m.Apply(x, y)
	return (x - p.box.LLx) * p.scale, (p.box.URy - y) * p.scale
}

func (p *pagePainter) op(rd *reader.Reader, op string, args []pdf.Object) error {
	nums := numbers(args)
	if p.path == nil {
		p.path = &canvas.Path{}
	}
	ctm := rd.CTM
	switch op {
	case "m":
		if len(nums) == 2 {
			p.path.MoveTo(p.device(ctm, nums[0], nums[1]))
		}
	case "l":
		if len(nums) == 2 {
			p.path.LineTo(p.device(ctm, nums[0], nums[1]))
		}
	case "c":
		if len(nums) == 6 {
			x1, y1 := p.device(ctm, nums[0], nums[1])
			x2, y2 := p.device(ctm, nums[2], nums[3])
			x3, y3 := p.device(ctm, nums[4], nums[5])
			p.path.CubeTo(x1, y1, x2, y2, x3, y3)
		}
	case "re":
		if len(nums) == 4 {
			x, y, w, h := nums[0], nums[1], nums[2], nums[3]
			p.path.MoveTo(p.device(ctm, x, y))
			p.path.LineTo(p.device(ctm, x+w, y))
			p.path.LineTo(p.device(ctm, x+w, y+h))
			p.path.LineTo(p.device(ctm, x, y+h))
			p.path.Close()
		}
	case "h":
		p.path.Close()
	case "S", "s", "f", "F", "f*", "B", "B*", "b", "b*":
		if op == "s" || op == "b" || op == "b*" {
			p.path.Close()
		}
		stroke := op == "S" || op == "s" || op == "B" || op == "B*" || op == "b" || op == "b*"
		fill := op != "S" && op != "s"
		p.paint(rd, stroke, fill)
		p.path = nil
	case "n":
		p.path = nil
	}
	return nil
}

func (p *pagePainter) paint(rd *reader.Reader, stroke, fill bool) {
	if p.path.Empty() {
		return
	}
	p.ctx.SetStrokeColor(canvas.Transparent)
	p.ctx.SetFillColor(canvas.Transparent)
	if stroke {
		p.ctx.SetStrokeColor(goColor(rd.StrokeColor))
		p.ctx.SetStrokeWidth(max(rd.LineWidth, 1) * p.scale)
	}
	if fill {
		p.ctx.SetFillColor(goColor(rd.FillColor))
	}
	p.ctx.DrawPath(0, 0, p.path)
}

// goColor uses the library color when it speaks image/color and falls
// back to black.
func goColor(c any) color.Color {
	if gc, ok := c.(color.Color); ok && gc != nil {
		return gc
	}
	return color.Black
}

func numbers(args []pdf.Object) []float64 {
	out := make([]float64, 0, len(args))
	for _, a := range args {
		switch v := a.(type) {
		case pdf.Integer:
			out = append(out, float64(v))
		case pdf.Real:
			out = append(out, float64(v))
		}
	}
	return out
}
