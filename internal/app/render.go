package app

import (
	"context"
	"io"

	"annotate/internal/engine"
	"annotate/internal/source"
)

// RenderPage writes page n of src, with the user's saved annotations
// composited on top, as PNG. Each call uses its own short-lived engine so
// renders never disturb the interactive one.
func (a *App) RenderPage(ctx context.Context, src source.Source, n, maxWidth int, w io.Writer) error {
	eng, err := a.newEngine(engine.NewStaticViewport(1024, 768, 1))
	if err != nil {
		return err
	}
	defer eng.Destroy()

	if err := eng.Load(ctx, src); err != nil {
		return err
	}
	return eng.ExportPage(ctx, n, w, maxWidth)
}
