package app

import (
	"context"
	"log"

	"annotate/internal/filewatch"
	"annotate/internal/source"
)

// Watch opens the local file at path and reloads it whenever it changes on
// disk, keeping the current page and zoom. It blocks until ctx ends.
func (a *App) Watch(ctx context.Context, path string) error {
	src := source.Source{Path: path}
	if err := a.Engine.Load(ctx, src); err != nil {
		return err
	}
	log.Printf("[Watch] %s: %d pages", path, a.Engine.TotalPages())

	w, err := filewatch.New(0)
	if err != nil {
		return err
	}
	defer w.Close()

	reloads := make(chan struct{}, 1)
	if err := w.Watch(path, func() {
		select {
		case reloads <- struct{}{}:
		default:
		}
	}); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-reloads:
			a.reload(ctx, src)
		}
	}
}

// reload loads src again and returns to the previous page and zoom. A
// failed reload leaves the engine empty until the next change.
func (a *App) reload(ctx context.Context, src source.Source) {
	page, zoom := a.Engine.CurrentPage(), a.Engine.Zoom()
	if err := a.Engine.Load(ctx, src); err != nil {
		log.Printf("[Watch] reload %s: %v", src.Path, err)
		return
	}
	if err := a.Engine.SetZoom(ctx, zoom); err != nil {
		log.Printf("[Watch] restore zoom: %v", err)
	}
	if page > 1 {
		if err := a.Engine.GoToPage(ctx, page); err != nil {
			log.Printf("[Watch] restore page: %v", err)
		}
	}
	log.Printf("[Watch] reloaded %s at page %d", src.Path, a.Engine.CurrentPage())
}
