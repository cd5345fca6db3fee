package app

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"
)

// Serve runs the HTTP server until ctx ends, then shuts it down gracefully.
// The link purge and the approval watcher run alongside it.
func (a *App) Serve(ctx context.Context) error {
	if err := a.purger.Start(ctx, a.cfg.PurgeCron); err != nil {
		return err
	}
	watcher := newApprovalWatcher(a.approvals, a.docs, a.emitter, a.cfg.UserID)
	watcher.Start(ctx, 2*time.Second)
	defer watcher.Stop()

	srv := &http.Server{
		Addr:              a.cfg.Addr,
		Handler:           a.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Printf("[Serve] listening on %s (%s)", a.cfg.Addr, a.cfg.BaseURL)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	log.Println("[Serve] shutting down...")
	return srv.Shutdown(shutdownCtx)
}
