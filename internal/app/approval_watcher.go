package app

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"annotate/internal/domain"
	"annotate/internal/service"
)

// approvalWatcher polls the database for changes made by a standalone MCP
// process (pending approvals, uploads and deletions) and emits events so
// connected clients refresh.
type approvalWatcher struct {
	approvals domain.ApprovalStore
	docs      domain.DocumentStore
	emitter   service.EventEmitter
	userID    string

	mu      sync.Mutex
	lastDoc string // documents fingerprint (count + newest created_at)
	// Track emitted approval IDs to avoid re-emission
	emitted map[string]bool
	stopCh  chan struct{}
	done    chan struct{}
}

func newApprovalWatcher(approvals domain.ApprovalStore, docs domain.DocumentStore, emitter service.EventEmitter, userID string) *approvalWatcher {
	return &approvalWatcher{
		approvals: approvals,
		docs:      docs,
		emitter:   emitter,
		userID:    userID,
		emitted:   map[string]bool{},
	}
}

// Start begins the polling loop.
func (w *approvalWatcher) Start(ctx context.Context, every time.Duration) {
	w.stopCh = make(chan struct{})
	w.done = make(chan struct{})
	go w.pollLoop(ctx, every)
}

// Stop terminates the polling loop and waits for it.
func (w *approvalWatcher) Stop() {
	if w.stopCh != nil {
		close(w.stopCh)
		<-w.done
		w.stopCh = nil
	}
}

func (w *approvalWatcher) pollLoop(ctx context.Context, every time.Duration) {
	defer close(w.done)
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.check(ctx)
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (w *approvalWatcher) check(ctx context.Context) {
	// ── Document list (uploads from another process) ─
	if docs, err := w.docs.ListDocuments(ctx, w.userID); err == nil {
		fp := fmt.Sprintf("%d", len(docs))
		if len(docs) > 0 {
			fp += "|" + docs[0].ID + "|" + docs[0].CreatedAt.String()
		}
		w.mu.Lock()
		changed := w.lastDoc != "" && w.lastDoc != fp
		w.lastDoc = fp
		w.mu.Unlock()
		if changed {
			w.emitter.Emit(ctx, service.EventDocumentChanged, map[string]any{"count": len(docs)})
		}
	}

	if w.approvals == nil {
		return
	}

	// ── Pending MCP approvals (cross-process IPC) ─
	pending, err := w.approvals.ListPendingApprovals(ctx)
	if err != nil {
		log.Printf("[Watcher] list approvals: %v", err)
		return
	}
	still := make(map[string]bool, len(pending))
	for _, a := range pending {
		still[a.ID] = true
		w.mu.Lock()
		alreadySent := w.emitted[a.ID]
		w.emitted[a.ID] = true
		w.mu.Unlock()
		if !alreadySent {
			w.emitter.Emit(ctx, "mcp:approval-required", map[string]string{
				"id":          a.ID,
				"tool":        a.Tool,
				"description": a.Description,
				"createdAt":   a.CreatedAt.UTC().Format(time.RFC3339),
				"metadata":    a.Metadata,
			})
		}
	}

	// Clean up tracking for resolved/deleted approvals
	w.mu.Lock()
	for id := range w.emitted {
		if !still[id] {
			delete(w.emitted, id)
			w.emitter.Emit(ctx, "mcp:approval-dismissed", map[string]string{"id": id})
		}
	}
	w.mu.Unlock()
}
