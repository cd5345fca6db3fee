package persist

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"annotate/internal/domain"
	"annotate/internal/service"
)

const (
	DefaultDebounce = 800 * time.Millisecond
	DefaultInterval = 10 * time.Second
)

// Error is a failed save or restore. It never aborts the document.
type Error struct {
	Op   string // "save", "restore" or "delete"
	Page int
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s annotations for page %d: %v", e.Op, e.Page, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// ErrNotReady is wrapped by Snapshot errors for pages that will become
// savable shortly, such as a page in the middle of a re-render. The save
// is rescheduled.
var ErrNotReady = errors.New("page not ready")

// Snapshot returns the serialized state of a page and its revision. The
// revision is reported even when err is set.
type Snapshot func(page int) (data []byte, revision int64, err error)

type Config struct {
	Store      domain.AnnotationStore
	Emitter    service.EventEmitter
	UserID     string
	DocumentID string
	Clock      Clock
	Debounce   time.Duration
	Interval   time.Duration
	// Snapshot reads a page's working state.
	Snapshot Snapshot
	// Current returns the active page for the periodic trigger.
	Current func() int
	// Rebase lifts a page's working revision above stored, the revision a
	// rejected write found in the store.
	Rebase func(page int, stored int64)
}

// Bridge saves one document's pages. Saves for the same page never
// overlap, and a save requested while one is running is rescheduled.
type Bridge struct {
	cfg   Config
	ctx   context.Context
	sched *Scheduler
	guard service.RunGuard

	mu    sync.Mutex
	saved map[int]int64 // last revision written per page
}

// NewBridge builds a bridge bound to ctx; cancelling ctx aborts in-flight
// store calls.
func NewBridge(ctx context.Context, cfg Config) *Bridge {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.Interval < 0 {
		cfg.Interval = 0
	}
	if cfg.Emitter == nil {
		cfg.Emitter = service.LogEmitter{}
	}
	b := &Bridge{cfg: cfg, ctx: ctx, saved: make(map[int]int64)}
	b.sched = NewScheduler(cfg.Clock, cfg.Debounce, cfg.Interval, b.onQuiet, b.onTick)
	return b
}

// Start arms the periodic save.
func (b *Bridge) Start() { b.sched.Start() }

// ScheduleSave coalesces saves for page into one write after the
// quiescence window.
func (b *Bridge) ScheduleSave(page int) { b.sched.Touch(page) }

// Pending reports whether page has a save waiting for its window.
func (b *Bridge) Pending(page int) bool { return b.sched.Pending(page) }

// MarkSaved records revision as already persisted, so a restored page is
// not written back unchanged.
func (b *Bridge) MarkSaved(page int, revision int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if revision > b.saved[page] {
		b.saved[page] = revision
	}
}

func (b *Bridge) onQuiet(page int) {
	if err := b.Save(b.ctx, page); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("persist: %v", err)
	}
}

func (b *Bridge) onTick() {
	if b.cfg.Current == nil {
		return
	}
	if page := b.cfg.Current(); page > 0 {
		b.onQuiet(page)
	}
}

func (b *Bridge) key(page int) string {
	return fmt.Sprintf("%s:%d", b.cfg.DocumentID, page)
}

// Save writes page now unless its revision was already written. When a
// save of the same page is running, the request is rescheduled instead.
func (b *Bridge) Save(ctx context.Context, page int) error {
	key := b.key(page)
	if !b.guard.TryLock(key) {
		b.sched.Touch(page)
		return nil
	}
	defer b.guard.Unlock(key)

	rev, err := b.write(ctx, page)
	if errors.Is(err, domain.ErrStaleRevision) && b.cfg.Rebase != nil {
		// Another writer, or a session whose record we failed to restore,
		// is ahead of us. Move past its revision and write once more.
		if rerr := b.rebase(ctx, page); rerr != nil {
			err = rerr
		} else {
			rev, err = b.write(ctx, page)
		}
	}
	if err != nil {
		if errors.Is(err, errUnchanged) {
			return nil
		}
		// Snapshot failures come back as *Error and stay quiet; store
		// failures are reported.
		var perr *Error
		if errors.As(err, &perr) {
			return perr
		}
		if ctx.Err() == nil {
			b.cfg.Emitter.Emit(ctx, service.EventAnnotationFailed, map[string]any{
				"documentId": b.cfg.DocumentID, "page": page, "error": err.Error(),
			})
		}
		return &Error{Op: "save", Page: page, Err: err}
	}
	b.MarkSaved(page, rev)
	b.cfg.Emitter.Emit(ctx, service.EventAnnotationSaved, map[string]any{
		"documentId": b.cfg.DocumentID, "page": page, "revision": rev,
	})
	return nil
}

var errUnchanged = errors.New("revision already saved")

// write snapshots page and upserts it. It returns errUnchanged when the
// revision was already written.
func (b *Bridge) write(ctx context.Context, page int) (int64, error) {
	data, rev, err := b.cfg.Snapshot(page)
	b.mu.Lock()
	done := rev <= b.saved[page]
	b.mu.Unlock()
	if done {
		return rev, errUnchanged
	}
	if err != nil {
		if errors.Is(err, ErrNotReady) {
			b.sched.Touch(page)
		}
		return rev, &Error{Op: "save", Page: page, Err: err}
	}
	rec := &domain.AnnotationRecord{
		UserID:     b.cfg.UserID,
		DocumentID: b.cfg.DocumentID,
		PageNumber: page,
		Revision:   rev,
		Data:       data,
	}
	if err := b.cfg.Store.UpsertAnnotation(ctx, rec); err != nil {
		return rev, err
	}
	return rev, nil
}

// rebase reads the stored revision of page and hands it to Config.Rebase.
func (b *Bridge) rebase(ctx context.Context, page int) error {
	rec, err := b.cfg.Store.GetAnnotation(ctx, b.cfg.UserID, b.cfg.DocumentID, page)
	if err != nil {
		return fmt.Errorf("read stored revision: %w", err)
	}
	if rec == nil {
		// The newer record is gone; the retry inserts ours.
		return nil
	}
	log.Printf("persist: page %d: stored revision %d is ahead, rebasing", page, rec.Revision)
	b.cfg.Rebase(page, rec.Revision)
	return nil
}

// Restore reads the stored state for page. A missing record is a blank
// page: (nil, 0, nil). Failures and malformed records come back as *Error
// and callers treat the page as blank.
func (b *Bridge) Restore(ctx context.Context, page int) (*domain.AnnotationState, int64, error) {
	rec, err := b.cfg.Store.GetAnnotation(ctx, b.cfg.UserID, b.cfg.DocumentID, page)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, 0, nil
		}
		return nil, 0, &Error{Op: "restore", Page: page, Err: err}
	}
	if rec == nil {
		return nil, 0, nil
	}
	state, err := rec.State()
	if err != nil {
		return nil, 0, &Error{Op: "restore", Page: page, Err: err}
	}
	b.MarkSaved(page, rec.Revision)
	return state, rec.Revision, nil
}

// Delete removes the stored record for page and drops any pending save.
func (b *Bridge) Delete(ctx context.Context, page int) error {
	b.sched.Cancel(page)
	if err := b.cfg.Store.DeleteAnnotation(ctx, b.cfg.UserID, b.cfg.DocumentID, page); err != nil {
		return &Error{Op: "delete", Page: page, Err: err}
	}
	return nil
}

// Stop cancels every timer and waits briefly for running saves.
func (b *Bridge) Stop() {
	b.sched.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	b.guard.WaitAll(ctx)
}
