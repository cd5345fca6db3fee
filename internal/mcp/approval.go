package mcpserver

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"annotate/internal/domain"
)

// EventEmitter allows the approval queue to notify connected clients.
type EventEmitter interface {
	Emit(ctx context.Context, event string, data any)
}

// PendingAction represents a destructive operation awaiting user approval.
type PendingAction struct {
	ID          string `json:"id"`
	Tool        string `json:"tool"`
	Description string `json:"description"`
	CreatedAt   string `json:"createdAt"`
	Metadata    string `json:"metadata"` // JSON with extra context (e.g. page numbers)
}

// actionResult is sent through the channel when user approves/rejects.
type actionResult struct {
	approved bool
}

type waiting struct {
	action PendingAction
	ch     chan actionResult
}

// ApprovalQueue manages human-in-the-loop approval for destructive MCP tool calls.
// It supports two modes:
//   - In-process (serve command): uses channels + websocket events
//   - Store-based (standalone MCP): writes to the approvals table, polls for result
type ApprovalQueue struct {
	mu      sync.Mutex
	pending map[string]waiting
	ctx     context.Context
	emitter EventEmitter
	timeout time.Duration
	poll    time.Duration
	// Store-based mode for standalone MCP (cross-process IPC)
	store domain.ApprovalStore
}

func NewApprovalQueue(ctx context.Context, emitter EventEmitter) *ApprovalQueue {
	return &ApprovalQueue{
		pending: make(map[string]waiting),
		ctx:     ctx,
		emitter: emitter,
		timeout: 120 * time.Second,
		poll:    500 * time.Millisecond,
	}
}

// SetStore enables store-based approval mode for standalone MCP.
func (q *ApprovalQueue) SetStore(store domain.ApprovalStore) {
	q.store = store
}

// SetTimeout changes how long Request waits for a decision.
func (q *ApprovalQueue) SetTimeout(d time.Duration) {
	q.timeout = d
}

// Request sends an approval request and blocks until approved/rejected.
// metadata is optional JSON with extra context.
func (q *ApprovalQueue) Request(tool, description string, metadata ...string) (bool, error) {
	id := uuid.New().String()
	meta := "{}"
	if len(metadata) > 0 && metadata[0] != "" {
		meta = metadata[0]
	}

	if q.store != nil {
		return q.requestViaStore(id, tool, description, meta)
	}
	return q.requestViaChannel(id, tool, description, meta)
}

// requestViaStore writes a pending approval and polls until it is resolved.
func (q *ApprovalQueue) requestViaStore(id, tool, description, metadata string) (bool, error) {
	err := q.store.CreateApproval(q.ctx, &domain.Approval{
		ID:          id,
		Tool:        tool,
		Description: description,
		Metadata:    metadata,
	})
	if err != nil {
		return false, err
	}
	defer func() {
		if err := q.store.DeleteApproval(context.Background(), id); err != nil {
			log.Printf("[MCP] delete approval %s: %v", id, err)
		}
	}()

	deadline := time.Now().Add(q.timeout)
	ticker := time.NewTicker(q.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if time.Now().After(deadline) {
				return false, fmt.Errorf("action timed out after %s: %s", q.timeout, tool)
			}
			status, err := q.store.ApprovalStatus(q.ctx, id)
			if err != nil {
				continue
			}
			switch status {
			case domain.ApprovalApproved:
				return true, nil
			case domain.ApprovalRejected:
				return false, fmt.Errorf("action rejected by user: %s", tool)
			}
			// still pending
		case <-q.ctx.Done():
			return false, fmt.Errorf("context cancelled")
		}
	}
}

// requestViaChannel is the in-process mode using emitter events.
func (q *ApprovalQueue) requestViaChannel(id, tool, description, metadata string) (bool, error) {
	action := PendingAction{
		ID:          id,
		Tool:        tool,
		Description: description,
		CreatedAt:   time.Now().UTC().Format(time.RFC3339),
		Metadata:    metadata,
	}
	ch := make(chan actionResult, 1)

	q.mu.Lock()
	q.pending[id] = waiting{action: action, ch: ch}
	q.mu.Unlock()
	defer q.cleanup(id)

	q.emitter.Emit(q.ctx, "mcp:approval-required", action)

	select {
	case result := <-ch:
		if !result.approved {
			return false, fmt.Errorf("action rejected by user: %s", tool)
		}
		return true, nil
	case <-time.After(q.timeout):
		q.emitter.Emit(q.ctx, "mcp:approval-dismissed", map[string]string{"id": id})
		return false, fmt.Errorf("action timed out after %s: %s", q.timeout, tool)
	case <-q.ctx.Done():
		return false, fmt.Errorf("context cancelled")
	}
}

// Approve marks a pending action as approved (in-process mode).
func (q *ApprovalQueue) Approve(actionID string) {
	q.resolve(actionID, true)
}

// Reject marks a pending action as rejected (in-process mode).
func (q *ApprovalQueue) Reject(actionID string) {
	q.resolve(actionID, false)
}

func (q *ApprovalQueue) resolve(actionID string, approved bool) {
	q.mu.Lock()
	w, ok := q.pending[actionID]
	q.mu.Unlock()
	if !ok {
		return
	}
	select {
	case w.ch <- actionResult{approved: approved}:
	default:
	}
}

// Pending returns the in-process actions still waiting, oldest first.
func (q *ApprovalQueue) Pending() []PendingAction {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]PendingAction, 0, len(q.pending))
	for _, w := range q.pending {
		out = append(out, w.action)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt < out[j].CreatedAt })
	return out
}

func (q *ApprovalQueue) cleanup(id string) {
	q.mu.Lock()
	delete(q.pending, id)
	q.mu.Unlock()
}
