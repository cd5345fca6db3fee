package domain

import (
	"context"
	"time"
)

const (
	ApprovalPending  = "pending"
	ApprovalApproved = "approved"
	ApprovalRejected = "rejected"
)

// Approval is a destructive agent action waiting for a human decision.
type Approval struct {
	ID          string    `json:"id"`
	Tool        string    `json:"tool"`
	Description string    `json:"description"`
	Status      string    `json:"status"`
	Metadata    string    `json:"metadata"`
	CreatedAt   time.Time `json:"createdAt"`
}

// ApprovalStore lets a standalone agent process and the server share
// pending approvals through the metadata database.
type ApprovalStore interface {
	CreateApproval(ctx context.Context, a *Approval) error
	// ApprovalStatus returns ErrNotFound for unknown IDs.
	ApprovalStatus(ctx context.Context, id string) (string, error)
	ResolveApproval(ctx context.Context, id string, approved bool) error
	ListPendingApprovals(ctx context.Context) ([]Approval, error)
	DeleteApproval(ctx context.Context, id string) error
}
