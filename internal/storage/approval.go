package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"annotate/internal/domain"
)

// ApprovalStore implements domain.ApprovalStore.
type ApprovalStore struct {
	db *DB
}

func NewApprovalStore(db *DB) *ApprovalStore {
	return &ApprovalStore{db: db}
}

func (s *ApprovalStore) CreateApproval(ctx context.Context, a *domain.Approval) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	if a.Status == "" {
		a.Status = domain.ApprovalPending
	}
	if a.Metadata == "" {
		a.Metadata = "{}"
	}
	_, err := s.db.exec(ctx,
		`INSERT INTO mcp_approvals (id, tool, description, status, metadata, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID, a.Tool, a.Description, a.Status, a.Metadata, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert approval: %w", err)
	}
	return nil
}

func (s *ApprovalStore) ApprovalStatus(ctx context.Context, id string) (string, error) {
	var status string
	err := s.db.queryRow(ctx, `SELECT status FROM mcp_approvals WHERE id = ?`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("approval %s: %w", id, domain.ErrNotFound)
	}
	return status, err
}

// ResolveApproval only changes approvals that are still pending.
func (s *ApprovalStore) ResolveApproval(ctx context.Context, id string, approved bool) error {
	status := domain.ApprovalRejected
	if approved {
		status = domain.ApprovalApproved
	}
	res, err := s.db.exec(ctx,
		`UPDATE mcp_approvals SET status = ? WHERE id = ? AND status = ?`,
		status, id, domain.ApprovalPending,
	)
	if err != nil {
		return fmt.Errorf("resolve approval: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("approval %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (s *ApprovalStore) ListPendingApprovals(ctx context.Context) ([]domain.Approval, error) {
	rows, err := s.db.query(ctx,
		`SELECT id, tool, description, status, metadata, created_at FROM mcp_approvals WHERE status = ? ORDER BY created_at ASC`,
		domain.ApprovalPending,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Approval
	for rows.Next() {
		var a domain.Approval
		if err := rows.Scan(&a.ID, &a.Tool, &a.Description, &a.Status, &a.Metadata, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *ApprovalStore) DeleteApproval(ctx context.Context, id string) error {
	_, err := s.db.exec(ctx, `DELETE FROM mcp_approvals WHERE id = ?`, id)
	return err
}
