package repository

import (
	"context"

	"linkgate/internal/audit/domain"
)

// Repository defines persistence for audit entries.
type Repository interface {
	Create(ctx context.Context, e *domain.Entry) error
	ListByAccount(ctx context.Context, accountID string, limit int) ([]*domain.Entry, error)
}
