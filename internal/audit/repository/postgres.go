package repository

import (
	"context"
	"database/sql"

	"linkgate/internal/audit/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns an audit repository that writes to link_audit_log.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create persists e. The entry must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, e *domain.Entry) error {
	meta := sql.NullString{String: e.Metadata, Valid: e.Metadata != ""}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO link_audit_log (id, action, account_id, external_id, source, ip, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, e.Action, e.AccountID, e.ExternalID, e.Source, e.IP, meta, e.CreatedAt)
	return err
}

// ListByAccount returns the newest entries for accountID, at most limit.
func (r *PostgresRepository) ListByAccount(ctx context.Context, accountID string, limit int) ([]*domain.Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, action, account_id, external_id, source, ip, metadata, created_at
		 FROM link_audit_log WHERE account_id = $1 ORDER BY created_at DESC LIMIT $2`,
		accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Entry
	for rows.Next() {
		var (
			e    domain.Entry
			meta sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.Action, &e.AccountID, &e.ExternalID, &e.Source, &e.IP, &meta, &e.CreatedAt); err != nil {
			return nil, err
		}
		if meta.Valid {
			e.Metadata = meta.String
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}
