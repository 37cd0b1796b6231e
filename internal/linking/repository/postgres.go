package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"linkgate/internal/linking/domain"
)

// PostgresRepository stores links in the account_links table.
type PostgresRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewPostgresRepository returns a link repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB, log zerolog.Logger) *PostgresRepository {
	return &PostgresRepository{db: db, log: log.With().Str("component", "postgres_repository").Logger()}
}

// PingContext checks database reachability.
func (r *PostgresRepository) PingContext(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Save replaces the table contents with snap in one transaction.
func (r *PostgresRepository) Save(ctx context.Context, snap domain.Snapshot) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM account_links`); err != nil {
		return fmt.Errorf("clear account_links: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO account_links (account_id, external_id, display_name, linked_at) VALUES ($1, $2, $3, $4)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()
	for _, l := range snap.Links {
		name := sql.NullString{String: l.DisplayName, Valid: l.DisplayName != ""}
		if _, err := stmt.ExecContext(ctx, l.AccountID, l.ExternalID, name, l.LinkedAt.UTC()); err != nil {
			return fmt.Errorf("insert link %s: %w", l.AccountID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save: %w", err)
	}
	return nil
}

// Load returns all rows with a positive external id.
func (r *PostgresRepository) Load(ctx context.Context) ([]domain.Link, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT account_id, external_id, display_name, linked_at FROM account_links`)
	if err != nil {
		return nil, fmt.Errorf("query account_links: %w", err)
	}
	defer rows.Close()

	var links []domain.Link
	for rows.Next() {
		var (
			l    domain.Link
			name sql.NullString
			at   time.Time
		)
		if err := rows.Scan(&l.AccountID, &l.ExternalID, &name, &at); err != nil {
			r.log.Warn().Err(err).Msg("skipping unreadable link row")
			continue
		}
		if l.ExternalID <= 0 {
			r.log.Warn().Str("account_id", l.AccountID).Int64("external_id", l.ExternalID).Msg("skipping invalid link row")
			continue
		}
		if name.Valid {
			l.DisplayName = name.String
		}
		l.LinkedAt = at.UTC()
		links = append(links, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate account_links: %w", err)
	}
	return links, nil
}
