// Package repository persists link snapshots. The in-memory store stays authoritative;
// a repository only needs to round-trip what Save was given.
package repository

import (
	"context"

	"linkgate/internal/linking/domain"
)

// Repository defines persistence for links.
type Repository interface {
	// Save replaces the persisted state with snap.
	Save(ctx context.Context, snap domain.Snapshot) error
	// Load returns the persisted links. Malformed records are skipped, not reported as errors.
	Load(ctx context.Context) ([]domain.Link, error)
}

// Pinger is implemented by repositories that can report backend reachability.
type Pinger interface {
	PingContext(ctx context.Context) error
}
