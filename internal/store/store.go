// Package store persists per-lead checkpoints so interrupted batch runs can
// resume without reprocessing completed leads.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/banyan-labs/lead-optimizer/internal/config"
	"github.com/banyan-labs/lead-optimizer/internal/model"
)

// Store is the checkpoint interface: append-only, keyed by lead ID.
type Store interface {
	// Migrate creates the schema if needed.
	Migrate(ctx context.Context) error
	// Save checkpoints an enriched lead, replacing any prior checkpoint
	// for the same lead ID.
	Save(ctx context.Context, lead model.EnrichedLead) error
	// Has reports whether a checkpoint exists for the lead ID.
	Has(ctx context.Context, leadID string) (bool, error)
	// Get returns the checkpoint for a lead, or nil when absent.
	Get(ctx context.Context, leadID string) (*model.EnrichedLead, error)
	// List returns checkpoints filtered by state; empty state means all.
	List(ctx context.Context, filter Filter) ([]model.EnrichedLead, error)
	// Count returns checkpoint counts grouped by state.
	Count(ctx context.Context) (map[model.LeadState]int, error)
	Close() error
}

// Filter narrows List results.
type Filter struct {
	State  model.LeadState
	Tier   model.Tier // matches any product at this tier
	Limit  int
	Offset int
}

// Open builds a Store from configuration.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "", "sqlite":
		return NewSQLite(cfg.Path)
	case "postgres":
		return NewPostgres(ctx, cfg.DatabaseURL)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
}
