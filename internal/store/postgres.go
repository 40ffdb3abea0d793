package store

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/banyan-labs/lead-optimizer/internal/model"
)

// pgPool is the minimal pool surface used by PostgresStore. pgxpool.Pool
// and the pgxmock pool both satisfy it.
type pgPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store on PostgreSQL for shared checkpoint
// databases.
type PostgresStore struct {
	pool pgPool
}

// NewPostgres connects to the checkpoint database.
func NewPostgres(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresFromPool wraps an existing pool. Used by tests.
func NewPostgresFromPool(pool pgPool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS checkpoints (
	lead_id     TEXT PRIMARY KEY,
	state       TEXT NOT NULL,
	result      JSONB NOT NULL,
	enriched_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_checkpoints_state ON checkpoints(state)`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) Save(ctx context.Context, lead model.EnrichedLead) error {
	if lead.Lead.ID == "" {
		return eris.New("postgres: lead has no id")
	}

	resultJSON, err := json.Marshal(lead)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal checkpoint")
	}

	enrichedAt := lead.EnrichedAt
	if enrichedAt.IsZero() {
		enrichedAt = time.Now().UTC()
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO checkpoints (lead_id, state, result, enriched_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (lead_id) DO UPDATE SET state = EXCLUDED.state, result = EXCLUDED.result, enriched_at = EXCLUDED.enriched_at`,
		lead.Lead.ID, string(lead.State), resultJSON, enrichedAt,
	)
	return eris.Wrapf(err, "postgres: save checkpoint %s", lead.Lead.ID)
}

func (s *PostgresStore) Has(ctx context.Context, leadID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM checkpoints WHERE lead_id = $1)`, leadID,
	).Scan(&exists)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: has checkpoint %s", leadID)
	}
	return exists, nil
}

func (s *PostgresStore) Get(ctx context.Context, leadID string) (*model.EnrichedLead, error) {
	var resultJSON []byte
	err := s.pool.QueryRow(ctx,
		`SELECT result FROM checkpoints WHERE lead_id = $1`, leadID,
	).Scan(&resultJSON)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get checkpoint %s", leadID)
	}

	var lead model.EnrichedLead
	if err := json.Unmarshal(resultJSON, &lead); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal checkpoint")
	}
	return &lead, nil
}

func (s *PostgresStore) List(ctx context.Context, filter Filter) ([]model.EnrichedLead, error) {
	query := `SELECT result FROM checkpoints WHERE 1=1`
	var args []any

	if filter.State != "" {
		args = append(args, string(filter.State))
		query += ` AND state = $` + strconv.Itoa(len(args))
	}
	if filter.Tier != "" {
		// Filter in SQL so the LIMIT window only spans matching rows.
		args = append(args, string(filter.Tier))
		query += ` AND EXISTS (SELECT 1 FROM jsonb_each(result->'scores') AS s
			WHERE s.value->>'tier' = $` + strconv.Itoa(len(args)) + `)`
	}
	query += ` ORDER BY enriched_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 1000
	}
	args = append(args, limit)
	query += ` LIMIT $` + strconv.Itoa(len(args))

	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += ` OFFSET $` + strconv.Itoa(len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list checkpoints")
	}
	defer rows.Close()

	var leads []model.EnrichedLead
	for rows.Next() {
		var resultJSON []byte
		if err := rows.Scan(&resultJSON); err != nil {
			return nil, eris.Wrap(err, "postgres: scan checkpoint")
		}
		var lead model.EnrichedLead
		if err := json.Unmarshal(resultJSON, &lead); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal checkpoint")
		}
		leads = append(leads, lead)
	}
	return leads, eris.Wrap(rows.Err(), "postgres: list checkpoints iterate")
}

func (s *PostgresStore) Count(ctx context.Context) (map[model.LeadState]int, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT state, COUNT(*) FROM checkpoints GROUP BY state`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: count checkpoints")
	}
	defer rows.Close()

	counts := make(map[model.LeadState]int)
	for rows.Next() {
		var state string
		var n int64
		if err := rows.Scan(&state, &n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan count")
		}
		counts[model.LeadState(state)] = int(n)
	}
	return counts, eris.Wrap(rows.Err(), "postgres: count iterate")
}

