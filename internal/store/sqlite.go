package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/banyan-labs/lead-optimizer/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS checkpoints (
	lead_id     TEXT PRIMARY KEY,
	state       TEXT NOT NULL,
	result      TEXT NOT NULL,
	enriched_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_checkpoints_state ON checkpoints(state);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Save(ctx context.Context, lead model.EnrichedLead) error {
	if lead.Lead.ID == "" {
		return eris.New("sqlite: lead has no id")
	}

	resultJSON, err := json.Marshal(lead)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal checkpoint")
	}

	enrichedAt := lead.EnrichedAt
	if enrichedAt.IsZero() {
		enrichedAt = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO checkpoints (lead_id, state, result, enriched_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(lead_id) DO UPDATE SET state = excluded.state, result = excluded.result, enriched_at = excluded.enriched_at`,
		lead.Lead.ID, string(lead.State), string(resultJSON), enrichedAt,
	)
	return eris.Wrapf(err, "sqlite: save checkpoint %s", lead.Lead.ID)
}

func (s *SQLiteStore) Has(ctx context.Context, leadID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM checkpoints WHERE lead_id = ?`, leadID,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: has checkpoint %s", leadID)
	}
	return true, nil
}

func (s *SQLiteStore) Get(ctx context.Context, leadID string) (*model.EnrichedLead, error) {
	var resultJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT result FROM checkpoints WHERE lead_id = ?`, leadID,
	).Scan(&resultJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get checkpoint %s", leadID)
	}

	var lead model.EnrichedLead
	if err := json.Unmarshal([]byte(resultJSON), &lead); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal checkpoint")
	}
	return &lead, nil
}

func (s *SQLiteStore) List(ctx context.Context, filter Filter) ([]model.EnrichedLead, error) {
	query := `SELECT result FROM checkpoints WHERE 1=1`
	var args []any

	if filter.State != "" {
		query += ` AND state = ?`
		args = append(args, string(filter.State))
	}
	if filter.Tier != "" {
		// Filter in SQL so the LIMIT window only spans matching rows.
		query += ` AND EXISTS (SELECT 1 FROM json_each(result, '$.scores')
			WHERE json_extract(json_each.value, '$.tier') = ?)`
		args = append(args, string(filter.Tier))
	}
	query += ` ORDER BY enriched_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 1000
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list checkpoints")
	}
	defer rows.Close()

	var leads []model.EnrichedLead
	for rows.Next() {
		var resultJSON string
		if err := rows.Scan(&resultJSON); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan checkpoint")
		}
		var lead model.EnrichedLead
		if err := json.Unmarshal([]byte(resultJSON), &lead); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal checkpoint")
		}
		leads = append(leads, lead)
	}
	return leads, eris.Wrap(rows.Err(), "sqlite: list checkpoints iterate")
}

func (s *SQLiteStore) Count(ctx context.Context) (map[model.LeadState]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT state, COUNT(*) FROM checkpoints GROUP BY state`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: count checkpoints")
	}
	defer rows.Close()

	counts := make(map[model.LeadState]int)
	for rows.Next() {
		var state string
		var n int
		if err := rows.Scan(&state, &n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan count")
		}
		counts[model.LeadState(state)] = n
	}
	return counts, eris.Wrap(rows.Err(), "sqlite: count iterate")
}
