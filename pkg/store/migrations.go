package store

import (
	"context"
	"database/sql"
	"fmt"
)

type migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

func execAll(stmts ...string) func(tx *sql.Tx) error {
	return func(tx *sql.Tx) error {
		for _, stmt := range stmts {
			if _, err := tx.Exec(stmt); err != nil {
				return err
			}
		}
		return nil
	}
}

// migrations must stay in ascending Version order. Never edit an applied one.
var migrations = []migration{
	{
		Version:     1,
		Description: "create comparisons and responses",
		Up: execAll(
			`CREATE TABLE comparisons (
				id                        TEXT    PRIMARY KEY,
				prompt                    TEXT    NOT NULL,
				total_latency_ms          INTEGER NOT NULL DEFAULT 0,
				total_cost                REAL    NOT NULL DEFAULT 0,
				fastest_model             TEXT    NOT NULL DEFAULT '',
				most_cost_effective_model TEXT    NOT NULL DEFAULT '',
				created_at                INTEGER NOT NULL
			)`,
			`CREATE INDEX idx_comparisons_created_at ON comparisons(created_at)`,
			`CREATE TABLE responses (
				id                TEXT    PRIMARY KEY,
				comparison_id     TEXT    NOT NULL REFERENCES comparisons(id) ON DELETE CASCADE,
				position          INTEGER NOT NULL,
				provider          TEXT    NOT NULL DEFAULT '',
				model             TEXT    NOT NULL,
				content           TEXT    NOT NULL,
				prompt_tokens     INTEGER NOT NULL DEFAULT 0,
				completion_tokens INTEGER NOT NULL DEFAULT 0,
				total_tokens      INTEGER NOT NULL DEFAULT 0,
				latency_ms        INTEGER NOT NULL DEFAULT 0,
				cost              REAL    NOT NULL DEFAULT 0
			)`,
			`CREATE INDEX idx_responses_comparison ON responses(comparison_id, position)`,
		),
	},
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS _migrations (
			version     INTEGER  PRIMARY KEY,
			description TEXT     NOT NULL,
			applied_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	for _, m := range migrations {
		var count int
		err := s.db.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM _migrations WHERE version = ?", m.Version,
		).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}
		if count > 0 {
			continue
		}

		err = s.Tx(ctx, func(tx *sql.Tx) error {
			if err := m.Up(tx); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx,
				"INSERT INTO _migrations (version, description) VALUES (?, ?)",
				m.Version, m.Description,
			)
			return err
		})
		if err != nil {
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}
	}
	return nil
}
