// Package store persists comparisons in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zen-systems/modelcompare/pkg/adapter"
	"github.com/zen-systems/modelcompare/pkg/compare"
	_ "modernc.org/sqlite" // Pure-Go SQLite driver
)

// ErrNotFound is returned when a comparison id does not exist.
var ErrNotFound = errors.New("comparison not found")

// Paging bounds for List.
const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 100
)

// ResponseRecord is one persisted provider response.
type ResponseRecord struct {
	ID       string          `json:"id"`
	Provider string          `json:"provider"`
	Model    string          `json:"model"`
	Content  string          `json:"content"`
	Metrics  adapter.Metrics `json:"metrics"`
}

// Comparison is a persisted prompt with its successful responses.
type Comparison struct {
	ID        string           `json:"id"`
	Prompt    string           `json:"prompt"`
	Responses []ResponseRecord `json:"responses"`
	Metrics   compare.Metrics  `json:"metrics"`
	CreatedAt time.Time        `json:"createdAt"`
}

// SQLiteStore implements the comparison gateway on modernc.org/sqlite.
type SQLiteStore struct {
	db  *sql.DB
	mu  sync.Mutex // Serialize migrations
	now func() time.Time
}

// New opens (or creates) a SQLite database at path, applies pragmas and
// runs pending migrations.
func New(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}

	// SQLite performs best with a single write connection. WAL enables concurrent readers.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite %q: %w", path, err)
	}

	// modernc.org/sqlite requires SQL statements, not DSN params.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			db.Close()
			return nil, fmt.Errorf("exec %q: %w", p, err)
		}
	}

	s := &SQLiteStore{db: db, now: time.Now}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Tx executes fn within a database transaction. The transaction is
// committed if fn returns nil, rolled back otherwise.
func (s *SQLiteStore) Tx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed: %v (original: %w)", rbErr, err)
		}
		return err
	}

	return tx.Commit()
}

// Create stores a comparison and its responses atomically.
func (s *SQLiteStore) Create(ctx context.Context, prompt string, responses []adapter.Response, metrics compare.Metrics) (*Comparison, error) {
	c := &Comparison{
		ID:        uuid.NewString(),
		Prompt:    prompt,
		Responses: make([]ResponseRecord, 0, len(responses)),
		Metrics:   metrics,
		CreatedAt: s.now().UTC(),
	}
	for _, r := range responses {
		c.Responses = append(c.Responses, ResponseRecord{
			ID:       uuid.NewString(),
			Provider: r.Provider,
			Model:    r.Model,
			Content:  r.Content,
			Metrics:  r.Metrics,
		})
	}

	err := s.Tx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO comparisons
				(id, prompt, total_latency_ms, total_cost, fastest_model, most_cost_effective_model, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			c.ID, c.Prompt,
			c.Metrics.TotalLatencyMs, c.Metrics.TotalCost,
			c.Metrics.FastestModel, c.Metrics.MostCostEffectiveModel,
			c.CreatedAt.UnixNano(),
		)
		if err != nil {
			return fmt.Errorf("insert comparison: %w", err)
		}

		for i, r := range c.Responses {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO responses
					(id, comparison_id, position, provider, model, content,
					 prompt_tokens, completion_tokens, total_tokens, latency_ms, cost)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				r.ID, c.ID, i, r.Provider, r.Model, r.Content,
				r.Metrics.PromptTokens, r.Metrics.CompletionTokens, r.Metrics.TotalTokens,
				r.Metrics.LatencyMs, r.Metrics.Cost,
			)
			if err != nil {
				return fmt.Errorf("insert response %s: %w", r.Model, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Get returns one comparison with its responses, or ErrNotFound.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Comparison, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, prompt, total_latency_ms, total_cost, fastest_model, most_cost_effective_model, created_at
		FROM comparisons WHERE id = ?`, id)

	c, err := scanComparison(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get comparison %s: %w", id, err)
	}

	byID := map[string]*Comparison{c.ID: c}
	if err := s.loadResponses(ctx, byID); err != nil {
		return nil, err
	}
	return c, nil
}

// List returns one page of comparisons, newest first, and the total count.
// page and limit are normalized with DefaultPage, DefaultLimit and MaxLimit.
func (s *SQLiteStore) List(ctx context.Context, page, limit int) ([]Comparison, int, error) {
	page, limit = NormalizePage(page, limit)

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM comparisons").Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count comparisons: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, prompt, total_latency_ms, total_cost, fastest_model, most_cost_effective_model, created_at
		FROM comparisons
		ORDER BY created_at DESC, rowid DESC
		LIMIT ? OFFSET ?`, limit, (page-1)*limit)
	if err != nil {
		return nil, 0, fmt.Errorf("list comparisons: %w", err)
	}
	defer rows.Close()

	var list []*Comparison
	byID := make(map[string]*Comparison)
	for rows.Next() {
		c, err := scanComparison(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan comparison: %w", err)
		}
		list = append(list, c)
		byID[c.ID] = c
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate comparisons: %w", err)
	}
	rows.Close()

	if err := s.loadResponses(ctx, byID); err != nil {
		return nil, 0, err
	}

	out := make([]Comparison, len(list))
	for i, c := range list {
		out[i] = *c
	}
	return out, total, nil
}

// NormalizePage applies paging defaults and bounds.
func NormalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = DefaultPage
	}
	if limit < 1 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return page, limit
}

type scanner interface {
	Scan(dest ...any) error
}

func scanComparison(row scanner) (*Comparison, error) {
	var (
		c       Comparison
		created int64
	)
	err := row.Scan(&c.ID, &c.Prompt,
		&c.Metrics.TotalLatencyMs, &c.Metrics.TotalCost,
		&c.Metrics.FastestModel, &c.Metrics.MostCostEffectiveModel,
		&created,
	)
	if err != nil {
		return nil, err
	}
	c.CreatedAt = time.Unix(0, created).UTC()
	c.Responses = []ResponseRecord{}
	return &c, nil
}

func (s *SQLiteStore) loadResponses(ctx context.Context, byID map[string]*Comparison) error {
	for id, c := range byID {
		rows, err := s.db.QueryContext(ctx, `
			SELECT id, provider, model, content,
			       prompt_tokens, completion_tokens, total_tokens, latency_ms, cost
			FROM responses WHERE comparison_id = ? ORDER BY position`, id)
		if err != nil {
			return fmt.Errorf("load responses for %s: %w", id, err)
		}

		for rows.Next() {
			var r ResponseRecord
			if err := rows.Scan(&r.ID, &r.Provider, &r.Model, &r.Content,
				&r.Metrics.PromptTokens, &r.Metrics.CompletionTokens, &r.Metrics.TotalTokens,
				&r.Metrics.LatencyMs, &r.Metrics.Cost,
			); err != nil {
				rows.Close()
				return fmt.Errorf("scan response: %w", err)
			}
			c.Responses = append(c.Responses, r)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return fmt.Errorf("iterate responses: %w", err)
		}
	}
	return nil
}
