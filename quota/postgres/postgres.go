// Package postgres provides a PostgreSQL-backed QuotaStore.
//
// Every period is its own row, unique per (user_id, reset_at). Usage is
// incremented with a single UPDATE, so concurrent debits from several
// instances are not lost.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/kai200407/aipostblog"
)

// DBPool is the subset of *pgxpool.Pool the store uses.
type DBPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store is a PostgreSQL-backed QuotaStore and UsageRecorder.
type Store struct {
	pool        DBPool
	tablePrefix string
}

var (
	_ aipostblog.QuotaStore    = (*Store)(nil)
	_ aipostblog.UsageRecorder = (*Store)(nil)
)

// Option configures Store.
type Option func(*Store)

// WithTablePrefix sets the table name prefix (default "aipost_").
func WithTablePrefix(prefix string) Option {
	return func(s *Store) { s.tablePrefix = prefix }
}

// New creates a new PostgreSQL-backed QuotaStore.
func New(pool DBPool, opts ...Option) *Store {
	s := &Store{
		pool:        pool,
		tablePrefix: "aipost_",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) quotasTable() string { return s.tablePrefix + "quotas" }
func (s *Store) usageTable() string  { return s.tablePrefix + "usage_records" }

const quotaColumns = "id, user_id, plan, tokens_total, tokens_used, reset_at, created_at"

// EnsureSchema creates the required tables if they don't exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	q := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %[1]s (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			plan TEXT NOT NULL,
			tokens_total BIGINT NOT NULL,
			tokens_used BIGINT NOT NULL DEFAULT 0,
			reset_at TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (user_id, reset_at)
		);
		CREATE TABLE IF NOT EXISTS %[2]s (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			quota_id TEXT,
			model TEXT NOT NULL,
			content_type TEXT NOT NULL,
			template_id TEXT NOT NULL,
			input TEXT NOT NULL,
			output TEXT NOT NULL,
			input_tokens BIGINT NOT NULL,
			output_tokens BIGINT NOT NULL,
			attempts TEXT[] NOT NULL,
			streamed BOOLEAN NOT NULL,
			partial BOOLEAN NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS %[2]s_user_idx ON %[2]s (user_id, created_at);
	`, s.quotasTable(), s.usageTable())
	if _, err := s.pool.Exec(ctx, q); err != nil {
		return fmt.Errorf("aipostblog/postgres: ensure schema: %w", err)
	}
	return nil
}

func scanQuota(row pgx.Row) (aipostblog.Quota, error) {
	var q aipostblog.Quota
	var plan string
	if err := row.Scan(&q.ID, &q.UserID, &plan, &q.TokensTotal, &q.TokensUsed, &q.ResetAt, &q.CreatedAt); err != nil {
		return aipostblog.Quota{}, err
	}
	q.Tier = aipostblog.PlanTier(plan)
	q.ResetAt = q.ResetAt.UTC()
	q.CreatedAt = q.CreatedAt.UTC()
	return q, nil
}

func (s *Store) GetCurrent(ctx context.Context, userID string, resetAt time.Time) (aipostblog.Quota, error) {
	q, err := scanQuota(s.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT %s FROM %s WHERE user_id = $1 AND reset_at = $2`, quotaColumns, s.quotasTable()),
		userID, resetAt.UTC(),
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return aipostblog.Quota{}, aipostblog.ErrQuotaNotFound
	}
	if err != nil {
		return aipostblog.Quota{}, fmt.Errorf("aipostblog/postgres: get current: %w", err)
	}
	return q, nil
}

// Create inserts the row, or returns the existing one. The no-op update on
// conflict makes RETURNING yield the existing row.
func (s *Store) Create(ctx context.Context, userID string, tier aipostblog.PlanTier, total int64, resetAt time.Time) (aipostblog.Quota, error) {
	q, err := scanQuota(s.pool.QueryRow(ctx,
		fmt.Sprintf(`INSERT INTO %s (id, user_id, plan, tokens_total, reset_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (user_id, reset_at) DO UPDATE SET user_id = EXCLUDED.user_id
			RETURNING %s`, s.quotasTable(), quotaColumns),
		uuid.New().String(), userID, string(tier), total, resetAt.UTC(),
	))
	if err != nil {
		return aipostblog.Quota{}, fmt.Errorf("aipostblog/postgres: create: %w", err)
	}
	return q, nil
}

func (s *Store) IncrementUsed(ctx context.Context, quotaID string, tokens int64) (aipostblog.Quota, error) {
	q, err := scanQuota(s.pool.QueryRow(ctx,
		fmt.Sprintf(`UPDATE %s SET tokens_used = tokens_used + $1 WHERE id = $2 RETURNING %s`,
			s.quotasTable(), quotaColumns),
		tokens, quotaID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return aipostblog.Quota{}, fmt.Errorf("%w: id %s", aipostblog.ErrQuotaNotFound, quotaID)
	}
	if err != nil {
		return aipostblog.Quota{}, fmt.Errorf("aipostblog/postgres: increment: %w", err)
	}
	return q, nil
}

func (s *Store) ListExpired(ctx context.Context, now time.Time) ([]aipostblog.Quota, error) {
	rows, err := s.pool.Query(ctx,
		fmt.Sprintf(`SELECT %[1]s FROM (
				SELECT DISTINCT ON (user_id) %[1]s FROM %[2]s ORDER BY user_id, reset_at DESC
			) latest
			WHERE reset_at <= $1
			ORDER BY user_id`, quotaColumns, s.quotasTable()),
		now.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("aipostblog/postgres: list expired: %w", err)
	}
	defer rows.Close()

	var out []aipostblog.Quota
	for rows.Next() {
		q, err := scanQuota(rows)
		if err != nil {
			return nil, fmt.Errorf("aipostblog/postgres: list expired: %w", err)
		}
		out = append(out, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("aipostblog/postgres: list expired: %w", err)
	}
	return out, nil
}

// Rollover copies the owner, plan and budget of quotaID into a new row.
func (s *Store) Rollover(ctx context.Context, quotaID string, newResetAt time.Time) (aipostblog.Quota, error) {
	q, err := scanQuota(s.pool.QueryRow(ctx,
		fmt.Sprintf(`INSERT INTO %[1]s (id, user_id, plan, tokens_total, reset_at)
			SELECT $1, user_id, plan, tokens_total, $2 FROM %[1]s WHERE id = $3
			ON CONFLICT (user_id, reset_at) DO UPDATE SET user_id = EXCLUDED.user_id
			RETURNING %[2]s`, s.quotasTable(), quotaColumns),
		uuid.New().String(), newResetAt.UTC(), quotaID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return aipostblog.Quota{}, fmt.Errorf("%w: id %s", aipostblog.ErrQuotaNotFound, quotaID)
	}
	if err != nil {
		return aipostblog.Quota{}, fmt.Errorf("aipostblog/postgres: rollover: %w", err)
	}
	return q, nil
}

// RecordUsage inserts a usage record.
func (s *Store) RecordUsage(ctx context.Context, rec aipostblog.UsageRecord) error {
	var quotaID *string
	if rec.QuotaID != "" {
		quotaID = &rec.QuotaID
	}
	attempts := rec.Attempts
	if attempts == nil {
		attempts = []string{}
	}
	_, err := s.pool.Exec(ctx,
		fmt.Sprintf(`INSERT INTO %s (id, user_id, quota_id, model, content_type, template_id, input, output,
				input_tokens, output_tokens, attempts, streamed, partial, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`, s.usageTable()),
		rec.ID, rec.UserID, quotaID, rec.Model, string(rec.ContentType), rec.TemplateID, rec.Input, rec.Output,
		rec.InputTokens, rec.OutputTokens, attempts, rec.Streamed, rec.Partial, rec.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("aipostblog/postgres: record usage: %w", err)
	}
	return nil
}
