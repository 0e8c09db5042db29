// Package sqlite provides a SQLite-backed QuotaStore for single-node
// deployments. It uses the pure-Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	// Import modernc.org/sqlite as a blank import to register the driver
	_ "modernc.org/sqlite"

	"github.com/kai200407/aipostblog"
)

// Store is a SQLite-backed QuotaStore and UsageRecorder.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

var (
	_ aipostblog.QuotaStore    = (*Store)(nil)
	_ aipostblog.UsageRecorder = (*Store)(nil)
)

// Open opens (creating if needed) the database at path and ensures the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("aipostblog/sqlite: create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("aipostblog/sqlite: open: %w", err)
	}
	// A single connection serializes writers and avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, now: time.Now}
	if err := s.init(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) init(ctx context.Context) error {
	stmts := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		`CREATE TABLE IF NOT EXISTS quotas (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			plan TEXT NOT NULL,
			tokens_total INTEGER NOT NULL,
			tokens_used INTEGER NOT NULL DEFAULT 0,
			reset_at INTEGER NOT NULL,
			created_at INTEGER NOT NULL,
			UNIQUE (user_id, reset_at)
		)`,
		`CREATE TABLE IF NOT EXISTS usage_records (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			quota_id TEXT,
			model TEXT NOT NULL,
			content_type TEXT NOT NULL,
			template_id TEXT NOT NULL,
			input TEXT NOT NULL,
			output TEXT NOT NULL,
			input_tokens INTEGER NOT NULL,
			output_tokens INTEGER NOT NULL,
			attempts TEXT NOT NULL,
			streamed INTEGER NOT NULL,
			partial INTEGER NOT NULL,
			created_at INTEGER NOT NULL
		)`,
		"CREATE INDEX IF NOT EXISTS idx_usage_records_user ON usage_records(user_id, created_at)",
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("aipostblog/sqlite: init: %w", err)
		}
	}
	return nil
}

const quotaColumns = "id, user_id, plan, tokens_total, tokens_used, reset_at, created_at"

type scanner interface {
	Scan(dest ...any) error
}

func scanQuota(row scanner) (aipostblog.Quota, error) {
	var q aipostblog.Quota
	var plan string
	var resetAt, createdAt int64
	if err := row.Scan(&q.ID, &q.UserID, &plan, &q.TokensTotal, &q.TokensUsed, &resetAt, &createdAt); err != nil {
		return aipostblog.Quota{}, err
	}
	q.Tier = aipostblog.PlanTier(plan)
	q.ResetAt = time.Unix(resetAt, 0).UTC()
	q.CreatedAt = time.Unix(createdAt, 0).UTC()
	return q, nil
}

func (s *Store) GetCurrent(ctx context.Context, userID string, resetAt time.Time) (aipostblog.Quota, error) {
	q, err := scanQuota(s.db.QueryRowContext(ctx,
		"SELECT "+quotaColumns+" FROM quotas WHERE user_id = ? AND reset_at = ?",
		userID, resetAt.Unix(),
	))
	if errors.Is(err, sql.ErrNoRows) {
		return aipostblog.Quota{}, aipostblog.ErrQuotaNotFound
	}
	if err != nil {
		return aipostblog.Quota{}, fmt.Errorf("aipostblog/sqlite: get current: %w", err)
	}
	return q, nil
}

func (s *Store) Create(ctx context.Context, userID string, tier aipostblog.PlanTier, total int64, resetAt time.Time) (aipostblog.Quota, error) {
	q, err := scanQuota(s.db.QueryRowContext(ctx,
		`INSERT INTO quotas (id, user_id, plan, tokens_total, reset_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, reset_at) DO UPDATE SET user_id = excluded.user_id
		RETURNING `+quotaColumns,
		uuid.New().String(), userID, string(tier), total, resetAt.Unix(), s.now().Unix(),
	))
	if err != nil {
		return aipostblog.Quota{}, fmt.Errorf("aipostblog/sqlite: create: %w", err)
	}
	return q, nil
}

func (s *Store) IncrementUsed(ctx context.Context, quotaID string, tokens int64) (aipostblog.Quota, error) {
	q, err := scanQuota(s.db.QueryRowContext(ctx,
		"UPDATE quotas SET tokens_used = tokens_used + ? WHERE id = ? RETURNING "+quotaColumns,
		tokens, quotaID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return aipostblog.Quota{}, fmt.Errorf("%w: id %s", aipostblog.ErrQuotaNotFound, quotaID)
	}
	if err != nil {
		return aipostblog.Quota{}, fmt.Errorf("aipostblog/sqlite: increment: %w", err)
	}
	return q, nil
}

func (s *Store) ListExpired(ctx context.Context, now time.Time) ([]aipostblog.Quota, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+quotaColumns+` FROM quotas q
		WHERE reset_at = (SELECT MAX(reset_at) FROM quotas WHERE user_id = q.user_id)
		AND reset_at <= ?
		ORDER BY user_id`,
		now.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("aipostblog/sqlite: list expired: %w", err)
	}
	defer rows.Close()

	var out []aipostblog.Quota
	for rows.Next() {
		q, err := scanQuota(rows)
		if err != nil {
			return nil, fmt.Errorf("aipostblog/sqlite: list expired: %w", err)
		}
		out = append(out, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("aipostblog/sqlite: list expired: %w", err)
	}
	return out, nil
}

func (s *Store) Rollover(ctx context.Context, quotaID string, newResetAt time.Time) (aipostblog.Quota, error) {
	q, err := scanQuota(s.db.QueryRowContext(ctx,
		`INSERT INTO quotas (id, user_id, plan, tokens_total, reset_at, created_at)
		SELECT ?, user_id, plan, tokens_total, ?, ? FROM quotas WHERE id = ?
		ON CONFLICT (user_id, reset_at) DO UPDATE SET user_id = excluded.user_id
		RETURNING `+quotaColumns,
		uuid.New().String(), newResetAt.Unix(), s.now().Unix(), quotaID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return aipostblog.Quota{}, fmt.Errorf("%w: id %s", aipostblog.ErrQuotaNotFound, quotaID)
	}
	if err != nil {
		return aipostblog.Quota{}, fmt.Errorf("aipostblog/sqlite: rollover: %w", err)
	}
	return q, nil
}

// RecordUsage inserts a usage record.
func (s *Store) RecordUsage(ctx context.Context, rec aipostblog.UsageRecord) error {
	attempts, err := json.Marshal(append([]string{}, rec.Attempts...))
	if err != nil {
		return fmt.Errorf("aipostblog/sqlite: record usage: %w", err)
	}
	var quotaID any
	if rec.QuotaID != "" {
		quotaID = rec.QuotaID
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO usage_records (id, user_id, quota_id, model, content_type, template_id, input, output,
			input_tokens, output_tokens, attempts, streamed, partial, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.UserID, quotaID, rec.Model, string(rec.ContentType), rec.TemplateID, rec.Input, rec.Output,
		rec.InputTokens, rec.OutputTokens, string(attempts), rec.Streamed, rec.Partial, rec.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("aipostblog/sqlite: record usage: %w", err)
	}
	return nil
}

// UsageRecords returns a user's most recent records, newest first.
func (s *Store) UsageRecords(ctx context.Context, userID string, limit int) ([]aipostblog.UsageRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, COALESCE(quota_id, ''), model, content_type, template_id, input, output,
			input_tokens, output_tokens, attempts, streamed, partial, created_at
		FROM usage_records WHERE user_id = ? ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("aipostblog/sqlite: usage records: %w", err)
	}
	defer rows.Close()

	var out []aipostblog.UsageRecord
	for rows.Next() {
		var rec aipostblog.UsageRecord
		var contentType, attempts string
		var createdAt int64
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.QuotaID, &rec.Model, &contentType, &rec.TemplateID,
			&rec.Input, &rec.Output, &rec.InputTokens, &rec.OutputTokens, &attempts,
			&rec.Streamed, &rec.Partial, &createdAt); err != nil {
			return nil, fmt.Errorf("aipostblog/sqlite: usage records: %w", err)
		}
		if err := json.Unmarshal([]byte(attempts), &rec.Attempts); err != nil {
			return nil, fmt.Errorf("aipostblog/sqlite: usage records: attempts: %w", err)
		}
		rec.ContentType = aipostblog.ContentType(contentType)
		rec.CreatedAt = time.Unix(createdAt, 0).UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}
