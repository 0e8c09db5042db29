// Package quota contains quota store implementations.
package quota

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kai200407/aipostblog"
)

// MemoryStore is an in-memory QuotaStore and UsageRecorder. Rows are kept for
// the lifetime of the process.
type MemoryStore struct {
	mu   sync.RWMutex
	rows map[string]*aipostblog.Quota
	// userID -> resetAt unix -> row id
	byUser  map[string]map[int64]string
	records []aipostblog.UsageRecord
	now     func() time.Time
}

var (
	_ aipostblog.QuotaStore    = (*MemoryStore)(nil)
	_ aipostblog.UsageRecorder = (*MemoryStore)(nil)
)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rows:   make(map[string]*aipostblog.Quota),
		byUser: make(map[string]map[int64]string),
		now:    time.Now,
	}
}

func (s *MemoryStore) GetCurrent(_ context.Context, userID string, resetAt time.Time) (aipostblog.Quota, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byUser[userID][resetAt.Unix()]
	if !ok {
		return aipostblog.Quota{}, aipostblog.ErrQuotaNotFound
	}
	return *s.rows[id], nil
}

func (s *MemoryStore) Create(_ context.Context, userID string, tier aipostblog.PlanTier, total int64, resetAt time.Time) (aipostblog.Quota, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createLocked(userID, tier, total, resetAt), nil
}

func (s *MemoryStore) createLocked(userID string, tier aipostblog.PlanTier, total int64, resetAt time.Time) aipostblog.Quota {
	periods, ok := s.byUser[userID]
	if !ok {
		periods = make(map[int64]string)
		s.byUser[userID] = periods
	}
	if id, ok := periods[resetAt.Unix()]; ok {
		return *s.rows[id]
	}

	q := &aipostblog.Quota{
		ID:          uuid.New().String(),
		UserID:      userID,
		Tier:        tier,
		TokensTotal: total,
		ResetAt:     resetAt.UTC(),
		CreatedAt:   s.now().UTC(),
	}
	s.rows[q.ID] = q
	periods[resetAt.Unix()] = q.ID
	return *q
}

func (s *MemoryStore) IncrementUsed(_ context.Context, quotaID string, tokens int64) (aipostblog.Quota, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.rows[quotaID]
	if !ok {
		return aipostblog.Quota{}, fmt.Errorf("%w: id %s", aipostblog.ErrQuotaNotFound, quotaID)
	}
	q.TokensUsed += tokens
	return *q, nil
}

func (s *MemoryStore) ListExpired(_ context.Context, now time.Time) ([]aipostblog.Quota, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []aipostblog.Quota
	for _, periods := range s.byUser {
		var latest *aipostblog.Quota
		for _, id := range periods {
			q := s.rows[id]
			if latest == nil || q.ResetAt.After(latest.ResetAt) {
				latest = q
			}
		}
		if latest != nil && !latest.ResetAt.After(now) {
			out = append(out, *latest)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (s *MemoryStore) Rollover(_ context.Context, quotaID string, newResetAt time.Time) (aipostblog.Quota, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.rows[quotaID]
	if !ok {
		return aipostblog.Quota{}, fmt.Errorf("%w: id %s", aipostblog.ErrQuotaNotFound, quotaID)
	}
	return s.createLocked(old.UserID, old.Tier, old.TokensTotal, newResetAt), nil
}

// RecordUsage appends a usage record.
func (s *MemoryStore) RecordUsage(_ context.Context, rec aipostblog.UsageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec.Attempts = append([]string(nil), rec.Attempts...)
	s.records = append(s.records, rec)
	return nil
}

// UsageRecords returns the records of a user, oldest first.
func (s *MemoryStore) UsageRecords(userID string) []aipostblog.UsageRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []aipostblog.UsageRecord
	for _, rec := range s.records {
		if rec.UserID == userID {
			out = append(out, rec)
		}
	}
	return out
}

// Rows returns every row of a user ordered by resetAt.
func (s *MemoryStore) Rows(userID string) []aipostblog.Quota {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []aipostblog.Quota
	for _, id := range s.byUser[userID] {
		out = append(out, *s.rows[id])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ResetAt.Before(out[j].ResetAt) })
	return out
}
