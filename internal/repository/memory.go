package repository

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"typestake/internal/domain"

	"github.com/samber/lo"
)

// In-memory stores mirror the Postgres repositories for RESULT_STORE=memory
// and for tests.

type MemoryDuelResultStore struct {
	mu    sync.RWMutex
	duels map[uint64]map[string]domain.DuelResult
	now   func() time.Time
}

func NewMemoryDuelResultStore() *MemoryDuelResultStore {
	return &MemoryDuelResultStore{duels: make(map[uint64]map[string]domain.DuelResult), now: time.Now}
}

// SetClock replaces the submission clock.
func (s *MemoryDuelResultStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

func (s *MemoryDuelResultStore) Upsert(_ context.Context, res *domain.DuelResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, ok := s.duels[res.DuelID]
	if !ok {
		rows = make(map[string]domain.DuelResult)
		s.duels[res.DuelID] = rows
	}
	res.SubmittedAt = s.now().UTC()
	rows[res.PlayerAddress] = *res
	return nil
}

func (s *MemoryDuelResultStore) ListByDuel(_ context.Context, duelID uint64) ([]*domain.DuelResult, error) {
	s.mu.RLock()
	out := lo.MapToSlice(s.duels[duelID], func(_ string, r domain.DuelResult) *domain.DuelResult {
		return &r
	})
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].SubmittedAt.Equal(out[j].SubmittedAt) {
			return out[i].SubmittedAt.Before(out[j].SubmittedAt)
		}
		return out[i].PlayerAddress < out[j].PlayerAddress
	})
	return out, nil
}

func (s *MemoryDuelResultStore) DeleteByDuel(_ context.Context, duelID uint64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := int64(len(s.duels[duelID]))
	delete(s.duels, duelID)
	return n, nil
}

type MemoryDuelRecordStore struct {
	mu     sync.RWMutex
	nextID int64
	byDuel map[uint64]domain.DuelRecord
}

func NewMemoryDuelRecordStore() *MemoryDuelRecordStore {
	return &MemoryDuelRecordStore{byDuel: make(map[uint64]domain.DuelRecord)}
}

func (s *MemoryDuelRecordStore) Create(_ context.Context, rec *domain.DuelRecord) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.byDuel[rec.DuelID]; ok {
		*rec = existing
		return false, nil
	}
	s.nextID++
	rec.ID = s.nextID
	rec.CreatedAt = time.Now().UTC()
	s.byDuel[rec.DuelID] = *rec
	return true, nil
}

func (s *MemoryDuelRecordStore) GetByDuel(_ context.Context, duelID uint64) (*domain.DuelRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.byDuel[duelID]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return &rec, nil
}

func (s *MemoryDuelRecordStore) ListByWallet(_ context.Context, wallet string, limit int) ([]*domain.DuelRecord, error) {
	s.mu.RLock()
	recs := lo.FilterMap(lo.Values(s.byDuel), func(r domain.DuelRecord, _ int) (*domain.DuelRecord, bool) {
		return &r, r.Player1 == wallet || r.Player2 == wallet
	})
	s.mu.RUnlock()

	sort.Slice(recs, func(i, j int) bool { return recs[i].ID > recs[j].ID })
	if limit > 0 && len(recs) > limit {
		recs = recs[:limit]
	}
	return recs, nil
}

type MemoryAuditStore struct {
	mu      sync.RWMutex
	entries []domain.AuditLog
}

func NewMemoryAuditStore() *MemoryAuditStore {
	return &MemoryAuditStore{}
}

func (s *MemoryAuditStore) Create(_ context.Context, log *domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	log.ID = int64(len(s.entries) + 1)
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	s.entries = append(s.entries, *log)
	return nil
}

func (s *MemoryAuditStore) List(_ context.Context, f domain.AuditFilter) ([]*domain.AuditLog, error) {
	duelID := strconv.FormatUint(f.DuelID, 10)
	limit := f.PageSize()

	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.AuditLog
	for i := len(s.entries) - 1; i >= 0 && len(out) < limit; i-- {
		e := s.entries[i]
		switch {
		case f.Actor != "" && e.Actor != f.Actor,
			f.Category != "" && e.Category != f.Category,
			f.Action != "" && e.Action != f.Action,
			f.DuelID != 0 && fmt.Sprint(e.Details["duel_id"]) != duelID:
			continue
		}
		out = append(out, &e)
	}
	return out, nil
}
