package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"typestake/internal/domain"

	bolt "go.etcd.io/bbolt"
)

// ErrStaleRecord is returned by loads when the stored record is older than
// domain.StoredSessionTTL. Its contents are never returned.
var ErrStaleRecord = errors.New("local record expired")

// SessionStore keeps the device-local recovery hints. Loads return nil and no
// error when nothing is stored. A stale solo record is replaced by its
// tombstone and keeps reporting ErrStaleRecord until cleared, so the expiry
// can't be reset by re-adopting the chain session. Stale duel records are
// deleted.
type SessionStore interface {
	LoadSession(ctx context.Context, player string) (*domain.StoredSession, error)
	SaveSession(ctx context.Context, s *domain.StoredSession) error
	ClearSession(ctx context.Context, player string) error

	LoadDuel(ctx context.Context, player string) (*domain.StoredDuelSession, error)
	SaveDuel(ctx context.Context, d *domain.StoredDuelSession) error
	ClearDuel(ctx context.Context, player string) error
}

const (
	sessionsBucket = "sessions"
	duelsBucket    = "duels"
)

// BoltStore persists recovery hints in a bbolt file.
type BoltStore struct {
	db  *bolt.DB
	now func() time.Time
}

// OpenBoltStore opens (creating if needed) dir/typestake.db.
func OpenBoltStore(dir string) (*BoltStore, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create session store path: %w", err)
	}

	db, err := bolt.Open(filepath.Join(dir, "typestake.db"), 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range []string{sessionsBucket, duelsBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(bucket)); err != nil {
				return fmt.Errorf("failed to create %s bucket: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize session store: %w", err)
	}

	return &BoltStore{db: db, now: time.Now}, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) LoadSession(_ context.Context, player string) (*domain.StoredSession, error) {
	var out domain.StoredSession
	found, err := s.load(sessionsBucket, player, &out)
	if err != nil || !found {
		return nil, err
	}
	if out.Stale(s.now()) {
		if !out.Expired {
			if err := s.put(sessionsBucket, player, out.Tombstone()); err != nil {
				return nil, err
			}
		}
		return nil, ErrStaleRecord
	}
	return &out, nil
}

func (s *BoltStore) SaveSession(_ context.Context, rec *domain.StoredSession) error {
	return s.put(sessionsBucket, rec.Player, rec)
}

func (s *BoltStore) ClearSession(_ context.Context, player string) error {
	return s.delete(sessionsBucket, player)
}

func (s *BoltStore) LoadDuel(_ context.Context, player string) (*domain.StoredDuelSession, error) {
	var out domain.StoredDuelSession
	found, err := s.load(duelsBucket, player, &out)
	if err != nil || !found {
		return nil, err
	}
	if out.Stale(s.now()) {
		if err := s.delete(duelsBucket, player); err != nil {
			return nil, err
		}
		return nil, ErrStaleRecord
	}
	return &out, nil
}

func (s *BoltStore) SaveDuel(_ context.Context, rec *domain.StoredDuelSession) error {
	return s.put(duelsBucket, rec.Player, rec)
}

func (s *BoltStore) ClearDuel(_ context.Context, player string) error {
	return s.delete(duelsBucket, player)
}

func (s *BoltStore) load(bucket, player string, v interface{}) (bool, error) {
	var raw []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		if b := tx.Bucket([]byte(bucket)).Get(storeKey(player)); b != nil {
			raw = append([]byte(nil), b...)
		}
		return nil
	})
	if err != nil || raw == nil {
		return false, err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		// a record we can't read is as good as none
		return false, s.delete(bucket, player)
	}
	return true, nil
}

func (s *BoltStore) put(bucket, player string, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucket)).Put(storeKey(player), raw)
	})
}

func (s *BoltStore) delete(bucket, player string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucket)).Delete(storeKey(player))
	})
}

func storeKey(player string) []byte {
	return []byte(domain.NormalizeAddress(player))
}

// MemoryStore is a SessionStore for tests and throwaway runs.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]domain.StoredSession
	duels    map[string]domain.StoredDuelSession
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]domain.StoredSession),
		duels:    make(map[string]domain.StoredDuelSession),
		now:      time.Now,
	}
}

// SetClock overrides time.Now for staleness checks.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

func (s *MemoryStore) LoadSession(_ context.Context, player string) (*domain.StoredSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := domain.NormalizeAddress(player)
	rec, ok := s.sessions[key]
	if !ok {
		return nil, nil
	}
	if rec.Stale(s.now()) {
		s.sessions[key] = *rec.Tombstone()
		return nil, ErrStaleRecord
	}
	return &rec, nil
}

func (s *MemoryStore) SaveSession(_ context.Context, rec *domain.StoredSession) error {
	s.mu.Lock()
	s.sessions[domain.NormalizeAddress(rec.Player)] = *rec
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) ClearSession(_ context.Context, player string) error {
	s.mu.Lock()
	delete(s.sessions, domain.NormalizeAddress(player))
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) LoadDuel(_ context.Context, player string) (*domain.StoredDuelSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := domain.NormalizeAddress(player)
	rec, ok := s.duels[key]
	if !ok {
		return nil, nil
	}
	if rec.Stale(s.now()) {
		delete(s.duels, key)
		return nil, ErrStaleRecord
	}
	return &rec, nil
}

func (s *MemoryStore) SaveDuel(_ context.Context, rec *domain.StoredDuelSession) error {
	s.mu.Lock()
	s.duels[domain.NormalizeAddress(rec.Player)] = *rec
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) ClearDuel(_ context.Context, player string) error {
	s.mu.Lock()
	delete(s.duels, domain.NormalizeAddress(player))
	s.mu.Unlock()
	return nil
}
