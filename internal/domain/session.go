package domain

import (
	"math/big"
	"time"
)

// StoredSessionTTL bounds how long a client-local recovery hint is trusted.
const StoredSessionTTL = 24 * time.Hour

// StoredSession is the client-local recovery hint for a solo game. It carries
// no authority over chain state.
type StoredSession struct {
	Player         string    `json:"player"`
	SequenceNumber uint64    `json:"sequenceNumber"`
	Stake          *big.Int  `json:"stake"`
	Seed           *big.Int  `json:"seed,omitempty"`
	StartedAt      time.Time `json:"startedAt"`
	// Pending is set while the stake transaction is not yet confirmed.
	Pending bool `json:"pending,omitempty"`
	// Expired marks a record that outlived StoredSessionTTL. Only Player and
	// StartedAt are kept.
	Expired bool `json:"expired,omitempty"`
}

// Stale reports whether the record is older than StoredSessionTTL.
func (s *StoredSession) Stale(now time.Time) bool {
	return s.Expired || now.Sub(s.StartedAt) > StoredSessionTTL
}

// Tombstone is what remains of the record once it went stale.
func (s *StoredSession) Tombstone() *StoredSession {
	return &StoredSession{Player: s.Player, StartedAt: s.StartedAt, Expired: true}
}

// StoredDuelSession is the client-local recovery hint for a duel.
type StoredDuelSession struct {
	Player    string    `json:"player"`
	DuelID    uint64    `json:"duelId"`
	Stake     *big.Int  `json:"stake"`
	Seed      *big.Int  `json:"seed,omitempty"`
	StartedAt time.Time `json:"startedAt"`
	IsCreator bool      `json:"isCreator"`
	Pending   bool      `json:"pending,omitempty"`
}

// Stale reports whether the record is older than StoredSessionTTL.
func (s *StoredDuelSession) Stale(now time.Time) bool {
	return now.Sub(s.StartedAt) > StoredSessionTTL
}
