package chain

import (
	"context"
	"errors"
	"time"

	"typestake/internal/domain"
	"typestake/internal/logger"
	"typestake/internal/retry"

	"github.com/ethereum/go-ethereum/common"
)

const (
	DefaultPollAttempts = 60
	DefaultPollInterval = time.Second
)

// ErrResolved means the record went inactive while we were waiting for its
// seed: it was settled or cancelled elsewhere. Polling stops immediately.
var ErrResolved = errors.New("record no longer active")

var errSeedPending = errors.New("seed not fulfilled yet")

// Poller waits for VRF seeds with a bounded number of reads.
type Poller struct {
	reader StateReader
	policy retry.Policy
}

// NewPoller polls every second for up to a minute.
func NewPoller(reader StateReader) *Poller {
	return &Poller{reader: reader, policy: retry.Constant(DefaultPollAttempts, DefaultPollInterval)}
}

// WithPolicy returns a copy that uses p instead of the default policy.
func (p *Poller) WithPolicy(policy retry.Policy) *Poller {
	return &Poller{reader: p.reader, policy: policy}
}

// PollSessionSeed waits until the player's session has a seed. The first read
// happens immediately, so an already-fulfilled session returns without waiting.
func (p *Poller) PollSessionSeed(ctx context.Context, player common.Address) (*domain.GameSession, error) {
	var session *domain.GameSession
	err := p.policy.Do(ctx, func(ctx context.Context, attempt int) error {
		s, err := p.reader.Session(ctx, player)
		if err != nil {
			logger.WithContext(ctx).Debug("session read failed", "player", player.Hex(), "attempt", attempt, "error", err)
			return err
		}
		if !s.Active {
			return retry.Permanent(ErrResolved)
		}
		if !s.Fulfilled || s.RandomSeed == nil || s.RandomSeed.Sign() == 0 {
			return errSeedPending
		}
		session = s
		return nil
	})
	if err != nil {
		return nil, p.wrap("poll session seed", err)
	}
	return session, nil
}

// PollDuelSeed waits until the duel has a seed.
func (p *Poller) PollDuelSeed(ctx context.Context, duelID uint64) (*domain.Duel, error) {
	var duel *domain.Duel
	err := p.policy.Do(ctx, func(ctx context.Context, attempt int) error {
		d, err := p.reader.Duel(ctx, duelID)
		if err != nil {
			logger.WithContext(ctx).Debug("duel read failed", "duel_id", duelID, "attempt", attempt, "error", err)
			return err
		}
		if !d.Active {
			return retry.Permanent(ErrResolved)
		}
		if !d.Fulfilled || d.RandomSeed == nil || d.RandomSeed.Sign() == 0 {
			return errSeedPending
		}
		duel = d
		return nil
	})
	if err != nil {
		return nil, p.wrap("poll duel seed", err)
	}
	return duel, nil
}

func (p *Poller) wrap(op string, err error) error {
	var exhausted *retry.ExhaustedError
	if errors.As(err, &exhausted) {
		interval := time.Duration(0)
		if p.policy.Backoff != nil {
			interval = p.policy.Backoff(1)
		}
		return &domain.ChainTimeoutError{Operation: op, Attempts: exhausted.Attempts, Interval: interval}
	}
	return err
}
