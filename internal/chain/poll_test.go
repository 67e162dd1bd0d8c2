package chain

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"typestake/internal/domain"
	"typestake/internal/retry"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedReader returns session/duel states in order, repeating the last one.
type scriptedReader struct {
	mu       sync.Mutex
	sessions []domain.GameSession
	duels    []domain.Duel
	reads    int
	err      error
}

func (r *scriptedReader) Session(context.Context, common.Address) (*domain.GameSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reads++
	if r.err != nil {
		return nil, r.err
	}
	i := r.reads - 1
	if i >= len(r.sessions) {
		i = len(r.sessions) - 1
	}
	s := r.sessions[i]
	return &s, nil
}

func (r *scriptedReader) Duel(context.Context, uint64) (*domain.Duel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reads++
	i := r.reads - 1
	if i >= len(r.duels) {
		i = len(r.duels) - 1
	}
	d := r.duels[i]
	return &d, nil
}

func (r *scriptedReader) CancelFeeBps(context.Context) (uint64, error) { return 500, nil }

func fastPoller(r StateReader, attempts int) *Poller {
	return NewPoller(r).WithPolicy(retry.Constant(attempts, time.Millisecond))
}

func TestPollSessionSeedAlreadyFulfilled(t *testing.T) {
	r := &scriptedReader{sessions: []domain.GameSession{
		{SequenceNumber: 3, Active: true, Fulfilled: true, RandomSeed: big.NewInt(12345)},
	}}
	s, err := fastPoller(r, 60).PollSessionSeed(context.Background(), testPlayer)
	require.NoError(t, err)
	assert.Equal(t, int64(12345), s.RandomSeed.Int64())
	assert.Equal(t, 1, r.reads)
}

func TestPollSessionSeedArrivesMidPoll(t *testing.T) {
	pending := domain.GameSession{SequenceNumber: 3, Active: true}
	r := &scriptedReader{sessions: []domain.GameSession{
		pending, pending, pending,
		{SequenceNumber: 3, Active: true, Fulfilled: true, RandomSeed: big.NewInt(7)},
	}}
	s, err := fastPoller(r, 60).PollSessionSeed(context.Background(), testPlayer)
	require.NoError(t, err)
	assert.Equal(t, int64(7), s.RandomSeed.Int64())
	assert.Equal(t, 4, r.reads)
}

func TestPollSessionSeedTimesOut(t *testing.T) {
	r := &scriptedReader{sessions: []domain.GameSession{{Active: true}}}
	_, err := fastPoller(r, 5).PollSessionSeed(context.Background(), testPlayer)

	var timeout *domain.ChainTimeoutError
	require.ErrorAs(t, err, &timeout)
	assert.Equal(t, 5, timeout.Attempts)
	assert.Equal(t, 5, r.reads)
	assert.True(t, domain.IsRetryable(err))
}

func TestPollSessionSeedStopsWhenResolved(t *testing.T) {
	r := &scriptedReader{sessions: []domain.GameSession{
		{Active: true},
		{Active: false},
	}}
	_, err := fastPoller(r, 60).PollSessionSeed(context.Background(), testPlayer)
	require.ErrorIs(t, err, ErrResolved)
	assert.Equal(t, 2, r.reads)
}

func TestPollSessionSeedReadErrorsAreRetried(t *testing.T) {
	r := &scriptedReader{err: errors.New("rpc down"), sessions: []domain.GameSession{{}}}
	_, err := fastPoller(r, 3).PollSessionSeed(context.Background(), testPlayer)
	var timeout *domain.ChainTimeoutError
	require.ErrorAs(t, err, &timeout)
	assert.Equal(t, 3, r.reads)
}

func TestPollDuelSeed(t *testing.T) {
	r := &scriptedReader{duels: []domain.Duel{
		{ID: 1, Active: true},
		{ID: 1, Active: true, Fulfilled: true, RandomSeed: big.NewInt(42)},
	}}
	d, err := fastPoller(r, 10).PollDuelSeed(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(42), d.RandomSeed.Int64())
}

func TestPollHonoursContext(t *testing.T) {
	r := &scriptedReader{duels: []domain.Duel{{Active: true}}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewPoller(r).PollDuelSeed(ctx, 1)
	require.ErrorIs(t, err, context.Canceled)
}

func TestDefaultPollerBudget(t *testing.T) {
	p := NewPoller(&scriptedReader{})
	assert.Equal(t, DefaultPollAttempts, p.policy.MaxAttempts)
	assert.Equal(t, 59*time.Second, p.policy.Total())
}
