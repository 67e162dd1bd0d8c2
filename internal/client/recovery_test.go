package client

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"typestake/internal/domain"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecoverDiscardsLocalSessionWhenChainIsInactive(t *testing.T) {
	fc := newFakeChain()
	store := NewMemoryStore()
	r := NewRecovery(store, fc, fc.account(alice))
	ctx := context.Background()

	_, err := r.BeginSession(ctx, big.NewInt(100))
	require.NoError(t, err)

	session, err := r.Recover(ctx)
	require.NoError(t, err)
	assert.Nil(t, session)

	rec, err := store.LoadSession(ctx, alice.Hex())
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestRecoverSkipsExpiredLocalSession(t *testing.T) {
	fc := newFakeChain()
	fc.autoSeed = false
	store := NewMemoryStore()
	acct := fc.account(alice)
	r := NewRecovery(store, fc, acct)
	ctx := context.Background()

	start := time.Now()
	store.SetClock(func() time.Time { return start })
	r.now = func() time.Time { return start }
	_, err := r.BeginSession(ctx, big.NewInt(100))
	require.NoError(t, err)
	_, err = acct.StartGame(ctx, big.NewInt(100))
	require.NoError(t, err)

	later := start.Add(25 * time.Hour)
	store.SetClock(func() time.Time { return later })
	r.now = func() time.Time { return later }

	// not recovered locally, on any attempt, while the chain still has it
	for i := 0; i < 2; i++ {
		session, err := r.Recover(ctx)
		require.NoError(t, err)
		assert.Nil(t, session)
	}
	_, err = store.LoadSession(ctx, alice.Hex())
	assert.ErrorIs(t, err, ErrStaleRecord)

	session, active, err := r.CheckActiveSession(ctx)
	require.NoError(t, err)
	assert.True(t, active)
	assert.NotNil(t, session)

	// cancelling is still possible and clears the leftover
	_, err = r.Cancel(ctx)
	require.NoError(t, err)
	rec, err := store.LoadSession(ctx, alice.Hex())
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestRecoverAdoptsChainSession(t *testing.T) {
	fc := newFakeChain()
	fc.autoSeed = false
	store := NewMemoryStore()
	acct := fc.account(alice)
	r := NewRecovery(store, fc, acct)
	ctx := context.Background()

	// staked from another device: nothing local yet
	_, err := acct.StartGame(ctx, big.NewInt(100))
	require.NoError(t, err)

	session, err := r.Recover(ctx)
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.True(t, session.Active)
	assert.False(t, session.Fulfilled)

	rec, err := store.LoadSession(ctx, alice.Hex())
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, session.SequenceNumber, rec.SequenceNumber)
	assert.Nil(t, rec.Seed)

	fc.fulfilSession(alice)
	_, err = r.Recover(ctx)
	require.NoError(t, err)
	rec, err = store.LoadSession(ctx, alice.Hex())
	require.NoError(t, err)
	require.NotNil(t, rec.Seed)
	assert.Positive(t, rec.Seed.Sign())
}

func TestRecoverDuel(t *testing.T) {
	fc := newFakeChain()
	ctx := context.Background()
	id := createDuel(t, fc, bob, 50)

	tests := []struct {
		name   string
		local  *domain.StoredDuelSession
		player *fakeAccount
		want   bool
	}{
		{"nothing stored", nil, fc.account(bob), false},
		{"id never came back", &domain.StoredDuelSession{Player: bob.Hex()}, fc.account(bob), false},
		{"creator", &domain.StoredDuelSession{Player: bob.Hex(), DuelID: id}, fc.account(bob), true},
		{"not a duelist", &domain.StoredDuelSession{Player: carol.Hex(), DuelID: id}, fc.account(carol), false},
		{"unknown duel", &domain.StoredDuelSession{Player: bob.Hex(), DuelID: 999}, fc.account(bob), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewMemoryStore()
			if tt.local != nil {
				tt.local.StartedAt = time.Now()
				require.NoError(t, store.SaveDuel(ctx, tt.local))
			}
			duel, local, err := NewRecovery(store, fc, tt.player).RecoverDuel(ctx)
			require.NoError(t, err)
			if !tt.want {
				assert.Nil(t, duel)
				left, _ := store.LoadDuel(ctx, tt.player.From().Hex())
				assert.Nil(t, left)
				return
			}
			require.NotNil(t, duel)
			assert.Equal(t, id, local.DuelID)
			assert.Equal(t, 0, local.Stake.Cmp(big.NewInt(50)))
		})
	}
}

func TestCancelRefundsStakeMinusFee(t *testing.T) {
	fc := newFakeChain()
	fc.autoSeed = false
	store := NewMemoryStore()
	acct := fc.account(alice)
	r := NewRecovery(store, fc, acct)
	ctx := context.Background()

	_, err := r.BeginSession(ctx, big.NewInt(1_000_000))
	require.NoError(t, err)
	_, err = acct.StartGame(ctx, big.NewInt(1_000_000))
	require.NoError(t, err)

	out, err := r.Cancel(ctx)
	require.NoError(t, err)
	assert.Equal(t, "950000", out.Refund.Dec())
	assert.EqualValues(t, 500, out.FeeBps)
	assert.NotNil(t, out.Receipt)

	rec, _ := store.LoadSession(ctx, alice.Hex())
	assert.Nil(t, rec)

	_, err = r.Cancel(ctx)
	assert.ErrorIs(t, err, domain.ErrNoActiveSession)
}

func TestCancelFallsBackToDefaultFee(t *testing.T) {
	fc := newFakeChain()
	fc.autoSeed = false
	fc.feeErr = errors.New("rpc down")
	acct := fc.account(alice)
	r := NewRecovery(NewMemoryStore(), fc, acct)
	ctx := context.Background()

	_, err := acct.StartGame(ctx, big.NewInt(10_000))
	require.NoError(t, err)

	out, err := r.Cancel(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 500, out.FeeBps)
	assert.Equal(t, "9500", out.Refund.Dec())
}

func TestCancelRefusedAfterSeed(t *testing.T) {
	fc := newFakeChain()
	acct := fc.account(alice)
	r := NewRecovery(NewMemoryStore(), fc, acct)
	ctx := context.Background()

	_, err := acct.StartGame(ctx, big.NewInt(10))
	require.NoError(t, err)

	_, err = r.Cancel(ctx)
	assert.ErrorIs(t, err, domain.ErrAlreadyFulfilled)
	assert.False(t, domain.IsRetryable(err))
	assert.Zero(t, fc.callCount("CancelSession"))
}

func TestCancelDuel(t *testing.T) {
	fc := newFakeChain()
	fc.autoSeed = false
	store := NewMemoryStore()
	ctx := context.Background()
	id := createDuel(t, fc, bob, 2_000)
	r := NewRecovery(store, fc, fc.account(bob))

	_, err := r.BeginDuel(ctx, id, big.NewInt(2_000), true)
	require.NoError(t, err)

	out, err := r.CancelDuel(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "1900", out.Refund.Dec())
	rec, _ := store.LoadDuel(ctx, bob.Hex())
	assert.Nil(t, rec)

	_, err = r.CancelDuel(ctx, id)
	assert.ErrorIs(t, err, domain.ErrDuelNotOpen)
}

func createDuel(t *testing.T, fc *fakeChain, creator common.Address, stake int64) uint64 {
	t.Helper()
	r, err := fc.account(creator).CreateDuel(context.Background(), big.NewInt(stake))
	require.NoError(t, err)
	return r.Events[0].DuelID
}
