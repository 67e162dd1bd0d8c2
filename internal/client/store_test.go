package client

import (
	"context"
	"encoding/json"
	"math/big"
	"testing"
	"time"

	"typestake/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"
)

func TestBoltStoreRoundTrip(t *testing.T) {
	store, err := OpenBoltStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()

	got, err := store.LoadSession(ctx, alice.Hex())
	require.NoError(t, err)
	assert.Nil(t, got)

	rec := &domain.StoredSession{Player: alice.Hex(), SequenceNumber: 4, Stake: big.NewInt(1e18), StartedAt: time.Now()}
	require.NoError(t, store.SaveSession(ctx, rec))

	// keys are case-insensitive
	got, err = store.LoadSession(ctx, domain.NormalizeAddress(alice.Hex()))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.EqualValues(t, 4, got.SequenceNumber)
	assert.Equal(t, 0, got.Stake.Cmp(big.NewInt(1e18)))

	duel := &domain.StoredDuelSession{Player: alice.Hex(), DuelID: 12, Stake: big.NewInt(5), StartedAt: time.Now(), IsCreator: true}
	require.NoError(t, store.SaveDuel(ctx, duel))
	gotDuel, err := store.LoadDuel(ctx, alice.Hex())
	require.NoError(t, err)
	require.NotNil(t, gotDuel)
	assert.EqualValues(t, 12, gotDuel.DuelID)
	assert.True(t, gotDuel.IsCreator)

	require.NoError(t, store.ClearSession(ctx, alice.Hex()))
	got, err = store.LoadSession(ctx, alice.Hex())
	require.NoError(t, err)
	assert.Nil(t, got)

	// clearing the session leaves the duel alone
	gotDuel, err = store.LoadDuel(ctx, alice.Hex())
	require.NoError(t, err)
	assert.NotNil(t, gotDuel)
}

func TestBoltStoreSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := OpenBoltStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.SaveDuel(ctx, &domain.StoredDuelSession{Player: bob.Hex(), DuelID: 3, StartedAt: time.Now()}))
	require.NoError(t, store.Close())

	store, err = OpenBoltStore(dir)
	require.NoError(t, err)
	defer store.Close()
	got, err := store.LoadDuel(ctx, bob.Hex())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.EqualValues(t, 3, got.DuelID)
}

func TestBoltStoreDropsStaleAndCorruptRecords(t *testing.T) {
	store, err := OpenBoltStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()

	old := time.Now().Add(-domain.StoredSessionTTL - time.Minute)
	require.NoError(t, store.SaveSession(ctx, &domain.StoredSession{
		Player: alice.Hex(), StartedAt: old, SequenceNumber: 4, Stake: big.NewInt(100),
	}))
	got, err := store.LoadSession(ctx, alice.Hex())
	require.ErrorIs(t, err, ErrStaleRecord)
	assert.Nil(t, got)

	// only the tombstone is left on disk, and it stays stale
	_ = store.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket([]byte(sessionsBucket)).Get(storeKey(alice.Hex()))
		require.NotNil(t, raw)
		var left domain.StoredSession
		require.NoError(t, json.Unmarshal(raw, &left))
		assert.True(t, left.Expired)
		assert.Zero(t, left.SequenceNumber)
		assert.Nil(t, left.Stake)
		return nil
	})
	_, err = store.LoadSession(ctx, alice.Hex())
	require.ErrorIs(t, err, ErrStaleRecord)

	require.NoError(t, store.ClearSession(ctx, alice.Hex()))
	got, err = store.LoadSession(ctx, alice.Hex())
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, store.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(duelsBucket)).Put(storeKey(bob.Hex()), []byte("{not json"))
	}))
	gotDuel, err := store.LoadDuel(ctx, bob.Hex())
	require.NoError(t, err)
	assert.Nil(t, gotDuel)
}

func TestMemoryStoreStaleness(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()
	store.SetClock(func() time.Time { return now })

	require.NoError(t, store.SaveDuel(ctx, &domain.StoredDuelSession{Player: alice.Hex(), DuelID: 1, StartedAt: now}))
	got, err := store.LoadDuel(ctx, alice.Hex())
	require.NoError(t, err)
	assert.NotNil(t, got)

	store.SetClock(func() time.Time { return now.Add(domain.StoredSessionTTL + time.Second) })
	got, err = store.LoadDuel(ctx, alice.Hex())
	require.ErrorIs(t, err, ErrStaleRecord)
	assert.Nil(t, got)

	store.SetClock(func() time.Time { return now })
	got, err = store.LoadDuel(ctx, alice.Hex())
	require.NoError(t, err)
	assert.Nil(t, got, "stale record should have been removed")
}
