package chain

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testContract = common.HexToAddress("0x00000000000000000000000000000000000C0FFE")

func uintTopic(v uint64) common.Hash { return common.BigToHash(new(big.Int).SetUint64(v)) }

func addrTopic(a common.Address) common.Hash { return common.BytesToHash(a.Bytes()) }

// makeLog builds a contract log the way a node would return it.
func makeLog(t *testing.T, name string, topics []common.Hash, data ...interface{}) types.Log {
	t.Helper()
	ev, ok := settlementABI.Events[name]
	require.True(t, ok, name)
	packed, err := ev.Inputs.NonIndexed().Pack(data...)
	require.NoError(t, err)
	return types.Log{
		Address: testContract,
		Topics:  append([]common.Hash{ev.ID}, topics...),
		Data:    packed,
	}
}

func TestDecodeDuelSettled(t *testing.T) {
	l := makeLog(t, EventDuelSettled, []common.Hash{uintTopic(42), addrTopic(testPlayer)}, big.NewInt(1_800_000))
	l.TxHash = common.HexToHash("0x01")
	l.Index = 3
	l.BlockNumber = 100

	ev, ok := DecodeLog(l)
	require.True(t, ok)
	assert.Equal(t, EventDuelSettled, ev.Name)
	assert.Equal(t, uint64(42), ev.DuelID)
	assert.Equal(t, testPlayer, ev.Player)
	assert.Equal(t, int64(1_800_000), ev.Amount.Int64())
	assert.Equal(t, uint(3), ev.LogIndex)
	assert.Equal(t, uint64(100), ev.BlockNumber)
	assert.True(t, ev.Terminal())
}

func TestDecodeGameStartedAndSeed(t *testing.T) {
	started := makeLog(t, EventGameStarted, []common.Hash{addrTopic(testPlayer), uintTopic(9)}, big.NewInt(1_000_000))
	ev, ok := DecodeLog(started)
	require.True(t, ok)
	assert.Equal(t, uint64(9), ev.SequenceNumber)
	assert.Equal(t, testPlayer, ev.Player)
	assert.Equal(t, int64(1_000_000), ev.Amount.Int64())
	assert.False(t, ev.Terminal())

	seed := makeLog(t, EventSeedFulfilled, []common.Hash{uintTopic(9)}, big.NewInt(777))
	ev, ok = DecodeLog(seed)
	require.True(t, ok)
	assert.Equal(t, uint64(9), ev.SequenceNumber)
	assert.Equal(t, int64(777), ev.Seed.Int64())
}

func TestDecodeRejectsUnknownAndTruncated(t *testing.T) {
	_, ok := DecodeLog(types.Log{})
	assert.False(t, ok)

	_, ok = DecodeLog(types.Log{Topics: []common.Hash{common.HexToHash("0xdead")}})
	assert.False(t, ok)

	// missing the indexed winner topic
	l := makeLog(t, EventDuelSettled, []common.Hash{uintTopic(1)}, big.NewInt(1))
	_, ok = DecodeLog(l)
	assert.False(t, ok)
}

func TestNewReceiptSkipsForeignLogs(t *testing.T) {
	own := makeLog(t, EventDuelCreated, []common.Hash{uintTopic(5), addrTopic(testPlayer)}, big.NewInt(10))
	foreign := own
	foreign.Address = common.HexToAddress("0x01")

	r := newReceipt(&types.Receipt{
		TxHash:      common.HexToHash("0xab"),
		BlockNumber: big.NewInt(12),
		Logs:        []*types.Log{&foreign, &own, nil},
	}, testContract)

	require.Len(t, r.Events, 1)
	assert.Equal(t, uint64(12), r.BlockNumber)
	created, ok := r.Find(EventDuelCreated)
	require.True(t, ok)
	assert.Equal(t, uint64(5), created.DuelID)
	_, ok = r.Find(EventDuelJoined)
	assert.False(t, ok)
}

func TestFilterMatch(t *testing.T) {
	other := common.HexToAddress("0xBB")
	ev := Event{Name: EventDuelJoined, DuelID: 7, Player: testPlayer}

	assert.True(t, Filter{}.Match(ev))
	assert.True(t, ForDuel(7).Match(ev))
	assert.False(t, ForDuel(8).Match(ev))
	assert.True(t, Filter{Events: []string{EventDuelJoined, EventDuelSettled}}.Match(ev))
	assert.False(t, Filter{Events: []string{EventDuelSettled}}.Match(ev))
	assert.False(t, Filter{Player: &other}.Match(ev))

	seed := Event{Name: EventDuelSeedFulfilled, DuelID: 7}
	assert.True(t, Filter{Player: &other}.Match(seed))
}
