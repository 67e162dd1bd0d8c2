package chain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Event is a decoded settlement contract log. Fields that the event does not
// carry are left zero.
type Event struct {
	Name           string         `json:"name"`
	DuelID         uint64         `json:"duelId,omitempty"`
	SequenceNumber uint64         `json:"sequenceNumber,omitempty"`
	Player         common.Address `json:"player"`
	Amount         *big.Int       `json:"amount,omitempty"`
	Seed           *big.Int       `json:"seed,omitempty"`
	TxHash         common.Hash    `json:"txHash"`
	BlockNumber    uint64         `json:"blockNumber"`
	LogIndex       uint           `json:"logIndex"`
}

// Terminal reports whether the event ends the life of its duel.
func (e Event) Terminal() bool {
	return e.Name == EventDuelSettled || e.Name == EventDuelCancelled
}

type logKey struct {
	tx    common.Hash
	index uint
}

func (e Event) key() logKey { return logKey{tx: e.TxHash, index: e.LogIndex} }

// DecodeLog decodes a settlement contract log. ok is false for logs of other
// contracts or events this package does not know.
func DecodeLog(l types.Log) (Event, bool) {
	if len(l.Topics) == 0 {
		return Event{}, false
	}
	abiEvent, ok := eventsByID[l.Topics[0]]
	if !ok {
		return Event{}, false
	}

	ev := Event{
		Name:        abiEvent.Name,
		TxHash:      l.TxHash,
		BlockNumber: l.BlockNumber,
		LogIndex:    l.Index,
	}

	topic := 1
	for _, in := range abiEvent.Inputs {
		if !in.Indexed {
			continue
		}
		if topic >= len(l.Topics) {
			return Event{}, false
		}
		t := l.Topics[topic]
		topic++
		switch in.Type.String() {
		case "address":
			ev.assign(in.Name, common.BytesToAddress(t.Bytes()))
		default:
			ev.assign(in.Name, new(big.Int).SetBytes(t.Bytes()))
		}
	}

	nonIndexed := abiEvent.Inputs.NonIndexed()
	values, err := nonIndexed.Unpack(l.Data)
	if err != nil || len(values) != len(nonIndexed) {
		return Event{}, false
	}
	for i, in := range nonIndexed {
		ev.assign(in.Name, values[i])
	}
	return ev, true
}

func (e *Event) assign(name string, v interface{}) {
	switch name {
	case "player", "player1", "player2", "winner":
		if addr, ok := v.(common.Address); ok {
			e.Player = addr
		}
	case "duelId":
		e.DuelID = toUint64(v)
	case "sequenceNumber":
		e.SequenceNumber = toUint64(v)
	case "stake", "payout", "refund":
		e.Amount = toBig(v)
	case "seed":
		e.Seed = toBig(v)
	}
}

func toBig(v interface{}) *big.Int {
	switch n := v.(type) {
	case *big.Int:
		return new(big.Int).Set(n)
	case uint64:
		return new(big.Int).SetUint64(n)
	default:
		return new(big.Int)
	}
}

func toUint64(v interface{}) uint64 {
	switch n := v.(type) {
	case uint64:
		return n
	case *big.Int:
		if n.IsUint64() {
			return n.Uint64()
		}
	}
	return 0
}

// Receipt is a mined, successful transaction and the contract events it emitted.
type Receipt struct {
	TxHash      common.Hash
	BlockNumber uint64
	Events      []Event
}

// Find returns the first event with the given name.
func (r *Receipt) Find(name string) (Event, bool) {
	for _, ev := range r.Events {
		if ev.Name == name {
			return ev, true
		}
	}
	return Event{}, false
}

func newReceipt(r *types.Receipt, contract common.Address) *Receipt {
	out := &Receipt{TxHash: r.TxHash}
	if r.BlockNumber != nil {
		out.BlockNumber = r.BlockNumber.Uint64()
	}
	for _, l := range r.Logs {
		if l == nil || l.Address != contract {
			continue
		}
		if ev, ok := DecodeLog(*l); ok {
			out.Events = append(out.Events, ev)
		}
	}
	return out
}
