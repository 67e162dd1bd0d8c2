package chain

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Event names emitted by the settlement contract.
const (
	EventGameStarted       = "GameStarted"
	EventSeedFulfilled     = "SeedFulfilled"
	EventGameSettled       = "GameSettled"
	EventSessionCancelled  = "SessionCancelled"
	EventDuelCreated       = "DuelCreated"
	EventDuelJoined        = "DuelJoined"
	EventDuelSeedFulfilled = "DuelSeedFulfilled"
	EventDuelSettled       = "DuelSettled"
	EventDuelCancelled     = "DuelCancelled"
)

// The subset of the settlement contract this service talks to.
const settlementABIJSON = `[
{"type":"function","name":"getSession","stateMutability":"view",
 "inputs":[{"name":"player","type":"address"}],
 "outputs":[{"name":"sequenceNumber","type":"uint64"},{"name":"stake","type":"uint256"},{"name":"randomSeed","type":"uint256"},{"name":"active","type":"bool"},{"name":"fulfilled","type":"bool"}]},
{"type":"function","name":"duels","stateMutability":"view",
 "inputs":[{"name":"duelId","type":"uint256"}],
 "outputs":[{"name":"player1","type":"address"},{"name":"player2","type":"address"},{"name":"stake","type":"uint256"},{"name":"randomSeed","type":"uint256"},{"name":"active","type":"bool"},{"name":"fulfilled","type":"bool"}]},
{"type":"function","name":"cancelFeeBps","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"stakeToken","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
{"type":"function","name":"startGame","stateMutability":"nonpayable","inputs":[{"name":"stake","type":"uint256"}],"outputs":[]},
{"type":"function","name":"settleGame","stateMutability":"nonpayable",
 "inputs":[{"name":"sequenceNumber","type":"uint64"},{"name":"misses","type":"uint256"},{"name":"typos","type":"uint256"},{"name":"bonusAmount","type":"uint256"},{"name":"signature","type":"bytes"}],"outputs":[]},
{"type":"function","name":"cancelSession","stateMutability":"nonpayable","inputs":[],"outputs":[]},
{"type":"function","name":"createDuel","stateMutability":"nonpayable","inputs":[{"name":"stake","type":"uint256"}],"outputs":[]},
{"type":"function","name":"joinDuel","stateMutability":"nonpayable","inputs":[{"name":"duelId","type":"uint256"}],"outputs":[]},
{"type":"function","name":"settleDuel","stateMutability":"nonpayable",
 "inputs":[{"name":"duelId","type":"uint256"},{"name":"winner","type":"address"},{"name":"player1Score","type":"uint256"},{"name":"player2Score","type":"uint256"},{"name":"signature","type":"bytes"}],"outputs":[]},
{"type":"function","name":"cancelDuel","stateMutability":"nonpayable","inputs":[{"name":"duelId","type":"uint256"}],"outputs":[]},
{"type":"event","name":"GameStarted","anonymous":false,
 "inputs":[{"name":"player","type":"address","indexed":true},{"name":"sequenceNumber","type":"uint64","indexed":true},{"name":"stake","type":"uint256","indexed":false}]},
{"type":"event","name":"SeedFulfilled","anonymous":false,
 "inputs":[{"name":"sequenceNumber","type":"uint64","indexed":true},{"name":"seed","type":"uint256","indexed":false}]},
{"type":"event","name":"GameSettled","anonymous":false,
 "inputs":[{"name":"player","type":"address","indexed":true},{"name":"sequenceNumber","type":"uint64","indexed":true},{"name":"payout","type":"uint256","indexed":false}]},
{"type":"event","name":"SessionCancelled","anonymous":false,
 "inputs":[{"name":"player","type":"address","indexed":true},{"name":"sequenceNumber","type":"uint64","indexed":true},{"name":"refund","type":"uint256","indexed":false}]},
{"type":"event","name":"DuelCreated","anonymous":false,
 "inputs":[{"name":"duelId","type":"uint256","indexed":true},{"name":"player1","type":"address","indexed":true},{"name":"stake","type":"uint256","indexed":false}]},
{"type":"event","name":"DuelJoined","anonymous":false,
 "inputs":[{"name":"duelId","type":"uint256","indexed":true},{"name":"player2","type":"address","indexed":true}]},
{"type":"event","name":"DuelSeedFulfilled","anonymous":false,
 "inputs":[{"name":"duelId","type":"uint256","indexed":true},{"name":"seed","type":"uint256","indexed":false}]},
{"type":"event","name":"DuelSettled","anonymous":false,
 "inputs":[{"name":"duelId","type":"uint256","indexed":true},{"name":"winner","type":"address","indexed":true},{"name":"payout","type":"uint256","indexed":false}]},
{"type":"event","name":"DuelCancelled","anonymous":false,
 "inputs":[{"name":"duelId","type":"uint256","indexed":true},{"name":"refund","type":"uint256","indexed":false}]}
]`

const erc20ABIJSON = `[
{"type":"function","name":"approve","stateMutability":"nonpayable",
 "inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
{"type":"function","name":"allowance","stateMutability":"view",
 "inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]}
]`

var (
	settlementABI = mustParseABI(settlementABIJSON)
	erc20ABI      = mustParseABI(erc20ABIJSON)

	eventsByID = indexEvents(settlementABI)
)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic("chain: bad ABI: " + err.Error())
	}
	return parsed
}

func indexEvents(a abi.ABI) map[common.Hash]abi.Event {
	out := make(map[common.Hash]abi.Event, len(a.Events))
	for _, ev := range a.Events {
		out[ev.ID] = ev
	}
	return out
}

// EventID returns the topic hash of a settlement contract event.
func EventID(name string) common.Hash {
	return settlementABI.Events[name].ID
}
