package client

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"typestake/internal/chain"
	"typestake/internal/domain"
	"typestake/internal/logger"
	"typestake/internal/retry"

	"github.com/ethereum/go-ethereum/common"
	"github.com/samber/lo"
)

type DuelState string

const (
	StateIdle            DuelState = "idle"
	StateCreated         DuelState = "created"
	StateJoined          DuelState = "joined"
	StateSeedFulfilled   DuelState = "seed_fulfilled"
	StateResultSubmitted DuelState = "result_submitted"
	StateResultsComplete DuelState = "results_complete"
	StateSettling        DuelState = "settling"
	StateSettled         DuelState = "settled"
	StateError           DuelState = "error"
)

// StateChange is published on every transition. Err is set for StateError.
type StateChange struct {
	State  DuelState
	DuelID uint64
	Err    error
}

// DuelOutcome is a settled duel.
type DuelOutcome struct {
	DuelID  uint64
	Params  domain.DuelSettlement
	Payout  *big.Int
	Receipt *chain.Receipt // nil when the opponent settled first
}

var (
	// DefaultResultsPolicy bounds how long AwaitResults waits for the opponent.
	DefaultResultsPolicy = retry.Constant(120, 2*time.Second)
	// DefaultOpponentPolicy bounds AwaitOpponent when no watcher is configured.
	DefaultOpponentPolicy = retry.Constant(300, 2*time.Second)
)

var errOpponentPending = errors.New("opponent not there yet")

// DuelDeps wires a DuelCoordinator. Watcher may be nil, in which case
// AwaitOpponent polls the contract.
type DuelDeps struct {
	Tx       chain.Transactor
	Reader   chain.StateReader
	Watcher  *chain.Watcher
	API      *API
	Recovery *Recovery
}

// DuelCoordinator drives one device's side of a duel. It is single-writer:
// call one operation at a time. State() and Updates() are safe from any
// goroutine.
type DuelCoordinator struct {
	tx       chain.Transactor
	reader   chain.StateReader
	watcher  *chain.Watcher
	poller   *chain.Poller
	api      *API
	recovery *Recovery

	resultsPolicy  retry.Policy
	opponentPolicy retry.Policy

	mu         sync.RWMutex
	state      DuelState
	failedFrom DuelState
	duelID     uint64
	isCreator  bool
	stake      *big.Int
	seed       *big.Int
	player1    common.Address
	player2    common.Address
	results    []*domain.DuelResult

	updates chan StateChange
}

func NewDuelCoordinator(d DuelDeps) *DuelCoordinator {
	return &DuelCoordinator{
		tx:             d.Tx,
		reader:         d.Reader,
		watcher:        d.Watcher,
		poller:         chain.NewPoller(d.Reader),
		api:            d.API,
		recovery:       d.Recovery,
		resultsPolicy:  DefaultResultsPolicy,
		opponentPolicy: DefaultOpponentPolicy,
		state:          StateIdle,
		updates:        make(chan StateChange, 32),
	}
}

// WithPolicies overrides the seed, results and opponent wait budgets.
func (c *DuelCoordinator) WithPolicies(seed, results, opponent retry.Policy) *DuelCoordinator {
	c.poller = c.poller.WithPolicy(seed)
	c.resultsPolicy = results
	c.opponentPolicy = opponent
	return c
}

// Updates streams state changes. Slow readers miss intermediate states but
// State() is always current.
func (c *DuelCoordinator) Updates() <-chan StateChange { return c.updates }

func (c *DuelCoordinator) State() DuelState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *DuelCoordinator) DuelID() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.duelID
}

// Seed is the duel seed once AwaitSeed or Resume has seen it.
func (c *DuelCoordinator) Seed() *big.Int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.seed
}

// IsCreator reports whether this device opened the duel.
func (c *DuelCoordinator) IsCreator() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isCreator
}

// Results are the two results AwaitResults returned.
func (c *DuelCoordinator) Results() []*domain.DuelResult {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.results
}

func (c *DuelCoordinator) set(s DuelState) {
	c.mu.Lock()
	c.state = s
	id := c.duelID
	c.mu.Unlock()
	c.publish(StateChange{State: s, DuelID: id})
}

func (c *DuelCoordinator) fail(err error) error {
	c.mu.Lock()
	c.failedFrom = c.state
	c.state = StateError
	id := c.duelID
	c.mu.Unlock()
	logger.Warn("duel step failed", "duel_id", id, "retryable", domain.IsRetryable(err), "error", err)
	c.publish(StateChange{State: StateError, DuelID: id, Err: err})
	return err
}

func (c *DuelCoordinator) publish(ev StateChange) {
	select {
	case c.updates <- ev:
	default:
	}
}

func (c *DuelCoordinator) expect(states ...DuelState) error {
	cur := c.State()
	if lo.Contains(states, cur) {
		return nil
	}
	return domain.NewConflict(nil, fmt.Sprintf("duel is %s, expected %v", cur, states))
}

func (c *DuelCoordinator) self() common.Address { return c.tx.From() }

// Create stakes and opens a duel. The local record exists before the first
// transaction and is updated with the id once the receipt is in.
func (c *DuelCoordinator) Create(ctx context.Context, stake *big.Int) (uint64, error) {
	if err := c.expect(StateIdle); err != nil {
		return 0, err
	}
	if stake == nil || stake.Sign() <= 0 {
		return 0, domain.NewValidationError("stake", "must be positive")
	}

	rec, err := c.recovery.BeginDuel(ctx, 0, stake, true)
	if err != nil {
		return 0, c.fail(err)
	}
	if _, err := c.tx.ApproveStake(ctx, stake); err != nil {
		return 0, c.fail(err)
	}
	receipt, err := c.tx.CreateDuel(ctx, stake)
	if err != nil {
		return 0, c.fail(err)
	}
	ev, ok := receipt.Find(chain.EventDuelCreated)
	if !ok {
		return 0, c.fail(&domain.ChainTransactionError{Operation: "createDuel", TxHash: receipt.TxHash.Hex(), Reason: "no DuelCreated event in receipt"})
	}

	rec.DuelID = ev.DuelID
	rec.Pending = false
	if err := c.recovery.store.SaveDuel(ctx, rec); err != nil {
		logger.Warn("failed to update local duel", "error", err)
	}

	c.mu.Lock()
	c.duelID = ev.DuelID
	c.isCreator = true
	c.stake = new(big.Int).Set(stake)
	c.player1 = c.self()
	c.mu.Unlock()
	logger.Info("duel created", "duel_id", ev.DuelID, "stake", stake.String(), "tx", receipt.TxHash.Hex())
	c.set(StateCreated)
	return ev.DuelID, nil
}

// Join takes the open seat of duelID, matching its stake.
func (c *DuelCoordinator) Join(ctx context.Context, duelID uint64) error {
	if err := c.expect(StateIdle); err != nil {
		return err
	}
	duel, err := c.reader.Duel(ctx, duelID)
	if err != nil {
		return c.fail(err)
	}
	switch {
	case !duel.Active:
		return domain.NewConflict(domain.ErrDuelNotOpen, fmt.Sprintf("duel %d", duelID))
	case duel.Player2 != (common.Address{}):
		return domain.NewConflict(domain.ErrDuelFull, fmt.Sprintf("duel %d", duelID))
	case duel.Player1 == c.self():
		return domain.NewConflict(nil, "cannot join your own duel")
	}

	c.mu.Lock()
	c.duelID = duelID
	c.mu.Unlock()

	if _, err := c.recovery.BeginDuel(ctx, duelID, duel.Stake, false); err != nil {
		return c.fail(err)
	}
	if _, err := c.tx.ApproveStake(ctx, duel.Stake); err != nil {
		return c.fail(err)
	}
	receipt, err := c.tx.JoinDuel(ctx, duelID)
	if err != nil {
		return c.fail(err)
	}

	c.mu.Lock()
	c.isCreator = false
	c.stake = duel.Stake
	c.player1 = duel.Player1
	c.player2 = c.self()
	c.mu.Unlock()
	logger.Info("duel joined", "duel_id", duelID, "tx", receipt.TxHash.Hex())
	c.set(StateJoined)
	return nil
}

// AwaitOpponent waits on the creator side for the DuelJoined event.
func (c *DuelCoordinator) AwaitOpponent(ctx context.Context) (common.Address, error) {
	if err := c.expect(StateCreated); err != nil {
		return common.Address{}, err
	}
	id := c.DuelID()

	var opponent common.Address
	var err error
	if c.watcher != nil {
		opponent, err = c.watchOpponent(ctx, id)
	} else {
		opponent, err = c.pollOpponent(ctx, id)
	}
	if err != nil {
		if ctx.Err() != nil {
			return common.Address{}, err
		}
		return common.Address{}, c.fail(err)
	}

	c.mu.Lock()
	c.player2 = opponent
	c.mu.Unlock()
	logger.Info("opponent joined", "duel_id", id, "opponent", opponent.Hex())
	c.set(StateJoined)
	return opponent, nil
}

func (c *DuelCoordinator) watchOpponent(ctx context.Context, id uint64) (common.Address, error) {
	// subscribe before reading so a join between the two isn't lost
	sub := c.watcher.Subscribe(chain.Filter{
		Events: []string{chain.EventDuelJoined, chain.EventDuelCancelled, chain.EventDuelSettled},
		DuelID: &id,
	})
	defer sub.Unsubscribe()

	duel, err := c.reader.Duel(ctx, id)
	if err != nil {
		return common.Address{}, err
	}
	if !duel.Active {
		return common.Address{}, domain.NewConflict(domain.ErrDuelNotOpen, "duel ended while waiting for an opponent")
	}
	if duel.Player2 != (common.Address{}) {
		return duel.Player2, nil
	}

	for {
		select {
		case <-ctx.Done():
			return common.Address{}, ctx.Err()
		case ev, ok := <-sub.C():
			if !ok {
				return common.Address{}, errors.New("event watcher stopped")
			}
			if ev.Name == chain.EventDuelJoined {
				return ev.Player, nil
			}
			return common.Address{}, domain.NewConflict(domain.ErrDuelNotOpen, "duel ended while waiting for an opponent")
		}
	}
}

func (c *DuelCoordinator) pollOpponent(ctx context.Context, id uint64) (common.Address, error) {
	var opponent common.Address
	err := c.opponentPolicy.Do(ctx, func(ctx context.Context, _ int) error {
		duel, err := c.reader.Duel(ctx, id)
		if err != nil {
			return err
		}
		if !duel.Active {
			return retry.Permanent(domain.NewConflict(domain.ErrDuelNotOpen, "duel ended while waiting for an opponent"))
		}
		if duel.Player2 == (common.Address{}) {
			return errOpponentPending
		}
		opponent = duel.Player2
		return nil
	})
	var ex *retry.ExhaustedError
	if errors.As(err, &ex) {
		return common.Address{}, &domain.ChainTimeoutError{Operation: "await opponent", Attempts: ex.Attempts, Interval: c.opponentPolicy.Backoff(1)}
	}
	return opponent, err
}

// AwaitSeed waits for the oracle seed of the duel.
func (c *DuelCoordinator) AwaitSeed(ctx context.Context) (*big.Int, error) {
	if err := c.expect(StateJoined); err != nil {
		return nil, err
	}
	id := c.DuelID()
	duel, err := c.poller.PollDuelSeed(ctx, id)
	if err != nil {
		if errors.Is(err, chain.ErrResolved) {
			_ = c.recovery.store.ClearDuel(ctx, c.playerKey())
			err = domain.NewConflict(domain.ErrDuelNotOpen, "duel ended while waiting for the seed")
		}
		return nil, c.fail(err)
	}

	c.mu.Lock()
	c.seed = duel.RandomSeed
	c.player1, c.player2 = duel.Player1, duel.Player2
	c.mu.Unlock()

	if rec, _ := c.recovery.store.LoadDuel(ctx, c.playerKey()); rec != nil {
		rec.Seed = duel.RandomSeed
		rec.Pending = false
		_ = c.recovery.store.SaveDuel(ctx, rec)
	}
	c.set(StateSeedFulfilled)
	return duel.RandomSeed, nil
}

// SubmitResult parks this player's result on the server. Calling it again
// overwrites the previous submission.
func (c *DuelCoordinator) SubmitResult(ctx context.Context, score, wpm, misses, typos uint64) error {
	if err := c.expect(StateSeedFulfilled, StateResultSubmitted); err != nil {
		return err
	}
	_, err := c.api.SubmitResult(ctx, domain.DuelResult{
		DuelID:        c.DuelID(),
		PlayerAddress: c.playerKey(),
		Score:         score,
		WPM:           wpm,
		Misses:        misses,
		Typos:         typos,
	})
	if err != nil {
		return c.fail(err)
	}
	c.set(StateResultSubmitted)
	return nil
}

// AwaitResults polls until both duelists' results are in. One result means
// the opponent is still typing, not an error. Rows from anyone else are
// ignored. If the duel goes inactive meanwhile the opponent settled it and
// its rows may be gone; AwaitResults then returns what it has and Settle
// finishes without a transaction.
func (c *DuelCoordinator) AwaitResults(ctx context.Context) ([]*domain.DuelResult, error) {
	if err := c.expect(StateResultSubmitted, StateResultsComplete); err != nil {
		return nil, err
	}
	id := c.DuelID()
	self, opponent := c.playerKey(), c.opponentKey()

	var results []*domain.DuelResult
	err := c.resultsPolicy.Do(ctx, func(ctx context.Context, _ int) error {
		got, err := c.api.FetchResults(ctx, id)
		if err != nil {
			return err
		}
		// one row per player, so two rows including ours is the pair
		mine := lo.Filter(got, func(r *domain.DuelResult, _ int) bool {
			addr := domain.NormalizeAddress(r.PlayerAddress)
			return opponent == "" || addr == self || addr == opponent
		})
		if len(mine) >= 2 && hasResultFrom(mine, self) {
			results = mine
			return nil
		}

		duel, err := c.reader.Duel(ctx, id)
		if err != nil {
			return err
		}
		if !duel.Active {
			results = mine
			return retry.Permanent(chain.ErrResolved)
		}
		return domain.ErrResultsIncomplete
	})
	if errors.Is(err, chain.ErrResolved) {
		logger.Info("duel resolved while waiting for results", "duel_id", id)
		err = nil
	}
	if err != nil {
		var ex *retry.ExhaustedError
		if errors.As(err, &ex) {
			err = &domain.ChainTimeoutError{Operation: "await opponent result", Attempts: ex.Attempts, Interval: c.resultsPolicy.Backoff(1)}
		}
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, c.fail(err)
	}

	c.mu.Lock()
	c.results = results
	c.mu.Unlock()
	c.set(StateResultsComplete)
	return results, nil
}

func hasResultFrom(results []*domain.DuelResult, player string) bool {
	return lo.ContainsBy(results, func(r *domain.DuelResult) bool {
		return domain.NormalizeAddress(r.PlayerAddress) == player
	})
}

// Settle gets the server-decided outcome signed, submits it, records it and
// cleans up. If the opponent already settled, no transaction is sent. A
// failure while settling leaves the stake escrowed, so Settle may be called
// again from the error state.
func (c *DuelCoordinator) Settle(ctx context.Context) (*DuelOutcome, error) {
	c.mu.RLock()
	retrying := c.state == StateError && c.failedFrom == StateSettling
	c.mu.RUnlock()
	if !retrying {
		if err := c.expect(StateResultsComplete); err != nil {
			return nil, err
		}
	}
	c.set(StateSettling)
	id := c.DuelID()

	duel, err := c.reader.Duel(ctx, id)
	if err != nil {
		return nil, c.fail(err)
	}

	c.mu.Lock()
	c.player1, c.player2 = duel.Player1, duel.Player2
	stake := duel.Stake
	if stake == nil {
		stake = c.stake
	}
	c.mu.Unlock()

	if !duel.Active {
		// the opponent's settlement landed first
		logger.Info("duel already settled on chain", "duel_id", id)
		c.finish(ctx, id)
		c.set(StateSettled)
		return &DuelOutcome{DuelID: id}, nil
	}

	auth, err := c.api.SettleDuel(ctx, id, duel.Player1.Hex())
	if err != nil {
		return nil, c.fail(err)
	}

	receipt, err := c.tx.SettleDuel(ctx, auth.Params, auth.Signature)
	if err != nil {
		return nil, c.fail(err)
	}

	out := &DuelOutcome{DuelID: id, Params: auth.Params, Receipt: receipt}
	if ev, ok := receipt.Find(chain.EventDuelSettled); ok {
		out.Payout = ev.Amount
	}

	rec := domain.DuelRecord{
		DuelID:       id,
		Player1:      duel.Player1.Hex(),
		Player2:      duel.Player2.Hex(),
		Winner:       auth.Params.Winner,
		Stake:        stake,
		Payout:       out.Payout,
		Player1Score: auth.Params.Player1Score,
		Player2Score: auth.Params.Player2Score,
		TxHash:       receipt.TxHash.Hex(),
	}
	if err := c.api.RecordDuel(ctx, rec); err != nil {
		// funds moved already; the record is bookkeeping
		logger.Warn("failed to record settled duel", "duel_id", id, "error", err)
	}
	c.finish(ctx, id)

	logger.Info("duel settled", "duel_id", id, "winner", auth.Params.Winner, "tx", receipt.TxHash.Hex())
	c.set(StateSettled)
	return out, nil
}

// finish drops the rendezvous rows and the local recovery record.
func (c *DuelCoordinator) finish(ctx context.Context, id uint64) {
	if _, err := c.api.CleanupResults(ctx, id); err != nil {
		logger.Warn("failed to clean up duel results", "duel_id", id, "error", err)
	}
	if err := c.recovery.store.ClearDuel(ctx, c.playerKey()); err != nil {
		logger.Warn("failed to clear local duel", "duel_id", id, "error", err)
	}
}

// Resume rebuilds the coordinator from the local record and the chain after
// a restart. It returns StateIdle when there is nothing to resume.
func (c *DuelCoordinator) Resume(ctx context.Context) (DuelState, error) {
	if err := c.expect(StateIdle); err != nil {
		return c.State(), err
	}
	duel, local, err := c.recovery.RecoverDuel(ctx)
	if err != nil {
		return StateIdle, err
	}
	if duel == nil {
		return StateIdle, nil
	}

	c.mu.Lock()
	c.duelID = duel.ID
	if c.duelID == 0 {
		c.duelID = local.DuelID
	}
	c.isCreator = local.IsCreator
	c.stake = duel.Stake
	c.player1, c.player2 = duel.Player1, duel.Player2
	c.seed = duel.RandomSeed
	c.mu.Unlock()

	var state DuelState
	switch {
	case duel.Player2 == (common.Address{}):
		state = StateCreated
	case !duel.Fulfilled:
		state = StateJoined
	default:
		state = StateSeedFulfilled
		results, err := c.api.FetchResults(ctx, c.DuelID())
		if err != nil {
			return StateIdle, err
		}
		me := c.playerKey()
		if lo.ContainsBy(results, func(r *domain.DuelResult) bool { return domain.NormalizeAddress(r.PlayerAddress) == me }) {
			state = StateResultSubmitted
		}
		if len(results) >= 2 {
			state = StateResultsComplete
			c.mu.Lock()
			c.results = results
			c.mu.Unlock()
		}
	}

	logger.Info("duel resumed", "duel_id", c.DuelID(), "state", state)
	c.set(state)
	return state, nil
}

func (c *DuelCoordinator) playerKey() string {
	return domain.NormalizeAddress(c.self().Hex())
}

// opponentKey is the other duelist's address, or "" before both seats are known.
func (c *DuelCoordinator) opponentKey() string {
	c.mu.RLock()
	p1, p2 := c.player1, c.player2
	c.mu.RUnlock()
	other := p1
	if other == c.self() {
		other = p2
	}
	if other == (common.Address{}) {
		return ""
	}
	return domain.NormalizeAddress(other.Hex())
}
