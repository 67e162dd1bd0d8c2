package client

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"typestake/internal/chain"
	"typestake/internal/domain"
	"typestake/internal/logger"
	"typestake/internal/payout"

	"github.com/holiman/uint256"
)

// SoloResult is what the typing round produced locally.
type SoloResult struct {
	WPM    uint64
	Misses uint64
	Typos  uint64
}

// SoloOutcome is a settled solo game.
type SoloOutcome struct {
	SequenceNumber uint64
	Expected       *uint256.Int // local estimate
	Payout         *big.Int     // what the contract paid, nil if the event was missing
	Receipt        *chain.Receipt
}

// SoloGame drives one staked solo session: stake, wait for the seed, settle.
type SoloGame struct {
	tx       chain.Transactor
	reader   chain.StateReader
	poller   *chain.Poller
	api      *API
	recovery *Recovery
}

func NewSoloGame(tx chain.Transactor, reader chain.StateReader, api *API, recovery *Recovery) *SoloGame {
	return &SoloGame{
		tx:       tx,
		reader:   reader,
		poller:   chain.NewPoller(reader),
		api:      api,
		recovery: recovery,
	}
}

// WithPoller replaces the seed poller.
func (g *SoloGame) WithPoller(p *chain.Poller) *SoloGame {
	g.poller = p
	return g
}

// Start stakes and opens a session. The local record is written before the
// first transaction.
func (g *SoloGame) Start(ctx context.Context, stake *big.Int) (*domain.GameSession, error) {
	if stake == nil || stake.Sign() <= 0 {
		return nil, domain.NewValidationError("stake", "must be positive")
	}
	if _, active, err := g.recovery.CheckActiveSession(ctx); err != nil {
		return nil, err
	} else if active {
		return nil, domain.NewConflict(nil, "a session is already active; resume or cancel it")
	}

	rec, err := g.recovery.BeginSession(ctx, stake)
	if err != nil {
		return nil, err
	}
	if _, err := g.tx.ApproveStake(ctx, stake); err != nil {
		return nil, err
	}
	receipt, err := g.tx.StartGame(ctx, stake)
	if err != nil {
		return nil, err
	}

	ev, ok := receipt.Find(chain.EventGameStarted)
	if !ok {
		return nil, &domain.ChainTransactionError{Operation: "startGame", TxHash: receipt.TxHash.Hex(), Reason: "no GameStarted event in receipt"}
	}
	rec.SequenceNumber = ev.SequenceNumber
	rec.Pending = false
	if err := g.recovery.store.SaveSession(ctx, rec); err != nil {
		logger.Warn("failed to update local session", "error", err)
	}

	logger.Info("solo session started", "sequence", ev.SequenceNumber, "stake", stake.String(), "tx", receipt.TxHash.Hex())
	return &domain.GameSession{
		Player:         g.tx.From(),
		SequenceNumber: ev.SequenceNumber,
		Stake:          new(big.Int).Set(stake),
		Active:         true,
	}, nil
}

// AwaitSeed blocks until the oracle delivers the session seed, at most the
// poller's budget.
func (g *SoloGame) AwaitSeed(ctx context.Context) (*big.Int, error) {
	session, err := g.poller.PollSessionSeed(ctx, g.tx.From())
	if err != nil {
		if errors.Is(err, chain.ErrResolved) {
			_ = g.recovery.store.ClearSession(ctx, g.player())
			return nil, domain.NewConflict(domain.ErrNoActiveSession, "session ended while waiting for the seed")
		}
		return nil, err
	}

	if rec, _ := g.recovery.store.LoadSession(ctx, g.player()); rec != nil {
		rec.Seed = session.RandomSeed
		rec.SequenceNumber = session.SequenceNumber
		rec.Pending = false
		_ = g.recovery.store.SaveSession(ctx, rec)
	}
	return session.RandomSeed, nil
}

// Settle gets the verifier signature for res and submits it.
func (g *SoloGame) Settle(ctx context.Context, res SoloResult) (*SoloOutcome, error) {
	session, err := g.reader.Session(ctx, g.tx.From())
	if err != nil {
		return nil, err
	}
	if !session.Active {
		return nil, domain.NewConflict(domain.ErrNoActiveSession, "no session to settle")
	}
	if !session.Fulfilled {
		return nil, domain.NewConflict(nil, "seed not delivered yet")
	}

	expected, err := estimate(session.Stake, res)
	if err != nil {
		return nil, err
	}

	params := domain.SoloSettlement{
		SequenceNumber: session.SequenceNumber,
		Misses:         res.Misses,
		Typos:          res.Typos,
		BonusAmount:    payout.Bonus(res.WPM),
		PlayerAddress:  g.tx.From().Hex(),
	}
	auth, err := g.api.SignSolo(ctx, params)
	if err != nil {
		return nil, err
	}

	receipt, err := g.tx.SettleGame(ctx, params, auth.Signature)
	if err != nil {
		return nil, err
	}

	out := &SoloOutcome{SequenceNumber: session.SequenceNumber, Expected: expected, Receipt: receipt}
	if ev, ok := receipt.Find(chain.EventGameSettled); ok {
		out.Payout = ev.Amount
	}
	if err := g.recovery.store.ClearSession(ctx, g.player()); err != nil {
		logger.Warn("failed to clear local session", "error", err)
	}
	logger.Info("solo session settled", "sequence", session.SequenceNumber, "expected", expected.Dec(), "tx", receipt.TxHash.Hex())
	return out, nil
}

func (g *SoloGame) player() string {
	return domain.NormalizeAddress(g.tx.From().Hex())
}

func estimate(stake *big.Int, res SoloResult) (*uint256.Int, error) {
	if stake == nil {
		stake = new(big.Int)
	}
	s, overflow := uint256.FromBig(stake)
	if overflow {
		return nil, fmt.Errorf("stake exceeds 256 bits")
	}
	b, err := payout.Calculate(s, uint256.NewInt(res.WPM), uint256.NewInt(res.Misses))
	if err != nil {
		return nil, err
	}
	return b.Net, nil
}
