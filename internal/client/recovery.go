package client

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"typestake/internal/chain"
	"typestake/internal/domain"
	"typestake/internal/logger"
	"typestake/internal/payout"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Recovery keeps a device's in-flight session recoverable across restarts
// and is the safe exit (cancellation) when it is not. The chain is always
// authoritative; the local store only saves re-deriving values.
type Recovery struct {
	store  SessionStore
	reader chain.StateReader
	tx     chain.Transactor
	now    func() time.Time
}

func NewRecovery(store SessionStore, reader chain.StateReader, tx chain.Transactor) *Recovery {
	return &Recovery{store: store, reader: reader, tx: tx, now: time.Now}
}

func (r *Recovery) player() string {
	return domain.NormalizeAddress(r.tx.From().Hex())
}

// BeginSession records a solo stake before the stake transaction is sent, so
// a crash right after staking can still be reconciled.
func (r *Recovery) BeginSession(ctx context.Context, stake *big.Int) (*domain.StoredSession, error) {
	rec := &domain.StoredSession{
		Player:    r.player(),
		Stake:     new(big.Int).Set(stake),
		StartedAt: r.now(),
		Pending:   true,
	}
	if err := r.store.SaveSession(ctx, rec); err != nil {
		return nil, fmt.Errorf("persist session: %w", err)
	}
	return rec, nil
}

// BeginDuel is BeginSession for duels. duelID is zero for a duel this device
// is about to create.
func (r *Recovery) BeginDuel(ctx context.Context, duelID uint64, stake *big.Int, isCreator bool) (*domain.StoredDuelSession, error) {
	rec := &domain.StoredDuelSession{
		Player:    r.player(),
		DuelID:    duelID,
		Stake:     new(big.Int).Set(stake),
		StartedAt: r.now(),
		IsCreator: isCreator,
		Pending:   true,
	}
	if err := r.store.SaveDuel(ctx, rec); err != nil {
		return nil, fmt.Errorf("persist duel: %w", err)
	}
	return rec, nil
}

// Recover reconciles the local solo record with the chain. It returns nil
// when there is nothing to resume. A local record older than
// domain.StoredSessionTTL is not recovered even if the chain still reports
// the session active; CheckActiveSession still finds it there.
func (r *Recovery) Recover(ctx context.Context) (*domain.GameSession, error) {
	player := r.player()
	local, err := r.store.LoadSession(ctx, player)
	expired := errors.Is(err, ErrStaleRecord)
	if err != nil && !expired {
		return nil, err
	}

	session, err := r.reader.Session(ctx, common.HexToAddress(player))
	if err != nil {
		return nil, err
	}
	if !session.Active {
		if local != nil || expired {
			logger.Info("discarding stale local session", "player", player)
			return nil, r.store.ClearSession(ctx, player)
		}
		return nil, nil
	}
	if expired {
		logger.Warn("local session expired, not recovering", "player", player, "sequence", session.SequenceNumber)
		return nil, nil
	}

	rec := &domain.StoredSession{
		Player:         player,
		SequenceNumber: session.SequenceNumber,
		Stake:          session.Stake,
		Seed:           session.RandomSeed,
		StartedAt:      r.now(),
	}
	if local != nil {
		rec.StartedAt = local.StartedAt
		if rec.Seed == nil || rec.Seed.Sign() == 0 {
			rec.Seed = local.Seed
		}
	}
	if !session.Fulfilled {
		rec.Seed = nil
	}
	if err := r.store.SaveSession(ctx, rec); err != nil {
		return nil, err
	}
	return session, nil
}

// RecoverDuel reconciles the local duel record with the chain. Duels are
// looked up by id, so without a local record there is nothing to recover.
func (r *Recovery) RecoverDuel(ctx context.Context) (*domain.Duel, *domain.StoredDuelSession, error) {
	player := r.player()
	local, err := r.store.LoadDuel(ctx, player)
	if errors.Is(err, ErrStaleRecord) {
		logger.Info("local duel expired, not recovering", "player", player)
		return nil, nil, nil
	}
	if err != nil || local == nil {
		return nil, nil, err
	}
	if local.DuelID == 0 {
		// created but the id never came back; nothing on chain to match against
		logger.Warn("local duel record has no id, discarding", "player", player)
		return nil, nil, r.store.ClearDuel(ctx, player)
	}

	duel, err := r.reader.Duel(ctx, local.DuelID)
	if err != nil {
		return nil, nil, err
	}
	if !duel.Active || !duel.HasPlayer(common.HexToAddress(player)) {
		logger.Info("discarding stale local duel", "player", player, "duel_id", local.DuelID)
		return nil, nil, r.store.ClearDuel(ctx, player)
	}

	local.Pending = false
	local.Stake = duel.Stake
	if duel.Fulfilled {
		local.Seed = duel.RandomSeed
	}
	if err := r.store.SaveDuel(ctx, local); err != nil {
		return nil, nil, err
	}
	return duel, local, nil
}

// CheckActiveSession reads the chain only.
func (r *Recovery) CheckActiveSession(ctx context.Context) (*domain.GameSession, bool, error) {
	session, err := r.reader.Session(ctx, common.HexToAddress(r.player()))
	if err != nil {
		return nil, false, err
	}
	return session, session.Active, nil
}

// Cancellation is what a successful cancel returned.
type Cancellation struct {
	Refund  *uint256.Int
	FeeBps  uint64
	Receipt *chain.Receipt
}

// Cancel abandons the active solo session for refund = stake - fee. It is
// refused once the seed has been delivered.
func (r *Recovery) Cancel(ctx context.Context) (*Cancellation, error) {
	session, active, err := r.CheckActiveSession(ctx)
	if err != nil {
		return nil, err
	}
	if !active {
		_ = r.store.ClearSession(ctx, r.player())
		return nil, domain.NewConflict(domain.ErrNoActiveSession, "nothing to cancel")
	}
	if session.Fulfilled {
		return nil, domain.NewConflict(domain.ErrAlreadyFulfilled, "cannot cancel after the seed is delivered")
	}

	out, err := r.refund(ctx, session.Stake)
	if err != nil {
		return nil, err
	}
	out.Receipt, err = r.tx.CancelSession(ctx)
	if err != nil {
		return nil, err
	}
	if ev, ok := out.Receipt.Find(chain.EventSessionCancelled); ok && ev.Amount != nil {
		out.Refund, _ = uint256.FromBig(ev.Amount)
	}
	if err := r.store.ClearSession(ctx, r.player()); err != nil {
		logger.Warn("failed to clear local session after cancel", "error", err)
	}
	logger.Info("session cancelled", "sequence", session.SequenceNumber, "refund", out.Refund.Dec(), "tx", out.Receipt.TxHash.Hex())
	return out, nil
}

// CancelDuel abandons a duel for refund = stake - fee. Refused once the duel
// seed has been delivered.
func (r *Recovery) CancelDuel(ctx context.Context, duelID uint64) (*Cancellation, error) {
	duel, err := r.reader.Duel(ctx, duelID)
	if err != nil {
		return nil, err
	}
	if !duel.Active {
		_ = r.store.ClearDuel(ctx, r.player())
		return nil, domain.NewConflict(domain.ErrDuelNotOpen, "duel is not active")
	}
	if duel.Fulfilled {
		return nil, domain.NewConflict(domain.ErrAlreadyFulfilled, "cannot cancel after the seed is delivered")
	}

	out, err := r.refund(ctx, duel.Stake)
	if err != nil {
		return nil, err
	}
	out.Receipt, err = r.tx.CancelDuel(ctx, duelID)
	if err != nil {
		return nil, err
	}
	if ev, ok := out.Receipt.Find(chain.EventDuelCancelled); ok && ev.Amount != nil {
		out.Refund, _ = uint256.FromBig(ev.Amount)
	}
	if err := r.store.ClearDuel(ctx, r.player()); err != nil {
		logger.Warn("failed to clear local duel after cancel", "error", err)
	}
	logger.Info("duel cancelled", "duel_id", duelID, "refund", out.Refund.Dec(), "tx", out.Receipt.TxHash.Hex())
	return out, nil
}

// refund computes the expected refund with the chain's fee, falling back to
// the default when the contract can't be read.
func (r *Recovery) refund(ctx context.Context, stake *big.Int) (*Cancellation, error) {
	bps, err := r.reader.CancelFeeBps(ctx)
	if err != nil {
		logger.Warn("cancel fee unavailable, using default", "default_bps", payout.DefaultCancelFeeBps, "error", err)
		bps = payout.DefaultCancelFeeBps
	}
	if stake == nil {
		stake = new(big.Int)
	}
	s, overflow := uint256.FromBig(stake)
	if overflow {
		return nil, domain.NewValidationError("stake", "exceeds 256 bits")
	}
	refund, err := payout.CancelRefund(s, bps)
	if err != nil {
		return nil, err
	}
	return &Cancellation{Refund: refund, FeeBps: bps}, nil
}
