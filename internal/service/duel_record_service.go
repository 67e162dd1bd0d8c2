package service

import (
	"context"
	"math/big"
	"regexp"

	"typestake/internal/domain"
	"typestake/internal/logger"

	"github.com/ethereum/go-ethereum/common"
)

// RecordStore keeps settled duel outcomes.
type RecordStore interface {
	Create(ctx context.Context, rec *domain.DuelRecord) (bool, error)
	ListByWallet(ctx context.Context, wallet string, limit int) ([]*domain.DuelRecord, error)
}

const (
	DefaultRecordLimit = 20
	MaxRecordLimit     = 100
)

var txHashRe = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)

type DuelRecordService struct {
	store RecordStore
	audit *AuditService
}

func NewDuelRecordService(store RecordStore, audit *AuditService) *DuelRecordService {
	return &DuelRecordService{store: store, audit: audit}
}

// Record stores a settled duel. Recording the same duel twice is idempotent
// and returns the first stored row.
func (s *DuelRecordService) Record(ctx context.Context, rec domain.DuelRecord, ip string) (*domain.DuelRecord, error) {
	if rec.DuelID == 0 {
		return nil, domain.NewValidationError("duelId", "required")
	}
	for _, f := range [...]struct{ name, addr string }{
		{"player1", rec.Player1},
		{"player2", rec.Player2},
		{"winner", rec.Winner},
	} {
		if !common.IsHexAddress(f.addr) {
			return nil, domain.NewValidationError(f.name, "not a hex address")
		}
	}
	if !txHashRe.MatchString(rec.TxHash) {
		return nil, domain.NewValidationError("txHash", "must be a 32-byte hex transaction hash")
	}

	rec.Player1 = domain.NormalizeAddress(rec.Player1)
	rec.Player2 = domain.NormalizeAddress(rec.Player2)
	rec.Winner = domain.NormalizeAddress(rec.Winner)
	if rec.Player1 == rec.Player2 {
		return nil, domain.NewValidationError("player2", "must differ from player1")
	}
	if rec.Winner != rec.Player1 && rec.Winner != rec.Player2 {
		return nil, domain.NewValidationError("winner", "must be one of the players")
	}
	if rec.Stake == nil {
		rec.Stake = new(big.Int)
	}
	if rec.Payout == nil {
		rec.Payout = new(big.Int)
	}
	if rec.Stake.Sign() < 0 || rec.Payout.Sign() < 0 {
		return nil, domain.NewValidationError("stake", "must not be negative")
	}

	created, err := s.store.Create(ctx, &rec)
	if err != nil {
		return nil, err
	}
	if created {
		DuelRecords.Inc()
		if s.audit != nil {
			s.audit.LogDuelRecord(ctx, &rec, ip)
		}
		logger.WithContext(ctx).Info("duel recorded", "duel_id", rec.DuelID, "winner", rec.Winner, "tx", rec.TxHash)
	}
	return &rec, nil
}

// List returns the wallet's settled duels, newest first.
func (s *DuelRecordService) List(ctx context.Context, wallet string, limit int) ([]*domain.DuelRecord, error) {
	if !common.IsHexAddress(wallet) {
		return nil, domain.NewValidationError("walletAddress", "not a hex address")
	}
	if limit <= 0 {
		limit = DefaultRecordLimit
	}
	if limit > MaxRecordLimit {
		limit = MaxRecordLimit
	}
	recs, err := s.store.ListByWallet(ctx, domain.NormalizeAddress(wallet), limit)
	if err != nil {
		return nil, err
	}
	if recs == nil {
		recs = []*domain.DuelRecord{}
	}
	return recs, nil
}
