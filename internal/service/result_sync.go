package service

import (
	"context"
	"fmt"

	"typestake/internal/chain"
	"typestake/internal/domain"
	"typestake/internal/logger"

	"github.com/ethereum/go-ethereum/common"
)

// ResultStore is the rendezvous table. Upsert must be atomic per
// (duel, player) so readers never see a partial row.
type ResultStore interface {
	Upsert(ctx context.Context, res *domain.DuelResult) error
	ListByDuel(ctx context.Context, duelID uint64) ([]*domain.DuelResult, error)
	DeleteByDuel(ctx context.Context, duelID uint64) (int64, error)
}

// Notifier pushes advisory updates to whoever watches a duel.
type Notifier interface {
	Publish(duelID uint64, event string, data interface{})
}

// Push event names.
const (
	EventResultSubmitted = "result_submitted"
	EventResultsComplete = "results_complete"
	EventResultsCleared  = "results_cleared"
)

type nopNotifier struct{}

func (nopNotifier) Publish(uint64, string, interface{}) {}

// ResultSyncService lets both duelists park their results until the pair is
// complete. With a chain reader only the two duelists may submit, and rows of
// a duel still active on chain are never cleaned up.
type ResultSyncService struct {
	store  ResultStore
	notify Notifier
	reader chain.StateReader
}

func NewResultSyncService(store ResultStore, notify Notifier) *ResultSyncService {
	if notify == nil {
		notify = nopNotifier{}
	}
	return &ResultSyncService{store: store, notify: notify}
}

// WithReader enables the on-chain participant and cleanup checks.
func (s *ResultSyncService) WithReader(reader chain.StateReader) *ResultSyncService {
	s.reader = reader
	return s
}

// Submit upserts one player's result. Resubmitting overwrites.
func (s *ResultSyncService) Submit(ctx context.Context, res domain.DuelResult) (*domain.DuelResult, error) {
	if res.DuelID == 0 {
		return nil, domain.NewValidationError("duelId", "required")
	}
	if !common.IsHexAddress(res.PlayerAddress) {
		return nil, domain.NewValidationError("playerAddress", "not a hex address")
	}
	if s.reader != nil {
		duel, err := s.reader.Duel(ctx, res.DuelID)
		if err != nil {
			return nil, err
		}
		if !duel.HasPlayer(common.HexToAddress(res.PlayerAddress)) {
			return nil, domain.NewConflict(domain.ErrNotParticipant, fmt.Sprintf("%s in duel %d", res.PlayerAddress, res.DuelID))
		}
	}
	res.PlayerAddress = domain.NormalizeAddress(res.PlayerAddress)

	if err := s.store.Upsert(ctx, &res); err != nil {
		return nil, err
	}
	ResultSubmissions.Inc()
	logger.WithContext(ctx).Info("duel result submitted", "duel_id", res.DuelID, "player", res.PlayerAddress, "score", res.Score)

	s.notify.Publish(res.DuelID, EventResultSubmitted, payload{"playerAddress": res.PlayerAddress})
	results, err := s.store.ListByDuel(ctx, res.DuelID)
	if err == nil && len(results) >= 2 {
		s.notify.Publish(res.DuelID, EventResultsComplete, payload{"results": results})
	}
	return &res, nil
}

// Fetch returns 0, 1 or 2 results. One result means the opponent has not
// submitted yet.
func (s *ResultSyncService) Fetch(ctx context.Context, duelID uint64) ([]*domain.DuelResult, error) {
	if duelID == 0 {
		return nil, domain.NewValidationError("duelId", "required")
	}
	results, err := s.store.ListByDuel(ctx, duelID)
	if err != nil {
		return nil, err
	}
	if results == nil {
		results = []*domain.DuelResult{}
	}
	return results, nil
}

// Cleanup removes the duel's rows. Removing nothing is a success. A duel
// still active on chain keeps its rows.
func (s *ResultSyncService) Cleanup(ctx context.Context, duelID uint64) (int64, error) {
	if duelID == 0 {
		return 0, domain.NewValidationError("duelId", "required")
	}
	if s.reader != nil {
		duel, err := s.reader.Duel(ctx, duelID)
		if err != nil {
			return 0, err
		}
		if duel.Active {
			return 0, domain.NewConflict(domain.ErrDuelStillActive, fmt.Sprintf("duel %d", duelID))
		}
	}
	n, err := s.store.DeleteByDuel(ctx, duelID)
	if err != nil {
		return 0, err
	}
	ResultCleanups.Inc()
	logger.WithContext(ctx).Info("duel results cleaned up", "duel_id", duelID, "removed", n)
	s.notify.Publish(duelID, EventResultsCleared, payload{"removed": n})
	return n, nil
}

type payload = map[string]interface{}
