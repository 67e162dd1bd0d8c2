package service

import (
	"context"
	"errors"

	"typestake/internal/chain"
	"typestake/internal/domain"
	"typestake/internal/logger"
	"typestake/internal/signer"

	"github.com/ethereum/go-ethereum/common"
)

// SettlementSigner is what the settlement service needs from the verifier key.
type SettlementSigner interface {
	SignSolo(ctx context.Context, in domain.SoloSettlement) (*signer.Authorization, error)
	SignDuel(ctx context.Context, in domain.DuelSettlement) (*signer.Authorization, error)
}

// SettlementService issues verifier signatures. When a chain reader is
// configured, requests are checked against contract state first.
type SettlementService struct {
	signer  SettlementSigner
	results ResultStore
	reader  chain.StateReader
}

// NewSettlementService wires the signer. reader may be nil, in which case no
// on-chain checks are made.
func NewSettlementService(s SettlementSigner, results ResultStore, reader chain.StateReader) *SettlementService {
	return &SettlementService{signer: s, results: results, reader: reader}
}

// DuelAuthorization is a signed duel outcome together with what was signed.
type DuelAuthorization struct {
	*signer.Authorization
	Params domain.DuelSettlement `json:"params"`
}

// SettleSolo signs a solo result.
func (s *SettlementService) SettleSolo(ctx context.Context, in domain.SoloSettlement) (*signer.Authorization, error) {
	if s.reader != nil && common.IsHexAddress(in.PlayerAddress) {
		session, err := s.reader.Session(ctx, common.HexToAddress(in.PlayerAddress))
		if err != nil {
			return nil, s.fail("solo", "chain_read", err)
		}
		if !session.Active {
			return nil, s.fail("solo", "inactive", domain.NewConflict(domain.ErrNoActiveSession, "session not active"))
		}
		if session.SequenceNumber != in.SequenceNumber {
			return nil, s.fail("solo", "sequence", domain.NewConflict(nil, "sequence number does not match the active session"))
		}
		if !session.Fulfilled {
			return nil, s.fail("solo", "unseeded", domain.NewConflict(nil, "session seed not fulfilled yet"))
		}
	}

	auth, err := s.signer.SignSolo(ctx, in)
	if err != nil {
		return nil, s.fail("solo", "sign", err)
	}
	SignaturesIssued.WithLabelValues("solo").Inc()
	return auth, nil
}

// SettleDuel decides the duel from the stored results and signs the outcome.
// The caller never chooses the winner. player1Hint names the creator and is
// only used when no chain reader is configured.
func (s *SettlementService) SettleDuel(ctx context.Context, duelID uint64, player1Hint string) (*DuelAuthorization, error) {
	if duelID == 0 {
		return nil, domain.NewValidationError("duelId", "required")
	}
	results, err := s.results.ListByDuel(ctx, duelID)
	if err != nil {
		return nil, s.fail("duel", "store", err)
	}
	if len(results) < 2 {
		return nil, s.fail("duel", "incomplete", domain.NewConflict(domain.ErrResultsIncomplete, ""))
	}

	player1, player2, err := s.duelPlayers(ctx, duelID, player1Hint, results)
	if err != nil {
		return nil, s.fail("duel", "players", err)
	}

	params, err := domain.DecideDuel(duelID, player1, player2, results)
	if err != nil {
		return nil, s.fail("duel", "decide", err)
	}

	auth, err := s.signer.SignDuel(ctx, params)
	if err != nil {
		return nil, s.fail("duel", "sign", err)
	}
	SignaturesIssued.WithLabelValues("duel").Inc()
	logger.WithContext(ctx).Info("duel decided", "duel_id", duelID, "winner", params.Winner,
		"player1_score", params.Player1Score, "player2_score", params.Player2Score)
	return &DuelAuthorization{Authorization: auth, Params: params}, nil
}

func (s *SettlementService) duelPlayers(ctx context.Context, duelID uint64, hint string, results []*domain.DuelResult) (string, string, error) {
	if s.reader != nil {
		duel, err := s.reader.Duel(ctx, duelID)
		if err != nil {
			return "", "", err
		}
		if !duel.Active {
			return "", "", domain.NewConflict(domain.ErrDuelNotOpen, "duel is not active")
		}
		if duel.Player2 == (common.Address{}) {
			return "", "", domain.NewConflict(nil, "duel has no opponent")
		}
		if !duel.Fulfilled {
			return "", "", domain.NewConflict(domain.ErrResultsIncomplete, "duel seed not fulfilled yet")
		}
		return duel.Player1.Hex(), duel.Player2.Hex(), nil
	}

	if !common.IsHexAddress(hint) {
		return "", "", domain.NewValidationError("player1", "required when no contract is configured")
	}
	p1 := domain.NormalizeAddress(hint)
	var p2 string
	for _, r := range results {
		if addr := domain.NormalizeAddress(r.PlayerAddress); addr != p1 {
			p2 = addr
		}
	}
	if p2 == "" {
		return "", "", domain.NewValidationError("player1", "is not one of the submitted players")
	}
	return common.HexToAddress(p1).Hex(), common.HexToAddress(p2).Hex(), nil
}

func (s *SettlementService) fail(kind, reason string, err error) error {
	var (
		v *domain.ValidationError
		c *domain.ConflictError
	)
	if !errors.As(err, &v) && !errors.As(err, &c) {
		reason = "internal"
	}
	SignatureFailures.WithLabelValues(kind, reason).Inc()
	return err
}
