// Package signer holds the verifier key and produces the settlement
// authorizations the contract checks. Every signature moves funds, so each one
// is written to the audit log before it is handed out.
package signer

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"
	"time"

	"typestake/internal/chain"
	"typestake/internal/domain"
	"typestake/internal/logger"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// Auditor persists audit entries. A non-nil error means the entry is not durable.
type Auditor interface {
	Record(ctx context.Context, entry *domain.AuditLog) error
}

// Authorization is a signed settlement.
type Authorization struct {
	Signature hexutil.Bytes  `json:"signature"`
	Hash      common.Hash    `json:"hash"`
	Signer    common.Address `json:"signer"`
}

// Signer signs settlement messages with the verifier key.
type Signer struct {
	key     *ecdsa.PrivateKey
	address common.Address
	auditor Auditor
	now     func() time.Time
}

// New parses the verifier key. The key must be 32 bytes of hex, 0x optional.
func New(hexKey string, auditor Auditor) (*Signer, error) {
	if strings.TrimSpace(hexKey) == "" {
		return nil, &domain.ConfigurationError{Setting: "VERIFIER_PRIVATE_KEY", Err: errors.New("not set")}
	}
	key, err := chain.ParsePrivateKey(hexKey)
	if err != nil {
		return nil, &domain.ConfigurationError{Setting: "VERIFIER_PRIVATE_KEY", Err: err}
	}
	if auditor == nil {
		return nil, &domain.ConfigurationError{Setting: "audit log", Err: errors.New("no auditor")}
	}
	return &Signer{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		auditor: auditor,
		now:     time.Now,
	}, nil
}

// Address is the verifier address the contract must be configured with.
func (s *Signer) Address() common.Address { return s.address }

// SignSolo authorizes a solo settlement.
func (s *Signer) SignSolo(ctx context.Context, in domain.SoloSettlement) (*Authorization, error) {
	player, err := parseAddress("playerAddress", in.PlayerAddress)
	if err != nil {
		return nil, err
	}
	if in.SequenceNumber == 0 {
		return nil, domain.NewValidationError("sequenceNumber", "must be positive")
	}

	hash := chain.SoloSettlementHash(in.SequenceNumber, in.Misses, in.Typos, in.BonusAmount, player)
	return s.sign(ctx, hash, player.Hex(), domain.AuditActionSignSolo, map[string]interface{}{
		"sequence_number": in.SequenceNumber,
		"misses":          in.Misses,
		"typos":           in.Typos,
		"bonus_amount":    in.BonusAmount,
		"player":          player.Hex(),
	})
}

// SignDuel authorizes a decided duel.
func (s *Signer) SignDuel(ctx context.Context, in domain.DuelSettlement) (*Authorization, error) {
	winner, err := parseAddress("winner", in.Winner)
	if err != nil {
		return nil, err
	}
	if in.DuelID == 0 {
		return nil, domain.NewValidationError("duelId", "must be positive")
	}

	hash := chain.DuelSettlementHash(in.DuelID, winner, in.Player1Score, in.Player2Score)
	return s.sign(ctx, hash, winner.Hex(), domain.AuditActionSignDuel, map[string]interface{}{
		"duel_id":       in.DuelID,
		"winner":        winner.Hex(),
		"player1_score": in.Player1Score,
		"player2_score": in.Player2Score,
	})
}

func (s *Signer) sign(ctx context.Context, hash common.Hash, actor, action string, details map[string]interface{}) (*Authorization, error) {
	sig, err := crypto.Sign(accounts.TextHash(hash.Bytes()), s.key)
	if err != nil {
		return nil, fmt.Errorf("sign: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27

	details["hash"] = hash.Hex()
	details["signer"] = s.address.Hex()
	entry := &domain.AuditLog{
		Actor:     actor,
		Action:    action,
		Category:  domain.AuditCategorySettlement,
		Details:   details,
		CreatedAt: s.now().UTC(),
	}
	if err := s.auditor.Record(ctx, entry); err != nil {
		logger.WithContext(ctx).Error("audit write failed, signature withheld", "action", action, "hash", hash.Hex(), "error", err)
		return nil, fmt.Errorf("audit %s: %w", action, err)
	}

	logger.WithContext(ctx).Info("settlement signed", "action", action, "actor", actor, "hash", hash.Hex())
	return &Authorization{Signature: sig, Hash: hash, Signer: s.address}, nil
}

// Recover returns the address that produced sig over hash, accepting V in
// {0,1} or {27,28}.
func Recover(hash common.Hash, sig []byte) (common.Address, error) {
	return RecoverText(hash.Bytes(), sig)
}

// RecoverText recovers the signer of an EIP-191 personal message.
func RecoverText(message, sig []byte) (common.Address, error) {
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, domain.NewValidationError("signature", "must be 65 bytes")
	}
	normalized := make([]byte, len(sig))
	copy(normalized, sig)
	if normalized[crypto.RecoveryIDOffset] >= 27 {
		normalized[crypto.RecoveryIDOffset] -= 27
	}
	pub, err := crypto.SigToPub(accounts.TextHash(message), normalized)
	if err != nil {
		return common.Address{}, domain.NewValidationError("signature", err.Error())
	}
	return crypto.PubkeyToAddress(*pub), nil
}

func parseAddress(field, v string) (common.Address, error) {
	if !common.IsHexAddress(v) {
		return common.Address{}, domain.NewValidationError(field, "not a hex address")
	}
	addr := common.HexToAddress(v)
	if addr == (common.Address{}) {
		return common.Address{}, domain.NewValidationError(field, "zero address")
	}
	return addr, nil
}
