package service

import (
	"context"

	"typestake/internal/domain"
	"typestake/internal/logger"
)

// AuditStore persists audit entries; repository.AuditRepository and
// repository.MemoryAuditStore implement it.
type AuditStore interface {
	Create(ctx context.Context, log *domain.AuditLog) error
	List(ctx context.Context, f domain.AuditFilter) ([]*domain.AuditLog, error)
}

// AuditService handles audit logging
type AuditService struct {
	repo AuditStore
}

// NewAuditService creates a new audit service
func NewAuditService(repo AuditStore) *AuditService {
	return &AuditService{repo: repo}
}

// Record writes an entry and reports failure. Callers that must not proceed
// without a durable entry (the signer) use this.
func (s *AuditService) Record(ctx context.Context, entry *domain.AuditLog) error {
	entry.Actor = domain.NormalizeAddress(entry.Actor)
	if err := s.repo.Create(ctx, entry); err != nil {
		logger.Error("failed to create audit log", "error", err, "action", entry.Action, "actor", entry.Actor)
		return err
	}
	return nil
}

// Log creates a new audit log entry, best effort.
func (s *AuditService) Log(ctx context.Context, actor, action, category string, details map[string]interface{}) {
	_ = s.Record(ctx, &domain.AuditLog{
		Actor:    actor,
		Action:   action,
		Category: category,
		Details:  details,
	})
}

// LogWithRequest creates an audit log with request info (IP, User-Agent)
func (s *AuditService) LogWithRequest(ctx context.Context, actor, action, category, ip, userAgent string, details map[string]interface{}) {
	_ = s.Record(ctx, &domain.AuditLog{
		Actor:     actor,
		Action:    action,
		Category:  category,
		Details:   details,
		IP:        ip,
		UserAgent: userAgent,
	})
}

// LogDuelRecord logs a settled duel being recorded
func (s *AuditService) LogDuelRecord(ctx context.Context, rec *domain.DuelRecord, ip string) {
	s.LogWithRequest(ctx, rec.Winner, domain.AuditActionDuelRecord, domain.AuditCategoryDuel, ip, "", map[string]interface{}{
		"duel_id": rec.DuelID,
		"player1": rec.Player1,
		"player2": rec.Player2,
		"winner":  rec.Winner,
		"tx_hash": rec.TxHash,
	})
}

// LogCleanup logs removal of a duel's rendezvous rows
func (s *AuditService) LogCleanup(ctx context.Context, duelID uint64, removed int64, ip string) {
	s.LogWithRequest(ctx, "", domain.AuditActionDuelCleanup, domain.AuditCategoryDuel, ip, "", map[string]interface{}{
		"duel_id": duelID,
		"removed": removed,
	})
}

// Activity returns the most recent entries a wallet produced: logins, signatures
// it requested and duels it won.
func (s *AuditService) Activity(ctx context.Context, wallet string, limit int) ([]*domain.AuditLog, error) {
	return s.repo.List(ctx, domain.AuditFilter{Actor: domain.NormalizeAddress(wallet), Limit: limit})
}
