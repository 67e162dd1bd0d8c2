package domain

import "time"

// AuditLog represents an audit log entry for tracking important actions
type AuditLog struct {
	ID        int64                  `db:"id" json:"id"`
	Actor     string                 `db:"actor" json:"actor"`
	Action    string                 `db:"action" json:"action"`
	Category  string                 `db:"category" json:"category"`
	Details   map[string]interface{} `db:"details" json:"details"`
	IP        string                 `db:"ip" json:"ip,omitempty"`
	UserAgent string                 `db:"user_agent" json:"user_agent,omitempty"`
	CreatedAt time.Time              `db:"created_at" json:"created_at"`
}

// Audit action categories
const (
	AuditCategoryAuth       = "auth"
	AuditCategorySettlement = "settlement"
	AuditCategoryDuel       = "duel"
)

// Audit actions
const (
	AuditActionWalletLogin = "wallet_login"

	// A signature is equivalent to authorizing a transfer, so every one is logged.
	AuditActionSignSolo = "sign_solo"
	AuditActionSignDuel = "sign_duel"

	AuditActionDuelRecord  = "duel_record"
	AuditActionDuelCleanup = "duel_cleanup"
)

// AuditFilter selects audit entries, newest first. Empty fields match anything.
type AuditFilter struct {
	Actor    string
	Category string
	Action   string
	DuelID   uint64
	Limit    int
}

// MaxAuditPage caps how many entries one query returns.
const MaxAuditPage = 200

// PageSize clamps Limit into [1, MaxAuditPage], defaulting to 50.
func (f AuditFilter) PageSize() int {
	switch {
	case f.Limit <= 0:
		return 50
	case f.Limit > MaxAuditPage:
		return MaxAuditPage
	default:
		return f.Limit
	}
}
