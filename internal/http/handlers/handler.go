package handlers

import (
	"typestake/internal/service"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	Settlement *service.SettlementService
	Results    *service.ResultSyncService
	Records    *service.DuelRecordService
	WalletAuth *service.WalletAuthService
	// Audit is optional; without it /auth/activity is not served.
	Audit *service.AuditService

	// RequireWalletAuth rejects result submissions without a wallet token.
	RequireWalletAuth bool
}

func NewHandler(settlement *service.SettlementService, results *service.ResultSyncService, records *service.DuelRecordService, walletAuth *service.WalletAuthService) *Handler {
	return &Handler{
		Settlement: settlement,
		Results:    results,
		Records:    records,
		WalletAuth: walletAuth,
	}
}

// getWallet returns the address set by the wallet auth middleware.
func getWallet(c *gin.Context) (string, bool) {
	v, ok := c.Get("wallet")
	if !ok {
		return "", false
	}
	addr, ok := v.(string)
	return addr, ok && addr != ""
}
