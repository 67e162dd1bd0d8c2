package handlers

import (
	"net/http"
	"strconv"

	"typestake/internal/service"

	"github.com/gin-gonic/gin"
)

type ChallengeRequest struct {
	Address string `json:"address"`
}

type VerifyRequest struct {
	Address   string `json:"address"`
	Signature string `json:"signature"`
}

// AuthChallenge hands out the message a wallet has to sign to log in.
func (h *Handler) AuthChallenge(c *gin.Context) {
	var req ChallengeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "", "malformed body")
		return
	}
	msg, err := h.WalletAuth.Challenge(c.Request.Context(), req.Address)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": msg, "expiresIn": int(service.ChallengeTTL.Seconds())})
}

// AuthVerify checks the signed challenge and issues a wallet token.
func (h *Handler) AuthVerify(c *gin.Context) {
	var req VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "", "malformed body")
		return
	}
	token, err := h.WalletAuth.Verify(c.Request.Context(), req.Address, req.Signature, c.ClientIP())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "expiresIn": int(service.TokenTTL.Seconds())})
}

// Activity lists the audit trail of the wallet behind the bearer token.
func (h *Handler) Activity(c *gin.Context) {
	wallet, ok := getWallet(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "wallet token required"})
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "0"))
	if err != nil || limit < 0 {
		badRequest(c, "limit", "must be a non-negative integer")
		return
	}
	entries, err := h.Audit.Activity(c.Request.Context(), wallet, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"wallet": wallet, "entries": entries})
}
