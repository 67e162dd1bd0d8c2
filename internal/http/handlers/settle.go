package handlers

import (
	"net/http"

	"typestake/internal/domain"

	"github.com/gin-gonic/gin"
)

type SettleRequest struct {
	SequenceNumber *uint64 `json:"sequenceNumber"`
	Misses         *uint64 `json:"misses"`
	Typos          *uint64 `json:"typos"`
	BonusAmount    *uint64 `json:"bonusAmount"`
	PlayerAddress  string  `json:"playerAddress"`
}

// Settle signs a solo result.
func (h *Handler) Settle(c *gin.Context) {
	var req SettleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "", "malformed body: counters must be non-negative integers")
		return
	}
	switch {
	case req.SequenceNumber == nil:
		badRequest(c, "sequenceNumber", "required")
		return
	case req.Misses == nil:
		badRequest(c, "misses", "required")
		return
	case req.Typos == nil:
		badRequest(c, "typos", "required")
		return
	case req.BonusAmount == nil:
		badRequest(c, "bonusAmount", "required")
		return
	case req.PlayerAddress == "":
		badRequest(c, "playerAddress", "required")
		return
	}

	params := domain.SoloSettlement{
		SequenceNumber: *req.SequenceNumber,
		Misses:         *req.Misses,
		Typos:          *req.Typos,
		BonusAmount:    *req.BonusAmount,
		PlayerAddress:  req.PlayerAddress,
	}
	auth, err := h.Settlement.SettleSolo(c.Request.Context(), params)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"signature": auth.Signature,
		"hash":      auth.Hash,
		"signer":    auth.Signer,
		"params":    params,
	})
}

type SettleDuelRequest struct {
	DuelID uint64 `json:"duelId"`
	// Player1 names the creator. Only read when the server has no contract.
	Player1 string `json:"player1"`
}

// SettleDuel decides the winner from the stored results and signs it.
func (h *Handler) SettleDuel(c *gin.Context) {
	var req SettleDuelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "", "malformed body")
		return
	}
	if req.DuelID == 0 {
		badRequest(c, "duelId", "required")
		return
	}

	auth, err := h.Settlement.SettleDuel(c.Request.Context(), req.DuelID, req.Player1)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"signature": auth.Signature,
		"hash":      auth.Hash,
		"signer":    auth.Signer,
		"params":    auth.Params,
	})
}
