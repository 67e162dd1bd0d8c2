package handlers

import (
	"math/big"
	"net/http"
	"strconv"

	"typestake/internal/domain"

	"github.com/gin-gonic/gin"
)

type RecordDuelRequest struct {
	DuelID       uint64 `json:"duelId"`
	Player1      string `json:"player1"`
	Player2      string `json:"player2"`
	Winner       string `json:"winner"`
	Stake        string `json:"stake"`  // base units, decimal
	Payout       string `json:"payout"` // base units, decimal
	Player1Score uint64 `json:"player1Score"`
	Player2Score uint64 `json:"player2Score"`
	TxHash       string `json:"txHash"`
}

// RecordDuel stores a settled duel outcome.
func (h *Handler) RecordDuel(c *gin.Context) {
	var req RecordDuelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "", "malformed body")
		return
	}
	stake, ok := parseAmount(req.Stake)
	if !ok {
		badRequest(c, "stake", "must be a non-negative integer")
		return
	}
	payout, ok := parseAmount(req.Payout)
	if !ok {
		badRequest(c, "payout", "must be a non-negative integer")
		return
	}

	rec, err := h.Records.Record(c.Request.Context(), domain.DuelRecord{
		DuelID:       req.DuelID,
		Player1:      req.Player1,
		Player2:      req.Player2,
		Winner:       req.Winner,
		Stake:        stake,
		Payout:       payout,
		Player1Score: req.Player1Score,
		Player2Score: req.Player2Score,
		TxHash:       req.TxHash,
	}, c.ClientIP())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"record": recordView(rec)})
}

// ListDuelRecords returns settled duels for walletAddress, newest first.
func (h *Handler) ListDuelRecords(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			badRequest(c, "limit", "must be a non-negative integer")
			return
		}
		limit = n
	}

	wallet := c.Query("walletAddress")
	recs, err := h.Records.List(c.Request.Context(), wallet, limit)
	if err != nil {
		respondError(c, err)
		return
	}

	out := make([]gin.H, 0, len(recs))
	for _, r := range recs {
		view := recordView(r)
		view["result"] = r.ResultFor(domain.NormalizeAddress(wallet))
		out = append(out, view)
	}
	c.JSON(http.StatusOK, gin.H{"records": out})
}

// recordView renders amounts as decimal strings so clients don't lose
// precision on 256-bit values.
func recordView(r *domain.DuelRecord) gin.H {
	return gin.H{
		"id":           r.ID,
		"duelId":       r.DuelID,
		"player1":      r.Player1,
		"player2":      r.Player2,
		"winner":       r.Winner,
		"stake":        r.Stake.String(),
		"payout":       r.Payout.String(),
		"player1Score": r.Player1Score,
		"player2Score": r.Player2Score,
		"txHash":       r.TxHash,
		"createdAt":    r.CreatedAt,
	}
}

func parseAmount(s string) (*big.Int, bool) {
	if s == "" {
		return new(big.Int), true
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return nil, false
	}
	return v, true
}
