package handlers

import (
	"net/http"
	"strconv"

	"typestake/internal/domain"

	"github.com/gin-gonic/gin"
)

type SubmitResultRequest struct {
	DuelID        uint64 `json:"duelId"`
	PlayerAddress string `json:"playerAddress"`
	Score         uint64 `json:"score"`
	WPM           uint64 `json:"wpm"`
	Misses        uint64 `json:"misses"`
	Typos         uint64 `json:"typos"`
}

// SubmitResult parks one player's result. Resubmitting overwrites it.
func (h *Handler) SubmitResult(c *gin.Context) {
	var req SubmitResultRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "", "malformed body")
		return
	}
	if req.DuelID == 0 {
		badRequest(c, "duelId", "required")
		return
	}

	wallet, authed := getWallet(c)
	if h.RequireWalletAuth && !authed {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "wallet token required"})
		return
	}
	if authed && wallet != domain.NormalizeAddress(req.PlayerAddress) {
		c.JSON(http.StatusForbidden, gin.H{"error": "token does not match playerAddress"})
		return
	}

	res, err := h.Results.Submit(c.Request.Context(), domain.DuelResult{
		DuelID:        req.DuelID,
		PlayerAddress: req.PlayerAddress,
		Score:         req.Score,
		WPM:           req.WPM,
		Misses:        req.Misses,
		Typos:         req.Typos,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": res})
}

// FetchResults returns whatever has been submitted for the duel so far.
func (h *Handler) FetchResults(c *gin.Context) {
	duelID, ok := duelIDQuery(c)
	if !ok {
		return
	}
	results, err := h.Results.Fetch(c.Request.Context(), duelID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"duelId":   duelID,
		"results":  results,
		"complete": len(results) >= 2,
	})
}

// CleanupResults deletes the duel's rows after settlement.
func (h *Handler) CleanupResults(c *gin.Context) {
	duelID, ok := duelIDQuery(c)
	if !ok {
		return
	}
	removed, err := h.Results.Cleanup(c.Request.Context(), duelID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"duelId": duelID, "removed": removed})
}

func duelIDQuery(c *gin.Context) (uint64, bool) {
	raw := c.Query("duelId")
	if raw == "" {
		badRequest(c, "duelId", "required")
		return 0, false
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		badRequest(c, "duelId", "must be a positive integer")
		return 0, false
	}
	return id, true
}
