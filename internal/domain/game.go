package domain

import (
	"math/big"
	"time"
)

// DuelResult is one participant's locally computed result, parked until both
// sides are present. Unique per (DuelID, PlayerAddress).
type DuelResult struct {
	DuelID        uint64    `db:"duel_id" json:"duelId"`
	PlayerAddress string    `db:"player_address" json:"playerAddress"`
	Score         uint64    `db:"score" json:"score"`
	WPM           uint64    `db:"wpm" json:"wpm"`
	Misses        uint64    `db:"misses" json:"misses"`
	Typos         uint64    `db:"typos" json:"typos"`
	SubmittedAt   time.Time `db:"submitted_at" json:"submittedAt"`
}

// DuelRecord is the final settled outcome of a duel.
type DuelRecord struct {
	ID           int64     `db:"id" json:"id"`
	DuelID       uint64    `db:"duel_id" json:"duelId"`
	Player1      string    `db:"player1" json:"player1"`
	Player2      string    `db:"player2" json:"player2"`
	Winner       string    `db:"winner" json:"winner"`
	Stake        *big.Int  `db:"stake" json:"stake"`
	Payout       *big.Int  `db:"payout" json:"payout"`
	Player1Score uint64    `db:"player1_score" json:"player1Score"`
	Player2Score uint64    `db:"player2_score" json:"player2Score"`
	TxHash       string    `db:"tx_hash" json:"txHash"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
}

// GameResult is the outcome from one player's point of view.
type GameResult string

const (
	GameResultWin  GameResult = "win"
	GameResultLose GameResult = "lose"
)

// ResultFor returns the outcome of the record for the given address.
func (r *DuelRecord) ResultFor(address string) GameResult {
	if r.Winner == address {
		return GameResultWin
	}
	return GameResultLose
}

// SoloSettlement is the input the verifier signs for a solo game.
type SoloSettlement struct {
	SequenceNumber uint64 `json:"sequenceNumber"`
	Misses         uint64 `json:"misses"`
	Typos          uint64 `json:"typos"`
	BonusAmount    uint64 `json:"bonusAmount"`
	PlayerAddress  string `json:"playerAddress"`
}

// DuelSettlement is the input the verifier signs for a duel.
type DuelSettlement struct {
	DuelID       uint64 `json:"duelId"`
	Winner       string `json:"winner"`
	Player1Score uint64 `json:"player1Score"`
	Player2Score uint64 `json:"player2Score"`
}
