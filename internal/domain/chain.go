package domain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// GameSession is a solo staked game as the contract reports it.
type GameSession struct {
	Player         common.Address `json:"player"`
	SequenceNumber uint64         `json:"sequenceNumber"`
	Stake          *big.Int       `json:"stake"`
	RandomSeed     *big.Int       `json:"randomSeed"`
	Active         bool           `json:"active"`
	Fulfilled      bool           `json:"fulfilled"`
}

// Duel is a two-player staked match as the contract reports it.
type Duel struct {
	ID         uint64         `json:"duelId"`
	Player1    common.Address `json:"player1"`
	Player2    common.Address `json:"player2"`
	Stake      *big.Int       `json:"stake"`
	RandomSeed *big.Int       `json:"randomSeed"`
	Active     bool           `json:"active"`
	Fulfilled  bool           `json:"fulfilled"`
}

// Open reports whether the duel is still waiting for a second player.
func (d *Duel) Open() bool {
	return d.Active && d.Player2 == (common.Address{})
}

// HasPlayer reports whether addr is one of the two duelists.
func (d *Duel) HasPlayer(addr common.Address) bool {
	return addr != (common.Address{}) && (d.Player1 == addr || d.Player2 == addr)
}
