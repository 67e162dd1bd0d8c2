// Package payout mirrors the settlement contract's payout arithmetic. Every
// value is an unsigned 256-bit integer in 6-decimal token units; division
// truncates and subtraction clamps at zero exactly as the contract does.
package payout

import (
	"errors"

	"github.com/holiman/uint256"
)

const (
	FreeMisses          = 10
	PenaltyPerMiss      = 100_000 // 0.1 token
	PlatformFeeBps      = 1000    // 10%
	BonusPerWPM         = 1000    // 0.001 token
	BpsDenominator      = 10_000
	DefaultCancelFeeBps = 500 // 5%
)

// ErrOverflow is returned for inputs the contract would revert on.
var ErrOverflow = errors.New("payout: uint256 overflow")

var (
	freeMisses     = uint256.NewInt(FreeMisses)
	penaltyPerMiss = uint256.NewInt(PenaltyPerMiss)
	platformFeeBps = uint256.NewInt(PlatformFeeBps)
	bonusPerWPM    = uint256.NewInt(BonusPerWPM)
	bpsDenominator = uint256.NewInt(BpsDenominator)
)

// Breakdown is every intermediate of a payout calculation.
type Breakdown struct {
	Stake       *uint256.Int
	Bonus       *uint256.Int
	Penalizable *uint256.Int
	Penalty     *uint256.Int
	Gross       *uint256.Int
	Fee         *uint256.Int
	Net         *uint256.Int
}

// Calculate computes the payout of a solo game.
func Calculate(stake, wpm, misses *uint256.Int) (Breakdown, error) {
	b := Breakdown{Stake: stake.Clone()}

	bonus, overflow := new(uint256.Int).MulOverflow(wpm, bonusPerWPM)
	if overflow {
		return Breakdown{}, ErrOverflow
	}
	b.Bonus = bonus

	b.Penalizable = new(uint256.Int)
	if misses.Gt(freeMisses) {
		b.Penalizable.Sub(misses, freeMisses)
	}
	penalty, overflow := new(uint256.Int).MulOverflow(b.Penalizable, penaltyPerMiss)
	if overflow {
		return Breakdown{}, ErrOverflow
	}
	b.Penalty = penalty

	sum, overflow := new(uint256.Int).AddOverflow(stake, bonus)
	if overflow {
		return Breakdown{}, ErrOverflow
	}
	b.Gross = new(uint256.Int)
	if sum.Gt(penalty) {
		b.Gross.Sub(sum, penalty)
	}

	fee, err := feeOf(b.Gross, platformFeeBps)
	if err != nil {
		return Breakdown{}, err
	}
	b.Fee = fee
	b.Net = new(uint256.Int).Sub(b.Gross, fee)
	return b, nil
}

// CalculateUint64 is Calculate for inputs that fit in uint64; it cannot overflow.
func CalculateUint64(stake, wpm, misses uint64) Breakdown {
	b, _ := Calculate(uint256.NewInt(stake), uint256.NewInt(wpm), uint256.NewInt(misses))
	return b
}

// Net is shorthand for CalculateUint64(...).Net.
func Net(stake, wpm, misses uint64) *uint256.Int {
	return CalculateUint64(stake, wpm, misses).Net
}

// Bonus returns wpm * BonusPerWPM, the amount the verifier signs as bonusAmount.
func Bonus(wpm uint64) uint64 {
	return wpm * BonusPerWPM
}

// CancelRefund returns stake minus the cancellation fee.
func CancelRefund(stake *uint256.Int, feeBps uint64) (*uint256.Int, error) {
	if feeBps > BpsDenominator {
		return nil, errors.New("payout: cancel fee above 100%")
	}
	fee, err := feeOf(stake, uint256.NewInt(feeBps))
	if err != nil {
		return nil, err
	}
	return new(uint256.Int).Sub(stake, fee), nil
}

// DuelPot estimates the winner's payout: both stakes minus the platform fee.
// The realized amount is whatever the settlement event reports.
func DuelPot(stake *uint256.Int) (*uint256.Int, error) {
	gross, overflow := new(uint256.Int).AddOverflow(stake, stake)
	if overflow {
		return nil, ErrOverflow
	}
	fee, err := feeOf(gross, platformFeeBps)
	if err != nil {
		return nil, err
	}
	return gross.Sub(gross, fee), nil
}

func feeOf(amount, bps *uint256.Int) (*uint256.Int, error) {
	scaled, overflow := new(uint256.Int).MulOverflow(amount, bps)
	if overflow {
		return nil, ErrOverflow
	}
	return scaled.Div(scaled, bpsDenominator), nil
}
