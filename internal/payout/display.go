package payout

import "time"

// Display-only figures. Nothing here may feed Calculate: the contract works in
// integers and a rounded float would drift from it.

// CharsPerWord is the conventional word length used for WPM.
const CharsPerWord = 5

// DisplayWPM returns words per minute for the typed characters.
func DisplayWPM(chars int, elapsed time.Duration) float64 {
	if chars <= 0 || elapsed <= 0 {
		return 0
	}
	return float64(chars) / CharsPerWord / elapsed.Minutes()
}

// Accuracy returns the share of correct keystrokes as a percentage.
func Accuracy(correct, total int) float64 {
	if total <= 0 {
		return 100
	}
	if correct < 0 {
		correct = 0
	}
	return float64(correct) / float64(total) * 100
}

// ToTokens renders 6-decimal token units for display.
func ToTokens(units uint64) float64 {
	return float64(units) / 1_000_000
}
