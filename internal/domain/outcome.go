package domain

import "strings"

// NormalizeAddress lower-cases a hex address so it can be used as a key.
func NormalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// DecideDuel picks the winner from both submitted results. Higher score wins.
// On equal scores the earlier submission wins, and if both were stored at the
// same instant the creator (player1) wins. Rows from anyone else are ignored.
func DecideDuel(duelID uint64, player1, player2 string, results []*DuelResult) (DuelSettlement, error) {
	p1, p2 := NormalizeAddress(player1), NormalizeAddress(player2)
	var r1, r2 *DuelResult
	for _, r := range results {
		switch NormalizeAddress(r.PlayerAddress) {
		case p1:
			r1 = r
		case p2:
			r2 = r
		}
	}
	if r1 == nil || r2 == nil {
		return DuelSettlement{}, NewConflict(ErrResultsIncomplete, "")
	}

	out := DuelSettlement{DuelID: duelID, Player1Score: r1.Score, Player2Score: r2.Score}
	switch {
	case r1.Score > r2.Score:
		out.Winner = player1
	case r2.Score > r1.Score:
		out.Winner = player2
	case r2.SubmittedAt.Before(r1.SubmittedAt):
		out.Winner = player2
	default:
		out.Winner = player1
	}
	return out, nil
}
