package domain

import (
	"errors"
	"testing"
	"time"
)

func TestDecideDuel(t *testing.T) {
	const (
		alice = "0xAaAa000000000000000000000000000000000001"
		bob   = "0xBbBb000000000000000000000000000000000002"
	)
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Second)

	tests := []struct {
		name    string
		results []*DuelResult
		winner  string
	}{
		{
			name: "higher score wins",
			results: []*DuelResult{
				{PlayerAddress: alice, Score: 10, SubmittedAt: t0},
				{PlayerAddress: bob, Score: 20, SubmittedAt: t1},
			},
			winner: bob,
		},
		{
			name: "tie goes to earlier submission",
			results: []*DuelResult{
				{PlayerAddress: "0xaaaa000000000000000000000000000000000001", Score: 15, SubmittedAt: t1},
				{PlayerAddress: bob, Score: 15, SubmittedAt: t0},
			},
			winner: bob,
		},
		{
			name: "full tie goes to creator",
			results: []*DuelResult{
				{PlayerAddress: bob, Score: 15, SubmittedAt: t0},
				{PlayerAddress: alice, Score: 15, SubmittedAt: t0},
			},
			winner: alice,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecideDuel(7, alice, bob, tt.results)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Winner != tt.winner {
				t.Fatalf("winner = %s, want %s", got.Winner, tt.winner)
			}
			if got.DuelID != 7 {
				t.Fatalf("duel id = %d", got.DuelID)
			}
		})
	}
}

func TestDecideDuelOrdersScoresByPlayer(t *testing.T) {
	got, err := DecideDuel(1, "0x01", "0x02", []*DuelResult{
		{PlayerAddress: "0x02", Score: 5},
		{PlayerAddress: "0x01", Score: 9},
	})
	if err != nil {
		t.Fatal(err)
	}
	if got.Player1Score != 9 || got.Player2Score != 5 {
		t.Fatalf("scores = %d/%d, want 9/5", got.Player1Score, got.Player2Score)
	}
}

func TestDecideDuelIncomplete(t *testing.T) {
	_, err := DecideDuel(1, "0x01", "0x02", []*DuelResult{{PlayerAddress: "0x01"}})
	if !errors.Is(err, ErrResultsIncomplete) {
		t.Fatalf("expected ErrResultsIncomplete, got %v", err)
	}
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError, got %T", err)
	}
}

func TestDecideDuelIgnoresOutsiders(t *testing.T) {
	got, err := DecideDuel(1, "0x01", "0x02", []*DuelResult{
		{PlayerAddress: "0x03", Score: 999},
		{PlayerAddress: "0x01", Score: 4},
		{PlayerAddress: "0x02", Score: 6},
	})
	if err != nil {
		t.Fatal(err)
	}
	if got.Winner != "0x02" || got.Player1Score != 4 || got.Player2Score != 6 {
		t.Fatalf("got %+v", got)
	}

	_, err = DecideDuel(1, "0x01", "0x02", []*DuelResult{{PlayerAddress: "0x03"}, {PlayerAddress: "0x01"}})
	if !errors.Is(err, ErrResultsIncomplete) {
		t.Fatalf("expected ErrResultsIncomplete, got %v", err)
	}
}
