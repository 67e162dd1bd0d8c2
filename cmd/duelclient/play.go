package main

import (
	"context"
	"errors"
	"fmt"

	"typestake/internal/client"
	"typestake/internal/domain"

	"github.com/urfave/cli/v3"
)

func runSolo(ctx context.Context, cmd *cli.Command, s *session) error {
	game := client.NewSoloGame(s.contract, s.contract, s.api, s.recovery)

	active, err := s.recovery.Recover(ctx)
	if err != nil {
		return err
	}
	if active == nil {
		stake, err := parseStake(cmd.String("stake"))
		if err != nil {
			return err
		}
		if _, err := game.Start(ctx, stake); err != nil {
			return explain(err)
		}
	} else {
		fmt.Printf("resuming session #%d (stake %s)\n", active.SequenceNumber, active.Stake)
	}

	seed, err := game.AwaitSeed(ctx)
	if err != nil {
		return explain(err)
	}
	fmt.Printf("seed: %s\n", seed)

	out, err := game.Settle(ctx, client.SoloResult{
		WPM:    cmd.Uint64("wpm"),
		Misses: cmd.Uint64("misses"),
		Typos:  cmd.Uint64("typos"),
	})
	if err != nil {
		return explain(err)
	}
	fmt.Printf("settled session #%d: expected %s, paid %s (tx %s)\n",
		out.SequenceNumber, out.Expected.Dec(), out.Payout, out.Receipt.TxHash.Hex())
	return nil
}

func runCreate(ctx context.Context, cmd *cli.Command, s *session) error {
	stake, err := parseStake(cmd.String("stake"))
	if err != nil {
		return err
	}
	c := s.coordinator()
	id, err := c.Create(ctx, stake)
	if err != nil {
		return explain(err)
	}
	fmt.Printf("duel %d created, waiting for an opponent\n", id)

	opponent, err := c.AwaitOpponent(ctx)
	if err != nil {
		return explain(err)
	}
	fmt.Printf("%s joined\n", opponent.Hex())
	return playDuel(ctx, cmd, c)
}

func runJoin(ctx context.Context, cmd *cli.Command, s *session) error {
	c := s.coordinator()
	if err := c.Join(ctx, cmd.Uint64("duel")); err != nil {
		return explain(err)
	}
	return playDuel(ctx, cmd, c)
}

func runResume(ctx context.Context, cmd *cli.Command, s *session) error {
	c := s.coordinator()
	state, err := c.Resume(ctx)
	if err != nil {
		return explain(err)
	}
	if state == client.StateIdle {
		fmt.Println("nothing to resume")
		return nil
	}
	fmt.Printf("resumed duel %d in state %s\n", c.DuelID(), state)

	if state == client.StateCreated {
		if _, err := c.AwaitOpponent(ctx); err != nil {
			return explain(err)
		}
	}
	return playDuel(ctx, cmd, c)
}

// playDuel runs the coordinator from wherever it is to Settled.
func playDuel(ctx context.Context, cmd *cli.Command, c *client.DuelCoordinator) error {
	if c.State() == client.StateJoined {
		seed, err := c.AwaitSeed(ctx)
		if err != nil {
			return explain(err)
		}
		fmt.Printf("seed: %s\n", seed)
	}
	if c.State() == client.StateSeedFulfilled {
		err := c.SubmitResult(ctx, cmd.Uint64("score"), cmd.Uint64("wpm"), cmd.Uint64("misses"), cmd.Uint64("typos"))
		if err != nil {
			return explain(err)
		}
	}
	if c.State() == client.StateResultSubmitted {
		fmt.Println("waiting for the opponent's result")
		if _, err := c.AwaitResults(ctx); err != nil {
			return explain(err)
		}
	}

	out, err := c.Settle(ctx)
	if err != nil {
		return explain(err)
	}
	if out.Receipt == nil {
		fmt.Printf("duel %d was already settled by the opponent\n", out.DuelID)
		return nil
	}
	fmt.Printf("duel %d settled: winner %s, %d vs %d, paid %s (tx %s)\n",
		out.DuelID, out.Params.Winner, out.Params.Player1Score, out.Params.Player2Score, out.Payout, out.Receipt.TxHash.Hex())
	return nil
}

func runCancel(ctx context.Context, cmd *cli.Command, s *session) error {
	var (
		out *client.Cancellation
		err error
	)
	if id := cmd.Uint64("duel"); id != 0 {
		out, err = s.recovery.CancelDuel(ctx, id)
	} else {
		out, err = s.recovery.Cancel(ctx)
	}
	if err != nil {
		return explain(err)
	}
	fmt.Printf("cancelled: refund %s (fee %d bps, tx %s)\n", out.Refund.Dec(), out.FeeBps, out.Receipt.TxHash.Hex())
	return nil
}

func printStatus(ctx context.Context, s *session) error {
	solo, active, err := s.recovery.CheckActiveSession(ctx)
	if err != nil {
		return err
	}
	if active {
		fmt.Printf("solo session #%d: stake %s, seed delivered: %t\n", solo.SequenceNumber, solo.Stake, solo.Fulfilled)
	} else {
		fmt.Println("no active solo session")
	}

	duel, local, err := s.recovery.RecoverDuel(ctx)
	if err != nil {
		return err
	}
	if duel == nil {
		fmt.Println("no duel in progress")
		return nil
	}
	fmt.Printf("duel %d: creator %t, player1 %s, player2 %s, seed delivered: %t\n",
		local.DuelID, local.IsCreator, duel.Player1.Hex(), duel.Player2.Hex(), duel.Fulfilled)
	return nil
}

// explain adds what the player can do next to a failed step.
func explain(err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return errors.New("interrupted; run `duelclient resume` to continue")
	case domain.IsRetryable(err):
		return fmt.Errorf("%w\nthe stake is still escrowed; retry, resume or cancel", err)
	default:
		return err
	}
}
