package main

import (
	"context"
	"fmt"
	"log"
	"math/big"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"typestake/internal/chain"
	"typestake/internal/client"
	"typestake/internal/logger"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/urfave/cli/v3"
)

// session is everything one command needs to talk to the chain and server.
type session struct {
	contract *chain.Contract
	rpc      *ethclient.Client
	api      *client.API
	store    *client.BoltStore
	recovery *client.Recovery
	watcher  *chain.Watcher
}

func open(ctx context.Context, cmd *cli.Command) (*session, error) {
	logger.Init(cmd.String("log-level"), cmd.Bool("log-json"))

	addr := cmd.String("contract")
	if !common.IsHexAddress(addr) {
		return nil, fmt.Errorf("--contract: not a hex address: %q", addr)
	}
	rpc, chainID, err := chain.Dial(ctx, cmd.String("rpc"))
	if err != nil {
		return nil, err
	}
	opts, err := chain.NewTransactOpts(cmd.String("key"), chainID)
	if err != nil {
		rpc.Close()
		return nil, fmt.Errorf("--key: %w", err)
	}
	contract := chain.NewContract(common.HexToAddress(addr), rpc, opts)

	store, err := client.OpenBoltStore(cmd.String("data-dir"))
	if err != nil {
		rpc.Close()
		return nil, err
	}

	s := &session{
		contract: contract,
		rpc:      rpc,
		api:      client.NewAPI(cmd.String("server")),
		store:    store,
		recovery: client.NewRecovery(store, contract, contract),
	}
	if cmd.Bool("login") {
		key, _ := chain.ParsePrivateKey(cmd.String("key"))
		if _, err := s.api.Login(ctx, key); err != nil {
			s.Close()
			return nil, fmt.Errorf("wallet login: %w", err)
		}
	}
	if cmd.Bool("watch") {
		s.watcher = chain.NewWatcher(rpc, contract.Address(), chain.DefaultWatchInterval)
		go s.watcher.Run(ctx)
	}
	logger.Info("client ready", "player", contract.From().Hex(), "contract", addr, "chain_id", chainID.String())
	return s, nil
}

func (s *session) Close() {
	if err := s.store.Close(); err != nil {
		logger.Warn("failed to close session store", "error", err)
	}
	s.rpc.Close()
}

func (s *session) coordinator() *client.DuelCoordinator {
	c := client.NewDuelCoordinator(client.DuelDeps{
		Tx:       s.contract,
		Reader:   s.contract,
		Watcher:  s.watcher,
		API:      s.api,
		Recovery: s.recovery,
	})
	go func() {
		for ev := range c.Updates() {
			if ev.Err != nil {
				logger.Warn("duel state", "state", ev.State, "duel_id", ev.DuelID, "error", ev.Err)
				continue
			}
			logger.Info("duel state", "state", ev.State, "duel_id", ev.DuelID)
		}
	}()
	return c
}

func parseStake(v string) (*big.Int, error) {
	stake, ok := new(big.Int).SetString(v, 10)
	if !ok || stake.Sign() <= 0 {
		return nil, fmt.Errorf("--stake must be a positive integer in base units, got %q", v)
	}
	return stake, nil
}

func withSession(action func(context.Context, *cli.Command, *session) error) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		s, err := open(ctx, cmd)
		if err != nil {
			return err
		}
		defer s.Close()
		return action(ctx, cmd, s)
	}
}

func resultFlags() []cli.Flag {
	return []cli.Flag{
		&cli.Uint64Flag{Name: "score", Usage: "duel score"},
		&cli.Uint64Flag{Name: "wpm", Usage: "words per minute"},
		&cli.Uint64Flag{Name: "misses", Usage: "missed words"},
		&cli.Uint64Flag{Name: "typos", Usage: "typos"},
	}
}

func main() {
	home, _ := os.UserHomeDir()

	//nolint:exhaustruct
	cmd := &cli.Command{
		Name:  "duelclient",
		Usage: "play staked typing sessions and duels",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server",
				Value:   "http://127.0.0.1:8080",
				Sources: cli.EnvVars("TYPESTAKE_SERVER"),
			},
			&cli.StringFlag{
				Name:    "rpc",
				Value:   "http://127.0.0.1:8545",
				Sources: cli.EnvVars("RPC_URL"),
			},
			&cli.StringFlag{
				Name:     "contract",
				Required: true,
				Sources:  cli.EnvVars("CONTRACT_ADDRESS"),
			},
			&cli.StringFlag{
				Name:     "key",
				Usage:    "player private key, hex",
				Required: true,
				Sources:  cli.EnvVars("PLAYER_PRIVATE_KEY"),
			},
			&cli.StringFlag{
				Name:    "data-dir",
				Value:   filepath.Join(home, ".typestake"),
				Sources: cli.EnvVars("TYPESTAKE_DATA_DIR"),
			},
			&cli.BoolFlag{
				Name:    "login",
				Usage:   "sign in with the wallet before talking to the server",
				Sources: cli.EnvVars("TYPESTAKE_LOGIN"),
			},
			&cli.BoolFlag{
				Name:    "watch",
				Usage:   "follow contract events instead of polling while waiting for an opponent",
				Value:   true,
				Sources: cli.EnvVars("TYPESTAKE_WATCH"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
			&cli.BoolFlag{
				Name:    "log-json",
				Sources: cli.EnvVars("LOG_JSON"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "solo",
				Usage: "stake, wait for the seed and settle a solo round",
				Flags: append([]cli.Flag{
					&cli.StringFlag{Name: "stake", Usage: "stake in base units"},
				}, resultFlags()...),
				Action: withSession(runSolo),
			},
			{
				Name:  "create",
				Usage: "open a duel and play it through",
				Flags: append([]cli.Flag{
					&cli.StringFlag{Name: "stake", Usage: "stake in base units", Required: true},
				}, resultFlags()...),
				Action: withSession(runCreate),
			},
			{
				Name:  "join",
				Usage: "join an open duel and play it through",
				Flags: append([]cli.Flag{
					&cli.Uint64Flag{Name: "duel", Required: true},
				}, resultFlags()...),
				Action: withSession(runJoin),
			},
			{
				Name:   "resume",
				Usage:  "pick up an interrupted duel after a restart",
				Flags:  resultFlags(),
				Action: withSession(runResume),
			},
			{
				Name:  "status",
				Usage: "show the active session and duel",
				Action: withSession(func(ctx context.Context, _ *cli.Command, s *session) error {
					return printStatus(ctx, s)
				}),
			},
			{
				Name:  "cancel",
				Usage: "abandon the active session, or a duel with --duel, for stake minus the fee",
				Flags: []cli.Flag{
					&cli.Uint64Flag{Name: "duel"},
				},
				Action: withSession(runCancel),
			},
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cmd.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}
