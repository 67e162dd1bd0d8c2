package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"typestake/internal/domain"
	"typestake/internal/logger"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// StateReader reads contract records. The contract is the source of truth;
// callers only cache what they read.
type StateReader interface {
	Session(ctx context.Context, player common.Address) (*domain.GameSession, error)
	Duel(ctx context.Context, duelID uint64) (*domain.Duel, error)
	CancelFeeBps(ctx context.Context) (uint64, error)
}

// Transactor writes to the contract and waits for the receipt. A reverted
// transaction is reported as *domain.ChainTransactionError and never resent.
type Transactor interface {
	From() common.Address
	ApproveStake(ctx context.Context, amount *big.Int) (*Receipt, error)
	StartGame(ctx context.Context, stake *big.Int) (*Receipt, error)
	SettleGame(ctx context.Context, s domain.SoloSettlement, signature []byte) (*Receipt, error)
	CancelSession(ctx context.Context) (*Receipt, error)
	CreateDuel(ctx context.Context, stake *big.Int) (*Receipt, error)
	JoinDuel(ctx context.Context, duelID uint64) (*Receipt, error)
	SettleDuel(ctx context.Context, d domain.DuelSettlement, signature []byte) (*Receipt, error)
	CancelDuel(ctx context.Context, duelID uint64) (*Receipt, error)
}

// Backend is what Contract needs from an RPC client; *ethclient.Client
// satisfies it.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
	LogSource
}

// Contract is the ABI-bound settlement contract.
type Contract struct {
	address common.Address
	backend Backend
	bound   *bind.BoundContract
	opts    *bind.TransactOpts
}

// NewContract binds the settlement contract. opts may be nil for read-only use.
func NewContract(address common.Address, backend Backend, opts *bind.TransactOpts) *Contract {
	return &Contract{
		address: address,
		backend: backend,
		bound:   bind.NewBoundContract(address, settlementABI, backend, backend, backend),
		opts:    opts,
	}
}

// Address returns the contract address.
func (c *Contract) Address() common.Address { return c.address }

// From returns the account transactions are sent from.
func (c *Contract) From() common.Address {
	if c.opts == nil {
		return common.Address{}
	}
	return c.opts.From
}

func (c *Contract) call(ctx context.Context, method string, params ...interface{}) ([]interface{}, error) {
	var out []interface{}
	if err := c.bound.Call(&bind.CallOpts{Context: ctx}, &out, method, params...); err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	return out, nil
}

// Session returns the player's current solo session. A player without one
// gets a record with Active == false.
func (c *Contract) Session(ctx context.Context, player common.Address) (*domain.GameSession, error) {
	out, err := c.call(ctx, "getSession", player)
	if err != nil {
		return nil, err
	}
	if len(out) != 5 {
		return nil, fmt.Errorf("getSession: unexpected output length %d", len(out))
	}
	return &domain.GameSession{
		Player:         player,
		SequenceNumber: toUint64(out[0]),
		Stake:          toBig(out[1]),
		RandomSeed:     toBig(out[2]),
		Active:         out[3].(bool),
		Fulfilled:      out[4].(bool),
	}, nil
}

// Duel returns the duel record. Unknown ids come back inactive.
func (c *Contract) Duel(ctx context.Context, duelID uint64) (*domain.Duel, error) {
	out, err := c.call(ctx, "duels", new(big.Int).SetUint64(duelID))
	if err != nil {
		return nil, err
	}
	if len(out) != 6 {
		return nil, fmt.Errorf("duels: unexpected output length %d", len(out))
	}
	return &domain.Duel{
		ID:         duelID,
		Player1:    out[0].(common.Address),
		Player2:    out[1].(common.Address),
		Stake:      toBig(out[2]),
		RandomSeed: toBig(out[3]),
		Active:     out[4].(bool),
		Fulfilled:  out[5].(bool),
	}, nil
}

// CancelFeeBps returns the contract's cancellation fee in basis points.
func (c *Contract) CancelFeeBps(ctx context.Context) (uint64, error) {
	out, err := c.call(ctx, "cancelFeeBps")
	if err != nil {
		return 0, err
	}
	if len(out) != 1 {
		return 0, errors.New("cancelFeeBps: empty output")
	}
	return toUint64(out[0]), nil
}

func (c *Contract) transact(ctx context.Context, bound *bind.BoundContract, op, method string, params ...interface{}) (*Receipt, error) {
	if c.opts == nil {
		return nil, &domain.ConfigurationError{Setting: "transaction signer", Err: errors.New("contract bound read-only")}
	}
	opts := *c.opts
	opts.Context = ctx

	tx, err := bound.Transact(&opts, method, params...)
	if err != nil {
		return nil, &domain.ChainTransactionError{Operation: op, Err: err}
	}
	log := logger.WithContext(ctx).With("op", op, "tx", tx.Hash().Hex())
	log.Info("transaction sent")

	receipt, err := bind.WaitMined(ctx, c.backend, tx)
	if err != nil {
		return nil, &domain.ChainTransactionError{Operation: op, TxHash: tx.Hash().Hex(), Err: err}
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		log.Warn("transaction reverted", "block", receipt.BlockNumber)
		return nil, &domain.ChainTransactionError{Operation: op, TxHash: tx.Hash().Hex(), Reason: "transaction reverted"}
	}
	log.Info("transaction mined", "block", receipt.BlockNumber, "gas_used", receipt.GasUsed)
	return newReceipt(receipt, c.address), nil
}

// ApproveStake lets the contract pull amount of the stake token from the sender.
func (c *Contract) ApproveStake(ctx context.Context, amount *big.Int) (*Receipt, error) {
	out, err := c.call(ctx, "stakeToken")
	if err != nil {
		return nil, err
	}
	token, ok := out[0].(common.Address)
	if !ok {
		return nil, errors.New("stakeToken: unexpected output")
	}
	erc20 := bind.NewBoundContract(token, erc20ABI, c.backend, c.backend, c.backend)
	return c.transact(ctx, erc20, "approve stake", "approve", c.address, amount)
}

// StartGame stakes and opens a solo session. The GameStarted event carries the
// sequence number.
func (c *Contract) StartGame(ctx context.Context, stake *big.Int) (*Receipt, error) {
	return c.transact(ctx, c.bound, "start game", "startGame", stake)
}

// SettleGame submits a verifier-signed solo result.
func (c *Contract) SettleGame(ctx context.Context, s domain.SoloSettlement, signature []byte) (*Receipt, error) {
	return c.transact(ctx, c.bound, "settle game", "settleGame",
		s.SequenceNumber,
		new(big.Int).SetUint64(s.Misses),
		new(big.Int).SetUint64(s.Typos),
		new(big.Int).SetUint64(s.BonusAmount),
		signature,
	)
}

// CancelSession cancels the sender's active, unfulfilled session.
func (c *Contract) CancelSession(ctx context.Context) (*Receipt, error) {
	return c.transact(ctx, c.bound, "cancel session", "cancelSession")
}

// CreateDuel stakes and opens a duel. The DuelCreated event carries the id.
func (c *Contract) CreateDuel(ctx context.Context, stake *big.Int) (*Receipt, error) {
	return c.transact(ctx, c.bound, "create duel", "createDuel", stake)
}

// JoinDuel matches the duel's stake and requests the seed.
func (c *Contract) JoinDuel(ctx context.Context, duelID uint64) (*Receipt, error) {
	return c.transact(ctx, c.bound, "join duel", "joinDuel", new(big.Int).SetUint64(duelID))
}

// SettleDuel submits a verifier-signed duel outcome.
func (c *Contract) SettleDuel(ctx context.Context, d domain.DuelSettlement, signature []byte) (*Receipt, error) {
	return c.transact(ctx, c.bound, "settle duel", "settleDuel",
		new(big.Int).SetUint64(d.DuelID),
		common.HexToAddress(d.Winner),
		new(big.Int).SetUint64(d.Player1Score),
		new(big.Int).SetUint64(d.Player2Score),
		signature,
	)
}

// CancelDuel cancels an open duel that nobody joined.
func (c *Contract) CancelDuel(ctx context.Context, duelID uint64) (*Receipt, error) {
	return c.transact(ctx, c.bound, "cancel duel", "cancelDuel", new(big.Int).SetUint64(duelID))
}
