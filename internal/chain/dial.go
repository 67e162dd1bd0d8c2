package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"typestake/internal/domain"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Dial connects to an Ethereum JSON-RPC endpoint and checks it answers.
func Dial(ctx context.Context, rpcURL string) (*ethclient.Client, *big.Int, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, nil, &domain.ConfigurationError{Setting: "RPC_URL", Err: err}
	}
	chainID, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("chain id: %w", err)
	}
	return client, chainID, nil
}

// ParsePrivateKey accepts a 32-byte hex key with or without the 0x prefix.
func ParsePrivateKey(hexKey string) (*ecdsa.PrivateKey, error) {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	if len(hexKey) != 64 {
		return nil, fmt.Errorf("expected 64 hex characters, got %d", len(hexKey))
	}
	return crypto.HexToECDSA(hexKey)
}

// NewTransactOpts builds a signer for the given chain from a hex private key.
func NewTransactOpts(hexKey string, chainID *big.Int) (*bind.TransactOpts, error) {
	key, err := ParsePrivateKey(hexKey)
	if err != nil {
		return nil, &domain.ConfigurationError{Setting: "wallet private key", Err: err}
	}
	opts, err := bind.NewKeyedTransactorWithChainID(key, chainID)
	if err != nil {
		return nil, &domain.ConfigurationError{Setting: "wallet private key", Err: err}
	}
	return opts, nil
}
