package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"typestake/internal/domain"
	"typestake/internal/logger"
	"typestake/internal/signer"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

// ChallengeTTL bounds how long a login nonce can be answered.
const ChallengeTTL = 5 * time.Minute

var ErrNoChallenge = errors.New("no pending challenge for address")

// NonceStore holds one outstanding login nonce per address. Take must remove
// the nonce so each one can be answered once.
type NonceStore interface {
	Put(ctx context.Context, address, nonce string, ttl time.Duration) error
	Take(ctx context.Context, address string) (string, error)
}

// RedisNonceStore keeps nonces in Redis so several server instances share them.
type RedisNonceStore struct {
	client *redis.Client
}

func NewRedisNonceStore(client *redis.Client) *RedisNonceStore {
	return &RedisNonceStore{client: client}
}

func nonceKey(address string) string { return "auth:nonce:" + address }

func (s *RedisNonceStore) Put(ctx context.Context, address, nonce string, ttl time.Duration) error {
	return s.client.Set(ctx, nonceKey(address), nonce, ttl).Err()
}

func (s *RedisNonceStore) Take(ctx context.Context, address string) (string, error) {
	v, err := s.client.GetDel(ctx, nonceKey(address)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNoChallenge
	}
	return v, err
}

// MemoryNonceStore is the single-instance fallback when Redis is not configured.
type MemoryNonceStore struct {
	mu     sync.Mutex
	nonces map[string]memoryNonce
}

type memoryNonce struct {
	value   string
	expires time.Time
}

func NewMemoryNonceStore() *MemoryNonceStore {
	return &MemoryNonceStore{nonces: make(map[string]memoryNonce)}
}

func (s *MemoryNonceStore) Put(_ context.Context, address, nonce string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nonces[address] = memoryNonce{value: nonce, expires: time.Now().Add(ttl)}
	return nil
}

func (s *MemoryNonceStore) Take(_ context.Context, address string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nonces[address]
	delete(s.nonces, address)
	if !ok || time.Now().After(n.expires) {
		return "", ErrNoChallenge
	}
	return n.value, nil
}

// WalletAuthService logs wallets in by having them sign a one-time message.
type WalletAuthService struct {
	nonces NonceStore
	audit  *AuditService
}

func NewWalletAuthService(nonces NonceStore, audit *AuditService) *WalletAuthService {
	return &WalletAuthService{nonces: nonces, audit: audit}
}

// LoginMessage is the text the wallet signs with personal_sign.
func LoginMessage(address, nonce string) string {
	return fmt.Sprintf("Sign in to typestake\naddress: %s\nnonce: %s", address, nonce)
}

// Challenge issues a fresh nonce and returns the message to sign.
func (s *WalletAuthService) Challenge(ctx context.Context, address string) (string, error) {
	if !common.IsHexAddress(address) {
		return "", domain.NewValidationError("address", "not a hex address")
	}
	addr := domain.NormalizeAddress(address)
	nonce := uuid.NewString()
	if err := s.nonces.Put(ctx, addr, nonce, ChallengeTTL); err != nil {
		return "", err
	}
	return LoginMessage(addr, nonce), nil
}

// Verify checks the signed challenge and returns a session token.
func (s *WalletAuthService) Verify(ctx context.Context, address, signature, ip string) (string, error) {
	if !common.IsHexAddress(address) {
		return "", domain.NewValidationError("address", "not a hex address")
	}
	sig, err := hexutil.Decode(signature)
	if err != nil {
		return "", domain.NewValidationError("signature", "not hex")
	}
	addr := domain.NormalizeAddress(address)

	nonce, err := s.nonces.Take(ctx, addr)
	if err != nil {
		if errors.Is(err, ErrNoChallenge) {
			return "", domain.NewValidationError("address", "no pending challenge")
		}
		return "", err
	}

	signerAddr, err := signer.RecoverText([]byte(LoginMessage(addr, nonce)), sig)
	if err != nil {
		return "", err
	}
	if domain.NormalizeAddress(signerAddr.Hex()) != addr {
		logger.WithContext(ctx).Warn("wallet login signature mismatch", "address", addr, "recovered", signerAddr.Hex())
		return "", domain.NewValidationError("signature", "does not match address")
	}

	token, err := GenerateJWT(addr)
	if err != nil {
		return "", err
	}
	if s.audit != nil {
		s.audit.LogWithRequest(ctx, addr, domain.AuditActionWalletLogin, domain.AuditCategoryAuth, ip, "", nil)
	}
	return token, nil
}
