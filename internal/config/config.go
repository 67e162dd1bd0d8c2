package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"typestake/internal/chain"
	"typestake/internal/domain"
	"typestake/internal/logger"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
)

const (
	ResultStorePostgres = "postgres"
	ResultStoreMemory   = "memory"
)

type Config struct {
	AppPort     string
	AppVersion  string
	DatabaseURL string
	ResultStore string
	// AutoMigrate applies pending migrations at startup.
	AutoMigrate bool

	VerifierPrivateKey string
	RPCURL             string
	ContractAddress    common.Address

	JWTSecret         string
	RequireWalletAuth bool

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Rate limits
	APIRateLimit    int
	APIRateWindow   int
	SettleRateLimit int
	AllowedOrigin   string

	LogLevel string
	LogJSON  bool
}

// HasContract reports whether on-chain checks are enabled.
func (c *Config) HasContract() bool {
	return c.ContractAddress != (common.Address{})
}

// Parse reads the configuration through getenv. Every problem an operator has
// to fix comes back as *domain.ConfigurationError.
func Parse(getenv func(string) string) (*Config, error) {
	cfg := &Config{
		AppPort:         orDefault(getenv("APP_PORT"), "8080"),
		AppVersion:      orDefault(getenv("APP_VERSION"), "dev"),
		ResultStore:     strings.ToLower(orDefault(getenv("RESULT_STORE"), ResultStorePostgres)),
		JWTSecret:       getenv("JWT_SECRET"),
		RedisAddr:       getenv("REDIS_ADDR"),
		RedisPassword:   getenv("REDIS_PASSWORD"),
		AllowedOrigin:   getenv("ALLOWED_ORIGIN"),
		LogLevel:        orDefault(getenv("LOG_LEVEL"), "info"),
		LogJSON:         getenv("LOG_JSON") == "true",
		AutoMigrate:     getenv("AUTO_MIGRATE") == "true",
		APIRateLimit:    positiveInt(getenv("API_RATE_LIMIT"), 120),
		APIRateWindow:   positiveInt(getenv("API_RATE_WINDOW_SECONDS"), 60),
		SettleRateLimit: positiveInt(getenv("SETTLE_RATE_LIMIT"), 20),
	}

	key := strings.TrimSpace(getenv("VERIFIER_PRIVATE_KEY"))
	if key == "" {
		return nil, &domain.ConfigurationError{Setting: "VERIFIER_PRIVATE_KEY", Err: errors.New("not set")}
	}
	if _, err := chain.ParsePrivateKey(key); err != nil {
		return nil, &domain.ConfigurationError{Setting: "VERIFIER_PRIVATE_KEY", Err: err}
	}
	cfg.VerifierPrivateKey = key

	rpc := strings.TrimSpace(getenv("RPC_URL"))
	if rpc == "" {
		return nil, &domain.ConfigurationError{Setting: "RPC_URL", Err: errors.New("not set")}
	}
	u, err := url.Parse(rpc)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, &domain.ConfigurationError{Setting: "RPC_URL", Err: fmt.Errorf("not a valid URL: %q", rpc)}
	}
	cfg.RPCURL = rpc

	if addr := strings.TrimSpace(getenv("CONTRACT_ADDRESS")); addr != "" {
		if !common.IsHexAddress(addr) {
			return nil, &domain.ConfigurationError{Setting: "CONTRACT_ADDRESS", Err: fmt.Errorf("not a hex address: %q", addr)}
		}
		cfg.ContractAddress = common.HexToAddress(addr)
	}

	switch cfg.ResultStore {
	case ResultStoreMemory:
		cfg.DatabaseURL = getenv("DATABASE_URL")
	case ResultStorePostgres:
		cfg.DatabaseURL = getenv("DATABASE_URL")
		if cfg.DatabaseURL == "" {
			return nil, &domain.ConfigurationError{Setting: "DATABASE_URL", Err: errors.New("not set")}
		}
	default:
		return nil, &domain.ConfigurationError{Setting: "RESULT_STORE", Err: fmt.Errorf("unknown store %q", cfg.ResultStore)}
	}

	if v := getenv("REDIS_DB"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return nil, &domain.ConfigurationError{Setting: "REDIS_DB", Err: fmt.Errorf("not a database index: %q", v)}
		}
		cfg.RedisDB = n
	}

	if o := cfg.AllowedOrigin; o != "" && !strings.HasPrefix(o, "http://") && !strings.HasPrefix(o, "https://") {
		return nil, &domain.ConfigurationError{Setting: "ALLOWED_ORIGIN", Err: fmt.Errorf("want an http(s) origin, got %q", o)}
	}

	cfg.RequireWalletAuth = getenv("REQUIRE_WALLET_AUTH") == "true"
	if cfg.RequireWalletAuth && cfg.JWTSecret == "" {
		return nil, &domain.ConfigurationError{Setting: "JWT_SECRET", Err: errors.New("required when REQUIRE_WALLET_AUTH=true")}
	}

	return cfg, nil
}

// Load reads .env (if present) and the environment, and exits on any
// configuration error so the server never accepts requests half-configured.
func Load() *Config {
	_ = godotenv.Load()

	cfg, err := Parse(os.Getenv)
	if err != nil {
		logger.Fatal("invalid configuration", "error", err)
	}
	return cfg
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func positiveInt(v string, def int) int {
	if v == "" {
		return def
	}
	if n, err := strconv.Atoi(v); err == nil && n > 0 {
		return n
	}
	return def
}
