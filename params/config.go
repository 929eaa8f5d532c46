package params

import (
	"os"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"

	"github.com/uhyunpark/spotdex/pkg/exchange"
)

type Node struct {
	// APIAddr is the REST/WebSocket listen address.
	APIAddr string
	// DataDir is the Pebble database path; empty runs the node in-memory only.
	DataDir string
	// LogFile mirrors structured logs to disk when set.
	LogFile string
	// CycleInterval paces the matching cycles.
	//
	// Recommended values:
	//   - Devnet:      200ms (5 cycles/sec, readable logs)
	//   - Testnet:     100ms
	//   - Production:  match the settlement layer's block time
	CycleInterval time.Duration
}

type Exchange struct {
	// Operation escrows resting order funds; Vault accrues fees.
	Operation common.Address
	Vault     common.Address
	// Admin may manage assets, pairs, and exchange configuration.
	Admin common.Address
	// MinVolume and MinRatio gate order admission, fixed-point 10^12.
	MinVolume uint64
	MinRatio  uint64
}

type Config struct {
	Node     Node
	Exchange Exchange
}

func Default() Config {
	return Config{
		Node: Node{
			APIAddr:       ":8080",
			DataDir:       "data",
			CycleInterval: 200 * time.Millisecond,
		},
		Exchange: Exchange{
			Operation: common.HexToAddress("0x00000000000000000000000000000000000000E0"),
			Vault:     common.HexToAddress("0x00000000000000000000000000000000000000E1"),
			Admin:     common.HexToAddress("0x00000000000000000000000000000000000000AD"),
			MinVolume: exchange.Scale / 1000, // 0.001 units
			MinRatio:  1,
		},
	}
}

// Accounts returns the custodial accounts in engine form.
func (e Exchange) Accounts() exchange.Accounts {
	return exchange.Accounts{Operation: e.Operation, Vault: e.Vault}
}

// Thresholds returns the admission thresholds in engine form.
func (e Exchange) Thresholds() exchange.Thresholds {
	return exchange.Thresholds{MinVolume: e.MinVolume, MinRatio: e.MinRatio}
}

// LoadFromEnv loads configuration from a .env file (if present) and
// environment variables. Priority: ENV > .env file > defaults.
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	// .env is optional.
	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	if v := os.Getenv("API_ADDR"); v != "" {
		cfg.Node.APIAddr = v
	}
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Node.DataDir = v
	}
	if v := os.Getenv("LOG_FILE"); v != "" {
		cfg.Node.LogFile = v
	}
	if v := os.Getenv("CYCLE_INTERVAL_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			cfg.Node.CycleInterval = time.Duration(ms) * time.Millisecond
		}
	}

	if v := os.Getenv("EXCHANGE_OPERATION_ADDR"); common.IsHexAddress(v) {
		cfg.Exchange.Operation = common.HexToAddress(v)
	}
	if v := os.Getenv("EXCHANGE_VAULT_ADDR"); common.IsHexAddress(v) {
		cfg.Exchange.Vault = common.HexToAddress(v)
	}
	if v := os.Getenv("EXCHANGE_ADMIN_ADDR"); common.IsHexAddress(v) {
		cfg.Exchange.Admin = common.HexToAddress(v)
	}
	if v := os.Getenv("EXCHANGE_MIN_VOLUME"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.Exchange.MinVolume = n
		}
	}
	if v := os.Getenv("EXCHANGE_MIN_RATIO"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.Exchange.MinRatio = n
		}
	}

	return cfg
}
