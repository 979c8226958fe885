package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"

	"crosslend/native/loans"
)

// Config is the daemon configuration decoded from TOML.
type Config struct {
	Node       NodeConfig       `toml:"node"`
	Loans      LoansConfig      `toml:"loans"`
	Collateral CollateralConfig `toml:"collateral"`
	Indexer    IndexerConfig    `toml:"indexer"`
	Telemetry  TelemetryConfig  `toml:"telemetry"`
	Logging    LoggingConfig    `toml:"logging"`
	RateLimit  RateLimitConfig  `toml:"ratelimit"`
}

type NodeConfig struct {
	Environment   string `toml:"Environment"`
	DataDir       string `toml:"DataDir"`
	Backend       string `toml:"Backend"`
	ListenAddress string `toml:"ListenAddress"`
}

// LoansConfig seeds the loan ledger. Periods left at zero keep the built-in
// defaults.
type LoansConfig struct {
	Owner                  string `toml:"Owner"`
	EscrowAccount          string `toml:"EscrowAccount"`
	LoanExpirationPeriod   uint64 `toml:"LoanExpirationPeriod"`
	AcceptExpirationPeriod uint64 `toml:"AcceptExpirationPeriod"`
	CommitmentScheme       string `toml:"CommitmentScheme"`
	AssetsFile             string `toml:"AssetsFile"`
}

// CollateralConfig seeds the collateral escrow. CollateralizationRatio is a
// WAD-scaled integer, e.g. "150000000000000000000" for 150%.
type CollateralConfig struct {
	Owner                  string `toml:"Owner"`
	EscrowAccount          string `toml:"EscrowAccount"`
	LoanExpirationPeriod   uint64 `toml:"LoanExpirationPeriod"`
	CollateralizationRatio string `toml:"CollateralizationRatio"`
	PriceFeed              string `toml:"PriceFeed"`
	InitialPrice           int64  `toml:"InitialPrice"`
}

type IndexerConfig struct {
	Driver string `toml:"Driver"`
	DSN    string `toml:"DSN"`
}

type TelemetryConfig struct {
	Endpoint string `toml:"Endpoint"`
	Insecure bool   `toml:"Insecure"`
	Headers  string `toml:"Headers"`
	Metrics  bool   `toml:"Metrics"`
	Traces   bool   `toml:"Traces"`
}

type LoggingConfig struct {
	Level      string `toml:"Level"`
	File       string `toml:"File"`
	MaxSizeMB  int    `toml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups"`
	MaxAgeDays int    `toml:"MaxAgeDays"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `toml:"RequestsPerSecond"`
	Burst             int     `toml:"Burst"`
}

const (
	defaultListenAddress = ":8545"
	defaultDataDir       = "./crosslend-data"
	defaultBackend       = "leveldb"

	// defaultApprovalGrace is how long a lender may take to approve after the
	// borrower locks collateral.
	defaultApprovalGrace uint64 = 86400
)

// Load loads the configuration from the given path, creating a default file
// when none exists. A .env file next to the config, when present, populates
// the CROSSLEND_* environment overrides.
func Load(path string) (*Config, error) {
	envFile := filepath.Join(filepath.Dir(path), ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", envFile, err)
	}

	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg, err = createDefault(path)
		if err != nil {
			return nil, err
		}
	} else {
		meta, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("config file %s has unknown key %s", path, undecoded[0])
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (cfg *Config) applyEnv() error {
	overrides := map[string]*string{
		"CROSSLEND_ENV":            &cfg.Node.Environment,
		"CROSSLEND_DATA_DIR":       &cfg.Node.DataDir,
		"CROSSLEND_BACKEND":        &cfg.Node.Backend,
		"CROSSLEND_LISTEN":         &cfg.Node.ListenAddress,
		"CROSSLEND_INDEXER_DRIVER": &cfg.Indexer.Driver,
		"CROSSLEND_INDEXER_DSN":    &cfg.Indexer.DSN,
		"CROSSLEND_LOG_LEVEL":      &cfg.Logging.Level,
		"CROSSLEND_OTLP_ENDPOINT":  &cfg.Telemetry.Endpoint,
		"CROSSLEND_OTLP_HEADERS":   &cfg.Telemetry.Headers,
	}
	for key, target := range overrides {
		if value, ok := os.LookupEnv(key); ok {
			*target = value
		}
	}
	if value, ok := os.LookupEnv("CROSSLEND_RATE_LIMIT"); ok {
		rps, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return fmt.Errorf("CROSSLEND_RATE_LIMIT: %w", err)
		}
		cfg.RateLimit.RequestsPerSecond = rps
	}
	return nil
}

func (cfg *Config) normalize() {
	cfg.Node.Environment = strings.TrimSpace(cfg.Node.Environment)
	cfg.Node.DataDir = strings.TrimSpace(cfg.Node.DataDir)
	if cfg.Node.DataDir == "" {
		cfg.Node.DataDir = defaultDataDir
	}
	cfg.Node.Backend = strings.ToLower(strings.TrimSpace(cfg.Node.Backend))
	if cfg.Node.Backend == "" {
		cfg.Node.Backend = defaultBackend
	}
	cfg.Node.ListenAddress = strings.TrimSpace(cfg.Node.ListenAddress)
	if cfg.Node.ListenAddress == "" {
		cfg.Node.ListenAddress = defaultListenAddress
	}
	if cfg.Collateral.LoanExpirationPeriod == 0 {
		cfg.Collateral.LoanExpirationPeriod = cfg.AcceptWindow() + defaultApprovalGrace
	}
	cfg.Loans.CommitmentScheme = strings.ToLower(strings.TrimSpace(cfg.Loans.CommitmentScheme))
	cfg.Indexer.Driver = strings.ToLower(strings.TrimSpace(cfg.Indexer.Driver))
	if cfg.Indexer.Driver == "" {
		cfg.Indexer.Driver = "sqlite"
	}
	if cfg.Indexer.DSN == "" && cfg.Indexer.Driver == "sqlite" {
		cfg.Indexer.DSN = filepath.Join(cfg.Node.DataDir, "events.db")
	}
	if cfg.RateLimit.RequestsPerSecond > 0 && cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = int(cfg.RateLimit.RequestsPerSecond) + 1
	}
}

// AcceptWindow is the time from approval until the loan's accept window
// closes, with zero periods resolved to the ledger defaults.
func (cfg *Config) AcceptWindow() uint64 {
	loan := cfg.Loans.LoanExpirationPeriod
	if loan == 0 {
		loan = loans.DefaultLoanExpirationPeriod
	}
	accept := cfg.Loans.AcceptExpirationPeriod
	if accept == 0 {
		accept = loans.DefaultAcceptExpirationPeriod
	}
	return loan + accept
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := &Config{
		Node: NodeConfig{
			Environment:   "local",
			DataDir:       defaultDataDir,
			Backend:       defaultBackend,
			ListenAddress: defaultListenAddress,
		},
		Loans: LoansConfig{
			CommitmentScheme: "sha256",
		},
		Indexer: IndexerConfig{Driver: "sqlite"},
		Logging: LoggingConfig{Level: "info"},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 20,
			Burst:             40,
		},
	}
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

// parseAddress decodes an optional hex address. Empty yields the zero address.
func parseAddress(field, value string) (ethcommon.Address, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return ethcommon.Address{}, nil
	}
	if !ethcommon.IsHexAddress(value) {
		return ethcommon.Address{}, fmt.Errorf("%s: invalid address %q", field, value)
	}
	return ethcommon.HexToAddress(value), nil
}
