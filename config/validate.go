package config

import (
	"fmt"
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"

	"crosslend/native/common"
	"crosslend/storage"
)

// MaxPeriodSeconds bounds every configured window.
var MaxPeriodSeconds = uint64(1) << 40

// Validate checks the normalized configuration.
func (cfg *Config) Validate() error {
	switch cfg.Node.Backend {
	case storage.BackendLevelDB, storage.BackendBolt, storage.BackendMemory:
	default:
		return fmt.Errorf("node: unsupported backend %q", cfg.Node.Backend)
	}
	if _, err := common.ParseScheme(cfg.Loans.CommitmentScheme); err != nil {
		return fmt.Errorf("loans: %w", err)
	}
	for name, period := range map[string]uint64{
		"loans: LoanExpirationPeriod":      cfg.Loans.LoanExpirationPeriod,
		"loans: AcceptExpirationPeriod":    cfg.Loans.AcceptExpirationPeriod,
		"collateral: LoanExpirationPeriod": cfg.Collateral.LoanExpirationPeriod,
	} {
		if period > MaxPeriodSeconds {
			return fmt.Errorf("%s too large", name)
		}
	}
	if cfg.Collateral.LoanExpirationPeriod <= cfg.AcceptWindow() {
		return fmt.Errorf("collateral: LoanExpirationPeriod %d must exceed the loan and accept windows (%d)",
			cfg.Collateral.LoanExpirationPeriod, cfg.AcceptWindow())
	}
	if _, err := cfg.CollateralRatio(); err != nil {
		return err
	}
	if cfg.Collateral.InitialPrice < 0 {
		return fmt.Errorf("collateral: InitialPrice must not be negative")
	}
	for field, value := range map[string]string{
		"loans: Owner":              cfg.Loans.Owner,
		"loans: EscrowAccount":      cfg.Loans.EscrowAccount,
		"collateral: Owner":         cfg.Collateral.Owner,
		"collateral: EscrowAccount": cfg.Collateral.EscrowAccount,
		"collateral: PriceFeed":     cfg.Collateral.PriceFeed,
	} {
		if _, err := parseAddress(field, value); err != nil {
			return err
		}
	}
	switch cfg.Indexer.Driver {
	case "sqlite", "postgres":
	case "none":
	default:
		return fmt.Errorf("indexer: unsupported driver %q", cfg.Indexer.Driver)
	}
	if cfg.Indexer.Driver == "postgres" && cfg.Indexer.DSN == "" {
		return fmt.Errorf("indexer: postgres requires a DSN")
	}
	if cfg.RateLimit.RequestsPerSecond < 0 {
		return fmt.Errorf("ratelimit: RequestsPerSecond must not be negative")
	}
	return nil
}

// CollateralRatio returns the configured ratio, or nil to keep the default.
func (cfg *Config) CollateralRatio() (*big.Int, error) {
	if cfg.Collateral.CollateralizationRatio == "" {
		return nil, nil
	}
	ratio, ok := new(big.Int).SetString(cfg.Collateral.CollateralizationRatio, 10)
	if !ok || ratio.Sign() <= 0 {
		return nil, fmt.Errorf("collateral: invalid CollateralizationRatio %q", cfg.Collateral.CollateralizationRatio)
	}
	return ratio, nil
}

// Accounts resolves the configured administrative and escrow accounts.
type Accounts struct {
	LoansOwner       ethcommon.Address
	LoansEscrow      ethcommon.Address
	CollateralOwner  ethcommon.Address
	CollateralEscrow ethcommon.Address
	PriceFeed        ethcommon.Address
}

// Accounts decodes every configured address. Validate has already checked
// them, so errors only surface when called on an unvalidated Config.
func (cfg *Config) Accounts() (Accounts, error) {
	var (
		out Accounts
		err error
	)
	if out.LoansOwner, err = parseAddress("loans: Owner", cfg.Loans.Owner); err != nil {
		return Accounts{}, err
	}
	if out.LoansEscrow, err = parseAddress("loans: EscrowAccount", cfg.Loans.EscrowAccount); err != nil {
		return Accounts{}, err
	}
	if out.CollateralOwner, err = parseAddress("collateral: Owner", cfg.Collateral.Owner); err != nil {
		return Accounts{}, err
	}
	if out.CollateralEscrow, err = parseAddress("collateral: EscrowAccount", cfg.Collateral.EscrowAccount); err != nil {
		return Accounts{}, err
	}
	if out.PriceFeed, err = parseAddress("collateral: PriceFeed", cfg.Collateral.PriceFeed); err != nil {
		return Accounts{}, err
	}
	return out, nil
}
