package host

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"

	"crosslend/config"
	"crosslend/native/collateral"
	"crosslend/native/common"
	"crosslend/native/loans"
	"crosslend/native/pricefeed"
)

var errMissingLoansOwner = errors.New("genesis: asset types require a loans owner")

// Genesis is the initial state seeded into an empty database. Zero values
// keep engine defaults.
type Genesis struct {
	LoansOwner      ethcommon.Address
	CollateralOwner ethcommon.Address

	LoanExpirationPeriod   uint64
	AcceptExpirationPeriod uint64

	CollateralExpirationPeriod uint64
	CollateralizationRatio     *big.Int
	PriceFeed                  ethcommon.Address
	// InitialPrice is the oracle answer, 8 decimals, deployed at PriceFeed.
	InitialPrice *big.Int

	Assets         []config.AssetTerms
	NativeBalances map[ethcommon.Address]*big.Int
}

// GenesisFromConfig assembles the genesis described by cfg and its asset
// file.
func GenesisFromConfig(cfg *config.Config, seeds []config.AssetTerms) (Genesis, error) {
	accounts, err := cfg.Accounts()
	if err != nil {
		return Genesis{}, err
	}
	ratio, err := cfg.CollateralRatio()
	if err != nil {
		return Genesis{}, err
	}
	g := Genesis{
		LoansOwner:                 accounts.LoansOwner,
		CollateralOwner:            accounts.CollateralOwner,
		LoanExpirationPeriod:       cfg.Loans.LoanExpirationPeriod,
		AcceptExpirationPeriod:     cfg.Loans.AcceptExpirationPeriod,
		CollateralExpirationPeriod: cfg.Collateral.LoanExpirationPeriod,
		CollateralizationRatio:     ratio,
		PriceFeed:                  accounts.PriceFeed,
		Assets:                     seeds,
	}
	if cfg.Collateral.InitialPrice > 0 {
		g.InitialPrice = big.NewInt(cfg.Collateral.InitialPrice)
	}
	return g, nil
}

// Bootstrap deploys the tokens, vaults and oracle named by g and, when the
// database has never been seeded, writes the genesis records. It reports
// whether genesis was written.
func (r *Runtime) Bootstrap(ctx context.Context, g Genesis) (bool, error) {
	for _, asset := range g.Assets {
		r.RegisterToken(asset.Token)
		if asset.MoneyMarket != (ethcommon.Address{}) {
			r.RegisterVault(asset.MoneyMarket, asset.Token)
		}
	}
	if g.PriceFeed != (ethcommon.Address{}) {
		if _, ok := r.Feed(g.PriceFeed); !ok {
			r.RegisterFeed(g.PriceFeed, pricefeed.NewAggregator(g.InitialPrice))
		}
	}

	seeded := false
	err := r.Execute(ctx, "bootstrap", func(tx *Tx) error {
		_, exists, err := tx.State.AuthorityGet(common.ModuleLoans)
		if err != nil || exists {
			return err
		}
		if len(g.Assets) > 0 && g.LoansOwner == (ethcommon.Address{}) {
			return errMissingLoansOwner
		}
		if err := tx.State.AuthorityPut(common.NewAuthority(common.ModuleLoans, g.LoansOwner)); err != nil {
			return err
		}
		if err := tx.State.AuthorityPut(common.NewAuthority(common.ModuleCollateral, g.CollateralOwner)); err != nil {
			return err
		}
		if err := tx.State.LoanParamsPut(g.loanParams()); err != nil {
			return err
		}
		if err := tx.State.CollateralParamsPut(g.collateralParams()); err != nil {
			return err
		}
		for _, asset := range g.Assets {
			if err := seedAsset(tx, g.LoansOwner, asset); err != nil {
				return fmt.Errorf("genesis asset %s: %w", asset.Symbol, err)
			}
		}
		for account, amount := range g.NativeBalances {
			if err := tx.Native.Mint(account, amount); err != nil {
				return fmt.Errorf("genesis native balance %s: %w", account.Hex(), err)
			}
		}
		seeded = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if seeded {
		r.logger.Info("genesis written",
			slog.Int("assets", len(g.Assets)),
			slog.String("loans_owner", g.LoansOwner.Hex()),
			slog.String("collateral_owner", g.CollateralOwner.Hex()))
	}
	return seeded, nil
}

func (g Genesis) loanParams() loans.Params {
	params := loans.DefaultParams()
	if g.LoanExpirationPeriod > 0 {
		params.LoanExpirationPeriod = g.LoanExpirationPeriod
	}
	if g.AcceptExpirationPeriod > 0 {
		params.AcceptExpirationPeriod = g.AcceptExpirationPeriod
	}
	return params
}

func (g Genesis) collateralParams() collateral.Params {
	params := collateral.DefaultParams()
	if g.CollateralExpirationPeriod > 0 {
		params.LoanExpirationPeriod = g.CollateralExpirationPeriod
	}
	if g.CollateralizationRatio != nil && g.CollateralizationRatio.Sign() > 0 {
		params.CollateralizationRatio = new(big.Int).Set(g.CollateralizationRatio)
	}
	params.PriceFeed = g.PriceFeed
	return params
}

func seedAsset(tx *Tx, owner ethcommon.Address, asset config.AssetTerms) error {
	if _, err := tx.Assets.AddAssetType(owner, asset.Token, asset.MaxPrincipal, asset.MinPrincipal,
		asset.BaseRatePerYear, asset.MultiplierPerYear, asset.ReferralFeeRate); err != nil {
		return err
	}
	if asset.MoneyMarket != (ethcommon.Address{}) {
		if _, err := tx.MoneyMarkets.AddMoneyMarket(owner, asset.Token, asset.MoneyMarket); err != nil {
			return err
		}
	}
	if len(asset.Balances) == 0 {
		return nil
	}
	ledger, err := tx.Token(asset.Token)
	if err != nil {
		return err
	}
	for account, amount := range asset.Balances {
		if err := ledger.Mint(account, amount); err != nil {
			return err
		}
	}
	return nil
}
