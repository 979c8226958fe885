package moneymarket

import (
	"errors"
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"

	"crosslend/native/common"
)

var (
	ErrInvalidAmount      = common.NewError(common.ErrValidation, common.ModuleMoneyMarket, "invalid-amount")
	ErrInsufficientShares = common.NewError(common.ErrInsufficientFunds, common.ModuleMoneyMarket, "insufficient-shares")

	errNilVaultState = errors.New("vault: state not configured")
)

type vaultState interface {
	VaultSharesGet(market, holder ethcommon.Address) (*big.Int, error)
	VaultSharesPut(market, holder ethcommon.Address, shares *big.Int) error
	VaultTotalSharesGet(market ethcommon.Address) (*big.Int, error)
	VaultTotalSharesPut(market ethcommon.Address, shares *big.Int) error
}

// Vault is an in-process yield market in the style of a cToken: it holds the
// underlying at its own address and issues shares whose exchange rate is
// cash / totalShares. Yield accrues when underlying is transferred to the
// vault without minting.
type Vault struct {
	address    ethcommon.Address
	underlying UnderlyingToken
	state      vaultState
}

// NewVault returns a vault living at address over the underlying token.
func NewVault(address ethcommon.Address, underlying UnderlyingToken, state vaultState) *Vault {
	return &Vault{address: address, underlying: underlying, state: state}
}

// Address returns the vault's account address.
func (v *Vault) Address() ethcommon.Address { return v.address }

// Mint implements YieldMarket.
func (v *Vault) Mint(holder ethcommon.Address, amount *big.Int) (*big.Int, error) {
	if v == nil || v.state == nil {
		return nil, errNilVaultState
	}
	if common.IsZero(amount) || amount.Sign() < 0 {
		return nil, ErrInvalidAmount
	}
	cash, total, err := v.reserves()
	if err != nil {
		return nil, err
	}
	shares := new(big.Int).Set(amount)
	if total.Sign() > 0 && cash.Sign() > 0 {
		shares, err = common.MulDiv(amount, total, cash)
		if err != nil {
			return nil, err
		}
	}
	if shares.Sign() == 0 {
		return nil, ErrInvalidAmount
	}
	held, err := v.state.VaultSharesGet(v.address, holder)
	if err != nil {
		return nil, err
	}
	if err := v.underlying.TransferFrom(v.address, holder, v.address, amount); err != nil {
		return nil, err
	}
	if err := v.state.VaultSharesPut(v.address, holder, new(big.Int).Add(held, shares)); err != nil {
		return nil, err
	}
	if err := v.state.VaultTotalSharesPut(v.address, new(big.Int).Add(total, shares)); err != nil {
		return nil, err
	}
	return shares, nil
}

// RedeemUnderlying implements YieldMarket. Burned shares round up so the
// vault never pays out more than the shares are worth.
func (v *Vault) RedeemUnderlying(holder ethcommon.Address, amount *big.Int) (*big.Int, error) {
	if v == nil || v.state == nil {
		return nil, errNilVaultState
	}
	if common.IsZero(amount) || amount.Sign() < 0 {
		return nil, ErrInvalidAmount
	}
	cash, total, err := v.reserves()
	if err != nil {
		return nil, err
	}
	if cash.Cmp(amount) < 0 || total.Sign() == 0 {
		return nil, ErrInsufficientShares
	}
	product, err := common.Mul(amount, total)
	if err != nil {
		return nil, err
	}
	burned, rem := new(big.Int).QuoRem(product, cash, new(big.Int))
	if rem.Sign() > 0 {
		burned.Add(burned, big.NewInt(1))
	}
	held, err := v.state.VaultSharesGet(v.address, holder)
	if err != nil {
		return nil, err
	}
	if held.Cmp(burned) < 0 {
		return nil, ErrInsufficientShares
	}
	if err := v.state.VaultSharesPut(v.address, holder, new(big.Int).Sub(held, burned)); err != nil {
		return nil, err
	}
	if err := v.state.VaultTotalSharesPut(v.address, new(big.Int).Sub(total, burned)); err != nil {
		return nil, err
	}
	if err := v.underlying.Transfer(v.address, holder, amount); err != nil {
		return nil, err
	}
	return burned, nil
}

// SharesOf returns the shares held by holder.
func (v *Vault) SharesOf(holder ethcommon.Address) (*big.Int, error) {
	if v == nil || v.state == nil {
		return nil, errNilVaultState
	}
	return v.state.VaultSharesGet(v.address, holder)
}

// UnderlyingOf values holder's shares at the current exchange rate.
func (v *Vault) UnderlyingOf(holder ethcommon.Address) (*big.Int, error) {
	shares, err := v.SharesOf(holder)
	if err != nil {
		return nil, err
	}
	cash, total, err := v.reserves()
	if err != nil {
		return nil, err
	}
	if total.Sign() == 0 {
		return big.NewInt(0), nil
	}
	return common.MulDiv(shares, cash, total)
}

func (v *Vault) reserves() (*big.Int, *big.Int, error) {
	cash, err := v.underlying.BalanceOf(v.address)
	if err != nil {
		return nil, nil, err
	}
	total, err := v.state.VaultTotalSharesGet(v.address)
	if err != nil {
		return nil, nil, err
	}
	return common.CloneBig(cash), common.CloneBig(total), nil
}
