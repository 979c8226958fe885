// Package token implements the in-process fungible token and native value
// ledgers the lending engines custody funds through.
package token

import (
	"errors"
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"

	"crosslend/native/common"
)

const moduleToken = "token"

var (
	ErrInsufficientBalance   = common.NewError(common.ErrInsufficientFunds, moduleToken, "insufficient-balance")
	ErrInsufficientAllowance = common.NewError(common.ErrInsufficientFunds, moduleToken, "insufficient-allowance")
	ErrInvalidAmount         = common.NewError(common.ErrValidation, moduleToken, "invalid-amount")
	ErrInvalidRecipient      = common.NewError(common.ErrValidation, moduleToken, "invalid-recipient")

	errNilState = errors.New("token ledger: state not configured")
)

// NativeAsset is the ledger key under which native value balances are held.
var NativeAsset = ethcommon.Address{}

type ledgerState interface {
	TokenBalanceGet(token, account ethcommon.Address) (*big.Int, error)
	TokenBalancePut(token, account ethcommon.Address, amount *big.Int) error
	TokenAllowanceGet(token, owner, spender ethcommon.Address) (*big.Int, error)
	TokenAllowancePut(token, owner, spender ethcommon.Address, amount *big.Int) error
}

// Ledger tracks balances and allowances of a single asset. Every call names
// its acting account explicitly.
type Ledger struct {
	address ethcommon.Address
	state   ledgerState
}

// NewLedger returns the ledger of the token deployed at address.
func NewLedger(address ethcommon.Address, state ledgerState) *Ledger {
	return &Ledger{address: address, state: state}
}

// NewNative returns the native value ledger.
func NewNative(state ledgerState) *Ledger {
	return &Ledger{address: NativeAsset, state: state}
}

// Address returns the asset address.
func (l *Ledger) Address() ethcommon.Address { return l.address }

// BalanceOf returns the balance held by account.
func (l *Ledger) BalanceOf(account ethcommon.Address) (*big.Int, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	bal, err := l.state.TokenBalanceGet(l.address, account)
	if err != nil {
		return nil, err
	}
	return common.CloneBig(bal), nil
}

// Allowance returns how much spender may move on behalf of owner.
func (l *Ledger) Allowance(owner, spender ethcommon.Address) (*big.Int, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	allowance, err := l.state.TokenAllowanceGet(l.address, owner, spender)
	if err != nil {
		return nil, err
	}
	return common.CloneBig(allowance), nil
}

// Approve sets spender's allowance over owner's balance.
func (l *Ledger) Approve(owner, spender ethcommon.Address, amount *big.Int) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	return l.state.TokenAllowancePut(l.address, owner, spender, new(big.Int).Set(amount))
}

// Transfer moves amount from one account to another.
func (l *Ledger) Transfer(from, to ethcommon.Address, amount *big.Int) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	return l.move(from, to, amount)
}

// TransferFrom moves amount from owner to recipient against spender's
// allowance.
func (l *Ledger) TransferFrom(spender, from, to ethcommon.Address, amount *big.Int) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	allowance, err := l.Allowance(from, spender)
	if err != nil {
		return err
	}
	if allowance.Cmp(amount) < 0 {
		return ErrInsufficientAllowance
	}
	balance, err := l.BalanceOf(from)
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	if err := l.state.TokenAllowancePut(l.address, from, spender, new(big.Int).Sub(allowance, amount)); err != nil {
		return err
	}
	return l.move(from, to, amount)
}

// Mint credits amount to account. It exists to seed balances.
func (l *Ledger) Mint(to ethcommon.Address, amount *big.Int) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	balance, err := l.BalanceOf(to)
	if err != nil {
		return err
	}
	next, err := common.Add(balance, amount)
	if err != nil {
		return err
	}
	return l.state.TokenBalancePut(l.address, to, next)
}

func (l *Ledger) move(from, to ethcommon.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if to == (ethcommon.Address{}) {
		return ErrInvalidRecipient
	}
	if amount.Sign() == 0 || from == to {
		return nil
	}
	fromBal, err := l.BalanceOf(from)
	if err != nil {
		return err
	}
	if fromBal.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	toBal, err := l.BalanceOf(to)
	if err != nil {
		return err
	}
	credited, err := common.Add(toBal, amount)
	if err != nil {
		return err
	}
	if err := l.state.TokenBalancePut(l.address, from, new(big.Int).Sub(fromBal, amount)); err != nil {
		return err
	}
	return l.state.TokenBalancePut(l.address, to, credited)
}
