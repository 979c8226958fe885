package moneymarket

import (
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"
)

// MoneyMarket binds an underlying token to the yield market that escrowed
// principal is routed through.
type MoneyMarket struct {
	UnderlyingToken ethcommon.Address
	Market          ethcommon.Address
	Enabled         bool
}

// Clone returns a copy of the record.
func (m *MoneyMarket) Clone() *MoneyMarket {
	if m == nil {
		return nil
	}
	clone := *m
	return &clone
}

// YieldMarket is the capability consumed from an external yield-bearing
// wrapper. Mint pulls amount of the underlying from holder (which must have
// approved the market) and credits shares; RedeemUnderlying burns whatever
// shares are needed to pay exactly amount of the underlying back to holder.
type YieldMarket interface {
	Mint(holder ethcommon.Address, amount *big.Int) (*big.Int, error)
	RedeemUnderlying(holder ethcommon.Address, amount *big.Int) (*big.Int, error)
}

// Approver grants the market an allowance over the holder's underlying.
type Approver interface {
	Approve(owner, spender ethcommon.Address, amount *big.Int) error
}

// UnderlyingToken is the token capability a Vault needs.
type UnderlyingToken interface {
	BalanceOf(account ethcommon.Address) (*big.Int, error)
	Transfer(from, to ethcommon.Address, amount *big.Int) error
	TransferFrom(spender, from, to ethcommon.Address, amount *big.Int) error
}

// Resolver maps a configured market address to its implementation.
type Resolver func(market ethcommon.Address) (YieldMarket, error)
