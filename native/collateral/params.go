package collateral

import (
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"

	"crosslend/native/common"
)

// Param names a modifiable escrow parameter.
type Param string

const (
	ParamLoanExpirationPeriod   Param = "loanExpirationPeriod"
	ParamCollateralizationRatio Param = "collateralizationRatio"
	ParamPriceFeed              Param = "priceFeed"
)

// DefaultLoanExpirationPeriod is 33 days, past the 30 + 3 day windows of
// the loan ledger defaults.
const DefaultLoanExpirationPeriod uint64 = 2851200

// Params holds the escrow configuration.
type Params struct {
	LoanExpirationPeriod uint64
	// CollateralizationRatio is WAD scaled percent, 150e18 for 150%.
	CollateralizationRatio *big.Int
	PriceFeed              ethcommon.Address
}

// DefaultParams returns the configuration used until an administrator
// changes it. No price feed is configured by default.
func DefaultParams() Params {
	return Params{
		LoanExpirationPeriod:   DefaultLoanExpirationPeriod,
		CollateralizationRatio: new(big.Int).Mul(big.NewInt(150), common.WAD),
	}
}

// Clone returns a deep copy of the parameters.
func (p Params) Clone() Params {
	p.CollateralizationRatio = common.CloneBig(p.CollateralizationRatio)
	return p
}

func (p Params) with(param Param, value *big.Int) (Params, error) {
	if value == nil || value.Sign() <= 0 {
		return p, ErrNullData
	}
	next := p.Clone()
	switch param {
	case ParamLoanExpirationPeriod:
		if !value.IsUint64() || value.Uint64() > maxPeriod {
			return p, ErrInvalidPeriod
		}
		next.LoanExpirationPeriod = value.Uint64()
	case ParamCollateralizationRatio:
		next.CollateralizationRatio = new(big.Int).Set(value)
	case ParamPriceFeed:
		if value.BitLen() > 160 {
			return p, ErrInvalidPriceFeed
		}
		next.PriceFeed = ethcommon.BigToAddress(value)
	default:
		return p, ErrUnrecognizedParam
	}
	return next, nil
}

const maxPeriod = uint64(1) << 40
