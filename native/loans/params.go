package loans

import "math/big"

// Param names a modifiable ledger parameter.
type Param string

const (
	ParamLoanExpirationPeriod   Param = "loanExpirationPeriod"
	ParamAcceptExpirationPeriod Param = "acceptExpirationPeriod"
)

const (
	DefaultLoanExpirationPeriod   uint64 = 2592000 // 30 days
	DefaultAcceptExpirationPeriod uint64 = 259200  // 3 days
)

// Params holds the ledger wide windows, in seconds.
type Params struct {
	LoanExpirationPeriod   uint64
	AcceptExpirationPeriod uint64
}

// DefaultParams returns the windows used until an administrator changes them.
func DefaultParams() Params {
	return Params{
		LoanExpirationPeriod:   DefaultLoanExpirationPeriod,
		AcceptExpirationPeriod: DefaultAcceptExpirationPeriod,
	}
}

func (p Params) with(param Param, value *big.Int) (Params, error) {
	if value == nil || value.Sign() <= 0 {
		return p, ErrNullData
	}
	if !value.IsUint64() || value.Uint64() > maxPeriod {
		return p, ErrInvalidPeriod
	}
	switch param {
	case ParamLoanExpirationPeriod:
		p.LoanExpirationPeriod = value.Uint64()
	case ParamAcceptExpirationPeriod:
		p.AcceptExpirationPeriod = value.Uint64()
	default:
		return p, ErrUnrecognizedParam
	}
	return p, nil
}

// maxPeriod keeps now + loan period + accept period within int64.
const maxPeriod = uint64(1) << 40
