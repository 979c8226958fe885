package assets

import (
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"

	"crosslend/native/common"
)

// Param names a modifiable asset type field.
type Param string

const (
	ParamMaxLoanAmount     Param = "maxLoanAmount"
	ParamMinLoanAmount     Param = "minLoanAmount"
	ParamBaseRatePerYear   Param = "baseRatePerYear"
	ParamMultiplierPerYear Param = "multiplierPerYear"
)

// Valid reports whether p is one of the recognised parameters.
func (p Param) Valid() bool {
	switch p {
	case ParamMaxLoanAmount, ParamMinLoanAmount, ParamBaseRatePerYear, ParamMultiplierPerYear:
		return true
	default:
		return false
	}
}

// AssetType describes the loanable terms of one fungible token. Rates are WAD
// scaled. The per-period values are derived from the annual ones with the
// loan period in force when they were last set.
type AssetType struct {
	Token               ethcommon.Address
	Enabled             bool
	MinPrincipal        *big.Int
	MaxPrincipal        *big.Int
	BaseRatePerYear     *big.Int
	MultiplierPerYear   *big.Int
	BaseRatePerPeriod   *big.Int
	MultiplierPerPeriod *big.Int
	ReferralFeeRate     *big.Int
}

// Clone returns a deep copy of the asset type.
func (a *AssetType) Clone() *AssetType {
	if a == nil {
		return nil
	}
	clone := *a
	clone.MinPrincipal = common.CloneBig(a.MinPrincipal)
	clone.MaxPrincipal = common.CloneBig(a.MaxPrincipal)
	clone.BaseRatePerYear = common.CloneBig(a.BaseRatePerYear)
	clone.MultiplierPerYear = common.CloneBig(a.MultiplierPerYear)
	clone.BaseRatePerPeriod = common.CloneBig(a.BaseRatePerPeriod)
	clone.MultiplierPerPeriod = common.CloneBig(a.MultiplierPerPeriod)
	clone.ReferralFeeRate = common.CloneBig(a.ReferralFeeRate)
	return &clone
}

// InPrincipalRange reports whether amount lies within [min, max].
func (a *AssetType) InPrincipalRange(amount *big.Int) bool {
	if a == nil || amount == nil {
		return false
	}
	return amount.Cmp(a.MinPrincipal) >= 0 && amount.Cmp(a.MaxPrincipal) <= 0
}
