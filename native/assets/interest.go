package assets

import (
	"math/big"

	"crosslend/native/common"
)

// SecondsPerYear is the average Gregorian year used to de-annualise rates.
const SecondsPerYear uint64 = 31556952

var secondsPerYear = new(big.Int).SetUint64(SecondsPerYear)

// RatePerPeriod converts a WAD scaled annual rate into the rate accrued over
// periodSeconds, truncating.
func RatePerPeriod(ratePerYear *big.Int, periodSeconds uint64) (*big.Int, error) {
	return common.MulDiv(ratePerYear, new(big.Int).SetUint64(periodSeconds), secondsPerYear)
}

// InterestRate returns the flat per-period rate charged on new loans of this
// asset type. The rate does not react to utilisation.
func (a *AssetType) InterestRate() *big.Int {
	if a == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Add(common.CloneBig(a.BaseRatePerPeriod), common.CloneBig(a.MultiplierPerPeriod))
}

// Interest returns principal × rate / WAD.
func Interest(principal, rate *big.Int) (*big.Int, error) {
	return common.MulDiv(principal, rate, common.WAD)
}

// ReferralFee returns the referrer's cut of interest.
func ReferralFee(interest, feeRate *big.Int) (*big.Int, error) {
	if common.IsZero(feeRate) {
		return big.NewInt(0), nil
	}
	return common.MulDiv(interest, feeRate, common.WAD)
}

func (a *AssetType) deriveRates(periodSeconds uint64) error {
	base, err := RatePerPeriod(a.BaseRatePerYear, periodSeconds)
	if err != nil {
		return err
	}
	mult, err := RatePerPeriod(a.MultiplierPerYear, periodSeconds)
	if err != nil {
		return err
	}
	a.BaseRatePerPeriod = base
	a.MultiplierPerPeriod = mult
	return nil
}
