package assets

import (
	"math/big"
	"testing"
)

func TestRatePerPeriodTruncates(t *testing.T) {
	// 1e18 * 2592000 / 31556952 leaves a remainder that must be dropped.
	got, err := RatePerPeriod(wad(1), 2592000)
	if err != nil {
		t.Fatalf("rate per period: %v", err)
	}
	want, _ := new(big.Int).SetString("82137210209655229", 10)
	if got.Cmp(want) != 0 {
		t.Fatalf("got %s want %s", got, want)
	}
}

func TestInterestForScenarioLoan(t *testing.T) {
	asset := &AssetType{BaseRatePerYear: milliWad(55), MultiplierPerYear: wad(1)}
	if err := asset.deriveRates(2592000); err != nil {
		t.Fatalf("derive rates: %v", err)
	}
	principal := wad(1000)
	interest, err := Interest(principal, asset.InterestRate())
	if err != nil {
		t.Fatalf("interest: %v", err)
	}
	want := new(big.Int).Div(new(big.Int).Mul(principal, asset.InterestRate()), wad(1))
	if interest.Cmp(want) != 0 {
		t.Fatalf("interest: got %s want %s", interest, want)
	}
	again, _ := Interest(principal, asset.InterestRate())
	if again.Cmp(interest) != 0 {
		t.Fatalf("interest must be deterministic")
	}
}

func TestReferralFee(t *testing.T) {
	fee, err := ReferralFee(big.NewInt(1000), milliWad(250))
	if err != nil {
		t.Fatalf("referral fee: %v", err)
	}
	if fee.Int64() != 250 {
		t.Fatalf("got %s want 250", fee)
	}
	fee, err = ReferralFee(big.NewInt(1000), nil)
	if err != nil || fee.Sign() != 0 {
		t.Fatalf("expected zero fee without a rate, got %v %v", fee, err)
	}
	fee, _ = ReferralFee(big.NewInt(3), milliWad(500))
	if fee.Int64() != 1 {
		t.Fatalf("expected truncation to 1, got %s", fee)
	}
}
