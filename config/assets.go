package config

import (
	"fmt"
	"math/big"
	"os"
	"strings"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// AssetsFile lists the asset types, money markets and opening balances the
// daemon seeds on first start.
type AssetsFile struct {
	Assets []AssetSeed `yaml:"assets"`
}

// AssetSeed describes one loanable token. Amounts are given in whole token
// units and rates as decimal fractions ("0.055" is 5.5%); both are scaled to
// 18 decimals when applied.
type AssetSeed struct {
	Symbol            string            `yaml:"symbol"`
	Token             string            `yaml:"token"`
	MinPrincipal      string            `yaml:"min_principal"`
	MaxPrincipal      string            `yaml:"max_principal"`
	BaseRatePerYear   string            `yaml:"base_rate_per_year"`
	MultiplierPerYear string            `yaml:"multiplier_per_year"`
	ReferralFeeRate   string            `yaml:"referral_fee_rate"`
	MoneyMarket       string            `yaml:"money_market"`
	Balances          map[string]string `yaml:"balances"`
}

// AssetTerms is an AssetSeed with every amount scaled to 18 decimals.
type AssetTerms struct {
	Symbol            string
	Token             ethcommon.Address
	MinPrincipal      *big.Int
	MaxPrincipal      *big.Int
	BaseRatePerYear   *big.Int
	MultiplierPerYear *big.Int
	ReferralFeeRate   *big.Int
	MoneyMarket       ethcommon.Address
	Balances          map[ethcommon.Address]*big.Int
}

var wadScale = decimal.New(1, 18)

// LoadAssets reads and validates an asset seed file.
func LoadAssets(path string) ([]AssetTerms, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open assets: %w", err)
	}
	defer file.Close()

	var seeds AssetsFile
	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(&seeds); err != nil {
		return nil, fmt.Errorf("decode assets: %w", err)
	}
	out := make([]AssetTerms, 0, len(seeds.Assets))
	seen := make(map[ethcommon.Address]struct{}, len(seeds.Assets))
	for i, seed := range seeds.Assets {
		terms, err := seed.Terms()
		if err != nil {
			return nil, fmt.Errorf("assets[%d]: %w", i, err)
		}
		if _, dup := seen[terms.Token]; dup {
			return nil, fmt.Errorf("assets[%d]: duplicate token %s", i, terms.Token.Hex())
		}
		seen[terms.Token] = struct{}{}
		out = append(out, terms)
	}
	return out, nil
}

// Terms converts the seed into scaled integer terms.
func (s AssetSeed) Terms() (AssetTerms, error) {
	token, err := parseAddress("token", s.Token)
	if err != nil {
		return AssetTerms{}, err
	}
	if token == (ethcommon.Address{}) {
		return AssetTerms{}, fmt.Errorf("token address required")
	}
	market, err := parseAddress("money_market", s.MoneyMarket)
	if err != nil {
		return AssetTerms{}, err
	}
	terms := AssetTerms{
		Symbol:      strings.ToUpper(strings.TrimSpace(s.Symbol)),
		Token:       token,
		MoneyMarket: market,
		Balances:    make(map[ethcommon.Address]*big.Int, len(s.Balances)),
	}
	fields := []struct {
		name  string
		raw   string
		dest  **big.Int
		empty bool
	}{
		{"min_principal", s.MinPrincipal, &terms.MinPrincipal, false},
		{"max_principal", s.MaxPrincipal, &terms.MaxPrincipal, false},
		{"base_rate_per_year", s.BaseRatePerYear, &terms.BaseRatePerYear, true},
		{"multiplier_per_year", s.MultiplierPerYear, &terms.MultiplierPerYear, true},
		{"referral_fee_rate", s.ReferralFeeRate, &terms.ReferralFeeRate, true},
	}
	for _, field := range fields {
		value, err := ScaleDecimal(field.raw, field.empty)
		if err != nil {
			return AssetTerms{}, fmt.Errorf("%s: %w", field.name, err)
		}
		*field.dest = value
	}
	for account, raw := range s.Balances {
		holder, err := parseAddress("balances", account)
		if err != nil {
			return AssetTerms{}, err
		}
		amount, err := ScaleDecimal(raw, false)
		if err != nil {
			return AssetTerms{}, fmt.Errorf("balance of %s: %w", account, err)
		}
		terms.Balances[holder] = amount
	}
	return terms, nil
}

// ScaleDecimal parses a non-negative decimal and scales it to 18 decimals,
// truncating any further digits. Empty input yields zero when allowEmpty is
// set.
func ScaleDecimal(raw string, allowEmpty bool) (*big.Int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		if allowEmpty {
			return big.NewInt(0), nil
		}
		return nil, fmt.Errorf("value required")
	}
	value, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, err
	}
	if value.IsNegative() {
		return nil, fmt.Errorf("value %s must not be negative", raw)
	}
	return value.Mul(wadScale).Truncate(0).BigInt(), nil
}
