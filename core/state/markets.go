package state

import (
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"

	"crosslend/native/assets"
	"crosslend/native/moneymarket"
)

type storedAssetType struct {
	Token               [20]byte
	Enabled             bool
	MinPrincipal        *big.Int
	MaxPrincipal        *big.Int
	BaseRatePerYear     *big.Int
	MultiplierPerYear   *big.Int
	BaseRatePerPeriod   *big.Int
	MultiplierPerPeriod *big.Int
	ReferralFeeRate     *big.Int
}

// AssetTypeGet loads the asset type registered for token.
func (m *Manager) AssetTypeGet(token ethcommon.Address) (*assets.AssetType, bool, error) {
	var stored storedAssetType
	ok, err := m.KVGet(addrKey(assetTypePrefix, token), &stored)
	if err != nil || !ok {
		return nil, ok, err
	}
	return &assets.AssetType{
		Token:               stored.Token,
		Enabled:             stored.Enabled,
		MinPrincipal:        nonNil(stored.MinPrincipal),
		MaxPrincipal:        nonNil(stored.MaxPrincipal),
		BaseRatePerYear:     nonNil(stored.BaseRatePerYear),
		MultiplierPerYear:   nonNil(stored.MultiplierPerYear),
		BaseRatePerPeriod:   nonNil(stored.BaseRatePerPeriod),
		MultiplierPerPeriod: nonNil(stored.MultiplierPerPeriod),
		ReferralFeeRate:     nonNil(stored.ReferralFeeRate),
	}, true, nil
}

// AssetTypePut persists an asset type.
func (m *Manager) AssetTypePut(asset *assets.AssetType) error {
	if asset == nil {
		return errNilRecord
	}
	return m.KVPut(addrKey(assetTypePrefix, asset.Token), &storedAssetType{
		Token:               asset.Token,
		Enabled:             asset.Enabled,
		MinPrincipal:        nonNil(asset.MinPrincipal),
		MaxPrincipal:        nonNil(asset.MaxPrincipal),
		BaseRatePerYear:     nonNil(asset.BaseRatePerYear),
		MultiplierPerYear:   nonNil(asset.MultiplierPerYear),
		BaseRatePerPeriod:   nonNil(asset.BaseRatePerPeriod),
		MultiplierPerPeriod: nonNil(asset.MultiplierPerPeriod),
		ReferralFeeRate:     nonNil(asset.ReferralFeeRate),
	})
}

type storedMoneyMarket struct {
	UnderlyingToken [20]byte
	Market          [20]byte
	Enabled         bool
}

// MoneyMarketGet loads the market binding of token.
func (m *Manager) MoneyMarketGet(token ethcommon.Address) (*moneymarket.MoneyMarket, bool, error) {
	var stored storedMoneyMarket
	ok, err := m.KVGet(addrKey(moneyMarketPrefix, token), &stored)
	if err != nil || !ok {
		return nil, ok, err
	}
	return &moneymarket.MoneyMarket{
		UnderlyingToken: stored.UnderlyingToken,
		Market:          stored.Market,
		Enabled:         stored.Enabled,
	}, true, nil
}

// MoneyMarketPut persists a market binding.
func (m *Manager) MoneyMarketPut(record *moneymarket.MoneyMarket) error {
	if record == nil {
		return errNilRecord
	}
	return m.KVPut(addrKey(moneyMarketPrefix, record.UnderlyingToken), &storedMoneyMarket{
		UnderlyingToken: record.UnderlyingToken,
		Market:          record.Market,
		Enabled:         record.Enabled,
	})
}

// VaultSharesGet returns the shares holder owns in market.
func (m *Manager) VaultSharesGet(market, holder ethcommon.Address) (*big.Int, error) {
	return m.bigGet(addrKey(vaultSharesPrefix, market, holder))
}

func (m *Manager) VaultSharesPut(market, holder ethcommon.Address, shares *big.Int) error {
	return m.KVPut(addrKey(vaultSharesPrefix, market, holder), nonNil(shares))
}

// VaultTotalSharesGet returns the outstanding shares of market.
func (m *Manager) VaultTotalSharesGet(market ethcommon.Address) (*big.Int, error) {
	return m.bigGet(addrKey(vaultTotalPrefix, market))
}

func (m *Manager) VaultTotalSharesPut(market ethcommon.Address, shares *big.Int) error {
	return m.KVPut(addrKey(vaultTotalPrefix, market), nonNil(shares))
}

// TokenBalanceGet returns account's balance of token.
func (m *Manager) TokenBalanceGet(token, account ethcommon.Address) (*big.Int, error) {
	return m.bigGet(addrKey(tokenBalancePrefix, token, account))
}

func (m *Manager) TokenBalancePut(token, account ethcommon.Address, amount *big.Int) error {
	return m.KVPut(addrKey(tokenBalancePrefix, token, account), nonNil(amount))
}

// TokenAllowanceGet returns what spender may move from owner's balance.
func (m *Manager) TokenAllowanceGet(token, owner, spender ethcommon.Address) (*big.Int, error) {
	return m.bigGet(addrKey(tokenAllowancePrefix, token, owner, spender))
}

func (m *Manager) TokenAllowancePut(token, owner, spender ethcommon.Address, amount *big.Int) error {
	return m.KVPut(addrKey(tokenAllowancePrefix, token, owner, spender), nonNil(amount))
}

func (m *Manager) bigGet(key []byte) (*big.Int, error) {
	value := new(big.Int)
	if _, err := m.KVGet(key, value); err != nil {
		return nil, err
	}
	return value, nil
}
