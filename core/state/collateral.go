package state

import (
	"fmt"
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"

	"crosslend/native/collateral"
)

type storedPosition struct {
	ID                      uint64
	Borrower                [20]byte
	Lender                  [20]byte
	SecretHashA1            [32]byte
	SecretHashB1            [32]byte
	SecretA1                []byte
	SecretB1                []byte
	CounterpartyBorrower    [20]byte
	CounterpartyLoanID      uint64
	CounterpartyAssetSymbol string
	Collateral              *big.Int
	LockPrice               *big.Int
	LiquidationPrice        *big.Int
	CollateralValue         *big.Int
	LoanExpiry              *big.Int
	CreatedAt               *big.Int
	State                   uint8
}

type storedCollateralParams struct {
	LoanExpirationPeriod   uint64
	CollateralizationRatio *big.Int
	PriceFeed              [20]byte
}

// CollateralGet loads a collateral position.
func (m *Manager) CollateralGet(id uint64) (*collateral.Position, bool, error) {
	var s storedPosition
	ok, err := m.KVGet(idKey(collateralRecordPrefix, id), &s)
	if err != nil || !ok {
		return nil, ok, err
	}
	state := collateral.PositionState(s.State)
	if !state.Valid() {
		return nil, false, fmt.Errorf("collateral %d: invalid stored state %d", s.ID, s.State)
	}
	return &collateral.Position{
		ID:                      s.ID,
		Borrower:                s.Borrower,
		Lender:                  s.Lender,
		SecretHashA1:            s.SecretHashA1,
		SecretHashB1:            s.SecretHashB1,
		SecretA1:                nilIfEmpty(s.SecretA1),
		SecretB1:                nilIfEmpty(s.SecretB1),
		CounterpartyBorrower:    s.CounterpartyBorrower,
		CounterpartyLoanID:      s.CounterpartyLoanID,
		CounterpartyAssetSymbol: s.CounterpartyAssetSymbol,
		Collateral:              nonNil(s.Collateral),
		LockPrice:               nonNil(s.LockPrice),
		LiquidationPrice:        nonNil(s.LiquidationPrice),
		CollateralValue:         nonNil(s.CollateralValue),
		LoanExpiry:              nonNil(s.LoanExpiry).Int64(),
		CreatedAt:               nonNil(s.CreatedAt).Int64(),
		State:                   state,
	}, true, nil
}

// CollateralPut persists a collateral position.
func (m *Manager) CollateralPut(p *collateral.Position) error {
	if p == nil {
		return errNilRecord
	}
	if p.LoanExpiry < 0 || p.CreatedAt < 0 {
		return fmt.Errorf("collateral %d: negative timestamp", p.ID)
	}
	return m.KVPut(idKey(collateralRecordPrefix, p.ID), &storedPosition{
		ID:                      p.ID,
		Borrower:                p.Borrower,
		Lender:                  p.Lender,
		SecretHashA1:            p.SecretHashA1,
		SecretHashB1:            p.SecretHashB1,
		SecretA1:                p.SecretA1,
		SecretB1:                p.SecretB1,
		CounterpartyBorrower:    p.CounterpartyBorrower,
		CounterpartyLoanID:      p.CounterpartyLoanID,
		CounterpartyAssetSymbol: p.CounterpartyAssetSymbol,
		Collateral:              nonNil(p.Collateral),
		LockPrice:               nonNil(p.LockPrice),
		LiquidationPrice:        nonNil(p.LiquidationPrice),
		CollateralValue:         nonNil(p.CollateralValue),
		LoanExpiry:              big.NewInt(p.LoanExpiry),
		CreatedAt:               big.NewInt(p.CreatedAt),
		State:                   uint8(p.State),
	})
}

// CollateralNextID allocates the next position id.
func (m *Manager) CollateralNextID() (uint64, error) {
	return m.nextID(collateralNextIDKey)
}

// AccountPositionsAppend indexes position id under account.
func (m *Manager) AccountPositionsAppend(account ethcommon.Address, id uint64) error {
	return m.appendID(addrKey(collateralAccountPrefix, account), id)
}

// AccountPositions lists the positions indexed under account.
func (m *Manager) AccountPositions(account ethcommon.Address) ([]uint64, error) {
	return m.listIDs(addrKey(collateralAccountPrefix, account))
}

// CollateralParams returns the escrow configuration, falling back to the
// defaults until it is first written.
func (m *Manager) CollateralParams() (collateral.Params, error) {
	var stored storedCollateralParams
	ok, err := m.KVGet(collateralParamsKey, &stored)
	if err != nil {
		return collateral.Params{}, err
	}
	if !ok {
		return collateral.DefaultParams(), nil
	}
	return collateral.Params{
		LoanExpirationPeriod:   stored.LoanExpirationPeriod,
		CollateralizationRatio: nonNil(stored.CollateralizationRatio),
		PriceFeed:              stored.PriceFeed,
	}, nil
}

// CollateralParamsPut persists the escrow configuration.
func (m *Manager) CollateralParamsPut(p collateral.Params) error {
	return m.KVPut(collateralParamsKey, &storedCollateralParams{
		LoanExpirationPeriod:   p.LoanExpirationPeriod,
		CollateralizationRatio: nonNil(p.CollateralizationRatio),
		PriceFeed:              p.PriceFeed,
	})
}
