package collateral

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"crosslend/core/types"
)

const (
	EventTypeCollateralLocked   = "collateral.locked"
	EventTypeCollateralUnlocked = "collateral.unlocked"
	EventTypeCollateralSeized   = "collateral.seized"
	EventTypeRefundableUnlocked = "collateral.refundable_unlocked"
	EventTypeParametersModified = "collateral.parameters_modified"
)

// NewLockedEvent returns the payload emitted when collateral is locked.
func NewLockedEvent(p *Position) *types.Event {
	evt := newPositionEvent(EventTypeCollateralLocked, p)
	evt.Attributes["counterpartyBorrower"] = p.CounterpartyBorrower.Hex()
	evt.Attributes["counterpartyLoanId"] = strconv.FormatUint(p.CounterpartyLoanID, 10)
	evt.Attributes["counterpartyAsset"] = p.CounterpartyAssetSymbol
	return evt
}

// NewUnlockedEvent reports a cooperative close and the amount returned.
func NewUnlockedEvent(p *Position, returned *big.Int) *types.Event {
	evt := newPositionEvent(EventTypeCollateralUnlocked, p)
	evt.Attributes["amount"] = returned.String()
	evt.Attributes["secretB1"] = "0x" + hex.EncodeToString(p.SecretB1)
	return evt
}

// NewSeizedEvent reports the amount paid to the lender side.
func NewSeizedEvent(p *Position, seized *big.Int) *types.Event {
	evt := newPositionEvent(EventTypeCollateralSeized, p)
	evt.Attributes["amount"] = seized.String()
	evt.Attributes["secretA1"] = "0x" + hex.EncodeToString(p.SecretA1)
	return evt
}

// NewRefundableUnlockedEvent reports the residual returned to the borrower
// after a seizure.
func NewRefundableUnlockedEvent(p *Position, refunded *big.Int) *types.Event {
	evt := newPositionEvent(EventTypeRefundableUnlocked, p)
	evt.Attributes["amount"] = refunded.String()
	return evt
}

func NewParametersModifiedEvent(param Param, p Params) *types.Event {
	return &types.Event{
		Type: EventTypeParametersModified,
		Attributes: map[string]string{
			"param":                  string(param),
			"loanExpirationPeriod":   strconv.FormatUint(p.LoanExpirationPeriod, 10),
			"collateralizationRatio": p.CollateralizationRatio.String(),
			"priceFeed":              p.PriceFeed.Hex(),
		},
	}
}

func newPositionEvent(eventType string, p *Position) *types.Event {
	attrs := map[string]string{}
	if p != nil {
		attrs["id"] = strconv.FormatUint(p.ID, 10)
		attrs["state"] = p.State.String()
		attrs["borrower"] = p.Borrower.Hex()
		attrs["lender"] = p.Lender.Hex()
		attrs["collateral"] = p.Collateral.String()
		attrs["collateralValue"] = p.CollateralValue.String()
		attrs["lockPrice"] = p.LockPrice.String()
		attrs["liquidationPrice"] = p.LiquidationPrice.String()
		attrs["loanExpiry"] = strconv.FormatInt(p.LoanExpiry, 10)
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}
