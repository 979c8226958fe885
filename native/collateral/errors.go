package collateral

import (
	"errors"

	"crosslend/native/common"
)

func newError(kind common.Kind, reason string) *common.Error {
	return common.NewError(kind, common.ModuleCollateral, reason)
}

var (
	ErrNotAuthorized           = newError(common.ErrAuthorization, common.ReasonNotAuthorized)
	ErrContractNotEnabled      = newError(common.ErrContractDisabled, common.ReasonContractNotEnabled)
	ErrInvalidCollateralAmount = newError(common.ErrValidation, "invalid-collateral-amount")
	ErrInvalidSecretHash       = newError(common.ErrValidation, "invalid-secret-hash")
	ErrInvalidLender           = newError(common.ErrValidation, "invalid-lender")
	ErrInvalidPrice            = newError(common.ErrValidation, "invalid-price")
	ErrInvalidPriceFeed        = newError(common.ErrValidation, "invalid-price-feed")
	ErrInvalidPeriod           = newError(common.ErrValidation, "invalid-period")
	ErrNullData                = newError(common.ErrValidation, common.ReasonNullData)
	ErrUnrecognizedParam       = newError(common.ErrValidation, common.ReasonUnrecognizedParam)
	ErrPositionNotFound        = newError(common.ErrNotFound, "collateral-not-found")
	ErrCollateralNotLocked     = newError(common.ErrState, "collateral-not-locked")
	ErrLoanPeriodExpired       = newError(common.ErrExpiry, "loan-period-expired")
	ErrLoanPeriodActive        = newError(common.ErrExpiry, "loan-period-active")
	ErrInvalidSecretA1         = newError(common.ErrSecretMismatch, "invalid-secret-A1")
	ErrInvalidSecretB1         = newError(common.ErrSecretMismatch, "invalid-secretB1")

	errNilState      = errors.New("collateral engine: state not configured")
	errNilFeeds      = errors.New("collateral engine: price feed resolver not configured")
	errNilBank       = errors.New("collateral engine: value ledger not configured")
	errNilEscrow     = errors.New("collateral engine: escrow account not configured")
	errInvalidRecord = errors.New("collateral engine: stored position has invalid state")
)
