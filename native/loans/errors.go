package loans

import (
	"errors"

	"crosslend/native/common"
)

func newError(kind common.Kind, reason string) *common.Error {
	return common.NewError(kind, common.ModuleLoans, reason)
}

var (
	ErrNotAuthorized          = newError(common.ErrAuthorization, common.ReasonNotAuthorized)
	ErrContractNotEnabled     = newError(common.ErrContractDisabled, common.ReasonContractNotEnabled)
	ErrInvalidTokenAddress    = newError(common.ErrValidation, "invalid-token-address")
	ErrAssetTypeDisabled      = newError(common.ErrValidation, "asset-type-disabled")
	ErrInvalidPrincipalAmount = newError(common.ErrValidation, "invalid-principal-amount")
	ErrInvalidPrincipalRange  = newError(common.ErrValidation, "invalid-principal-range")
	ErrInvalidSecretHash      = newError(common.ErrValidation, "invalid-secret-hash")
	ErrInvalidBorrower        = newError(common.ErrValidation, "invalid-borrower")
	ErrReferrerIsReferral     = newError(common.ErrValidation, "referrer-is-referral")
	ErrNullData               = newError(common.ErrValidation, common.ReasonNullData)
	ErrUnrecognizedParam      = newError(common.ErrValidation, common.ReasonUnrecognizedParam)
	ErrInvalidPeriod          = newError(common.ErrValidation, "invalid-period")
	ErrInsufficientAllowance  = newError(common.ErrInsufficientFunds, "insufficient-token-allowance")
	ErrLoanNotFound           = newError(common.ErrNotFound, "loan-not-found")
	ErrLoanNotFunded          = newError(common.ErrState, "loan-not-funded")
	ErrLoanNotApproved        = newError(common.ErrState, "loan-not-approved")
	ErrPrincipalWithdrawn     = newError(common.ErrState, "principal-withdrawn")
	ErrInvalidLoanState       = newError(common.ErrState, "invalid-loan-state")
	ErrLoanNotRepaid          = newError(common.ErrState, "loan-not-repaid")
	ErrLoanExpired            = newError(common.ErrExpiry, "loan-expired")
	ErrAcceptPeriodExpired    = newError(common.ErrExpiry, "accept-period-expired")
	ErrAcceptPeriodNotExpired = newError(common.ErrExpiry, "accept-period-not-expired")
	ErrInvalidSecretA1        = newError(common.ErrSecretMismatch, "invalid-secret-A1")
	ErrInvalidSecretB1        = newError(common.ErrSecretMismatch, "invalid-secret-B1")

	errNilState      = errors.New("loans engine: state not configured")
	errNilAssets     = errors.New("loans engine: asset registry not configured")
	errNilTokens     = errors.New("loans engine: token resolver not configured")
	errNilEscrow     = errors.New("loans engine: escrow account not configured")
	errInvalidRecord = errors.New("loans engine: stored loan has invalid state")
)
