package loans

import (
	"encoding/hex"
	"strconv"

	ethcommon "github.com/ethereum/go-ethereum/common"

	"crosslend/core/types"
)

const (
	EventTypeLoanCreated        = "loans.created"
	EventTypeLoanApproved       = "loans.approved"
	EventTypeLoanWithdrawn      = "loans.withdrawn"
	EventTypeLoanCanceled       = "loans.canceled"
	EventTypeLoanRepaid         = "loans.repaid"
	EventTypeLoanAccepted       = "loans.accepted"
	EventTypeLoanRefunded       = "loans.refunded"
	EventTypeReferrerSaved      = "loans.referrer_saved"
	EventTypeParametersModified = "loans.parameters_modified"
)

// NewLoanCreatedEvent returns the payload emitted when a lender funds a loan.
func NewLoanCreatedEvent(l *Loan) *types.Event { return newLoanEvent(EventTypeLoanCreated, l) }

// NewLoanApprovedEvent returns the payload emitted when a borrower is
// assigned.
func NewLoanApprovedEvent(l *Loan) *types.Event { return newLoanEvent(EventTypeLoanApproved, l) }

// NewLoanWithdrawnEvent carries secretA1 so the counterparty can seize
// collateral with it if the loan is never repaid.
func NewLoanWithdrawnEvent(l *Loan) *types.Event {
	evt := newLoanEvent(EventTypeLoanWithdrawn, l)
	evt.Attributes["secretA1"] = hexSecret(l.SecretA1)
	return evt
}

func NewLoanCanceledEvent(l *Loan) *types.Event {
	evt := newLoanEvent(EventTypeLoanCanceled, l)
	evt.Attributes["secretB1"] = hexSecret(l.SecretB1)
	return evt
}

func NewLoanRepaidEvent(l *Loan) *types.Event { return newLoanEvent(EventTypeLoanRepaid, l) }

// NewLoanAcceptedEvent carries the revealed B1 secret the borrower needs to
// unlock collateral, plus the interest split.
func NewLoanAcceptedEvent(l *Loan, referrer ethcommon.Address, fee string) *types.Event {
	evt := newLoanEvent(EventTypeLoanAccepted, l)
	if len(l.SecretB1) > 0 {
		evt.Attributes["secretB1"] = hexSecret(l.SecretB1)
	}
	if len(l.SecretDelegateB1) > 0 {
		evt.Attributes["secretDelegateB1"] = hexSecret(l.SecretDelegateB1)
	}
	if referrer != (ethcommon.Address{}) {
		evt.Attributes["referrer"] = referrer.Hex()
		evt.Attributes["referralFee"] = fee
	}
	return evt
}

func NewLoanRefundedEvent(l *Loan) *types.Event { return newLoanEvent(EventTypeLoanRefunded, l) }

// NewReferrerSavedEvent is emitted once per referred account.
func NewReferrerSavedEvent(account, referrer ethcommon.Address) *types.Event {
	return &types.Event{
		Type: EventTypeReferrerSaved,
		Attributes: map[string]string{
			"account":  account.Hex(),
			"referrer": referrer.Hex(),
		},
	}
}

func NewParametersModifiedEvent(param Param, p Params) *types.Event {
	return &types.Event{
		Type: EventTypeParametersModified,
		Attributes: map[string]string{
			"param":                  string(param),
			"loanExpirationPeriod":   strconv.FormatUint(p.LoanExpirationPeriod, 10),
			"acceptExpirationPeriod": strconv.FormatUint(p.AcceptExpirationPeriod, 10),
		},
	}
}

func newLoanEvent(eventType string, l *Loan) *types.Event {
	attrs := map[string]string{}
	if l != nil {
		attrs["id"] = strconv.FormatUint(l.ID, 10)
		attrs["state"] = l.State.String()
		attrs["lender"] = l.Lender.Hex()
		attrs["token"] = l.Token.Hex()
		attrs["principal"] = l.Principal.String()
		attrs["interest"] = l.Interest.String()
		if l.Borrower != (ethcommon.Address{}) {
			attrs["borrower"] = l.Borrower.Hex()
		}
		if l.LoanExpiry > 0 {
			attrs["loanExpiry"] = strconv.FormatInt(l.LoanExpiry, 10)
			attrs["acceptExpiry"] = strconv.FormatInt(l.AcceptExpiry, 10)
		}
		if l.MoneyMarket != (ethcommon.Address{}) {
			attrs["moneyMarket"] = l.MoneyMarket.Hex()
		}
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}

func hexSecret(secret []byte) string {
	return "0x" + hex.EncodeToString(secret)
}
