package loans

import (
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"

	"crosslend/native/common"
)

// LoanState enumerates the lifecycle of a loan. The numeric values are part
// of the wire format of emitted events and persisted records.
type LoanState uint8

const (
	LoanStateUnknown LoanState = iota
	LoanStateFunded
	LoanStateApproved
	LoanStateWithdrawn
	LoanStateRepaid
	LoanStateRefunded
	LoanStateAccepted
	LoanStateCanceled
)

// Valid reports whether s is a known, non-zero state.
func (s LoanState) Valid() bool {
	return s >= LoanStateFunded && s <= LoanStateCanceled
}

// Terminal reports whether no further transition is possible from s.
func (s LoanState) Terminal() bool {
	switch s {
	case LoanStateRefunded, LoanStateAccepted, LoanStateCanceled:
		return true
	default:
		return false
	}
}

func (s LoanState) String() string {
	switch s {
	case LoanStateFunded:
		return "funded"
	case LoanStateApproved:
		return "approved"
	case LoanStateWithdrawn:
		return "withdrawn"
	case LoanStateRepaid:
		return "repaid"
	case LoanStateRefunded:
		return "refunded"
	case LoanStateAccepted:
		return "accepted"
	case LoanStateCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Loan is the escrow record of one principal. Borrower and SecretHashA1 stay
// zero until the lender approves a borrower. Revealed secrets are recorded as
// they are used.
type Loan struct {
	ID                   uint64
	Borrower             ethcommon.Address
	Lender               ethcommon.Address
	LenderDelegate       ethcommon.Address
	SecretHashA1         ethcommon.Hash
	SecretHashB1         ethcommon.Hash
	SecretHashDelegateB1 ethcommon.Hash
	SecretA1             []byte
	SecretB1             []byte
	SecretDelegateB1     []byte
	Principal            *big.Int
	Interest             *big.Int
	Token                ethcommon.Address
	LoanExpiry           int64
	AcceptExpiry         int64
	CreatedAt            int64
	// PayoutIdentity is where the lender receives value on the counterparty
	// chain, opaque to this ledger.
	PayoutIdentity string
	Referrer       ethcommon.Address
	MoneyMarket    ethcommon.Address
	State          LoanState
}

// Clone returns a deep copy of the loan.
func (l *Loan) Clone() *Loan {
	if l == nil {
		return nil
	}
	clone := *l
	clone.SecretA1 = append([]byte(nil), l.SecretA1...)
	clone.SecretB1 = append([]byte(nil), l.SecretB1...)
	clone.SecretDelegateB1 = append([]byte(nil), l.SecretDelegateB1...)
	clone.Principal = common.CloneBig(l.Principal)
	clone.Interest = common.CloneBig(l.Interest)
	return &clone
}

// Repayment returns principal + interest.
func (l *Loan) Repayment() *big.Int {
	return new(big.Int).Add(common.CloneBig(l.Principal), common.CloneBig(l.Interest))
}

// CreateLoanRequest carries the lender supplied terms of a new loan.
type CreateLoanRequest struct {
	LenderDelegate       ethcommon.Address
	SecretHashB1         ethcommon.Hash
	SecretHashDelegateB1 ethcommon.Hash
	Principal            *big.Int
	Token                ethcommon.Address
	PayoutIdentity       string
	Referrer             ethcommon.Address
}
