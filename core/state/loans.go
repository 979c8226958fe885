package state

import (
	"errors"
	"fmt"
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"

	"crosslend/native/loans"
)

var errNilRecord = errors.New("state: nil record")

type storedLoan struct {
	ID                   uint64
	Borrower             [20]byte
	Lender               [20]byte
	LenderDelegate       [20]byte
	SecretHashA1         [32]byte
	SecretHashB1         [32]byte
	SecretHashDelegateB1 [32]byte
	SecretA1             []byte
	SecretB1             []byte
	SecretDelegateB1     []byte
	Principal            *big.Int
	Interest             *big.Int
	Token                [20]byte
	LoanExpiry           *big.Int
	AcceptExpiry         *big.Int
	CreatedAt            *big.Int
	PayoutIdentity       string
	Referrer             [20]byte
	MoneyMarket          [20]byte
	State                uint8
}

func newStoredLoan(l *loans.Loan) *storedLoan {
	return &storedLoan{
		ID:                   l.ID,
		Borrower:             l.Borrower,
		Lender:               l.Lender,
		LenderDelegate:       l.LenderDelegate,
		SecretHashA1:         l.SecretHashA1,
		SecretHashB1:         l.SecretHashB1,
		SecretHashDelegateB1: l.SecretHashDelegateB1,
		SecretA1:             l.SecretA1,
		SecretB1:             l.SecretB1,
		SecretDelegateB1:     l.SecretDelegateB1,
		Principal:            nonNil(l.Principal),
		Interest:             nonNil(l.Interest),
		Token:                l.Token,
		LoanExpiry:           big.NewInt(l.LoanExpiry),
		AcceptExpiry:         big.NewInt(l.AcceptExpiry),
		CreatedAt:            big.NewInt(l.CreatedAt),
		PayoutIdentity:       l.PayoutIdentity,
		Referrer:             l.Referrer,
		MoneyMarket:          l.MoneyMarket,
		State:                uint8(l.State),
	}
}

func (s *storedLoan) toLoan() (*loans.Loan, error) {
	state := loans.LoanState(s.State)
	if !state.Valid() {
		return nil, fmt.Errorf("loan %d: invalid stored state %d", s.ID, s.State)
	}
	return &loans.Loan{
		ID:                   s.ID,
		Borrower:             s.Borrower,
		Lender:               s.Lender,
		LenderDelegate:       s.LenderDelegate,
		SecretHashA1:         s.SecretHashA1,
		SecretHashB1:         s.SecretHashB1,
		SecretHashDelegateB1: s.SecretHashDelegateB1,
		SecretA1:             nilIfEmpty(s.SecretA1),
		SecretB1:             nilIfEmpty(s.SecretB1),
		SecretDelegateB1:     nilIfEmpty(s.SecretDelegateB1),
		Principal:            nonNil(s.Principal),
		Interest:             nonNil(s.Interest),
		Token:                s.Token,
		LoanExpiry:           nonNil(s.LoanExpiry).Int64(),
		AcceptExpiry:         nonNil(s.AcceptExpiry).Int64(),
		CreatedAt:            nonNil(s.CreatedAt).Int64(),
		PayoutIdentity:       s.PayoutIdentity,
		Referrer:             s.Referrer,
		MoneyMarket:          s.MoneyMarket,
		State:                state,
	}, nil
}

func nonNil(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

func nilIfEmpty(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return append([]byte(nil), b...)
}

// LoanGet loads a loan record.
func (m *Manager) LoanGet(id uint64) (*loans.Loan, bool, error) {
	var stored storedLoan
	ok, err := m.KVGet(idKey(loanRecordPrefix, id), &stored)
	if err != nil || !ok {
		return nil, ok, err
	}
	loan, err := stored.toLoan()
	if err != nil {
		return nil, false, err
	}
	return loan, true, nil
}

// LoanPut persists a loan record.
func (m *Manager) LoanPut(loan *loans.Loan) error {
	if loan == nil {
		return errNilRecord
	}
	if loan.LoanExpiry < 0 || loan.AcceptExpiry < 0 || loan.CreatedAt < 0 {
		return fmt.Errorf("loan %d: negative timestamp", loan.ID)
	}
	return m.KVPut(idKey(loanRecordPrefix, loan.ID), newStoredLoan(loan))
}

// LoanNextID allocates the next loan id.
func (m *Manager) LoanNextID() (uint64, error) {
	return m.nextID(loanNextIDKey)
}

// LoanCount reports how many loan ids have been allocated.
func (m *Manager) LoanCount() (uint64, error) {
	var current uint64
	_, err := m.KVGet(loanNextIDKey, &current)
	return current, err
}

// AccountLoansAppend indexes loan id under account.
func (m *Manager) AccountLoansAppend(account ethcommon.Address, id uint64) error {
	return m.appendID(addrKey(loanAccountPrefix, account), id)
}

// AccountLoans lists the loans indexed under account in creation order.
func (m *Manager) AccountLoans(account ethcommon.Address) ([]uint64, error) {
	return m.listIDs(addrKey(loanAccountPrefix, account))
}

// ReferrerGet returns the referrer recorded for account.
func (m *Manager) ReferrerGet(account ethcommon.Address) (ethcommon.Address, bool, error) {
	var ref [20]byte
	ok, err := m.KVGet(addrKey(loanReferrerPrefix, account), &ref)
	return ref, ok, err
}

// ReferrerPut records referrer for account.
func (m *Manager) ReferrerPut(account, referrer ethcommon.Address) error {
	var ref [20]byte = referrer
	return m.KVPut(addrKey(loanReferrerPrefix, account), ref)
}

// LoanParams returns the ledger windows, falling back to the defaults until
// they are first written.
func (m *Manager) LoanParams() (loans.Params, error) {
	var params loans.Params
	ok, err := m.KVGet(loanParamsKey, &params)
	if err != nil {
		return loans.Params{}, err
	}
	if !ok {
		return loans.DefaultParams(), nil
	}
	return params, nil
}

// LoanParamsPut persists the ledger windows.
func (m *Manager) LoanParamsPut(params loans.Params) error {
	return m.KVPut(loanParamsKey, &params)
}

// LoanPeriod returns the loan expiration period in force. The asset registry
// derives per-period rates from it.
func (m *Manager) LoanPeriod() (uint64, error) {
	params, err := m.LoanParams()
	if err != nil {
		return 0, err
	}
	return params.LoanExpirationPeriod, nil
}
