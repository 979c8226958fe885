package loans

import (
	"math/big"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"

	"crosslend/core/events"
	"crosslend/core/types"
	"crosslend/native/assets"
	"crosslend/native/common"
	"crosslend/native/moneymarket"
)

// Token is the fungible token capability the ledger custodies principal
// through. Acting accounts are explicit.
type Token interface {
	BalanceOf(account ethcommon.Address) (*big.Int, error)
	Transfer(from, to ethcommon.Address, amount *big.Int) error
	TransferFrom(spender, from, to ethcommon.Address, amount *big.Int) error
	Approve(owner, spender ethcommon.Address, amount *big.Int) error
	Allowance(owner, spender ethcommon.Address) (*big.Int, error)
}

// TokenResolver returns the token deployed at addr.
type TokenResolver func(addr ethcommon.Address) (Token, error)

type engineState interface {
	common.AuthorityStore
	LoanGet(id uint64) (*Loan, bool, error)
	LoanPut(*Loan) error
	LoanNextID() (uint64, error)
	AccountLoansAppend(account ethcommon.Address, id uint64) error
	AccountLoans(account ethcommon.Address) ([]uint64, error)
	ReferrerGet(account ethcommon.Address) (ethcommon.Address, bool, error)
	ReferrerPut(account, referrer ethcommon.Address) error
	LoanParams() (Params, error)
	LoanParamsPut(Params) error
}

// Engine is the loan ledger state machine. It holds principal at the escrow
// account and releases it against secret reveals inside the loan windows.
// Calls are expected to be serialised by the host; the engine takes no locks.
type Engine struct {
	state   engineState
	emitter events.Emitter
	nowFn   func() int64
	assets  *assets.Registry
	markets *moneymarket.Adapter
	tokens  TokenResolver
	escrow  ethcommon.Address
	scheme  common.Scheme
}

// NewEngine returns a ledger with a no-op emitter, the wall clock and the
// default commitment scheme.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
		scheme:  common.DefaultScheme,
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetAssets configures the asset registry consulted at loan creation.
func (e *Engine) SetAssets(registry *assets.Registry) { e.assets = registry }

// SetMoneyMarkets configures optional yield routing of escrowed principal.
func (e *Engine) SetMoneyMarkets(adapter *moneymarket.Adapter) { e.markets = adapter }

// SetTokens configures how token addresses resolve to ledgers.
func (e *Engine) SetTokens(resolve TokenResolver) { e.tokens = resolve }

// SetEscrowAccount configures the account holding escrowed principal.
func (e *Engine) SetEscrowAccount(addr ethcommon.Address) { e.escrow = addr }

// SetScheme configures the hash binding secrets to commitments.
func (e *Engine) SetScheme(scheme common.Scheme) {
	if scheme == "" {
		scheme = common.DefaultScheme
	}
	e.scheme = scheme
}

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetEmitter configures the event emitter used by the engine. Passing nil resets
// the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(evt *types.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(events.Wrap(evt))
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) admin() common.Admin {
	return common.Admin{Module: common.ModuleLoans, Store: e.state, Emit: e.emit}
}

func (e *Engine) ready() error {
	switch {
	case e == nil || e.state == nil:
		return errNilState
	case e.assets == nil:
		return errNilAssets
	case e.tokens == nil:
		return errNilTokens
	case e.escrow == (ethcommon.Address{}):
		return errNilEscrow
	}
	return nil
}

func (e *Engine) loadLoan(id uint64) (*Loan, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	loan, ok, err := e.state.LoanGet(id)
	if err != nil {
		return nil, err
	}
	if !ok || loan == nil {
		return nil, ErrLoanNotFound
	}
	if !loan.State.Valid() {
		return nil, errInvalidRecord
	}
	return loan.Clone(), nil
}

func (e *Engine) token(addr ethcommon.Address) (Token, error) {
	if e.tokens == nil {
		return nil, errNilTokens
	}
	return e.tokens(addr)
}

// CreateLoan escrows principal from the lender and opens a loan in the Funded
// state. When a money market is active for the token the principal is
// deposited into it.
func (e *Engine) CreateLoan(lender ethcommon.Address, req CreateLoanRequest) (*Loan, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := e.admin().RequireEnabled(); err != nil {
		return nil, err
	}
	if req.Token == (ethcommon.Address{}) {
		return nil, ErrInvalidTokenAddress
	}
	asset, err := e.assets.GetAssetType(req.Token)
	if err != nil {
		if common.KindOf(err) != common.ErrNotFound {
			return nil, err
		}
		return nil, ErrAssetTypeDisabled
	}
	if !asset.Enabled {
		return nil, ErrAssetTypeDisabled
	}
	if req.SecretHashB1 == (ethcommon.Hash{}) {
		return nil, ErrInvalidSecretHash
	}
	if common.IsZero(req.Principal) || req.Principal.Sign() < 0 {
		return nil, ErrInvalidPrincipalAmount
	}
	if !asset.InPrincipalRange(req.Principal) {
		return nil, ErrInvalidPrincipalRange
	}
	if req.Referrer != (ethcommon.Address{}) && req.Referrer == lender {
		return nil, ErrReferrerIsReferral
	}
	interest, err := assets.Interest(req.Principal, asset.InterestRate())
	if err != nil {
		return nil, err
	}
	tok, err := e.token(req.Token)
	if err != nil {
		return nil, err
	}
	allowance, err := tok.Allowance(lender, e.escrow)
	if err != nil {
		return nil, err
	}
	if allowance.Cmp(req.Principal) < 0 {
		return nil, ErrInsufficientAllowance
	}
	var market ethcommon.Address
	if e.markets != nil {
		if market, err = e.markets.ActiveMarket(req.Token); err != nil {
			return nil, err
		}
	}

	if err := tok.TransferFrom(e.escrow, lender, e.escrow, req.Principal); err != nil {
		return nil, err
	}
	if market != (ethcommon.Address{}) {
		if _, err := e.markets.Deposit(e.escrow, req.Token, tok, market, req.Principal); err != nil {
			return nil, err
		}
	}
	id, err := e.state.LoanNextID()
	if err != nil {
		return nil, err
	}
	loan := &Loan{
		ID:                   id,
		Lender:               lender,
		LenderDelegate:       req.LenderDelegate,
		SecretHashB1:         req.SecretHashB1,
		SecretHashDelegateB1: req.SecretHashDelegateB1,
		Principal:            new(big.Int).Set(req.Principal),
		Interest:             interest,
		Token:                req.Token,
		CreatedAt:            e.now(),
		PayoutIdentity:       req.PayoutIdentity,
		MoneyMarket:          market,
		State:                LoanStateFunded,
	}
	saved, err := e.saveReferrer(lender, req.Referrer)
	if err != nil {
		return nil, err
	}
	if referrer, ok, err := e.state.ReferrerGet(lender); err != nil {
		return nil, err
	} else if ok {
		loan.Referrer = referrer
	}
	if err := e.state.LoanPut(loan); err != nil {
		return nil, err
	}
	if err := e.state.AccountLoansAppend(lender, id); err != nil {
		return nil, err
	}
	e.emit(NewLoanCreatedEvent(loan))
	if saved {
		e.emit(NewReferrerSavedEvent(lender, req.Referrer))
	}
	return loan.Clone(), nil
}

// SetBorrowerAndApprove assigns the borrower and its secret commitment and
// starts the loan windows. Only the lender or its delegate may call it.
func (e *Engine) SetBorrowerAndApprove(caller ethcommon.Address, id uint64, borrower ethcommon.Address, secretHashA1 ethcommon.Hash) (*Loan, error) {
	loan, err := e.loadLoan(id)
	if err != nil {
		return nil, err
	}
	if caller != loan.Lender && (loan.LenderDelegate == (ethcommon.Address{}) || caller != loan.LenderDelegate) {
		return nil, ErrNotAuthorized
	}
	if loan.State != LoanStateFunded {
		return nil, ErrLoanNotFunded
	}
	if borrower == (ethcommon.Address{}) {
		return nil, ErrInvalidBorrower
	}
	if secretHashA1 == (ethcommon.Hash{}) {
		return nil, ErrInvalidSecretHash
	}
	params, err := e.state.LoanParams()
	if err != nil {
		return nil, err
	}
	now := e.now()
	loan.Borrower = borrower
	loan.SecretHashA1 = secretHashA1
	loan.LoanExpiry = now + int64(params.LoanExpirationPeriod)
	loan.AcceptExpiry = loan.LoanExpiry + int64(params.AcceptExpirationPeriod)
	loan.State = LoanStateApproved
	if err := e.state.LoanPut(loan); err != nil {
		return nil, err
	}
	if err := e.state.AccountLoansAppend(borrower, id); err != nil {
		return nil, err
	}
	e.emit(NewLoanApprovedEvent(loan))
	return loan.Clone(), nil
}

// Withdraw releases principal to the borrower against secretA1.
func (e *Engine) Withdraw(id uint64, secretA1 []byte) (*Loan, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	loan, err := e.loadLoan(id)
	if err != nil {
		return nil, err
	}
	if loan.State != LoanStateApproved {
		return nil, ErrLoanNotApproved
	}
	if e.now() >= loan.LoanExpiry {
		return nil, ErrLoanExpired
	}
	if !e.scheme.Matches(secretA1, loan.SecretHashA1) {
		return nil, ErrInvalidSecretA1
	}
	if err := e.release(loan, loan.Borrower, loan.Principal); err != nil {
		return nil, err
	}
	loan.SecretA1 = append([]byte(nil), secretA1...)
	loan.State = LoanStateWithdrawn
	if err := e.state.LoanPut(loan); err != nil {
		return nil, err
	}
	e.emit(NewLoanWithdrawnEvent(loan))
	return loan.Clone(), nil
}

// CancelLoanBeforePrincipalWithdraw returns principal to the lender against
// secretB1 while the borrower has not withdrawn.
func (e *Engine) CancelLoanBeforePrincipalWithdraw(id uint64, secretB1 []byte) (*Loan, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	loan, err := e.loadLoan(id)
	if err != nil {
		return nil, err
	}
	switch loan.State {
	case LoanStateApproved:
	case LoanStateFunded:
		return nil, ErrLoanNotApproved
	default:
		return nil, ErrPrincipalWithdrawn
	}
	if !e.scheme.Matches(secretB1, loan.SecretHashB1) {
		return nil, ErrInvalidSecretB1
	}
	if err := e.release(loan, loan.Lender, loan.Principal); err != nil {
		return nil, err
	}
	loan.SecretB1 = append([]byte(nil), secretB1...)
	loan.Principal = big.NewInt(0)
	loan.State = LoanStateCanceled
	if err := e.state.LoanPut(loan); err != nil {
		return nil, err
	}
	e.emit(NewLoanCanceledEvent(loan))
	return loan.Clone(), nil
}

// Payback pulls principal + interest from the borrower.
func (e *Engine) Payback(caller ethcommon.Address, id uint64) (*Loan, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	loan, err := e.loadLoan(id)
	if err != nil {
		return nil, err
	}
	if loan.State != LoanStateWithdrawn {
		return nil, ErrInvalidLoanState
	}
	if e.now() >= loan.LoanExpiry {
		return nil, ErrLoanExpired
	}
	if caller != loan.Borrower {
		return nil, ErrNotAuthorized
	}
	tok, err := e.token(loan.Token)
	if err != nil {
		return nil, err
	}
	repayment := loan.Repayment()
	allowance, err := tok.Allowance(loan.Borrower, e.escrow)
	if err != nil {
		return nil, err
	}
	if allowance.Cmp(repayment) < 0 {
		return nil, ErrInsufficientAllowance
	}
	if err := tok.TransferFrom(e.escrow, loan.Borrower, e.escrow, repayment); err != nil {
		return nil, err
	}
	loan.State = LoanStateRepaid
	if err := e.state.LoanPut(loan); err != nil {
		return nil, err
	}
	e.emit(NewLoanRepaidEvent(loan))
	return loan.Clone(), nil
}

// AcceptRepayment closes the loan in the lender's favour against secretB1 or
// the delegate's secret. Interest is split with the lender's referrer when
// one is recorded.
func (e *Engine) AcceptRepayment(id uint64, secret []byte) (*Loan, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	loan, err := e.loadLoan(id)
	if err != nil {
		return nil, err
	}
	if loan.State != LoanStateRepaid {
		return nil, ErrLoanNotRepaid
	}
	if e.now() >= loan.AcceptExpiry {
		return nil, ErrAcceptPeriodExpired
	}
	byDelegate := false
	switch {
	case e.scheme.Matches(secret, loan.SecretHashB1):
	case e.scheme.Matches(secret, loan.SecretHashDelegateB1):
		byDelegate = true
	default:
		return nil, ErrInvalidSecretB1
	}

	referrer, hasReferrer, err := e.state.ReferrerGet(loan.Lender)
	if err != nil {
		return nil, err
	}
	fee := big.NewInt(0)
	if hasReferrer {
		asset, err := e.assets.GetAssetType(loan.Token)
		if err != nil {
			return nil, err
		}
		if fee, err = assets.ReferralFee(loan.Interest, asset.ReferralFeeRate); err != nil {
			return nil, err
		}
	}
	tok, err := e.token(loan.Token)
	if err != nil {
		return nil, err
	}
	lenderPayout := new(big.Int).Sub(loan.Repayment(), fee)
	if err := tok.Transfer(e.escrow, loan.Lender, lenderPayout); err != nil {
		return nil, err
	}
	if fee.Sign() > 0 {
		if err := tok.Transfer(e.escrow, referrer, fee); err != nil {
			return nil, err
		}
	}
	if byDelegate {
		loan.SecretDelegateB1 = append([]byte(nil), secret...)
	} else {
		loan.SecretB1 = append([]byte(nil), secret...)
	}
	loan.State = LoanStateAccepted
	if err := e.state.LoanPut(loan); err != nil {
		return nil, err
	}
	if !hasReferrer {
		referrer = ethcommon.Address{}
	}
	e.emit(NewLoanAcceptedEvent(loan, referrer, fee.String()))
	return loan.Clone(), nil
}

// RefundPayback returns the repayment to the borrower once the accept window
// has passed without the lender accepting.
func (e *Engine) RefundPayback(caller ethcommon.Address, id uint64) (*Loan, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	loan, err := e.loadLoan(id)
	if err != nil {
		return nil, err
	}
	if caller != loan.Borrower {
		return nil, ErrNotAuthorized
	}
	if loan.State != LoanStateRepaid {
		return nil, ErrLoanNotRepaid
	}
	if e.now() < loan.AcceptExpiry {
		return nil, ErrAcceptPeriodNotExpired
	}
	tok, err := e.token(loan.Token)
	if err != nil {
		return nil, err
	}
	if err := tok.Transfer(e.escrow, loan.Borrower, loan.Repayment()); err != nil {
		return nil, err
	}
	loan.Principal = big.NewInt(0)
	loan.Interest = big.NewInt(0)
	loan.State = LoanStateRefunded
	if err := e.state.LoanPut(loan); err != nil {
		return nil, err
	}
	e.emit(NewLoanRefundedEvent(loan))
	return loan.Clone(), nil
}

// release pays amount of the loan's token out of escrow, redeeming it from the
// money market the loan deposited into first.
func (e *Engine) release(loan *Loan, to ethcommon.Address, amount *big.Int) error {
	tok, err := e.token(loan.Token)
	if err != nil {
		return err
	}
	if loan.MoneyMarket != (ethcommon.Address{}) {
		if e.markets == nil {
			return moneymarket.ErrMarketUnavailable
		}
		if err := e.markets.Redeem(e.escrow, loan.Token, loan.MoneyMarket, amount); err != nil {
			return err
		}
	}
	return tok.Transfer(e.escrow, to, amount)
}

// FetchLoan returns a copy of the loan.
func (e *Engine) FetchLoan(id uint64) (*Loan, error) {
	return e.loadLoan(id)
}

// GetAccountLoans lists the loans an account takes part in, as lender or
// borrower, in the order it joined them.
func (e *Engine) GetAccountLoans(account ethcommon.Address) ([]uint64, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.state.AccountLoans(account)
}

// UserLoansCount returns len(GetAccountLoans(account)).
func (e *Engine) UserLoansCount(account ethcommon.Address) (uint64, error) {
	ids, err := e.GetAccountLoans(account)
	if err != nil {
		return 0, err
	}
	return uint64(len(ids)), nil
}
