package collateral

import (
	"math/big"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"

	"crosslend/core/events"
	"crosslend/core/types"
	"crosslend/native/common"
)

// PriceNormalization lifts an 8-decimal feed answer onto the 18-decimal
// fixed point used by the escrow.
var PriceNormalization = big.NewInt(10_000_000_000)

// PriceFeed is the single read consumed from the oracle.
type PriceFeed interface {
	LatestAnswer() (*big.Int, error)
}

// FeedResolver returns the feed deployed at addr.
type FeedResolver func(addr ethcommon.Address) (PriceFeed, error)

// Bank moves native value between accounts.
type Bank interface {
	BalanceOf(account ethcommon.Address) (*big.Int, error)
	Transfer(from, to ethcommon.Address, amount *big.Int) error
}

type engineState interface {
	common.AuthorityStore
	CollateralGet(id uint64) (*Position, bool, error)
	CollateralPut(*Position) error
	CollateralNextID() (uint64, error)
	AccountPositionsAppend(account ethcommon.Address, id uint64) error
	AccountPositions(account ethcommon.Address) ([]uint64, error)
	CollateralParams() (Params, error)
	CollateralParamsPut(Params) error
}

// Engine is the collateral escrow. It never calls the loan ledger; the two
// are tied together only by the shared secret commitments and by the lock
// period outlasting the loan's accept window.
type Engine struct {
	state   engineState
	emitter events.Emitter
	nowFn   func() int64
	feeds   FeedResolver
	bank    Bank
	escrow  ethcommon.Address
	scheme  common.Scheme
}

// NewEngine returns an escrow with a no-op emitter, the wall clock and the
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

// SetFeeds configures how the configured price feed address resolves.
func (e *Engine) SetFeeds(resolve FeedResolver) { e.feeds = resolve }

// SetBank configures the native value ledger.
func (e *Engine) SetBank(bank Bank) { e.bank = bank }

// SetEscrowAccount configures the account holding locked collateral.
func (e *Engine) SetEscrowAccount(addr ethcommon.Address) { e.escrow = addr }

// SetScheme configures the hash binding secrets to commitments.
func (e *Engine) SetScheme(scheme common.Scheme) {
	if scheme == "" {
		scheme = common.DefaultScheme
	}
	e.scheme = scheme
}

// SetNowFunc overrides the time source used by the engine.
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
	return common.Admin{Module: common.ModuleCollateral, Store: e.state, Emit: e.emit}
}

func (e *Engine) ready() error {
	switch {
	case e == nil || e.state == nil:
		return errNilState
	case e.bank == nil:
		return errNilBank
	case e.escrow == (ethcommon.Address{}):
		return errNilEscrow
	}
	return nil
}

func (e *Engine) loadPosition(id uint64) (*Position, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	pos, ok, err := e.state.CollateralGet(id)
	if err != nil {
		return nil, err
	}
	if !ok || pos == nil {
		return nil, ErrPositionNotFound
	}
	if !pos.State.Valid() {
		return nil, errInvalidRecord
	}
	return pos.Clone(), nil
}

// latestPrice reads the configured feed once and normalises the answer.
func (e *Engine) latestPrice(params Params) (*big.Int, error) {
	if e.feeds == nil {
		return nil, errNilFeeds
	}
	feed, err := e.feeds(params.PriceFeed)
	if err != nil {
		return nil, err
	}
	answer, err := feed.LatestAnswer()
	if err != nil {
		return nil, err
	}
	if answer == nil || answer.Sign() <= 0 {
		return nil, ErrInvalidPrice
	}
	return common.Mul(answer, PriceNormalization)
}

// CollateralValue returns collateral × 100e18 / ratio × price.
func CollateralValue(collateral, ratio, price *big.Int) (*big.Int, error) {
	base, err := common.MulDiv(collateral, common.HundredWAD, ratio)
	if err != nil {
		return nil, err
	}
	return common.Mul(base, price)
}

// SeizableCollateral splits locked collateral at price into the part owed to
// the lender and the residual returned to the borrower. The parts always sum
// to collateral.
func SeizableCollateral(collateral, value, price *big.Int) (seizable, residual *big.Int, err error) {
	seizable, err = common.Div(value, price)
	if err != nil {
		return nil, nil, err
	}
	if seizable.Cmp(collateral) > 0 {
		seizable = new(big.Int).Set(collateral)
	}
	return seizable, new(big.Int).Sub(collateral, seizable), nil
}

// LockCollateral escrows value from the borrower against a loan on the
// counterparty ledger, pricing it at the current oracle answer.
func (e *Engine) LockCollateral(borrower ethcommon.Address, value *big.Int, req LockRequest) (*Position, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := e.admin().RequireEnabled(); err != nil {
		return nil, err
	}
	if common.IsZero(value) || value.Sign() < 0 {
		return nil, ErrInvalidCollateralAmount
	}
	if req.Lender == (ethcommon.Address{}) {
		return nil, ErrInvalidLender
	}
	if req.SecretHashA1 == (ethcommon.Hash{}) || req.SecretHashB1 == (ethcommon.Hash{}) {
		return nil, ErrInvalidSecretHash
	}
	params, err := e.state.CollateralParams()
	if err != nil {
		return nil, err
	}
	price, err := e.latestPrice(params)
	if err != nil {
		return nil, err
	}
	collateralValue, err := CollateralValue(value, params.CollateralizationRatio, price)
	if err != nil {
		return nil, err
	}

	if err := e.bank.Transfer(borrower, e.escrow, value); err != nil {
		return nil, err
	}
	id, err := e.state.CollateralNextID()
	if err != nil {
		return nil, err
	}
	now := e.now()
	pos := &Position{
		ID:                      id,
		Borrower:                borrower,
		Lender:                  req.Lender,
		SecretHashA1:            req.SecretHashA1,
		SecretHashB1:            req.SecretHashB1,
		CounterpartyBorrower:    req.CounterpartyBorrower,
		CounterpartyLoanID:      req.CounterpartyLoanID,
		CounterpartyAssetSymbol: req.CounterpartyAssetSymbol,
		Collateral:              new(big.Int).Set(value),
		LockPrice:               price,
		LiquidationPrice:        new(big.Int).Set(price),
		CollateralValue:         collateralValue,
		LoanExpiry:              now + int64(params.LoanExpirationPeriod),
		CreatedAt:               now,
		State:                   PositionStateLocked,
	}
	if err := e.state.CollateralPut(pos); err != nil {
		return nil, err
	}
	if err := e.state.AccountPositionsAppend(borrower, id); err != nil {
		return nil, err
	}
	if err := e.state.AccountPositionsAppend(req.Lender, id); err != nil {
		return nil, err
	}
	e.emit(NewLockedEvent(pos))
	return pos.Clone(), nil
}

// UnlockCollateralAndCloseLoan returns the full collateral to the borrower
// against secretB1, which the lender revealed when accepting repayment.
func (e *Engine) UnlockCollateralAndCloseLoan(id uint64, secretB1 []byte) (*Position, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	pos, err := e.loadPosition(id)
	if err != nil {
		return nil, err
	}
	if pos.State != PositionStateLocked {
		return nil, ErrCollateralNotLocked
	}
	if e.now() >= pos.LoanExpiry {
		return nil, ErrLoanPeriodExpired
	}
	if !e.scheme.Matches(secretB1, pos.SecretHashB1) {
		return nil, ErrInvalidSecretB1
	}
	returned := common.CloneBig(pos.Collateral)
	if err := e.bank.Transfer(e.escrow, pos.Borrower, returned); err != nil {
		return nil, err
	}
	pos.SecretB1 = append([]byte(nil), secretB1...)
	pos.Collateral = big.NewInt(0)
	pos.State = PositionStateClosedCooperative
	if err := e.state.CollateralPut(pos); err != nil {
		return nil, err
	}
	e.emit(NewUnlockedEvent(pos, returned))
	return pos.Clone(), nil
}

// SeizeCollateral pays the lender the collateral worth the locked value at the
// fresh oracle price and returns the residual to the borrower. It opens once
// the lock period is over and takes secretA1, which the borrower revealed
// when withdrawing principal.
func (e *Engine) SeizeCollateral(id uint64, secretA1 []byte) (*Position, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	pos, err := e.loadPosition(id)
	if err != nil {
		return nil, err
	}
	if pos.State != PositionStateLocked {
		return nil, ErrCollateralNotLocked
	}
	if e.now() < pos.LoanExpiry {
		return nil, ErrLoanPeriodActive
	}
	if !e.scheme.Matches(secretA1, pos.SecretHashA1) {
		return nil, ErrInvalidSecretA1
	}
	params, err := e.state.CollateralParams()
	if err != nil {
		return nil, err
	}
	price, err := e.latestPrice(params)
	if err != nil {
		return nil, err
	}
	seizable, residual, err := SeizableCollateral(pos.Collateral, pos.CollateralValue, price)
	if err != nil {
		return nil, err
	}
	if err := e.bank.Transfer(e.escrow, pos.Lender, seizable); err != nil {
		return nil, err
	}
	if err := e.bank.Transfer(e.escrow, pos.Borrower, residual); err != nil {
		return nil, err
	}
	pos.SecretA1 = append([]byte(nil), secretA1...)
	pos.LiquidationPrice = price
	pos.Collateral = big.NewInt(0)
	pos.State = PositionStateSeizedOpen
	if err := e.state.CollateralPut(pos); err != nil {
		return nil, err
	}
	e.emit(NewSeizedEvent(pos, seizable))
	e.emit(NewRefundableUnlockedEvent(pos, residual))
	return pos.Clone(), nil
}

// FetchPosition returns a copy of the position.
func (e *Engine) FetchPosition(id uint64) (*Position, error) {
	return e.loadPosition(id)
}

// GetAccountPositions lists the positions an account is borrower or lender of.
func (e *Engine) GetAccountPositions(account ethcommon.Address) ([]uint64, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.state.AccountPositions(account)
}
