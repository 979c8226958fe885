package moneymarket

import (
	"errors"
	"fmt"
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"

	"crosslend/core/events"
	"crosslend/core/types"
	"crosslend/native/common"
)

var (
	ErrInvalidTokenAddress  = common.NewError(common.ErrValidation, common.ModuleLoans, "invalid-token-address")
	ErrInvalidMarketAddress = common.NewError(common.ErrValidation, common.ModuleLoans, "invalid-market-address")
	ErrMarketExists         = common.NewError(common.ErrState, common.ModuleLoans, "money-market-exists")
	ErrMarketNotFound       = common.NewError(common.ErrNotFound, common.ModuleLoans, "money-market-not-found")
	ErrMarketUnavailable    = common.NewError(common.ErrState, common.ModuleLoans, "money-market-unavailable")

	errNilState    = errors.New("money market adapter: state not configured")
	errNilResolver = errors.New("money market adapter: market resolver not configured")
)

type adapterState interface {
	common.AuthorityStore
	MoneyMarketGet(token ethcommon.Address) (*MoneyMarket, bool, error)
	MoneyMarketPut(*MoneyMarket) error
}

// Adapter routes escrowed principal through a configured yield market. The
// loan ledger calls Deposit when it takes custody and Redeem when it pays
// principal out.
type Adapter struct {
	state   adapterState
	resolve Resolver
	emitter events.Emitter
}

// NewAdapter returns an adapter with a no-op emitter.
func NewAdapter() *Adapter {
	return &Adapter{emitter: events.NoopEmitter{}}
}

// SetState configures the state backend.
func (a *Adapter) SetState(state adapterState) { a.state = state }

// SetResolver configures how market addresses map to implementations.
func (a *Adapter) SetResolver(resolve Resolver) { a.resolve = resolve }

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (a *Adapter) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		a.emitter = events.NoopEmitter{}
		return
	}
	a.emitter = emitter
}

func (a *Adapter) emit(evt *types.Event) {
	if a == nil || a.emitter == nil || evt == nil {
		return
	}
	a.emitter.Emit(events.Wrap(evt))
}

func (a *Adapter) requireAdmin(caller ethcommon.Address) error {
	if a == nil || a.state == nil {
		return errNilState
	}
	return common.Admin{Module: common.ModuleLoans, Store: a.state}.Require(caller)
}

// AddMoneyMarket registers market for token. New markets start enabled.
func (a *Adapter) AddMoneyMarket(caller, token, market ethcommon.Address) (*MoneyMarket, error) {
	if err := a.requireAdmin(caller); err != nil {
		return nil, err
	}
	if token == (ethcommon.Address{}) {
		return nil, ErrInvalidTokenAddress
	}
	if market == (ethcommon.Address{}) {
		return nil, ErrInvalidMarketAddress
	}
	if _, exists, err := a.state.MoneyMarketGet(token); err != nil {
		return nil, err
	} else if exists {
		return nil, ErrMarketExists
	}
	record := &MoneyMarket{UnderlyingToken: token, Market: market, Enabled: true}
	if err := a.state.MoneyMarketPut(record); err != nil {
		return nil, err
	}
	a.emit(newMarketEvent(EventTypeMarketAdded, record))
	return record.Clone(), nil
}

// ModifyMoneyMarket points token at a different market. Loans created earlier
// keep redeeming from the market they deposited into.
func (a *Adapter) ModifyMoneyMarket(caller, token, market ethcommon.Address) (*MoneyMarket, error) {
	if err := a.requireAdmin(caller); err != nil {
		return nil, err
	}
	if market == (ethcommon.Address{}) {
		return nil, ErrInvalidMarketAddress
	}
	record, err := a.lookup(token)
	if err != nil {
		return nil, err
	}
	record.Market = market
	if err := a.state.MoneyMarketPut(record); err != nil {
		return nil, err
	}
	a.emit(newMarketEvent(EventTypeMarketModified, record))
	return record.Clone(), nil
}

// ToggleMoneyMarket enables or disables routing for token.
func (a *Adapter) ToggleMoneyMarket(caller, token ethcommon.Address, enabled bool) (*MoneyMarket, error) {
	if err := a.requireAdmin(caller); err != nil {
		return nil, err
	}
	record, err := a.lookup(token)
	if err != nil {
		return nil, err
	}
	record.Enabled = enabled
	if err := a.state.MoneyMarketPut(record); err != nil {
		return nil, err
	}
	a.emit(newMarketEvent(EventTypeMarketToggled, record))
	return record.Clone(), nil
}

// MoneyMarket returns the market configured for token.
func (a *Adapter) MoneyMarket(token ethcommon.Address) (*MoneyMarket, error) {
	if a == nil || a.state == nil {
		return nil, errNilState
	}
	return a.lookup(token)
}

// ActiveMarket returns the market deposits for token should be routed
// through, or the zero address when routing is off.
func (a *Adapter) ActiveMarket(token ethcommon.Address) (ethcommon.Address, error) {
	if a == nil || a.state == nil {
		return ethcommon.Address{}, nil
	}
	record, ok, err := a.state.MoneyMarketGet(token)
	if err != nil {
		return ethcommon.Address{}, err
	}
	if !ok || !record.Enabled {
		return ethcommon.Address{}, nil
	}
	return record.Market, nil
}

// Deposit moves amount of holder's underlying into market and returns the
// shares credited.
func (a *Adapter) Deposit(holder, token ethcommon.Address, approver Approver, market ethcommon.Address, amount *big.Int) (*big.Int, error) {
	ym, err := a.market(market)
	if err != nil {
		return nil, err
	}
	if approver == nil {
		return nil, fmt.Errorf("money market adapter: approver not configured")
	}
	if err := approver.Approve(holder, market, amount); err != nil {
		return nil, err
	}
	shares, err := ym.Mint(holder, amount)
	if err != nil {
		return nil, err
	}
	a.emit(newFlowEvent(EventTypeDeposited, holder, token, market, amount, shares))
	return shares, nil
}

// Redeem pays exactly amount of the underlying from market back to holder,
// regardless of any yield accrued on the holder's shares.
func (a *Adapter) Redeem(holder, token, market ethcommon.Address, amount *big.Int) error {
	ym, err := a.market(market)
	if err != nil {
		return err
	}
	burned, err := ym.RedeemUnderlying(holder, amount)
	if err != nil {
		return err
	}
	a.emit(newFlowEvent(EventTypeRedeemed, holder, token, market, amount, burned))
	return nil
}

func (a *Adapter) market(addr ethcommon.Address) (YieldMarket, error) {
	if a == nil || a.resolve == nil {
		return nil, errNilResolver
	}
	ym, err := a.resolve(addr)
	if err != nil {
		return nil, err
	}
	if ym == nil {
		return nil, ErrMarketUnavailable
	}
	return ym, nil
}

func (a *Adapter) lookup(token ethcommon.Address) (*MoneyMarket, error) {
	if token == (ethcommon.Address{}) {
		return nil, ErrInvalidTokenAddress
	}
	record, ok, err := a.state.MoneyMarketGet(token)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrMarketNotFound
	}
	return record.Clone(), nil
}
