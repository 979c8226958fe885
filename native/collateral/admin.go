package collateral

import (
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"
)

// AddAuthorization grants account administrator rights over the escrow.
func (e *Engine) AddAuthorization(caller, account ethcommon.Address) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	return e.admin().AddAuthorization(caller, account)
}

// RemoveAuthorization revokes account's administrator rights.
func (e *Engine) RemoveAuthorization(caller, account ethcommon.Address) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	return e.admin().RemoveAuthorization(caller, account)
}

// EnableContract re-opens locking and administration.
func (e *Engine) EnableContract(caller ethcommon.Address) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	return e.admin().EnableContract(caller)
}

// DisableContract stops new locks. Locked positions can still be unlocked or
// seized.
func (e *Engine) DisableContract(caller ethcommon.Address) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	return e.admin().DisableContract(caller)
}

// ModifyLoanParameters changes the lock period, the collateralization ratio
// or the price feed. The feed is given as the integer form of its address.
func (e *Engine) ModifyLoanParameters(caller ethcommon.Address, param Param, value *big.Int) (Params, error) {
	if e == nil || e.state == nil {
		return Params{}, errNilState
	}
	if err := e.admin().Require(caller); err != nil {
		return Params{}, err
	}
	current, err := e.state.CollateralParams()
	if err != nil {
		return Params{}, err
	}
	next, err := current.with(param, value)
	if err != nil {
		return Params{}, err
	}
	if err := e.state.CollateralParamsPut(next); err != nil {
		return Params{}, err
	}
	e.emit(NewParametersModifiedEvent(param, next))
	return next.Clone(), nil
}

// Params returns the configuration currently in force.
func (e *Engine) Params() (Params, error) {
	if e == nil || e.state == nil {
		return Params{}, errNilState
	}
	params, err := e.state.CollateralParams()
	if err != nil {
		return Params{}, err
	}
	return params.Clone(), nil
}
