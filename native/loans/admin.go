package loans

import (
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"
)

// AddAuthorization grants account administrator rights over the ledger, its
// asset registry and money markets.
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

// EnableContract re-opens loan creation and administration.
func (e *Engine) EnableContract(caller ethcommon.Address) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	return e.admin().EnableContract(caller)
}

// DisableContract stops loan creation and administration. Loans in flight
// can still progress.
func (e *Engine) DisableContract(caller ethcommon.Address) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	return e.admin().DisableContract(caller)
}

// ModifyLoanParameters changes one of the ledger windows. Loans already
// approved keep the expiries they were given.
func (e *Engine) ModifyLoanParameters(caller ethcommon.Address, param Param, value *big.Int) (Params, error) {
	if e == nil || e.state == nil {
		return Params{}, errNilState
	}
	if err := e.admin().Require(caller); err != nil {
		return Params{}, err
	}
	current, err := e.state.LoanParams()
	if err != nil {
		return Params{}, err
	}
	next, err := current.with(param, value)
	if err != nil {
		return Params{}, err
	}
	if err := e.state.LoanParamsPut(next); err != nil {
		return Params{}, err
	}
	e.emit(NewParametersModifiedEvent(param, next))
	return next, nil
}

// Params returns the windows currently in force.
func (e *Engine) Params() (Params, error) {
	if e == nil || e.state == nil {
		return Params{}, errNilState
	}
	return e.state.LoanParams()
}
