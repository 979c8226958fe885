package loans

import (
	ethcommon "github.com/ethereum/go-ethereum/common"
)

// SaveReferrer records referrer as the account's referrer. Self referrals and
// accounts that already have a referrer are ignored without error; the
// returned flag reports whether anything was recorded.
func (e *Engine) SaveReferrer(account, referrer ethcommon.Address) (bool, error) {
	if e == nil || e.state == nil {
		return false, errNilState
	}
	saved, err := e.saveReferrer(account, referrer)
	if err != nil {
		return false, err
	}
	if saved {
		e.emit(NewReferrerSavedEvent(account, referrer))
	}
	return saved, nil
}

// Referrer returns the referrer recorded for account.
func (e *Engine) Referrer(account ethcommon.Address) (ethcommon.Address, bool, error) {
	if e == nil || e.state == nil {
		return ethcommon.Address{}, false, errNilState
	}
	return e.state.ReferrerGet(account)
}

func (e *Engine) saveReferrer(account, referrer ethcommon.Address) (bool, error) {
	if referrer == (ethcommon.Address{}) || referrer == account {
		return false, nil
	}
	if _, exists, err := e.state.ReferrerGet(account); err != nil {
		return false, err
	} else if exists {
		return false, nil
	}
	if err := e.state.ReferrerPut(account, referrer); err != nil {
		return false, err
	}
	return true, nil
}
