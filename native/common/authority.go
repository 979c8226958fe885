package common

import (
	"bytes"
	"fmt"
	"sort"

	ethcommon "github.com/ethereum/go-ethereum/common"

	"crosslend/core/types"
)

const (
	ReasonNotAuthorized      = "account-not-authorized"
	ReasonContractNotEnabled = "contract-not-enabled"
	ReasonInvalidAccount     = "invalid-account"
)

// Authority is the explicit administration record of one engine: the set of
// accounts allowed to mutate configuration and the contract enabled flag. The
// record is loaded from state and evaluated on every call; nothing about it is
// ambient.
type Authority struct {
	Module     string
	Enabled    bool
	Authorized []ethcommon.Address
}

// AuthorityStore persists authority records keyed by module.
type AuthorityStore interface {
	AuthorityGet(module string) (*Authority, bool, error)
	AuthorityPut(auth *Authority) error
}

// NewAuthority returns an enabled authority with the supplied owner as its
// single authorized account.
func NewAuthority(module string, owner ethcommon.Address) *Authority {
	auth := &Authority{Module: module, Enabled: true}
	if owner != (ethcommon.Address{}) {
		auth.Authorized = []ethcommon.Address{owner}
	}
	return auth
}

// Clone returns a deep copy of the authority record.
func (a *Authority) Clone() *Authority {
	if a == nil {
		return nil
	}
	clone := *a
	clone.Authorized = append([]ethcommon.Address(nil), a.Authorized...)
	return &clone
}

// IsAuthorized reports whether account belongs to the allow-set.
func (a *Authority) IsAuthorized(account ethcommon.Address) bool {
	if a == nil {
		return false
	}
	for _, addr := range a.Authorized {
		if addr == account {
			return true
		}
	}
	return false
}

// RequireAuthorized fails when caller is outside the allow-set.
func (a *Authority) RequireAuthorized(caller ethcommon.Address) error {
	if !a.IsAuthorized(caller) {
		return NewError(ErrAuthorization, a.module(), ReasonNotAuthorized)
	}
	return nil
}

// RequireEnabled fails when the contract has been disabled.
func (a *Authority) RequireEnabled() error {
	if a == nil || !a.Enabled {
		return NewError(ErrContractDisabled, a.module(), ReasonContractNotEnabled)
	}
	return nil
}

// Require applies the administrator gate: authorized caller and enabled
// contract.
func (a *Authority) Require(caller ethcommon.Address) error {
	if err := a.RequireAuthorized(caller); err != nil {
		return err
	}
	return a.RequireEnabled()
}

// Add inserts account into the allow-set. It reports whether the set changed.
func (a *Authority) Add(account ethcommon.Address) bool {
	if a.IsAuthorized(account) {
		return false
	}
	a.Authorized = append(a.Authorized, account)
	sort.Slice(a.Authorized, func(i, j int) bool {
		return bytes.Compare(a.Authorized[i][:], a.Authorized[j][:]) < 0
	})
	return true
}

// Remove drops account from the allow-set. It reports whether the set changed.
func (a *Authority) Remove(account ethcommon.Address) bool {
	for i, addr := range a.Authorized {
		if addr == account {
			a.Authorized = append(a.Authorized[:i], a.Authorized[i+1:]...)
			return true
		}
	}
	return false
}

func (a *Authority) module() string {
	if a == nil {
		return ""
	}
	return a.Module
}

// Administration event types are namespaced by module, e.g.
// "loans.authorization.added".
const (
	EventSuffixAuthorizationAdded   = "authorization.added"
	EventSuffixAuthorizationRemoved = "authorization.removed"
	EventSuffixContractEnabled      = "contract.enabled"
	EventSuffixContractDisabled     = "contract.disabled"
)

// NewAdminEvent builds the payload emitted for an administration change.
func NewAdminEvent(module, suffix string, account ethcommon.Address) *types.Event {
	attrs := map[string]string{"module": module}
	if account != (ethcommon.Address{}) {
		attrs["account"] = account.Hex()
	}
	return &types.Event{Type: module + "." + suffix, Attributes: attrs}
}

// Admin applies the administration operations shared by every engine to the
// authority record of one module.
type Admin struct {
	Module string
	Store  AuthorityStore
	Emit   func(*types.Event)
}

// Load returns the module's authority record. A module that was never
// bootstrapped has an empty, disabled record.
func (a Admin) Load() (*Authority, error) {
	if a.Store == nil {
		return nil, fmt.Errorf("%s: authority store not configured", a.Module)
	}
	auth, ok, err := a.Store.AuthorityGet(a.Module)
	if err != nil {
		return nil, err
	}
	if !ok || auth == nil {
		return &Authority{Module: a.Module}, nil
	}
	auth.Module = a.Module
	return auth, nil
}

// Require loads the record and applies the administrator gate.
func (a Admin) Require(caller ethcommon.Address) error {
	auth, err := a.Load()
	if err != nil {
		return err
	}
	return auth.Require(caller)
}

// RequireEnabled loads the record and checks the contract flag only.
func (a Admin) RequireEnabled() error {
	auth, err := a.Load()
	if err != nil {
		return err
	}
	return auth.RequireEnabled()
}

// AddAuthorization grants account administrator rights.
func (a Admin) AddAuthorization(caller, account ethcommon.Address) error {
	return a.updateMembers(caller, account, EventSuffixAuthorizationAdded, (*Authority).Add)
}

// RemoveAuthorization revokes account's administrator rights.
func (a Admin) RemoveAuthorization(caller, account ethcommon.Address) error {
	return a.updateMembers(caller, account, EventSuffixAuthorizationRemoved, (*Authority).Remove)
}

// EnableContract re-enables a disabled contract. Only membership is checked
// so a disabled contract can be switched back on.
func (a Admin) EnableContract(caller ethcommon.Address) error {
	return a.setEnabled(caller, true)
}

// DisableContract stops every enabled-gated entry point.
func (a Admin) DisableContract(caller ethcommon.Address) error {
	return a.setEnabled(caller, false)
}

func (a Admin) updateMembers(caller, account ethcommon.Address, suffix string, apply func(*Authority, ethcommon.Address) bool) error {
	auth, err := a.Load()
	if err != nil {
		return err
	}
	if err := auth.Require(caller); err != nil {
		return err
	}
	if account == (ethcommon.Address{}) {
		return NewError(ErrValidation, a.Module, ReasonInvalidAccount)
	}
	if !apply(auth, account) {
		return nil
	}
	if err := a.Store.AuthorityPut(auth); err != nil {
		return err
	}
	a.emit(NewAdminEvent(a.Module, suffix, account))
	return nil
}

func (a Admin) setEnabled(caller ethcommon.Address, enabled bool) error {
	auth, err := a.Load()
	if err != nil {
		return err
	}
	if err := auth.RequireAuthorized(caller); err != nil {
		return err
	}
	auth.Enabled = enabled
	if err := a.Store.AuthorityPut(auth); err != nil {
		return err
	}
	suffix := EventSuffixContractDisabled
	if enabled {
		suffix = EventSuffixContractEnabled
	}
	a.emit(NewAdminEvent(a.Module, suffix, caller))
	return nil
}

func (a Admin) emit(evt *types.Event) {
	if a.Emit != nil {
		a.Emit(evt)
	}
}
