package state

import (
	"crosslend/native/common"
)

type storedAuthority struct {
	Module     string
	Enabled    bool
	Authorized [][20]byte
}

// AuthorityGet loads the administration record of module.
func (m *Manager) AuthorityGet(module string) (*common.Authority, bool, error) {
	var stored storedAuthority
	ok, err := m.KVGet(joinKey(authorityPrefix, []byte(module)), &stored)
	if err != nil || !ok {
		return nil, ok, err
	}
	auth := &common.Authority{Module: stored.Module, Enabled: stored.Enabled}
	for _, addr := range stored.Authorized {
		auth.Authorized = append(auth.Authorized, addr)
	}
	return auth, true, nil
}

// AuthorityPut persists an administration record.
func (m *Manager) AuthorityPut(auth *common.Authority) error {
	if auth == nil {
		return errNilRecord
	}
	stored := storedAuthority{Module: auth.Module, Enabled: auth.Enabled}
	for _, addr := range auth.Authorized {
		stored.Authorized = append(stored.Authorized, addr)
	}
	return m.KVPut(joinKey(authorityPrefix, []byte(auth.Module)), &stored)
}
