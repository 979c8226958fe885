package crypto

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

var (
	ErrKeystoreExists  = errors.New("keystore already exists")
	ErrWrongPassphrase = errors.New("wrong keystore passphrase")
	ErrAddressMismatch = errors.New("keystore address does not match its key")
)

// Role names the protocol participant a keystore belongs to. It only shapes
// error messages; the file format is a plain v3 keystore.
type Role string

const (
	RoleParticipant Role = "participant"
	RoleLender      Role = "lender"
	RoleBorrower    Role = "borrower"
	RoleOperator    Role = "operator"
)

// KeystoreError reports a failed keystore operation for a participant key.
type KeystoreError struct {
	Role Role
	Op   string
	Path string
	Err  error
}

func (e *KeystoreError) Error() string {
	return fmt.Sprintf("crypto: %s %s keystore %s: %v", e.Op, e.Role, e.Path, e.Err)
}

func (e *KeystoreError) Unwrap() error { return e.Err }

// KeystoreOptions controls how a participant key is written.
type KeystoreOptions struct {
	Role      Role
	Overwrite bool
	// Light trades brute-force resistance for speed (4MB scrypt instead of
	// 256MB). Use only for throwaway keys.
	Light bool
}

func (o KeystoreOptions) role() Role {
	if o.Role == "" {
		return RoleParticipant
	}
	return o.Role
}

// SaveToKeystore encrypts key into a v3 keystore at path. The file is written
// next to its destination and renamed into place with 0600 permissions.
func SaveToKeystore(path string, key *PrivateKey, passphrase string, opts KeystoreOptions) error {
	fail := func(err error) error {
		return &KeystoreError{Role: opts.role(), Op: "write", Path: path, Err: err}
	}
	if key == nil {
		return fail(errNilKey)
	}
	if path == "" {
		return fail(errors.New("empty path"))
	}
	if _, err := os.Stat(path); err == nil && !opts.Overwrite {
		return fail(ErrKeystoreExists)
	}

	scryptN, scryptP := keystore.StandardScryptN, keystore.StandardScryptP
	if opts.Light {
		scryptN, scryptP = keystore.LightScryptN, keystore.LightScryptP
	}
	id, err := uuid.NewRandom()
	if err != nil {
		return fail(err)
	}
	encrypted, err := keystore.EncryptKey(&keystore.Key{
		Id:         id,
		Address:    key.Address(),
		PrivateKey: key.PrivateKey,
	}, passphrase, scryptN, scryptP)
	if err != nil {
		return fail(err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fail(err)
	}
	tmp, err := os.CreateTemp(dir, ".keystore-*")
	if err != nil {
		return fail(err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(encrypted); err != nil {
		tmp.Close()
		return fail(err)
	}
	if err := tmp.Close(); err != nil {
		return fail(err)
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		return fail(err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fail(err)
	}
	return nil
}

// LoadFromKeystore decrypts the v3 keystore at path. A wrong passphrase
// surfaces as ErrWrongPassphrase, and a file whose recorded address differs
// from the decrypted key as ErrAddressMismatch.
func LoadFromKeystore(path, passphrase string, role Role) (*PrivateKey, error) {
	if role == "" {
		role = RoleParticipant
	}
	fail := func(err error) error {
		return &KeystoreError{Role: role, Op: "open", Path: path, Err: err}
	}
	if path == "" {
		return nil, fail(errors.New("empty path"))
	}

	keyJSON, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fail(fs.ErrNotExist)
		}
		return nil, fail(err)
	}
	decrypted, err := keystore.DecryptKey(keyJSON, passphrase)
	if err != nil {
		if errors.Is(err, keystore.ErrDecrypt) {
			return nil, fail(ErrWrongPassphrase)
		}
		return nil, fail(err)
	}
	var header struct {
		Address string `json:"address"`
	}
	if err := json.Unmarshal(keyJSON, &header); err != nil {
		return nil, fail(err)
	}
	if header.Address != "" && ethcommon.HexToAddress(header.Address) != decrypted.Address {
		return nil, fail(ErrAddressMismatch)
	}
	return &PrivateKey{PrivateKey: decrypted.PrivateKey}, nil
}
