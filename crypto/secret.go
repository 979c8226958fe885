package crypto

import (
	"fmt"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/crypto"
	sha256 "github.com/minio/sha256-simd"
)

// Secret labels used by the participants. The borrower derives A1, the
// lender B1 and the lender's delegate its own B1.
const (
	LabelSecretA1         = "SecretA1"
	LabelSecretB1         = "SecretB1"
	LabelSecretDelegateB1 = "SecretDelegateB1"
)

// SecretMessage is the text signed to derive a secret for the given nonce,
// normally the participant's loan count.
func SecretMessage(label string, nonce uint64) string {
	return fmt.Sprintf("%s. Nonce: %d", label, nonce)
}

// DeriveSecret returns sha256 of the personal-message signature over
// SecretMessage(label, nonce). Secp256k1 signing is deterministic, so the
// same key, label and nonce always reproduce the same secret and a
// participant never has to store it.
func DeriveSecret(key *PrivateKey, label string, nonce uint64) ([]byte, error) {
	if key == nil || key.PrivateKey == nil {
		return nil, errNilKey
	}
	digest := accounts.TextHash([]byte(SecretMessage(label, nonce)))
	sig, err := crypto.Sign(digest, key.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("crypto: sign secret message: %w", err)
	}
	sum := sha256.Sum256(sig)
	return sum[:], nil
}
