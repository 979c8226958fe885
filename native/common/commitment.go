package common

import (
	"bytes"
	"fmt"
	"strings"

	ethcommon "github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	sha256 "github.com/minio/sha256-simd"
	"lukechampine.com/blake3"
)

// Scheme names the hash function binding revealed secrets to their stored
// commitments. Both escrows and both counterparties must agree on it.
type Scheme string

const (
	SchemeSHA256    Scheme = "sha256"
	SchemeKeccak256 Scheme = "keccak256"
	SchemeBLAKE3    Scheme = "blake3"
)

// DefaultScheme matches the commitments produced by the existing off-chain
// tooling.
const DefaultScheme = SchemeSHA256

// ParseScheme normalises a configured scheme name. Empty selects the default.
func ParseScheme(name string) (Scheme, error) {
	switch Scheme(strings.ToLower(strings.TrimSpace(name))) {
	case "", SchemeSHA256:
		return SchemeSHA256, nil
	case SchemeKeccak256, "keccak":
		return SchemeKeccak256, nil
	case SchemeBLAKE3:
		return SchemeBLAKE3, nil
	default:
		return "", fmt.Errorf("unsupported commitment scheme %q", name)
	}
}

// Commit hashes a secret into its 32-byte commitment.
func (s Scheme) Commit(secret []byte) ethcommon.Hash {
	switch s {
	case SchemeKeccak256:
		return ethcrypto.Keccak256Hash(secret)
	case SchemeBLAKE3:
		return ethcommon.Hash(blake3.Sum256(secret))
	default:
		return ethcommon.Hash(sha256.Sum256(secret))
	}
}

// Matches reports whether secret opens commitment. A zero commitment never
// matches.
func (s Scheme) Matches(secret []byte, commitment ethcommon.Hash) bool {
	if commitment == (ethcommon.Hash{}) {
		return false
	}
	digest := s.Commit(secret)
	return bytes.Equal(digest[:], commitment[:])
}
