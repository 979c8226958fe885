package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"crosslend/cmd/internal/passphrase"
	"crosslend/crypto"
	"crosslend/native/common"
)

const (
	newKeyCommand       = "new-key"
	deriveSecretCommand = "derive-secret"
	defaultPassEnv      = "CROSSLEND_KEY_PASS"
)

func main() {
	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case newKeyCommand:
		err = runNewKey(os.Args[2:], os.Stdout)
	case deriveSecretCommand:
		err = runDeriveSecret(os.Args[2:], os.Stdout)
	default:
		usage(os.Stderr)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func usage(w io.Writer) {
	fmt.Fprintf(w, "usage: crosslendctl <command> [flags]\n\n")
	fmt.Fprintf(w, "commands:\n")
	fmt.Fprintf(w, "  %s       generate a key and write it to an encrypted keystore\n", newKeyCommand)
	fmt.Fprintf(w, "  %s  derive a loan secret and its commitment from a keystore\n", deriveSecretCommand)
}

func runNewKey(args []string, out io.Writer) error {
	fs := flag.NewFlagSet(newKeyCommand, flag.ContinueOnError)
	keystorePath := fs.String("keystore", "", "Output path for the keystore file")
	passEnv := fs.String("pass-env", defaultPassEnv, "Environment variable containing the keystore passphrase")
	force := fs.Bool("force", false, "Overwrite an existing keystore file")
	roleName := fs.String("role", string(crypto.RoleParticipant), "Key role: participant, lender, borrower or operator")
	light := fs.Bool("light", false, "Use light scrypt parameters (throwaway keys only)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*keystorePath) == "" {
		return fmt.Errorf("-keystore is required")
	}
	role, err := parseRole(*roleName)
	if err != nil {
		return err
	}
	opts := crypto.KeystoreOptions{Role: role, Overwrite: *force, Light: *light}
	if _, err := os.Stat(*keystorePath); err == nil && !*force {
		return &crypto.KeystoreError{Role: role, Op: "write", Path: *keystorePath, Err: crypto.ErrKeystoreExists}
	}

	pass, err := passphrase.NewSource(*passEnv, fmt.Sprintf("new %s keystore", role)).Get()
	if err != nil {
		return err
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return fmt.Errorf("generate key: %w", err)
	}
	if err := crypto.SaveToKeystore(*keystorePath, key, pass, opts); err != nil {
		return err
	}
	fmt.Fprintf(out, "address: %s\nkeystore: %s\n", key.Address().Hex(), *keystorePath)
	return nil
}

func runDeriveSecret(args []string, out io.Writer) error {
	fs := flag.NewFlagSet(deriveSecretCommand, flag.ContinueOnError)
	keystorePath := fs.String("keystore", "", "Keystore holding the participant key")
	passEnv := fs.String("pass-env", defaultPassEnv, "Environment variable containing the keystore passphrase")
	label := fs.String("label", crypto.LabelSecretA1, "Secret label: SecretA1, SecretB1 or SecretDelegateB1")
	nonce := fs.Uint64("nonce", 0, "Nonce, normally the participant's loan count")
	schemeName := fs.String("scheme", string(common.DefaultScheme), "Commitment scheme: sha256, keccak256 or blake3")
	roleName := fs.String("role", string(crypto.RoleParticipant), "Key role: participant, lender, borrower or operator")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*keystorePath) == "" {
		return fmt.Errorf("-keystore is required")
	}
	switch *label {
	case crypto.LabelSecretA1, crypto.LabelSecretB1, crypto.LabelSecretDelegateB1:
	default:
		return fmt.Errorf("unknown label %q", *label)
	}
	scheme, err := common.ParseScheme(*schemeName)
	if err != nil {
		return err
	}
	role, err := parseRole(*roleName)
	if err != nil {
		return err
	}

	pass, err := passphrase.NewSource(*passEnv, fmt.Sprintf("%s keystore", role)).Get()
	if err != nil {
		return err
	}
	key, err := crypto.LoadFromKeystore(*keystorePath, pass, role)
	if err != nil {
		return err
	}
	return writeSecret(out, key, *label, *nonce, scheme)
}

func parseRole(name string) (crypto.Role, error) {
	switch role := crypto.Role(strings.ToLower(strings.TrimSpace(name))); role {
	case crypto.RoleParticipant, crypto.RoleLender, crypto.RoleBorrower, crypto.RoleOperator:
		return role, nil
	default:
		return "", fmt.Errorf("unknown role %q", name)
	}
}

func writeSecret(out io.Writer, key *crypto.PrivateKey, label string, nonce uint64, scheme common.Scheme) error {
	secret, err := crypto.DeriveSecret(key, label, nonce)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "account: %s\n", key.Address().Hex())
	fmt.Fprintf(out, "message: %s\n", crypto.SecretMessage(label, nonce))
	fmt.Fprintf(out, "secret: 0x%s\n", hex.EncodeToString(secret))
	fmt.Fprintf(out, "commitment (%s): %s\n", scheme, scheme.Commit(secret).Hex())
	return nil
}
