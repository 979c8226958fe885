package main

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"crosslend/crypto"
	"crosslend/native/common"
)

func TestNewKeyThenDeriveSecret(t *testing.T) {
	t.Setenv(defaultPassEnv, "correct horse battery staple")
	path := filepath.Join(t.TempDir(), "lender.keystore")

	var created bytes.Buffer
	if err := runNewKey([]string{"-keystore", path, "-role", "lender", "-light"}, &created); err != nil {
		t.Fatalf("new-key: %v", err)
	}
	if !strings.Contains(created.String(), "address: 0x") {
		t.Fatalf("unexpected output %q", created.String())
	}
	err := runNewKey([]string{"-keystore", path, "-role", "lender", "-light"}, &created)
	if !errors.Is(err, crypto.ErrKeystoreExists) {
		t.Fatalf("expected refusal to overwrite keystore, got %v", err)
	}
	if !strings.Contains(err.Error(), "lender keystore") {
		t.Fatalf("error %q does not name the role", err)
	}

	var first, second bytes.Buffer
	args := []string{"-keystore", path, "-role", "lender", "-label", crypto.LabelSecretB1, "-nonce", "3"}
	if err := runDeriveSecret(args, &first); err != nil {
		t.Fatalf("derive-secret: %v", err)
	}
	if err := runDeriveSecret(args, &second); err != nil {
		t.Fatalf("derive-secret again: %v", err)
	}
	if first.String() != second.String() {
		t.Fatal("derivation is not deterministic")
	}
	if !strings.Contains(first.String(), "message: SecretB1. Nonce: 3") {
		t.Fatalf("unexpected output %q", first.String())
	}
}

func TestDeriveSecretWrongPassphrase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "borrower.keystore")
	t.Setenv(defaultPassEnv, "first")
	if err := runNewKey([]string{"-keystore", path, "-role", "borrower", "-light"}, &bytes.Buffer{}); err != nil {
		t.Fatalf("new-key: %v", err)
	}
	t.Setenv(defaultPassEnv, "second")
	err := runDeriveSecret([]string{"-keystore", path, "-role", "borrower"}, &bytes.Buffer{})
	if !errors.Is(err, crypto.ErrWrongPassphrase) {
		t.Fatalf("expected wrong passphrase, got %v", err)
	}
}

func TestUnknownRole(t *testing.T) {
	err := runNewKey([]string{"-keystore", "unused", "-role", "arbiter"}, &bytes.Buffer{})
	if err == nil || !strings.Contains(err.Error(), "unknown role") {
		t.Fatalf("expected unknown role error, got %v", err)
	}
}

func TestDeriveSecretRejectsUnknownLabel(t *testing.T) {
	err := runDeriveSecret([]string{"-keystore", "unused", "-label", "SecretC9"}, &bytes.Buffer{})
	if err == nil || !strings.Contains(err.Error(), "unknown label") {
		t.Fatalf("expected unknown label error, got %v", err)
	}
}

func TestWriteSecretCommitsWithScheme(t *testing.T) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	secret, err := crypto.DeriveSecret(key, crypto.LabelSecretA1, 0)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	var out bytes.Buffer
	if err := writeSecret(&out, key, crypto.LabelSecretA1, 0, common.SchemeKeccak256); err != nil {
		t.Fatalf("write: %v", err)
	}
	want := common.SchemeKeccak256.Commit(secret).Hex()
	if !strings.Contains(out.String(), want) {
		t.Fatalf("output %q lacks commitment %s", out.String(), want)
	}
}
