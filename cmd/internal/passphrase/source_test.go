package passphrase

import (
	"errors"
	"testing"
)

func TestSourcePrefersEnvironment(t *testing.T) {
	t.Setenv("CROSSLEND_TEST_PASS", "hunter2")
	src := NewSource("CROSSLEND_TEST_PASS", "lender keystore")
	src.isTerminal = func() bool { t.Fatal("terminal consulted"); return false }

	got, err := src.Get()
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != "hunter2" {
		t.Fatalf("passphrase = %q", got)
	}
}

func TestSourceRejectsBlankEnvironment(t *testing.T) {
	t.Setenv("CROSSLEND_TEST_PASS", "  ")
	if _, err := NewSource("CROSSLEND_TEST_PASS", "").Get(); err == nil {
		t.Fatal("expected error for blank passphrase")
	}
}

func TestSourceWithoutTerminal(t *testing.T) {
	src := NewSource("", "borrower keystore")
	src.isTerminal = func() bool { return false }
	if _, err := src.Get(); err == nil {
		t.Fatal("expected error without terminal")
	}
}

func TestSourcePromptsOnce(t *testing.T) {
	reads := 0
	src := NewSource("", "")
	src.isTerminal = func() bool { return true }
	src.read = func() ([]byte, error) {
		reads++
		return []byte("correct horse"), nil
	}
	for i := 0; i < 2; i++ {
		got, err := src.Get()
		if err != nil || got != "correct horse" {
			t.Fatalf("get #%d = %q, %v", i, got, err)
		}
	}
	if reads != 1 {
		t.Fatalf("prompted %d times", reads)
	}

	failing := NewSource("", "")
	failing.isTerminal = func() bool { return true }
	failing.read = func() ([]byte, error) { return nil, errors.New("tty closed") }
	if _, err := failing.Get(); err == nil {
		t.Fatal("expected read error")
	}
}
