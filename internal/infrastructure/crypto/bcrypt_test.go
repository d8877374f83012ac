package crypto

import (
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestBcryptHasher_RoundTrip(t *testing.T) {
	h := NewBcryptHasher(bcrypt.MinCost)

	hash, err := h.Hash("secret")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if hash == "secret" {
		t.Fatalf("expected password to be hashed")
	}
	if !h.Verify("secret", hash) {
		t.Fatalf("expected match")
	}
	if h.Verify("Secret", hash) {
		t.Fatalf("expected mismatch")
	}
	if h.Verify("secret", "") || h.Verify("secret", "not-a-bcrypt-hash") {
		t.Fatalf("malformed hash must not match")
	}
}

func TestNewBcryptHasher_ClampsCost(t *testing.T) {
	if got := NewBcryptHasher(0).cost; got != bcrypt.DefaultCost {
		t.Fatalf("cost = %d", got)
	}
	if got := NewBcryptHasher(99).cost; got != bcrypt.DefaultCost {
		t.Fatalf("cost = %d", got)
	}
}
