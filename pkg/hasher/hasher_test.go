package hasher

import "testing"

func TestBcryptVerify(t *testing.T) {
	h := NewBcrypt(4) // minimum cost keeps the test fast

	hash, err := h.Hash("hunter2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hash == "hunter2" {
		t.Fatal("hash must not equal the raw secret")
	}
	if !h.Verify("hunter2", hash) {
		t.Fatal("expected matching secret to verify")
	}
	if h.Verify("hunter3", hash) {
		t.Fatal("expected mismatched secret to fail verification")
	}
}

func TestBcryptHashesAreSalted(t *testing.T) {
	h := NewBcrypt(4)

	first, err := h.Hash("same-secret")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := h.Hash("same-secret")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first == second {
		t.Fatal("expected distinct salts to produce distinct hashes")
	}
}
