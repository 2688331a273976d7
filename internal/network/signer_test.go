package network

import (
	"context"
	"strings"
	"testing"
)

func TestKeySignerRoundTrip(t *testing.T) {
	signer, seed, err := GenerateKeySigner()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	payload := []byte(`{"epochs":5}`)
	sig, err := signer.Sign(context.Background(), payload)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if err := VerifySignature(signer.Address(), payload, sig); err != nil {
		t.Fatalf("verify: %v", err)
	}

	restored, err := NewKeySigner(seed)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if restored.Address() != signer.Address() {
		t.Fatalf("expected same address, got %s vs %s", restored.Address(), signer.Address())
	}

	if err := VerifySignature(signer.Address(), []byte("tampered"), sig); err == nil {
		t.Fatal("expected tampered payload to fail verification")
	}
}

func TestNewKeySignerRejectsBadSeed(t *testing.T) {
	if _, err := NewKeySigner("zz"); err == nil {
		t.Fatal("expected hex decode error")
	}
	if _, err := NewKeySigner(strings.Repeat("ab", 8)); err == nil {
		t.Fatal("expected seed length error")
	}
}
