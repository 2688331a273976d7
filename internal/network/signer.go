package network

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
)

// KeySigner signs with an in-memory ed25519 key. Its address is the hex
// encoded public key.
type KeySigner struct {
	key ed25519.PrivateKey
}

// NewKeySigner builds a signer from a hex-encoded 32-byte seed.
func NewKeySigner(seedHex string) (*KeySigner, error) {
	seed, err := hex.DecodeString(strings.TrimSpace(seedHex))
	if err != nil {
		return nil, fmt.Errorf("decode signer seed: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("signer seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	return &KeySigner{key: ed25519.NewKeyFromSeed(seed)}, nil
}

// GenerateKeySigner returns a signer with a fresh random key and its seed.
func GenerateKeySigner() (*KeySigner, string, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, "", err
	}
	return &KeySigner{key: priv}, hex.EncodeToString(priv.Seed()), nil
}

// Address returns the hex public key.
func (s *KeySigner) Address() string {
	if s == nil {
		return ""
	}
	return hex.EncodeToString(s.key.Public().(ed25519.PublicKey))
}

// Sign signs payload.
func (s *KeySigner) Sign(ctx context.Context, payload []byte) ([]byte, error) {
	if s == nil {
		return nil, fmt.Errorf("signer is not configured")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return ed25519.Sign(s.key, payload), nil
}

// VerifySignature checks sig over payload against a hex address produced by KeySigner.
func VerifySignature(address string, payload, sig []byte) error {
	pub, err := hex.DecodeString(strings.TrimSpace(address))
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return fmt.Errorf("invalid signer address")
	}
	if !ed25519.Verify(ed25519.PublicKey(pub), payload, sig) {
		return fmt.Errorf("invalid signature")
	}
	return nil
}
