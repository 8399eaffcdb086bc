// Package wallet holds the signing keys for live execution. Custody is
// deliberately simple: ed25519 keypairs, with seeds stored base64-encoded
// in the state document. Simulated wallets carry no key at all.
package wallet

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// Signer signs raw transaction messages for one public key.
type Signer interface {
	PublicKey() string
	Sign(message []byte) ([]byte, error)
}

// Keypair is an ed25519 signing key with a base58 Solana-style address.
type Keypair struct {
	pub  ed25519.PublicKey
	priv ed25519.PrivateKey
}

// Generate creates a new random keypair.
func Generate() (*Keypair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate keypair: %w", err)
	}
	return &Keypair{pub: pub, priv: priv}, nil
}

// FromSeed rebuilds a keypair from a 32-byte seed.
func FromSeed(seed []byte) (*Keypair, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return &Keypair{pub: priv.Public().(ed25519.PublicKey), priv: priv}, nil
}

// FromEncoded rebuilds a keypair from a base64 seed as stored in the
// state document.
func FromEncoded(encoded string) (*Keypair, error) {
	seed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode key: %w", err)
	}
	return FromSeed(seed)
}

// PublicKey returns the base58-encoded public key.
func (k *Keypair) PublicKey() string {
	return base58Encode(k.pub)
}

// Sign signs a raw message.
func (k *Keypair) Sign(message []byte) ([]byte, error) {
	return ed25519.Sign(k.priv, message), nil
}

// Encode returns the base64 seed for persistence.
func (k *Keypair) Encode() string {
	return base64.StdEncoding.EncodeToString(k.priv.Seed())
}

// Verify checks a signature against this keypair's public key.
func (k *Keypair) Verify(message, sig []byte) bool {
	return ed25519.Verify(k.pub, message, sig)
}
