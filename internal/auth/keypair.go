// Package auth implements peer identity: curve25519 keypairs, the
// fingerprint-to-identity trust database, the ZAP authenticator that
// gates inbound connections at the transport layer, and the pluggable
// user-authentication hook that gates client REQUEST PDUs.
package auth

import (
	"crypto/rand"
	"encoding/hex"

	"golang.org/x/crypto/nacl/box"

	"warden/internal/werr"
)

// KeyPair holds a peer's elliptic-curve keypair: 32-byte public and
// 32-byte private keys, the same curve25519 pair CurveZMQ uses for
// ZeroMQ socket security.
type KeyPair struct {
	Public  *[32]byte
	Private *[32]byte
}

// GenerateKeyPair creates a fresh curve25519 keypair.
func GenerateKeyPair() (*KeyPair, error) {
	pub, priv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, werr.Wrap(werr.IO, "generate keypair: %v", err)
	}
	return &KeyPair{Public: pub, Private: priv}, nil
}

// Fingerprint is the base16 (lowercase hex) encoding of a public key,
// the identifier the trust database indexes peers by.
func Fingerprint(pub *[32]byte) string {
	return hex.EncodeToString(pub[:])
}

// ParseFingerprint decodes a hex-encoded public key back into its
// 32-byte form.
func ParseFingerprint(s string) (*[32]byte, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, werr.Wrap(werr.ParseError, "fingerprint %q: %v", s, err)
	}
	if len(b) != 32 {
		return nil, werr.Wrap(werr.InvalidValue, "fingerprint %q: want 32 bytes, got %d", s, len(b))
	}
	var out [32]byte
	copy(out[:], b)
	return &out, nil
}
