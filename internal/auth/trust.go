package auth

import (
	"warden/internal/certstore"
	"warden/internal/werr"
)

// TrustDB is the ordered fingerprint-to-identity mapping the ZAP
// authenticator consults for every inbound connection. It persists
// through the same sqlite-backed store the certificate authority
// uses, keyed by the peer's curve25519 public key fingerprint rather
// than an X.509 certificate fingerprint.
type TrustDB struct {
	store      *certstore.Store
	disableVer bool // verification-disabled mode: verify() always succeeds (key-pinning only)
}

// NewTrustDB wraps a cert store as a peer trust database. When
// verificationDisabled is true, Verify always reports trusted — used
// to pin keys during bootstrap without yet enforcing the trust list.
func NewTrustDB(store *certstore.Store, verificationDisabled bool) *TrustDB {
	return &TrustDB{store: store, disableVer: verificationDisabled}
}

// Trust records pub as trusted under identity.
func (t *TrustDB) Trust(pub *[32]byte, identity string) error {
	return t.store.Trust(Fingerprint(pub), identity)
}

// Revoke removes a previously trusted key. Revoking an unknown key is
// NotFound; revoking one already revoked is AlreadyExists.
func (t *TrustDB) Revoke(pub *[32]byte) error {
	return t.store.RevokeTrust(Fingerprint(pub))
}

// Verify reports whether pub is currently trusted. With verification
// disabled it unconditionally succeeds.
func (t *TrustDB) Verify(pub *[32]byte) (bool, error) {
	if t.disableVer {
		return true, nil
	}
	ok, err := t.store.Verify(Fingerprint(pub))
	if err != nil {
		return false, err
	}
	if !ok {
		return false, werr.Wrap(werr.Untrusted, "fingerprint %s not trusted", Fingerprint(pub))
	}
	return true, nil
}
