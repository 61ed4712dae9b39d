package certstore

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"time"

	"warden/internal/werr"
)

// CRL wraps a certificate revocation list together with the revoked
// entries still carried for is_revoked lookups (x509.RevocationList
// only records what's currently in RevokedCertificateEntries, which is
// exactly what we need here).
type CRL struct {
	Issuer  pkix.Name
	revoked map[string]bool // serial.String() -> true
	entries []x509.RevocationListEntry
	last    time.Time
	next    time.Time
}

// GenerateCRL creates an empty CRL issued by caCert, with no revoked
// certificates.
func GenerateCRL(caCert *x509.Certificate) *CRL {
	now := time.Now()
	return &CRL{
		Issuer:  caCert.Subject,
		revoked: map[string]bool{},
		last:    now,
		next:    now.Add(10 * 365 * 24 * time.Hour),
	}
}

// Revoke adds cert's serial to crl; the list is signed separately by
// Sign. Revoking a certificate that is already on the list is rejected
// with AlreadyExists rather than silently succeeding.
func (crl *CRL) Revoke(cert *x509.Certificate) error {
	key := cert.SerialNumber.String()
	if crl.revoked[key] {
		return werr.Wrap(werr.AlreadyExists, "certificate %s already revoked", Fingerprint(cert))
	}
	now := time.Now()
	crl.revoked[key] = true
	crl.entries = append(crl.entries, x509.RevocationListEntry{
		SerialNumber:   cert.SerialNumber,
		RevocationTime: now,
	})
	crl.last = now
	crl.next = now.Add(10 * 365 * 24 * time.Hour)
	return nil
}

// IsRevoked reports whether cert's serial number appears on crl.
func (crl *CRL) IsRevoked(cert *x509.Certificate) bool {
	return crl.revoked[cert.SerialNumber.String()]
}

// Sign produces the signed, DER-encoded CRL reflecting crl's current
// revocation set.
func (crl *CRL) Sign(caCert *x509.Certificate, caKey *rsa.PrivateKey) ([]byte, error) {
	serial, err := randSerial()
	if err != nil {
		return nil, err
	}
	template := &x509.RevocationList{
		Number:                    serial,
		ThisUpdate:                crl.last,
		NextUpdate:                crl.next,
		RevokedCertificateEntries: crl.entries,
	}
	der, err := x509.CreateRevocationList(rand.Reader, template, caCert, caKey)
	if err != nil {
		return nil, werr.Wrap(werr.IO, "sign crl: %v", err)
	}
	return der, nil
}

// ParseCRL reconstructs a CRL from a previously signed DER encoding,
// for reloading persisted revocation state.
func ParseCRL(der []byte) (*CRL, error) {
	rl, err := x509.ParseRevocationList(der)
	if err != nil {
		return nil, werr.Wrap(werr.ParseError, "parse crl: %v", err)
	}
	crl := &CRL{
		Issuer:  rl.Issuer,
		revoked: map[string]bool{},
		last:    rl.ThisUpdate,
		next:    rl.NextUpdate,
		entries: rl.RevokedCertificateEntries,
	}
	for _, e := range rl.RevokedCertificateEntries {
		crl.revoked[e.SerialNumber.String()] = true
	}
	return crl, nil
}
