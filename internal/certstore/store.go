package certstore

import (
	"crypto/rsa"
	"crypto/x509"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"warden/internal/werr"
)

// Store persists issued certificates, CA material, and the trust
// (fingerprint -> identity) table in a single sqlite database.
type Store struct {
	db *sql.DB
}

// Open creates or reuses the sqlite database at path, initializing its
// schema if necessary.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, werr.Wrap(werr.IO, "create cert store directory: %v", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, werr.Wrap(werr.IO, "open cert store: %v", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, werr.Wrap(werr.IO, "set busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, werr.Wrap(werr.IO, "set journal_mode: %v", err)
	}

	s := &Store{db: db}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS certificates (
		fingerprint TEXT PRIMARY KEY,
		fqdn        TEXT NOT NULL,
		cert_type   TEXT NOT NULL,
		serial      TEXT NOT NULL,
		cert_pem    BLOB NOT NULL,
		key_pem     BLOB,
		not_before  DATETIME NOT NULL,
		not_after   DATETIME NOT NULL,
		created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_certificates_fqdn ON certificates(fqdn);

	CREATE TABLE IF NOT EXISTS trust (
		fingerprint TEXT PRIMARY KEY,
		fqdn        TEXT NOT NULL,
		trusted_at  DATETIME DEFAULT CURRENT_TIMESTAMP,
		revoked     INTEGER NOT NULL DEFAULT 0,
		revoked_at  DATETIME
	);

	CREATE TABLE IF NOT EXISTS crl (
		id          INTEGER PRIMARY KEY CHECK (id = 1),
		crl_der     BLOB NOT NULL,
		updated_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return werr.Wrap(werr.IO, "initialize cert store schema: %v", err)
	}
	return nil
}

// PutCertificate records a signed certificate, optionally with its
// private key (for CA material; agent/master stores may omit it).
func (s *Store) PutCertificate(cert *x509.Certificate, key *rsa.PrivateKey) error {
	var keyPEM []byte
	if key != nil {
		keyPEM = EncodeKeyPEM(key)
	}
	_, err := s.db.Exec(
		`INSERT INTO certificates (fingerprint, fqdn, cert_type, serial, cert_pem, key_pem, not_before, not_after)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(fingerprint) DO UPDATE SET key_pem = excluded.key_pem`,
		Fingerprint(cert), cert.Subject.CommonName, certType(cert), cert.SerialNumber.String(),
		EncodeCertPEM(cert), keyPEM, cert.NotBefore, cert.NotAfter,
	)
	if err != nil {
		return werr.Wrap(werr.IO, "store certificate: %v", err)
	}
	return nil
}

func certType(cert *x509.Certificate) string {
	subj := subjectFromName(cert.Subject)
	return subj.CertType
}

// GetCertificate loads a previously stored certificate (and its key,
// if one was stored) by fingerprint.
func (s *Store) GetCertificate(fingerprint string) (*x509.Certificate, *rsa.PrivateKey, error) {
	var certPEM, keyPEM []byte
	err := s.db.QueryRow(
		`SELECT cert_pem, key_pem FROM certificates WHERE fingerprint = ?`, fingerprint,
	).Scan(&certPEM, &keyPEM)
	if err == sql.ErrNoRows {
		return nil, nil, werr.Wrap(werr.NotFound, "certificate %s", fingerprint)
	}
	if err != nil {
		return nil, nil, werr.Wrap(werr.IO, "load certificate: %v", err)
	}
	cert, err := DecodeCertPEM(certPEM)
	if err != nil {
		return nil, nil, err
	}
	var key *rsa.PrivateKey
	if len(keyPEM) > 0 {
		key, err = DecodeKeyPEM(keyPEM)
		if err != nil {
			return nil, nil, err
		}
	}
	return cert, key, nil
}

// CertificateSummary is one row of ListCertificates' output.
type CertificateSummary struct {
	Fingerprint string
	FQDN        string
	CertType    string
	NotAfter    time.Time
}

// ListCertificates returns every certificate on file, most recently
// created first.
func (s *Store) ListCertificates() ([]CertificateSummary, error) {
	rows, err := s.db.Query(`SELECT fingerprint, fqdn, cert_type, not_after FROM certificates ORDER BY created_at DESC`)
	if err != nil {
		return nil, werr.Wrap(werr.IO, "list certificates: %v", err)
	}
	defer rows.Close()

	var out []CertificateSummary
	for rows.Next() {
		var c CertificateSummary
		if err := rows.Scan(&c.Fingerprint, &c.FQDN, &c.CertType, &c.NotAfter); err != nil {
			return nil, werr.Wrap(werr.IO, "scan certificate row: %v", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, werr.Wrap(werr.IO, "list certificates: %v", err)
	}
	return out, nil
}

// ByFQDN returns the most recently created certificate on file for a
// given fully-qualified domain name, if any.
func (s *Store) ByFQDN(fqdn string) (*x509.Certificate, error) {
	var certPEM []byte
	err := s.db.QueryRow(
		`SELECT cert_pem FROM certificates WHERE fqdn = ? ORDER BY created_at DESC LIMIT 1`, fqdn,
	).Scan(&certPEM)
	if err == sql.ErrNoRows {
		return nil, werr.Wrap(werr.NotFound, "certificate for %s", fqdn)
	}
	if err != nil {
		return nil, werr.Wrap(werr.IO, "load certificate: %v", err)
	}
	return DecodeCertPEM(certPEM)
}

// Trust records a fingerprint as trusted for the given fqdn, the
// master-side counterpart to an agent's accepted certificate.
func (s *Store) Trust(fingerprint, fqdn string) error {
	_, err := s.db.Exec(
		`INSERT INTO trust (fingerprint, fqdn) VALUES (?, ?)
		 ON CONFLICT(fingerprint) DO UPDATE SET revoked = 0, revoked_at = NULL`,
		fingerprint, fqdn,
	)
	if err != nil {
		return werr.Wrap(werr.IO, "trust fingerprint: %v", err)
	}
	return nil
}

// RevokeTrust marks a previously trusted fingerprint as revoked.
// Revoking an unknown fingerprint is NotFound; revoking one already
// revoked is AlreadyExists.
func (s *Store) RevokeTrust(fingerprint string) error {
	var revoked int
	err := s.db.QueryRow(`SELECT revoked FROM trust WHERE fingerprint = ?`, fingerprint).Scan(&revoked)
	if err == sql.ErrNoRows {
		return werr.Wrap(werr.NotFound, "trusted fingerprint %s", fingerprint)
	}
	if err != nil {
		return werr.Wrap(werr.IO, "check trust: %v", err)
	}
	if revoked != 0 {
		return werr.Wrap(werr.AlreadyExists, "fingerprint %s already revoked", fingerprint)
	}
	_, err = s.db.Exec(`UPDATE trust SET revoked = 1, revoked_at = ? WHERE fingerprint = ?`, time.Now(), fingerprint)
	if err != nil {
		return werr.Wrap(werr.IO, "revoke trust: %v", err)
	}
	return nil
}

// Verify reports whether fingerprint is on file and not revoked.
func (s *Store) Verify(fingerprint string) (bool, error) {
	var revoked int
	err := s.db.QueryRow(`SELECT revoked FROM trust WHERE fingerprint = ?`, fingerprint).Scan(&revoked)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, werr.Wrap(werr.IO, "verify fingerprint: %v", err)
	}
	return revoked == 0, nil
}

// SaveCRL persists the DER-encoded CRL as the store's single current
// revocation list.
func (s *Store) SaveCRL(der []byte) error {
	_, err := s.db.Exec(
		`INSERT INTO crl (id, crl_der, updated_at) VALUES (1, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET crl_der = excluded.crl_der, updated_at = excluded.updated_at`,
		der, time.Now(),
	)
	if err != nil {
		return werr.Wrap(werr.IO, "save crl: %v", err)
	}
	return nil
}

// LoadCRL returns the most recently saved CRL, or NotFound if none has
// been generated yet.
func (s *Store) LoadCRL() ([]byte, error) {
	var der []byte
	err := s.db.QueryRow(`SELECT crl_der FROM crl WHERE id = 1`).Scan(&der)
	if err == sql.ErrNoRows {
		return nil, werr.Wrap(werr.NotFound, "no crl generated yet")
	}
	if err != nil {
		return nil, werr.Wrap(werr.IO, "load crl: %v", err)
	}
	return der, nil
}
