// Package certstore implements the certificate authority primitives:
// RSA key generation, CSR issuance and signing, fingerprinting, and
// revocation lists, backed by a sqlite-persisted store of issued
// certificates and their revocation state.
package certstore

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"strings"
	"time"

	"warden/internal/werr"
)

// Subject mirrors the fields an agent or master embeds in a CSR.
type Subject struct {
	Country      string
	State        string
	Locality     string
	Org          string
	OrgUnit      string
	CertType     string // used as a second OU component, e.g. "agent" or "master"
	FQDN         string
}

func (s Subject) pkixName() pkix.Name {
	n := pkix.Name{CommonName: s.FQDN}
	if s.Country != "" {
		n.Country = []string{s.Country}
	}
	if s.State != "" {
		n.Province = []string{s.State}
	}
	if s.Locality != "" {
		n.Locality = []string{s.Locality}
	}
	if s.Org != "" {
		n.Organization = []string{s.Org}
	}
	var ou []string
	if s.OrgUnit != "" || s.CertType != "" {
		ou = append(ou, s.OrgUnit)
	}
	if s.CertType != "" {
		ou = append(ou, s.CertType)
	}
	if len(ou) > 0 {
		n.OrganizationalUnit = ou
	}
	return n
}

func subjectFromName(n pkix.Name) Subject {
	s := Subject{FQDN: n.CommonName}
	if len(n.Country) > 0 {
		s.Country = n.Country[0]
	}
	if len(n.Province) > 0 {
		s.State = n.Province[0]
	}
	if len(n.Locality) > 0 {
		s.Locality = n.Locality[0]
	}
	if len(n.Organization) > 0 {
		s.Org = n.Organization[0]
	}
	if len(n.OrganizationalUnit) > 0 {
		s.OrgUnit = n.OrganizationalUnit[0]
	}
	if len(n.OrganizationalUnit) > 1 {
		s.CertType = n.OrganizationalUnit[1]
	}
	return s
}

// GenerateKey produces an RSA private key of the requested bit size.
func GenerateKey(bits int) (*rsa.PrivateKey, error) {
	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, werr.Wrap(werr.IO, "generate key: %v", err)
	}
	return key, nil
}

// EncodeKeyPEM renders a private key as a PEM-encoded PKCS#1 block.
func EncodeKeyPEM(key *rsa.PrivateKey) []byte {
	return pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
}

// DecodeKeyPEM parses a PEM-encoded PKCS#1 private key.
func DecodeKeyPEM(data []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, werr.Wrap(werr.ParseError, "no PEM block in key data")
	}
	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, werr.Wrap(werr.ParseError, "parse key: %v", err)
	}
	return key, nil
}

// GenerateCSR builds and self-signs (at the signature-request level, not
// the certificate level) a PKCS#10 certificate request for subj.
func GenerateCSR(key *rsa.PrivateKey, subj Subject) (*x509.CertificateRequest, []byte, error) {
	template := &x509.CertificateRequest{
		Subject:            subj.pkixName(),
		SignatureAlgorithm: x509.SHA1WithRSA,
	}
	der, err := x509.CreateCertificateRequest(rand.Reader, template, key)
	if err != nil {
		return nil, nil, werr.Wrap(werr.IO, "create csr: %v", err)
	}
	csr, err := x509.ParseCertificateRequest(der)
	if err != nil {
		return nil, nil, werr.Wrap(werr.ParseError, "parse csr: %v", err)
	}
	return csr, der, nil
}

// EncodeCSRPEM renders a CSR's DER bytes as a PEM block.
func EncodeCSRPEM(der []byte) []byte {
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE REQUEST", Bytes: der})
}

// DecodeCSRPEM parses a PEM-encoded PKCS#10 certificate request, the
// GET_CERT PDU payload an agent sends the master.
func DecodeCSRPEM(data []byte) (*x509.CertificateRequest, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, werr.Wrap(werr.ParseError, "no PEM block in csr data")
	}
	csr, err := x509.ParseCertificateRequest(block.Bytes)
	if err != nil {
		return nil, werr.Wrap(werr.ParseError, "parse csr: %v", err)
	}
	return csr, nil
}

// randSerial draws a random positive 64-bit serial number, mirroring a
// pseudo-random BIGNUM draw sized to 64 bits.
func randSerial() (*big.Int, error) {
	max := new(big.Int).Lsh(big.NewInt(1), 63)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return nil, werr.Wrap(werr.IO, "random serial: %v", err)
	}
	return n, nil
}

// SignCSR issues a certificate from a CSR. When caCert is nil the
// resulting certificate is self-signed with caKey (CA bootstrap); when
// given, it is signed as a leaf (non-CA) certificate under that CA.
func SignCSR(csr *x509.CertificateRequest, caCert *x509.Certificate, caKey *rsa.PrivateKey, days int) (*x509.Certificate, error) {
	serial, err := randSerial()
	if err != nil {
		return nil, err
	}
	now := time.Now()
	template := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               csr.Subject,
		NotBefore:             now,
		NotAfter:              now.Add(time.Duration(days) * 24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth, x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IsCA:                  caCert == nil,
	}

	parent := template
	signer := caKey
	if caCert != nil {
		parent = caCert
	}

	der, err := x509.CreateCertificate(rand.Reader, template, parent, csr.PublicKey, signer)
	if err != nil {
		return nil, werr.Wrap(werr.IO, "sign csr: %v", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, werr.Wrap(werr.ParseError, "parse signed cert: %v", err)
	}
	return cert, nil
}

// EncodeCertPEM renders a certificate as a PEM block.
func EncodeCertPEM(cert *x509.Certificate) []byte {
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw})
}

// DecodeCertPEM parses a single PEM-encoded certificate.
func DecodeCertPEM(data []byte) (*x509.Certificate, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, werr.Wrap(werr.ParseError, "no PEM block in certificate data")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, werr.Wrap(werr.ParseError, "parse certificate: %v", err)
	}
	return cert, nil
}

// Fingerprint returns the SHA-1 digest of cert's DER encoding as
// lowercase colon-separated hex, e.g. "ab:cd:ef:...".
func Fingerprint(cert *x509.Certificate) string {
	sum := sha1.Sum(cert.Raw)
	parts := make([]string, len(sum))
	for i, b := range sum {
		parts[i] = fmt.Sprintf("%02x", b)
	}
	return strings.Join(parts, ":")
}
