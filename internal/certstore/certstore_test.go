package certstore

import (
	"crypto/rsa"
	"crypto/x509"
	"path/filepath"
	"testing"
	"time"
)

func testSubject(fqdn string) Subject {
	return Subject{
		Country:  "US",
		State:    "California",
		Locality: "San Francisco",
		Org:      "Example Corp",
		OrgUnit:  "Ops",
		CertType: "agent",
		FQDN:     fqdn,
	}
}

func bootstrapCA(t *testing.T) (*rsa.PrivateKey, *x509.Certificate) {
	t.Helper()
	key, err := GenerateKey(1024) // small key: test speed only, never for real CA use
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	csr, _, err := GenerateCSR(key, testSubject("ca.example.test"))
	if err != nil {
		t.Fatalf("generate csr: %v", err)
	}
	cert, err := SignCSR(csr, nil, key, 3650)
	if err != nil {
		t.Fatalf("sign csr: %v", err)
	}
	return key, cert
}

func TestFingerprintStableAndUnique(t *testing.T) {
	caKey, caCert := bootstrapCA(t)

	leafKey, _ := GenerateKey(1024)
	csr2, _, err := GenerateCSR(leafKey, testSubject("agent1.example.test"))
	if err != nil {
		t.Fatalf("generate csr: %v", err)
	}
	leaf, err := SignCSR(csr2, caCert, caKey, 365)
	if err != nil {
		t.Fatalf("sign csr: %v", err)
	}

	f1 := Fingerprint(caCert)
	f2 := Fingerprint(caCert)
	if f1 != f2 {
		t.Fatalf("fingerprint(cert) not stable: %q vs %q", f1, f2)
	}
	if f1 == Fingerprint(leaf) {
		t.Fatalf("fingerprint collided between distinct certificates")
	}
}

// Scenario 5: revoking an already-revoked certificate is rejected
// distinguishably, and is_revoked reflects the current revocation set.
func TestCRLRevocation(t *testing.T) {
	caKey, caCert := bootstrapCA(t)

	leafKey, _ := GenerateKey(1024)
	csr, _, _ := GenerateCSR(leafKey, testSubject("agent2.example.test"))
	leaf, err := SignCSR(csr, caCert, caKey, 365)
	if err != nil {
		t.Fatalf("sign csr: %v", err)
	}

	crl := GenerateCRL(caCert)
	if crl.IsRevoked(leaf) {
		t.Fatalf("freshly generated crl should not revoke anything")
	}

	if err := crl.Revoke(leaf); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if !crl.IsRevoked(leaf) {
		t.Fatalf("expected leaf to be revoked")
	}

	if err := crl.Revoke(leaf); err == nil {
		t.Fatalf("expected double-revocation to fail")
	}

	der, err := crl.Sign(caCert, caKey)
	if err != nil {
		t.Fatalf("sign crl: %v", err)
	}
	reloaded, err := ParseCRL(der)
	if err != nil {
		t.Fatalf("parse crl: %v", err)
	}
	if !reloaded.IsRevoked(leaf) {
		t.Fatalf("revocation did not survive sign/parse round trip")
	}
	if reloaded.next.Sub(reloaded.last) < 9*365*24*time.Hour {
		t.Fatalf("next-update not advanced ~10 years past last-update")
	}
}

func TestStorePersistsCertificatesAndTrust(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "ca.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer s.Close()

	_, caCert := bootstrapCA(t)

	if err := s.PutCertificate(caCert, nil); err != nil {
		t.Fatalf("put certificate: %v", err)
	}
	fp := Fingerprint(caCert)
	got, _, err := s.GetCertificate(fp)
	if err != nil {
		t.Fatalf("get certificate: %v", err)
	}
	if Fingerprint(got) != fp {
		t.Fatalf("round-tripped certificate fingerprint mismatch")
	}

	if err := s.Trust(fp, caCert.Subject.CommonName); err != nil {
		t.Fatalf("trust: %v", err)
	}
	ok, err := s.Verify(fp)
	if err != nil || !ok {
		t.Fatalf("expected trusted fingerprint to verify, ok=%v err=%v", ok, err)
	}

	if err := s.RevokeTrust(fp); err != nil {
		t.Fatalf("revoke trust: %v", err)
	}
	ok, err = s.Verify(fp)
	if err != nil || ok {
		t.Fatalf("expected revoked fingerprint to fail verification, ok=%v err=%v", ok, err)
	}
	if err := s.RevokeTrust(fp); err == nil {
		t.Fatalf("expected double-revoke-trust to fail")
	}

	unknown := "00:11:22:33"
	ok, err = s.Verify(unknown)
	if err != nil || ok {
		t.Fatalf("expected unknown fingerprint to be untrusted, not erroring")
	}
}
