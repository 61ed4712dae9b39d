package agentd

import (
	"context"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"warden/internal/certstore"
	"warden/internal/transport"
	"warden/internal/werr"
)

const (
	keyFile  = "agent-key.pem"
	certFile = "agent-cert.pem"
	keyBits  = 2048
)

// ensureCert is a no-op once a signed certificate is already on file.
// Otherwise it generates a fresh keypair, submits a CSR over GET_CERT,
// and persists whatever SEND_CERT sends back.
func (a *Agent) ensureCert(ctx context.Context) error {
	if a.certDir == "" {
		return nil
	}
	certPath := filepath.Join(a.certDir, certFile)
	if _, err := os.Stat(certPath); err == nil {
		return nil
	}

	key, err := certstore.GenerateKey(keyBits)
	if err != nil {
		return err
	}
	_, der, err := certstore.GenerateCSR(key, certstore.Subject{
		CertType: "agent",
		FQDN:     a.host,
	})
	if err != nil {
		return err
	}

	if err := a.sock.Send(transport.New(transport.GetCert, certstore.EncodeCSRPEM(der))); err != nil {
		return werr.Wrap(werr.IO, "send get_cert: %v", err)
	}
	reply, err := a.awaitType(ctx, transport.SendCert)
	if err != nil {
		return err
	}
	if reply.Text(0) == "" {
		return werr.Wrap(werr.PermissionDenied, "master declined certificate request")
	}
	cert, err := certstore.DecodeCertPEM([]byte(reply.Text(0)))
	if err != nil {
		return err
	}

	if err := os.MkdirAll(a.certDir, 0o700); err != nil {
		return werr.Wrap(werr.IO, "mkdir cert dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(a.certDir, keyFile), certstore.EncodeKeyPEM(key), 0o600); err != nil {
		return werr.Wrap(werr.IO, "write key: %v", err)
	}
	if err := os.WriteFile(certPath, certstore.EncodeCertPEM(cert), 0o644); err != nil {
		return werr.Wrap(werr.IO, "write cert: %v", err)
	}
	a.log.Info("obtained signed certificate", zap.String("fingerprint", certstore.Fingerprint(cert)))
	return nil
}
