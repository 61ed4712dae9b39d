// Command cw-cert manages the certificate authority: key generation,
// CSR issuance, signing, fingerprinting, listing, and revocation.
package main

import (
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"warden/internal/certstore"
)

var storePath string

var rootCmd = &cobra.Command{
	Use:   "cw-cert",
	Short: "warden certificate authority tool",
}

func openStore() (*certstore.Store, error) {
	return certstore.Open(storePath)
}

var genkeyCmd = &cobra.Command{
	Use:   "genkey out.pem",
	Short: "generate an RSA keypair and write its PEM encoding",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		bits, _ := cmd.Flags().GetInt("bits")
		key, err := certstore.GenerateKey(bits)
		if err != nil {
			return err
		}
		return os.WriteFile(args[0], certstore.EncodeKeyPEM(key), 0o600)
	},
}

var gencsrCmd = &cobra.Command{
	Use:   "gencsr key.pem csr.pem",
	Short: "generate a CSR for an existing key",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		keyPEM, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		key, err := certstore.DecodeKeyPEM(keyPEM)
		if err != nil {
			return err
		}
		subj := subjectFromFlags(cmd)
		_, der, err := certstore.GenerateCSR(key, subj)
		if err != nil {
			return err
		}
		return os.WriteFile(args[1], certstore.EncodeCSRPEM(der), 0o644)
	},
}

var signCmd = &cobra.Command{
	Use:   "sign csr.pem cert.pem",
	Short: "sign a CSR, self-signed if --ca-cert is omitted",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		csrPEM, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		block, _ := pem.Decode(csrPEM)
		if block == nil {
			return fmt.Errorf("sign: no PEM block in %s", args[0])
		}
		csr, err := x509.ParseCertificateRequest(block.Bytes)
		if err != nil {
			return fmt.Errorf("sign: parse csr: %w", err)
		}

		caCertPath, _ := cmd.Flags().GetString("ca-cert")
		caKeyPath, _ := cmd.Flags().GetString("ca-key")
		days, _ := cmd.Flags().GetInt("days")

		caKeyPEM, err := os.ReadFile(caKeyPath)
		if err != nil {
			return err
		}
		caKey, err := certstore.DecodeKeyPEM(caKeyPEM)
		if err != nil {
			return err
		}

		var caCert *x509.Certificate
		if caCertPath != "" {
			caCertPEM, err := os.ReadFile(caCertPath)
			if err != nil {
				return err
			}
			caCert, err = certstore.DecodeCertPEM(caCertPEM)
			if err != nil {
				return err
			}
		}

		signed, err := certstore.SignCSR(csr, caCert, caKey, days)
		if err != nil {
			return err
		}

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()
		if err := store.PutCertificate(signed, nil); err != nil {
			return err
		}
		return os.WriteFile(args[1], certstore.EncodeCertPEM(signed), 0o644)
	},
}

var fingerprintCmd = &cobra.Command{
	Use:   "fingerprint cert.pem",
	Short: "print a certificate's SHA-1 fingerprint",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		certPEM, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		cert, err := certstore.DecodeCertPEM(certPEM)
		if err != nil {
			return err
		}
		fmt.Println(certstore.Fingerprint(cert))
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "list certificates on file",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()
		certs, err := store.ListCertificates()
		if err != nil {
			return err
		}
		for _, c := range certs {
			fmt.Printf("%s  %-8s  %-32s  expires %s\n", c.Fingerprint, c.CertType, c.FQDN, c.NotAfter.Format("2006-01-02"))
		}
		return nil
	},
}

var revokeCmd = &cobra.Command{
	Use:   "revoke fingerprint",
	Short: "revoke a trusted fingerprint",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()
		return store.RevokeTrust(args[0])
	},
}

func subjectFromFlags(cmd *cobra.Command) certstore.Subject {
	get := func(name string) string {
		v, _ := cmd.Flags().GetString(name)
		return v
	}
	return certstore.Subject{
		Country:  get("country"),
		State:    get("state"),
		Locality: get("locality"),
		Org:      get("org"),
		OrgUnit:  get("org-unit"),
		CertType: get("cert-type"),
		FQDN:     get("fqdn"),
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&storePath, "store", "warden-ca.db", "path to the certificate store")

	genkeyCmd.Flags().Int("bits", 2048, "RSA key size")

	gencsrCmd.Flags().String("country", "", "subject country")
	gencsrCmd.Flags().String("state", "", "subject state/province")
	gencsrCmd.Flags().String("locality", "", "subject locality")
	gencsrCmd.Flags().String("org", "", "subject organization")
	gencsrCmd.Flags().String("org-unit", "", "subject organizational unit")
	gencsrCmd.Flags().String("cert-type", "agent", "cert type, e.g. agent or master")
	gencsrCmd.Flags().String("fqdn", "", "subject fully-qualified domain name")

	signCmd.Flags().String("ca-cert", "", "CA certificate PEM (omit for self-signed)")
	signCmd.Flags().String("ca-key", "", "CA (or subject's own) private key PEM")
	signCmd.Flags().Int("days", 365, "validity period in days")

	rootCmd.AddCommand(genkeyCmd, gencsrCmd, signCmd, fingerprintCmd, listCmd, revokeCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
