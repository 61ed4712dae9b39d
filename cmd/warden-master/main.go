// Command warden-master is the control-plane daemon: it loads a
// manifest, compiles a policy per connecting agent's fact hash, signs
// agent certificates under its own CA, authenticates client REQUEST
// PDUs, and dispatches ad hoc commands, all over one ROUTER socket
// serviced by the transport reactor.
package main

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"warden/internal/auth"
	"warden/internal/certstore"
	"warden/internal/cliexit"
	"warden/internal/logging"
	"warden/internal/manifest"
	"warden/internal/master"
	"warden/internal/transport"
)

var (
	listenAddr   string
	manifestPath string
	entryPolicy  string
	caDir        string
	storePath    string
	certDays     int
	verbose      bool
	noAuth       bool
	usersPath    string
)

var rootCmd = &cobra.Command{
	Use:   "warden-master",
	Short: "compile policy for connecting agents and service client commands",
	RunE:  run,
}

func init() {
	rootCmd.Flags().StringVar(&listenAddr, "listen", "tcp://*:5309", "ROUTER bind address")
	rootCmd.Flags().StringVarP(&manifestPath, "manifest", "m", "/etc/warden/manifest.yaml", "manifest YAML file")
	rootCmd.Flags().StringVar(&entryPolicy, "entry", "default", "entry policy name within the manifest")
	rootCmd.Flags().StringVar(&caDir, "ca-dir", "/etc/warden/ca", "directory holding the master's CA key and certificate")
	rootCmd.Flags().StringVar(&storePath, "store", "/etc/warden/warden-ca.db", "certificate store path")
	rootCmd.Flags().IntVar(&certDays, "cert-days", 365, "validity period for agent certificates signed by this master")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "enable development-mode (console, debug-level) logging")
	rootCmd.Flags().BoolVar(&noAuth, "no-auth", false, "accept every client REQUEST without checking credentials (testing only)")
	rootCmd.Flags().StringVar(&usersPath, "users", "", "\"service user password\" table file for client authentication")
}

// loadOrInitCA reads the master's CA key and certificate from caDir,
// generating a fresh self-signed pair on first run.
func loadOrInitCA(caDir string) (*x509.Certificate, *rsa.PrivateKey, error) {
	keyPath := filepath.Join(caDir, "ca-key.pem")
	certPath := filepath.Join(caDir, "ca-cert.pem")

	keyPEM, keyErr := os.ReadFile(keyPath)
	certPEM, certErr := os.ReadFile(certPath)
	if keyErr == nil && certErr == nil {
		key, err := certstore.DecodeKeyPEM(keyPEM)
		if err != nil {
			return nil, nil, err
		}
		cert, err := certstore.DecodeCertPEM(certPEM)
		if err != nil {
			return nil, nil, err
		}
		return cert, key, nil
	}

	key, err := certstore.GenerateKey(4096)
	if err != nil {
		return nil, nil, err
	}
	csr, _, err := certstore.GenerateCSR(key, certstore.Subject{CertType: "master", FQDN: "warden-ca"})
	if err != nil {
		return nil, nil, err
	}
	cert, err := certstore.SignCSR(csr, nil, key, 3650)
	if err != nil {
		return nil, nil, err
	}

	if err := os.MkdirAll(caDir, 0o700); err != nil {
		return nil, nil, err
	}
	if err := os.WriteFile(keyPath, certstore.EncodeKeyPEM(key), 0o600); err != nil {
		return nil, nil, err
	}
	if err := os.WriteFile(certPath, certstore.EncodeCertPEM(cert), 0o644); err != nil {
		return nil, nil, err
	}
	return cert, key, nil
}

// loadUsers parses a "service user password" table, one line per
// triple, used to build the client-facing StaticUserAuthenticator.
func loadUsers(path string) (map[string]map[string]string, error) {
	users := map[string]map[string]string{}
	if path == "" {
		return users, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	for _, line := range splitLines(string(data)) {
		var service, user, pass string
		n, _ := fmt.Sscanf(line, "%s %s %s", &service, &user, &pass)
		if n != 3 {
			continue
		}
		if users[service] == nil {
			users[service] = map[string]string{}
		}
		users[service][user] = pass
	}
	return users, nil
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i, r := range s {
		if r == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	if start < len(s) {
		lines = append(lines, s[start:])
	}
	return lines
}

func run(cmd *cobra.Command, args []string) error {
	log, err := logging.New("warden-master", verbose)
	if err != nil {
		return err
	}
	defer log.Sync()

	data, err := os.ReadFile(manifestPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "warden-master:", err)
		os.Exit(cliexit.ConfigError)
	}
	man, err := manifest.ParseYAML(data)
	if err != nil {
		fmt.Fprintln(os.Stderr, "warden-master:", err)
		os.Exit(cliexit.ConfigError)
	}

	certs, err := certstore.Open(storePath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "warden-master:", err)
		os.Exit(cliexit.ConfigError)
	}
	defer certs.Close()

	caCert, caKey, err := loadOrInitCA(caDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "warden-master:", err)
		os.Exit(cliexit.ConfigError)
	}

	trust := auth.NewTrustDB(certs, noAuth)

	users, err := loadUsers(usersPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "warden-master:", err)
		os.Exit(cliexit.ConfigError)
	}
	var userAuth auth.UserAuthenticator
	if !noAuth {
		userAuth = auth.NewStaticUserAuthenticator(users)
	}

	m := master.New(master.Config{
		Log:      log,
		Manifest: man,
		Entry:    entryPolicy,
		Certs:    certs,
		Trust:    trust,
		Users:    userAuth,
		CACert:   caCert,
		CAKey:    caKey,
		CertDays: certDays,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		log.Info("shutting down")
		cancel()
	}()

	router, err := transport.NewRouter(ctx, listenAddr)
	if err != nil {
		fmt.Fprintln(os.Stderr, "warden-master:", err)
		os.Exit(cliexit.InvalidArgOrUnreach)
	}
	defer router.Close()

	reactor := transport.NewReactor(log)
	reactor.Register(&transport.Endpoint{
		Name:        "router",
		Socket:      router,
		HasIdentity: true,
		Handler:     m.Handle,
	})

	authenticator := auth.NewAuthenticator(trust, log)
	err = auth.RunWithZAP(ctx, authenticator, reactor.Run)
	if err != nil && ctx.Err() == nil {
		fmt.Fprintln(os.Stderr, "warden-master:", err)
		os.Exit(cliexit.ProtocolError)
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cliexit.InvalidArgOrUnreach)
	}
}
