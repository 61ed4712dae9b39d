// Command warden-agent is the per-host convergence daemon: it dials a
// warden-master, announces local facts, receives a compiled policy,
// and converges the machine's state against it on a fixed poll
// interval, mirroring the wire protocol cw-run speaks for ad hoc
// commands but run continuously instead of once.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"warden/internal/adapters"
	"warden/internal/agentd"
	"warden/internal/cliexit"
	"warden/internal/logging"
	"warden/internal/pathcfg"
	"warden/internal/transport"
)

var (
	cfgPath     string
	masterAddr  string
	certDir     string
	pollSeconds int
	pkgBackend  string
	verbose     bool
	optoutFlag  bool
	rootDir     string
)

var rootCmd = &cobra.Command{
	Use:   "warden-agent",
	Short: "converge local state against the policy a warden-master compiles for this host",
	RunE:  run,
}

func init() {
	rootCmd.Flags().StringVarP(&cfgPath, "config", "c", "/etc/warden/agent.conf", "config file")
	rootCmd.Flags().StringVar(&masterAddr, "master", "", "master address, overrides config")
	rootCmd.Flags().StringVar(&certDir, "cert-dir", "/etc/warden/certs", "directory holding this agent's key and signed certificate")
	rootCmd.Flags().IntVar(&pollSeconds, "poll", 300, "seconds between policy cycles")
	rootCmd.Flags().StringVar(&pkgBackend, "pkg-backend", defaultPkgBackend(), "package manager backend: apt, yum, or apk")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "enable development-mode (console, debug-level) logging")
	rootCmd.Flags().BoolVar(&optoutFlag, "optout", false, "start in maintenance mode, declining pushed commands and reporting optout facts")
	rootCmd.Flags().StringVar(&rootDir, "root", "", "alternate filesystem root, for testing against a scratch tree")
}

func defaultPkgBackend() string {
	if runtime.GOOS != "linux" {
		return "apt"
	}
	for _, candidate := range []struct{ path, name string }{
		{"/usr/bin/apt-get", "apt"},
		{"/usr/bin/yum", "yum"},
		{"/sbin/apk", "apk"},
		{"/usr/bin/apk", "apk"},
	} {
		if _, err := os.Stat(candidate.path); err == nil {
			return candidate.name
		}
	}
	return "apt"
}

func loadConfig() (*pathcfg.Config, error) {
	f, err := os.Open(cfgPath)
	if err != nil {
		if os.IsNotExist(err) {
			return pathcfg.New(), nil
		}
		return nil, err
	}
	defer f.Close()
	return pathcfg.Read(f)
}

func run(cmd *cobra.Command, args []string) error {
	log, err := logging.New("warden-agent", verbose)
	if err != nil {
		return err
	}
	defer log.Sync()

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "warden-agent:", err)
		os.Exit(cliexit.ConfigError)
	}

	addr := masterAddr
	if addr == "" {
		if v, ok := cfg.Get("master"); ok {
			addr = v
		} else {
			addr = "tcp://127.0.0.1:5309"
		}
	}
	if v, ok := cfg.Get("poll"); ok && !cmd.Flags().Changed("poll") {
		if n, err := parsePositiveInt(v); err == nil {
			pollSeconds = n
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		log.Info("shutting down")
		cancel()
	}()

	zsock, err := transport.NewDealer(ctx, addr)
	if err != nil {
		fmt.Fprintln(os.Stderr, "warden-agent:", err)
		os.Exit(cliexit.InvalidArgOrUnreach)
	}
	defer zsock.Close()

	view := adapters.NewLiveOS(adapters.NewShellPackageManager(pkgBackend), adapters.NewSystemdServiceManager())
	if rootDir != "" {
		view.Root = rootDir
	}

	a := agentd.New(agentd.Config{
		Log:          log,
		Addr:         addr,
		View:         view,
		CertDir:      certDir,
		PollInterval: time.Duration(pollSeconds) * time.Second,
		Hostname:     agentd.DefaultHostname(),
		Facts:        map[string]string{"sys.hostname": agentd.DefaultHostname(), "sys.os": runtime.GOOS, "sys.arch": runtime.GOARCH},
		Optout:       func() bool { return optoutFlag },
	}, dealerSocket{zsock})

	if err := a.Run(ctx); err != nil && ctx.Err() == nil {
		fmt.Fprintln(os.Stderr, "warden-agent:", err)
		os.Exit(cliexit.ProtocolError)
	}
	return nil
}

func parsePositiveInt(s string) (int, error) {
	var n int
	_, err := fmt.Sscanf(s, "%d", &n)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid positive integer %q", s)
	}
	return n, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cliexit.InvalidArgOrUnreach)
	}
}
