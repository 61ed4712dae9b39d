// Command cw-run issues a one-shot REQUEST to a warden master and
// polls for its result, mirroring the master/agent wire protocol's
// client-facing half.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-zeromq/zmq4"
	"github.com/spf13/cobra"

	"warden/internal/auth"
	"warden/internal/cliexit"
	"warden/internal/pathcfg"
	"warden/internal/transport"
)

var (
	user       string
	pass       string
	pubkey     string
	timeoutS   int
	sleepMS    int
	filter     string
	cfgPath    string
	optouts    bool
	masterAddr string
)

var rootCmd = &cobra.Command{
	Use:   "cw-run [flags] cmd...",
	Short: "issue a one-shot command to agents matching a host filter",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runRequest,
}

func init() {
	rootCmd.Flags().StringVarP(&user, "user", "u", os.Getenv("USER"), "request username")
	rootCmd.Flags().StringVarP(&pass, "pass", "p", "", "request password")
	rootCmd.Flags().StringVarP(&pubkey, "pubkey", "k", "", "expected master public key (hex), for key pinning")
	rootCmd.Flags().IntVarP(&timeoutS, "timeout", "t", 5, "request timeout, seconds")
	rootCmd.Flags().IntVarP(&sleepMS, "sleep", "s", 250, "polling cadence, milliseconds")
	rootCmd.Flags().StringVarP(&filter, "filter", "w", "", "host filter expression")
	rootCmd.Flags().StringVarP(&cfgPath, "config", "c", "/etc/warden/cw-run.conf", "config file")
	rootCmd.Flags().BoolVar(&optouts, "optouts", false, "report hosts that opted out")
	rootCmd.Flags().StringVar(&masterAddr, "master", "", "master address, overrides config")
}

func loadMasterAddr() (string, error) {
	if masterAddr != "" {
		return masterAddr, nil
	}
	f, err := os.Open(cfgPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "tcp://127.0.0.1:5309", nil
		}
		return "", err
	}
	defer f.Close()
	cfg, err := pathcfg.Read(f)
	if err != nil {
		return "", err
	}
	if addr, ok := cfg.Get("master"); ok {
		return addr, nil
	}
	return "tcp://127.0.0.1:5309", nil
}

func runRequest(cmd *cobra.Command, args []string) error {
	if pubkey != "" {
		if _, err := auth.ParseFingerprint(pubkey); err != nil {
			fmt.Fprintln(os.Stderr, "cw-run: --pubkey:", err)
			os.Exit(cliexit.InvalidArgOrUnreach)
		}
	}

	addr, err := loadMasterAddr()
	if err != nil {
		fmt.Fprintln(os.Stderr, "cw-run:", err)
		os.Exit(cliexit.ConfigError)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		cancel()
	}()

	sock, err := transport.NewDealer(ctx, addr)
	if err != nil {
		fmt.Fprintln(os.Stderr, "cw-run:", err)
		os.Exit(cliexit.InvalidArgOrUnreach)
	}
	defer sock.Close()

	timeoutMS := transport.ClampTimeout(timeoutS * 1000)
	sleep := transport.ClampSleep(sleepMS)
	command := strings.Join(args, " ")

	req := transport.NewText(transport.Request, user, pass, command, filter)
	if err := sock.Send(req.ToMsg()); err != nil {
		fmt.Fprintln(os.Stderr, "cw-run:", err)
		os.Exit(cliexit.InvalidArgOrUnreach)
	}

	deadline := time.Now().Add(time.Duration(timeoutMS) * time.Millisecond)
	reply, err := recvPDU(sock)
	if err != nil {
		fmt.Fprintln(os.Stderr, "cw-run:", err)
		os.Exit(cliexit.ProtocolError)
	}
	if reply.Type != transport.Submitted {
		fmt.Fprintln(os.Stderr, "cw-run: unexpected reply", reply.Type)
		os.Exit(cliexit.ProtocolError)
	}
	serial := reply.Text(0)

	exitCode := cliexit.OK
	for {
		if time.Now().After(deadline) {
			fmt.Fprintln(os.Stderr, "cw-run: timed out waiting for job", serial)
			os.Exit(cliexit.InvalidArgOrUnreach)
		}
		time.Sleep(time.Duration(sleep) * time.Millisecond)

		check := transport.NewText(transport.Check, serial)
		if err := sock.Send(check.ToMsg()); err != nil {
			fmt.Fprintln(os.Stderr, "cw-run:", err)
			os.Exit(cliexit.ProtocolError)
		}
		reply, err := recvPDU(sock)
		if err != nil {
			fmt.Fprintln(os.Stderr, "cw-run:", err)
			os.Exit(cliexit.ProtocolError)
		}

		switch reply.Type {
		case transport.Result:
			fmt.Printf("%s rc=%s\n%s\n", reply.Text(0), reply.Text(1), reply.Text(2))
			if reply.Text(1) != "0" {
				exitCode = cliexit.ExecFailure
			}
		case transport.Optout:
			if optouts {
				fmt.Printf("%s opted out\n", reply.Text(0))
			}
		case transport.Done:
			os.Exit(exitCode)
		case transport.Pong:
			// job still running, no result ready yet; keep polling
		case transport.Error:
			fmt.Fprintf(os.Stderr, "cw-run: error %s: %s\n", reply.Text(0), reply.Text(1))
			os.Exit(cliexit.ProtocolError)
		default:
			fmt.Fprintln(os.Stderr, "cw-run: unexpected reply", reply.Type)
			os.Exit(cliexit.ProtocolError)
		}
	}
}

func recvPDU(sock zmq4.Socket) (*transport.PDU, error) {
	msg, err := sock.Recv()
	if err != nil {
		return nil, err
	}
	return transport.FromMsg(msg, false)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cliexit.InvalidArgOrUnreach)
	}
}
