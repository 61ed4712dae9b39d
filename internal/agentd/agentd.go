// Package agentd implements the warden-agent daemon loop: dial the
// master, bootstrap a signed certificate if one isn't on file yet,
// then repeatedly announce facts, receive a compiled policy, converge
// local state against it, and report back what happened. Between
// cycles it also answers ad hoc commands the master pushes down as
// REQUEST PDUs, grounded on cw-run's client-facing request/reply loop
// but turned around to the agent's side of the same wire protocol.
package agentd

import (
	"context"
	"os"
	"os/exec"
	"strconv"
	"time"

	"go.uber.org/zap"

	"warden/internal/policy"
	"warden/internal/report"
	"warden/internal/resource"
	"warden/internal/transport"
	"warden/internal/werr"
)

// Config bundles an Agent's dependencies, constructed once at daemon
// startup.
type Config struct {
	Log          *zap.Logger
	Addr         string
	View         resource.LiveView
	CertDir      string
	PollInterval time.Duration
	Hostname     string
	Facts        map[string]string
	Optout       func() bool
}

// Agent is one running warden-agent instance: a single DEALER socket
// dialed at the master, serviced sequentially so the policy cycle and
// any interleaved pushed command never race each other on the socket.
type Agent struct {
	log     *zap.Logger
	sock    Socket
	view    resource.LiveView
	certDir string
	poll    time.Duration
	host    string
	facts   map[string]string
	optout  func() bool
}

// Socket is the subset of zmq4.Socket the agent loop needs, narrowed
// so tests can fake the wire without a real ZeroMQ context.
type Socket interface {
	Send(pdu *transport.PDU) error
	Recv() (*transport.PDU, error)
	Close() error
}

// New returns an Agent that talks to the master over sock, ready to Run.
func New(cfg Config, sock Socket) *Agent {
	optout := cfg.Optout
	if optout == nil {
		optout = func() bool { return false }
	}
	facts := cfg.Facts
	if facts == nil {
		facts = map[string]string{}
	}
	return &Agent{
		log:     cfg.Log,
		sock:    sock,
		view:    cfg.View,
		certDir: cfg.CertDir,
		poll:    cfg.PollInterval,
		host:    cfg.Hostname,
		facts:   facts,
		optout:  optout,
	}
}

// Run bootstraps a certificate if needed, then cycles until ctx is
// cancelled.
func (a *Agent) Run(ctx context.Context) error {
	if err := a.ensureCert(ctx); err != nil {
		a.log.Warn("certificate bootstrap failed, continuing unsigned", zap.Error(err))
	}

	ticker := time.NewTicker(a.poll)
	defer ticker.Stop()

	if err := a.cycle(ctx); err != nil {
		a.log.Warn("policy cycle failed", zap.Error(err))
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := a.cycle(ctx); err != nil {
				a.log.Warn("policy cycle failed", zap.Error(err))
			}
		}
	}
}

// cycle runs one HELLO/FACTS/POLICY/REPORT round trip.
func (a *Agent) cycle(ctx context.Context) error {
	if err := a.sock.Send(transport.New(transport.Hello)); err != nil {
		return werr.Wrap(werr.IO, "send hello: %v", err)
	}
	if _, err := a.awaitType(ctx, transport.Hello); err != nil {
		return err
	}

	if err := a.sock.Send(transport.NewText(transport.Facts, encodeFacts(a.facts, a.optout()))); err != nil {
		return werr.Wrap(werr.IO, "send facts: %v", err)
	}
	reply, err := a.awaitType(ctx, transport.Policy, transport.Error)
	if err != nil {
		return err
	}
	if reply.Type == transport.Error {
		a.log.Warn("master rejected facts", zap.String("kind", reply.Text(0)), zap.String("detail", reply.Text(1)))
		return nil
	}

	pol, err := policy.Unpack(reply.Text(0))
	if err != nil {
		return werr.Wrap(werr.ParseError, "unpack policy: %v", err)
	}

	rep := a.converge(ctx, pol)
	return a.sock.Send(transport.New(transport.Report, []byte(rep.Pack())))
}

// converge walks pol's resources in dependency order, stats each
// against the live view, remediates what differs, and accumulates an
// action log per resource the way the report PDU expects it. A
// cancelled ctx is honored only between resources — the resource
// currently being converged always finishes and is recorded before
// the loop stops, matching the reactor's own suspension-point
// discipline.
func (a *Agent) converge(ctx context.Context, pol *policy.Policy) report.Report {
	var timer report.Timer
	timer.Start()

	resources, err := pol.Sort()
	if err != nil {
		a.log.Warn("policy has a cyclic dependency", zap.Error(err))
		return timer.Stop()
	}

	var done []report.ResourceReport
	for _, r := range resources {
		done = append(done, a.converge1(r))
		if ctx.Err() != nil {
			break
		}
	}
	rep := timer.Stop()
	for _, rr := range done {
		rep.AddResource(rr)
	}
	return rep
}

func (a *Agent) converge1(r resource.Resource) report.ResourceReport {
	rr := report.ResourceReport{Type: string(r.Kind()), Key: r.Key()}

	if err := r.Stat(a.view); err != nil {
		rr.Actions = append(rr.Actions, report.Action{
			Description: "stat: " + err.Error(),
			Outcome:     report.Failed,
		})
		return rr
	}

	if r.Diff() == 0 {
		rr.Actions = append(rr.Actions, report.Action{Description: "in sync", Outcome: report.Succeeded})
		return rr
	}

	if err := r.Remediate(a.view); err != nil {
		rr.Actions = append(rr.Actions, report.Action{
			Description: "remediate: " + err.Error(),
			Outcome:     report.Failed,
		})
		return rr
	}
	rr.Actions = append(rr.Actions, report.Action{Description: "remediated", Outcome: report.Fixed})
	return rr
}

// awaitType blocks for the next PDU matching one of want, handling any
// unsolicited REQUEST push the master sends in the meantime — a
// command run between polling cycles lands here rather than stalling
// the policy cycle behind it.
func (a *Agent) awaitType(ctx context.Context, want ...string) (*transport.PDU, error) {
	for {
		pdu, err := a.sock.Recv()
		if err != nil {
			return nil, werr.Wrap(werr.IO, "recv: %v", err)
		}
		for _, t := range want {
			if pdu.Type == t {
				return pdu, nil
			}
		}
		a.handlePush(ctx, pdu)
	}
}

// handlePush services a PDU the agent didn't ask for: today that's
// only a master-dispatched ad hoc command.
func (a *Agent) handlePush(_ context.Context, pdu *transport.PDU) {
	switch pdu.Type {
	case transport.Request:
		a.runCommand(pdu.Text(0), pdu.Text(1), pdu.Text(2))
	default:
		a.log.Debug("ignoring unsolicited pdu", zap.String("type", pdu.Type))
	}
}

// runCommand executes a master-pushed command under sh -c and replies
// with its result, or declines with an optout result if the agent is
// in maintenance mode.
func (a *Agent) runCommand(user, command, serial string) {
	if a.optout() {
		a.reply(serial, "optout", "")
		return
	}
	out, rc := execCommand(command)
	a.log.Info("ran pushed command", zap.String("user", user), zap.String("serial", serial), zap.Int("rc", rc))
	a.reply(serial, strconv.Itoa(rc), out)
}

func (a *Agent) reply(serial, rc, output string) {
	pdu := transport.NewText(transport.Result, serial, a.host, rc, output)
	if err := a.sock.Send(pdu); err != nil {
		a.log.Warn("send result failed", zap.String("serial", serial), zap.Error(err))
	}
}

func execCommand(command string) (output string, rc int) {
	cmd := exec.Command("sh", "-c", command)
	out, err := cmd.CombinedOutput()
	if err == nil {
		return string(out), 0
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return string(out), exitErr.ExitCode()
	}
	return string(out) + err.Error(), -1
}

// encodeFacts renders facts as the "key=value"-per-line FACTS payload,
// with a bare "optout" line appended when optout is set.
func encodeFacts(facts map[string]string, optout bool) string {
	var b []byte
	for k, v := range facts {
		b = append(b, k...)
		b = append(b, '=')
		b = append(b, v...)
		b = append(b, '\n')
	}
	if optout {
		b = append(b, "optout\n"...)
	}
	return string(b)
}

// DefaultHostname resolves os.Hostname, falling back to "localhost" so
// a broken hostname lookup never prevents the agent from announcing.
func DefaultHostname() string {
	h, err := os.Hostname()
	if err != nil || h == "" {
		return "localhost"
	}
	return h
}
