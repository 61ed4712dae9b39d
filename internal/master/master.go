package master

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"warden/internal/auth"
	"warden/internal/certstore"
	"warden/internal/manifest"
	"warden/internal/report"
	"warden/internal/transport"
)

// Master holds everything the reactor's single dispatch handler needs
// to service HELLO/FACTS/REPORT/GET_CERT/REQUEST/CHECK/PING/BYE PDUs
// on one ROUTER endpoint, per §2's "master loads manifest, compiles a
// per-agent policy, packs and sends" control flow.
type Master struct {
	log      *zap.Logger
	man      *manifest.Manifest
	entry    string
	certs    *certstore.Store
	trust    *auth.TrustDB
	users    auth.UserAuthenticator
	caCert   *x509.Certificate
	caKey    *rsa.PrivateKey
	certDays int

	registry *Registry
	jobs     *Jobs
}

// Config bundles Master's dependencies, constructed once at daemon
// startup.
type Config struct {
	Log          *zap.Logger
	Manifest     *manifest.Manifest
	Entry        string
	Certs        *certstore.Store
	Trust        *auth.TrustDB
	Users        auth.UserAuthenticator
	CACert       *x509.Certificate
	CAKey        *rsa.PrivateKey
	CertDays     int
}

// New builds a Master from cfg.
func New(cfg Config) *Master {
	return &Master{
		log:      cfg.Log,
		man:      cfg.Manifest,
		entry:    cfg.Entry,
		certs:    cfg.Certs,
		trust:    cfg.Trust,
		users:    cfg.Users,
		caCert:   cfg.CACert,
		caKey:    cfg.CAKey,
		certDays: cfg.CertDays,
		registry: NewRegistry(),
		jobs:     NewJobs(),
	}
}

// Handle is the reactor Handler for the master's ROUTER endpoint: it
// never blocks and dispatches purely on pdu.Type.
func (m *Master) Handle(ctx context.Context, ep *transport.Endpoint, pdu *transport.PDU) transport.Directive {
	switch pdu.Type {
	case transport.Hello:
		m.handleHello(ep, pdu)
	case transport.Ping:
		m.reply(ep, pdu, transport.New(transport.Pong))
	case transport.Facts:
		m.handleFacts(ep, pdu)
	case transport.Report:
		m.handleReport(pdu)
	case transport.GetCert:
		m.handleGetCert(ep, pdu)
	case transport.Request:
		m.handleClientRequest(ep, pdu)
	case transport.Result:
		m.handleAgentResult(pdu)
	case transport.Check:
		m.handleCheck(ep, pdu)
	case transport.Bye:
		return transport.Stop
	default:
		m.replyError(ep, pdu, "protocol", "unsupported pdu type "+pdu.Type)
	}
	return transport.Continue
}

func (m *Master) reply(ep *transport.Endpoint, req *transport.PDU, resp *transport.PDU) {
	resp.Identity = req.Identity
	if err := ep.Send(resp); err != nil {
		m.log.Warn("send reply failed", zap.String("type", resp.Type), zap.Error(err))
	}
}

func (m *Master) replyError(ep *transport.Endpoint, req *transport.PDU, kind, msg string) {
	m.reply(ep, req, transport.NewText(transport.Error, kind, msg))
}

func (m *Master) handleHello(ep *transport.Endpoint, pdu *transport.PDU) {
	m.reply(ep, pdu, transport.New(transport.Hello))
}

// handleFacts compiles a policy for the sending agent's fact hash and
// pushes it back as a POLICY PDU, registering the agent under its
// reported hostname so REQUEST dispatch can find it later.
func (m *Master) handleFacts(ep *transport.Endpoint, pdu *transport.PDU) {
	facts, optout := parseFacts(pdu.Text(0))
	hostname := facts["sys.hostname"]
	if hostname == "" {
		hostname = facts["hostname"]
	}
	m.registry.Put(pdu.Identity, hostname, facts, optout)

	pol, err := manifest.Compile(m.man, m.entry, facts)
	if err != nil {
		m.log.Warn("policy compile failed", zap.String("host", hostname), zap.Error(err))
		m.replyError(ep, pdu, "compile", err.Error())
		return
	}
	m.reply(ep, pdu, transport.New(transport.Policy, []byte(pol.Pack())))
}

// parseFacts decodes FACTS's "key=value" lines payload, recognizing a
// bare "optout" line as the agent's self-declared maintenance flag.
func parseFacts(payload string) (map[string]string, bool) {
	facts := map[string]string{}
	optout := false
	for _, line := range strings.Split(payload, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "optout" {
			optout = true
			continue
		}
		if i := strings.IndexByte(line, '='); i >= 0 {
			facts[line[:i]] = line[i+1:]
		}
	}
	return facts, optout
}

func (m *Master) handleReport(pdu *transport.PDU) {
	rep, err := report.Unpack(pdu.Text(0))
	if err != nil {
		m.log.Warn("malformed report", zap.Error(err))
		return
	}
	failed := 0
	for _, rr := range rep.Resources {
		if rr.HasFailure() {
			failed++
		}
	}
	m.log.Info("job report received",
		zap.Duration("duration", rep.Duration()),
		zap.Int("resources", len(rep.Resources)),
		zap.Int("failed", failed),
	)
}

// handleGetCert signs the agent's CSR under the master's CA key, the
// master acting as a single-level certificate authority per §1. An
// empty SEND_CERT payload denies the request (e.g. no CA configured).
func (m *Master) handleGetCert(ep *transport.Endpoint, pdu *transport.PDU) {
	if m.caKey == nil {
		m.reply(ep, pdu, transport.New(transport.SendCert))
		return
	}
	csr, err := certstore.DecodeCSRPEM([]byte(pdu.Text(0)))
	if err != nil {
		m.log.Warn("malformed csr", zap.Error(err))
		m.reply(ep, pdu, transport.New(transport.SendCert))
		return
	}
	cert, err := certstore.SignCSR(csr, m.caCert, m.caKey, m.certDays)
	if err != nil {
		m.log.Warn("csr signing failed", zap.Error(err))
		m.reply(ep, pdu, transport.New(transport.SendCert))
		return
	}
	if err := m.certs.PutCertificate(cert, nil); err != nil {
		m.log.Warn("store signed cert failed", zap.Error(err))
	}
	m.reply(ep, pdu, transport.New(transport.SendCert, certstore.EncodeCertPEM(cert)))
}

// handleClientRequest authenticates the client, starts a job against
// every agent matching the host filter, and pushes each matched agent
// a REQUEST of its own carrying the command to run (the master reuses
// the REQUEST PDU type for this master->agent push — the wire table's
// "client->master" direction note describes the common case, not an
// exclusive one; see DESIGN.md). Agents answer with a RESULT PDU
// carrying the job serial, handled by handleAgentResult below.
func (m *Master) handleClientRequest(ep *transport.Endpoint, pdu *transport.PDU) {
	user, pass, command, filter := pdu.Text(0), pdu.Text(1), pdu.Text(2), pdu.Text(3)

	if m.users != nil {
		if err := m.users.Authenticate(context.Background(), "cw-run", user, pass); err != nil {
			m.replyError(ep, pdu, "auth", err.Error())
			return
		}
	}

	agents := m.registry.Match(filter)
	hosts := make([]string, 0, len(agents))
	for _, a := range agents {
		hosts = append(hosts, a.Hostname)
	}

	serial := uuid.NewString()
	m.jobs.Start(serial, hosts)

	for _, a := range agents {
		push := transport.NewText(transport.Request, user, command, serial)
		push.Identity = a.Identity
		if err := ep.Send(push); err != nil {
			m.log.Warn("dispatch to agent failed", zap.String("host", a.Hostname), zap.Error(err))
		}
	}

	m.reply(ep, pdu, transport.NewText(transport.Submitted, serial))
}

// handleCheck drains one buffered result for serial, or reports PONG
// if the job is still outstanding with no result ready yet, or DONE
// once every expected agent has answered and every result has been
// drained.
func (m *Master) handleCheck(ep *transport.Endpoint, pdu *transport.PDU) {
	serial := pdu.Text(0)
	r, ok, stillPending, known := m.jobs.PopResult(serial)
	if !known {
		m.replyError(ep, pdu, "protocol", "unknown job "+serial)
		return
	}
	if ok {
		if r.Optout {
			m.reply(ep, pdu, transport.NewText(transport.Optout, r.Host))
			return
		}
		m.reply(ep, pdu, transport.NewText(transport.Result, r.Host, strconv.Itoa(r.RC), r.Output))
		return
	}
	if stillPending {
		m.reply(ep, pdu, transport.New(transport.Pong))
		return
	}
	m.reply(ep, pdu, transport.New(transport.Done))
}

// handleAgentResult buffers an agent's answer to a dispatched command
// for the client's next CHECK. Payload is (serial, host, rc, output);
// rc == "optout" marks a host that declined to run the command.
func (m *Master) handleAgentResult(pdu *transport.PDU) {
	serial, host, rc, output := pdu.Text(0), pdu.Text(1), pdu.Text(2), pdu.Text(3)
	if rc == "optout" {
		m.jobs.AddResult(serial, host, Result{Host: host, Optout: true})
		return
	}
	code, err := strconv.Atoi(rc)
	if err != nil {
		m.log.Warn("malformed result rc", zap.String("host", host), zap.String("rc", rc))
		return
	}
	m.jobs.AddResult(serial, host, Result{Host: host, RC: code, Output: output})
}
