package auth

import (
	"context"

	"github.com/go-zeromq/zmq4"
	"go.uber.org/zap"

	"warden/internal/werr"
)

// ZAPEndpoint is the well-known inproc address ZeroMQ's ZAP handshake
// always binds to, regardless of which socket is being authenticated.
const ZAPEndpoint = "inproc://zeromq.zap.01"

const zapVersion = "1.0"

// zapRequest is a parsed ZAP 1.0 request. See the ZAP RFC (ZMQ RFC 27)
// for the wire layout this mirrors frame-for-frame.
type zapRequest struct {
	version     string
	sequence    string
	domain      string
	address     string
	identity    string
	mechanism   string
	credentials [][]byte
}

func parseZAPRequest(frames [][]byte) (*zapRequest, error) {
	if len(frames) < 6 {
		return nil, werr.Wrap(werr.ParseError, "zap request: want at least 6 frames, got %d", len(frames))
	}
	return &zapRequest{
		version:     string(frames[0]),
		sequence:    string(frames[1]),
		domain:      string(frames[2]),
		address:     string(frames[3]),
		identity:    string(frames[4]),
		mechanism:   string(frames[5]),
		credentials: frames[6:],
	}, nil
}

func zapReply(sequence, statusCode, statusText, userID string) zmq4.Msg {
	return zmq4.NewMsgFrom(
		[]byte(zapVersion),
		[]byte(sequence),
		[]byte(statusCode),
		[]byte(statusText),
		[]byte(userID),
		nil,
	)
}

// Authenticator is the ZAP background task: a cooperative loop
// servicing ZAPEndpoint, deciding CURVE-mechanism requests against a
// trust database.
type Authenticator struct {
	trust *TrustDB
	log   *zap.Logger
}

func NewAuthenticator(trust *TrustDB, log *zap.Logger) *Authenticator {
	return &Authenticator{trust: trust, log: log}
}

// Run binds the REP socket at ZAPEndpoint and services requests until
// ctx is cancelled or the socket errors out. Intended to be run as one
// goroutine in an errgroup alongside the rest of the reactor.
func (a *Authenticator) Run(ctx context.Context) error {
	sock := zmq4.NewRep(ctx)
	defer sock.Close()
	if err := sock.Listen(ZAPEndpoint); err != nil {
		return werr.Wrap(werr.IO, "bind zap endpoint: %v", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		msg, err := sock.Recv()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return werr.Wrap(werr.IO, "zap recv: %v", err)
		}

		req, err := parseZAPRequest(msg.Frames)
		if err != nil {
			a.log.Warn("malformed zap request", zap.Error(err))
			if sendErr := sock.Send(zapReply("1", "400", "malformed request", "")); sendErr != nil {
				return werr.Wrap(werr.IO, "zap send: %v", sendErr)
			}
			continue
		}

		reply := a.decide(req)
		if err := sock.Send(reply); err != nil {
			return werr.Wrap(werr.IO, "zap send: %v", err)
		}
	}
}

func (a *Authenticator) decide(req *zapRequest) zmq4.Msg {
	if req.mechanism != "CURVE" || len(req.credentials) == 0 {
		return zapReply(req.sequence, "400", "unsupported mechanism", "")
	}
	pub := req.credentials[0]
	if len(pub) != 32 {
		return zapReply(req.sequence, "400", "malformed public key", "")
	}
	var key [32]byte
	copy(key[:], pub)

	ok, err := a.trust.Verify(&key)
	if !ok || err != nil {
		return zapReply(req.sequence, "400", "Untrusted", "")
	}
	return zapReply(req.sequence, "200", "OK", "anonymous")
}
