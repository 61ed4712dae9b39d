// Package transport implements the wire protocol: PDUs framed over
// ZeroMQ ROUTER/DEALER sockets, multiplexed by a single-threaded
// cooperative reactor.
package transport

import (
	"github.com/go-zeromq/zmq4"

	"warden/internal/werr"
)

// PDU type names. The first frame of every PDU is one of these,
// printable ASCII, never empty.
const (
	Hello     = "HELLO"
	Ping      = "PING"
	Pong      = "PONG"
	Facts     = "FACTS"
	Policy    = "POLICY"
	File      = "FILE"
	Data      = "DATA"
	GetCert   = "GET_CERT"
	SendCert  = "SEND_CERT"
	Report    = "REPORT"
	Request   = "REQUEST"
	Submitted = "SUBMITTED"
	Check     = "CHECK"
	Result    = "RESULT"
	Optout    = "OPTOUT"
	Done      = "DONE"
	Error     = "ERROR"
	Bye       = "BYE"
)

// PDU is an ordered, non-empty sequence of frames, optionally preceded
// by a ROUTER-assigned identity frame identifying the sending peer.
type PDU struct {
	Identity []byte // ROUTER envelope identity, nil on DEALER/REQ sockets
	Type     string
	Payload  [][]byte
}

// New builds a PDU of the given type carrying payload frames.
func New(kind string, payload ...[]byte) *PDU {
	return &PDU{Type: kind, Payload: payload}
}

// NewText builds a PDU whose payload frames are UTF-8 text.
func NewText(kind string, parts ...string) *PDU {
	payload := make([][]byte, len(parts))
	for i, p := range parts {
		payload[i] = []byte(p)
	}
	return &PDU{Type: kind, Payload: payload}
}

// ToMsg renders a PDU as a zmq4 multipart message, reattaching the
// identity envelope frame when present.
func (p *PDU) ToMsg() zmq4.Msg {
	frames := make([][]byte, 0, len(p.Payload)+2)
	if p.Identity != nil {
		frames = append(frames, p.Identity)
	}
	frames = append(frames, []byte(p.Type))
	frames = append(frames, p.Payload...)
	return zmq4.NewMsgFrom(frames...)
}

// FromMsg parses a received zmq4 message into a PDU. hasIdentity
// should be true for sockets that prepend a ROUTER envelope (i.e. the
// master's listening sockets), false for DEALER/REQ sockets dialing
// out.
func FromMsg(msg zmq4.Msg, hasIdentity bool) (*PDU, error) {
	frames := msg.Frames
	var identity []byte
	if hasIdentity {
		if len(frames) == 0 {
			return nil, werr.Wrap(werr.ParseError, "pdu: missing identity envelope")
		}
		identity = frames[0]
		frames = frames[1:]
	}
	if len(frames) == 0 || len(frames[0]) == 0 {
		return nil, werr.Wrap(werr.ParseError, "pdu: empty type frame")
	}
	return &PDU{
		Identity: identity,
		Type:     string(frames[0]),
		Payload:  frames[1:],
	}, nil
}

// Text returns payload frame n as a string, or "" if out of range.
func (p *PDU) Text(n int) string {
	if n < 0 || n >= len(p.Payload) {
		return ""
	}
	return string(p.Payload[n])
}
