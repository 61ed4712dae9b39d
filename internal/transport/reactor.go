package transport

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/go-zeromq/zmq4"
	"go.uber.org/zap"
)

// Directive is a handler's verdict: keep the endpoint running, or
// unregister it from the reactor.
type Directive int

const (
	Continue Directive = iota
	Stop
)

// Handler processes one received PDU on behalf of an endpoint. A
// handler MUST NOT block indefinitely and MUST NOT call back into the
// reactor's own Run loop; all suspension happens inside the reactor's
// poll, not inside a handler.
type Handler func(ctx context.Context, ep *Endpoint, pdu *PDU) Directive

// Endpoint is one socket the reactor multiplexes, paired with the
// handler that services it.
type Endpoint struct {
	Name        string
	Socket      zmq4.Socket
	HasIdentity bool // true for ROUTER-bound listening sockets
	Handler     Handler
}

// Send writes a PDU to this endpoint's socket.
func (e *Endpoint) Send(pdu *PDU) error {
	return e.Socket.Send(pdu.ToMsg())
}

type event struct {
	ep  *Endpoint
	pdu *PDU
	err error
}

// Reactor multiplexes a set of endpoints with a single dispatch loop.
// Each endpoint's blocking Recv runs on its own goroutine (zmq4
// sockets have no native poller); the loop below is the single
// cooperative consumer of whatever they produce, matching the
// single-threaded dispatch model PDU handlers are written against.
type Reactor struct {
	log       *zap.Logger
	mu        sync.Mutex
	endpoints map[string]*Endpoint
	events    chan event
	cancelled atomic.Bool
}

func NewReactor(log *zap.Logger) *Reactor {
	return &Reactor{
		log:       log,
		endpoints: map[string]*Endpoint{},
		events:    make(chan event, 64),
	}
}

// Register adds an endpoint and starts its receive loop. Safe to call
// before or during Run.
func (r *Reactor) Register(ep *Endpoint) {
	r.mu.Lock()
	r.endpoints[ep.Name] = ep
	r.mu.Unlock()
	go r.recvLoop(ep)
}

func (r *Reactor) recvLoop(ep *Endpoint) {
	for {
		msg, err := ep.Socket.Recv()
		if err != nil {
			r.events <- event{ep: ep, err: err}
			return
		}
		pdu, err := FromMsg(msg, ep.HasIdentity)
		if err != nil {
			r.log.Warn("malformed pdu", zap.String("endpoint", ep.Name), zap.Error(err))
			continue
		}
		r.events <- event{ep: ep, pdu: pdu}
	}
}

// Cancel sets the reactor's process-wide cancel flag. Run checks it
// before each wait and after each dispatch, so a Run already blocked
// waiting still dispatches the next event (or sees ctx done) before it
// returns.
func (r *Reactor) Cancel() {
	r.cancelled.Store(true)
}

// Run dispatches events until ctx is done or Cancel is called. A
// handler is never invoked for a PDU whose type frame is empty —
// FromMsg already rejects those before they reach the event channel.
func (r *Reactor) Run(ctx context.Context) error {
	for {
		if r.cancelled.Load() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-r.events:
			if ev.err != nil {
				r.log.Debug("endpoint recv error", zap.String("endpoint", ev.ep.Name), zap.Error(ev.err))
				continue
			}
			directive := ev.ep.Handler(ctx, ev.ep, ev.pdu)
			if directive == Stop {
				r.mu.Lock()
				delete(r.endpoints, ev.ep.Name)
				empty := len(r.endpoints) == 0
				r.mu.Unlock()
				if empty {
					return nil
				}
			}
		}
		if r.cancelled.Load() {
			return nil
		}
	}
}
