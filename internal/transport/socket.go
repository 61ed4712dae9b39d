package transport

import (
	"context"

	"github.com/go-zeromq/zmq4"

	"warden/internal/werr"
)

// NewRouter binds a ROUTER socket for a listening endpoint (master
// facing agents or clients).
func NewRouter(ctx context.Context, bindAddr string) (zmq4.Socket, error) {
	sock := zmq4.NewRouter(ctx)
	if err := sock.Listen(bindAddr); err != nil {
		sock.Close()
		return nil, werr.Wrap(werr.IO, "bind router %s: %v", bindAddr, err)
	}
	return sock, nil
}

// NewDealer connects a DEALER socket for an outgoing peer connection
// (agent dialing the master).
func NewDealer(ctx context.Context, dialAddr string) (zmq4.Socket, error) {
	sock := zmq4.NewDealer(ctx)
	if err := sock.Dial(dialAddr); err != nil {
		sock.Close()
		return nil, werr.Wrap(werr.IO, "dial dealer %s: %v", dialAddr, err)
	}
	return sock, nil
}

// MinTimeoutMillis and MinSleepMillis are the clamp floors a client
// request's timeout and polling interval are held to.
const (
	MinTimeoutMillis = 1000
	MinSleepMillis   = 100
)

// ClampTimeout discards a caller-chosen request timeout below the
// floor, substituting the floor instead.
func ClampTimeout(ms int) int {
	if ms < MinTimeoutMillis {
		return MinTimeoutMillis
	}
	return ms
}

// ClampSleep discards a caller-chosen poll interval below the floor,
// substituting the floor instead.
func ClampSleep(ms int) int {
	if ms < MinSleepMillis {
		return MinSleepMillis
	}
	return ms
}
