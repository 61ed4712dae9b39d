package main

import (
	"github.com/go-zeromq/zmq4"

	"warden/internal/transport"
)

// dealerSocket adapts a zmq4 DEALER socket to agentd.Socket, decoding
// received frames into PDUs the way cw-run's recvPDU does for its own
// DEALER connection.
type dealerSocket struct {
	sock zmq4.Socket
}

func (d dealerSocket) Send(pdu *transport.PDU) error {
	return d.sock.Send(pdu.ToMsg())
}

func (d dealerSocket) Recv() (*transport.PDU, error) {
	msg, err := d.sock.Recv()
	if err != nil {
		return nil, err
	}
	return transport.FromMsg(msg, false)
}

func (d dealerSocket) Close() error {
	return d.sock.Close()
}
