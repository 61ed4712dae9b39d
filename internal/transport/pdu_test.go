package transport

import (
	"testing"

	"github.com/go-zeromq/zmq4"
)

func TestPDURoundTrip(t *testing.T) {
	pdu := NewText(Facts, "os=linux", "arch=amd64")
	pdu.Identity = []byte("cookie01")

	msg := pdu.ToMsg()
	got, err := FromMsg(msg, true)
	if err != nil {
		t.Fatalf("FromMsg: %v", err)
	}
	if got.Type != Facts {
		t.Fatalf("type = %q, want %q", got.Type, Facts)
	}
	if string(got.Identity) != "cookie01" {
		t.Fatalf("identity = %q, want cookie01", got.Identity)
	}
	if got.Text(0) != "os=linux" || got.Text(1) != "arch=amd64" {
		t.Fatalf("payload mismatch: %+v", got.Payload)
	}
}

func TestFromMsgWithoutIdentity(t *testing.T) {
	msg := zmq4.NewMsgFrom([]byte(Ping))
	got, err := FromMsg(msg, false)
	if err != nil {
		t.Fatalf("FromMsg: %v", err)
	}
	if got.Type != Ping || got.Identity != nil {
		t.Fatalf("unexpected parse: %+v", got)
	}
}

// A handler must never be invoked on an empty-string-type PDU; FromMsg
// rejects the frame before it can reach a reactor's event channel.
func TestFromMsgRejectsEmptyType(t *testing.T) {
	msg := zmq4.NewMsgFrom([]byte(""))
	if _, err := FromMsg(msg, false); err == nil {
		t.Fatalf("expected empty type frame to be rejected")
	}

	msgWithIdentity := zmq4.NewMsgFrom([]byte("ident"), []byte(""))
	if _, err := FromMsg(msgWithIdentity, true); err == nil {
		t.Fatalf("expected empty type frame to be rejected with identity present")
	}
}

func TestClampTimeoutAndSleep(t *testing.T) {
	cases := []struct{ in, want int }{
		{500, MinTimeoutMillis},
		{1000, 1000},
		{5000, 5000},
	}
	for _, c := range cases {
		if got := ClampTimeout(c.in); got != c.want {
			t.Fatalf("ClampTimeout(%d) = %d, want %d", c.in, got, c.want)
		}
	}
	if got := ClampSleep(50); got != MinSleepMillis {
		t.Fatalf("ClampSleep(50) = %d, want %d", got, MinSleepMillis)
	}
	if got := ClampSleep(250); got != 250 {
		t.Fatalf("ClampSleep(250) = %d, want 250", got)
	}
}
