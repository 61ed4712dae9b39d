package agentd

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"warden/internal/policy"
	"warden/internal/resource"
	"warden/internal/transport"
)

// fakeView is a minimal resource.LiveView exercising only the sysctl
// surface the tests below converge against.
type fakeView struct {
	resource.LiveView
	sysctls map[string]string
}

func (f *fakeView) GetSysctl(name string) (string, error) {
	return f.sysctls[name], nil
}

func (f *fakeView) SetSysctl(name, value string, persist bool) error {
	f.sysctls[name] = value
	return nil
}

// fakeSocket is an in-memory Socket: Send appends to out, Recv drains
// a preloaded queue of PDUs, blocking forever once empty so a test can
// bound the call with a context deadline instead of racing a goroutine.
type fakeSocket struct {
	ctx context.Context
	in  []*transport.PDU
	out []*transport.PDU
}

func (f *fakeSocket) Send(pdu *transport.PDU) error {
	f.out = append(f.out, pdu)
	return nil
}

func (f *fakeSocket) Recv() (*transport.PDU, error) {
	if len(f.in) == 0 {
		<-f.ctx.Done()
		return nil, f.ctx.Err()
	}
	pdu := f.in[0]
	f.in = f.in[1:]
	return pdu, nil
}

func (f *fakeSocket) Close() error { return nil }

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestConvergeFixesDrift(t *testing.T) {
	pol := policy.New("test")
	s := resource.NewSysctl("net.ipv4.ip_forward")
	require.NoError(t, s.SetAttr("value", "1"))
	require.NoError(t, pol.Add(s))

	view := &fakeView{sysctls: map[string]string{"net.ipv4.ip_forward": "0"}}
	a := &Agent{log: zap.NewNop(), view: view}

	rep := a.converge(context.Background(), pol)
	require.Len(t, rep.Resources, 1)
	rr := rep.Resources[0]
	assert.Equal(t, "sysctl", rr.Type)
	assert.Equal(t, "net.ipv4.ip_forward", rr.Key)
	require.Len(t, rr.Actions, 1)
	assert.Equal(t, "remediated", rr.Actions[0].Description)
	assert.Equal(t, "1", view.sysctls["net.ipv4.ip_forward"])
}

func TestConvergeNoopWhenInSync(t *testing.T) {
	pol := policy.New("test")
	s := resource.NewSysctl("vm.swappiness")
	require.NoError(t, s.SetAttr("value", "10"))
	require.NoError(t, pol.Add(s))

	view := &fakeView{sysctls: map[string]string{"vm.swappiness": "10"}}
	a := &Agent{log: zap.NewNop(), view: view}

	rep := a.converge(context.Background(), pol)
	require.Len(t, rep.Resources, 1)
	assert.Equal(t, "in sync", rep.Resources[0].Actions[0].Description)
}

func TestAwaitTypeHandlesInterleavedPush(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sock := &fakeSocket{
		ctx: ctx,
		in: []*transport.PDU{
			transport.NewText(transport.Request, "root", "true", "serial-x"),
			transport.New(transport.Hello),
		},
	}
	a := &Agent{log: zap.NewNop(), sock: sock, host: "agent1", optout: func() bool { return false }}

	pdu, err := a.awaitType(ctx, transport.Hello)
	require.NoError(t, err)
	assert.Equal(t, transport.Hello, pdu.Type)

	require.Len(t, sock.out, 1, "the interleaved REQUEST push must have produced a RESULT reply")
	assert.Equal(t, transport.Result, sock.out[0].Type)
	assert.Equal(t, "serial-x", sock.out[0].Text(0))
	assert.Equal(t, "agent1", sock.out[0].Text(1))
}

func TestEncodeFactsIncludesOptout(t *testing.T) {
	payload := encodeFacts(map[string]string{"sys.os": "linux"}, true)
	assert.Contains(t, payload, "sys.os=linux")
	assert.Contains(t, payload, "optout")
}
