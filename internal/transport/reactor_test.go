package transport

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestReactorStopsWhenLastEndpointReturnsStop(t *testing.T) {
	r := NewReactor(zap.NewNop())
	ep := &Endpoint{Name: "only"}
	ep.Handler = func(ctx context.Context, e *Endpoint, pdu *PDU) Directive {
		return Stop
	}
	r.endpoints[ep.Name] = ep
	r.events <- event{ep: ep, pdu: New(Bye)}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := r.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(r.endpoints) != 0 {
		t.Fatalf("expected endpoint to be unregistered after Stop")
	}
}

func TestReactorCancelReturnsCleanly(t *testing.T) {
	r := NewReactor(zap.NewNop())
	r.Cancel()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := r.Run(ctx); err != nil {
		t.Fatalf("Run after Cancel: %v", err)
	}
}

func TestReactorDispatchesInSendOrderPerPeer(t *testing.T) {
	r := NewReactor(zap.NewNop())
	var seen []string
	ep := &Endpoint{Name: "peer"}
	ep.Handler = func(ctx context.Context, e *Endpoint, pdu *PDU) Directive {
		seen = append(seen, pdu.Type)
		if len(seen) == 3 {
			return Stop
		}
		return Continue
	}
	r.endpoints[ep.Name] = ep
	r.events <- event{ep: ep, pdu: New(Ping)}
	r.events <- event{ep: ep, pdu: New(Facts)}
	r.events <- event{ep: ep, pdu: New(Bye)}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := r.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := []string{Ping, Facts, Bye}
	if len(seen) != len(want) {
		t.Fatalf("dispatched %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("dispatched %v, want %v", seen, want)
		}
	}
}
