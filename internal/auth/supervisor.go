package auth

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// RunWithZAP runs the ZAP authenticator and the caller's own reactor
// loop side by side under one errgroup. The first of them to return a
// non-nil error cancels the context the other runs under; RunWithZAP
// returns once both have exited, with that first error (nil if neither
// failed).
func RunWithZAP(ctx context.Context, authn *Authenticator, reactor func(context.Context) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return authn.Run(gctx)
	})
	g.Go(func() error {
		return reactor(gctx)
	})
	return g.Wait()
}
