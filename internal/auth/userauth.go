package auth

import (
	"context"

	"warden/internal/werr"
)

// UserAuthenticator gates client-initiated REQUEST PDUs: given a
// service name, username, and password, it approves or rejects the
// request. Shaped after a PAM conversation so a real deployment can
// plug in an actual PAM-backed implementation without changing the
// transport layer.
type UserAuthenticator interface {
	Authenticate(ctx context.Context, service, user, password string) error
}

// StaticUserAuthenticator is an in-memory stand-in UserAuthenticator
// for tests and single-node deployments that don't need PAM: it holds
// a fixed service -> user -> password table.
type StaticUserAuthenticator struct {
	users map[string]map[string]string
}

// NewStaticUserAuthenticator builds an authenticator over a nested
// service -> user -> password table.
func NewStaticUserAuthenticator(users map[string]map[string]string) *StaticUserAuthenticator {
	return &StaticUserAuthenticator{users: users}
}

func (s *StaticUserAuthenticator) Authenticate(ctx context.Context, service, user, password string) error {
	svc, ok := s.users[service]
	if !ok {
		return werr.Wrap(werr.NotFound, "unknown service %q", service)
	}
	want, ok := svc[user]
	if !ok || want != password {
		return werr.Wrap(werr.PermissionDenied, "authentication failed for %s@%s", user, service)
	}
	return nil
}
