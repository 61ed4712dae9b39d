// Package werr defines the error kinds shared across warden's subsystems.
// Each kind is a sentinel that call sites wrap with fmt.Errorf's %w so
// callers can branch with errors.Is/errors.As without caring about the
// originating package.
package werr

import (
	"errors"
	"fmt"
)

var (
	// IO covers filesystem, socket, and other OS-level I/O failures.
	IO = errors.New("io error")
	// ParseError covers malformed on-wire data or config files.
	ParseError = errors.New("parse error")
	// InvalidValue covers an unparseable or disallowed attribute value.
	InvalidValue = errors.New("invalid value")
	// UnknownAttribute covers a Set() call naming an attribute the
	// resource type doesn't have.
	UnknownAttribute = errors.New("unknown attribute")
	// NotFound covers a live system object the resource expected to
	// exist but didn't.
	NotFound = errors.New("not found")
	// AlreadyExists covers e.g. a double CRL revocation.
	AlreadyExists = errors.New("already exists")
	// PermissionDenied covers an adapter command failing due to
	// privilege, fatal for that resource only.
	PermissionDenied = errors.New("permission denied")
	// Timeout covers a client request exceeding its deadline.
	Timeout = errors.New("timeout")
	// Untrusted covers ZAP rejecting a peer's public key.
	Untrusted = errors.New("untrusted")
	// CyclicDependency covers a policy dependency graph with a cycle,
	// fatal for the whole compilation.
	CyclicDependency = errors.New("cyclic dependency")
	// RemediationFailed covers remediate() leaving a nonzero
	// difference mask after applying its changes.
	RemediationFailed = errors.New("remediation failed")
)

// Wrap attaches context to a sentinel kind while keeping it matchable via
// errors.Is(err, kind).
func Wrap(kind error, format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), kind)
}
