// Package cliexit names the process exit codes warden's CLI
// frontends agree on, so cw-run, cw-cert, and the two daemons report
// failures consistently to shell callers and init systems alike.
package cliexit

const (
	OK                  = 0
	InvalidArgOrUnreach = 1
	ConfigError         = 2
	ProtocolError       = 3
	ExecFailure         = 127
)
