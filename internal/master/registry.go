// Package master implements the warden-master daemon: the reactor
// handlers that compile per-agent policy from incoming facts, issue
// and track certificates, authenticate client REQUEST PDUs, and
// dispatch one-shot commands to matching agents.
package master

import (
	"encoding/hex"
	"strings"
	"sync"
)

// AgentInfo is what the master remembers about a currently-connected
// agent: its ROUTER envelope identity (to push unsolicited PDUs back)
// and the facts it last reported, including its hostname.
type AgentInfo struct {
	Identity []byte
	Hostname string
	Facts    map[string]string
	Optout   bool
}

// Registry tracks agents the master has heard a FACTS PDU from since
// it started. It is rebuilt from scratch on every restart — per §1's
// non-goal of live reload, there is no persistence across daemon
// restarts, and agents simply re-announce on their next poll.
type Registry struct {
	mu     sync.Mutex
	agents map[string]*AgentInfo // keyed by hex(identity)
}

// NewRegistry returns an empty agent registry.
func NewRegistry() *Registry {
	return &Registry{agents: map[string]*AgentInfo{}}
}

// Put records or updates the agent identified by identity.
func (r *Registry) Put(identity []byte, hostname string, facts map[string]string, optout bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[hex.EncodeToString(identity)] = &AgentInfo{
		Identity: identity,
		Hostname: hostname,
		Facts:    facts,
		Optout:   optout,
	}
}

// Match returns every known agent whose hostname satisfies filter.
// An empty filter matches every agent; otherwise filter is matched as
// a case-insensitive substring of the hostname, the simplest host
// filter expression the CLI's -w flag needs to exercise the dispatch
// path end to end.
func (r *Registry) Match(filter string) []*AgentInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*AgentInfo
	needle := strings.ToLower(filter)
	for _, a := range r.agents {
		if filter == "" || strings.Contains(strings.ToLower(a.Hostname), needle) {
			out = append(out, a)
		}
	}
	return out
}
