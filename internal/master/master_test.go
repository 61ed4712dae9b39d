package master

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"warden/internal/transport"
)

func textPDU(parts ...string) *transport.PDU {
	return transport.NewText(transport.Result, parts...)
}

func TestParseFacts(t *testing.T) {
	facts, optout := parseFacts("sys.hostname=web01.example.com\nsys.os=linux\n\noptout\n")
	assert.Equal(t, "web01.example.com", facts["sys.hostname"])
	assert.Equal(t, "linux", facts["sys.os"])
	assert.True(t, optout)
}

func TestParseFactsNoOptout(t *testing.T) {
	facts, optout := parseFacts("sys.hostname=db01.example.com")
	assert.Equal(t, "db01.example.com", facts["sys.hostname"])
	assert.False(t, optout)
}

func TestHandleAgentResultBuffersResult(t *testing.T) {
	core, _ := observer.New(zap.WarnLevel)
	m := &Master{log: zap.New(core), jobs: NewJobs(), registry: NewRegistry()}
	m.jobs.Start("serial-1", []string{"web01.example.com"})

	m.handleAgentResult(textPDU("serial-1", "web01.example.com", "0", "all good"))

	r, ok, pending, known := m.jobs.PopResult("serial-1")
	require.True(t, known)
	require.True(t, ok)
	assert.Equal(t, 0, r.RC)
	assert.Equal(t, "all good", r.Output)
	assert.False(t, pending)
}

func TestHandleAgentResultOptout(t *testing.T) {
	core, _ := observer.New(zap.WarnLevel)
	m := &Master{log: zap.New(core), jobs: NewJobs(), registry: NewRegistry()}
	m.jobs.Start("serial-2", []string{"db01.example.com"})

	m.handleAgentResult(textPDU("serial-2", "db01.example.com", "optout", ""))

	r, ok, _, known := m.jobs.PopResult("serial-2")
	require.True(t, known)
	require.True(t, ok)
	assert.True(t, r.Optout)
}

func TestHandleAgentResultMalformedRCIgnored(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	m := &Master{log: zap.New(core), jobs: NewJobs(), registry: NewRegistry()}
	m.jobs.Start("serial-3", []string{"web01.example.com"})

	m.handleAgentResult(textPDU("serial-3", "web01.example.com", "not-a-number", ""))

	assert.Equal(t, 1, logs.Len())
	_, _, pending, known := m.jobs.PopResult("serial-3")
	require.True(t, known)
	assert.True(t, pending, "malformed rc must not count as an answer")
}
