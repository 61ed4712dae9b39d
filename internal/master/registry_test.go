package master

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryPutAndMatch(t *testing.T) {
	r := NewRegistry()
	r.Put([]byte{1}, "web01.example.com", map[string]string{"sys.os": "linux"}, false)
	r.Put([]byte{2}, "db01.example.com", map[string]string{"sys.os": "linux"}, true)

	all := r.Match("")
	require.Len(t, all, 2)

	web := r.Match("web")
	require.Len(t, web, 1)
	assert.Equal(t, "web01.example.com", web[0].Hostname)
	assert.False(t, web[0].Optout)

	none := r.Match("cache")
	assert.Empty(t, none)
}

func TestRegistryPutOverwritesByIdentity(t *testing.T) {
	r := NewRegistry()
	r.Put([]byte{9}, "old-name", nil, false)
	r.Put([]byte{9}, "new-name", nil, true)

	agents := r.Match("")
	require.Len(t, agents, 1)
	assert.Equal(t, "new-name", agents[0].Hostname)
	assert.True(t, agents[0].Optout)
}
