package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProductionBuilds(t *testing.T) {
	log, err := New("warden-agent", false)
	require.NoError(t, err)
	assert.NotNil(t, log)
}

func TestNewVerboseBuilds(t *testing.T) {
	log, err := New("warden-master", true)
	require.NoError(t, err)
	assert.NotNil(t, log)
}
