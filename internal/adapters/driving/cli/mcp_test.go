package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMCPServeCmd(t *testing.T) {
	assert.Equal(t, "serve", mcpServeCmd.Use)
	flag := mcpServeCmd.Flags().Lookup("port")
	require.NotNil(t, flag)
	assert.Equal(t, "0", flag.DefValue)
}

func TestMCPServe_ReaderNotConfigured(t *testing.T) {
	withServices(t, Services{Connections: &mockConnectionService{}})

	_, err := execute(t, "mcp", "serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "entity reader not configured")
}
