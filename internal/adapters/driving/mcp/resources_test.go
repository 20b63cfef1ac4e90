package mcp

import (
	"context"
	"errors"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/fleetsync/internal/core/domain"
)

func TestExtractOrganizationID(t *testing.T) {
	tests := []struct {
		name     string
		uri      string
		expected string
	}{
		{
			name:     "valid connections URI",
			uri:      "fleetsync://organizations/org-123/connections",
			expected: "org-123",
		},
		{
			name:     "invalid prefix",
			uri:      "file://organizations/org-123/connections",
			expected: "",
		},
		{
			name:     "missing connections suffix",
			uri:      "fleetsync://organizations/org-123",
			expected: "",
		},
		{
			name:     "nested path",
			uri:      "fleetsync://organizations/org-1/x/connections",
			expected: "",
		},
		{
			name:     "empty URI",
			uri:      "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := extractOrganizationID(tt.uri)
			assert.Equal(t, tt.expected, result)
		})
	}
}

// Helper to create a ReadResourceRequest with the given URI.
func makeReadResourceRequest(uri string) *mcp.ReadResourceRequest {
	return &mcp.ReadResourceRequest{
		Params: &mcp.ReadResourceParams{
			URI: uri,
		},
	}
}

func TestServer_handleProvidersResource(t *testing.T) {
	ctx := context.Background()

	t.Run("nil connection service returns empty list", func(t *testing.T) {
		server := newTestServer(t, &mockEntityReader{}, nil)

		result, err := server.handleProvidersResource(ctx, makeReadResourceRequest("fleetsync://providers"))

		require.NoError(t, err)
		require.Len(t, result.Contents, 1)
		assert.Equal(t, "[]", result.Contents[0].Text)
	})

	t.Run("lists providers", func(t *testing.T) {
		conns := &mockConnectionService{providers: []domain.ProviderDescriptor{{
			ID:                "demotms",
			Name:              "demoTMS",
			EntityTypes:       []domain.EntityType{domain.EntityVehicles, domain.EntityInvoices},
			SupportsWriteBack: true,
		}}}
		server := newTestServer(t, &mockEntityReader{}, conns)

		result, err := server.handleProvidersResource(ctx, makeReadResourceRequest("fleetsync://providers"))

		require.NoError(t, err)
		require.Len(t, result.Contents, 1)
		assert.Equal(t, "application/json", result.Contents[0].MIMEType)
		assert.Contains(t, result.Contents[0].Text, `"id": "demotms"`)
		assert.Contains(t, result.Contents[0].Text, `"supports_write_back": true`)
		assert.Contains(t, result.Contents[0].Text, `"invoices"`)
	})
}

func TestServer_handleConnectionsResource(t *testing.T) {
	ctx := context.Background()
	uri := "fleetsync://organizations/org-a/connections"

	t.Run("nil connection service returns not found", func(t *testing.T) {
		server := newTestServer(t, &mockEntityReader{}, nil)

		_, err := server.handleConnectionsResource(ctx, makeReadResourceRequest(uri))
		require.Error(t, err)
	})

	t.Run("invalid URI returns not found", func(t *testing.T) {
		server := newTestServer(t, &mockEntityReader{}, &mockConnectionService{})

		_, err := server.handleConnectionsResource(ctx, makeReadResourceRequest("fleetsync://invalid/uri"))
		require.Error(t, err)
	})

	t.Run("lists connections without credentials", func(t *testing.T) {
		conns := &mockConnectionService{connections: []domain.Connection{{
			ID:           "conn-1",
			Name:         "Main TMS",
			ProviderType: "demotms",
			IsActive:     true,
			Status:       domain.ConnectionError,
			LastError:    "login rejected",
			Credentials:  map[string]string{"api_secret": "s3cr3t"},
		}}}
		server := newTestServer(t, &mockEntityReader{}, conns)

		result, err := server.handleConnectionsResource(ctx, makeReadResourceRequest(uri))

		require.NoError(t, err)
		require.Len(t, result.Contents, 1)
		assert.Equal(t, "org-a", conns.lastOrg)
		text := result.Contents[0].Text
		assert.Contains(t, text, "conn-1")
		assert.Contains(t, text, `"status": "error"`)
		assert.Contains(t, text, "login rejected")
		assert.NotContains(t, text, "s3cr3t")
	})

	t.Run("returns error on list failure", func(t *testing.T) {
		conns := &mockConnectionService{err: errors.New("database error")}
		server := newTestServer(t, &mockEntityReader{}, conns)

		_, err := server.handleConnectionsResource(ctx, makeReadResourceRequest(uri))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "listing connections")
	})
}
