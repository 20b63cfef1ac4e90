package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	// uriScheme is the custom URI scheme for fleetsync resources.
	uriScheme = "fleetsync://"
)

// registerResources registers all resource handlers with the MCP server.
func (s *Server) registerResources() {
	s.server.AddResource(&mcp.Resource{
		URI:         uriScheme + "providers",
		Name:        "providers",
		Description: "Provider types connections can be registered for",
		MIMEType:    "application/json",
	}, s.handleProvidersResource)

	s.server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: uriScheme + "organizations/{organizationId}/connections",
		Name:        "organization-connections",
		Description: "Connections configured for an organization",
		MIMEType:    "application/json",
	}, s.handleConnectionsResource)
}

// handleProvidersResource returns the provider catalogue.
func (s *Server) handleProvidersResource(
	_ context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	if s.ports.Connections == nil {
		return jsonResult(req.Params.URI, []struct{}{})
	}

	type providerInfo struct {
		ID                string   `json:"id"`
		Name              string   `json:"name"`
		Description       string   `json:"description,omitempty"`
		EntityTypes       []string `json:"entity_types"`
		SupportsWriteBack bool     `json:"supports_write_back"`
	}

	providers := s.ports.Connections.Providers()
	infos := make([]providerInfo, len(providers))
	for i := range providers {
		p := &providers[i]
		types := make([]string, len(p.EntityTypes))
		for j, et := range p.EntityTypes {
			types[j] = string(et)
		}
		infos[i] = providerInfo{
			ID:                p.ID,
			Name:              p.Name,
			Description:       p.Description,
			EntityTypes:       types,
			SupportsWriteBack: p.SupportsWriteBack,
		}
	}
	return jsonResult(req.Params.URI, infos)
}

// handleConnectionsResource lists the connections of one organization.
// Credentials are never exposed.
func (s *Server) handleConnectionsResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	if s.ports.Connections == nil {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	orgID := extractOrganizationID(req.Params.URI)
	if orgID == "" {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	conns, err := s.ports.Connections.List(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("listing connections: %w", err)
	}

	type connectionInfo struct {
		ID           string `json:"id"`
		Name         string `json:"name"`
		ProviderType string `json:"provider_type"`
		Active       bool   `json:"active"`
		Status       string `json:"status"`
		LastSyncAt   string `json:"last_sync_at,omitempty"`
		LastError    string `json:"last_error,omitempty"`
	}

	infos := make([]connectionInfo, len(conns))
	for i := range conns {
		infos[i] = connectionInfo{
			ID:           conns[i].ID,
			Name:         conns[i].Name,
			ProviderType: conns[i].ProviderType,
			Active:       conns[i].IsActive,
			Status:       string(conns[i].Status),
			LastSyncAt:   formatTime(conns[i].LastSyncAt),
			LastError:    conns[i].LastError,
		}
	}
	return jsonResult(req.Params.URI, infos)
}

func jsonResult(uri string, v any) (*mcp.ReadResourceResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling resource: %w", err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}

// extractOrganizationID extracts the organization ID from a URI like
// fleetsync://organizations/{organizationId}/connections.
func extractOrganizationID(uri string) string {
	const prefix = uriScheme + "organizations/"
	const suffix = "/connections"

	if !strings.HasPrefix(uri, prefix) {
		return ""
	}

	uri = strings.TrimPrefix(uri, prefix)
	if !strings.HasSuffix(uri, suffix) {
		return ""
	}

	id := strings.TrimSuffix(uri, suffix)
	if strings.Contains(id, "/") {
		return ""
	}
	return id
}
