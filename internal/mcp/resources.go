package mcpserver

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
)

const (
	storesURI = "tabledash://stores"
	tableURI  = "tabledash://table"
)

func (s *Server) registerResources() {
	s.mcp.AddResource(mcp.NewResource(
		storesURI,
		"Stores",
		mcp.WithResourceDescription("Stores of the connected record store"),
		mcp.WithMIMEType("application/json"),
	), s.handleStoresResource)

	s.mcp.AddResource(mcp.NewResource(
		tableURI,
		"Current Table",
		mcp.WithResourceDescription("The table being edited, including unsaved changes"),
		mcp.WithMIMEType("application/json"),
	), s.handleTableResource)
}

func (s *Server) handleStoresResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	stores, err := s.svc.ListStores(ctx)
	if err != nil {
		return nil, err
	}
	return jsonResource(storesURI, stores)
}

func (s *Server) handleTableResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	up, err := s.svc.State(s.sessionID)
	if err != nil {
		return nil, err
	}
	return jsonResource(tableURI, up)
}

func jsonResource(uri string, v any) ([]mcp.ResourceContents, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
