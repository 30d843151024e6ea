package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"tabledash/internal/chart"
	"tabledash/internal/domain"
	"tabledash/internal/service"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Server is the MCP server for tabledash.
// It exposes tools, resources, and prompts so AI agents can browse and edit collections.
type Server struct {
	mcp    *server.MCPServer
	svc    *service.TableService
	charts []chart.Spec

	// One editing session per server process.
	sessionID string

	http *server.StreamableHTTPServer
}

// New creates and configures a new MCP server with all tools and resources.
func New(svc *service.TableService, charts []chart.Spec) *Server {
	if len(charts) == 0 {
		charts = chart.DefaultSpecs
	}
	s := &Server{
		svc:       svc,
		charts:    charts,
		sessionID: svc.OpenSession(),
	}

	s.mcp = server.NewMCPServer(
		"tabledash-mcp",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(true, false),
		server.WithPromptCapabilities(true),
	)

	s.registerStoreTools()
	s.registerTableTools()
	s.registerChartTools()
	s.registerResources()
	s.registerPrompts()

	return s
}

// SessionID is the table session every tool call works on.
func (s *Server) SessionID() string {
	return s.sessionID
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	slog.Info("MCP stdio server starting")
	return server.ServeStdio(s.mcp)
}

// ServeHTTP serves the streamable HTTP transport on addr until Shutdown.
func (s *Server) ServeHTTP(addr string) error {
	s.http = server.NewStreamableHTTPServer(s.mcp)
	slog.Info("MCP HTTP server listening", "addr", addr)
	return s.http.Start(addr)
}

// Shutdown stops the HTTP transport, if running, and drops the session.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	if s.http != nil {
		err = s.http.Shutdown(ctx)
	}
	if cerr := s.svc.CloseSession(s.sessionID); cerr != nil {
		slog.Debug("close MCP session", "err", cerr)
	}
	return err
}

// ── Helpers ────────────────────────────────────────────────

// textResult creates a simple text tool result.
func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

// jsonResult serializes v to JSON and wraps it in a text tool result.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return textResult(string(data)), nil
}

// errorResult reports a failed operation to the agent, prefixed with its error kind.
func errorResult(err error) *mcp.CallToolResult {
	return mcp.NewToolResultError(fmt.Sprintf("%s: %v", domain.KindName(err), err))
}
