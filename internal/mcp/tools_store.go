package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerStoreTools() {
	s.mcp.AddTool(mcp.NewTool("list_stores",
		mcp.WithDescription("List the stores (databases) of the connected record store"),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{ReadOnlyHint: boolPtr(true)}),
	), s.handleListStores)

	s.mcp.AddTool(mcp.NewTool("list_collections",
		mcp.WithDescription("List the collections of a store"),
		mcp.WithString("store", mcp.Description("Store name"), mcp.Required()),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{ReadOnlyHint: boolPtr(true)}),
	), s.handleListCollections)

	s.mcp.AddTool(mcp.NewTool("create_collection",
		mcp.WithDescription("Create an empty collection in an existing store"),
		mcp.WithString("store", mcp.Description("Store name"), mcp.Required()),
		mcp.WithString("collection", mcp.Description("New collection name"), mcp.Required()),
	), s.handleCreateCollection)

	s.mcp.AddTool(mcp.NewTool("save_history",
		mcp.WithDescription("List recent save attempts, newest first. Partial saves carry the records that were meant to be written."),
		mcp.WithString("store", mcp.Description("Store name (optional)")),
		mcp.WithString("collection", mcp.Description("Collection name (optional)")),
		mcp.WithNumber("limit", mcp.Description("Maximum entries (default 50)")),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{ReadOnlyHint: boolPtr(true)}),
	), s.handleSaveHistory)
}

func (s *Server) handleListStores(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stores, err := s.svc.ListStores(ctx)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(stores)
}

func (s *Server) handleListCollections(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	store := stringArg(req.GetArguments(), "store")
	if store == "" {
		return nil, fmt.Errorf("store is required")
	}
	colls, err := s.svc.ListCollections(ctx, store)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(colls)
}

func (s *Server) handleCreateCollection(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	h, err := s.svc.CreateCollection(ctx, stringArg(args, "store"), stringArg(args, "collection"))
	if err != nil {
		return errorResult(err), nil
	}
	return textResult(fmt.Sprintf("Created collection %s", h)), nil
}

func (s *Server) handleSaveHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	limit, _, err := intArg(args, "limit")
	if err != nil {
		return nil, err
	}
	runs, err := s.svc.SaveHistory(stringArg(args, "store"), stringArg(args, "collection"), limit)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(runs)
}
