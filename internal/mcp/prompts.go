package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerPrompts() {
	s.mcp.AddPrompt(mcp.NewPrompt("edit_collection",
		mcp.WithPromptDescription("Guide through reviewing and editing a collection as a table"),
		mcp.WithArgument("store",
			mcp.ArgumentDescription("Store holding the collection"),
			mcp.RequiredArgument(),
		),
		mcp.WithArgument("collection",
			mcp.ArgumentDescription("Collection to edit"),
			mcp.RequiredArgument(),
		),
	), s.handleEditCollectionPrompt)
}

func (s *Server) handleEditCollectionPrompt(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	store := req.Params.Arguments["store"]
	collection := req.Params.Arguments["collection"]
	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Edit %s/%s", store, collection),
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.TextContent{
					Type: "text",
					Text: fmt.Sprintf(`Review and edit the "%s" collection in store "%s". Follow these steps:

1. Use select_collection to load it, then get_table to read the rows
2. Use histogram to get a feel for how values are distributed
3. Make changes with set_cell, append_row and delete_row
4. Call get_table again and summarize what changed before saving
5. Only call save_table once the user has agreed: it replaces every stored record

If a save reports partial_save, use save_history to recover the records that were not written.`, collection, store),
				},
			},
		},
	}, nil
}
