package mcpserver

import (
	"context"
	"fmt"

	"tabledash/internal/domain"
	"tabledash/internal/tablesync"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerTableTools() {
	s.mcp.AddTool(mcp.NewTool("select_collection",
		mcp.WithDescription("Select a store and collection and load it as a table. Unsaved edits to the previous table are discarded."),
		mcp.WithString("store", mcp.Description("Store name"), mcp.Required()),
		mcp.WithString("collection", mcp.Description("Collection name"), mcp.Required()),
	), s.handleSelectCollection)

	s.mcp.AddTool(mcp.NewTool("load_table",
		mcp.WithDescription("Reload the selected collection from the store, discarding unsaved edits"),
	), s.handleLoadTable)

	s.mcp.AddTool(mcp.NewTool("get_table",
		mcp.WithDescription("Return the current table: columns, rows, selection and whether there are unsaved edits"),
		mcp.WithNumber("offset", mcp.Description("First row to return (default 0)")),
		mcp.WithNumber("limit", mcp.Description("Maximum rows to return (default all)")),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{ReadOnlyHint: boolPtr(true)}),
	), s.handleGetTable)

	s.mcp.AddTool(mcp.NewTool("set_cell",
		mcp.WithDescription("Set one cell of the current table. Nothing is written to the store until save_table."),
		mcp.WithNumber("row", mcp.Description("Row index, starting at 0"), mcp.Required()),
		mcp.WithString("column", mcp.Description("Column name"), mcp.Required()),
		mcp.WithString("value", mcp.Description("New value, stored as text unless json is set"), mcp.Required()),
		mcp.WithBoolean("json", mcp.Description("Decode value as a JSON literal, e.g. 7, true or null")),
	), s.handleSetCell)

	s.mcp.AddTool(mcp.NewTool("append_row",
		mcp.WithDescription("Append a blank row to the current table"),
	), s.handleAppendRow)

	s.mcp.AddTool(mcp.NewTool("delete_row",
		mcp.WithDescription("Delete a row from the current table. Nothing is written to the store until save_table."),
		mcp.WithNumber("row", mcp.Description("Row index, starting at 0"), mcp.Required()),
	), s.handleDeleteRow)

	s.mcp.AddTool(mcp.NewTool("save_table",
		mcp.WithDescription("🛑 DESTRUCTIVE: Overwrite the selected collection with the current table. Every stored record is replaced."),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{DestructiveHint: boolPtr(true)}),
	), s.handleSaveTable)
}

// tableView is what table tools report back.
type tableView struct {
	State      string          `json:"state"`
	Store      string          `json:"store,omitempty"`
	Collection string          `json:"collection,omitempty"`
	Dirty      bool            `json:"dirty"`
	Columns    []string        `json:"columns,omitempty"`
	RowCount   int             `json:"rowCount"`
	Offset     int             `json:"offset,omitempty"`
	Rows       []domain.Record `json:"rows,omitempty"`
}

func summarize(up *tablesync.Update) tableView {
	v := tableView{
		State:      string(up.State),
		Store:      up.Selection.Store,
		Collection: up.Selection.Collection,
		Dirty:      up.Dirty,
	}
	if up.Snapshot != nil {
		v.Columns = up.Snapshot.Columns()
		v.RowCount = up.Snapshot.Len()
	}
	return v
}

func (s *Server) dispatch(ctx context.Context, in tablesync.Intent) (*mcp.CallToolResult, error) {
	up, err := s.svc.Dispatch(ctx, s.sessionID, in)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(summarize(up))
}

func (s *Server) handleSelectCollection(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	store := stringArg(args, "store")
	collection := stringArg(args, "collection")
	if store == "" || collection == "" {
		return nil, fmt.Errorf("store and collection are required")
	}
	return s.dispatch(ctx, tablesync.Intent{
		Kind: tablesync.IntentSelectionChanged, Store: store, Collection: collection,
	})
}

func (s *Server) handleLoadTable(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.dispatch(ctx, tablesync.Intent{Kind: tablesync.IntentRefresh})
}

func (s *Server) handleGetTable(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	offset, _, err := intArg(args, "offset")
	if err != nil {
		return nil, err
	}
	limit, hasLimit, err := intArg(args, "limit")
	if err != nil {
		return nil, err
	}

	up, err := s.svc.State(s.sessionID)
	if err != nil {
		return errorResult(err), nil
	}
	v := summarize(up)
	if up.Snapshot == nil {
		return jsonResult(v)
	}

	rows := up.Snapshot.Rows()
	start := min(max(offset, 0), len(rows))
	end := len(rows)
	if hasLimit && limit >= 0 {
		end = min(start+limit, end)
	}
	v.Offset = start
	v.Rows = rows[start:end]
	return jsonResult(v)
}

func (s *Server) handleSetCell(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	row, ok, err := intArg(args, "row")
	if err != nil {
		return nil, err
	}
	column := stringArg(args, "column")
	if !ok || column == "" {
		return nil, fmt.Errorf("row and column are required")
	}
	asJSON, _ := args["json"].(bool)
	value, err := cellValue(args["value"], asJSON)
	if err != nil {
		return nil, err
	}
	return s.dispatch(ctx, tablesync.Intent{
		Kind: tablesync.IntentCellEdited, Row: row, Column: column, Value: value,
	})
}

func (s *Server) handleAppendRow(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.dispatch(ctx, tablesync.Intent{Kind: tablesync.IntentAddRow})
}

func (s *Server) handleDeleteRow(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	row, ok, err := intArg(req.GetArguments(), "row")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("row is required")
	}
	return s.dispatch(ctx, tablesync.Intent{Kind: tablesync.IntentDeleteRow, Row: row})
}

func (s *Server) handleSaveTable(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	up, err := s.svc.Dispatch(ctx, s.sessionID, tablesync.Intent{Kind: tablesync.IntentSave})
	if err != nil {
		return errorResult(err), nil
	}
	return textResult(fmt.Sprintf("Saved %s: replaced %d records with %d",
		up.Ack.Handle, up.Ack.Deleted, up.Ack.Inserted)), nil
}
