package mcpserver

import (
	"context"
	"fmt"

	"tabledash/internal/chart"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerChartTools() {
	s.mcp.AddTool(mcp.NewTool("histogram",
		mcp.WithDescription("Count the rows of the current table per distinct value of a column, optionally split by a second column. Unsaved edits are included. Without x, every configured chart that applies to the table is returned."),
		mcp.WithString("x", mcp.Description("Column whose values form the bins")),
		mcp.WithString("color", mcp.Description("Column that splits each bin into series (optional)")),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{ReadOnlyHint: boolPtr(true)}),
	), s.handleHistogram)
}

func (s *Server) handleHistogram(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	x := stringArg(args, "x")
	if x != "" {
		res, err := s.svc.Histogram(s.sessionID, chart.Spec{X: x, Color: stringArg(args, "color")})
		if err != nil {
			return errorResult(err), nil
		}
		return jsonResult(res)
	}

	snap, err := s.svc.Snapshot(s.sessionID)
	if err != nil {
		return errorResult(err), nil
	}
	results := make([]*chart.Result, 0, len(s.charts))
	for _, spec := range s.charts {
		res, err := chart.Histogram(snap, spec)
		if err != nil {
			continue
		}
		results = append(results, res)
	}
	if len(results) == 0 {
		return textResult(fmt.Sprintf("None of the %d configured charts applies to this table; pass x to pick a column.", len(s.charts))), nil
	}
	return jsonResult(results)
}
