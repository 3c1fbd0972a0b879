package scoring

import (
	"context"
	"errors"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/originality/kit"
)

// RegisterMCP registers the scoring tools on an MCP server. The scan status
// tool is only registered when tracker is non-nil.
func (e *Engine) RegisterMCP(srv *mcp.Server, tracker *ScanTracker) {
	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "originality_score",
		Description: "Score text for originality with the configured provider. Returns the similarity score (0-100), matched sources and whether the local demo scorer answered.",
		InputSchema: kit.ObjectSchema(map[string]any{
			"text": map[string]any{"type": "string", "description": "Plain text to score"},
		}, "text"),
	}, func(ctx context.Context, req any) (any, error) {
		r := req.(*scoreRequest)
		if r.Text == "" {
			return nil, errors.New("text is required")
		}
		return e.Score(ctx, r.Text), nil
	}, kit.DecodeArgs[scoreRequest])

	if tracker == nil {
		return
	}

	type statusReq struct {
		ScanID string `json:"scan_id"`
	}
	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "originality_scan_status",
		Description: "Look up an asynchronous scan by ID and return its status and, once complete, its result.",
		InputSchema: kit.ObjectSchema(map[string]any{
			"scan_id": map[string]any{"type": "string", "description": "Scan ID from a pending result"},
		}, "scan_id"),
	}, func(ctx context.Context, req any) (any, error) {
		return tracker.Get(ctx, req.(*statusReq).ScanID)
	}, kit.DecodeArgs[statusReq])
}
