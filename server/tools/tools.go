package tools

import (
	"context"
	"encoding/json"

	"github.com/cnosuke/imgcheck/checker"
	"github.com/cnosuke/imgcheck/types"
	"github.com/cockroachdb/errors"
	mcp "github.com/metoro-io/mcp-golang"
)

// Scanner defines the interface for batch URL checking
type Scanner interface {
	Scan(ctx context.Context, reqs []types.CheckRequest, hooks checker.Hooks) (*types.Report, error)
}

// RegisterAllTools - Register all tools with the server
func RegisterAllTools(ctx context.Context, mcpServer *mcp.Server, scanner Scanner, maxURLs int) error {
	// Register check_url tool
	if err := RegisterCheckURLTool(ctx, mcpServer, scanner); err != nil {
		return err
	}

	// Register check_urls tool
	if err := RegisterCheckURLsTool(ctx, mcpServer, scanner, maxURLs); err != nil {
		return err
	}

	return nil
}

func jsonResponse(v any) (*mcp.ToolResponse, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal response to JSON")
	}
	return mcp.NewToolResponse(mcp.NewTextContent(string(b))), nil
}
