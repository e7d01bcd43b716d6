package tools

import (
	"context"

	"github.com/cnosuke/imgcheck/checker"
	"github.com/cnosuke/imgcheck/types"
	"github.com/cockroachdb/errors"
	mcp "github.com/metoro-io/mcp-golang"
	"go.uber.org/zap"
)

// CheckURLArgs - Arguments for check_url tool
type CheckURLArgs struct {
	URL        string `json:"url" jsonschema:"description=Image URL to check,required=true"`
	Identifier string `json:"identifier,omitempty" jsonschema:"description=Optional identifier echoed in the result"`
}

// RegisterCheckURLTool - Register the check_url tool
func RegisterCheckURLTool(ctx context.Context, mcpServer *mcp.Server, scanner Scanner) error {
	zap.S().Debugw("registering check_url tool")
	err := mcpServer.RegisterTool("check_url",
		"Checks whether an image URL is still served and returns its status tag (ok, not-found, gone, forbidden, ...) and HTTP code",
		checkURLHandler(ctx, scanner))
	if err != nil {
		zap.S().Errorw("failed to register check_url tool", "error", err)
		return errors.Wrap(err, "failed to register check_url tool")
	}
	return nil
}

func checkURLHandler(ctx context.Context, scanner Scanner) func(args CheckURLArgs) (*mcp.ToolResponse, error) {
	return func(args CheckURLArgs) (*mcp.ToolResponse, error) {
		zap.S().Infow("executing check_url", "url", args.URL, "identifier", args.Identifier)

		// Validate URL
		if args.URL == "" {
			return nil, errors.New("URL is required")
		}

		rep, err := scanner.Scan(ctx, []types.CheckRequest{types.NewCheckRequest(args.Identifier, args.URL)}, checker.Hooks{})
		if err != nil {
			zap.S().Errorw("failed to check URL", "url", args.URL, "error", err)
			return nil, errors.Wrap(err, "failed to check URL")
		}
		if len(rep.Results) != 1 {
			return nil, errors.Newf("expected one result, got %d", len(rep.Results))
		}
		return jsonResponse(rep.Results[0])
	}
}
