package tools

import (
	"context"
	"fmt"

	"github.com/cnosuke/imgcheck/checker"
	"github.com/cnosuke/imgcheck/types"
	"github.com/cockroachdb/errors"
	mcp "github.com/metoro-io/mcp-golang"
	"go.uber.org/zap"
)

// CheckURLsArgs - Arguments for check_urls tool
type CheckURLsArgs struct {
	URLs []string `json:"urls" jsonschema:"description=Image URLs to check (maximum depends on config)"`
	// OnlyProblems drops ok results from the response; the tally still counts them.
	OnlyProblems bool `json:"only_problems,omitempty" jsonschema:"description=Return only results that are not ok"`
}

// RegisterCheckURLsTool - Register the check_urls tool
func RegisterCheckURLsTool(ctx context.Context, mcpServer *mcp.Server, scanner Scanner, maxURLs int) error {
	zap.S().Debugw("registering check_urls tool", "max_urls", maxURLs)
	err := mcpServer.RegisterTool("check_urls",
		fmt.Sprintf("Checks many image URLs concurrently (max %d) and returns per-URL status plus a tally", maxURLs),
		checkURLsHandler(ctx, scanner, maxURLs))
	if err != nil {
		zap.S().Errorw("failed to register check_urls tool", "error", err)
		return errors.Wrap(err, "failed to register check_urls tool")
	}
	return nil
}

func checkURLsHandler(ctx context.Context, scanner Scanner, maxURLs int) func(args CheckURLsArgs) (*mcp.ToolResponse, error) {
	return func(args CheckURLsArgs) (*mcp.ToolResponse, error) {
		zap.S().Debugw("executing check_urls", "urls_count", len(args.URLs), "only_problems", args.OnlyProblems)

		// Validate URLs count
		if len(args.URLs) == 0 {
			return nil, errors.New("at least one URL is required")
		}
		if len(args.URLs) > maxURLs {
			return nil, errors.Newf("too many URLs: maximum allowed is %d", maxURLs)
		}

		reqs := make([]types.CheckRequest, 0, len(args.URLs))
		for _, u := range args.URLs {
			reqs = append(reqs, types.NewCheckRequest("", u))
		}

		rep, err := scanner.Scan(ctx, reqs, checker.Hooks{})
		if err != nil {
			zap.S().Errorw("failed to check URLs", "error", err)
			return nil, errors.Wrap(err, "failed to check URLs")
		}

		if args.OnlyProblems {
			problems := make([]types.CheckResult, 0, len(rep.Results))
			for _, r := range rep.Results {
				if !r.OK() {
					problems = append(problems, r)
				}
			}
			rep.Results = problems
		}
		return jsonResponse(rep)
	}
}
