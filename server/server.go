package server

import (
	"context"

	mcp "github.com/metoro-io/mcp-golang"
	"github.com/metoro-io/mcp-golang/transport/stdio"
	"go.uber.org/zap"

	"github.com/cnosuke/imgcheck/config"
	"github.com/cnosuke/imgcheck/scan"
	"github.com/cnosuke/imgcheck/server/tools"
	"github.com/cockroachdb/errors"
)

// Run - Execute the MCP server until ctx is done
func Run(ctx context.Context, cfg *config.Config, name string, version string, revision string) error {
	zap.S().Infow("starting MCP imgcheck server")

	// Format version string with revision if available
	versionString := version
	if revision != "" && revision != "xxx" {
		versionString = versionString + " (" + revision + ")"
	}

	// Create Scanner. Tool calls are one-shot, so no checkpoint store is attached.
	zap.S().Debugw("creating scanner")
	scanner, err := scan.NewFromConfig(cfg, nil, nil)
	if err != nil {
		zap.S().Errorw("failed to create scanner", "error", err)
		return err
	}

	zap.S().Debugw("creating MCP server",
		"name", name,
		"version", versionString,
	)
	mcpServer := mcp.NewServer(stdio.NewStdioServerTransport())

	// Register all tools
	zap.S().Debugw("registering tools")
	if err := tools.RegisterAllTools(ctx, mcpServer, scanner, cfg.Server.MaxURLs); err != nil {
		zap.S().Errorw("failed to register tools", "error", err)
		return err
	}

	// Start the server with stdio transport
	zap.S().Infow("starting MCP server")
	if err := mcpServer.Serve(); err != nil {
		zap.S().Errorw("failed to start server", "error", err)
		return errors.Wrap(err, "failed to start server")
	}

	// Serve returns immediately; block until shutdown is requested
	<-ctx.Done()
	zap.S().Infow("server shutting down")
	return nil
}
