package main

import (
	"os"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/hazyhaar/originality/kit"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the pipeline as MCP tools over stdio",
	Long: `Starts an MCP server over stdin/stdout exposing:

  originality_submit, originality_fetch        full pipeline
  originality_score, originality_scan_status   scoring only
  docpipe_extract, docpipe_detect, docpipe_formats

Logs go to stderr.`,
	RunE: runMCP,
}

func runMCP(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.LogLevel, os.Stderr)
	ctx := kit.WithTransport(cmd.Context(), "mcp")

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	srv := mcp.NewServer(&mcp.Implementation{Name: "originality", Version: version}, nil)
	a.pipeline.RegisterMCP(srv)
	a.engine.RegisterMCP(srv, a.tracker)
	a.docs.RegisterMCP(srv)

	logger.Info("starting originality MCP server over stdio")
	return srv.Run(ctx, &mcp.StdioTransport{})
}
