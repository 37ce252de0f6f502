package main

import (
	"github.com/spf13/cobra"

	mcpadapter "github.com/kirillkom/complaints-rag/internal/adapters/mcp"
)

func newMCPCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the answer and retrieve tools over MCP stdio",
		Long: `Starts a Model Context Protocol server on stdin/stdout exposing two tools:
"answer" and "retrieve". Logs go to stderr.

Example client configuration:
  {
    "mcpServers": {
      "complaints": {
        "command": "/path/to/ragctl",
        "args": ["mcp"]
      }
    }
  }`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := opts.loadApp(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			if _, err := app.PrepareIndex(cmd.Context()); err != nil {
				return err
			}
			go func() {
				if err := app.FollowSwaps(cmd.Context()); err != nil {
					app.Logger.Warn("index_follow_failed", "error", err)
				}
			}()

			server := mcpadapter.NewServer(app.QueryUC, app.Logger)
			return server.ServeStdio(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}
