// Command todoist-mcp is the stdio tool-protocol server the agent runtime
// launches as a subprocess: one JSON-RPC request per input line, one
// correlated response per output line.
package main

import (
	"context"
	"fmt"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/jpoliachik/jpos-agent/internal/mcpserver"
	"github.com/jpoliachik/jpos-agent/internal/todoist"
)

func run(_ context.Context, cmd *cli.Command) error {
	token := cmd.String("token")
	if token == "" {
		return fmt.Errorf("todoist API token is required (--token or TODOIST_API_TOKEN)")
	}

	client := todoist.NewClient(token, "", nil)
	srv := mcpserver.New(client)
	return srv.ServeStdio()
}

func main() {
	cmd := &cli.Command{
		Name:   "todoist-mcp",
		Usage:  "Todoist tool server over MCP stdio transport",
		Action: run,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "token",
				Usage:   "Todoist API token",
				Sources: cli.EnvVars("TODOIST_API_TOKEN"),
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		// stdout carries the protocol; diagnostics go to stderr.
		fmt.Fprintf(os.Stderr, "todoist-mcp: %v\n", err)
		os.Exit(1)
	}
}
