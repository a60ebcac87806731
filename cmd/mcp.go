package cmd

import (
	"github.com/spf13/cobra"

	"github.com/agentic-research/nsjson/internal/mcpserver"
)

func newMCPCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the namespace as MCP tools over stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, release, err := o.open(cmd)
			if err != nil {
				return err
			}
			defer release()
			return mcpserver.Serve(eng)
		},
	}
}
