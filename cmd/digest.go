package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentic-research/nsjson/internal/graph"
)

func newDigestCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "digest",
		Short: "Print the BLAKE3 digest of the subtree at --path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, release, err := o.open(cmd)
			if err != nil {
				return err
			}
			defer release()

			sum, err := eng.Digest(cmd.Context(), o.path)
			if errors.Is(err, graph.ErrNotFound) {
				return notExist(cmd)
			}
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", sum, o.path)
			return err
		},
	}
}
