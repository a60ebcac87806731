package cmd

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/agentic-research/nsjson/internal/graph"
)

func newDeleteCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "delete",
		Short: "Delete the subtree at --path",
		Long:  "Delete the subtree at --path. At / only the children are removed.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, release, err := o.open(cmd)
			if err != nil {
				return err
			}
			defer release()

			err = eng.Delete(cmd.Context(), o.path)
			if errors.Is(err, graph.ErrNotFound) {
				return notExist(cmd)
			}
			if err != nil {
				return err
			}
			status(cmd, true, msgDeleted)
			return nil
		},
	}
}
