package cmd

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/agentic-research/nsjson/internal/docio"
	"github.com/agentic-research/nsjson/internal/graph"
)

func newPatchCmd(o *options) *cobra.Command {
	var merge bool
	c := &cobra.Command{
		Use:   "patch <patch-file|->",
		Short: "Apply a JSON Patch to the subtree at --path",
		Long: `Apply an RFC 6902 JSON Patch, or with --merge an RFC 7386 merge patch, to the
subtree at --path. The patched document replaces the subtree in one batch.
The patch may be written in JSON, JSONC or YAML.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := o.readDoc(cmd, args[0])
			if err != nil {
				return err
			}

			eng, release, err := o.open(cmd)
			if err != nil {
				return err
			}
			defer release()

			_, err = eng.Patch(cmd.Context(), o.path, docio.Compact(p), merge)
			if errors.Is(err, graph.ErrNotFound) {
				return notExist(cmd)
			}
			if err != nil {
				return err
			}
			status(cmd, true, msgPatched)
			return nil
		},
	}
	c.Flags().BoolVar(&merge, "merge", false, "Treat the patch as a JSON merge patch")
	return c
}
