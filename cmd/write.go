package cmd

import (
	"errors"
	"fmt"

	"github.com/sergi/go-diff/diffmatchpatch"
	"github.com/spf13/cobra"

	"github.com/agentic-research/nsjson/api"
	"github.com/agentic-research/nsjson/internal/docio"
	"github.com/agentic-research/nsjson/internal/engine"
	"github.com/agentic-research/nsjson/internal/graph"
)

func newWriteCmd(o *options) *cobra.Command {
	var update, dryRun bool
	c := &cobra.Command{
		Use:   "write [file|-]",
		Short: "Store a JSON or YAML document at --path",
		Long: `Store a document at --path in one atomic batch.

By default the subtree is replaced. With -u existing nodes are overwritten in
place: members absent from the document are kept, null members are deleted,
and arrays are rejected.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := "-"
			if len(args) == 1 {
				in = args[0]
			}
			doc, err := o.readDoc(cmd, in)
			if err != nil {
				return err
			}
			mode := api.Replace
			if update {
				mode = api.Update
			}

			eng, release, err := o.open(cmd)
			if err != nil {
				return err
			}
			defer release()

			if dryRun {
				return printPlan(cmd, eng, doc, o.path, mode)
			}
			if err := eng.Deserialize(cmd.Context(), doc, o.path, mode); err != nil {
				return err
			}
			status(cmd, true, msgUpdated)
			return nil
		},
	}
	c.Flags().BoolVarP(&update, "update", "u", false, "Update nodes in place instead of replacing the subtree")
	c.Flags().BoolVar(&dryRun, "dry-run", false, "Print the planned batch and a diff against the stored subtree without writing")
	return c
}

// printPlan shows the ops a write would submit and how the stored document
// would change.
func printPlan(cmd *cobra.Command, eng *engine.Engine, doc any, root string, mode api.Mode) error {
	ctx := cmd.Context()
	ops, err := eng.Plan(ctx, doc, root, mode)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, op := range ops {
		_, _ = fmt.Fprintln(out, op)
	}

	var before []byte
	current, err := eng.Serialize(ctx, root)
	switch {
	case errors.Is(err, graph.ErrNotFound):
	case err != nil:
		return err
	default:
		if before, err = docio.Render(current, docio.JSON); err != nil {
			return err
		}
	}
	after, err := docio.Render(doc, docio.JSON)
	if err != nil {
		return err
	}
	if mode == api.Update {
		_, _ = fmt.Fprintln(out, "# update: members absent from the document are kept")
	}
	_, _ = fmt.Fprint(out, textDiff(string(before), string(after), isTerminal(out)))
	return nil
}

// textDiff renders a line diff of a and b. Terminals get the coloured
// inline form, anything else a patch.
func textDiff(a, b string, colour bool) string {
	dmp := diffmatchpatch.New()
	ca, cb, lines := dmp.DiffLinesToChars(a, b)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(ca, cb, false), lines)
	if colour {
		return dmp.DiffPrettyText(diffs)
	}
	return dmp.PatchToText(dmp.PatchMake(a, diffs))
}
