package cmd

import (
	"github.com/spf13/cobra"

	"github.com/agentic-research/nsjson/internal/docio"
	"github.com/agentic-research/nsjson/internal/engine"
)

func newReadCmd(o *options) *cobra.Command {
	var (
		incremental  bool
		templateFile string
		selector     string
		asYAML       bool
	)
	c := &cobra.Command{
		Use:   "read [file|-]",
		Short: "Read the subtree at --path back as a document",
		Long: `Read the subtree at --path back as a document, written to file or stdout.

With -i the subtree is resolved as a template: bases are merged, deletion
markers applied and scripts evaluated. --template-file resolves a local
document as if it were stored at --path.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := "-"
			if len(args) == 1 {
				out = args[0]
			}
			var opts []engine.ResolveOption
			if templateFile != "" {
				incremental = true
				tpl, err := o.readDoc(cmd, templateFile)
				if err != nil {
					return err
				}
				opts = append(opts, engine.WithOverlay(tpl))
			}

			eng, release, err := o.open(cmd)
			if err != nil {
				return err
			}
			defer release()

			ctx := cmd.Context()
			if templateFile == "" {
				ok, err := eng.Exists(ctx, o.path)
				if err != nil {
					return err
				}
				if !ok {
					return notExist(cmd)
				}
			}
			var doc any
			if incremental {
				doc, err = eng.ResolveTemplate(ctx, o.path, opts...)
			} else {
				doc, err = eng.Serialize(ctx, o.path)
			}
			if err != nil {
				return err
			}
			if selector != "" {
				matches, err := docio.Select(doc, selector)
				if err != nil {
					return err
				}
				doc = matches
			}
			return o.writeDoc(cmd, out, doc, asYAML)
		},
	}
	c.Flags().BoolVarP(&incremental, "incremental", "i", false, "Resolve the subtree as a template")
	c.Flags().StringVar(&templateFile, "template-file", "", "Resolve this document as if stored at --path (implies -i)")
	c.Flags().StringVar(&selector, "select", "", "JSONPath expression applied to the result")
	c.Flags().BoolVar(&asYAML, "yaml", false, "Write YAML instead of JSON")
	return c
}

func (o *options) writeDoc(cmd *cobra.Command, name string, doc any, asYAML bool) error {
	if name != "-" && !asYAML {
		fs, n := o.file(name)
		return docio.WriteFile(fs, n, doc)
	}
	f := docio.JSON
	if asYAML {
		f = docio.YAML
	}
	data, err := docio.Render(doc, f)
	if err != nil {
		return err
	}
	if name == "-" {
		_, err = cmd.OutOrStdout().Write(data)
		return err
	}
	fs, n := o.file(name)
	return docio.WriteBytes(fs, n, data)
}
