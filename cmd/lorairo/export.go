package main

import (
	"context"
	"fmt"
	"io"
	"sort"

	"lorairo/internal/app"
	"lorairo/internal/export"

	"github.com/spf13/cobra"
)

func newExportCmd(opts *globalOptions) *cobra.Command {
	var (
		filters searchFlags
		dest    string
		output  string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export matching images as a training dataset",
		Long: `Copy every image matching the search flags into a directory together
with a .txt file of its tags and a .caption file of its latest caption.
With --resolution the rendition of that size is exported where one exists.`,
		Example: `  lorairo export --dest ./train --exclude-nsfw --score-min 6 --resolution 512`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			conds, err := filters.conditions(cmd)
			if err != nil {
				return err
			}
			format, err := outputFormat(output, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			return opts.withContainer(cmd, func(ctx context.Context, c *app.Container) error {
				report, err := c.Exporter.Export(ctx, conds, dest)
				if err != nil {
					return fmt.Errorf("export failed: %w", err)
				}
				return printExportReport(cmd.OutOrStdout(), format, dest, report)
			})
		},
	}

	filters.register(cmd)
	cmd.Flags().StringVarP(&dest, "dest", "d", "", "Destination directory")
	addOutputFlag(cmd, &output)
	_ = cmd.MarkFlagRequired("dest")

	return cmd
}

func printExportReport(w io.Writer, format, dest string, r export.Report) error {
	if format != formatTable {
		return writeStructured(w, format, r)
	}

	fmt.Fprintf(w, "Exported %d images to %s\n", r.Exported, dest)
	if len(r.Errors) == 0 {
		return nil
	}

	ids := make([]int64, 0, len(r.Errors))
	for id := range r.Errors {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	fmt.Fprintf(w, "\nFailed (%d):\n", len(ids))
	tw := newTable(w, "ID", "ERROR")
	for _, id := range ids {
		row(tw, id, r.Errors[id])
	}
	return tw.Flush()
}
