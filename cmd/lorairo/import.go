package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"

	"lorairo/internal/app"
	"lorairo/internal/importer"

	"github.com/spf13/cobra"
)

func newImportCmd(opts *globalOptions) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "import <dir|file>...",
		Short: "Import images into the project",
		Long: `Copy images into the project's dated dataset directory, register
them and create the processed rendition. Directories are walked
recursively; images already in the project are reported as duplicates.`,
		Example: `  lorairo import ~/Pictures/training
  lorairo import a.png b.webp`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := outputFormat(output, cmd.OutOrStdout())
			if err != nil {
				return err
			}

			var dirs, files []string
			for _, arg := range args {
				info, err := os.Stat(arg)
				if err != nil {
					return fmt.Errorf("cannot import %s: %w", arg, err)
				}
				if info.IsDir() {
					dirs = append(dirs, arg)
				} else {
					files = append(files, arg)
				}
			}

			return opts.withContainer(cmd, func(ctx context.Context, c *app.Container) error {
				report, err := importAll(ctx, c.Importer, dirs, files)
				if err != nil {
					return err
				}
				return printImportReport(cmd.OutOrStdout(), format, report)
			})
		},
	}

	addOutputFlag(cmd, &output)
	return cmd
}

// importAll imports every directory and then the loose files, merging the
// reports.
func importAll(ctx context.Context, im *importer.Importer, dirs, files []string) (importer.Report, error) {
	var total importer.Report
	for _, dir := range dirs {
		r, err := im.ImportDir(ctx, dir)
		if err != nil {
			return total, fmt.Errorf("import of %s failed: %w", dir, err)
		}
		mergeImportReport(&total, r)
	}
	if len(files) > 0 {
		r, err := im.ImportFiles(ctx, files)
		if err != nil {
			return total, fmt.Errorf("import failed: %w", err)
		}
		mergeImportReport(&total, r)
	}
	return total, nil
}

func mergeImportReport(dst *importer.Report, src importer.Report) {
	dst.Imported += src.Imported
	dst.Duplicates += src.Duplicates
	dst.Skipped += src.Skipped
	dst.ImageIDs = append(dst.ImageIDs, src.ImageIDs...)
	for path, msg := range src.Errors {
		if dst.Errors == nil {
			dst.Errors = make(map[string]string)
		}
		dst.Errors[path] = msg
	}
}

func printImportReport(w io.Writer, format string, r importer.Report) error {
	if format != formatTable {
		return writeStructured(w, format, r)
	}

	fmt.Fprintf(w, "Imported:   %d\n", r.Imported)
	fmt.Fprintf(w, "Duplicates: %d\n", r.Duplicates)
	fmt.Fprintf(w, "Skipped:    %d\n", r.Skipped)
	if len(r.Errors) == 0 {
		return nil
	}

	fmt.Fprintf(w, "\nFailed (%d):\n", len(r.Errors))
	paths := make([]string, 0, len(r.Errors))
	for p := range r.Errors {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	tw := newTable(w, "FILE", "ERROR")
	for _, p := range paths {
		row(tw, p, r.Errors[p])
	}
	return tw.Flush()
}
