package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"

	"lorairo/internal/annotation"
	"lorairo/internal/app"

	"github.com/spf13/cobra"
)

func newAnnotationsCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "annotations",
		Aliases: []string{"annotate"},
		Short:   "Store annotation model results",
		Long: `Write tags, captions, scores and ratings produced by annotation models
back to the project. Results are keyed by image phash, then model name.`,
	}

	cmd.AddCommand(newAnnotationsLoadCmd(opts))
	cmd.AddCommand(newAnnotationsApplyCmd(opts))

	return cmd
}

func newAnnotationsLoadCmd(opts *globalOptions) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:     "load <results.json|results.yaml>",
		Short:   "Store every result in a results file",
		Example: `  lorairo annotations load wd-tagger-run.json`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := outputFormat(output, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			results, err := annotation.LoadResults(args[0])
			if err != nil {
				return err
			}
			return opts.withContainer(cmd, func(ctx context.Context, c *app.Container) error {
				report, err := c.Annotations.Apply(ctx, results)
				if err != nil {
					return fmt.Errorf("failed to store annotations: %w", err)
				}
				return printAnnotationReport(cmd.OutOrStdout(), format, report)
			})
		},
	}

	addOutputFlag(cmd, &output)
	return cmd
}

func newAnnotationsApplyCmd(opts *globalOptions) *cobra.Command {
	var (
		resultsFile string
		models      []string
		output      string
	)

	cmd := &cobra.Command{
		Use:   "apply <image-id>...",
		Short: "Annotate selected images from a results file",
		Long: `Run the selected images through the annotation service using a results
file as the annotator. Only the given images are touched, and with --model
only the named models are stored; a named model without a result is
reported as failed.`,
		Example: `  lorairo annotations apply 12 13 14 --results run.json --model wd-v1-4`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := outputFormat(output, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			ids, err := parseImageIDs(args)
			if err != nil {
				return err
			}
			results, err := annotation.LoadResults(resultsFile)
			if err != nil {
				return err
			}
			return opts.withContainer(cmd, func(ctx context.Context, c *app.Container) error {
				svc := c.AnnotationsWith(annotation.NewFileAnnotator(results))
				report, err := svc.AnnotateImages(ctx, ids, models)
				if err != nil {
					return fmt.Errorf("annotation failed: %w", err)
				}
				return printAnnotationReport(cmd.OutOrStdout(), format, report)
			})
		},
	}

	cmd.Flags().StringVar(&resultsFile, "results", "", "Results file (JSON or YAML)")
	cmd.Flags().StringSliceVar(&models, "model", nil, "Model to store (repeatable, default all)")
	addOutputFlag(cmd, &output)
	_ = cmd.MarkFlagRequired("results")

	return cmd
}

func parseImageIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid image id %q", sanitizeArg(arg))
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func printAnnotationReport(w io.Writer, format string, r annotation.Report) error {
	if format != formatTable {
		return writeStructured(w, format, r)
	}

	fmt.Fprintf(w, "Images:   %d\n", r.Images)
	fmt.Fprintf(w, "Tags:     %d (%d skipped)\n", r.Saved.TagsSaved, r.Saved.TagsSkipped)
	fmt.Fprintf(w, "Captions: %d\n", r.Saved.CaptionsSaved)
	fmt.Fprintf(w, "Scores:   %d\n", r.Saved.ScoresSaved)
	fmt.Fprintf(w, "Ratings:  %d\n", r.Saved.RatingsSaved)

	if len(r.Missing) > 0 {
		fmt.Fprintf(w, "\nNot in project (%d):\n", len(r.Missing))
		for _, ph := range r.Missing {
			fmt.Fprintf(w, "  %s\n", ph)
		}
	}
	if len(r.ModelErrors) == 0 {
		return nil
	}

	fmt.Fprintln(w, "\nModel errors:")
	phashes := make([]string, 0, len(r.ModelErrors))
	for ph := range r.ModelErrors {
		phashes = append(phashes, ph)
	}
	sort.Strings(phashes)
	tw := newTable(w, "PHASH", "MODEL", "ERROR")
	for _, ph := range phashes {
		models := make([]string, 0, len(r.ModelErrors[ph]))
		for m := range r.ModelErrors[ph] {
			models = append(models, m)
		}
		sort.Strings(models)
		for _, m := range models {
			row(tw, ph, m, r.ModelErrors[ph][m])
		}
	}
	return tw.Flush()
}
