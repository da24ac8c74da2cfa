package main

import (
	"context"
	"fmt"
	"io"

	"lorairo/internal/app"
	"lorairo/internal/metrics"

	"github.com/spf13/cobra"
)

// libraryStats adds the dictionary size to the project counts.
type libraryStats struct {
	metrics.Stats  `yaml:",inline"`
	DictionaryTags int64 `json:"dictionaryTags" yaml:"dictionary_tags"`
}

func newStatsCmd(opts *globalOptions) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show library counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := outputFormat(output, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			return opts.withContainer(cmd, func(ctx context.Context, c *app.Container) error {
				ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
				defer cancel()

				stats, err := c.DB.LibraryStats(ctx)
				if err != nil {
					return fmt.Errorf("failed to read library stats: %w", err)
				}
				dict, err := c.TagDB.Count(ctx)
				if err != nil {
					return fmt.Errorf("failed to count dictionary tags: %w", err)
				}
				return printStats(cmd.OutOrStdout(), format, libraryStats{Stats: stats, DictionaryTags: dict})
			})
		},
	}

	addOutputFlag(cmd, &output)
	return cmd
}

func printStats(w io.Writer, format string, s libraryStats) error {
	if format != formatTable {
		return writeStructured(w, format, s)
	}
	fmt.Fprintf(w, "Images:          %d\n", s.TotalImages)
	fmt.Fprintf(w, "Unrated images:  %d\n", s.UnratedImages)
	fmt.Fprintf(w, "Distinct tags:   %d\n", s.DistinctTags)
	fmt.Fprintf(w, "Models:          %d\n", s.TotalModels)
	fmt.Fprintf(w, "Dictionary tags: %d\n", s.DictionaryTags)
	return nil
}
