package main

import (
	"context"
	"fmt"
	"io"

	"lorairo/internal/app"
	"lorairo/internal/database"
	"lorairo/internal/search"

	"github.com/spf13/cobra"
)

// searchFlags are the filter flags shared by search and export.
type searchFlags struct {
	keywords       string
	searchType     string
	logic          string
	resolution     int
	from, to       string
	rating         string
	aiRating       string
	excludeUnrated bool
	excludeNSFW    bool
	scoreMin       float64
	scoreMax       float64
	sort           string
	desc           bool
}

func (f *searchFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVarP(&f.keywords, "query", "q", "", "Comma-separated keywords")
	fs.StringVar(&f.searchType, "type", "", "Match keywords against tags (default) or caption")
	fs.StringVar(&f.logic, "logic", "", "Combine keywords with and (default) or or")
	fs.IntVar(&f.resolution, "resolution", 0, "Minimum long edge; use renditions of that size")
	fs.StringVar(&f.from, "from", "", "Created on or after (YYYY-MM-DD or RFC 3339)")
	fs.StringVar(&f.to, "to", "", "Created on or before (YYYY-MM-DD or RFC 3339)")
	fs.StringVar(&f.rating, "rating", "", "Manual rating (PG, PG-13, R, X, XXX)")
	fs.StringVar(&f.aiRating, "ai-rating", "", "AI rating (PG, PG-13, R, X, XXX)")
	fs.BoolVar(&f.excludeUnrated, "exclude-unrated", false, "Drop images without any rating")
	fs.BoolVar(&f.excludeNSFW, "exclude-nsfw", false, "Drop images rated R or above")
	fs.Float64Var(&f.scoreMin, "score-min", 0, "Minimum score (0-10)")
	fs.Float64Var(&f.scoreMax, "score-max", 10, "Maximum score (0-10)")
	fs.StringVar(&f.sort, "sort", "", "Sort by created, updated, id, width, height or score (default newest first)")
	fs.BoolVar(&f.desc, "desc", false, "Sort descending")
}

// conditions builds search conditions from the flags. Score bounds only
// apply when set explicitly.
func (f *searchFlags) conditions(cmd *cobra.Command) (search.Conditions, error) {
	c := search.Conditions{
		SearchType:     search.SearchType(f.searchType),
		Keywords:       search.ParseKeywords(f.keywords),
		TagLogic:       database.TagLogic(f.logic),
		Resolution:     f.resolution,
		ExcludeUnrated: f.excludeUnrated,
		ExcludeNSFW:    f.excludeNSFW,
		Sort:           database.SortKey(f.sort),
		SortDesc:       f.desc,
	}

	var err error
	if c.DateFrom, err = search.ParseDate(f.from, false); err != nil {
		return c, err
	}
	if c.DateTo, err = search.ParseDate(f.to, true); err != nil {
		return c, err
	}
	if f.rating != "" {
		c.RatingFilter = &f.rating
	}
	if f.aiRating != "" {
		c.AIRatingFilter = &f.aiRating
	}
	if cmd.Flags().Changed("score-min") {
		c.ScoreMin = &f.scoreMin
	}
	if cmd.Flags().Changed("score-max") {
		c.ScoreMax = &f.scoreMax
	}

	if err := c.Validate(); err != nil {
		return c, err
	}
	filter := c.ToDBFilterArgs()
	return c, filter.Validate()
}

func newSearchCmd(opts *globalOptions) *cobra.Command {
	var (
		filters  searchFlags
		page     int
		pageSize int
		output   string
	)

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search the image library",
		Long: `Search images by tags or caption, rating, score, resolution and
creation date, and print one page of results.`,
		Example: `  # Images tagged with both cat and sofa
  lorairo search -q "cat, sofa"

  # Second page of safe images scored 7 or higher, as YAML
  lorairo search --exclude-nsfw --score-min 7 --page 2 -o yaml`,
		Args: cobra.NoArgs,
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
				size := pageSize
				if size <= 0 {
					size = c.Config.PageSize
				}
				result, err := c.Processor.ExecuteSearchPage(ctx, conds, page, size)
				if err != nil {
					return fmt.Errorf("search failed: %w", err)
				}
				if result.Rows == nil {
					result.Rows = []database.ImageRow{}
				}
				return printSearchResult(cmd.OutOrStdout(), format, result)
			})
		},
	}

	filters.register(cmd)
	cmd.Flags().IntVar(&page, "page", 1, "Page number")
	cmd.Flags().IntVar(&pageSize, "page-size", 0, "Rows per page (default from configuration)")
	addOutputFlag(cmd, &output)

	return cmd
}

func printSearchResult(w io.Writer, format string, result search.Result) error {
	if format != formatTable {
		return writeStructured(w, format, result)
	}

	tw := newTable(w, "ID", "PHASH", "SIZE", "RATING", "CREATED", "PATH")
	for _, r := range result.Rows {
		rating := ""
		if r.ManualRating != nil {
			rating = *r.ManualRating
		}
		row(tw, r.ID, r.PHash, fmt.Sprintf("%dx%d", r.Width, r.Height), orDash(rating),
			r.CreatedAt.Format("2006-01-02 15:04"), r.StoredImagePath)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\nPage %d of %d (%d images)\n", result.Page, result.TotalPages, result.Total)
	return err
}
