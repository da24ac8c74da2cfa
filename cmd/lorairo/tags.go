package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"lorairo/internal/app"
	"lorairo/internal/tagdb"

	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

func newTagCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tag",
		Short: "Look up the tag dictionary",
	}

	cmd.AddCommand(newTagResolveCmd(opts))
	cmd.AddCommand(newTagShowCmd(opts))

	return cmd
}

type resolvedTag struct {
	Tag        string        `json:"tag" yaml:"tag"`
	Normalized string        `json:"normalized" yaml:"normalized"`
	TagID      *int64        `json:"tagId,omitempty" yaml:"tag_id,omitempty"`
	Outcome    tagdb.Outcome `json:"outcome" yaml:"outcome"`
	Error      string        `json:"error,omitempty" yaml:"error,omitempty"`
}

func newTagResolveCmd(opts *globalOptions) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:     "resolve <tag>...",
		Short:   "Resolve tags to dictionary ids, registering unseen ones",
		Example: `  lorairo tag resolve "Long_Hair" "blue eyes"`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := outputFormat(output, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			return opts.withContainer(cmd, func(ctx context.Context, c *app.Container) error {
				ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
				defer cancel()

				out := resolveTags(ctx, c.Resolver, args)
				return printResolvedTags(cmd.OutOrStdout(), format, out)
			})
		},
	}

	addOutputFlag(cmd, &output)
	return cmd
}

func resolveTags(ctx context.Context, r *tagdb.Resolver, tags []string) []resolvedTag {
	out := make([]resolvedTag, 0, len(tags))
	for _, tag := range tags {
		res := r.Resolve(ctx, tag)
		rt := resolvedTag{Tag: tag, Normalized: tagdb.Normalize(tag), Outcome: res.Outcome}
		if res.OK() {
			id := res.TagID
			rt.TagID = &id
		}
		if res.Err != nil {
			rt.Error = res.Err.Error()
		}
		out = append(out, rt)
	}
	return out
}

func printResolvedTags(w io.Writer, format string, tags []resolvedTag) error {
	if format != formatTable {
		return writeStructured(w, format, tags)
	}

	tw := newTable(w, "TAG", "NORMALIZED", "ID", "OUTCOME")
	for _, t := range tags {
		id := "-"
		if t.TagID != nil {
			id = strconv.FormatInt(*t.TagID, 10)
		}
		row(tw, t.Tag, orDash(t.Normalized), id, t.Outcome)
	}
	return tw.Flush()
}

func newTagShowCmd(opts *globalOptions) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "show <tag-id>",
		Short: "Show one dictionary entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := outputFormat(output, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid tag id %q", sanitizeArg(args[0]))
			}
			return opts.withContainer(cmd, func(ctx context.Context, c *app.Container) error {
				ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
				defer cancel()

				rec, err := c.TagDB.Get(ctx, id)
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return fmt.Errorf("tag %d not found", id)
				}
				if err != nil {
					return err
				}

				w := cmd.OutOrStdout()
				if format != formatTable {
					return writeStructured(w, format, rec)
				}
				tw := newTable(w, "ID", "TAG", "SOURCE", "FORMAT", "TYPE", "CREATED")
				row(tw, rec.TagID, rec.Tag, rec.SourceTag, rec.FormatID, rec.TypeID, rec.CreatedAt.Format("2006-01-02"))
				return tw.Flush()
			})
		},
	}

	addOutputFlag(cmd, &output)
	return cmd
}
