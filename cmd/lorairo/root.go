package main

import (
	"context"
	"fmt"
	"time"

	"lorairo/internal/app"
	"lorairo/internal/logging"
	"lorairo/internal/startup"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// Default timeout for short database operations
const defaultTimeout = 30 * time.Second

// globalOptions holds the persistent flags shared by every command.
type globalOptions struct {
	configFile string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:   "lorairo",
		Short: "Search, annotate and export LoRA training datasets",
		Long: `lorairo manages an image dataset project: importing images, storing
tags, captions, scores and ratings from annotation models, searching the
library and exporting a training set.

Configuration is read from lorairo.yaml (or --config) and LORAIRO_*
environment variables. A .env file in the working directory is loaded first.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()

			// Keep stderr quiet unless asked; the config file may still raise it.
			if opts.verbose {
				logging.SetLevel("debug")
			} else {
				logging.SetLevel("warn")
			}
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "", "Path to lorairo.yaml")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Verbose logging")

	cmd.AddCommand(newSearchCmd(opts))
	cmd.AddCommand(newImportCmd(opts))
	cmd.AddCommand(newAnnotationsCmd(opts))
	cmd.AddCommand(newTagCmd(opts))
	cmd.AddCommand(newExportCmd(opts))
	cmd.AddCommand(newStatsCmd(opts))

	return cmd
}

// withContainer loads the configuration, opens the project, runs fn and
// closes the project again.
func (o *globalOptions) withContainer(cmd *cobra.Command, fn func(ctx context.Context, c *app.Container) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := startup.LoadConfigFile(o.configFile)
	if err != nil {
		return err
	}
	c, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open project: %w", err)
	}
	defer func() {
		if err := c.Close(); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Warning: failed to close project: %v\n", err)
		}
	}()

	return fn(ctx, c)
}
