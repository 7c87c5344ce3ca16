package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"NewsCollector/internal/app"
	"NewsCollector/internal/config"
	"NewsCollector/internal/domain"
	"NewsCollector/internal/logging"
	"NewsCollector/internal/report"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     config.Config
	configErr  error
}

func (c *commandContext) ensureConfig() (config.Config, error) {
	c.configOnce.Do(func() {
		path := ""
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		c.config, c.configErr = config.Load(path)
		if c.configErr != nil {
			c.configErr = fmt.Errorf("load config: %w", c.configErr)
		}
	})
	return c.config, c.configErr
}

func (c *commandContext) withApp(ctx context.Context, opts app.Options, fn func(*app.Application) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	logger := logging.New(cfg.Logging.Level).With("service", "newscollector")
	application := app.New(ctx, cfg, logger, opts)
	defer application.Close()
	return fn(application)
}

func newRootCommand() *cobra.Command {
	var configFlag string
	ctx := &commandContext{configFlag: &configFlag}

	rootCmd := &cobra.Command{
		Use:           "newscollector",
		Short:         "Incremental news ingestion with cross-run deduplication",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")

	rootCmd.AddCommand(newRunCommand(ctx))
	rootCmd.AddCommand(newServeCommand(ctx))
	rootCmd.AddCommand(newStatsCommand(ctx))
	rootCmd.AddCommand(newResetStatsCommand(ctx))
	rootCmd.AddCommand(newTrendsCommand(ctx))
	return rootCmd
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

func printSummary(out io.Writer) func(domain.RunRecord) {
	return func(rec domain.RunRecord) {
		fmt.Fprint(out, report.Summary(rec))
	}
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run a single collection cycle",
		RunE: func(cmd *cobra.Command, args []string) error {
			runCtx, cancel := signalContext(cmd.Context())
			defer cancel()

			out := cmd.OutOrStdout()
			return ctx.withApp(runCtx, app.Options{OnCycle: printSummary(out)}, func(a *app.Application) error {
				_, err := a.RunOnce(runCtx)
				return err
			})
		},
	}
}

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Collect now and then on the configured interval",
		RunE: func(cmd *cobra.Command, args []string) error {
			runCtx, cancel := signalContext(cmd.Context())
			defer cancel()

			out := cmd.OutOrStdout()
			return ctx.withApp(runCtx, app.Options{OnCycle: printSummary(out)}, func(a *app.Application) error {
				return a.Serve(runCtx)
			})
		},
	}
}

func newStatsCommand(ctx *commandContext) *cobra.Command {
	var last int
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show collection history",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd.Context(), app.Options{}, func(a *app.Application) error {
				hist, err := a.History(cmd.Context())
				if err != nil {
					return err
				}
				cfg, _ := ctx.ensureConfig()
				loc := cfg.Scheduler.Location()
				for i := range hist.Runs {
					hist.Runs[i].StartedAt = hist.Runs[i].StartedAt.In(loc)
					hist.Runs[i].FinishedAt = hist.Runs[i].FinishedAt.In(loc)
				}
				hist.StartedAt = hist.StartedAt.In(loc)
				fmt.Fprint(cmd.OutOrStdout(), report.History(hist, last))
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&last, "last", "n", 10, "Number of recent runs to list")
	return cmd
}

func newResetStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reset-stats",
		Short: "Clear collection history (the dedup ledger is kept)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd.Context(), app.Options{}, func(a *app.Application) error {
				if err := a.ResetHistory(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Collection history cleared.")
				return nil
			})
		},
	}
}

func newTrendsCommand(ctx *commandContext) *cobra.Command {
	var hours int
	cmd := &cobra.Command{
		Use:   "trends",
		Short: "Show indexed articles by topic and source type",
		RunE: func(cmd *cobra.Command, args []string) error {
			since := time.Now().Add(-time.Duration(hours) * time.Hour)
			return ctx.withApp(cmd.Context(), app.Options{}, func(a *app.Application) error {
				byTopic, bySource, err := a.Trends(cmd.Context(), since)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprint(out, report.Trends(fmt.Sprintf("By topic (last %dh)", hours), byTopic))
				fmt.Fprint(out, report.Trends(fmt.Sprintf("By source type (last %dh)", hours), bySource))
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&hours, "hours", 24, "Look-back window in hours")
	return cmd
}
