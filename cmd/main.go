package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	app "github.com/okian/curator/internal/app"
	"github.com/okian/curator/internal/config"
	"github.com/okian/curator/internal/domain/category"
	"github.com/okian/curator/internal/domain/cost"
	"github.com/okian/curator/internal/domain/stats"
	"github.com/okian/curator/internal/synth"
	"github.com/okian/curator/pkg/logger"
)

var version = "dev"

// rootFlags are shared by every subcommand.
type rootFlags struct {
	configPath string
	logLevel   string
	logFormat  string
	noProgress bool
}

func main() {
	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	f := &rootFlags{}
	root := &cobra.Command{
		Use:   "curator",
		Short: "Curate vehicle damage photos into a training dataset",
		Long: `curator scans a tree of damage photos sorted by severity, drops corrupt,
undersized and duplicate files, normalizes the rest into JPEG and writes a
stratified train/validation/test split with an annotation table and statistics.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&f.configPath, "config", "", "config file (YAML); defaults to $"+config.EnvConfigPath)
	root.PersistentFlags().StringVar(&f.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&f.logFormat, "log-format", "", "log format (text, json)")

	root.AddCommand(runCmd(f))
	root.AddCommand(statsCmd(f))
	root.AddCommand(verifyCmd(f))
	root.AddCommand(generateCmd())
	root.AddCommand(categoriesCmd())
	root.AddCommand(quoteCmd())
	root.AddCommand(versionCmd())
	return root
}

// setup loads configuration and initializes logging for a command.
func setup(cmd *cobra.Command, f *rootFlags) (*config.Config, error) {
	cfg, err := config.Load(cmd.Context(), f.configPath)
	if err != nil {
		return nil, err
	}
	if f.logLevel != "" {
		cfg.LogLevel = f.logLevel
	}
	if f.logFormat != "" {
		cfg.LogFormat = f.logFormat
	}

	if err := logger.InitWithWriter(cmd.ErrOrStderr(), cfg.LogFormat); err != nil {
		return nil, fmt.Errorf("failed to initialize logging: %w", err)
	}
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		logger.Get().Warn(cmd.Context(), "invalid log_level; falling back to info",
			logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}
	return cfg, nil
}

func runCmd(f *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the curation pipeline",
		Long: `Run scans the raw directory, validates and deduplicates every candidate,
normalizes accepted images into the processed directory and prints the run statistics.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := setup(cmd, f)
			if err != nil {
				return err
			}

			opts := []app.Option{app.WithLogger(logger.Named("curator"))}
			if cfg.Progress && !f.noProgress {
				opts = append(opts, app.WithProgress(cmd.ErrOrStderr()))
			}

			summary, err := app.New(cfg, opts...).Run(cmd.Context())
			if errors.Is(err, app.ErrNoImages) {
				// The counters still say why every candidate was dropped.
				_ = stats.Print(cmd.OutOrStdout(), summary)
			}
			if err != nil {
				return fmt.Errorf("run failed: %w", err)
			}
			return stats.Print(cmd.OutOrStdout(), summary)
		},
	}
	cmd.Flags().BoolVar(&f.noProgress, "no-progress", false, "disable the progress bar")
	return cmd
}

func statsCmd(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "stats [file]",
		Short: "Print the statistics of the last run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			} else {
				cfg, err := setup(cmd, f)
				if err != nil {
					return err
				}
				path = cfg.StatisticsFile
			}

			summary, err := stats.Read(path)
			if err != nil {
				return err
			}
			return stats.Print(cmd.OutOrStdout(), summary)
		},
	}
}

func verifyCmd(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check the processed tree against its annotation table and statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := setup(cmd, f)
			if err != nil {
				return err
			}
			rep, err := synth.Verify(cmd.Context(), cfg.ProcessedDir, cfg.AnnotationsFile, cfg.StatisticsFile)
			for _, p := range rep.Problems {
				fmt.Fprintln(cmd.OutOrStdout(), "  "+p)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok: %d records, %d images\n", rep.Records, rep.Files)
			return nil
		},
	}
}

func generateCmd() *cobra.Command {
	cfg := synth.Config{}
	cmd := &cobra.Command{
		Use:   "generate <raw-dir>",
		Short: "Write a synthetic raw tree for smoke runs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := logger.InitWithWriter(cmd.ErrOrStderr(), "text"); err != nil {
				return err
			}
			cfg.Root = args[0]
			st, err := synth.Generate(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d files (%d unique, %d duplicates, %d corrupt, %d undersized)\n",
				st.Files(), st.Unique, st.Duplicates, st.Corrupt, st.Undersized)
			return nil
		},
	}
	cmd.Flags().IntVar(&cfg.PerCategory, "per-category", 10, "unique images per category")
	cmd.Flags().IntVar(&cfg.Duplicates, "duplicates", 2, "byte-identical copies")
	cmd.Flags().IntVar(&cfg.Corrupt, "corrupt", 1, "truncated files")
	cmd.Flags().IntVar(&cfg.Undersized, "undersized", 1, "images below the minimum size")
	cmd.Flags().IntVar(&cfg.Size, "size", 160, "image edge in pixels")
	cmd.Flags().Int64Var(&cfg.Seed, "seed", 42, "content seed")
	return cmd
}

func categoriesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "categories",
		Short: "List severity categories and their repair cost ranges",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tLABEL\tCOST MIN\tCOST MAX\tDESCRIPTION")
			for _, c := range category.All() {
				s := c.Spec()
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\n", c, s.Label, s.CostMin, s.CostMax, s.Description)
			}
			return w.Flush()
		},
	}
}

func quoteCmd() *cobra.Command {
	var seed int64
	cmd := &cobra.Command{
		Use:   "quote <category> <confidence>",
		Short: "Quote a repair cost for a predicted severity",
		Long: `Quote prints the cost block attached to a severity prediction as JSON.
confidence is a percentage; below 80 the estimate moves away from the range
midpoint by a random offset that grows as confidence drops.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := category.Parse(args[0])
			if err != nil {
				return err
			}
			confidence, err := strconv.ParseFloat(args[1], 64)
			if err != nil || confidence < 0 || confidence > 100 {
				return fmt.Errorf("confidence must be a number in [0,100], got %q", args[1])
			}

			r := rand.New(rand.NewSource(seed)) //nolint:gosec // quotes are synthetic
			q := cost.NewEstimator().ForPrediction(c, confidence, r)

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(q)
		},
	}
	cmd.Flags().Int64Var(&seed, "seed", 42, "seed of the offset draw")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "curator "+version)
		},
	}
}
