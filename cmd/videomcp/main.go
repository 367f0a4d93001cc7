package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/keagan/videomcp/internal/config"
	"github.com/keagan/videomcp/internal/dataset"
	"github.com/keagan/videomcp/internal/errs"
	"github.com/keagan/videomcp/internal/hub"
	"github.com/keagan/videomcp/internal/logging"
	"github.com/keagan/videomcp/internal/pipeline"
	"github.com/keagan/videomcp/internal/render"
)

var version = "dev"

var (
	cfgFile string
	verbose bool
	logFile string

	datasetName string
	outDir      string
	rawDir      string
	seed        uint64
	count       int
	split       string
	limit       int
	litStyle    string
	width       int
	height      int
	numFrames   int
	fps         int
	workers     int
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logging.WithComponent("cli").Error().Err(err).Bool("fatal", errs.IsFatal(err)).Msg("command failed")
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "videomcp",
	Short:         "videomcp - multiple-choice question clip generator",
	Long:          "Turns image multiple-choice QA samples into short answer-reveal video clips with a prompt and ground truth frames.",
	SilenceUsage:  true,
	SilenceErrors: true,
	Version:       version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Initialize logging
		if logFile != "" {
			f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				return fmt.Errorf("open log file: %w", err)
			}
			logging.Init(verbose, f)
		} else {
			logging.Init(verbose)
		}

		// Load config
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}

		// Store config in context
		ctx := config.WithConfig(cmd.Context(), cfg)
		cmd.SetContext(ctx)

		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "also append JSON logs to this file")

	for _, c := range []*cobra.Command{downloadCmd, processCmd, exportCmd} {
		c.Flags().StringVarP(&datasetName, "dataset", "d", "", "dataset adapter (see `videomcp list`)")
		c.Flags().StringVar(&rawDir, "raw-dir", "", "raw dataset directory (default: <raw_dir>/<dataset>)")
		c.Flags().StringVarP(&outDir, "out-dir", "o", "", "output directory")
		_ = c.MarkFlagRequired("dataset")
	}
	for _, c := range []*cobra.Command{processCmd, exportCmd} {
		c.Flags().IntVarP(&limit, "limit", "n", 0, "maximum number of samples (0 = all)")
		c.Flags().Uint64Var(&seed, "seed", 0, "seed for synthetic adapters")
		c.Flags().IntVar(&count, "count", 0, "sample count for synthetic adapters")
		c.Flags().StringVar(&split, "split", "", "dataset split")
	}

	processCmd.Flags().StringVar(&litStyle, "lit-style", "", "answer highlight style ("+strings.Join(render.Styles(), "|")+")")
	processCmd.Flags().IntVar(&width, "width", 0, "frame width")
	processCmd.Flags().IntVar(&height, "height", 0, "frame height")
	processCmd.Flags().IntVar(&numFrames, "num-frames", 0, "frames per clip (1+4k)")
	processCmd.Flags().IntVar(&fps, "fps", 0, "frames per second")
	processCmd.Flags().IntVarP(&workers, "workers", "j", 0, "concurrent samples (default: concurrency from config)")

	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(downloadCmd)
	rootCmd.AddCommand(processCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
}

// datasetOptions resolves adapter options from config and flags.
func datasetOptions(cfg *config.Config) dataset.Options {
	dir := rawDir
	if dir == "" {
		dir = filepath.Join(cfg.RawDir, datasetName)
	}
	return dataset.Options{
		RawDir: dir,
		Hub:    hub.New(log.Logger, cfg.Hub.Endpoint, cfg.Hub.Token, hub.WithProgress(cfg.Render.ProgressBar)),
		Seed:   seed,
		Count:  count,
		Split:  split,
		Logger: log.Logger,
	}
}

func newPipeline(cfg *config.Config, opts ...pipeline.Option) (*pipeline.Pipeline, error) {
	n := cfg.Concurrency
	if workers > 0 {
		n = workers
	}
	return pipeline.New(log.Logger, &pipeline.Config{
		Workers:     n,
		TempDir:     cfg.TempDir,
		ProgressBar: cfg.Render.ProgressBar,
		ToolVersion: version,
	}, cfg, opts...)
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered dataset adapters",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())
		for _, name := range dataset.List() {
			a, err := dataset.Get(name, dataset.Options{RawDir: cfg.RawDir, Logger: log.Logger})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%-16s %s\n", name, dataset.GeneratorName(a))
		}
		return nil
	},
}

var downloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Download raw dataset artifacts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())
		opts := datasetOptions(cfg)

		a, err := dataset.Get(datasetName, opts)
		if err != nil {
			return err
		}
		dest := outDir
		if dest == "" {
			dest = opts.RawDir
		}
		path, err := a.Download(cmd.Context(), dest)
		if err != nil {
			return err
		}
		if path != "" {
			fmt.Fprintln(cmd.OutOrStdout(), path)
		}
		return nil
	},
}

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Render answer-reveal clips for a dataset",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())

		spec := cfg.Video
		if cmd.Flags().Changed("width") {
			spec.Width = width
		}
		if cmd.Flags().Changed("height") {
			spec.Height = height
		}
		if cmd.Flags().Changed("num-frames") {
			spec.NumFrames = numFrames
		}
		if cmd.Flags().Changed("fps") {
			spec.FPS = fps
		}
		style := cfg.Render.LitStyle
		if litStyle != "" {
			style = litStyle
		}
		dest := outDir
		if dest == "" {
			dest = cfg.OutDir
		}

		a, err := dataset.Get(datasetName, datasetOptions(cfg))
		if err != nil {
			return err
		}

		pipe, err := newPipeline(cfg)
		if err != nil {
			return err
		}
		defer pipe.Close()

		summary, err := pipe.Process(cmd.Context(), a, pipeline.ProcessOptions{
			OutDir: dest,
			Video:  spec,
			Style:  render.Style(style),
			Limit:  limit,
		})
		if summary != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "processed=%d skipped=%d failed=%d\n",
				summary.Processed, summary.Skipped, summary.Failed)
		}
		return err
	},
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export samples to metadata.jsonl with images",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())

		dest := outDir
		if dest == "" {
			dest = filepath.Join(cfg.RawDir, "jsonl")
		}

		a, err := dataset.Get(datasetName, datasetOptions(cfg))
		if err != nil {
			return err
		}

		// Export never encodes, so ffmpeg is not required.
		pipe, err := newPipeline(cfg, pipeline.WithEncoder(noEncoder{}))
		if err != nil {
			return err
		}
		defer pipe.Close()

		res, err := pipe.Export(cmd.Context(), a, pipeline.ExportOptions{
			OutDir: dest,
			Split:  split,
			Limit:  limit,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s written=%d skipped=%d\n", res.MetadataPath, res.Written, res.Skipped)
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Config management commands",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())
		enc := yaml.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(cfg)
	},
}
