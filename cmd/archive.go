package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/nfields/bindery/internal/archive"
	"github.com/nfields/bindery/internal/logging"
)

// newArchiveCmd creates and configures the 'archive' subcommand.
func newArchiveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive <book-id>",
		Short: "Archive one book into per-chapter PDFs",
		Long: `Fetches the book's chapter listing, then walks each chapter's parts,
downloads the page images, and writes one PDF per chapter plus an
index.html linking them in reading order. Chapters whose PDF already
exists are skipped unless --force is given.`,
		Args: cobra.ExactArgs(1),
		RunE: runArchiveCommand,
	}

	cmd.Flags().String("output-dir", "", "directory to place the book folder in")
	cmd.Flags().Int("workers", 0, "number of chapters processed concurrently")
	cmd.Flags().Int("image-concurrency", 0, "global cap on in-flight image downloads")
	cmd.Flags().Bool("keep-scratch", false, "keep per-chapter scratch image directories")
	cmd.Flags().Bool("force", false, "re-archive chapters even when their PDF exists")

	bindFlag(cmd, "output.dir", "output-dir")
	bindFlag(cmd, "pipeline.chapter_workers", "workers")
	bindFlag(cmd, "images.concurrency", "image-concurrency")
	bindFlag(cmd, "output.keep_scratch", "keep-scratch")
	bindFlag(cmd, "output.force", "force")

	return cmd
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
		panic(fmt.Sprintf("bind flag %s: %v", flag, err))
	}
}

func runArchiveCommand(cmd *cobra.Command, args []string) error {
	bookID := args[0]

	logger, err := logging.New(debug)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := archive.LoadConfig(viper.GetViper())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pipeline, cleanup, err := buildPipeline(cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup(ctx)

	report, err := pipeline.Run(ctx, bookID)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Warn("Run interrupted", zap.String("book_id", bookID))
			return err
		}
		return fmt.Errorf("archive %s: %w", bookID, err)
	}

	logger.Info("Archive command finished.",
		zap.String("title", report.Title),
		zap.String("index", report.IndexPath),
		zap.Int("chapters_failed", report.Summary.ChaptersFailed))
	return nil
}

func buildPipeline(cfg archive.Config, logger *zap.Logger) (*archive.Pipeline, func(context.Context), error) {
	fetcher, err := archive.NewCollyFetcher(cfg, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("init fetcher: %w", err)
	}

	renderer, err := buildRenderer(cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	var detector archive.Detector
	if renderer != nil {
		detector = archive.NewPromotionHeuristic(cfg.DetectorMinBytes, cfg.DetectorSelectors)
	}

	pipeline := archive.NewPipeline(cfg, fetcher, renderer, detector, archive.NewPDFEncoder(), logger)
	cleanup := func(ctx context.Context) {
		if renderer != nil {
			if cerr := renderer.Close(ctx); cerr != nil {
				logger.Warn("Failed to close renderer", zap.Error(cerr))
			}
		}
	}
	return pipeline, cleanup, nil
}

func buildRenderer(cfg archive.Config, logger *zap.Logger) (archive.Renderer, error) {
	if !cfg.HeadlessEnabled || cfg.HeadlessConcurrency <= 0 {
		return nil, nil
	}
	renderer, err := archive.NewChromedpRenderer(cfg, logger)
	switch {
	case err == nil:
		return renderer, nil
	case errors.Is(err, archive.ErrRendererDisabled):
		logger.Warn("Renderer disabled despite feature flag; continuing without it")
		return nil, nil
	default:
		return nil, fmt.Errorf("init renderer: %w", err)
	}
}
