package archive

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/nfields/bindery/internal/logging"
	"github.com/nfields/bindery/internal/progress"
)

// Pipeline drives a whole archiving run: listing fetch, chapter dispatch with
// bounded parallelism, and the final index. Failure of one chapter never
// aborts its siblings; only a listing failure is fatal.
type Pipeline struct {
	cfg      Config
	fetcher  Fetcher
	renderer Renderer
	detector Detector
	encoder  Encoder
	logger   *zap.Logger
}

// RunReport summarizes a finished run.
type RunReport struct {
	RunID     uuid.UUID
	Title     string
	OutputDir string
	IndexPath string
	Outcomes  []ChapterOutcome
	Summary   progress.Summary
}

// NewPipeline constructs a Pipeline. renderer and detector may be nil.
func NewPipeline(cfg Config, fetcher Fetcher, renderer Renderer, detector Detector, encoder Encoder, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		cfg:      cfg,
		fetcher:  fetcher,
		renderer: renderer,
		detector: detector,
		encoder:  encoder,
		logger:   logger,
	}
}

// Run archives the book identified by bookID. The returned error is non-nil
// only for fatal conditions (listing fetch/parse, output dir creation);
// per-chapter failures are reported through the RunReport.
func (p *Pipeline) Run(ctx context.Context, bookID string) (*RunReport, error) {
	probe := NewTraverser(p.fetcher, p.renderer, p.detector, p.cfg, p.logger)

	listingURL := ListingURL(p.cfg.ListingBase, bookID)
	p.logger.Info("fetching book listing", zap.String("url", listingURL))
	page, err := probe.fetchPage(ctx, listingURL)
	if err != nil {
		return nil, fmt.Errorf("fetch listing %s: %w", listingURL, err)
	}
	title, chapters, err := ParseListing(page.Body)
	if err != nil {
		return nil, fmt.Errorf("parse listing %s: %w", listingURL, err)
	}

	outDir := filepath.Join(p.cfg.OutputDir, fmt.Sprintf("%s_%s", SanitizeFilename(title), bookID))
	if err := os.MkdirAll(outDir, 0o750); err != nil {
		return nil, fmt.Errorf("create output dir %s: %w", outDir, err)
	}

	logger, closeLog, err := logging.WithRunFile(p.logger, filepath.Join(outDir, "run.log"))
	if err != nil {
		logger = p.logger
		p.logger.Warn("run log unavailable, logging to console only", zap.Error(err))
	} else {
		defer func() {
			if cerr := closeLog(); cerr != nil {
				p.logger.Warn("close run log", zap.Error(cerr))
			}
		}()
	}
	logger.Info("book resolved",
		zap.String("title", title),
		zap.String("book_id", bookID),
		zap.Int("chapters", len(chapters)))

	runID := uuid.New()
	summarySink := progress.NewSummarySink()
	hub := progress.NewHub(logger, progress.NewLogSink(logger), summarySink)

	gate := semaphore.NewWeighted(int64(p.cfg.ImageConcurrency))
	traverser := NewTraverser(p.fetcher, p.renderer, p.detector, p.cfg, logger)
	downloader := NewDownloader(p.fetcher, gate, p.cfg, logger, hub, runID)
	assembler := NewAssembler(p.encoder, logger)

	worker := &chapterWorker{
		cfg:        p.cfg,
		bookID:     bookID,
		outDir:     outDir,
		traverser:  traverser,
		downloader: downloader,
		assembler:  assembler,
		encoder:    p.encoder,
		logger:     logger,
		hub:        hub,
		runID:      runID,
	}
	outcomes := p.dispatch(ctx, worker, chapters)

	indexPath := filepath.Join(outDir, "index.html")
	if err := WriteIndex(indexPath, title, indexEntries(outcomes)); err != nil {
		logger.Error("write index failed", zap.Error(err))
	}

	if err := hub.Close(ctx); err != nil {
		logger.Warn("progress hub close", zap.Error(err))
	}
	summary := summarySink.Snapshot()
	logger.Info("run finished",
		zap.Int("chapters_done", summary.ChaptersDone),
		zap.Int("chapters_skipped", summary.ChaptersSkipped),
		zap.Int("chapters_failed", summary.ChaptersFailed),
		zap.Int("images_downloaded", summary.ImagesDone),
		zap.Int("images_rejected", summary.ImagesRejected),
		zap.Strings("failed_slots", summary.FailedSlots))

	return &RunReport{
		RunID:     runID,
		Title:     title,
		OutputDir: outDir,
		IndexPath: indexPath,
		Outcomes:  outcomes,
		Summary:   summary,
	}, nil
}

// dispatch feeds the chapter queue to a fixed worker pool and collects one
// outcome per chapter. Chapter completion order is unconstrained.
func (p *Pipeline) dispatch(ctx context.Context, worker *chapterWorker, chapters []Chapter) []ChapterOutcome {
	workers := p.cfg.ChapterWorkers
	if workers > len(chapters) {
		workers = len(chapters)
	}

	queue := make(chan Chapter)
	results := make(chan ChapterOutcome)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ch := range queue {
				results <- worker.process(ctx, ch)
			}
		}()
	}
	go func() {
		defer close(queue)
		for _, ch := range chapters {
			select {
			case queue <- ch:
			case <-ctx.Done():
				return
			}
		}
	}()
	go func() {
		wg.Wait()
		close(results)
	}()

	outcomes := make([]ChapterOutcome, 0, len(chapters))
	for outcome := range results {
		outcomes = append(outcomes, outcome)
	}
	sort.SliceStable(outcomes, func(i, j int) bool {
		return outcomes[i].Chapter.Order.Less(outcomes[j].Chapter.Order)
	})
	return outcomes
}

// chapterWorker drives one chapter through traversal, download, and assembly.
type chapterWorker struct {
	cfg        Config
	bookID     string
	outDir     string
	traverser  *Traverser
	downloader *Downloader
	assembler  *Assembler
	encoder    Encoder
	logger     *zap.Logger
	hub        progress.Emitter
	runID      uuid.UUID
}

func (w *chapterWorker) process(ctx context.Context, ch Chapter) ChapterOutcome {
	started := time.Now()
	artifactPath := filepath.Join(w.outDir, artifactFilename(ch))

	if w.cfg.Force {
		if err := os.Remove(artifactPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			w.logger.Warn("remove existing artifact for forced re-run",
				zap.String("path", artifactPath), zap.Error(err))
		}
	} else if info, err := os.Stat(artifactPath); err == nil && !info.IsDir() {
		// Existing artifact is the idempotence marker: traversal and download
		// are not repeated.
		count, err := w.encoder.PageCount(artifactPath)
		if err != nil {
			count = 0
		}
		w.emit(ch.Slot, progress.StageChapterSkipped, "", 0, "")
		return ChapterOutcome{
			Chapter:  ch,
			State:    StateSkipped,
			Artifact: &ChapterArtifact{ChapterSlot: ch.Slot, Path: artifactPath, PageCount: count, Skipped: true},
		}
	}

	w.emit(ch.Slot, progress.StageChapterStart, "", 0, "")

	parts, terr := w.traverser.Run(ctx, w.bookID, ch)
	if len(parts) == 0 {
		if terr == nil {
			terr = fmt.Errorf("chapter %s has no reachable parts", ch.Slot)
		}
		return w.fail(ch, StateTraversing, terr, started, 0, 0, 0)
	}
	if terr != nil {
		// Truncated traversal: keep the collected parts, annotate the run.
		w.logger.Warn("traversal truncated, continuing with collected parts",
			zap.String("slot", ch.Slot), zap.Int("parts", len(parts)), zap.Error(terr))
	}
	for _, part := range parts {
		w.emit(ch.Slot, progress.StagePartVisited, part.URL, 0, "")
	}

	refs := CollectImageRefs(ch.Slot, parts, w.cfg.ImageExtensions)
	if len(refs) == 0 {
		return w.fail(ch, StateDownloading, fmt.Errorf("chapter %s: %w", ch.Slot, ErrNoValidImages), started, len(parts), 0, 0)
	}

	scratchDir := filepath.Join(w.outDir, "scratch", "chapter_"+ch.Slot)
	if !w.cfg.KeepScratch {
		defer func() {
			if err := os.RemoveAll(scratchDir); err != nil {
				w.logger.Warn("scratch cleanup failed", zap.String("dir", scratchDir), zap.Error(err))
			}
		}()
	}

	images, rejected, err := w.downloader.DownloadChapter(ctx, refs, parts, scratchDir)
	if err != nil {
		return w.fail(ch, StateDownloading, err, started, len(parts), len(refs), rejected)
	}

	artifact, err := w.assembler.Assemble(ctx, ch, images, artifactPath)
	if err != nil {
		return w.fail(ch, StateAssembling, err, started, len(parts), len(refs), rejected)
	}

	w.emit(ch.Slot, progress.StageChapterDone, "", time.Since(started), "")
	return ChapterOutcome{
		Chapter:         ch,
		State:           StateDone,
		Artifact:        &artifact,
		Parts:           len(parts),
		ImagesAttempted: len(refs),
		ImagesValid:     len(images),
		ImagesRejected:  rejected,
	}
}

func (w *chapterWorker) fail(ch Chapter, stage ChapterState, err error, started time.Time, parts, attempted, rejected int) ChapterOutcome {
	TotalChaptersFailed.Inc()
	w.logger.Error("chapter failed",
		zap.String("slot", ch.Slot),
		zap.String("stage", string(stage)),
		zap.Error(err))
	w.emit(ch.Slot, progress.StageChapterFailed, "", time.Since(started), err.Error())
	return ChapterOutcome{
		Chapter:         ch,
		State:           StateFailed,
		FailedStage:     stage,
		Err:             err,
		Parts:           parts,
		ImagesAttempted: attempted,
		ImagesRejected:  rejected,
	}
}

func (w *chapterWorker) emit(slot string, stage progress.Stage, url string, dur time.Duration, note string) {
	if w.hub == nil {
		return
	}
	w.hub.Emit(progress.Event{
		RunID: w.runID,
		TS:    time.Now().UTC(),
		Stage: stage,
		Slot:  slot,
		URL:   url,
		Dur:   dur,
		Note:  note,
	})
}

// indexEntries lists completed and skipped chapters in canonical order.
// Outcomes are already order-key sorted by dispatch.
func indexEntries(outcomes []ChapterOutcome) []IndexEntry {
	var entries []IndexEntry
	for _, o := range outcomes {
		if o.State != StateDone && o.State != StateSkipped {
			continue
		}
		entries = append(entries, IndexEntry{
			Title: fmt.Sprintf("Chapter %s - %s", o.Chapter.Slot, o.Chapter.Title),
			File:  filepath.Base(o.Artifact.Path),
		})
	}
	return entries
}

func artifactFilename(ch Chapter) string {
	return fmt.Sprintf("chapter_%s_%s.pdf", ch.Slot, SanitizeFilename(ch.Title))
}
