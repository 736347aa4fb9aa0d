package archive

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/nfields/bindery/internal/progress"
)

// Downloader acquires chapter images into scratch storage. Downloads within a
// chapter run fully parallel but are gated by a semaphore shared across all
// chapters, so one large chapter cannot monopolize network concurrency.
type Downloader struct {
	fetcher Fetcher
	gate    *semaphore.Weighted
	cfg     Config
	logger  *zap.Logger
	hub     progress.Emitter
	runID   uuid.UUID
}

// NewDownloader constructs a Downloader around the shared image gate.
func NewDownloader(fetcher Fetcher, gate *semaphore.Weighted, cfg Config, logger *zap.Logger, hub progress.Emitter, runID uuid.UUID) *Downloader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Downloader{
		fetcher: fetcher,
		gate:    gate,
		cfg:     cfg,
		logger:  logger,
		hub:     hub,
		runID:   runID,
	}
}

// DownloadChapter fetches every referenced image into scratchDir and returns
// the validated survivors in sequence order, plus the number of rejected
// images. Individual failures are absorbed: a broken image is logged and
// counted, never propagated. Only context cancellation aborts the chapter.
func (d *Downloader) DownloadChapter(ctx context.Context, refs []ImageRef, parts []VisitedPart, scratchDir string) ([]DownloadedImage, int, error) {
	if err := os.MkdirAll(scratchDir, 0o750); err != nil {
		return nil, 0, fmt.Errorf("create scratch dir %s: %w", scratchDir, err)
	}

	referers := make(map[int]string, len(parts))
	for _, p := range parts {
		referers[p.Number] = p.URL
	}

	results := make([]*DownloadedImage, len(refs))
	var rejected atomic.Int64
	var wg sync.WaitGroup
	for i, ref := range refs {
		wg.Add(1)
		go func(i int, ref ImageRef) {
			defer wg.Done()
			if err := d.gate.Acquire(ctx, 1); err != nil {
				return
			}
			defer d.gate.Release(1)

			img, err := d.downloadOne(ctx, ref, referers[ref.PartNumber], scratchDir)
			if err != nil {
				rejected.Add(1)
				TotalImagesRejected.Inc()
				d.logger.Warn("image skipped",
					zap.String("slot", ref.ChapterSlot),
					zap.String("url", ref.SourceURL),
					zap.Error(err))
				d.emit(progress.StageImageRejected, ref, 0, err.Error())
				return
			}
			results[i] = img
			TotalImagesDownloaded.Inc()
			d.emit(progress.StageImageDone, ref, int64(fileSize(img.LocalPath)), "")
		}(i, ref)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, 0, fmt.Errorf("chapter download canceled: %w", err)
	}

	images := make([]DownloadedImage, 0, len(refs))
	for _, img := range results {
		if img != nil {
			images = append(images, *img)
		}
	}
	return images, int(rejected.Load()), nil
}

// downloadOne fetches a single image with retry, persists it to scratch, and
// validates the payload. Transient network failures are retried with
// exponential backoff; a non-2xx status or a non-image content type is
// terminal for the image.
func (d *Downloader) downloadOne(ctx context.Context, ref ImageRef, referer, scratchDir string) (*DownloadedImage, error) {
	var page Page
	err := retry.Do(
		func() error {
			p, err := d.fetcher.Fetch(ctx, FetchRequest{URL: ref.SourceURL, Referer: referer})
			if err != nil {
				return err
			}
			if p.StatusCode < 200 || p.StatusCode >= 300 {
				return &StatusError{URL: ref.SourceURL, StatusCode: p.StatusCode}
			}
			if ct := p.ContentType(); ct != "" && !strings.HasPrefix(ct, "image/") {
				return &InvalidImageError{URL: ref.SourceURL, Reason: "content type " + ct}
			}
			page = p
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(uint(d.cfg.ImageMaxRetries)),
		retry.Delay(d.cfg.ImageRetryBackoff),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return !terminalFetchError(err)
		}),
	)
	if err != nil {
		return nil, err
	}

	target := filepath.Join(scratchDir, scratchName(ref))
	if err := os.WriteFile(target, page.Body, 0o600); err != nil {
		return nil, fmt.Errorf("write image %s: %w", target, err)
	}

	w, h, err := imageDimensions(target)
	if err != nil {
		_ = os.Remove(target)
		return nil, &InvalidImageError{URL: ref.SourceURL, Reason: "undecodable payload"}
	}
	if w < d.cfg.MinImageEdge || h < d.cfg.MinImageEdge {
		_ = os.Remove(target)
		return nil, &InvalidImageError{
			URL:    ref.SourceURL,
			Reason: fmt.Sprintf("dimensions %dx%d below minimum %d", w, h, d.cfg.MinImageEdge),
		}
	}
	return &DownloadedImage{Ref: ref, LocalPath: target, Width: w, Height: h}, nil
}

func (d *Downloader) emit(stage progress.Stage, ref ImageRef, bytes int64, note string) {
	if d.hub == nil {
		return
	}
	d.hub.Emit(progress.Event{
		RunID: d.runID,
		TS:    time.Now().UTC(),
		Stage: stage,
		Slot:  ref.ChapterSlot,
		URL:   ref.SourceURL,
		Bytes: bytes,
		Note:  note,
	})
}

// scratchName builds a scratch filename carrying the sequence index so files
// remain identifiable while debugging with --keep-scratch.
func scratchName(ref ImageRef) string {
	ext := ".jpg"
	if u, err := url.Parse(ref.SourceURL); err == nil {
		if e := strings.ToLower(path.Ext(u.Path)); e != "" {
			ext = e
		}
	}
	return fmt.Sprintf("img_%04d%s", ref.Sequence, ext)
}

func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}
