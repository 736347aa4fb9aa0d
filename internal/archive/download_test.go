package archive

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/semaphore"
)

func testDownloader(f Fetcher, cfg Config) *Downloader {
	return NewDownloader(f, semaphore.NewWeighted(int64(cfg.ImageConcurrency)), cfg, nil, nil, uuid.New())
}

func chapterParts() []VisitedPart {
	return []VisitedPart{
		{Part: Part{URL: "https://chap.test/comic/chapter/book1/0_1.html", Number: 1, ChapterSlot: "1"}},
		{Part: Part{URL: "https://chap.test/comic/chapter/book1/0_1_2.html", Number: 2, ChapterSlot: "1"}},
	}
}

func TestDownloadChapter(t *testing.T) {
	cfg := testConfig(t)
	f := newStubFetcher()
	f.addImage("https://cdn.test/a.png", pngBytes(t, 200, 300), "image/png")
	f.addImage("https://cdn.test/b.png", pngBytes(t, 120, 150), "image/png")

	refs := []ImageRef{
		{SourceURL: "https://cdn.test/a.png", ChapterSlot: "1", PartNumber: 1, Sequence: 0},
		{SourceURL: "https://cdn.test/b.png", ChapterSlot: "1", PartNumber: 2, Sequence: 1},
	}

	d := testDownloader(f, cfg)
	images, rejected, err := d.DownloadChapter(context.Background(), refs, chapterParts(), filepath.Join(cfg.OutputDir, "scratch"))
	require.NoError(t, err)
	require.Zero(t, rejected)
	require.Len(t, images, 2)

	require.Equal(t, 0, images[0].Ref.Sequence)
	require.Equal(t, 1, images[1].Ref.Sequence)
	require.Equal(t, 200, images[0].Width)
	require.Equal(t, 300, images[0].Height)
	require.FileExists(t, images[0].LocalPath)

	// Each image request carries its part page as Referer.
	require.Equal(t, "https://chap.test/comic/chapter/book1/0_1.html", f.refererFor("https://cdn.test/a.png"))
	require.Equal(t, "https://chap.test/comic/chapter/book1/0_1_2.html", f.refererFor("https://cdn.test/b.png"))
}

func TestDownloadChapterAbsorbsFailures(t *testing.T) {
	cfg := testConfig(t)
	f := newStubFetcher()
	f.addImage("https://cdn.test/a.png", pngBytes(t, 200, 300), "image/png")
	f.addStatus("https://cdn.test/missing.png", http.StatusNotFound)
	f.addImage("https://cdn.test/tiny.png", pngBytes(t, 5, 5), "image/png")
	f.addImage("https://cdn.test/junk.png", []byte("not an image"), "image/png")
	f.addImage("https://cdn.test/page.png", []byte("<html></html>"), "text/html")

	refs := []ImageRef{
		{SourceURL: "https://cdn.test/a.png", ChapterSlot: "1", PartNumber: 1, Sequence: 0},
		{SourceURL: "https://cdn.test/missing.png", ChapterSlot: "1", PartNumber: 1, Sequence: 1},
		{SourceURL: "https://cdn.test/tiny.png", ChapterSlot: "1", PartNumber: 1, Sequence: 2},
		{SourceURL: "https://cdn.test/junk.png", ChapterSlot: "1", PartNumber: 1, Sequence: 3},
		{SourceURL: "https://cdn.test/page.png", ChapterSlot: "1", PartNumber: 1, Sequence: 4},
	}

	d := testDownloader(f, cfg)
	images, rejected, err := d.DownloadChapter(context.Background(), refs, chapterParts(), filepath.Join(cfg.OutputDir, "scratch"))
	require.NoError(t, err)
	require.Equal(t, 4, rejected)
	require.Len(t, images, 1)
	require.Equal(t, "https://cdn.test/a.png", images[0].Ref.SourceURL)

	// Terminal failures are not retried.
	require.Equal(t, 1, f.callCount("https://cdn.test/missing.png"))
	require.Equal(t, 1, f.callCount("https://cdn.test/page.png"))
}

func TestDownloadChapterRetriesTransientErrors(t *testing.T) {
	cfg := testConfig(t)
	f := newStubFetcher()
	f.errs["https://cdn.test/flaky.png"] = errors.New("connection reset")

	refs := []ImageRef{{SourceURL: "https://cdn.test/flaky.png", ChapterSlot: "1", PartNumber: 1, Sequence: 0}}

	d := testDownloader(f, cfg)
	images, rejected, err := d.DownloadChapter(context.Background(), refs, chapterParts(), filepath.Join(cfg.OutputDir, "scratch"))
	require.NoError(t, err)
	require.Equal(t, 1, rejected)
	require.Empty(t, images)
	require.Equal(t, cfg.ImageMaxRetries, f.callCount("https://cdn.test/flaky.png"))
}

func TestDownloadChapterCanceledContext(t *testing.T) {
	cfg := testConfig(t)
	f := newStubFetcher()
	f.addImage("https://cdn.test/a.png", pngBytes(t, 200, 300), "image/png")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	refs := []ImageRef{{SourceURL: "https://cdn.test/a.png", ChapterSlot: "1", PartNumber: 1, Sequence: 0}}
	d := testDownloader(f, cfg)
	_, _, err := d.DownloadChapter(ctx, refs, chapterParts(), filepath.Join(cfg.OutputDir, "scratch"))
	require.ErrorIs(t, err, context.Canceled)
}
