package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// stubEncoder writes a placeholder artifact and remembers its page count so a
// later PageCount call on the same path can answer.
type stubEncoder struct {
	mu     sync.Mutex
	counts map[string]int
}

func newStubEncoder() *stubEncoder {
	return &stubEncoder{counts: make(map[string]int)}
}

func (e *stubEncoder) Encode(_ context.Context, pages []EncodedPage, outPath string) error {
	if err := os.WriteFile(outPath, []byte("%PDF-1.7\n"), 0o600); err != nil {
		return err
	}
	e.mu.Lock()
	e.counts[outPath] = len(pages)
	e.mu.Unlock()
	return nil
}

func (e *stubEncoder) PageCount(path string) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	n, ok := e.counts[path]
	if !ok {
		return 0, fmt.Errorf("unknown artifact %s", path)
	}
	return n, nil
}

func stubListing(f *stubFetcher, bookID, title string, slots ...string) {
	var anchors strings.Builder
	for _, slot := range slots {
		fmt.Fprintf(&anchors, `<a href="?chapter_slot=%s"><span>第%s話</span></a>`, slot, slot)
	}
	f.addHTML("https://list.test/comic/"+bookID, fmt.Sprintf(
		`<html><body><h1 class="comics-detail__title">%s</h1>%s</body></html>`,
		title, anchors.String()))
}

func stubChapter(t *testing.T, f *stubFetcher, bookID, slot string, imagesPerPart ...[]string) {
	t.Helper()
	for i, imgs := range imagesPerPart {
		var items strings.Builder
		for _, src := range imgs {
			fmt.Fprintf(&items, `<li><img src="%s"></li>`, src)
			f.addImage(src, pngBytes(t, 200, 300), "image/png")
		}
		url := fmt.Sprintf("https://chap.test/comic/chapter/%s/0_%s.html", bookID, slot)
		if i > 0 {
			url = fmt.Sprintf("https://chap.test/comic/chapter/%s/0_%s_%d.html", bookID, slot, i+1)
		}
		next := ""
		if i+1 < len(imagesPerPart) {
			next = fmt.Sprintf(`<div class="next_chapter"><a href="/comic/chapter/%s/0_%s_%d.html">下一頁</a></div>`,
				bookID, slot, i+2)
		}
		f.addHTML(url, fmt.Sprintf(
			`<html><body><ul class="comic-contain">%s</ul>%s</body></html>`, items.String(), next))
	}
}

func TestPipelineIsolatesChapterFailures(t *testing.T) {
	cfg := testConfig(t)
	f := newStubFetcher()
	stubListing(f, "book1", "Test Book", "1", "2", "3")
	stubChapter(t, f, "book1", "1", []string{"https://cdn.test/1a.png", "https://cdn.test/1b.png"})
	// Chapter 2 has no image container at all.
	f.addHTML("https://chap.test/comic/chapter/book1/0_2.html", "<html><body><p>gone</p></body></html>")
	stubChapter(t, f, "book1", "3",
		[]string{"https://cdn.test/3a.png", "https://cdn.test/3b.png"},
		[]string{"https://cdn.test/3b.png", "https://cdn.test/3c.png"})

	p := NewPipeline(cfg, f, nil, nil, newStubEncoder(), nil)
	report, err := p.Run(context.Background(), "book1")
	require.NoError(t, err)
	require.Len(t, report.Outcomes, 3)

	require.Equal(t, StateDone, report.Outcomes[0].State)
	require.Equal(t, StateFailed, report.Outcomes[1].State)
	require.ErrorIs(t, report.Outcomes[1].Err, ErrNoValidImages)
	require.Equal(t, StateDone, report.Outcomes[2].State)

	// Chapter 3's boundary duplicate is downloaded once.
	require.Equal(t, 3, report.Outcomes[2].ImagesValid)
	require.Equal(t, 1, f.callCount("https://cdn.test/3b.png"))

	require.Equal(t, 1, report.Summary.ChaptersFailed)
	require.Equal(t, []string{"2"}, report.Summary.FailedSlots)

	// The index lists only the chapters that produced artifacts, in order.
	index, rerr := os.ReadFile(report.IndexPath)
	require.NoError(t, rerr)
	html := string(index)
	require.Contains(t, html, "chapter_1_")
	require.NotContains(t, html, "chapter_2_")
	require.Contains(t, html, "chapter_3_")
	require.Less(t, strings.Index(html, "chapter_1_"), strings.Index(html, "chapter_3_"))
}

func TestPipelineSecondRunFetchesOnlyListing(t *testing.T) {
	cfg := testConfig(t)
	f := newStubFetcher()
	stubListing(f, "book1", "Test Book", "1", "2")
	stubChapter(t, f, "book1", "1", []string{"https://cdn.test/1a.png"})
	stubChapter(t, f, "book1", "2", []string{"https://cdn.test/2a.png"})

	enc := newStubEncoder()
	p := NewPipeline(cfg, f, nil, nil, enc, nil)

	first, err := p.Run(context.Background(), "book1")
	require.NoError(t, err)
	for _, o := range first.Outcomes {
		require.Equal(t, StateDone, o.State)
	}
	callsAfterFirst := f.totalCalls()

	second, err := p.Run(context.Background(), "book1")
	require.NoError(t, err)
	for _, o := range second.Outcomes {
		require.Equal(t, StateSkipped, o.State)
		require.True(t, o.Artifact.Skipped)
	}
	require.Equal(t, 2, second.Summary.ChaptersSkipped)

	// Existing artifacts short-circuit everything except the listing fetch.
	require.Equal(t, callsAfterFirst+1, f.totalCalls())
	require.Equal(t, 2, f.callCount("https://list.test/comic/book1"))
}

func TestPipelineForceRearchives(t *testing.T) {
	cfg := testConfig(t)
	f := newStubFetcher()
	stubListing(f, "book1", "Test Book", "1")
	stubChapter(t, f, "book1", "1", []string{"https://cdn.test/1a.png"})

	enc := newStubEncoder()
	p := NewPipeline(cfg, f, nil, nil, enc, nil)
	_, err := p.Run(context.Background(), "book1")
	require.NoError(t, err)
	require.Equal(t, 1, f.callCount("https://cdn.test/1a.png"))

	cfg.Force = true
	p = NewPipeline(cfg, f, nil, nil, enc, nil)
	report, err := p.Run(context.Background(), "book1")
	require.NoError(t, err)
	require.Equal(t, StateDone, report.Outcomes[0].State)
	require.Equal(t, 2, f.callCount("https://cdn.test/1a.png"))
}

func TestPipelineListingFailureIsFatal(t *testing.T) {
	cfg := testConfig(t)
	f := newStubFetcher()

	p := NewPipeline(cfg, f, nil, nil, newStubEncoder(), nil)
	_, err := p.Run(context.Background(), "missing")
	require.Error(t, err)
}

func TestPipelineOutputLayout(t *testing.T) {
	cfg := testConfig(t)
	f := newStubFetcher()
	stubListing(f, "book1", "Test/Book", "1")
	stubChapter(t, f, "book1", "1", []string{"https://cdn.test/1a.png"})

	p := NewPipeline(cfg, f, nil, nil, newStubEncoder(), nil)
	report, err := p.Run(context.Background(), "book1")
	require.NoError(t, err)

	require.Equal(t, filepath.Join(cfg.OutputDir, "Test_Book_book1"), report.OutputDir)
	require.FileExists(t, filepath.Join(report.OutputDir, "index.html"))
	require.FileExists(t, filepath.Join(report.OutputDir, "chapter_1_第1話.pdf"))

	// Scratch images are cleaned up by default.
	require.NoDirExists(t, filepath.Join(report.OutputDir, "scratch", "chapter_1"))
}
