package archive

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"net/http"
	"sync"
	"testing"
	"time"
)

// stubFetcher serves canned pages keyed by URL and records every request.
type stubFetcher struct {
	mu       sync.Mutex
	pages    map[string]Page
	errs     map[string]error
	calls    map[string]int
	referers map[string]string
}

func newStubFetcher() *stubFetcher {
	return &stubFetcher{
		pages:    make(map[string]Page),
		errs:     make(map[string]error),
		calls:    make(map[string]int),
		referers: make(map[string]string),
	}
}

func (f *stubFetcher) addHTML(url, body string) {
	f.pages[url] = Page{
		URL:        url,
		FinalURL:   url,
		StatusCode: http.StatusOK,
		Headers:    http.Header{"Content-Type": []string{"text/html; charset=utf-8"}},
		Body:       []byte(body),
	}
}

func (f *stubFetcher) addImage(url string, body []byte, contentType string) {
	f.pages[url] = Page{
		URL:        url,
		FinalURL:   url,
		StatusCode: http.StatusOK,
		Headers:    http.Header{"Content-Type": []string{contentType}},
		Body:       body,
	}
}

func (f *stubFetcher) addStatus(url string, code int) {
	f.pages[url] = Page{URL: url, FinalURL: url, StatusCode: code, Headers: http.Header{}}
}

func (f *stubFetcher) Fetch(_ context.Context, req FetchRequest) (Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[req.URL]++
	if req.Referer != "" {
		f.referers[req.URL] = req.Referer
	}
	if err, ok := f.errs[req.URL]; ok {
		return Page{}, err
	}
	page, ok := f.pages[req.URL]
	if !ok {
		return Page{}, fmt.Errorf("no stub page for %s", req.URL)
	}
	return page, nil
}

func (f *stubFetcher) callCount(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[url]
}

func (f *stubFetcher) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.calls {
		total += n
	}
	return total
}

func (f *stubFetcher) refererFor(url string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.referers[url]
}

func testConfig(t *testing.T) Config {
	t.Helper()
	return Config{
		ListingBase:         "https://list.test",
		ChapterBase:         "https://chap.test",
		UserAgent:           "bindery-test",
		RequestTimeout:      5 * time.Second,
		RateLimitPerHost:    8,
		ChapterWorkers:      2,
		ImageConcurrency:    4,
		MaxParts:            16,
		ImageMaxRetries:     3,
		ImageRetryBackoff:   time.Millisecond,
		MinImageEdge:        100,
		ImageExtensions:     []string{".jpg", ".jpeg", ".png", ".webp"},
		NextKeywords:        []string{"下一頁", "下一章", "下一页", "next", "continue"},
		OutputDir:           t.TempDir(),
		HeadlessEnabled:     false,
		HeadlessConcurrency: 1,
		HeadlessTimeout:     time.Second,
	}
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))); err != nil {
		t.Fatalf("encode test png: %v", err)
	}
	return buf.Bytes()
}
