package archive

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

// Traverser walks a chapter from its canonical first part forward by following
// the in-page "next" hints. Traversal is inherently sequential: each step
// depends on the previous page's content.
type Traverser struct {
	fetcher  Fetcher
	renderer Renderer
	detector Detector
	cfg      Config
	logger   *zap.Logger
}

// NewTraverser constructs a Traverser. renderer and detector may be nil, in
// which case pages are never promoted to a headless fetch.
func NewTraverser(fetcher Fetcher, renderer Renderer, detector Detector, cfg Config, logger *zap.Logger) *Traverser {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Traverser{
		fetcher:  fetcher,
		renderer: renderer,
		detector: detector,
		cfg:      cfg,
		logger:   logger,
	}
}

// navCandidate is one link found in a navigation region of a part page.
type navCandidate struct {
	url  string
	text string
}

// Run visits the chapter's parts in order and returns them with their fetched
// bodies. A fetch or parse failure on the current part ends the walk early:
// the parts already visited are returned together with the error so the
// caller can decide whether a truncated chapter is still worth assembling.
func (t *Traverser) Run(ctx context.Context, bookID string, ch Chapter) ([]VisitedPart, error) {
	currentURL := FirstPartURL(t.cfg.ChapterBase, bookID, ch.Slot)
	visited := make(map[string]struct{})
	var parts []VisitedPart

	for n := 1; ; n++ {
		if err := ctx.Err(); err != nil {
			return parts, fmt.Errorf("traversal canceled: %w", err)
		}
		page, err := t.fetchPage(ctx, currentURL)
		if err != nil {
			return parts, fmt.Errorf("fetch part %d of chapter %s: %w", n, ch.Slot, err)
		}
		visited[currentURL] = struct{}{}
		parts = append(parts, VisitedPart{
			Part: Part{URL: currentURL, Number: n, ChapterSlot: ch.Slot},
			Body: page.Body,
		})

		if len(parts) >= t.cfg.MaxParts {
			t.logger.Warn("part cap reached, ending traversal",
				zap.String("slot", ch.Slot), zap.Int("parts", len(parts)))
			return parts, nil
		}

		next, reason := t.selectNext(page.Body, currentURL, n)
		switch {
		case next == "":
			t.logger.Debug("traversal done",
				zap.String("slot", ch.Slot), zap.String("reason", reason), zap.Int("parts", len(parts)))
			return parts, nil
		default:
			if slot, ok := ChapterSlotFromURL(next); !ok || slot != ch.Slot {
				// Expected at a chapter's natural end: the page's "next"
				// points into the following chapter.
				t.logger.Info("traversal left chapter",
					zap.String("slot", ch.Slot), zap.String("reason", "left_chapter"),
					zap.String("next", next))
				return parts, nil
			}
			if _, loop := visited[next]; loop {
				t.logger.Warn("navigation cycle detected, ending traversal",
					zap.String("slot", ch.Slot), zap.String("url", next))
				return parts, nil
			}
			currentURL = next
		}
	}
}

// selectNext scans the navigation regions of the current page and picks the
// next-part link. Rule priority, first match wins: (a) a candidate whose
// derived part number is exactly current+1; (b) a candidate whose link text
// contains a known "next" phrase. An empty result means the chapter ended
// here; reason distinguishes no-candidates from no-match for observability.
func (t *Traverser) selectNext(body []byte, currentURL string, currentPart int) (string, string) {
	candidates := t.navCandidates(body, currentURL)
	if len(candidates) == 0 {
		return "", "no_nav_region"
	}
	for _, c := range candidates {
		if PartNumberFromURL(c.url) == currentPart+1 {
			return c.url, "numeric_successor"
		}
	}
	for _, c := range candidates {
		for _, kw := range t.cfg.NextKeywords {
			if strings.Contains(c.text, strings.ToLower(kw)) {
				return c.url, "next_keyword"
			}
		}
	}
	return "", "no_candidate"
}

func (t *Traverser) navCandidates(body []byte, currentURL string) []navCandidate {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil
	}
	base, err := url.Parse(currentURL)
	if err != nil {
		return nil
	}
	var out []navCandidate
	doc.Find("div.next_chapter a").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok {
			return
		}
		resolved := resolveRef(base, href)
		if resolved == "" || resolved == currentURL {
			return
		}
		out = append(out, navCandidate{
			url:  resolved,
			text: strings.ToLower(strings.TrimSpace(sel.Text())),
		})
	})
	return out
}

// fetchPage fetches a part page, promoting to a headless fetch when the plain
// response looks JS-gated.
func (t *Traverser) fetchPage(ctx context.Context, rawURL string) (Page, error) {
	page, err := t.fetcher.Fetch(ctx, FetchRequest{URL: rawURL})
	if err != nil {
		return Page{}, err
	}
	if t.renderer == nil || t.detector == nil || !t.detector.NeedsJS(page) {
		return page, nil
	}
	rendered, err := t.renderer.Render(ctx, rawURL)
	if err != nil {
		t.logger.Warn("headless promotion failed, using plain fetch",
			zap.String("url", rawURL), zap.Error(err))
		return page, nil
	}
	return rendered, nil
}
