package archive

import (
	"bytes"

	"github.com/PuerkitoBio/goquery"
)

// PromotionHeuristic decides whether a plain fetch should be retried through
// the headless renderer: a suspiciously small body or a page missing its
// required container region suggests the content is populated by JavaScript.
type PromotionHeuristic struct {
	minHTMLBytes int
	selectors    []string
}

// NewPromotionHeuristic constructs a Detector with the configured thresholds.
func NewPromotionHeuristic(minBytes int, selectors []string) *PromotionHeuristic {
	return &PromotionHeuristic{
		minHTMLBytes: minBytes,
		selectors:    selectors,
	}
}

// NeedsJS inspects the page for signals that a headless re-fetch is needed.
func (d *PromotionHeuristic) NeedsJS(page Page) bool {
	if d == nil {
		return false
	}
	if d.minHTMLBytes > 0 && len(page.Body) < d.minHTMLBytes {
		return true
	}
	return d.missingSelectors(page.Body)
}

func (d *PromotionHeuristic) missingSelectors(body []byte) bool {
	if len(d.selectors) == 0 || len(body) == 0 {
		return false
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return true
	}
	for _, sel := range d.selectors {
		if sel == "" {
			continue
		}
		if doc.Find(sel).Length() == 0 {
			return true
		}
	}
	return false
}
