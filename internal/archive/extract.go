package archive

import (
	"bytes"
	"encoding/json"
	"net/url"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ExtractImageURLs returns the absolute image URLs referenced by one part
// page, in document order. The source site lazy-loads images, so data-src is
// preferred over src; amp pages additionally carry the real URL in an
// amp-state JSON blob next to the amp-img element. Elements without a
// resolvable source and URLs without an accepted extension are skipped, never
// failed.
func ExtractImageURLs(body []byte, partURL string, exts []string) []string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil
	}
	base, err := url.Parse(partURL)
	if err != nil {
		return nil
	}

	container := doc.Find("ul.comic-contain").First()
	if container.Length() == 0 {
		return nil
	}

	var urls []string
	container.Find("amp-img, img").Each(func(_ int, sel *goquery.Selection) {
		raw := ampStateURL(sel)
		if raw == "" {
			raw, _ = sel.Attr("data-src")
		}
		if raw == "" {
			raw, _ = sel.Attr("src")
		}
		resolved := resolveRef(base, raw)
		if resolved == "" || !hasImageExtension(resolved, exts) {
			return
		}
		urls = append(urls, resolved)
	})
	return urls
}

// CollectImageRefs concatenates the per-part image URLs of a chapter in part
// order, assigns sequence indices, and drops duplicate source URLs (the same
// image occasionally appears at a part boundary on both sides).
func CollectImageRefs(slot string, parts []VisitedPart, exts []string) []ImageRef {
	var refs []ImageRef
	seen := make(map[string]struct{})
	seq := 0
	for _, part := range parts {
		for _, src := range ExtractImageURLs(part.Body, part.URL, exts) {
			if _, dup := seen[src]; dup {
				continue
			}
			seen[src] = struct{}{}
			refs = append(refs, ImageRef{
				SourceURL:   src,
				ChapterSlot: slot,
				PartNumber:  part.Number,
				Sequence:    seq,
			})
			seq++
		}
	}
	return refs
}

// ampStateURL pulls the image URL out of an amp-state sibling, if present.
// The blob has the shape {"url": "..."}.
func ampStateURL(sel *goquery.Selection) string {
	next := sel.Next()
	if !next.Is("amp-state") {
		return ""
	}
	raw := strings.TrimSpace(next.Find("script").First().Text())
	if raw == "" {
		return ""
	}
	var state struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return ""
	}
	return state.URL
}

func hasImageExtension(raw string, exts []string) bool {
	parsed, err := url.Parse(raw)
	if err != nil {
		return false
	}
	ext := strings.ToLower(path.Ext(parsed.Path))
	for _, allowed := range exts {
		if ext == strings.ToLower(allowed) {
			return true
		}
	}
	return false
}
