package archive

import (
	"bytes"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ParseListing extracts the book title and the ordered chapter list from the
// listing page body. Chapters are identified by the chapter_slot query
// parameter on listing anchors; section_slot (default 0) and chapter_slot form
// the order key. Duplicate slots (the listing renders some chapters in several
// panels) keep their first occurrence.
func ParseListing(body []byte) (string, []Chapter, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", nil, fmt.Errorf("parse listing: %w", err)
	}

	title := strings.TrimSpace(doc.Find("h1.comics-detail__title").First().Text())
	if title == "" {
		title = strings.TrimSpace(doc.Find("div.comics-detail__info h1").First().Text())
	}
	if title == "" {
		return "", nil, fmt.Errorf("book title not found in listing page")
	}

	var chapters []Chapter
	seen := make(map[string]struct{})
	doc.Find("a").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok {
			return
		}
		parsed, err := url.Parse(href)
		if err != nil {
			return
		}
		params := parsed.Query()
		slot := params.Get("chapter_slot")
		if slot == "" {
			return
		}
		if _, dup := seen[slot]; dup {
			return
		}
		seen[slot] = struct{}{}

		chapterNum, err := strconv.Atoi(slot)
		if err != nil {
			return
		}
		section := 0
		if raw := params.Get("section_slot"); raw != "" {
			if n, err := strconv.Atoi(raw); err == nil {
				section = n
			}
		}

		chTitle := strings.TrimSpace(sel.Find("span").First().Text())
		if chTitle == "" {
			chTitle = strings.TrimSpace(sel.Text())
		}
		chapters = append(chapters, Chapter{
			Slot:  slot,
			Title: chTitle,
			Order: OrderKey{Section: section, Chapter: chapterNum},
		})
	})

	if len(chapters) == 0 {
		return "", nil, fmt.Errorf("no chapters found in listing page")
	}
	sort.SliceStable(chapters, func(i, j int) bool {
		return chapters[i].Order.Less(chapters[j].Order)
	})
	return title, chapters, nil
}
