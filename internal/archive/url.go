package archive

import (
	"fmt"
	"net/url"
	"path"
	"strconv"
	"strings"
)

// Chapter page URLs have the shape
//
//	<base>/comic/chapter/<bookID>/<section>_<slot>.html       (part 1)
//	<base>/comic/chapter/<bookID>/<section>_<slot>_<n>.html   (part n)
//
// Both the slot and the part number come from fixed positional fields of the
// final path segment.

// ChapterSlotFromURL extracts the chapter slot from a part URL. ok is false
// when the URL does not carry a recognizable slot; callers treat that as "does
// not belong to any known chapter".
func ChapterSlotFromURL(raw string) (string, bool) {
	fields, ok := segmentFields(raw)
	if !ok || len(fields) < 2 || fields[1] == "" {
		return "", false
	}
	return fields[1], true
}

// PartNumberFromURL extracts the 1-based part index from a part URL. A URL
// without a part suffix is part 1; single-part chapters rely on this default.
func PartNumberFromURL(raw string) int {
	fields, ok := segmentFields(raw)
	if !ok || len(fields) < 3 {
		return 1
	}
	n, err := strconv.Atoi(fields[2])
	if err != nil || n < 1 {
		return 1
	}
	return n
}

// FirstPartURL constructs the canonical URL for part 1 of a chapter.
func FirstPartURL(base, bookID, slot string) string {
	return fmt.Sprintf("%s/comic/chapter/%s/0_%s.html", strings.TrimRight(base, "/"), bookID, slot)
}

// ListingURL constructs the book listing page URL.
func ListingURL(base, bookID string) string {
	return fmt.Sprintf("%s/comic/%s", strings.TrimRight(base, "/"), bookID)
}

func segmentFields(raw string) ([]string, bool) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, false
	}
	seg := path.Base(u.Path)
	if seg == "." || seg == "/" || seg == "" {
		return nil, false
	}
	seg = strings.TrimSuffix(seg, path.Ext(seg))
	return strings.Split(seg, "_"), true
}

// resolveRef resolves ref against base and drops any fragment. Returns "" when
// ref is not a usable link.
func resolveRef(base *url.URL, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	parsed, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	resolved := base.ResolveReference(parsed)
	resolved.Fragment = ""
	return resolved.String()
}
