package archive

import "context"

// FetchRequest captures everything needed to fetch a URL. Referer is set for
// image fetches; the origin CDN rejects requests without the part page as
// referer.
type FetchRequest struct {
	URL     string
	Referer string
}

// Fetcher retrieves a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, req FetchRequest) (Page, error)
}

// Renderer fetches a page through a JS-capable browser.
type Renderer interface {
	Render(ctx context.Context, rawURL string) (Page, error)
	Close(ctx context.Context) error
}

// Detector decides whether a fetched page needs a headless re-fetch.
type Detector interface {
	NeedsJS(page Page) bool
}

// EncodedPage is one page handed to the Encoder: an image file plus its
// computed page box in points.
type EncodedPage struct {
	ImagePath string
	WidthPt   float64
	HeightPt  float64
}

// Encoder turns an ordered set of pages into a single document at outPath.
// Implementations must leave no file behind on error.
type Encoder interface {
	Encode(ctx context.Context, pages []EncodedPage, outPath string) error
	PageCount(path string) (int, error)
}
