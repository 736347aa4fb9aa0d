package archive

import (
	"context"
	"fmt"
	"os"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// PDFEncoder writes one page per image using pdfcpu. Pages are appended one
// at a time so each page can carry its own page box.
type PDFEncoder struct {
	conf *model.Configuration
}

// NewPDFEncoder returns an encoder with the default pdfcpu configuration.
func NewPDFEncoder() *PDFEncoder {
	return &PDFEncoder{conf: model.NewDefaultConfiguration()}
}

// Encode builds the document at outPath from the ordered pages. Any error
// leaves no file behind; the caller may rely on outPath existing only for
// complete artifacts.
func (e *PDFEncoder) Encode(ctx context.Context, pages []EncodedPage, outPath string) error {
	if len(pages) == 0 {
		return fmt.Errorf("no pages to encode")
	}
	for i, page := range pages {
		if err := ctx.Err(); err != nil {
			_ = os.Remove(outPath)
			return fmt.Errorf("encode canceled: %w", err)
		}
		desc := fmt.Sprintf("dim:%d %d, pos:full, scale:1.0 rel", int(page.WidthPt+0.5), int(page.HeightPt+0.5))
		imp, err := api.Import(desc, types.POINTS)
		if err != nil {
			_ = os.Remove(outPath)
			return fmt.Errorf("build import description for page %d: %w", i+1, err)
		}
		if err := api.ImportImagesFile([]string{page.ImagePath}, outPath, imp, e.conf); err != nil {
			_ = os.Remove(outPath)
			return fmt.Errorf("import page %d (%s): %w", i+1, page.ImagePath, err)
		}
	}
	return nil
}

// PageCount reads the page count of an existing artifact.
func (e *PDFEncoder) PageCount(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open artifact %s: %w", path, err)
	}
	defer f.Close()
	count, err := api.PageCount(f, e.conf)
	if err != nil {
		return 0, fmt.Errorf("page count for %s: %w", path, err)
	}
	return count, nil
}
