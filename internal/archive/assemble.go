package archive

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"

	"go.uber.org/zap"
)

// Page geometry: source pixels are interpreted at screen resolution and
// converted to PDF points; pages with an edge under the absolute floor are
// upscaled uniformly so the encoder never rejects tiny or oddly cropped
// sources.
const (
	referenceDPI  = 96.0
	pointsPerInch = 72.0
	minEdgePoints = 3.0 * pointsPerInch
)

// Assembler turns a chapter's validated images into a single PDF artifact.
type Assembler struct {
	enc    Encoder
	logger *zap.Logger
}

// NewAssembler constructs an Assembler around the given encoder.
func NewAssembler(enc Encoder, logger *zap.Logger) *Assembler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assembler{enc: enc, logger: logger}
}

// Assemble encodes the chapter artifact at outPath. If the artifact already
// exists the chapter is treated as complete and no work happens (force is
// handled by the caller, which simply removes the artifact first). Images are
// ordered strictly by sequence index, never by filename or arrival order. On
// encoder failure the partial artifact is removed before the error surfaces.
func (a *Assembler) Assemble(ctx context.Context, ch Chapter, images []DownloadedImage, outPath string) (ChapterArtifact, error) {
	if info, err := os.Stat(outPath); err == nil && !info.IsDir() {
		count, err := a.enc.PageCount(outPath)
		if err != nil {
			count = 0
		}
		return ChapterArtifact{ChapterSlot: ch.Slot, Path: outPath, PageCount: count, Skipped: true}, nil
	}

	if len(images) == 0 {
		return ChapterArtifact{}, fmt.Errorf("chapter %s: %w", ch.Slot, ErrNoValidImages)
	}

	ordered := append([]DownloadedImage(nil), images...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Ref.Sequence < ordered[j].Ref.Sequence
	})

	pages := make([]EncodedPage, 0, len(ordered))
	for _, img := range ordered {
		w, h := pagePoints(img.Width, img.Height)
		pages = append(pages, EncodedPage{ImagePath: img.LocalPath, WidthPt: w, HeightPt: h})
	}

	if err := a.enc.Encode(ctx, pages, outPath); err != nil {
		if rmErr := os.Remove(outPath); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			a.logger.Warn("failed to remove partial artifact",
				zap.String("path", outPath), zap.Error(rmErr))
		}
		return ChapterArtifact{}, fmt.Errorf("encode chapter %s: %w: %v", ch.Slot, ErrEncodingFailed, err)
	}

	return ChapterArtifact{ChapterSlot: ch.Slot, Path: outPath, PageCount: len(pages)}, nil
}

// pagePoints converts pixel dimensions to a PDF page box in points,
// uniformly upscaling pages below the minimum physical size while preserving
// aspect ratio.
func pagePoints(widthPx, heightPx int) (float64, float64) {
	w := float64(widthPx) / referenceDPI * pointsPerInch
	h := float64(heightPx) / referenceDPI * pointsPerInch
	if w < minEdgePoints || h < minEdgePoints {
		scale := minEdgePoints / w
		if s := minEdgePoints / h; s > scale {
			scale = s
		}
		w *= scale
		h *= scale
	}
	return w, h
}
