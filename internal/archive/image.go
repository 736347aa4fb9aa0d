package archive

import (
	"fmt"
	"image"
	"os"

	// Codecs for the formats the source site serves.
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"
)

// imageDimensions reads the pixel dimensions of the image at path without
// decoding the full bitmap.
func imageDimensions(path string) (int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, fmt.Errorf("open image %s: %w", path, err)
	}
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, fmt.Errorf("decode image %s: %w", path, err)
	}
	return cfg.Width, cfg.Height, nil
}
