package ocr

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
)

// preprocess writes a grayscale, contrast-boosted PNG beside path and returns
// its location. Images imaging cannot decode are returned as an error and the
// caller falls back to the original file.
func preprocess(path string, maxWidth int) (string, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return "", fmt.Errorf("decode: %w", err)
	}
	if maxWidth > 0 && img.Bounds().Dx() > maxWidth {
		img = imaging.Resize(img, maxWidth, 0, imaging.Lanczos)
	}
	gray := imaging.Grayscale(img)
	gray = imaging.AdjustContrast(gray, 20)
	gray = imaging.Sharpen(gray, 0.5)

	out := strings.TrimSuffix(path, filepath.Ext(path)) + "-pre.png"
	if err := imaging.Save(gray, out); err != nil {
		return "", fmt.Errorf("encode: %w", err)
	}
	return out, nil
}
