package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// convertHEICtoPNG converts a HEIC/HEIF file to a PNG next to it.
// converter: "heif-convert" | "magick" | "sips"
func convertHEICtoPNG(ctx context.Context, r Runner, logger *slog.Logger, converter, in string) (string, []string, error) {
	out := strings.TrimSuffix(in, ".heic") + ".png"

	switch converter {
	case "heif-convert":
		if _, errb, err := r.Run(ctx, "heif-convert", logger, in, out); err != nil {
			return "", []string{string(errb)}, fmt.Errorf("heif-convert failed: %w", err)
		}
	case "magick":
		if _, errb, err := r.Run(ctx, "magick", logger, in, out); err != nil {
			return "", []string{string(errb)}, fmt.Errorf("magick convert failed: %w", err)
		}
	case "sips":
		if _, errb, err := r.Run(ctx, "sips", logger, "-s", "format", "png", in, "--out", out); err != nil {
			return "", []string{string(errb)}, fmt.Errorf("sips convert failed: %w", err)
		}
	default:
		return "", nil, fmt.Errorf("HEIC not supported: set HeicConverter to one of: heif-convert | magick | sips")
	}

	if _, statErr := os.Stat(out); statErr != nil {
		return "", nil, fmt.Errorf("HEIC conversion produced no output: %v", statErr)
	}
	return out, nil, nil
}
