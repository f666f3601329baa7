package extract

import (
	"context"
	"time"

	"github.com/joseph-ayodele/billing-parser/internal/entity"
)

// ImageRecognizer is the OCR step: images -> texts.
type ImageRecognizer interface {
	Recognize(ctx context.Context, images []entity.FileDescriptor) RecognitionResult
}

// RecognitionResult holds the texts of the images that were recognized, in
// input order, plus one outcome per input image.
type RecognitionResult struct {
	Texts []string
	Items []ItemOutcome
}

// ItemOutcome describes what happened to one input image.
type ItemOutcome struct {
	Index      int
	MediaType  string
	Chars      int
	Confidence float32
	Duration   time.Duration
	Err        error
}

func (o ItemOutcome) Failed() bool { return o.Err != nil }

// Failures returns the outcomes of images that produced no text.
func (r RecognitionResult) Failures() []ItemOutcome {
	var out []ItemOutcome
	for _, it := range r.Items {
		if it.Failed() {
			out = append(out, it)
		}
	}
	return out
}

// TextDecoder turns a non-image upload into plain text.
type TextDecoder interface {
	// Decode returns the text of f. When err is non-nil the returned text is
	// still a usable best-effort rendering of the payload.
	Decode(ctx context.Context, f entity.FileDescriptor) (string, error)
}
