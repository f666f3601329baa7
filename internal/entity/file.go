package entity

import (
	"bytes"

	"github.com/joseph-ayodele/billing-parser/constants"
)

// FileDescriptor is one uploaded item as handed to the pipeline. It is never
// mutated after construction.
type FileDescriptor struct {
	Kind      constants.FileKind `json:"kind"`
	MediaType string             `json:"mediaType"`
	Payload   []byte             `json:"-"`
	Name      string             `json:"name,omitempty"`
}

// IsImage reports whether the descriptor must go through OCR. Only the media
// type decides; Kind is ignored.
func (f FileDescriptor) IsImage() bool {
	return constants.IsImageMediaType(f.MediaType)
}

// IsEmpty reports whether the payload is empty or whitespace only.
func (f FileDescriptor) IsEmpty() bool {
	return len(bytes.TrimSpace(f.Payload)) == 0
}

// FileRef is an upload as it arrives over the wire: either inline data or a
// reference to a stored upload.
type FileRef struct {
	Kind      constants.FileKind `json:"kind"`
	MediaType string             `json:"mediaType,omitempty"`
	Data      []byte             `json:"data,omitempty"`
	URL       string             `json:"url,omitempty"`
	Name      string             `json:"name,omitempty"`
}
