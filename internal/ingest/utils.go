package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"mime"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/joseph-ayodele/billing-parser/constants"
)

// AllowedExt checks if a file extension is in the allowed set.
func AllowedExt(ext string) bool {
	ext = constants.NormalizeExt(ext)
	_, ok := constants.AllowedExtensions[ext]
	return ok
}

// IsHidden checks if a file or directory is hidden (starts with '.').
func IsHidden(path string) bool {
	base := filepath.Base(path)
	return strings.HasPrefix(base, ".") && base != "." && base != ".."
}

// ResolveMediaType keeps a declared media type when it is specific, then
// tries the file name's extension, then sniffs the content.
func ResolveMediaType(declared, name string, data []byte) string {
	if mt := baseMediaType(declared); mt != "" && mt != constants.MediaTypeOctetStream {
		return mt
	}
	if name != "" {
		if mt := constants.InferMediaType(name); mt != constants.MediaTypeOctetStream {
			return mt
		}
	}
	if len(data) > 0 {
		return baseMediaType(mimetype.Detect(data).String())
	}
	return constants.MediaTypeOctetStream
}

func baseMediaType(mt string) string {
	mt = strings.TrimSpace(mt)
	if mt == "" {
		return ""
	}
	if parsed, _, err := mime.ParseMediaType(mt); err == nil {
		return parsed
	}
	return strings.ToLower(mt)
}

// KindFor picks the upload kind for a media type.
func KindFor(mediaType string) constants.FileKind {
	if constants.IsTextMediaType(mediaType) {
		return constants.FileKindText
	}
	return constants.FileKindFile
}

func hashHex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
