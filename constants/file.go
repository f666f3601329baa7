package constants

import (
	"path/filepath"
	"strings"
)

// FileKind distinguishes inline text uploads from binary file uploads.
type FileKind string

const (
	FileKindText FileKind = "text"
	FileKindFile FileKind = "file"
)

// Media types the pipeline knows by name.
const (
	MediaTypePDF         = "application/pdf"
	MediaTypeDOCX        = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MediaTypePNG         = "image/png"
	MediaTypeJPEG        = "image/jpeg"
	MediaTypeHEIC        = "image/heic"
	MediaTypeTextPlain   = "text/plain"
	MediaTypeOctetStream = "application/octet-stream"
)

// extMediaTypes maps a normalized extension to the media type an upload is assumed to carry.
var extMediaTypes = map[string]string{
	"pdf":  MediaTypePDF,
	"docx": MediaTypeDOCX,
	"doc":  MediaTypeDOCX,
	"png":  MediaTypePNG,
	"jpg":  MediaTypeJPEG,
	"jpeg": MediaTypeJPEG,
	"heic": MediaTypeHEIC,
	"heif": MediaTypeHEIC,
	"txt":  MediaTypeTextPlain,
}

// AllowedExtensions holds the extensions picked up by directory scans.
var AllowedExtensions = map[string]struct{}{
	"pdf":  {},
	"jpg":  {},
	"jpeg": {},
	"png":  {},
	"heic": {},
	"txt":  {},
	"docx": {},
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// InferMediaType guesses a media type from a file name's extension.
func InferMediaType(name string) string {
	if mt, ok := extMediaTypes[NormalizeExt(filepath.Ext(name))]; ok {
		return mt
	}
	return MediaTypeOctetStream
}

// IsImageMediaType reports whether mediaType belongs to the image/ family.
func IsImageMediaType(mediaType string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(mediaType)), "image/")
}

// IsTextMediaType reports whether mediaType can be read as plain text.
func IsTextMediaType(mediaType string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(mediaType)), "text/")
}
