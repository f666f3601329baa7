package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joseph-ayodele/billing-parser/constants"
	"github.com/joseph-ayodele/billing-parser/internal/common"
	"github.com/joseph-ayodele/billing-parser/internal/entity"
)

// DefaultMaxFileBytes bounds a single referenced upload.
const DefaultMaxFileBytes = 32 << 20

// Loader turns wire-level file references into FileDescriptors. Referenced
// uploads are read from UploadDir.
type Loader struct {
	UploadDir    string
	MaxFileBytes int64
	Logger       *slog.Logger
}

func NewLoader(uploadDir string, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{UploadDir: uploadDir, MaxFileBytes: DefaultMaxFileBytes, Logger: logger}
}

// Validate checks refs without touching the filesystem.
func Validate(refs []entity.FileRef) error {
	v := common.NewValidator()
	v.Check(len(refs) > 0, "files", len(refs), "at least one file is required")
	for i, r := range refs {
		field := fmt.Sprintf("files[%d]", i)
		if r.Kind != "" {
			v.Field(field+".kind", string(r.Kind), common.OneOf(string(constants.FileKindText), string(constants.FileKindFile)))
		}
		v.Check(len(r.Data) > 0 || strings.TrimSpace(r.URL) != "" || isImageRef(r), field, r.Name, "either data or url is required")
		v.Check(len(r.Data) == 0 || r.URL == "", field, r.Name, "data and url are mutually exclusive")
		v.Field(field+".name", r.Name, common.MaxLength(255))
	}
	return v.Error()
}

// isImageRef reports whether r names an image. Blank images are allowed
// through so the separator can drop them.
func isImageRef(r entity.FileRef) bool {
	return constants.IsImageMediaType(r.MediaType) || constants.IsImageMediaType(constants.InferMediaType(r.Name))
}

// Load resolves refs in order. A missing upload directory is an upstream
// precondition failure; a bad reference is invalid input.
func (l *Loader) Load(ctx context.Context, refs []entity.FileRef) ([]entity.FileDescriptor, error) {
	if err := Validate(refs); err != nil {
		return nil, common.NewAppError("INVALID_INPUT", "bad file reference", err)
	}

	needsDir := false
	for _, r := range refs {
		if r.URL != "" {
			needsDir = true
			break
		}
	}
	if needsDir {
		st, err := os.Stat(l.UploadDir)
		if err != nil || !st.IsDir() {
			l.Logger.Error("ingest.upload_dir.missing", "dir", l.UploadDir, "error", err)
			return nil, common.PreconditionFailed("upload directory %q does not exist", l.UploadDir)
		}
	}

	out := make([]entity.FileDescriptor, 0, len(refs))
	for i, r := range refs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, name := r.Data, r.Name
		if r.URL != "" {
			path := l.resolve(r.URL)
			b, err := l.read(path)
			if err != nil {
				return nil, common.NewAppError("INVALID_INPUT", fmt.Sprintf("files[%d]: cannot read %q", i, r.URL), fmt.Errorf("%w: %w", common.ErrInvalidInput, err))
			}
			data = b
			if name == "" {
				name = filepath.Base(path)
			}
		}

		mt := ResolveMediaType(r.MediaType, name, data)
		kind := r.Kind
		if kind == "" {
			kind = KindFor(mt)
		}
		out = append(out, entity.FileDescriptor{Kind: kind, MediaType: mt, Payload: data, Name: name})
		l.Logger.Debug("ingest.file.loaded", "index", i, "name", name, "media_type", mt, "bytes", len(data), "sha256", hashHex(data))
	}
	return out, nil
}

// resolve maps an upload URL such as "/uploads/a.png" onto UploadDir. The
// cleaned path can never leave UploadDir.
func (l *Loader) resolve(url string) string {
	p := strings.TrimPrefix(url, "file://")
	p = filepath.ToSlash(filepath.Clean("/" + p))
	p = strings.TrimPrefix(p, "/")
	p = strings.TrimPrefix(p, filepath.Base(filepath.Clean(l.UploadDir))+"/")
	return filepath.Join(l.UploadDir, filepath.FromSlash(p))
}

func (l *Loader) read(path string) ([]byte, error) {
	st, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if st.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}
	if l.MaxFileBytes > 0 && st.Size() > l.MaxFileBytes {
		return nil, fmt.Errorf("%s exceeds %d bytes", path, l.MaxFileBytes)
	}
	return os.ReadFile(path)
}
