package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/joseph-ayodele/billing-parser/constants"
	"github.com/joseph-ayodele/billing-parser/internal/entity"
)

// ReadFile loads one local file as a FileDescriptor.
func ReadFile(path string) (entity.FileDescriptor, FileResult, error) {
	res := FileResult{Path: path, ScannedAt: time.Now().UTC()}
	b, err := os.ReadFile(path)
	if err != nil {
		res.Err = err.Error()
		return entity.FileDescriptor{}, res, err
	}
	mt := ResolveMediaType("", path, b)
	res.MediaType = mt
	res.HashHex = hashHex(b)
	res.Size = len(b)
	return entity.FileDescriptor{Kind: KindFor(mt), MediaType: mt, Payload: b, Name: filepath.Base(path)}, res, nil
}

// ScanDirectory walks root and groups matching files into runs: files directly
// in root form one group, and each immediate sub-directory forms another.
// Groups are sorted by name and files by path.
func ScanDirectory(ctx context.Context, root string, skipHidden bool, logger *slog.Logger) ([]Group, []FileResult, DirStats, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if strings.TrimSpace(root) == "" {
		return nil, nil, DirStats{}, errors.New("root path is required")
	}

	var results []FileResult
	var stats DirStats
	groups := map[string]*Group{}

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		stats.Scanned++
		if walkErr != nil {
			results = append(results, FileResult{Path: path, Err: walkErr.Error()})
			stats.Failed++
			return nil
		}
		if skipHidden && path != root && IsHidden(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if !AllowedExt(filepath.Ext(path)) {
			return nil
		}
		stats.Matched++

		fd, res, err := ReadFile(path)
		results = append(results, res)
		if err != nil {
			logger.Warn("ingest.scan.read_failed", "path", path, "error", err)
			stats.Failed++
			return nil
		}
		stats.Succeeded++

		name := groupName(root, path)
		g, ok := groups[name]
		if !ok {
			g = &Group{Name: name}
			groups[name] = g
		}
		g.Files = append(g.Files, fd)
		g.Paths = append(g.Paths, path)
		return nil
	})
	if err != nil {
		return nil, results, stats, fmt.Errorf("walk: %w", err)
	}

	out := make([]Group, 0, len(groups))
	for _, g := range groups {
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	stats.Groups = uint32(len(out))
	logger.Info("ingest.scan.ok", "root", root, "groups", stats.Groups, "matched", stats.Matched, "failed", stats.Failed)
	return out, results, stats, nil
}

func groupName(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return "."
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) == 1 {
		return "."
	}
	return parts[0]
}

// IsAllowedPath reports whether path would be picked up by a scan.
func IsAllowedPath(path string) bool {
	return !IsHidden(path) && AllowedExt(filepath.Ext(path)) && constants.NormalizeExt(filepath.Ext(path)) != ""
}
