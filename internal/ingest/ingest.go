package ingest

import (
	"time"

	"github.com/joseph-ayodele/billing-parser/internal/entity"
)

// Group is a set of files processed together as one run.
type Group struct {
	Name  string
	Files []entity.FileDescriptor
	Paths []string
}

// FileResult is the per-file scan outcome.
type FileResult struct {
	Path      string
	MediaType string
	HashHex   string
	Size      int
	ScannedAt time.Time
	Err       string
}

// DirStats summarizes a directory scan.
type DirStats struct {
	Scanned   uint32
	Matched   uint32
	Succeeded uint32
	Failed    uint32
	Groups    uint32
}
