// Package remote lists and retrieves per-site reading files published by the
// metering back-ends. Files live under <source type>/<site>/ and are immutable
// once published.
package remote

import (
	"context"
	"path"
	"time"

	"github.com/kanna-karuppasamy/smart-grid-meter-hierarchy/internal/models"
)

// Entry is one listed reading file
type Entry struct {
	Name    string
	Size    int64
	ModTime time.Time
}

// FileService is the remote collaborator the fetcher pulls from
type FileService interface {
	List(ctx context.Context, source models.SourceType, site string) ([]Entry, error)
	Get(ctx context.Context, source models.SourceType, site, name string) ([]byte, error)
}

// Dir is the directory (or object prefix, without trailing slash) scoped to
// a source type and site.
func Dir(source models.SourceType, site string) string {
	return path.Join(string(source), site)
}
