// Package cache records which remote reading files have already been ingested.
//
// Entries are keyed by (source type, file name) only. A file republished under
// the same name with different content is not picked up again until an
// operator clears the entry.
package cache

import (
	"context"

	"github.com/kanna-karuppasamy/smart-grid-meter-hierarchy/internal/models"
)

// Cache is durable storage of ingested file markers. Implementations return
// errors wrapping models.ErrCacheUnavailable and never log.
type Cache interface {
	Has(ctx context.Context, source models.SourceType, file string) (bool, error)
	Mark(ctx context.Context, source models.SourceType, file string) error
	// Clear removes the markers for source, or every marker when source is empty.
	Clear(ctx context.Context, source models.SourceType) (int, error)
	Close() error
}

// Unavailable stands in for a backend that could not be opened. Every call
// fails with Err, so ingestion treats all files as unseen.
type Unavailable struct {
	Err error
}

func (u Unavailable) Has(context.Context, models.SourceType, string) (bool, error) {
	return false, u.Err
}

func (u Unavailable) Mark(context.Context, models.SourceType, string) error {
	return u.Err
}

func (u Unavailable) Clear(context.Context, models.SourceType) (int, error) {
	return 0, u.Err
}

func (u Unavailable) Close() error { return nil }
