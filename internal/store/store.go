// Package store defines the append-only historical reading store.
package store

import (
	"context"

	"github.com/kanna-karuppasamy/smart-grid-meter-hierarchy/internal/models"
)

// Store appends readings and answers latest-per-meter queries. It never
// updates or deletes. Failures to reach the backing store wrap
// models.ErrStoreUnavailable; an error result carries no partial data.
type Store interface {
	Append(ctx context.Context, site string, readings []models.Reading) error
	LatestPerMeter(ctx context.Context, site string) (map[string]models.Reading, error)
}

// Latest folds readings into the maximum-timestamp reading per serial.
// For equal timestamps the reading that comes later in the slice wins.
func Latest(readings []models.Reading) map[string]models.Reading {
	latest := make(map[string]models.Reading)
	for _, r := range readings {
		cur, ok := latest[r.Serial]
		if !ok || !r.Timestamp.Before(cur.Timestamp) {
			latest[r.Serial] = r
		}
	}
	return latest
}
