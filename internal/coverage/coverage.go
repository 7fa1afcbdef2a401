// Package coverage compares the meters expected for a selection with the
// meters that have at least one ingested reading. It reports completeness
// only; it never gates the hierarchy.
package coverage

import (
	"sort"

	"github.com/kanna-karuppasamy/smart-grid-meter-hierarchy/internal/models"
)

// Coverage is the (fetched, expected) pair for one site/utility selection
type Coverage struct {
	Fetched  int `json:"fetched"`
	Expected int `json:"expected"`
}

// Reconcile counts the distinct observed serials against expected.
func Reconcile(expected int, observed []string) Coverage {
	seen := make(map[string]struct{}, len(observed))
	for _, s := range observed {
		seen[s] = struct{}{}
	}
	return Coverage{Fetched: len(seen), Expected: expected}
}

// Ratio is Fetched/Expected, or 0 when nothing is expected.
func (c Coverage) Ratio() float64 {
	if c.Expected == 0 {
		return 0
	}
	return float64(c.Fetched) / float64(c.Expected)
}

// Complete reports whether every expected meter has data
func (c Coverage) Complete() bool {
	return c.Fetched >= c.Expected
}

// Observed returns the serials of meters that appear in latest
func Observed(meters []models.Meter, latest map[string]models.Reading) []string {
	var out []string
	for _, m := range meters {
		if _, ok := latest[m.Serial]; ok {
			out = append(out, m.Serial)
		}
	}
	return out
}

// Missing returns the sorted serials of meters without any reading in latest
func Missing(meters []models.Meter, latest map[string]models.Reading) []string {
	var out []string
	for _, m := range meters {
		if _, ok := latest[m.Serial]; !ok {
			out = append(out, m.Serial)
		}
	}
	sort.Strings(out)
	return out
}
