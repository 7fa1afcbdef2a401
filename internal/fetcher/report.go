package fetcher

import (
	"github.com/hashicorp/go-multierror"
	"github.com/kanna-karuppasamy/smart-grid-meter-hierarchy/internal/models"
)

// SourceReport is the outcome of one source type's directory for a site
type SourceReport struct {
	Source      models.SourceType
	Listed      int
	Unsupported int
	Cached      int
	Ingested    []string
	Rows        int
	// Errors holds the absorbed failures: transport, parse, cache, archive
	// and notification errors. None of them stopped the fetch.
	Errors []error
}

func (s *SourceReport) fail(err error) {
	s.Errors = append(s.Errors, err)
}

// Report is the outcome of one Fetch call
type Report struct {
	Site    string
	Sources []*SourceReport
}

// Files is the number of files ingested across all source types
func (r *Report) Files() int {
	n := 0
	for _, s := range r.Sources {
		n += len(s.Ingested)
	}
	return n
}

// Rows is the number of readings appended across all source types
func (r *Report) Rows() int {
	n := 0
	for _, s := range r.Sources {
		n += s.Rows
	}
	return n
}

// Err combines every absorbed error, or returns nil when there were none.
func (r *Report) Err() error {
	var result *multierror.Error
	for _, s := range r.Sources {
		for _, err := range s.Errors {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}
