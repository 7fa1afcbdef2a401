// Package fetcher pulls newly published reading files for a site, appends
// their rows to the historical store and records them in the ingestion cache.
package fetcher

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kanna-karuppasamy/smart-grid-meter-hierarchy/internal/cache"
	"github.com/kanna-karuppasamy/smart-grid-meter-hierarchy/internal/hierarchy"
	"github.com/kanna-karuppasamy/smart-grid-meter-hierarchy/internal/models"
	"github.com/kanna-karuppasamy/smart-grid-meter-hierarchy/internal/parser"
	"github.com/kanna-karuppasamy/smart-grid-meter-hierarchy/internal/remote"
	"github.com/kanna-karuppasamy/smart-grid-meter-hierarchy/internal/store"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Archiver keeps an audit copy of each parsed file
type Archiver interface {
	Store(source models.SourceType, site, name string, content []byte) (string, error)
}

// Notifier announces ingested files to downstream consumers
type Notifier interface {
	Publish(ctx context.Context, ev models.IngestionEvent) error
}

// Options tune a Fetcher. Archive and Notifier are optional.
type Options struct {
	Extensions   []string
	MaxTransfers int
	DayFirst     bool
	Archive      Archiver
	Notifier     Notifier
}

// Fetcher ingests reading files. It is safe for concurrent use; calls for
// the same (site, source type) pair are serialized.
type Fetcher struct {
	relations hierarchy.RelationTable
	remote    remote.FileService
	cache     cache.Cache
	store     store.Store
	opts      Options
	transfers *semaphore.Weighted
	locks     *keyedLocker
}

func New(relations hierarchy.RelationTable, rs remote.FileService, c cache.Cache, st store.Store, opts Options) *Fetcher {
	if opts.MaxTransfers < 1 {
		opts.MaxTransfers = 1
	}
	if len(opts.Extensions) == 0 {
		opts.Extensions = []string{".csv"}
	}
	return &Fetcher{
		relations: relations,
		remote:    rs,
		cache:     c,
		store:     st,
		opts:      opts,
		transfers: semaphore.NewWeighted(int64(opts.MaxTransfers)),
		locks:     newKeyedLocker(),
	}
}

// Fetch ingests every unseen reading file of every source type registered
// for site. Transport, parse and cache failures are absorbed into the report.
// Relation table and store failures, and cancellation, are returned; the
// report then covers the work finished so far.
func (f *Fetcher) Fetch(ctx context.Context, site string) (*Report, error) {
	meters, err := f.relations.Meters(ctx)
	if err != nil {
		return nil, fmt.Errorf("load relation table: %w", err)
	}
	return f.FetchSources(ctx, site, hierarchy.SourceTypes(meters, site))
}

// FetchSources is Fetch for an explicit list of source types.
func (f *Fetcher) FetchSources(ctx context.Context, site string, sources []models.SourceType) (*Report, error) {
	report := &Report{Site: site, Sources: make([]*SourceReport, len(sources))}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.opts.MaxTransfers)
	for i, src := range sources {
		sr := &SourceReport{Source: src}
		report.Sources[i] = sr
		g.Go(func() error {
			return f.fetchSource(gctx, site, sr)
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}
	return report, nil
}

func (f *Fetcher) fetchSource(ctx context.Context, site string, sr *SourceReport) error {
	unlock, err := f.locks.lock(ctx, site+"\x00"+string(sr.Source))
	if err != nil {
		return err
	}
	defer unlock()

	entries, err := f.remote.List(ctx, sr.Source, site)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		sr.fail(&models.TransportError{Source: sr.Source, Site: site, Err: err})
		return nil
	}
	sr.Listed = len(entries)

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !parser.Supported(e.Name, f.opts.Extensions) {
			sr.Unsupported++
			continue
		}
		seen, err := f.cache.Has(ctx, sr.Source, e.Name)
		if err != nil {
			// Fail open: an unreadable cache must not block ingestion.
			sr.fail(err)
		} else if seen {
			sr.Cached++
			continue
		}
		if err := f.ingest(ctx, site, e.Name, sr); err != nil {
			return err
		}
	}
	return nil
}

// ingest handles one file. Only a store failure or cancellation is returned.
func (f *Fetcher) ingest(ctx context.Context, site, name string, sr *SourceReport) error {
	if err := f.transfers.Acquire(ctx, 1); err != nil {
		return err
	}
	content, err := f.remote.Get(ctx, sr.Source, site, name)
	f.transfers.Release(1)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		sr.fail(&models.TransportError{Source: sr.Source, Site: site, File: name, Err: err})
		return nil
	}

	rows, err := parser.ParseWith(name, content, parser.Options{DayFirst: f.opts.DayFirst})
	if err != nil {
		sr.fail(err)
		return nil
	}

	readings := make([]models.Reading, len(rows))
	for i, row := range rows {
		readings[i] = models.Reading{
			Site:      site,
			Serial:    row.Serial,
			Timestamp: row.Timestamp,
			Value:     row.Value,
			Source:    sr.Source,
		}
	}
	if err := f.store.Append(ctx, site, readings); err != nil {
		return fmt.Errorf("append %s/%s/%s: %w", sr.Source, site, name, err)
	}

	// The append is durable from here on; finish the bookkeeping even if the
	// caller has gone away so the file is not ingested twice.
	ctx = context.WithoutCancel(ctx)

	if f.opts.Archive != nil {
		if _, err := f.opts.Archive.Store(sr.Source, site, name, content); err != nil {
			sr.fail(err)
		}
	}
	if err := f.cache.Mark(ctx, sr.Source, name); err != nil {
		sr.fail(err)
	}
	sr.Ingested = append(sr.Ingested, name)
	sr.Rows += len(readings)

	if f.opts.Notifier != nil {
		ev := models.IngestionEvent{
			ID:         uuid.NewString(),
			Site:       site,
			Source:     sr.Source,
			File:       name,
			Rows:       len(readings),
			IngestedAt: time.Now().UTC(),
		}
		if err := f.opts.Notifier.Publish(ctx, ev); err != nil {
			sr.fail(fmt.Errorf("notify %s/%s/%s: %w", sr.Source, site, name, err))
		}
	}
	return nil
}
