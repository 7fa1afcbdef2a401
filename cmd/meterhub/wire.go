package main

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/kanna-karuppasamy/smart-grid-meter-hierarchy/internal/archive"
	"github.com/kanna-karuppasamy/smart-grid-meter-hierarchy/internal/cache"
	"github.com/kanna-karuppasamy/smart-grid-meter-hierarchy/internal/config"
	"github.com/kanna-karuppasamy/smart-grid-meter-hierarchy/internal/engine"
	"github.com/kanna-karuppasamy/smart-grid-meter-hierarchy/internal/fetcher"
	"github.com/kanna-karuppasamy/smart-grid-meter-hierarchy/internal/hierarchy"
	"github.com/kanna-karuppasamy/smart-grid-meter-hierarchy/internal/influxdb"
	"github.com/kanna-karuppasamy/smart-grid-meter-hierarchy/internal/kafka"
	"github.com/kanna-karuppasamy/smart-grid-meter-hierarchy/internal/models"
	"github.com/kanna-karuppasamy/smart-grid-meter-hierarchy/internal/remote"
	"github.com/sirupsen/logrus"
)

// app holds the wired components and everything that needs closing
type app struct {
	engine  *engine.Engine
	fetcher *fetcher.Fetcher
	influx  *influxdb.Client
	closers []io.Closer
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			logger.WithError(err).Warn("close failed")
		}
	}
	if a.influx != nil {
		a.influx.Close()
	}
}

func openCache(cfg config.CacheConfig) (cache.Cache, error) {
	switch cfg.Backend {
	case "redis":
		return cache.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	default:
		return cache.NewSQLiteCache(cfg.SQLitePath)
	}
}

// openIngestCache falls back to cache.Unavailable when the backend is down
// so that fetches still run, re-ingesting files instead of blocking.
func openIngestCache(cfg config.CacheConfig, log logrus.FieldLogger) (cache.Cache, error) {
	c, err := openCache(cfg)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, models.ErrCacheUnavailable) {
		return nil, err
	}
	log.WithError(err).WithField("backend", cfg.Backend).Warn("ingestion cache unavailable, every remote file is treated as new")
	return cache.Unavailable{Err: err}, nil
}

func openRemote(cfg config.RemoteConfig) (remote.FileService, error) {
	switch cfg.Backend {
	case "fs":
		return remote.NewFSService(osfs.New(cfg.FSRoot)), nil
	default:
		return remote.NewMinioService(cfg)
	}
}

// openRelations reads .csv files directly and treats anything else as a
// sqlite database.
func openRelations(cfg config.HierarchyConfig) (hierarchy.RelationTable, io.Closer, error) {
	if strings.EqualFold(filepath.Ext(cfg.Path), ".csv") {
		return hierarchy.NewCSVTable(cfg.Path), nil, nil
	}
	t, err := hierarchy.OpenSQLiteTable(cfg.Path, cfg.Table)
	if err != nil {
		return nil, nil, err
	}
	return t, t, nil
}

// wire connects every backend named by the configuration. The event
// producer is only started when publishEvents is set.
func wire(cfg *config.Config, publishEvents bool) (*app, error) {
	a := &app{}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	relations, closer, err := openRelations(cfg.Hierarchy)
	if err != nil {
		return nil, fmt.Errorf("open relation table: %w", err)
	}
	if closer != nil {
		a.closers = append(a.closers, closer)
	}

	c, err := openIngestCache(cfg.Cache, logger)
	if err != nil {
		return nil, fmt.Errorf("open ingestion cache: %w", err)
	}
	a.closers = append(a.closers, c)

	rs, err := openRemote(cfg.Remote)
	if err != nil {
		return nil, fmt.Errorf("open remote file service: %w", err)
	}

	a.influx, err = influxdb.NewClient(cfg.InfluxDB)
	if err != nil {
		return nil, err
	}

	opts := fetcher.Options{
		Extensions:   cfg.Fetcher.Extensions,
		MaxTransfers: cfg.Fetcher.MaxTransfers,
		DayFirst:     cfg.Fetcher.DayFirst,
	}
	if cfg.Fetcher.ArchiveDir != "" {
		opts.Archive = archive.New(osfs.New(cfg.Fetcher.ArchiveDir))
	}
	if publishEvents {
		p, err := kafka.NewProducer(cfg.Kafka)
		if err != nil {
			return nil, fmt.Errorf("start ingestion event producer: %w", err)
		}
		a.closers = append(a.closers, p)
		opts.Notifier = p
	}

	a.fetcher = fetcher.New(relations, rs, c, a.influx, opts)
	a.engine = engine.New(relations, a.fetcher, a.influx, logger)
	ok = true
	return a, nil
}
