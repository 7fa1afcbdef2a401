package fetcher

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/kanna-karuppasamy/smart-grid-meter-hierarchy/internal/archive"
	"github.com/kanna-karuppasamy/smart-grid-meter-hierarchy/internal/cache"
	"github.com/kanna-karuppasamy/smart-grid-meter-hierarchy/internal/models"
	"github.com/kanna-karuppasamy/smart-grid-meter-hierarchy/internal/remote"
	"github.com/kanna-karuppasamy/smart-grid-meter-hierarchy/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	fileA = "Timestamp,Serial,Value\n2024-03-01 10:00:00,A,100\n2024-03-01 10:00:00,B,40\n"
	fileB = "Timestamp,Serial,Value\n2024-03-01 11:00:00,A,101\n2024-03-01 11:00:00,C,7\n"
)

// staticTable is a fixed relation table
type staticTable struct {
	meters []models.Meter
	err    error
}

func (s staticTable) Meters(context.Context) ([]models.Meter, error) {
	return s.meters, s.err
}

func meters(sources ...models.SourceType) staticTable {
	var out []models.Meter
	for i, src := range sources {
		out = append(out, models.Meter{Site: "S1", Serial: fmt.Sprintf("M%d", i), Utility: models.Electricity, Source: src})
	}
	return staticTable{meters: out}
}

// countingRemote serves a memfs tree and records every Get
type countingRemote struct {
	*remote.FSService
	mu      sync.Mutex
	gets    map[string]int
	listErr map[models.SourceType]error
	getErr  map[string]error
	fs      billy.Filesystem
}

func newRemote() *countingRemote {
	fs := memfs.New()
	return &countingRemote{
		FSService: remote.NewFSService(fs),
		gets:      make(map[string]int),
		listErr:   make(map[models.SourceType]error),
		getErr:    make(map[string]error),
		fs:        fs,
	}
}

func (r *countingRemote) put(t *testing.T, source models.SourceType, site, name, content string) {
	t.Helper()
	require.NoError(t, util.WriteFile(r.fs, r.fs.Join(string(source), site, name), []byte(content), 0o644))
}

func (r *countingRemote) List(ctx context.Context, source models.SourceType, site string) ([]remote.Entry, error) {
	if err := r.listErr[source]; err != nil {
		return nil, err
	}
	return r.FSService.List(ctx, source, site)
}

func (r *countingRemote) Get(ctx context.Context, source models.SourceType, site, name string) ([]byte, error) {
	r.mu.Lock()
	r.gets[name]++
	err := r.getErr[name]
	r.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return r.FSService.Get(ctx, source, site, name)
}

func (r *countingRemote) getCount(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gets[name]
}

// mapCache is an in-memory cache that can be switched to unavailable
type mapCache struct {
	mu     sync.Mutex
	marked map[string]bool
	broken bool
}

func newMapCache() *mapCache {
	return &mapCache{marked: make(map[string]bool)}
}

func (c *mapCache) Has(_ context.Context, source models.SourceType, file string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.broken {
		return false, models.ErrCacheUnavailable
	}
	return c.marked[string(source)+"/"+file], nil
}

func (c *mapCache) Mark(_ context.Context, source models.SourceType, file string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.broken {
		return models.ErrCacheUnavailable
	}
	c.marked[string(source)+"/"+file] = true
	return nil
}

func (c *mapCache) Clear(context.Context, models.SourceType) (int, error) { return 0, nil }
func (c *mapCache) Close() error                                          { return nil }

func (c *mapCache) isMarked(source models.SourceType, file string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.marked[string(source)+"/"+file]
}

// failingStore rejects every append
type failingStore struct{ store.Memory }

func (*failingStore) Append(context.Context, string, []models.Reading) error {
	return fmt.Errorf("write timeout: %w", models.ErrStoreUnavailable)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []models.IngestionEvent
}

func (n *recordingNotifier) Publish(_ context.Context, ev models.IngestionEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	return nil
}

func TestFetch_SkipsCachedFiles(t *testing.T) {
	ctx := context.Background()
	rs := newRemote()
	rs.put(t, "AMR1", "S1", "a.csv", fileA)
	rs.put(t, "AMR1", "S1", "b.csv", fileB)

	c := newMapCache()
	require.NoError(t, c.Mark(ctx, "AMR1", "a.csv"))
	st := store.NewMemory()

	f := New(meters("AMR1"), rs, c, st, Options{Extensions: []string{".csv"}, MaxTransfers: 4})
	report, err := f.Fetch(ctx, "S1")
	require.NoError(t, err)
	require.NoError(t, report.Err())

	assert.Equal(t, 0, rs.getCount("a.csv"), "cached file must not be re-requested")
	assert.Equal(t, 1, rs.getCount("b.csv"))
	assert.Equal(t, 2, st.Len("S1"), "only b.csv rows are appended")
	assert.True(t, c.isMarked("AMR1", "b.csv"))

	require.Len(t, report.Sources, 1)
	assert.Equal(t, []string{"b.csv"}, report.Sources[0].Ingested)
	assert.Equal(t, 1, report.Sources[0].Cached)
	assert.Equal(t, 1, report.Files())
	assert.Equal(t, 2, report.Rows())

	latest, err := st.LatestPerMeter(ctx, "S1")
	require.NoError(t, err)
	assert.Equal(t, models.SourceType("AMR1"), latest["C"].Source)
	assert.Equal(t, "S1", latest["C"].Site)
}

func TestFetch_ParseFailureIsRetried(t *testing.T) {
	ctx := context.Background()
	rs := newRemote()
	rs.put(t, "AMR1", "S1", "bad.csv", "Timestamp,Serial,Value\n2024-03-01,A,oops\n")
	c := newMapCache()
	st := store.NewMemory()
	f := New(meters("AMR1"), rs, c, st, Options{Extensions: []string{".csv"}, MaxTransfers: 2})

	report, err := f.Fetch(ctx, "S1")
	require.NoError(t, err, "parse errors are absorbed")
	var perr *models.ParseError
	require.True(t, errors.As(report.Err(), &perr))
	assert.False(t, c.isMarked("AMR1", "bad.csv"))
	assert.Equal(t, 0, st.Len("S1"))

	// The publisher fixes the file; the next cycle picks it up.
	rs.put(t, "AMR1", "S1", "bad.csv", fileA)
	report, err = f.Fetch(ctx, "S1")
	require.NoError(t, err)
	require.NoError(t, report.Err())
	assert.Equal(t, 2, rs.getCount("bad.csv"))
	assert.True(t, c.isMarked("AMR1", "bad.csv"))
	assert.Equal(t, 2, st.Len("S1"))
}

func TestFetch_ListingFailureSkipsOnlyThatSource(t *testing.T) {
	rs := newRemote()
	rs.put(t, "AMR1", "S1", "a.csv", fileA)
	rs.put(t, "AMR2", "S1", "b.csv", fileB)
	rs.listErr["AMR1"] = errors.New("permission denied")
	st := store.NewMemory()

	f := New(meters("AMR1", "AMR2"), rs, newMapCache(), st, Options{Extensions: []string{".csv"}, MaxTransfers: 4})
	report, err := f.Fetch(context.Background(), "S1")
	require.NoError(t, err)

	var terr *models.TransportError
	require.True(t, errors.As(report.Err(), &terr))
	assert.Equal(t, models.SourceType("AMR1"), terr.Source)
	assert.Equal(t, "", terr.File)
	assert.Equal(t, 2, st.Len("S1"), "AMR2 is still ingested")
}

func TestFetch_MissingDirectoryIsNonFatal(t *testing.T) {
	rs := newRemote()
	rs.put(t, "AMR2", "S1", "b.csv", fileB)

	f := New(meters("AMR1", "AMR2"), rs, newMapCache(), store.NewMemory(), Options{Extensions: []string{".csv"}, MaxTransfers: 1})
	report, err := f.Fetch(context.Background(), "S1")
	require.NoError(t, err)
	assert.Error(t, report.Err())
	assert.Equal(t, 1, report.Files())
}

func TestFetch_GetFailureIsNotCached(t *testing.T) {
	rs := newRemote()
	rs.put(t, "AMR1", "S1", "a.csv", fileA)
	rs.put(t, "AMR1", "S1", "b.csv", fileB)
	rs.getErr["a.csv"] = errors.New("connection reset")
	c := newMapCache()

	f := New(meters("AMR1"), rs, c, store.NewMemory(), Options{Extensions: []string{".csv"}, MaxTransfers: 1})
	report, err := f.Fetch(context.Background(), "S1")
	require.NoError(t, err)

	var terr *models.TransportError
	require.True(t, errors.As(report.Err(), &terr))
	assert.Equal(t, "a.csv", terr.File)
	assert.False(t, c.isMarked("AMR1", "a.csv"))
	assert.True(t, c.isMarked("AMR1", "b.csv"))
}

func TestFetch_IgnoresUnsupportedExtensions(t *testing.T) {
	rs := newRemote()
	rs.put(t, "AMR1", "S1", "a.csv", fileA)
	rs.put(t, "AMR1", "S1", "notes.pdf", "%PDF")
	rs.put(t, "AMR1", "S1", "b.csv.partial", fileB)

	f := New(meters("AMR1"), rs, newMapCache(), store.NewMemory(), Options{Extensions: []string{".csv"}, MaxTransfers: 1})
	report, err := f.Fetch(context.Background(), "S1")
	require.NoError(t, err)

	assert.Equal(t, 0, rs.getCount("notes.pdf"))
	assert.Equal(t, 0, rs.getCount("b.csv.partial"))
	assert.Equal(t, 2, report.Sources[0].Unsupported)
	assert.Equal(t, 3, report.Sources[0].Listed)
}

func TestFetch_CacheUnavailableFailsOpen(t *testing.T) {
	rs := newRemote()
	rs.put(t, "AMR1", "S1", "a.csv", fileA)
	rs.put(t, "AMR1", "S1", "b.csv", fileB)
	c := newMapCache()
	c.broken = true
	st := store.NewMemory()

	f := New(meters("AMR1"), rs, c, st, Options{Extensions: []string{".csv"}, MaxTransfers: 2})
	report, err := f.Fetch(context.Background(), "S1")
	require.NoError(t, err)

	assert.ErrorIs(t, report.Err(), models.ErrCacheUnavailable)
	assert.Equal(t, 1, rs.getCount("a.csv"))
	assert.Equal(t, 1, rs.getCount("b.csv"))
	assert.Equal(t, 4, st.Len("S1"))
}

func TestFetch_StoreUnavailableAborts(t *testing.T) {
	rs := newRemote()
	rs.put(t, "AMR1", "S1", "a.csv", fileA)
	c := newMapCache()

	f := New(meters("AMR1"), rs, c, &failingStore{}, Options{Extensions: []string{".csv"}, MaxTransfers: 1})
	_, err := f.Fetch(context.Background(), "S1")

	assert.ErrorIs(t, err, models.ErrStoreUnavailable)
	assert.False(t, c.isMarked("AMR1", "a.csv"), "no mark without a completed append")
}

func TestFetch_RelationTableErrorPropagates(t *testing.T) {
	table := staticTable{err: &models.SchemaError{Table: "meters", Missing: []string{"Serial"}}}
	f := New(table, newRemote(), newMapCache(), store.NewMemory(), Options{})

	_, err := f.Fetch(context.Background(), "S1")
	var serr *models.SchemaError
	assert.True(t, errors.As(err, &serr))
}

func TestFetch_CanceledContext(t *testing.T) {
	rs := newRemote()
	rs.put(t, "AMR1", "S1", "a.csv", fileA)
	c := newMapCache()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := New(meters("AMR1"), rs, c, store.NewMemory(), Options{Extensions: []string{".csv"}, MaxTransfers: 1})
	_, err := f.Fetch(ctx, "S1")
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, c.isMarked("AMR1", "a.csv"))
}

func TestFetch_ConcurrentCallsIngestOnce(t *testing.T) {
	rs := newRemote()
	for i := 0; i < 10; i++ {
		rs.put(t, "AMR1", "S1", fmt.Sprintf("f%02d.csv", i), fileA)
	}
	st := store.NewMemory()
	f := New(meters("AMR1"), rs, newMapCache(), st, Options{Extensions: []string{".csv"}, MaxTransfers: 4})

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.Fetch(context.Background(), "S1")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	for i := 0; i < 10; i++ {
		assert.Equal(t, 1, rs.getCount(fmt.Sprintf("f%02d.csv", i)))
	}
	assert.Equal(t, 20, st.Len("S1"))
}

func TestFetch_ArchivesAndNotifies(t *testing.T) {
	rs := newRemote()
	rs.put(t, "AMR1", "S1", "a.csv", fileA)
	arch := archive.New(memfs.New())
	notifier := &recordingNotifier{}

	f := New(meters("AMR1"), rs, newMapCache(), store.NewMemory(), Options{
		Extensions:   []string{".csv"},
		MaxTransfers: 1,
		Archive:      arch,
		Notifier:     notifier,
	})
	_, err := f.Fetch(context.Background(), "S1")
	require.NoError(t, err)

	copied, err := arch.Load("AMR1", "S1", "a.csv")
	require.NoError(t, err)
	assert.Equal(t, fileA, string(copied))

	require.Len(t, notifier.events, 1)
	ev := notifier.events[0]
	assert.Equal(t, "S1", ev.Site)
	assert.Equal(t, "a.csv", ev.File)
	assert.Equal(t, 2, ev.Rows)
	assert.NotEmpty(t, ev.ID)
}

func TestFetch_WithSQLiteCache(t *testing.T) {
	ctx := context.Background()
	rs := newRemote()
	rs.put(t, "AMR1", "S1", "a.csv", fileA)

	c, err := cache.NewSQLiteCache(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	defer c.Close()

	f := New(meters("AMR1"), rs, c, store.NewMemory(), Options{Extensions: []string{".csv"}, MaxTransfers: 1})
	_, err = f.Fetch(ctx, "S1")
	require.NoError(t, err)
	_, err = f.Fetch(ctx, "S1")
	require.NoError(t, err)

	assert.Equal(t, 1, rs.getCount("a.csv"))
}
