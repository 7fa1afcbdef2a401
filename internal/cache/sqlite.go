package cache

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/kanna-karuppasamy/smart-grid-meter-hierarchy/internal/models"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS ingested_files (
	source_type TEXT NOT NULL,
	file_name   TEXT NOT NULL,
	ingested_at INTEGER NOT NULL,
	PRIMARY KEY (source_type, file_name)
) WITHOUT ROWID;
`

// SQLiteCache keeps markers in a local sqlite database file.
type SQLiteCache struct {
	db *sql.DB
}

// NewSQLiteCache opens (creating if needed) the cache database at path.
func NewSQLiteCache(path string) (*SQLiteCache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open cache %s: %w: %w", path, models.ErrCacheUnavailable, err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set journal mode: %w: %w", models.ErrCacheUnavailable, err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w: %w", models.ErrCacheUnavailable, err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create cache schema: %w: %w", models.ErrCacheUnavailable, err)
	}
	return &SQLiteCache{db: db}, nil
}

func (c *SQLiteCache) Has(ctx context.Context, source models.SourceType, file string) (bool, error) {
	var n int
	err := c.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM ingested_files WHERE source_type = ? AND file_name = ?`,
		string(source), file).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("lookup %s/%s: %w: %w", source, file, models.ErrCacheUnavailable, err)
	}
	return n > 0, nil
}

func (c *SQLiteCache) Mark(ctx context.Context, source models.SourceType, file string) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO ingested_files (source_type, file_name, ingested_at) VALUES (?, ?, ?)`,
		string(source), file, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("mark %s/%s: %w: %w", source, file, models.ErrCacheUnavailable, err)
	}
	return nil
}

func (c *SQLiteCache) Clear(ctx context.Context, source models.SourceType) (int, error) {
	var (
		res sql.Result
		err error
	)
	if source == "" {
		res, err = c.db.ExecContext(ctx, `DELETE FROM ingested_files`)
	} else {
		res, err = c.db.ExecContext(ctx, `DELETE FROM ingested_files WHERE source_type = ?`, string(source))
	}
	if err != nil {
		return 0, fmt.Errorf("clear %q: %w: %w", source, models.ErrCacheUnavailable, err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (c *SQLiteCache) Close() error {
	return c.db.Close()
}
