package hierarchy

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	"github.com/kanna-karuppasamy/smart-grid-meter-hierarchy/internal/models"
	_ "modernc.org/sqlite"
)

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQLiteTable reads the relation table from a sqlite database
type SQLiteTable struct {
	db    *sql.DB
	table string
}

// OpenSQLiteTable opens the existing database at path read-only.
func OpenSQLiteTable(path, table string) (*SQLiteTable, error) {
	if !identRe.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	db, err := sql.Open("sqlite", readOnlyURI(path))
	if err != nil {
		return nil, fmt.Errorf("open relation db %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open relation db %s: %w", path, err)
	}
	return &SQLiteTable{db: db, table: table}, nil
}

func readOnlyURI(path string) string {
	escaped := strings.NewReplacer("%", "%25", "?", "%3f", "#", "%23").Replace(path)
	return "file:" + escaped + "?mode=ro"
}

func (t *SQLiteTable) Close() error {
	return t.db.Close()
}

func (t *SQLiteTable) Meters(ctx context.Context) ([]models.Meter, error) {
	header, err := t.columns(ctx)
	if err != nil {
		return nil, err
	}
	idx := resolveColumns(header)
	if missing := missingColumns(idx); len(missing) > 0 {
		return nil, &models.SchemaError{Table: t.table, Missing: missing}
	}

	col := func(name string) string {
		if i := idx[name]; i >= 0 {
			return fmt.Sprintf(`COALESCE(CAST("%s" AS TEXT), '')`, header[i])
		}
		return "''"
	}
	q := fmt.Sprintf(`SELECT %s FROM "%s"`, strings.Join([]string{
		col(ColSite), col(ColSerial), col(ColParentSerial),
		col(ColUtilityType), col(ColSourceType), col(ColDisplayTag),
	}, ", "), t.table)

	rows, err := t.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", t.table, err)
	}
	defer rows.Close()

	var meters []models.Meter
	n := 0
	for rows.Next() {
		n++
		var site, serial, parent, utility, source, tag string
		if err := rows.Scan(&site, &serial, &parent, &utility, &source, &tag); err != nil {
			return nil, fmt.Errorf("scan %s row %d: %w", t.table, n, err)
		}
		m, err := meterFromFields(
			strings.TrimSpace(site), strings.TrimSpace(serial), strings.TrimSpace(parent),
			utility, strings.TrimSpace(source), strings.TrimSpace(tag),
		)
		if err != nil {
			return nil, fmt.Errorf("%s row %d: %w", t.table, n, err)
		}
		meters = append(meters, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", t.table, err)
	}
	return meters, nil
}

func (t *SQLiteTable) columns(ctx context.Context) ([]string, error) {
	rows, err := t.db.QueryContext(ctx, fmt.Sprintf(`PRAGMA table_info("%s")`, t.table))
	if err != nil {
		return nil, fmt.Errorf("inspect %s: %w", t.table, err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var (
			cid     int
			name    string
			ctype   string
			notnull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("inspect %s: %w", t.table, err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("inspect %s: %w", t.table, err)
	}
	if len(names) == 0 {
		return nil, &models.SchemaError{Table: t.table, Missing: requiredColumns}
	}
	return names, nil
}
