package hierarchy

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/kanna-karuppasamy/smart-grid-meter-hierarchy/internal/models"
)

// CSVTable reads the relation table from a header-led CSV export
type CSVTable struct {
	path string
}

func NewCSVTable(path string) *CSVTable {
	return &CSVTable{path: path}
}

func (t *CSVTable) Meters(ctx context.Context) ([]models.Meter, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(t.path)
	if err != nil {
		return nil, fmt.Errorf("open relation table: %w", err)
	}
	defer f.Close()
	return ReadCSV(f, t.path)
}

// ReadCSV parses relation rows from r; name is used in errors.
func ReadCSV(r io.Reader, name string) ([]models.Meter, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, &models.SchemaError{Table: name, Missing: requiredColumns}
	}
	if err != nil {
		return nil, fmt.Errorf("read %s header: %w", name, err)
	}
	idx := resolveColumns(header)
	if missing := missingColumns(idx); len(missing) > 0 {
		return nil, &models.SchemaError{Table: name, Missing: missing}
	}

	field := func(record []string, col string) string {
		i := idx[col]
		if i < 0 || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	var meters []models.Meter
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				return nil, fmt.Errorf("read %s line %d: %w", name, perr.Line, perr.Err)
			}
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		line, _ := cr.FieldPos(0)

		m, err := meterFromFields(
			field(record, ColSite),
			field(record, ColSerial),
			field(record, ColParentSerial),
			field(record, ColUtilityType),
			field(record, ColSourceType),
			field(record, ColDisplayTag),
		)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", name, line, err)
		}
		meters = append(meters, m)
	}
	return meters, nil
}

func meterFromFields(site, serial, parent, utility, source, tag string) (models.Meter, error) {
	u, err := models.ParseUtilityType(utility)
	if err != nil {
		return models.Meter{}, err
	}
	m := models.Meter{
		Site:         site,
		Serial:       serial,
		ParentSerial: parent,
		Utility:      u,
		Source:       models.SourceType(source),
		Stand:        tag,
	}
	if err := m.Validate(); err != nil {
		return models.Meter{}, err
	}
	return m, nil
}
