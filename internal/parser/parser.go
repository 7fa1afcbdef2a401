// Package parser turns reading file content into (timestamp, serial, value) rows.
package parser

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/kanna-karuppasamy/smart-grid-meter-hierarchy/internal/models"
)

// Row is one parsed reading before it is tagged with site and source type
type Row struct {
	Timestamp time.Time
	Serial    string
	Value     float64
}

// Header aliases, compared after lower-casing and stripping spaces, dashes and underscores.
var (
	timestampAliases = []string{"timestamp", "datetime", "readingtime", "readat"}
	dateAliases      = []string{"date", "readingdate"}
	timeAliases      = []string{"time", "hour"}
	serialAliases    = []string{"serial", "meterserial", "serialnumber", "meter", "meterid", "meterno"}
	valueAliases     = []string{"value", "reading", "readingvalue", "kwh", "consumption", "register"}
)

// Supported reports whether name has one of the given extensions (case-insensitive).
func Supported(name string, extensions []string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		return false
	}
	for _, e := range extensions {
		if strings.ToLower(e) == ext {
			return true
		}
	}
	return false
}

// Options tune timestamp interpretation
type Options struct {
	// DayFirst reads ambiguous dates such as 03/04/2024 as 3 April.
	DayFirst bool
}

func (o Options) dateOptions() []dateparse.ParserOption {
	return []dateparse.ParserOption{
		dateparse.PreferMonthFirst(!o.DayFirst),
		dateparse.RetryAmbiguousDateWithSwap(true),
	}
}

// Parse is ParseWith using month-first dates.
func Parse(name string, content []byte) ([]Row, error) {
	return ParseWith(name, content, Options{})
}

// ParseWith reads a header-led delimited file. Tab-separated content is used
// for .tsv names; everything else is comma-separated. The timestamp comes from
// one column, or from separate date and time columns joined together. Columns
// other than timestamp, serial and value are ignored. Rows come back sorted by
// timestamp, keeping file order for equal timestamps.
func ParseWith(name string, content []byte, opts Options) ([]Row, error) {
	r := csv.NewReader(bytes.NewReader(content))
	if strings.EqualFold(filepath.Ext(name), ".tsv") {
		r.Comma = '\t'
	}
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err == io.EOF {
		return nil, &models.ParseError{File: name, Err: errors.New("empty file")}
	}
	if err != nil {
		return nil, &models.ParseError{File: name, Line: 1, Err: err}
	}

	tsCol, dateCol, timeCol, serialCol, valueCol := -1, -1, -1, -1, -1
	for i, h := range header {
		key := normalize(h)
		switch {
		case tsCol < 0 && contains(timestampAliases, key):
			tsCol = i
		case dateCol < 0 && contains(dateAliases, key):
			dateCol = i
		case timeCol < 0 && contains(timeAliases, key):
			timeCol = i
		case serialCol < 0 && contains(serialAliases, key):
			serialCol = i
		case valueCol < 0 && contains(valueAliases, key):
			valueCol = i
		}
	}
	// A date column alone is a day stamp; a time column alone is ambiguous.
	if tsCol < 0 && dateCol >= 0 && timeCol < 0 {
		tsCol, dateCol = dateCol, -1
	}
	splitTime := tsCol < 0 && dateCol >= 0 && timeCol >= 0

	var missing []string
	if tsCol < 0 && !splitTime {
		missing = append(missing, "timestamp")
	}
	if serialCol < 0 {
		missing = append(missing, "serial")
	}
	if valueCol < 0 {
		missing = append(missing, "value")
	}
	if len(missing) > 0 {
		return nil, &models.ParseError{File: name, Line: 1, Err: fmt.Errorf("header missing %s", strings.Join(missing, ", "))}
	}
	width := max(tsCol, serialCol, valueCol) + 1
	if splitTime {
		width = max(dateCol, timeCol, serialCol, valueCol) + 1
	}
	dateOpts := opts.dateOptions()

	var rows []Row
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var cerr *csv.ParseError
			if errors.As(err, &cerr) {
				return nil, &models.ParseError{File: name, Line: cerr.Line, Err: cerr.Err}
			}
			return nil, &models.ParseError{File: name, Err: err}
		}
		line, _ := r.FieldPos(0)
		if blank(record) {
			continue
		}
		if len(record) < width {
			return nil, &models.ParseError{File: name, Line: line, Err: fmt.Errorf("expected at least %d fields, got %d", width, len(record))}
		}

		serial := strings.TrimSpace(record[serialCol])
		if serial == "" {
			return nil, &models.ParseError{File: name, Line: line, Err: errors.New("empty serial")}
		}
		var stamp string
		if splitTime {
			stamp = strings.TrimSpace(record[dateCol]) + " " + strings.TrimSpace(record[timeCol])
		} else {
			stamp = strings.TrimSpace(record[tsCol])
		}
		ts, err := dateparse.ParseIn(stamp, time.UTC, dateOpts...)
		if err != nil {
			return nil, &models.ParseError{File: name, Line: line, Err: fmt.Errorf("timestamp: %w", err)}
		}
		value, err := strconv.ParseFloat(strings.TrimSpace(record[valueCol]), 64)
		if err != nil {
			return nil, &models.ParseError{File: name, Line: line, Err: fmt.Errorf("value: %w", err)}
		}

		rows = append(rows, Row{Timestamp: ts, Serial: serial, Value: value})
	}

	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Timestamp.Before(rows[j].Timestamp) })
	return rows, nil
}

func normalize(h string) string {
	h = strings.TrimPrefix(h, "\ufeff")
	h = strings.ToLower(strings.TrimSpace(h))
	return strings.NewReplacer(" ", "", "-", "", "_", "").Replace(h)
}

func contains(aliases []string, key string) bool {
	for _, a := range aliases {
		if a == key {
			return true
		}
	}
	return false
}

func blank(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
