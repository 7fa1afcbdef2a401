package models

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrCacheUnavailable wraps failures of the local ingestion cache storage.
	ErrCacheUnavailable = errors.New("ingestion cache unavailable")
	// ErrStoreUnavailable wraps failures of the historical reading store.
	ErrStoreUnavailable = errors.New("historical store unavailable")
)

// TransportError is a listing or retrieval failure against the remote file service.
type TransportError struct {
	Source SourceType
	Site   string
	File   string // empty for listing failures
	Err    error
}

func (e *TransportError) Error() string {
	if e.File == "" {
		return fmt.Sprintf("list %s/%s: %v", e.Source, e.Site, e.Err)
	}
	return fmt.Sprintf("get %s/%s/%s: %v", e.Source, e.Site, e.File, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ParseError is malformed reading file content.
type ParseError struct {
	File string
	Line int // 0 when the error is not tied to a line
	Err  error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("parse %s line %d: %v", e.File, e.Line, e.Err)
	}
	return fmt.Sprintf("parse %s: %v", e.File, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// SchemaError reports required columns absent from an external table.
type SchemaError struct {
	Table   string
	Missing []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("table %s: missing required columns: %s", e.Table, strings.Join(e.Missing, ", "))
}
