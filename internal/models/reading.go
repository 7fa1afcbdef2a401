package models

import (
	"time"
)

// Reading is a single meter value ingested from a reading file
type Reading struct {
	Site      string     `json:"site"`
	Serial    string     `json:"serial"`
	Timestamp time.Time  `json:"timestamp"`
	Value     float64    `json:"value"`
	Source    SourceType `json:"sourceType"`
}

// FetchRequest is a site/utility selection made by the dashboard
type FetchRequest struct {
	Site    string      `json:"site"`
	Utility UtilityType `json:"utilityType"`
}

// Key identifies duplicate requests
func (r FetchRequest) Key() string {
	return r.Site + "/" + string(r.Utility)
}

// IngestionEvent is published once a reading file has been appended and cached
type IngestionEvent struct {
	ID         string     `json:"id"`
	Site       string     `json:"site"`
	Source     SourceType `json:"sourceType"`
	File       string     `json:"file"`
	Rows       int        `json:"rows"`
	IngestedAt time.Time  `json:"ingestedAt"`
}
