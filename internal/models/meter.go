package models

import (
	"fmt"
	"strings"
)

// UtilityType is the commodity a meter measures
type UtilityType string

const (
	Electricity UtilityType = "Electricity"
	ColdWater   UtilityType = "ColdWater"
	HotWater    UtilityType = "HotWater"
	Gas         UtilityType = "Gas"
)

// UtilityTypes lists every supported utility type
var UtilityTypes = []UtilityType{Electricity, ColdWater, HotWater, Gas}

// ParseUtilityType accepts the canonical names as well as spaced, dashed and
// lower-case spellings such as "cold water" or "hot-water".
func ParseUtilityType(s string) (UtilityType, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.NewReplacer(" ", "", "-", "", "_", "").Replace(norm)
	for _, u := range UtilityTypes {
		if strings.ToLower(string(u)) == norm {
			return u, nil
		}
	}
	return "", fmt.Errorf("unknown utility type %q", s)
}

// SourceType classifies the origin of a reading file (one metering technology)
type SourceType string

// Meter is one row of the hierarchy relation table
type Meter struct {
	Site         string      `json:"site"`
	Serial       string      `json:"serial"`
	ParentSerial string      `json:"parentSerial,omitempty"`
	Utility      UtilityType `json:"utilityType"`
	Source       SourceType  `json:"sourceType"`
	Stand        string      `json:"stand,omitempty"`
}

// HasParent reports whether the meter names a parent other than itself
func (m Meter) HasParent() bool {
	return m.ParentSerial != "" && m.ParentSerial != m.Serial
}

// Validate checks the fields every relation row must carry
func (m Meter) Validate() error {
	if m.Site == "" {
		return fmt.Errorf("meter: empty site")
	}
	if m.Serial == "" {
		return fmt.Errorf("meter: empty serial")
	}
	if m.Utility == "" {
		return fmt.Errorf("meter %s: empty utility type", m.Serial)
	}
	return nil
}
