// Package hierarchy reads the meter relation table and rebuilds the
// parent/child tree of a site for one utility type.
package hierarchy

import (
	"context"
	"sort"
	"strings"

	"github.com/kanna-karuppasamy/smart-grid-meter-hierarchy/internal/models"
)

// Column names of the relation table
const (
	ColSite         = "Site"
	ColSerial       = "Serial"
	ColParentSerial = "ParentSerial"
	ColUtilityType  = "UtilityType"
	ColSourceType   = "SourceType"
	ColDisplayTag   = "DisplayTag"
)

var requiredColumns = []string{ColSite, ColSerial, ColUtilityType, ColSourceType}

// RelationTable is the externally maintained, read-only list of meters.
// A table lacking required columns fails with *models.SchemaError.
type RelationTable interface {
	Meters(ctx context.Context) ([]models.Meter, error)
}

// Select returns the meters of site measuring utility, in table order.
// A serial listed more than once keeps its first row.
func Select(meters []models.Meter, site string, utility models.UtilityType) []models.Meter {
	seen := make(map[string]bool)
	var out []models.Meter
	for _, m := range meters {
		if m.Site != site || m.Utility != utility || seen[m.Serial] {
			continue
		}
		seen[m.Serial] = true
		out = append(out, m)
	}
	return out
}

// SourceTypes returns the distinct, sorted source types registered for site
func SourceTypes(meters []models.Meter, site string) []models.SourceType {
	seen := make(map[models.SourceType]bool)
	var out []models.SourceType
	for _, m := range meters {
		if m.Site != site || m.Source == "" || seen[m.Source] {
			continue
		}
		seen[m.Source] = true
		out = append(out, m.Source)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// columnKey folds header spelling differences ("Parent Serial", "parent_serial").
func columnKey(name string) string {
	name = strings.TrimPrefix(name, "\ufeff")
	name = strings.ToLower(strings.TrimSpace(name))
	return strings.NewReplacer(" ", "", "_", "", "-", "").Replace(name)
}

// resolveColumns maps each known column to its index in header; -1 when absent.
func resolveColumns(header []string) map[string]int {
	known := []string{ColSite, ColSerial, ColParentSerial, ColUtilityType, ColSourceType, ColDisplayTag}
	aliases := map[string]string{
		"parent": ColParentSerial,
		"stand":  ColDisplayTag,
		"tag":    ColDisplayTag,
	}

	idx := make(map[string]int, len(known))
	for _, k := range known {
		idx[k] = -1
	}
	for i, h := range header {
		key := columnKey(h)
		for _, k := range known {
			if key == columnKey(k) && idx[k] < 0 {
				idx[k] = i
			}
		}
		if k, ok := aliases[key]; ok && idx[k] < 0 {
			idx[k] = i
		}
	}
	return idx
}

func missingColumns(idx map[string]int) []string {
	var missing []string
	for _, c := range requiredColumns {
		if idx[c] < 0 {
			missing = append(missing, c)
		}
	}
	return missing
}
