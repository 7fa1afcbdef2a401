package main

import (
	"bytes"
	"testing"

	"github.com/kanna-karuppasamy/smart-grid-meter-hierarchy/internal/config"
	"github.com/kanna-karuppasamy/smart-grid-meter-hierarchy/internal/coverage"
	"github.com/kanna-karuppasamy/smart-grid-meter-hierarchy/internal/engine"
	"github.com/kanna-karuppasamy/smart-grid-meter-hierarchy/internal/hierarchy"
	"github.com/kanna-karuppasamy/smart-grid-meter-hierarchy/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestRender(t *testing.T) {
	meters := []models.Meter{
		{Site: "S1", Serial: "A", Utility: models.Electricity, Source: "AMR1"},
		{Site: "S1", Serial: "B", ParentSerial: "A", Utility: models.Electricity, Source: "AMR1", Stand: "Floor 1"},
		{Site: "S1", Serial: "C", ParentSerial: "Z", Utility: models.Electricity, Source: "AMR1"},
	}
	latest := map[string]models.Reading{"A": {Serial: "A", Value: 10}}
	tree := hierarchy.Build("S1", models.Electricity, meters, latest)

	var buf bytes.Buffer
	render(&buf, &engine.View{
		Tree:     tree,
		Coverage: coverage.Reconcile(3, []string{"A"}),
		Missing:  []string{"B", "C"},
	})

	assert.Equal(t, "S1 root\n"+
		"  A: 10\n"+
		"    B: no data [Floor 1]\n"+
		"  C: no data (detached)\n"+
		"\nFetched 1 of 3 meters (33%)\n"+
		"No data: B, C\n", buf.String())
}

func TestOpenRelations_PicksBackendByExtension(t *testing.T) {
	rt, closer, err := openRelations(config.HierarchyConfig{Path: "hierarchy.CSV", Table: "meters"})
	assert.NoError(t, err)
	assert.Nil(t, closer)
	assert.IsType(t, &hierarchy.CSVTable{}, rt)
}
