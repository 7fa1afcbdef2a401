package hierarchy

import (
	"testing"
	"time"

	"github.com/kanna-karuppasamy/smart-grid-meter-hierarchy/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func meter(serial, parent string) models.Meter {
	return models.Meter{Site: "S1", Serial: serial, ParentSerial: parent, Utility: models.Electricity, Source: "AMR1", Stand: "stand-" + serial}
}

func TestBuild_Scenario(t *testing.T) {
	meters := []models.Meter{meter("A", ""), meter("B", "A"), meter("C", "A")}
	latest := map[string]models.Reading{
		"A": {Serial: "A", Value: 120.5, Timestamp: time.Now()},
		"B": {Serial: "B", Value: 40, Timestamp: time.Now()},
	}

	tree := Build("S1", models.Electricity, meters, latest)

	assert.Equal(t, RootSerial, tree.Root.Serial)
	assert.Equal(t, "S1 root", tree.Root.Label)
	assert.Equal(t, []Edge{
		{Parent: "root", Child: "A", Label: "stand-A"},
		{Parent: "A", Child: "B", Label: "stand-B"},
		{Parent: "A", Child: "C", Label: "stand-C"},
	}, tree.Edges())

	assert.Equal(t, "A: 120.5", tree.Node("A").Label)
	assert.Equal(t, "B: 40", tree.Node("B").Label)
	assert.Equal(t, "C: no data", tree.Node("C").Label)
	assert.Nil(t, tree.Node("C").Reading)
	assert.Equal(t, 2, tree.Node("C").Depth())
}

func TestBuild_FiltersSiteAndUtility(t *testing.T) {
	water := meter("W", "")
	water.Utility = models.ColdWater
	other := meter("X", "")
	other.Site = "S2"

	tree := Build("S1", models.Electricity, []models.Meter{meter("A", ""), water, other}, nil)

	assert.Equal(t, 1, tree.Len())
	assert.Nil(t, tree.Node("W"))
	assert.Nil(t, tree.Node("X"))
}

func TestBuild_EveryMeterExactlyOnce(t *testing.T) {
	meters := []models.Meter{
		meter("A", ""),
		meter("B", "A"),
		meter("D", "GHOST"), // parent outside the selection
		meter("E", "E"),     // self parent
		meter("F", "G"),     // F and G form a cycle
		meter("G", "F"),
		meter("B", "D"), // duplicate serial, first row wins
	}

	tree := Build("S1", models.Electricity, meters, nil)

	counts := map[string]int{}
	tree.Walk(func(n *Node) { counts[n.Serial]++ })
	assert.Equal(t, map[string]int{"root": 1, "A": 1, "B": 1, "D": 1, "E": 1, "F": 1, "G": 1}, counts)
	assert.Equal(t, 6, tree.Len())

	assert.Equal(t, "A", tree.Node("B").Parent.Serial)
	assert.True(t, tree.Node("D").IsRoot() == false && tree.Node("D").Parent == tree.Root)
	assert.True(t, tree.Node("D").Detached)
	assert.Equal(t, tree.Root, tree.Node("E").Parent)
	assert.False(t, tree.Node("E").Detached)

	// One cycle member is re-anchored to the root, the other hangs below it.
	f, g := tree.Node("F"), tree.Node("G")
	require.True(t, f.Parent == tree.Root || g.Parent == tree.Root)
	assert.True(t, f.Parent == g || g.Parent == f)
}

func TestBuild_Empty(t *testing.T) {
	tree := Build("S1", models.Gas, nil, nil)
	assert.Equal(t, 0, tree.Len())
	assert.Empty(t, tree.Edges())
	assert.Empty(t, tree.Root.Children)
}

func TestTree_MetersInTreeOrder(t *testing.T) {
	tree := Build("S1", models.Electricity, []models.Meter{meter("C", "A"), meter("A", ""), meter("B", "")}, nil)

	var serials []string
	for _, m := range tree.Meters() {
		serials = append(serials, m.Serial)
	}
	assert.Equal(t, []string{"A", "C", "B"}, serials)
}

func TestSelectAndSourceTypes(t *testing.T) {
	b := meter("B", "A")
	b.Source = "AMR2"
	water := meter("W", "")
	water.Utility = models.HotWater
	water.Source = "WTR"
	other := meter("X", "")
	other.Site = "S2"
	other.Source = "ELSE"

	meters := []models.Meter{meter("A", ""), b, water, other, meter("A", "Z")}

	sel := Select(meters, "S1", models.Electricity)
	require.Len(t, sel, 2)
	assert.Equal(t, "", sel[0].ParentSerial, "first row for a serial wins")

	assert.Equal(t, []models.SourceType{"AMR1", "AMR2", "WTR"}, SourceTypes(meters, "S1"))
	assert.Empty(t, SourceTypes(meters, "S9"))
}
