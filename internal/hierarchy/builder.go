package hierarchy

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/kanna-karuppasamy/smart-grid-meter-hierarchy/internal/models"
)

const (
	// RootSerial identifies the synthetic node anchoring parentless meters
	RootSerial = "root"
	// NoData replaces the value in labels of meters without readings
	NoData = "no data"
)

// Node is one meter in the tree, or the synthetic root
type Node struct {
	Serial   string
	Label    string
	Tag      string // display tag of the edge from the parent
	Meter    *models.Meter
	Reading  *models.Reading
	Parent   *Node
	Children []*Node
	// Detached is set when the meter names a parent that is not part of the
	// selection, or sits on a parent cycle, and was anchored to the root instead.
	Detached bool
}

// IsRoot reports whether n is the synthetic root
func (n *Node) IsRoot() bool {
	return n.Meter == nil
}

// Edge is a labeled parent→child link
type Edge struct {
	Parent string
	Child  string
	Label  string
}

// Tree is the hierarchy of one site and utility type
type Tree struct {
	Site    string
	Utility models.UtilityType
	Root    *Node
	nodes   map[string]*Node
}

// Build reconstructs the meter forest of site/utility under a synthetic root
// and labels every node with its latest reading. Every selected meter appears
// exactly once, whether or not it has a parent or a reading.
func Build(site string, utility models.UtilityType, meters []models.Meter, latest map[string]models.Reading) *Tree {
	root := &Node{Serial: RootSerial, Label: site + " root"}
	t := &Tree{
		Site:    site,
		Utility: utility,
		Root:    root,
		nodes:   make(map[string]*Node),
	}

	selected := Select(meters, site, utility)
	order := make([]*Node, 0, len(selected))
	for i := range selected {
		m := selected[i]
		n := &Node{Serial: m.Serial, Tag: m.Stand, Meter: &m}
		if r, ok := latest[m.Serial]; ok {
			n.Reading = &r
		}
		n.Label = label(n)
		t.nodes[m.Serial] = n
		order = append(order, n)
	}

	for _, n := range order {
		n.Parent = root
		if !n.Meter.HasParent() {
			continue
		}
		if p, ok := t.nodes[n.Meter.ParentSerial]; ok {
			n.Parent = p
		} else {
			n.Detached = true
		}
	}

	// Break parent cycles by anchoring the first revisited node to the root.
	for _, n := range order {
		for {
			seen := make(map[*Node]bool)
			cur := n
			for cur != root && !seen[cur] {
				seen[cur] = true
				cur = cur.Parent
			}
			if cur == root {
				break
			}
			cur.Parent = root
			cur.Detached = true
		}
	}

	for _, n := range order {
		n.Parent.Children = append(n.Parent.Children, n)
	}
	t.walk(root, func(n *Node) {
		sort.Slice(n.Children, func(i, j int) bool { return n.Children[i].Serial < n.Children[j].Serial })
	})
	return t
}

func label(n *Node) string {
	if n.Reading == nil {
		return fmt.Sprintf("%s: %s", n.Serial, NoData)
	}
	return fmt.Sprintf("%s: %s", n.Serial, strconv.FormatFloat(n.Reading.Value, 'f', -1, 64))
}

// Len is the number of meter nodes, excluding the root
func (t *Tree) Len() int {
	return len(t.nodes)
}

// Node returns the node of serial, or nil
func (t *Tree) Node(serial string) *Node {
	return t.nodes[serial]
}

// Meters returns the selected meters in tree order
func (t *Tree) Meters() []models.Meter {
	out := make([]models.Meter, 0, len(t.nodes))
	t.Walk(func(n *Node) {
		if !n.IsRoot() {
			out = append(out, *n.Meter)
		}
	})
	return out
}

// Edges lists every parent→child link in depth-first order
func (t *Tree) Edges() []Edge {
	edges := make([]Edge, 0, len(t.nodes))
	t.Walk(func(n *Node) {
		if n.IsRoot() {
			return
		}
		edges = append(edges, Edge{Parent: n.Parent.Serial, Child: n.Serial, Label: n.Tag})
	})
	return edges
}

// Walk visits the root and then every node depth-first, children in serial order
func (t *Tree) Walk(fn func(n *Node)) {
	t.walk(t.Root, fn)
}

func (t *Tree) walk(n *Node, fn func(n *Node)) {
	fn(n)
	for _, c := range n.Children {
		t.walk(c, fn)
	}
}

// Depth returns the distance of n from the root
func (n *Node) Depth() int {
	d := 0
	for p := n.Parent; p != nil; p = p.Parent {
		d++
	}
	return d
}
