// Package tree implements the rooted phylogenetic tree that operators edit
// and likelihoods read.
//
// Nodes live in a flat slice and refer to each other by number: leaves
// occupy [0, ExternalNodeCount) and internal nodes
// [ExternalNodeCount, NodeCount). Heights and branch lengths are two views
// of the same tree; whichever was written last is authoritative and the
// other is rebuilt lazily with a full traversal. All mutation happens
// inside BeginEdit/EndEdit, and EndEdit fires a single model event whose
// detail is the ChangeSet accumulated during the edit.
package tree

import (
	"fmt"
	"math"

	"github.com/tomopfuku/gobeast/model"
)

//Node is one vertex of the tree.
type Node struct {
	Number     int
	Height     float64
	Length     float64
	Parent     int
	Children   []int
	Taxon      string
	Attributes map[string]string
}

//ChangeKind says what an edit touched.
type ChangeKind int

const (
	// HeightChanged means the node height moved, so the branches to the
	// node's parent and to each of its children changed length.
	HeightChanged ChangeKind = iota
	// LengthChanged means only the branch above the node changed.
	LengthChanged
	// TopologyChanged means the node gained or lost a parent or child.
	TopologyChanged
	// AllChanged means the whole tree must be considered changed.
	AllChanged
)

func (k ChangeKind) String() string {
	switch k {
	case HeightChanged:
		return "height"
	case LengthChanged:
		return "length"
	case TopologyChanged:
		return "topology"
	case AllChanged:
		return "all"
	}
	return "unknown"
}

//Change is one recorded edit.
type Change struct {
	Node int
	Kind ChangeKind
}

//ChangeSet is the detail of the event fired by EndEdit.
type ChangeSet []Change

//All reports whether the set invalidates the whole tree.
func (cs ChangeSet) All() bool {
	for _, c := range cs {
		if c.Kind == AllChanged {
			return true
		}
	}
	return false
}

//Tree is a rooted tree that takes part in the model graph.
type Tree struct {
	model.Base
	nodes        []Node
	root         int
	external     int
	taxa         map[string]int
	heightsKnown bool
	lengthsKnown bool
	editing      bool
	changes      ChangeSet

	storedNodes        []Node
	storedRoot         int
	storedHeightsKnown bool
	storedLengthsKnown bool
}

func newTree(id string, nodes []Node, root, external int, heights bool) *Tree {
	t := &Tree{
		nodes:        nodes,
		root:         root,
		external:     external,
		heightsKnown: heights,
		lengthsKnown: !heights,
	}
	t.Init(id, t)
	t.indexTaxa()
	return t
}

func (t *Tree) indexTaxa() {
	t.taxa = make(map[string]int, t.external)
	for i := 0; i < t.external; i++ {
		t.taxa[t.nodes[i].Taxon] = i
	}
}

//NodeCount returns the number of nodes.
func (t *Tree) NodeCount() int {
	return len(t.nodes)
}

//ExternalNodeCount returns the number of leaves.
func (t *Tree) ExternalNodeCount() int {
	return t.external
}

//InternalNodeCount returns the number of internal nodes.
func (t *Tree) InternalNodeCount() int {
	return len(t.nodes) - t.external
}

//Root returns the root node number.
func (t *Tree) Root() int {
	return t.root
}

//IsRoot reports whether n is the root.
func (t *Tree) IsRoot(n int) bool {
	return n == t.root
}

//IsExternal reports whether n is a leaf.
func (t *Tree) IsExternal(n int) bool {
	return n < t.external
}

//Parent returns the parent of n, or -1 for the root.
func (t *Tree) Parent(n int) int {
	return t.nodes[n].Parent
}

//Children returns the children of n. The slice must not be modified.
func (t *Tree) Children(n int) []int {
	return t.nodes[n].Children
}

//ChildCount returns the number of children of n.
func (t *Tree) ChildCount(n int) int {
	return len(t.nodes[n].Children)
}

//Child returns child i of n.
func (t *Tree) Child(n, i int) int {
	return t.nodes[n].Children[i]
}

//HasChild reports whether c is a child of p.
func (t *Tree) HasChild(p, c int) bool {
	for _, have := range t.nodes[p].Children {
		if have == c {
			return true
		}
	}
	return false
}

//Sibling returns the other child of n's parent in a bifurcating tree, or
//-1 when n is the root or its parent is not binary.
func (t *Tree) Sibling(n int) int {
	p := t.nodes[n].Parent
	if p < 0 || len(t.nodes[p].Children) != 2 {
		return -1
	}
	if t.nodes[p].Children[0] == n {
		return t.nodes[p].Children[1]
	}
	return t.nodes[p].Children[0]
}

//Taxon returns the taxon of leaf n ("" for internal nodes).
func (t *Tree) Taxon(n int) string {
	return t.nodes[n].Taxon
}

//TaxonIndex returns the leaf carrying taxon.
func (t *Tree) TaxonIndex(taxon string) (int, bool) {
	n, ok := t.taxa[taxon]
	return n, ok
}

//Taxa returns the taxa in leaf order.
func (t *Tree) Taxa() []string {
	out := make([]string, t.external)
	for i := range out {
		out[i] = t.nodes[i].Taxon
	}
	return out
}

//Attribute returns a free-form attribute of n.
func (t *Tree) Attribute(n int, key string) (string, bool) {
	v, ok := t.nodes[n].Attributes[key]
	return v, ok
}

//SetAttribute sets a free-form attribute of n. Attributes are metadata
//and may be set outside an edit.
func (t *Tree) SetAttribute(n int, key, value string) {
	if t.nodes[n].Attributes == nil {
		t.nodes[n].Attributes = make(map[string]string)
	}
	t.nodes[n].Attributes[key] = value
}

//NodeHeight returns the height of n, rebuilding heights from branch
//lengths first when lengths are authoritative.
func (t *Tree) NodeHeight(n int) float64 {
	if !t.heightsKnown {
		t.heightsFromLengths()
	}
	return t.nodes[n].Height
}

//BranchLength returns the length of the branch above n (0 for the root),
//rebuilding lengths from heights first when heights are authoritative.
func (t *Tree) BranchLength(n int) float64 {
	if n == t.root {
		return 0
	}
	if !t.lengthsKnown {
		t.lengthsFromHeights()
	}
	return t.nodes[n].Length
}

//HeightsKnown reports whether heights are current.
func (t *Tree) HeightsKnown() bool {
	return t.heightsKnown
}

//LengthsKnown reports whether branch lengths are current.
func (t *Tree) LengthsKnown() bool {
	return t.lengthsKnown
}

func (t *Tree) heightsFromLengths() {
	depth := make([]float64, len(t.nodes))
	maxDepth := 0.
	for _, n := range t.Preorder() {
		if p := t.nodes[n].Parent; p >= 0 {
			depth[n] = depth[p] + t.nodes[n].Length
		}
		if depth[n] > maxDepth {
			maxDepth = depth[n]
		}
	}
	for i := range t.nodes {
		t.nodes[i].Height = maxDepth - depth[i]
	}
	t.heightsKnown = true
}

func (t *Tree) lengthsFromHeights() {
	for i := range t.nodes {
		p := t.nodes[i].Parent
		if p < 0 {
			t.nodes[i].Length = 0
			continue
		}
		t.nodes[i].Length = t.nodes[p].Height - t.nodes[i].Height
	}
	t.lengthsKnown = true
}

//Postorder returns node numbers children first, root last.
func (t *Tree) Postorder() []int {
	out := make([]int, 0, len(t.nodes))
	var walk func(int)
	walk = func(n int) {
		for _, c := range t.nodes[n].Children {
			walk(c)
		}
		out = append(out, n)
	}
	walk(t.root)
	return out
}

//Preorder returns node numbers root first.
func (t *Tree) Preorder() []int {
	out := make([]int, 0, len(t.nodes))
	stack := []int{t.root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		out = append(out, n)
		ch := t.nodes[n].Children
		for i := len(ch) - 1; i >= 0; i-- {
			stack = append(stack, ch[i])
		}
	}
	return out
}

//IsAncestor reports whether a is an ancestor of d (or d itself).
func (t *Tree) IsAncestor(a, d int) bool {
	for cur := d; cur >= 0; cur = t.nodes[cur].Parent {
		if cur == a {
			return true
		}
	}
	return false
}

//MRCA returns the most recent common ancestor of a and b.
func (t *Tree) MRCA(a, b int) int {
	seen := make(map[int]bool)
	for cur := a; cur >= 0; cur = t.nodes[cur].Parent {
		seen[cur] = true
	}
	cur := b
	for !seen[cur] {
		cur = t.nodes[cur].Parent
	}
	return cur
}

//PatristicDistance is the summed branch length on the path from a to b.
func (t *Tree) PatristicDistance(a, b int) float64 {
	m := t.MRCA(a, b)
	d := 0.
	for cur := a; cur != m; cur = t.nodes[cur].Parent {
		d += t.BranchLength(cur)
	}
	for cur := b; cur != m; cur = t.nodes[cur].Parent {
		d += t.BranchLength(cur)
	}
	return d
}

//TreeLength returns the sum of all branch lengths.
func (t *Tree) TreeLength() float64 {
	total := 0.
	for i := range t.nodes {
		total += t.BranchLength(i)
	}
	return total
}

//IsBinary reports whether every internal node has exactly two children.
func (t *Tree) IsBinary() bool {
	for i := t.external; i < len(t.nodes); i++ {
		if len(t.nodes[i].Children) != 2 {
			return false
		}
	}
	return true
}

//Validate checks the structural invariants of the tree.
func (t *Tree) Validate() error {
	roots := 0
	for i, n := range t.nodes {
		if n.Number != i {
			return fmt.Errorf("node %d carries number %d", i, n.Number)
		}
		if i < t.external && len(n.Children) != 0 {
			return fmt.Errorf("leaf %d has children", i)
		}
		if i >= t.external && len(n.Children) == 0 {
			return fmt.Errorf("internal node %d has no children", i)
		}
		if n.Parent < 0 {
			roots++
			if i != t.root {
				return fmt.Errorf("node %d has no parent but root is %d", i, t.root)
			}
			continue
		}
		if !t.HasChild(n.Parent, i) {
			return fmt.Errorf("node %d not listed as a child of its parent %d", i, n.Parent)
		}
		if h, ph := t.NodeHeight(i), t.NodeHeight(n.Parent); ph < h {
			return fmt.Errorf("node %d height %g above parent height %g", i, h, ph)
		}
	}
	if roots != 1 {
		return fmt.Errorf("tree has %d roots", roots)
	}
	if math.IsNaN(t.NodeHeight(t.root)) {
		return fmt.Errorf("root height is NaN")
	}
	return nil
}

func (t *Tree) HandleModelChanged(model.Event)                    {}
func (t *Tree) HandleParameterChanged(*model.Parameter, int)       {}
