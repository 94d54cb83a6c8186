package tree

import "fmt"

//Vertex is a pointer-linked node used to build trees before adoption,
//e.g. by the Newick parser.
type Vertex struct {
	Name       string
	Length     float64
	Height     float64
	Children   []*Vertex
	Parent     *Vertex
	Attributes map[string]string
}

//AddChild links c below v.
func (v *Vertex) AddChild(c *Vertex) {
	v.Children = append(v.Children, c)
	c.Parent = v
}

//PostorderArray returns the hierarchy below v, children first.
func (v *Vertex) PostorderArray() (out []*Vertex) {
	for _, c := range v.Children {
		out = append(out, c.PostorderArray()...)
	}
	out = append(out, v)
	return
}

//Representation says which of Height or Length a Vertex hierarchy fills.
type Representation int

const (
	// Lengths: Vertex.Length holds branch lengths (Newick input).
	Lengths Representation = iota
	// Heights: Vertex.Height holds node heights (simulated trees).
	Heights
)

//Adopt builds a tree from a vertex hierarchy. A single post-order
//traversal numbers leaves 0..n-1 and internal nodes from n upward.
func Adopt(id string, root *Vertex, rep Representation) (*Tree, error) {
	order := root.PostorderArray()
	external := 0
	for _, v := range order {
		if len(v.Children) == 0 {
			external++
		}
	}
	if external == 0 {
		return nil, ErrEmptyTree
	}
	number := make(map[*Vertex]int, len(order))
	nextLeaf, nextInternal := 0, external
	for _, v := range order {
		if len(v.Children) == 0 {
			number[v] = nextLeaf
			nextLeaf++
		} else {
			number[v] = nextInternal
			nextInternal++
		}
	}
	nodes := make([]Node, len(order))
	seen := make(map[string]bool, external)
	for _, v := range order {
		i := number[v]
		n := Node{
			Number:     i,
			Height:     v.Height,
			Length:     v.Length,
			Parent:     -1,
			Attributes: v.Attributes,
		}
		if v.Parent != nil {
			n.Parent = number[v.Parent]
		}
		if len(v.Children) == 0 {
			if v.Name == "" {
				return nil, fmt.Errorf("leaf %d has no taxon name", i)
			}
			if seen[v.Name] {
				return nil, fmt.Errorf("%w: %s", ErrDuplicateTaxon, v.Name)
			}
			seen[v.Name] = true
			n.Taxon = v.Name
		} else {
			n.Children = make([]int, len(v.Children))
			for j, c := range v.Children {
				n.Children[j] = number[c]
			}
		}
		nodes[i] = n
	}
	if rep == Lengths {
		nodes[number[root]].Length = 0
	}
	return newTree(id, nodes, number[root], external, rep == Heights), nil
}

//Vertices converts the tree back into a pointer hierarchy with both
//heights and lengths filled.
func (t *Tree) Vertices() *Vertex {
	vs := make([]*Vertex, len(t.nodes))
	for i := range t.nodes {
		vs[i] = &Vertex{
			Name:       t.nodes[i].Taxon,
			Height:     t.NodeHeight(i),
			Length:     t.BranchLength(i),
			Attributes: t.nodes[i].Attributes,
		}
	}
	for _, n := range t.Preorder() {
		for _, c := range t.nodes[n].Children {
			vs[n].AddChild(vs[c])
		}
	}
	return vs[t.root]
}

//Copy returns an independent tree with the same shape and heights,
//renumbered by a post-order traversal.
func (t *Tree) Copy(id string) *Tree {
	c, err := Adopt(id, t.Vertices(), Heights)
	if err != nil {
		// t satisfies every precondition Adopt checks.
		panic(err)
	}
	return c
}

//renumber rebuilds the arena so numbering follows a post-order
//traversal again. Heights must be current.
func (t *Tree) renumber() {
	t.ensureHeights()
	fresh, err := Adopt(t.ID(), t.Vertices(), Heights)
	if err != nil {
		panic(err)
	}
	t.nodes = fresh.nodes
	t.root = fresh.root
	t.external = fresh.external
	t.taxa = fresh.taxa
	t.heightsKnown = true
	t.lengthsKnown = false
}

//Resolve turns every multifurcation into a cascade of bifurcations by
//pairing off extra children under synthetic nodes placed at the parent's
//height, then renumbers the tree.
func (t *Tree) Resolve() {
	t.requireEdit("Resolve")
	t.ensureHeights()
	t.lengthsKnown = false
	changed := false
	for n := 0; n < len(t.nodes); n++ {
		for len(t.nodes[n].Children) > 2 {
			ch := t.nodes[n].Children
			a, b := ch[len(ch)-2], ch[len(ch)-1]
			syn := len(t.nodes)
			t.nodes = append(t.nodes, Node{
				Number:   syn,
				Height:   t.nodes[n].Height,
				Parent:   n,
				Children: []int{a, b},
			})
			t.nodes[a].Parent = syn
			t.nodes[b].Parent = syn
			t.nodes[n].Children = append(ch[:len(ch)-2], syn)
			changed = true
		}
	}
	if !changed {
		return
	}
	t.renumber()
	t.record(-1, AllChanged)
}
