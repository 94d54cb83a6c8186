package tree

import "fmt"

//Arena is a serializable copy of the node arena. Unlike Newick it keeps
//node numbers, so caches indexed by node stay valid across a reload.
type Arena struct {
	Root     int       `json:"root"`
	Taxa     []string  `json:"taxa"`
	Heights  []float64 `json:"heights"`
	Children [][]int   `json:"children"`
}

//Arena returns a copy of the current nodes.
func (t *Tree) Arena() Arena {
	a := Arena{
		Root:     t.root,
		Taxa:     t.Taxa(),
		Heights:  make([]float64, len(t.nodes)),
		Children: make([][]int, len(t.nodes)),
	}
	for i := range t.nodes {
		a.Heights[i] = t.NodeHeight(i)
		a.Children[i] = append([]int(nil), t.nodes[i].Children...)
	}
	return a
}

//LoadArena replaces the shape and heights of the tree with a. The arena
//must have the same node count and the same taxon on every leaf. On
//error the tree is left as it was.
func (t *Tree) LoadArena(a Arena) error {
	t.requireEdit("LoadArena")
	if len(a.Heights) != len(t.nodes) || len(a.Children) != len(t.nodes) || len(a.Taxa) != t.external {
		return fmt.Errorf("arena has %d nodes and %d taxa, tree has %d and %d",
			len(a.Heights), len(a.Taxa), len(t.nodes), t.external)
	}
	for i, name := range a.Taxa {
		if t.nodes[i].Taxon != name {
			return fmt.Errorf("arena leaf %d is %q, tree has %q", i, name, t.nodes[i].Taxon)
		}
	}
	if a.Root < 0 || a.Root >= len(t.nodes) {
		return fmt.Errorf("arena root %d out of range", a.Root)
	}
	t.ensureHeights()
	old := copyNodes(nil, t.nodes)
	oldRoot := t.root
	for i := range t.nodes {
		t.nodes[i].Parent = -1
	}
	for i := range t.nodes {
		t.nodes[i].Height = a.Heights[i]
		t.nodes[i].Children = append(t.nodes[i].Children[:0], a.Children[i]...)
	}
	bad := false
	for p, ch := range a.Children {
		for _, c := range ch {
			if c < 0 || c >= len(t.nodes) || t.nodes[c].Parent >= 0 {
				bad = true
				break
			}
			t.nodes[c].Parent = p
		}
	}
	t.root = a.Root
	t.heightsKnown = true
	t.lengthsKnown = false
	var err error
	if bad {
		err = fmt.Errorf("arena has a node with several parents or an invalid child")
	} else {
		err = t.Validate()
	}
	if err != nil {
		t.nodes = old
		t.root = oldRoot
		t.lengthsKnown = false
		return err
	}
	t.record(-1, AllChanged)
	return nil
}
