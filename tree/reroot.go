package tree

import "fmt"

//ChangeRoot re-roots a binary tree on the branch above n, with the new
//root splitting that branch at height h. Every node on the path from n's
//parent to the old root has its parent/child relation inverted, the old
//root (left with a single child) is spliced out, and its slot becomes the
//new root. Leaf-to-leaf distances are preserved; heights are rebuilt from
//the resulting branch lengths.
func (t *Tree) ChangeRoot(n int, h float64) error {
	t.requireEdit("ChangeRoot")
	if !t.IsBinary() {
		return ErrNotBinary
	}
	p := t.nodes[n].Parent
	if p < 0 {
		return fmt.Errorf("%w: node %d is already the root", ErrInvalidHeight, n)
	}
	hn, hp := t.NodeHeight(n), t.NodeHeight(p)
	if h < hn || h > hp {
		return fmt.Errorf("%w: %g not in [%g, %g]", ErrInvalidHeight, h, hn, hp)
	}
	if !t.lengthsKnown {
		t.lengthsFromHeights()
	}

	r := t.root
	var path []int
	for cur := p; cur >= 0; cur = t.nodes[cur].Parent {
		path = append(path, cur)
	}
	oldLen := make([]float64, len(path))
	for i, x := range path {
		oldLen[i] = t.nodes[x].Length
	}
	lenN, lenP := h-hn, hp-h

	t.detach(p, n)
	for i := 0; i+1 < len(path); i++ {
		x, y := path[i], path[i+1]
		t.unlink(y, x)
		t.attach(x, y)
		t.nodes[y].Length = oldLen[i]
	}

	s := t.nodes[r].Children[0]
	t.detach(r, s)
	pSide := p
	if r == p {
		pSide = s
		lenP += t.nodes[s].Length
	} else {
		q := t.nodes[r].Parent
		t.detach(q, r)
		t.attach(q, s)
		t.nodes[s].Length += t.nodes[r].Length
	}

	t.attach(r, n)
	t.attach(r, pSide)
	t.nodes[n].Length = lenN
	t.nodes[pSide].Length = lenP
	t.nodes[r].Length = 0
	t.root = r
	t.lengthsKnown = true
	t.heightsKnown = false
	t.record(-1, AllChanged)
	return nil
}

func (t *Tree) detach(p, c int) {
	t.unlink(p, c)
	t.nodes[c].Parent = -1
}

//unlink drops c from p's children and leaves c's parent alone, which the
//path inversion needs once c has been hung under its new parent.
func (t *Tree) unlink(p, c int) {
	ch := t.nodes[p].Children
	for i, have := range ch {
		if have == c {
			t.nodes[p].Children = append(ch[:i], ch[i+1:]...)
			return
		}
	}
	violation("detach", ErrMissingChild)
}

func (t *Tree) attach(p, c int) {
	t.nodes[p].Children = append(t.nodes[p].Children, c)
	t.nodes[c].Parent = p
}
