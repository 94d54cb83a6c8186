package tree

//BeginEdit opens an edit transaction.
func (t *Tree) BeginEdit() {
	if t.editing {
		violation("BeginEdit", ErrAlreadyEditing)
	}
	t.editing = true
	t.changes = t.changes[:0]
}

//EndEdit closes the transaction and fires one event carrying every
//change recorded since BeginEdit. An edit that changed nothing fires
//nothing.
func (t *Tree) EndEdit() {
	if !t.editing {
		violation("EndEdit", ErrNotEditing)
	}
	t.editing = false
	if len(t.changes) == 0 {
		return
	}
	cs := make(ChangeSet, len(t.changes))
	copy(cs, t.changes)
	t.changes = t.changes[:0]
	t.FireModelChanged(cs, -1)
}

//Editing reports whether an edit transaction is open.
func (t *Tree) Editing() bool {
	return t.editing
}

func (t *Tree) requireEdit(op string) {
	if !t.editing {
		violation(op, ErrNotEditing)
	}
}

func (t *Tree) record(n int, kind ChangeKind) {
	t.changes = append(t.changes, Change{Node: n, Kind: kind})
}

func (t *Tree) ensureHeights() {
	if !t.heightsKnown {
		t.heightsFromLengths()
	}
}

//SetNodeHeight sets the height of n. Branch lengths become stale.
func (t *Tree) SetNodeHeight(n int, h float64) {
	t.requireEdit("SetNodeHeight")
	t.ensureHeights()
	t.nodes[n].Height = h
	t.lengthsKnown = false
	t.record(n, HeightChanged)
}

//SetBranchLength sets the length of the branch above n. Heights become
//stale.
func (t *Tree) SetBranchLength(n int, l float64) {
	t.requireEdit("SetBranchLength")
	if !t.lengthsKnown {
		t.lengthsFromHeights()
	}
	t.nodes[n].Length = l
	t.heightsKnown = false
	t.record(n, LengthChanged)
}

//AddChild attaches the parentless node c under p.
func (t *Tree) AddChild(p, c int) {
	t.requireEdit("AddChild")
	if t.HasChild(p, c) {
		violation("AddChild", ErrDuplicateChild)
	}
	if t.nodes[c].Parent >= 0 {
		violation("AddChild", ErrHasParent)
	}
	t.ensureHeights()
	t.nodes[p].Children = append(t.nodes[p].Children, c)
	t.nodes[c].Parent = p
	t.lengthsKnown = false
	t.record(c, TopologyChanged)
}

//RemoveChild detaches c from p, leaving c without a parent.
func (t *Tree) RemoveChild(p, c int) {
	t.requireEdit("RemoveChild")
	ch := t.nodes[p].Children
	at := -1
	for i, have := range ch {
		if have == c {
			at = i
			break
		}
	}
	if at < 0 {
		violation("RemoveChild", ErrMissingChild)
	}
	t.ensureHeights()
	t.nodes[p].Children = append(ch[:at], ch[at+1:]...)
	t.nodes[c].Parent = -1
	t.lengthsKnown = false
	t.record(p, TopologyChanged)
}

//ReplaceChild swaps child old of p for the parentless node c, keeping
//child order.
func (t *Tree) ReplaceChild(p, old, c int) {
	t.requireEdit("ReplaceChild")
	if t.nodes[c].Parent >= 0 {
		violation("ReplaceChild", ErrHasParent)
	}
	for i, have := range t.nodes[p].Children {
		if have == old {
			t.ensureHeights()
			t.nodes[p].Children[i] = c
			t.nodes[c].Parent = p
			t.nodes[old].Parent = -1
			t.lengthsKnown = false
			t.record(p, TopologyChanged)
			t.record(c, TopologyChanged)
			return
		}
	}
	violation("ReplaceChild", ErrMissingChild)
}

//SetRoot makes the parentless node n the root.
func (t *Tree) SetRoot(n int) {
	t.requireEdit("SetRoot")
	if t.nodes[n].Parent >= 0 {
		violation("SetRoot", ErrHasParent)
	}
	t.root = n
	t.record(n, TopologyChanged)
}

//StoreState implements model.Handler.
func (t *Tree) StoreState() {
	t.storedNodes = copyNodes(t.storedNodes, t.nodes)
	t.storedRoot = t.root
	t.storedHeightsKnown = t.heightsKnown
	t.storedLengthsKnown = t.lengthsKnown
}

//RestoreState implements model.Handler.
func (t *Tree) RestoreState() {
	t.nodes, t.storedNodes = t.storedNodes, t.nodes
	t.root = t.storedRoot
	t.heightsKnown = t.storedHeightsKnown
	t.lengthsKnown = t.storedLengthsKnown
	t.editing = false
	t.changes = t.changes[:0]
}

//AcceptState implements model.Handler.
func (t *Tree) AcceptState() {}

func copyNodes(dst, src []Node) []Node {
	if len(dst) != len(src) {
		dst = make([]Node, len(src))
	}
	for i := range src {
		children := append(dst[i].Children[:0], src[i].Children...)
		dst[i] = src[i]
		dst[i].Children = children
	}
	return dst
}
