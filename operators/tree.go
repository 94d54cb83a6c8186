package operators

import (
	"math"
	"math/rand/v2"

	"github.com/tomopfuku/gobeast/tree"
)

func randomNonRoot(rng *rand.Rand, t *tree.Tree) int {
	n := rng.IntN(t.NodeCount() - 1)
	if n >= t.Root() {
		n++
	}
	return n
}

//NodeHeightUniform redraws the height of an internal non-root node
//uniformly between its oldest child and its parent.
type NodeHeightUniform struct {
	common
	tree *tree.Tree
}

//NewNodeHeightUniform will build the operator on t.
func NewNodeHeightUniform(name string, weight float64, t *tree.Tree) *NodeHeightUniform {
	return &NodeHeightUniform{common: common{name, weight}, tree: t}
}

//Operate implements Operator.
func (o *NodeHeightUniform) Operate(rng *rand.Rand) Result {
	t := o.tree
	if t.InternalNodeCount() < 2 {
		return Failed("no internal node below the root")
	}
	n := t.ExternalNodeCount() + rng.IntN(t.InternalNodeCount()-1)
	if n >= t.Root() {
		n++
	}
	lower := 0.
	for _, c := range t.Children(n) {
		lower = math.Max(lower, t.NodeHeight(c))
	}
	upper := t.NodeHeight(t.Parent(n))
	t.BeginEdit()
	t.SetNodeHeight(n, lower+(upper-lower)*rng.Float64())
	t.EndEdit()
	return Proposed(0)
}

//TreeScale multiplies every internal node height by c = exp(eps(u-0.5)).
type TreeScale struct {
	common
	tree *tree.Tree
	eps  float64
}

//NewTreeScale will build a tree scaler with step eps.
func NewTreeScale(name string, weight float64, t *tree.Tree, eps float64) *TreeScale {
	return &TreeScale{common: common{name, weight}, tree: t, eps: eps}
}

//Operate implements Operator. The Hastings ratio is c^k for k internal
//nodes.
func (o *TreeScale) Operate(rng *rand.Rand) Result {
	t := o.tree
	c := multiplier(rng, o.eps)
	ext := t.ExternalNodeCount()
	for n := ext; n < t.NodeCount(); n++ {
		h := t.NodeHeight(n) * c
		for _, ch := range t.Children(n) {
			if t.IsExternal(ch) && t.NodeHeight(ch) > h {
				return Failed("scaled node below a sampled tip")
			}
		}
	}
	t.BeginEdit()
	heights := make([]float64, t.NodeCount())
	for n := ext; n < t.NodeCount(); n++ {
		heights[n] = t.NodeHeight(n) * c
	}
	for n := ext; n < t.NodeCount(); n++ {
		t.SetNodeHeight(n, heights[n])
	}
	t.EndEdit()
	return Proposed(float64(t.InternalNodeCount()) * math.Log(c))
}

func (o *TreeScale) Tuning() float64           { return o.eps }
func (o *TreeScale) SetTuning(v float64)       { o.eps = v }
func (o *TreeScale) TargetAcceptance() float64 { return DefaultTarget }

//SubtreeSlide moves the parent of a random node up or down by a uniform
//step, pruning and regrafting the subtree whenever the new height passes
//another node.
type SubtreeSlide struct {
	common
	tree *tree.Tree
	size float64
}

//NewSubtreeSlide will build a subtree slide with window size.
func NewSubtreeSlide(name string, weight float64, t *tree.Tree, size float64) *SubtreeSlide {
	return &SubtreeSlide{common: common{name, weight}, tree: t, size: size}
}

//Operate implements Operator.
func (o *SubtreeSlide) Operate(rng *rand.Rand) Result {
	t := o.tree
	if !t.IsBinary() {
		return Failed("subtree slide needs a binary tree")
	}
	i := randomNonRoot(rng, t)
	iP := t.Parent(i)
	ciP := t.Sibling(i)
	piP := t.Parent(iP)
	delta := o.size * (rng.Float64() - 0.5)
	oldHeight := t.NodeHeight(iP)
	newHeight := oldHeight + delta

	if delta > 0 {
		if piP >= 0 && t.NodeHeight(piP) < newHeight {
			newParent, newChild := piP, iP
			for t.NodeHeight(newParent) < newHeight {
				newChild = newParent
				newParent = t.Parent(newParent)
				if newParent < 0 {
					break
				}
			}
			t.BeginEdit()
			t.RemoveChild(iP, ciP)
			t.RemoveChild(piP, iP)
			if newParent < 0 {
				t.AddChild(iP, newChild)
				t.AddChild(piP, ciP)
				t.SetRoot(iP)
			} else {
				t.RemoveChild(newParent, newChild)
				t.AddChild(iP, newChild)
				t.AddChild(piP, ciP)
				t.AddChild(newParent, iP)
			}
			t.SetNodeHeight(iP, newHeight)
			t.EndEdit()
			sources := intersectingEdges(t, newChild, oldHeight, nil)
			return Proposed(-math.Log(float64(sources)))
		}
		t.BeginEdit()
		t.SetNodeHeight(iP, newHeight)
		t.EndEdit()
		return Proposed(0)
	}

	if t.NodeHeight(i) > newHeight {
		return Failed("slid below the moving subtree")
	}
	if t.NodeHeight(ciP) > newHeight {
		var targets []int
		destinations := intersectingEdges(t, ciP, newHeight, &targets)
		if len(targets) == 0 {
			return Failed("no edge at the new height")
		}
		newChild := targets[rng.IntN(len(targets))]
		newParent := t.Parent(newChild)
		t.BeginEdit()
		if piP < 0 {
			t.RemoveChild(iP, ciP)
			t.RemoveChild(newParent, newChild)
			t.AddChild(iP, newChild)
			t.AddChild(newParent, iP)
			t.SetRoot(ciP)
		} else {
			t.RemoveChild(iP, ciP)
			t.RemoveChild(piP, iP)
			t.RemoveChild(newParent, newChild)
			t.AddChild(iP, newChild)
			t.AddChild(piP, ciP)
			t.AddChild(newParent, iP)
		}
		t.SetNodeHeight(iP, newHeight)
		t.EndEdit()
		return Proposed(math.Log(float64(destinations)))
	}
	t.BeginEdit()
	t.SetNodeHeight(iP, newHeight)
	t.EndEdit()
	return Proposed(0)
}

//intersectingEdges counts the edges in the subtree at n (including the
//edge above n) that span height h, collecting their lower nodes.
func intersectingEdges(t *tree.Tree, n int, h float64, out *[]int) int {
	if p := t.Parent(n); p >= 0 && t.NodeHeight(p) < h {
		return 0
	}
	if t.NodeHeight(n) < h {
		if out != nil {
			*out = append(*out, n)
		}
		return 1
	}
	count := 0
	for _, c := range t.Children(n) {
		count += intersectingEdges(t, c, h, out)
	}
	return count
}

func (o *SubtreeSlide) Tuning() float64           { return o.size }
func (o *SubtreeSlide) SetTuning(v float64)       { o.size = v }
func (o *SubtreeSlide) TargetAcceptance() float64 { return DefaultTarget }

func exchange(t *tree.Tree, i, j, iP, jP int) {
	t.BeginEdit()
	t.RemoveChild(iP, i)
	t.RemoveChild(jP, j)
	t.AddChild(jP, i)
	t.AddChild(iP, j)
	t.EndEdit()
}

//NarrowExchange swaps a node with its uncle when the uncle is younger
//than the node's parent.
type NarrowExchange struct {
	common
	tree *tree.Tree
}

//NewNarrowExchange will build the operator on t.
func NewNarrowExchange(name string, weight float64, t *tree.Tree) *NarrowExchange {
	return &NarrowExchange{common: common{name, weight}, tree: t}
}

//Operate implements Operator.
func (o *NarrowExchange) Operate(rng *rand.Rand) Result {
	t := o.tree
	if t.ExternalNodeCount() < 3 || !t.IsBinary() {
		return Failed("narrow exchange needs a binary tree of three or more taxa")
	}
	var candidates []int
	for n := 0; n < t.NodeCount(); n++ {
		if p := t.Parent(n); p >= 0 && t.Parent(p) >= 0 {
			candidates = append(candidates, n)
		}
	}
	i := candidates[rng.IntN(len(candidates))]
	iP := t.Parent(i)
	iG := t.Parent(iP)
	uncle := t.Sibling(iP)
	if t.NodeHeight(uncle) >= t.NodeHeight(iP) {
		return Failed("uncle older than parent")
	}
	exchange(t, i, uncle, iP, iG)
	return Proposed(0)
}

//WideExchange swaps two random subtrees anywhere in the tree when both
//fit below the other's parent.
type WideExchange struct {
	common
	tree *tree.Tree
}

//NewWideExchange will build the operator on t.
func NewWideExchange(name string, weight float64, t *tree.Tree) *WideExchange {
	return &WideExchange{common: common{name, weight}, tree: t}
}

//Operate implements Operator.
func (o *WideExchange) Operate(rng *rand.Rand) Result {
	t := o.tree
	if t.NodeCount() < 3 {
		return Failed("tree too small")
	}
	i := randomNonRoot(rng, t)
	j := i
	for j == i {
		j = randomNonRoot(rng, t)
	}
	iP, jP := t.Parent(i), t.Parent(j)
	if iP == jP || i == jP || j == iP ||
		t.NodeHeight(j) >= t.NodeHeight(iP) || t.NodeHeight(i) >= t.NodeHeight(jP) {
		return Failed("subtrees cannot be exchanged")
	}
	exchange(t, i, j, iP, jP)
	return Proposed(0)
}

//WilsonBalding prunes a subtree together with its parent node and
//regrafts it on a random edge at a uniform height.
type WilsonBalding struct {
	common
	tree *tree.Tree
}

//NewWilsonBalding will build the operator on t.
func NewWilsonBalding(name string, weight float64, t *tree.Tree) *WilsonBalding {
	return &WilsonBalding{common: common{name, weight}, tree: t}
}

//Operate implements Operator. The Hastings ratio is the ratio of the
//height ranges available at the new and old attachment points.
func (o *WilsonBalding) Operate(rng *rand.Rand) Result {
	t := o.tree
	if t.ExternalNodeCount() < 3 || !t.IsBinary() {
		return Failed("Wilson-Balding needs a binary tree of three or more taxa")
	}
	var candidates []int
	for n := 0; n < t.NodeCount(); n++ {
		if p := t.Parent(n); p >= 0 && t.Parent(p) >= 0 {
			candidates = append(candidates, n)
		}
	}
	i := candidates[rng.IntN(len(candidates))]
	iP := t.Parent(i)
	ciP := t.Sibling(i)
	piP := t.Parent(iP)

	j := rng.IntN(t.NodeCount())
	if t.IsRoot(j) || j == i || j == iP || j == ciP || t.IsAncestor(i, j) {
		return Failed("no valid attachment edge")
	}
	jP := t.Parent(j)
	newMin := math.Max(t.NodeHeight(i), t.NodeHeight(j))
	newMax := t.NodeHeight(jP)
	if newMax <= newMin {
		return Failed("attachment edge younger than the subtree")
	}
	oldMin := math.Max(t.NodeHeight(i), t.NodeHeight(ciP))
	oldRange := t.NodeHeight(piP) - oldMin
	newRange := newMax - newMin
	newHeight := newMin + rng.Float64()*newRange

	t.BeginEdit()
	t.RemoveChild(piP, iP)
	t.RemoveChild(iP, ciP)
	t.AddChild(piP, ciP)
	t.RemoveChild(jP, j)
	t.AddChild(iP, j)
	t.AddChild(jP, iP)
	t.SetNodeHeight(iP, newHeight)
	t.EndEdit()
	return Proposed(math.Log(newRange / oldRange))
}
