// Package likelihood computes the probability of an alignment given a
// tree, a site model and branch rates, recomputing only the partials an
// edit invalidated.
//
// Each node owns two partial buffers and two transition matrix buffers.
// Recomputing a node writes into the buffer not in use at the last store,
// so restore is an index swap. A tree event naming a node dirties the
// matrices on the branches whose length it changed and the partials on
// the path from that node to the root.
package likelihood

import (
	"fmt"
	"log/slog"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/tomopfuku/gobeast/alignment"
	"github.com/tomopfuku/gobeast/clock"
	"github.com/tomopfuku/gobeast/model"
	"github.com/tomopfuku/gobeast/sitemodel"
	"github.com/tomopfuku/gobeast/tree"
)

//TreeLikelihood is the incremental Felsenstein pruning evaluator.
type TreeLikelihood struct {
	model.Base
	tree     *tree.Tree
	patterns *alignment.Patterns
	site     *sitemodel.SiteModel
	rates    clock.BranchRates
	logger   *slog.Logger

	nodeCount, patternCount, catCount, stateCount int

	tipStates   [][]int     // leaf -> pattern -> state, -1 when ambiguous
	tipPartials [][]float64 // leaf -> pattern*state, nil when unambiguous

	partials [2][][]float64 // buffer -> node -> cat*pattern*state
	scales   [2][][]float64 // buffer -> node -> pattern, log scale factors
	matrices [2][][]float64 // buffer -> node -> cat*state*state

	partialIdx, matrixIdx             []int
	storedPartialIdx, storedMatrixIdx []int
	partialFlipped, matrixFlipped     []bool

	partialDirty, matrixDirty             []bool
	storedPartialDirty, storedMatrixDirty []bool

	scaling      bool
	logL         float64
	known        bool
	storedLogL   float64
	storedKnown  bool
	recomputed   int
	patternLogL  []float64
	childUpdated []bool
}

//Option configures a TreeLikelihood.
type Option func(*TreeLikelihood)

//WithScaling turns partial rescaling on from the first evaluation.
func WithScaling() Option {
	return func(l *TreeLikelihood) { l.scaling = true }
}

//WithLogger sets the logger used for numerical warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(l *TreeLikelihood) { l.logger = logger }
}

//New will size every buffer from the tree, patterns and site model.
//rates may be nil, meaning every branch evolves at rate 1.
func New(id string, t *tree.Tree, p *alignment.Patterns, site *sitemodel.SiteModel, rates clock.BranchRates, opts ...Option) (*TreeLikelihood, error) {
	if t.ExternalNodeCount() < 2 {
		return nil, ErrTooFewTaxa
	}
	if p.StateCount() != site.SubstitutionModel().StateCount() {
		return nil, fmt.Errorf("%w: %d vs %d", ErrStateCount, p.StateCount(), site.SubstitutionModel().StateCount())
	}
	l := &TreeLikelihood{
		tree:         t,
		patterns:     p,
		site:         site,
		rates:        rates,
		logger:       slog.Default(),
		nodeCount:    t.NodeCount(),
		patternCount: p.PatternCount(),
		catCount:     site.CategoryCount(),
		stateCount:   p.StateCount(),
	}
	for _, o := range opts {
		o(l)
	}
	if err := l.setTips(); err != nil {
		return nil, fmt.Errorf("%s: %w", id, err)
	}
	l.allocate()
	l.Init(id, l)
	l.AddModel(t)
	l.AddModel(site)
	if rates != nil {
		l.AddModel(rates)
	}
	l.markAll()
	return l, nil
}

func (l *TreeLikelihood) setTips() error {
	ext := l.tree.ExternalNodeCount()
	l.tipStates = make([][]int, ext)
	l.tipPartials = make([][]float64, ext)
	for n := 0; n < ext; n++ {
		row, ok := l.patterns.TaxonIndex(l.tree.Taxon(n))
		if !ok {
			return fmt.Errorf("%w: %s", ErrMissingTaxon, l.tree.Taxon(n))
		}
		masks := l.patterns.States[row]
		states := make([]int, l.patternCount)
		ambiguous := false
		for k, m := range masks {
			if alignment.IsAmbiguous(m) {
				states[k] = -1
				ambiguous = true
				continue
			}
			states[k] = alignment.StateIndex(m)
		}
		l.tipStates[n] = states
		if !ambiguous {
			continue
		}
		part := make([]float64, l.patternCount*l.stateCount)
		for k, m := range masks {
			for s := 0; s < l.stateCount; s++ {
				if m&(1<<s) != 0 {
					part[k*l.stateCount+s] = 1
				}
			}
		}
		l.tipPartials[n] = part
	}
	return nil
}

func (l *TreeLikelihood) allocate() {
	n, ext := l.nodeCount, l.tree.ExternalNodeCount()
	psize := l.catCount * l.patternCount * l.stateCount
	msize := l.catCount * l.stateCount * l.stateCount
	for b := 0; b < 2; b++ {
		l.partials[b] = make([][]float64, n)
		l.scales[b] = make([][]float64, n)
		l.matrices[b] = make([][]float64, n)
		for i := 0; i < n; i++ {
			l.matrices[b][i] = make([]float64, msize)
			if i >= ext {
				l.partials[b][i] = make([]float64, psize)
				l.scales[b][i] = make([]float64, l.patternCount)
			}
		}
	}
	l.partialIdx = make([]int, n)
	l.matrixIdx = make([]int, n)
	l.storedPartialIdx = make([]int, n)
	l.storedMatrixIdx = make([]int, n)
	l.partialFlipped = make([]bool, n)
	l.matrixFlipped = make([]bool, n)
	l.partialDirty = make([]bool, n)
	l.matrixDirty = make([]bool, n)
	l.storedPartialDirty = make([]bool, n)
	l.storedMatrixDirty = make([]bool, n)
	l.patternLogL = make([]float64, l.patternCount)
	l.childUpdated = make([]bool, n)
}

//Tree returns the tree being evaluated.
func (l *TreeLikelihood) Tree() *tree.Tree {
	return l.tree
}

//RecomputedPartials returns how many node partials the last call to
//LogLikelihood recomputed (0 when it returned the cached value).
func (l *TreeLikelihood) RecomputedPartials() int {
	return l.recomputed
}

//Scaling reports whether partial rescaling is on.
func (l *TreeLikelihood) Scaling() bool {
	return l.scaling
}

//PatternLogLikelihoods returns the per-pattern log likelihoods of the
//last evaluation.
func (l *TreeLikelihood) PatternLogLikelihoods() []float64 {
	return l.patternLogL
}

//MakeDirty implements model.Likelihood.
func (l *TreeLikelihood) MakeDirty() {
	l.markAll()
}

func (l *TreeLikelihood) markAll() {
	for i := range l.partialDirty {
		l.partialDirty[i] = true
		l.matrixDirty[i] = true
	}
	l.known = false
}

func (l *TreeLikelihood) markPathToRoot(n int) {
	for cur := n; cur >= 0; cur = l.tree.Parent(cur) {
		if l.partialDirty[cur] {
			// everything above is already marked
			if cur != n {
				return
			}
		}
		l.partialDirty[cur] = true
	}
}

//LogLikelihood implements model.Likelihood.
func (l *TreeLikelihood) LogLikelihood() (float64, error) {
	l.recomputed = 0
	if l.known {
		return l.logL, nil
	}
	v := l.calculate()
	if math.IsNaN(v) || math.IsInf(v, 0) {
		if !l.scaling {
			l.logger.Warn("log likelihood not finite, switching on partial rescaling",
				slog.String("likelihood", l.ID()), slog.Float64("value", v))
			l.scaling = true
			l.markAll()
			v = l.calculate()
		}
		if math.IsNaN(v) || math.IsInf(v, 1) {
			return v, fmt.Errorf("%s: %w (got %g)", l.ID(), ErrNumericalFailure, v)
		}
	}
	l.logL = v
	l.known = true
	return v, nil
}

func (l *TreeLikelihood) calculate() float64 {
	if l.tree.NodeCount() != l.nodeCount {
		panic(fmt.Errorf("%s: %w: %d nodes, buffers for %d", l.ID(), ErrBufferMismatch, l.tree.NodeCount(), l.nodeCount))
	}
	rates := l.site.CategoryRates()
	subst := l.site.SubstitutionModel()
	S := l.stateCount
	root := l.tree.Root()
	for i := range l.childUpdated {
		l.childUpdated[i] = false
	}
	for _, n := range l.tree.Postorder() {
		updated := false
		if !l.tree.IsExternal(n) && (l.partialDirty[n] || l.childUpdated[n]) {
			l.updatePartial(n)
			l.recomputed++
			updated = true
		}
		l.partialDirty[n] = false
		if n != root && l.matrixDirty[n] {
			if !l.matrixFlipped[n] {
				l.matrixIdx[n] ^= 1
				l.matrixFlipped[n] = true
			}
			m := l.matrices[l.matrixIdx[n]][n]
			branch := l.tree.BranchLength(n)
			if l.rates != nil {
				branch *= l.rates.BranchRate(n)
			}
			for c := 0; c < l.catCount; c++ {
				subst.TransitionProbabilities(branch*rates[c], m[c*S*S:(c+1)*S*S])
			}
			l.matrixDirty[n] = false
			updated = true
		}
		if updated {
			if p := l.tree.Parent(n); p >= 0 {
				l.childUpdated[p] = true
			}
		}
	}
	return l.integrateRoot(root)
}

func (l *TreeLikelihood) updatePartial(n int) {
	if !l.partialFlipped[n] {
		l.partialIdx[n] ^= 1
		l.partialFlipped[n] = true
	}
	buf := l.partialIdx[n]
	dst := l.partials[buf][n]
	for i := range dst {
		dst[i] = 1
	}
	S, P := l.stateCount, l.patternCount
	for _, c := range l.tree.Children(n) {
		m := l.matrices[l.matrixIdx[c]][c]
		switch {
		case l.tree.IsExternal(c) && l.tipPartials[c] == nil:
			states := l.tipStates[c]
			for cat := 0; cat < l.catCount; cat++ {
				mc := m[cat*S*S : (cat+1)*S*S]
				for k := 0; k < P; k++ {
					d := dst[(cat*P+k)*S : (cat*P+k+1)*S]
					s := states[k]
					for i := 0; i < S; i++ {
						d[i] *= mc[i*S+s]
					}
				}
			}
		default:
			for cat := 0; cat < l.catCount; cat++ {
				mc := m[cat*S*S : (cat+1)*S*S]
				for k := 0; k < P; k++ {
					var cp []float64
					if l.tree.IsExternal(c) {
						cp = l.tipPartials[c][k*S : (k+1)*S]
					} else {
						cp = l.partials[l.partialIdx[c]][c][(cat*P+k)*S : (cat*P+k+1)*S]
					}
					d := dst[(cat*P+k)*S : (cat*P+k+1)*S]
					for i := 0; i < S; i++ {
						sum := 0.
						for j := 0; j < S; j++ {
							sum += mc[i*S+j] * cp[j]
						}
						d[i] *= sum
					}
				}
			}
		}
	}
	scale := l.scales[buf][n]
	for k := range scale {
		scale[k] = 0
	}
	if !l.scaling {
		return
	}
	for k := 0; k < P; k++ {
		max := 0.
		for cat := 0; cat < l.catCount; cat++ {
			for _, v := range dst[(cat*P+k)*S : (cat*P+k+1)*S] {
				if v > max {
					max = v
				}
			}
		}
		if max <= 0 {
			continue
		}
		for cat := 0; cat < l.catCount; cat++ {
			d := dst[(cat*P+k)*S : (cat*P+k+1)*S]
			for i := range d {
				d[i] /= max
			}
		}
		scale[k] = math.Log(max)
	}
}

func (l *TreeLikelihood) integrateRoot(root int) float64 {
	S, P := l.stateCount, l.patternCount
	freqs := l.site.SubstitutionModel().Frequencies()
	props := l.site.CategoryProportions()
	rp := l.partials[l.partialIdx[root]][root]
	ext := l.tree.ExternalNodeCount()
	for k := 0; k < P; k++ {
		site := 0.
		for cat := 0; cat < l.catCount; cat++ {
			site += props[cat] * floats.Dot(freqs, rp[(cat*P+k)*S:(cat*P+k+1)*S])
		}
		v := math.Log(site)
		for n := ext; n < l.nodeCount; n++ {
			v += l.scales[l.partialIdx[n]][n][k]
		}
		l.patternLogL[k] = v
	}
	return floats.Dot(l.patterns.Weights, l.patternLogL)
}

//HandleModelChanged marks what an upstream change invalidated.
func (l *TreeLikelihood) HandleModelChanged(ev model.Event) {
	l.known = false
	src, ok := ev.Source.(*tree.Tree)
	if !ok || src != l.tree {
		// substitution, site or clock change: every matrix is stale
		l.markAll()
		return
	}
	cs, _ := ev.Detail.(tree.ChangeSet)
	if cs == nil || cs.All() {
		l.markAll()
		return
	}
	for _, ch := range cs {
		n := ch.Node
		switch ch.Kind {
		case tree.HeightChanged:
			l.matrixDirty[n] = true
			for _, c := range l.tree.Children(n) {
				l.matrixDirty[c] = true
			}
			l.markPathToRoot(n)
		case tree.LengthChanged:
			l.matrixDirty[n] = true
			if p := l.tree.Parent(n); p >= 0 {
				l.markPathToRoot(p)
			}
		case tree.TopologyChanged:
			l.matrixDirty[n] = true
			for _, c := range l.tree.Children(n) {
				l.matrixDirty[c] = true
			}
			l.markPathToRoot(n)
		}
	}
}

func (l *TreeLikelihood) HandleParameterChanged(*model.Parameter, int) {
	l.markAll()
}

func (l *TreeLikelihood) StoreState() {
	copy(l.storedPartialIdx, l.partialIdx)
	copy(l.storedMatrixIdx, l.matrixIdx)
	copy(l.storedPartialDirty, l.partialDirty)
	copy(l.storedMatrixDirty, l.matrixDirty)
	for i := range l.partialFlipped {
		l.partialFlipped[i] = false
		l.matrixFlipped[i] = false
	}
	l.storedLogL = l.logL
	l.storedKnown = l.known
}

func (l *TreeLikelihood) RestoreState() {
	l.partialIdx, l.storedPartialIdx = l.storedPartialIdx, l.partialIdx
	l.matrixIdx, l.storedMatrixIdx = l.storedMatrixIdx, l.matrixIdx
	l.partialDirty, l.storedPartialDirty = l.storedPartialDirty, l.partialDirty
	l.matrixDirty, l.storedMatrixDirty = l.storedMatrixDirty, l.matrixDirty
	for i := range l.partialFlipped {
		l.partialFlipped[i] = false
		l.matrixFlipped[i] = false
	}
	l.logL = l.storedLogL
	l.known = l.storedKnown
}

func (l *TreeLikelihood) AcceptState() {
	for i := range l.partialFlipped {
		l.partialFlipped[i] = false
		l.matrixFlipped[i] = false
	}
}
