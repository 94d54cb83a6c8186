// Package analysis turns an analysis document into model graphs and
// chains and runs them. Every chain of an MC3 run gets its own graph
// built from the same document.
package analysis

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"os"
	"strings"

	"github.com/tomopfuku/gobeast/alignment"
	"github.com/tomopfuku/gobeast/clock"
	"github.com/tomopfuku/gobeast/config"
	"github.com/tomopfuku/gobeast/likelihood"
	"github.com/tomopfuku/gobeast/model"
	"github.com/tomopfuku/gobeast/operators"
	"github.com/tomopfuku/gobeast/prior"
	"github.com/tomopfuku/gobeast/sitemodel"
	"github.com/tomopfuku/gobeast/substmodel"
	"github.com/tomopfuku/gobeast/tree"
)

//Graph is one posterior: the tree, the likelihood, the priors and the
//operators that move them.
type Graph struct {
	Tree       *tree.Tree
	Likelihood *likelihood.TreeLikelihood
	Prior      *model.Compound
	Schedule   *operators.Schedule

	params map[string]*model.Parameter
	gmrfs  map[string]*prior.GMRF
	priors map[string]config.Prior
}

//Parameter returns the parameter named id, or nil.
func (g *Graph) Parameter(id string) *model.Parameter {
	return g.params[id]
}

//ReadData reads and compresses the alignment the document names.
func ReadData(a *config.Analysis) (*alignment.Patterns, error) {
	aln, err := alignment.ReadFASTAFile(a.Path(a.Data.Alignment))
	if err != nil {
		return nil, &config.InputError{Element: "data.alignment", Err: err}
	}
	return alignment.Compress(aln), nil
}

//StartingTree builds the tree the chains start from: inline Newick, a
//Newick file or a random coalescent tree over the alignment's taxa.
//Multifurcations are resolved.
func StartingTree(a *config.Analysis, patterns *alignment.Patterns, rng *rand.Rand) (*tree.Tree, error) {
	var (
		t   *tree.Tree
		err error
	)
	switch {
	case a.Tree.Newick != "":
		t, err = adoptNewick(a.Tree.ID, a.Tree.Newick)
		if err != nil {
			return nil, &config.InputError{Element: "tree.newick", Err: err}
		}
	case a.Tree.File != "":
		data, rerr := os.ReadFile(a.Path(a.Tree.File))
		if rerr != nil {
			return nil, &config.InputError{Element: "tree.file", Err: rerr}
		}
		t, err = adoptNewick(a.Tree.ID, string(data))
		if err != nil {
			return nil, &config.InputError{Element: "tree.file", Err: err}
		}
	default:
		t, err = tree.RandomCoalescent(a.Tree.ID, patterns.Taxa, a.Tree.PopSize, rng)
		if err != nil {
			return nil, &config.InputError{Element: "tree", Err: err}
		}
	}
	if !t.IsBinary() {
		t.BeginEdit()
		t.Resolve()
		t.EndEdit()
	}
	return t, nil
}

func adoptNewick(id, s string) (*tree.Tree, error) {
	v, err := tree.ParseNewick(strings.TrimSpace(s))
	if err != nil {
		return nil, err
	}
	return tree.Adopt(id, v, tree.Lengths)
}

//BuildGraph builds one posterior over a private copy of start.
func BuildGraph(a *config.Analysis, patterns *alignment.Patterns, start *tree.Tree) (*Graph, error) {
	g := &Graph{
		Tree:   start.Copy(start.ID()),
		params: make(map[string]*model.Parameter),
		gmrfs:  make(map[string]*prior.GMRF),
		priors: make(map[string]config.Prior),
	}
	site, rates, err := g.substitution(a, patterns)
	if err != nil {
		return nil, err
	}
	var opts []likelihood.Option
	if a.Model.Scaling {
		opts = append(opts, likelihood.WithScaling())
	}
	g.Likelihood, err = likelihood.New("treeLikelihood", g.Tree, patterns, site, rates, opts...)
	if err != nil {
		return nil, &config.InputError{Element: "tree", Err: err}
	}
	if err := g.declare(a.Parameters); err != nil {
		return nil, err
	}
	if err := g.buildPriors(a); err != nil {
		return nil, err
	}
	if err := g.buildOperators(a); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *Graph) add(p *model.Parameter) *model.Parameter {
	g.params[p.ID()] = p
	return p
}

func positive(id string, v float64) *model.Parameter {
	return model.NewParameter(id, v).SetBounds(0, math.Inf(1))
}

//substitution builds the substitution, site and clock models.
func (g *Graph) substitution(a *config.Analysis, patterns *alignment.Patterns) (*sitemodel.SiteModel, clock.BranchRates, error) {
	m := a.Model
	var freqs *model.Parameter
	switch m.Frequencies.Kind {
	case "equal":
		freqs = substmodel.EqualFrequencies("frequencies", alignment.StateCount)
	case "empirical":
		freqs = model.NewParameter("frequencies", patterns.Frequencies()...).SetBounds(0, 1)
	default:
		freqs = model.NewParameter("frequencies", m.Frequencies.Values...).SetBounds(0, 1)
	}

	var (
		subst substmodel.Model
		err   error
	)
	switch m.Substitution {
	case "jc":
		subst = substmodel.NewJC("jc")
	case "hky":
		subst, err = substmodel.NewHKY("hky", g.add(positive("kappa", m.Kappa)), g.add(freqs))
	case "gtr":
		rates := model.NewParameter("rates", m.Rates...).SetBounds(0, math.Inf(1))
		subst, err = substmodel.NewGTR("gtr", g.add(rates), g.add(freqs))
	}
	if err != nil {
		return nil, nil, &config.InputError{Element: "model", Err: err}
	}

	var siteOpts []sitemodel.Option
	if m.Gamma != nil {
		siteOpts = append(siteOpts, sitemodel.WithGamma(g.add(positive("alpha", m.Gamma.Alpha)), m.Gamma.Categories))
	}
	if m.Invariant > 0 {
		siteOpts = append(siteOpts, sitemodel.WithInvariant(g.add(model.NewParameter("pInv", m.Invariant).SetBounds(0, 1))))
	}
	site, err := sitemodel.New("siteModel", subst, siteOpts...)
	if err != nil {
		return nil, nil, &config.InputError{Element: "model", Err: err}
	}
	return site, clock.NewStrict("clock", g.add(positive("clockRate", m.ClockRate))), nil
}

//declare adds the document's own parameters.
func (g *Graph) declare(ps []config.Parameter) error {
	for i, p := range ps {
		if _, ok := g.params[p.ID]; ok || p.ID == "popSize" {
			return config.Errorf(fmt.Sprintf("parameters[%d].id", i), "%q is already a model parameter", p.ID)
		}
		lo, hi := math.Inf(-1), math.Inf(1)
		if p.Lower != nil {
			lo = *p.Lower
		}
		if p.Upper != nil {
			hi = *p.Upper
		}
		param := model.NewParameter(p.ID, p.Values...).SetBounds(lo, hi)
		for _, v := range p.Values {
			if !param.InBounds(v) {
				return config.Errorf(fmt.Sprintf("parameters[%d].values", i), "%g outside [%g, %g]", v, lo, hi)
			}
		}
		g.add(param)
	}
	return nil
}

//defaultPriors are used for model parameters the document leaves
//without one. Document parameters have none.
var defaultPriors = []config.Prior{
	{Parameter: "kappa", Distribution: "lognormal", Args: []float64{1, 1.25}},
	{Parameter: "rates", Distribution: "gamma", Args: []float64{0.05, 0.1}},
	{Parameter: "alpha", Distribution: "exponential", Args: []float64{1}},
	{Parameter: "pInv", Distribution: "uniform", Args: []float64{0, 1}},
	{Parameter: "popSize", Distribution: "lognormal", Args: []float64{0, 2}},
}

//distributionArgs is the number of arguments each family takes.
var distributionArgs = map[string]int{
	"normal": 2, "lognormal": 2, "exponential": 1, "gamma": 2, "uniform": 2, "beta": 2, "gmrf": 0,
}

func (g *Graph) buildPriors(a *config.Analysis) error {
	g.Prior = model.NewCompound("prior")
	if a.TreePrior.Type == "coalescent" {
		pop := g.add(positive("popSize", a.TreePrior.PopSize))
		g.Prior.Add(prior.NewCoalescent("coalescent", g.Tree, pop))
	}
	for i, pr := range a.Priors {
		el := fmt.Sprintf("priors[%d]", i)
		if _, ok := g.params[pr.Parameter]; !ok {
			return config.Errorf(el+".parameter", "unknown parameter %q", pr.Parameter)
		}
		if _, dup := g.priors[pr.Parameter]; dup {
			return config.Errorf(el+".parameter", "second prior on %q", pr.Parameter)
		}
		if n := distributionArgs[pr.Distribution]; len(pr.Args) != n {
			return config.Errorf(el+".args", "%s takes %d arguments, got %d", pr.Distribution, n, len(pr.Args))
		}
		if err := g.addPrior(pr); err != nil {
			return &config.InputError{Element: el, Err: err}
		}
	}
	for _, pr := range defaultPriors {
		if _, ok := g.params[pr.Parameter]; ok {
			if _, set := g.priors[pr.Parameter]; !set {
				if err := g.addPrior(pr); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (g *Graph) addPrior(pr config.Prior) error {
	p := g.params[pr.Parameter]
	g.priors[pr.Parameter] = pr
	if pr.Distribution == "gmrf" {
		tau, ok := g.params[pr.Precision]
		if !ok {
			return fmt.Errorf("unknown precision parameter %q", pr.Precision)
		}
		if p.Dimension() < 2 {
			return fmt.Errorf("gmrf needs a vector parameter, %q has dimension %d", p.ID(), p.Dimension())
		}
		gm := prior.NewGMRF(p.ID()+".gmrf", p, tau)
		g.gmrfs[tau.ID()] = gm
		g.Prior.Add(gm)
		return nil
	}
	args := append(append([]float64(nil), pr.Args...), 0, 0)
	dist, err := prior.NewDistribution(pr.Distribution, args[0], args[1])
	if err != nil {
		return err
	}
	g.Prior.Add(prior.NewParametric(p.ID()+".prior", dist, p))
	return nil
}

//defaultOperators are the moves of a document without an operators
//section, skipping those whose parameter the model lacks.
var defaultOperators = []config.Operator{
	{Type: "scale", Parameter: "kappa", Weight: 1},
	{Type: "scale", Parameter: "rates", Weight: 1},
	{Type: "scale", Parameter: "alpha", Weight: 1},
	{Type: "random_walk", Parameter: "pInv", Weight: 1, Tuning: 0.1},
	{Type: "scale", Parameter: "popSize", Weight: 3},
	{Type: "subtree_slide", Weight: 15},
	{Type: "narrow_exchange", Weight: 15},
	{Type: "wide_exchange", Weight: 3},
	{Type: "wilson_balding", Weight: 3},
	{Type: "node_height_uniform", Weight: 30},
	{Type: "tree_scale", Weight: 3},
}

func (g *Graph) buildOperators(a *config.Analysis) error {
	ops := a.Operators
	explicit := len(ops) > 0
	if !explicit {
		for _, op := range defaultOperators {
			if op.Parameter == "" || g.params[op.Parameter] != nil {
				ops = append(ops, op)
			}
		}
	}
	g.Schedule, _ = operators.NewSchedule()
	names := make(map[string]int)
	for i, op := range ops {
		el := fmt.Sprintf("operators[%d]", i)
		// tunings and counters are checkpointed by name
		name := op.Type
		if op.Parameter != "" {
			name = op.Parameter + "." + op.Type
		}
		if n := names[name]; n > 0 {
			names[name]++
			name = fmt.Sprintf("%s.%d", name, n+1)
		} else {
			names[name] = 1
		}
		built, err := g.operator(op, name, a)
		if err != nil {
			var ie *config.InputError
			if errors.As(err, &ie) {
				ie.Element = el + "." + ie.Element
				return ie
			}
			return &config.InputError{Element: el, Err: err}
		}
		if err := g.Schedule.Add(built); err != nil {
			return &config.InputError{Element: el + ".weight", Err: err}
		}
	}
	return nil
}

func (g *Graph) operator(op config.Operator, name string, a *config.Analysis) (operators.Operator, error) {
	tuning := func(def float64) float64 {
		if op.Tuning > 0 {
			return op.Tuning
		}
		return def
	}
	var p *model.Parameter
	if op.Parameter != "" {
		p = g.params[op.Parameter]
		if p == nil {
			return nil, config.Errorf("parameter", "unknown parameter %q", op.Parameter)
		}
		if op.Type != "gmrf_gibbs" {
			if _, ok := g.priors[op.Parameter]; !ok {
				return nil, config.Errorf("parameter", "%q is sampled but has no prior", op.Parameter)
			}
		}
	}
	t := g.Tree
	switch op.Type {
	case "scale":
		return operators.NewScale(name, op.Weight, p, tuning(0.75), op.All), nil
	case "random_walk":
		return operators.NewRandomWalk(name, op.Weight, p, tuning(1)), nil
	case "uniform":
		if math.IsInf(p.Lower(), 0) || math.IsInf(p.Upper(), 0) {
			return nil, config.Errorf("parameter", "uniform needs finite bounds on %q", p.ID())
		}
		return operators.NewUniform(name, op.Weight, p), nil
	case "node_height_uniform":
		return operators.NewNodeHeightUniform(name, op.Weight, t), nil
	case "tree_scale":
		return operators.NewTreeScale(name, op.Weight, t, tuning(0.75)), nil
	case "subtree_slide":
		return operators.NewSubtreeSlide(name, op.Weight, t, tuning(t.NodeHeight(t.Root())/10)), nil
	case "narrow_exchange":
		return operators.NewNarrowExchange(name, op.Weight, t), nil
	case "wide_exchange":
		return operators.NewWideExchange(name, op.Weight, t), nil
	case "wilson_balding":
		return operators.NewWilsonBalding(name, op.Weight, t), nil
	case "gmrf_gibbs":
		gm, ok := g.gmrfs[p.ID()]
		if !ok {
			return nil, config.Errorf("parameter", "%q is not the precision of a gmrf prior", p.ID())
		}
		shape, rate := op.Shape, op.Rate
		if shape == 0 && rate == 0 {
			// take the hyperprior from a gamma prior on the precision
			if pr, ok := hyperprior(a, p.ID()); ok {
				shape, rate = pr.Args[0], pr.Args[1]
			}
		}
		if shape <= 0 || rate <= 0 {
			return nil, config.Errorf("shape", "gmrf_gibbs needs a positive gamma shape and rate")
		}
		return operators.NewGMRFPrecision(name, op.Weight, gm, shape, rate), nil
	}
	return nil, config.Errorf("type", "unknown operator %q", op.Type)
}

func hyperprior(a *config.Analysis, id string) (config.Prior, bool) {
	for _, pr := range a.Priors {
		if pr.Parameter == id && pr.Distribution == "gamma" && len(pr.Args) == 2 {
			return pr, true
		}
	}
	return config.Prior{}, false
}
