// Package mcmc drives the sampler: a Metropolis-Hastings chain over a
// model graph, and Metropolis-coupled chains (MC3) that run heated
// copies in parallel and swap temperatures between them.
package mcmc

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/tomopfuku/gobeast/checkpoint"
	"github.com/tomopfuku/gobeast/loggers"
	"github.com/tomopfuku/gobeast/model"
	"github.com/tomopfuku/gobeast/operators"
	"github.com/tomopfuku/gobeast/tree"
)

//State is the lifecycle of a chain.
type State int32

const (
	Initializing State = iota
	Running
	Paused
	Finished
)

func (s State) String() string {
	switch s {
	case Initializing:
		return "initializing"
	case Running:
		return "running"
	case Paused:
		return "paused"
	case Finished:
		return "finished"
	}
	return "unknown"
}

//Options configures a chain. Zero values of the periodic settings turn
//the corresponding behaviour off.
type Options struct {
	ChainLength int
	// TuneEvery is the window, in iterations, over which operator
	// acceptance is measured before adapting; tuning stops after
	// TuneUntil iterations.
	TuneEvery int
	TuneUntil int
	// FullEvaluationEvery is the period of the consistency check that
	// recomputes the posterior from scratch.
	FullEvaluationEvery int
	// Temperature is the power the posterior is raised to; 0 means 1.
	Temperature float64
	Seed        uint64
	RunID       string
	// Name labels the chain in logs and metrics.
	Name   string
	Logger *slog.Logger
}

const seedMix = 0x9e3779b97f4a7c15

//tolerance is the allowed drift between the cached posterior and a full
//recomputation, relative to the magnitude of the posterior above 1.
const tolerance = 1e-6

type recomputer interface {
	RecomputedPartials() int
}

//Chain is one Metropolis-Hastings sampler over a model graph.
type Chain struct {
	prior      model.Likelihood
	likelihood model.Likelihood
	posterior  *model.Compound
	schedule   *operators.Schedule
	pcg        *rand.PCG
	rng        *rand.Rand
	opts       Options
	logger     *slog.Logger
	loggers    []loggers.Logger
	source     loggers.Source

	beta        float64
	iteration   int
	curPrior    float64
	curLike     float64
	initialized bool

	state  atomic.Int32
	resume chan struct{}

	params      []*model.Parameter
	trees       []*tree.Tree
	recomputers []recomputer
	columns     []model.Column
}

//New will build a chain sampling prior × likelihood with the operators
//of schedule. Every parameter an operator touches must be reachable from
//the prior or the likelihood so that it is stored and restored with the
//rest of the graph.
func New(prior, likelihood model.Likelihood, schedule *operators.Schedule, opts Options) (*Chain, error) {
	if schedule == nil || schedule.Len() == 0 {
		return nil, fmt.Errorf("chain needs at least one operator")
	}
	if opts.ChainLength <= 0 {
		return nil, fmt.Errorf("chain length must be positive, got %d", opts.ChainLength)
	}
	if opts.Temperature == 0 {
		opts.Temperature = 1
	}
	if opts.Temperature < 0 || opts.Temperature > 1 {
		return nil, fmt.Errorf("temperature must be in (0, 1], got %g", opts.Temperature)
	}
	if opts.Name == "" {
		opts.Name = "0"
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	pcg := rand.NewPCG(opts.Seed, opts.Seed^seedMix)
	c := &Chain{
		prior:      prior,
		likelihood: likelihood,
		posterior:  model.NewCompound("posterior", prior, likelihood),
		schedule:   schedule,
		pcg:        pcg,
		rng:        rand.New(pcg),
		opts:       opts,
		logger:     logger.With(slog.String("chain", opts.Name)),
		beta:       opts.Temperature,
		resume:     make(chan struct{}, 1),
	}
	c.source = c
	c.params = model.AllParameters(c.posterior)
	seen := make(map[string]bool, len(c.params))
	for _, p := range c.params {
		if seen[p.ID()] {
			return nil, fmt.Errorf("two parameters share the id %q", p.ID())
		}
		seen[p.ID()] = true
	}
	model.Walk(c.posterior, func(m model.Model) {
		if t, ok := m.(*tree.Tree); ok {
			c.trees = append(c.trees, t)
		}
		if r, ok := m.(recomputer); ok {
			c.recomputers = append(c.recomputers, r)
		}
	})
	c.columns = c.buildColumns()
	return c, nil
}

func (c *Chain) buildColumns() []model.Column {
	cols := []model.Column{
		{Label: "posterior", Value: c.LogPosterior},
		{Label: "prior", Value: func() float64 { return c.curPrior }},
		{Label: "likelihood", Value: func() float64 { return c.curLike }},
	}
	for _, t := range c.trees {
		t := t
		cols = append(cols, model.Column{
			Label: t.ID() + ".rootHeight",
			Value: func() float64 { return t.NodeHeight(t.Root()) },
		})
	}
	for _, p := range c.params {
		cols = append(cols, p.Columns()...)
	}
	return cols
}

//AddLogger registers a logger. Loggers must be added before Run.
func (c *Chain) AddLogger(l loggers.Logger) {
	c.loggers = append(c.loggers, l)
}

//Columns implements loggers.Source.
func (c *Chain) Columns() []model.Column {
	return c.columns
}

//Trees implements loggers.Source.
func (c *Chain) Trees() []*tree.Tree {
	return c.trees
}

//Posterior returns the compound prior × likelihood the chain samples.
func (c *Chain) Posterior() *model.Compound {
	return c.posterior
}

//Schedule returns the operator schedule.
func (c *Chain) Schedule() *operators.Schedule {
	return c.schedule
}

//Iteration returns the number of completed iterations.
func (c *Chain) Iteration() int {
	return c.iteration
}

//Temperature returns the current power of the posterior.
func (c *Chain) Temperature() float64 {
	return c.beta
}

//LogPosterior returns the log posterior of the current state.
func (c *Chain) LogPosterior() float64 {
	return c.curPrior + c.curLike
}

//LogPrior returns the log prior of the current state.
func (c *Chain) LogPrior() float64 {
	return c.curPrior
}

//LogLikelihood returns the log likelihood of the current state.
func (c *Chain) LogLikelihood() float64 {
	return c.curLike
}

//State returns the lifecycle state.
func (c *Chain) State() State {
	return State(c.state.Load())
}

func bad(v float64) bool {
	return math.IsNaN(v) || math.IsInf(v, -1)
}

//Initialize evaluates the starting state. A starting posterior of zero
//probability is ErrZeroStart.
func (c *Chain) Initialize() error {
	if c.initialized {
		return nil
	}
	c.posterior.MakeDirty()
	p, l, err := c.evaluate(true)
	if err != nil {
		return err
	}
	if bad(p + l) {
		return fmt.Errorf("%w: log prior %g, log likelihood %g", ErrZeroStart, p, l)
	}
	c.curPrior, c.curLike = p, l
	c.initialized = true
	logPosterior.WithLabelValues(c.opts.Name).Set(p + l)
	temperatureGauge.WithLabelValues(c.opts.Name).Set(c.beta)
	c.logger.Info("chain initialized",
		slog.Float64("log_prior", p),
		slog.Float64("log_likelihood", l),
		slog.Float64("temperature", c.beta))
	return nil
}

//evaluate returns the log prior and log likelihood of the graph. Unless
//always is set, the likelihood is skipped when the prior already rules
//the state out and comes back as NaN.
func (c *Chain) evaluate(always bool) (float64, float64, error) {
	p, err := c.prior.LogLikelihood()
	if err != nil {
		return 0, 0, fmt.Errorf("%s: %w", c.prior.ID(), err)
	}
	if bad(p) && !always {
		return p, math.NaN(), nil
	}
	l, err := c.likelihood.LogLikelihood()
	if err != nil {
		return 0, 0, fmt.Errorf("%s: %w", c.likelihood.ID(), err)
	}
	for _, r := range c.recomputers {
		partialsRecomputed.Add(float64(r.RecomputedPartials()))
	}
	return p, l, nil
}

//Step performs one proposal: pick an operator, store the graph, operate,
//evaluate and accept or restore.
func (c *Chain) Step() (operators.Outcome, error) {
	start := time.Now()
	defer func() { stepDuration.Observe(time.Since(start).Seconds()) }()

	i := c.schedule.Next(c.rng)
	op := c.schedule.Operator(i)
	c.posterior.StoreModelState()
	res := op.Operate(c.rng)
	if !res.OK() {
		c.posterior.RestoreModelState()
		c.record(i, op, operators.FailedProposal)
		return operators.FailedProposal, nil
	}
	// Gibbs moves are always accepted, so their likelihood is always kept
	_, gibbs := op.(operators.Gibbs)
	p, l, err := c.evaluate(gibbs)
	if err != nil {
		c.posterior.RestoreModelState()
		return operators.Rejected, fmt.Errorf("iteration %d, operator %s: %w", c.iteration, op.Name(), err)
	}
	if gibbs || c.accept(res.LogHR, p+l) {
		c.posterior.AcceptModelState()
		c.curPrior, c.curLike = p, l
		c.record(i, op, operators.Accepted)
		return operators.Accepted, nil
	}
	c.posterior.RestoreModelState()
	c.record(i, op, operators.Rejected)
	return operators.Rejected, nil
}

func (c *Chain) accept(logHR, proposed float64) bool {
	if bad(proposed) || math.IsNaN(logHR) {
		return false
	}
	r := logHR + (proposed-c.LogPosterior())*c.beta
	return math.Log(c.rng.Float64()) < r
}

func (c *Chain) record(i int, op operators.Operator, o operators.Outcome) {
	c.schedule.Record(i, o)
	outcome := "rejected"
	switch o {
	case operators.Accepted:
		outcome = "accepted"
	case operators.FailedProposal:
		outcome = "failed"
	}
	proposalsTotal.WithLabelValues(op.Name(), outcome).Inc()
}

//CheckConsistency recomputes the posterior from scratch and compares it
//with the cached value.
func (c *Chain) CheckConsistency() error {
	fullEvaluations.Inc()
	cached := c.LogPosterior()
	c.posterior.MakeDirty()
	p, l, err := c.evaluate(true)
	if err != nil {
		return err
	}
	if full := p + l; !agree(cached, full) {
		return fmt.Errorf("%w: iteration %d, cached %g, recomputed %g", ErrInconsistent, c.iteration, cached, full)
	}
	c.curPrior, c.curLike = p, l
	return nil
}

func agree(a, b float64) bool {
	if a == b {
		return true
	}
	return math.Abs(a-b) <= tolerance*math.Max(1, math.Abs(a))
}

//Run samples until ChainLength iterations are complete, an error occurs
//or ctx is cancelled. Loggers see state 0 and every multiple of their
//period, then the final state.
func (c *Chain) Run(ctx context.Context) error {
	if !c.state.CompareAndSwap(int32(Initializing), int32(Running)) {
		return ErrNotRunnable
	}
	defer c.state.Store(int32(Finished))
	if err := c.Initialize(); err != nil {
		return err
	}
	c.startLoggers()
	if c.iteration == 0 {
		c.log(0)
	}
	err := c.advance(ctx, c.opts.ChainLength)
	c.finishLoggers()
	if err != nil {
		c.logger.Warn("chain stopped early", slog.Int("iteration", c.iteration), slog.Any("error", err))
		return err
	}
	c.logger.Info("chain complete", slog.Int("iterations", c.iteration), slog.Float64("log_posterior", c.LogPosterior()))
	return nil
}

//advance runs iterations until the chain has completed `until` of them.
func (c *Chain) advance(ctx context.Context, until int) error {
	for c.iteration < until {
		if err := c.waitWhilePaused(ctx); err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := c.Step(); err != nil {
			return err
		}
		c.iteration++
		if c.opts.TuneEvery > 0 && c.iteration <= c.opts.TuneUntil && c.iteration%c.opts.TuneEvery == 0 {
			c.schedule.Tune()
		}
		if c.opts.FullEvaluationEvery > 0 && c.iteration%c.opts.FullEvaluationEvery == 0 {
			if err := c.CheckConsistency(); err != nil {
				return err
			}
		}
		logPosterior.WithLabelValues(c.opts.Name).Set(c.LogPosterior())
		c.log(c.iteration)
	}
	return nil
}

//Pause asks a running chain to stop before its next iteration.
func (c *Chain) Pause() bool {
	return c.state.CompareAndSwap(int32(Running), int32(Paused))
}

//Resume lets a paused chain continue.
func (c *Chain) Resume() bool {
	if !c.state.CompareAndSwap(int32(Paused), int32(Running)) {
		return false
	}
	select {
	case c.resume <- struct{}{}:
	default:
	}
	return true
}

func (c *Chain) waitWhilePaused(ctx context.Context) error {
	for c.State() == Paused {
		select {
		case <-c.resume:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (c *Chain) startLoggers() {
	kept := c.loggers[:0]
	for _, l := range c.loggers {
		if err := l.Start(c.source); err != nil {
			c.loggerFailed(l, err)
			continue
		}
		kept = append(kept, l)
	}
	c.loggers = kept
}

func (c *Chain) log(iteration int) {
	for _, l := range c.loggers {
		if every := l.Every(); every <= 0 || iteration%every != 0 {
			continue
		}
		if err := l.Log(iteration, c.source); err != nil {
			c.loggerFailed(l, err)
		}
	}
}

func (c *Chain) finishLoggers() {
	for _, l := range c.loggers {
		if f, ok := l.(loggers.Finisher); ok {
			if err := f.Finish(c.iteration, c.source); err != nil {
				c.loggerFailed(l, err)
			}
		}
		if err := l.Stop(); err != nil {
			c.loggerFailed(l, err)
		}
	}
}

func (c *Chain) loggerFailed(l loggers.Logger, err error) {
	loggerFailures.WithLabelValues(l.Name()).Inc()
	c.logger.Warn("logger failed", slog.String("logger", l.Name()), slog.Any("error", err))
}

//Snapshot implements checkpoint.Snapshotter.
func (c *Chain) Snapshot(iteration int) (*checkpoint.State, error) {
	cs, err := c.chainState()
	if err != nil {
		return nil, err
	}
	return &checkpoint.State{
		RunID:     c.opts.RunID,
		Iteration: iteration,
		Chains:    []checkpoint.Chain{cs},
	}, nil
}

func (c *Chain) chainState() (checkpoint.Chain, error) {
	rng, err := c.pcg.MarshalBinary()
	if err != nil {
		return checkpoint.Chain{}, fmt.Errorf("chain %s: %w", c.opts.Name, err)
	}
	cs := checkpoint.Chain{
		Temperature: c.beta,
		RNG:         rng,
		Parameters:  make(map[string][]float64, len(c.params)),
		Trees:       make(map[string]tree.Arena, len(c.trees)),
		Tunings:     c.schedule.Tunings(),
		Stats:       c.schedule.AllStats(),
	}
	for _, p := range c.params {
		cs.Parameters[p.ID()] = append([]float64(nil), p.Values()...)
	}
	for _, t := range c.trees {
		cs.Trees[t.ID()] = t.Arena()
	}
	return cs, nil
}

//Restore puts the chain back into the state of a checkpoint taken by
//Snapshot, before Run.
func (c *Chain) Restore(st *checkpoint.State) error {
	if len(st.Chains) != 1 {
		return fmt.Errorf("%w: %d chains in checkpoint, expected 1", checkpoint.ErrIncompatible, len(st.Chains))
	}
	if err := c.loadChainState(st.Chains[0]); err != nil {
		return err
	}
	c.iteration = st.Iteration
	return nil
}

func (c *Chain) loadChainState(cs checkpoint.Chain) error {
	if c.State() != Initializing {
		return ErrNotRunnable
	}
	for _, p := range c.params {
		vs, ok := cs.Parameters[p.ID()]
		if !ok || len(vs) != p.Dimension() {
			return fmt.Errorf("%w: parameter %s", checkpoint.ErrIncompatible, p.ID())
		}
	}
	for _, t := range c.trees {
		if _, ok := cs.Trees[t.ID()]; !ok {
			return fmt.Errorf("%w: tree %s", checkpoint.ErrIncompatible, t.ID())
		}
	}
	if err := c.pcg.UnmarshalBinary(cs.RNG); err != nil {
		return fmt.Errorf("%w: random state: %v", checkpoint.ErrIncompatible, err)
	}
	for _, p := range c.params {
		p.SetValues(cs.Parameters[p.ID()])
	}
	for _, t := range c.trees {
		t.BeginEdit()
		err := t.LoadArena(cs.Trees[t.ID()])
		t.EndEdit()
		if err != nil {
			return fmt.Errorf("%w: tree %s: %v", checkpoint.ErrIncompatible, t.ID(), err)
		}
	}
	c.schedule.SetTunings(cs.Tunings)
	c.schedule.SetStats(cs.Stats)
	if cs.Temperature > 0 {
		c.beta = cs.Temperature
	}
	c.initialized = false
	return c.Initialize()
}
