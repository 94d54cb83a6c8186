package mcmc

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"

	"golang.org/x/sync/errgroup"

	"github.com/tomopfuku/gobeast/checkpoint"
	"github.com/tomopfuku/gobeast/loggers"
	"github.com/tomopfuku/gobeast/model"
	"github.com/tomopfuku/gobeast/tree"
)

//MC3Options configures Metropolis-coupled chains.
type MC3Options struct {
	ChainLength int
	// SwapEvery is the number of iterations every chain runs between two
	// swap proposals.
	SwapEvery int
	// Temperatures gives each chain its power explicitly. When empty the
	// ladder is 1/(1+DeltaTemperature*i).
	Temperatures     []float64
	DeltaTemperature float64
	Seed             uint64
	RunID            string
	Logger           *slog.Logger
}

//MC3 runs heated chains side by side. The loggers always follow the
//chain at temperature 1.
type MC3 struct {
	chains     []*Chain
	opts       MC3Options
	pcg        *rand.PCG
	rng        *rand.Rand
	iteration  int
	checkpoint loggers.Logger
	logger     *slog.Logger
}

//Temperatures returns the ladder 1/(1+delta*i) for n chains.
func Temperatures(n int, delta float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 1 / (1 + delta*float64(i))
	}
	return out
}

//NewMC3 couples chains, each built over its own copy of the model graph.
//Loggers registered on any chain are moved to the cold chain.
func NewMC3(chains []*Chain, opts MC3Options) (*MC3, error) {
	if len(chains) < 2 {
		return nil, fmt.Errorf("MC3 needs at least two chains, got %d", len(chains))
	}
	if opts.SwapEvery <= 0 {
		return nil, fmt.Errorf("swap period must be positive, got %d", opts.SwapEvery)
	}
	if opts.ChainLength <= 0 {
		return nil, fmt.Errorf("chain length must be positive, got %d", opts.ChainLength)
	}
	temps := opts.Temperatures
	if len(temps) == 0 {
		if opts.DeltaTemperature <= 0 {
			return nil, fmt.Errorf("temperature increment must be positive, got %g", opts.DeltaTemperature)
		}
		temps = Temperatures(len(chains), opts.DeltaTemperature)
	}
	if len(temps) != len(chains) {
		return nil, fmt.Errorf("%d temperatures for %d chains", len(temps), len(chains))
	}
	cold := -1
	for i, t := range temps {
		if t <= 0 || t > 1 || math.IsNaN(t) {
			return nil, fmt.Errorf("temperature %d must be in (0, 1], got %g", i, t)
		}
		if t == 1 {
			if cold >= 0 {
				return nil, ErrTemperatures
			}
			cold = i
		}
	}
	if cold < 0 {
		return nil, ErrTemperatures
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	pcg := rand.NewPCG(opts.Seed, opts.Seed^seedMix)
	m := &MC3{
		chains: chains,
		opts:   opts,
		pcg:    pcg,
		rng:    rand.New(pcg),
		logger: logger,
	}
	var ls []loggers.Logger
	for i, c := range chains {
		c.beta = temps[i]
		c.opts.ChainLength = opts.ChainLength
		ls = append(ls, c.loggers...)
		c.loggers = nil
	}
	chains[cold].loggers = ls
	return m, nil
}

//SetCheckpoint registers the logger that saves the state of all chains.
//It runs between segments, when no chain is mid-iteration.
func (m *MC3) SetCheckpoint(l loggers.Logger) {
	m.checkpoint = l
}

//Chains returns the coupled chains.
func (m *MC3) Chains() []*Chain {
	return m.chains
}

//Iteration returns the number of iterations every chain has completed.
func (m *MC3) Iteration() int {
	return m.iteration
}

//Cold returns the chain at temperature 1.
func (m *MC3) Cold() *Chain {
	for _, c := range m.chains {
		if c.beta == 1 {
			return c
		}
	}
	// NewMC3 and swap keep exactly one cold chain.
	panic(ErrTemperatures)
}

//Columns implements loggers.Source for the cold chain.
func (m *MC3) Columns() []model.Column {
	return m.Cold().Columns()
}

//Trees implements loggers.Source for the cold chain.
func (m *MC3) Trees() []*tree.Tree {
	return m.Cold().Trees()
}

//Pause pauses every chain.
func (m *MC3) Pause() {
	for _, c := range m.chains {
		c.Pause()
	}
}

//Resume resumes every chain.
func (m *MC3) Resume() {
	for _, c := range m.chains {
		c.Resume()
	}
}

//Run alternates segments of SwapEvery iterations, run concurrently by
//every chain, with one swap proposal.
func (m *MC3) Run(ctx context.Context) error {
	for _, c := range m.chains {
		if !c.state.CompareAndSwap(int32(Initializing), int32(Running)) {
			return ErrNotRunnable
		}
	}
	defer func() {
		for _, c := range m.chains {
			c.state.Store(int32(Finished))
		}
	}()
	for _, c := range m.chains {
		if err := c.Initialize(); err != nil {
			return fmt.Errorf("chain %s: %w", c.opts.Name, err)
		}
	}
	cold := m.Cold()
	cold.startLoggers()
	if m.checkpoint != nil {
		if err := m.checkpoint.Start(m); err != nil {
			cold.loggerFailed(m.checkpoint, err)
			m.checkpoint = nil
		}
	}
	if m.iteration == 0 {
		cold.log(0)
	}

	var err error
	for m.iteration < m.opts.ChainLength {
		next := min(m.iteration+m.opts.SwapEvery, m.opts.ChainLength)
		g, gctx := errgroup.WithContext(ctx)
		for _, c := range m.chains {
			c := c
			g.Go(func() error {
				if err := c.advance(gctx, next); err != nil {
					return fmt.Errorf("chain %s: %w", c.opts.Name, err)
				}
				return nil
			})
		}
		if err = g.Wait(); err != nil {
			break
		}
		prev := m.iteration
		m.iteration = next
		m.proposeSwap()
		if cp := m.checkpoint; cp != nil && cp.Every() > 0 && next/cp.Every() > prev/cp.Every() {
			if lerr := cp.Log(next, m); lerr != nil {
				m.Cold().loggerFailed(cp, lerr)
			}
		}
	}

	cold = m.Cold()
	cold.finishLoggers()
	if m.checkpoint != nil {
		// chains stop at different iterations when a segment is cut
		// short, so only a complete run gets a final checkpoint.
		if f, ok := m.checkpoint.(loggers.Finisher); ok && err == nil {
			if ferr := f.Finish(m.iteration, m); ferr != nil {
				cold.loggerFailed(m.checkpoint, ferr)
			}
		}
		if serr := m.checkpoint.Stop(); serr != nil {
			cold.loggerFailed(m.checkpoint, serr)
		}
	}
	if err != nil {
		m.logger.Warn("MC3 stopped early", slog.Int("iteration", m.iteration), slog.Any("error", err))
		return err
	}
	m.logger.Info("MC3 complete", slog.Int("iterations", m.iteration), slog.Float64("log_posterior", cold.LogPosterior()))
	return nil
}

//proposeSwap picks two distinct chains and exchanges their temperatures
//with probability min(1, exp((b_i - b_j)(P_j - P_i))).
func (m *MC3) proposeSwap() bool {
	n := len(m.chains)
	i := m.rng.IntN(n)
	j := m.rng.IntN(n - 1)
	if j >= i {
		j++
	}
	a, b := m.chains[i], m.chains[j]
	r := (a.beta - b.beta) * (b.LogPosterior() - a.LogPosterior())
	if math.IsNaN(r) || math.Log(m.rng.Float64()) >= r {
		swapsTotal.WithLabelValues("rejected").Inc()
		return false
	}
	m.swap(a, b)
	swapsTotal.WithLabelValues("accepted").Inc()
	return true
}

func (m *MC3) swap(a, b *Chain) {
	a.beta, b.beta = b.beta, a.beta
	if a.beta == 1 || b.beta == 1 {
		a.loggers, b.loggers = b.loggers, a.loggers
	}
	temperatureGauge.WithLabelValues(a.opts.Name).Set(a.beta)
	temperatureGauge.WithLabelValues(b.opts.Name).Set(b.beta)
	m.logger.Debug("chains swapped temperatures",
		slog.String("a", a.opts.Name), slog.String("b", b.opts.Name))
}

//Snapshot implements checkpoint.Snapshotter.
func (m *MC3) Snapshot(iteration int) (*checkpoint.State, error) {
	swapRNG, err := m.pcg.MarshalBinary()
	if err != nil {
		return nil, err
	}
	st := &checkpoint.State{
		RunID:     m.opts.RunID,
		Iteration: iteration,
		SwapRNG:   swapRNG,
	}
	for _, c := range m.chains {
		cs, err := c.chainState()
		if err != nil {
			return nil, err
		}
		st.Chains = append(st.Chains, cs)
	}
	return st, nil
}

//Restore loads a checkpoint taken by Snapshot, before Run.
func (m *MC3) Restore(st *checkpoint.State) error {
	if len(st.Chains) != len(m.chains) {
		return fmt.Errorf("%w: %d chains in checkpoint, %d configured", checkpoint.ErrIncompatible, len(st.Chains), len(m.chains))
	}
	if err := m.pcg.UnmarshalBinary(st.SwapRNG); err != nil {
		return fmt.Errorf("%w: swap random state: %v", checkpoint.ErrIncompatible, err)
	}
	var ls []loggers.Logger
	for _, c := range m.chains {
		ls = append(ls, c.loggers...)
		c.loggers = nil
	}
	cold := 0
	for i, c := range m.chains {
		if err := c.loadChainState(st.Chains[i]); err != nil {
			return fmt.Errorf("chain %s: %w", c.opts.Name, err)
		}
		c.iteration = st.Iteration
		if c.beta == 1 {
			cold++
		}
	}
	if cold != 1 {
		return fmt.Errorf("%w: %v", checkpoint.ErrIncompatible, ErrTemperatures)
	}
	m.Cold().loggers = ls
	m.iteration = st.Iteration
	return nil
}
