package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strconv"

	"github.com/google/uuid"

	"github.com/tomopfuku/gobeast/checkpoint"
	"github.com/tomopfuku/gobeast/config"
	"github.com/tomopfuku/gobeast/loggers"
	"github.com/tomopfuku/gobeast/mcmc"
)

//ErrNoTree is returned when a single likelihood evaluation is asked for
//without a tree.
var ErrNoTree = errors.New("a tree is needed to evaluate the likelihood")

//Sampler is a built analysis: one chain, or several coupled by MC3.
type Sampler struct {
	RunID string
	Seed  uint64

	chains []*mcmc.Chain
	mc3    *mcmc.MC3
	store  *checkpoint.Store
	logger *slog.Logger
}

//New will build the chains of a. A zero seed draws one, and an empty
//run id gets a random UUID.
func New(a *config.Analysis, logger *slog.Logger) (_ *Sampler, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Sampler{RunID: a.RunID, Seed: a.Seed, logger: logger}
	if s.RunID == "" {
		s.RunID = uuid.NewString()
	}
	if s.Seed == 0 {
		s.Seed = rand.Uint64()
	}
	logger = logger.With(slog.String("run_id", s.RunID))
	s.logger = logger

	patterns, err := ReadData(a)
	if err != nil {
		return nil, err
	}
	start, err := StartingTree(a, patterns, rand.New(rand.NewPCG(s.Seed, ^s.Seed)))
	if err != nil {
		return nil, err
	}
	logger.Info("data loaded",
		slog.Int("taxa", len(patterns.Taxa)),
		slog.Int("sites", patterns.SiteCount()),
		slog.Int("patterns", patterns.PatternCount()),
		slog.Uint64("seed", s.Seed))

	for i := 0; i < a.MCMC.Chains; i++ {
		g, err := BuildGraph(a, patterns, start)
		if err != nil {
			return nil, err
		}
		c, err := mcmc.New(g.Prior, g.Likelihood, g.Schedule, mcmc.Options{
			ChainLength:         a.MCMC.ChainLength,
			TuneEvery:           a.MCMC.TuneEvery,
			TuneUntil:           a.MCMC.TuneUntil,
			FullEvaluationEvery: a.MCMC.FullEvaluationEvery,
			Seed:                s.Seed + uint64(i),
			RunID:               s.RunID,
			Name:                strconv.Itoa(i),
			Logger:              logger,
		})
		if err != nil {
			return nil, err
		}
		s.chains = append(s.chains, c)
	}

	var cp *checkpoint.Logger
	if dir := a.Logs.Checkpoint.Dir; dir != "" && a.Logs.Checkpoint.Every > 0 {
		s.store, err = checkpoint.Open(checkpoint.Config{Path: a.Path(dir), Logger: logger})
		if err != nil {
			return nil, &config.InputError{Element: "logs.checkpoint.dir", Err: err}
		}
		cp = checkpoint.NewLogger(s.store, a.Logs.Checkpoint.Every)
	}
	defer func() {
		if err != nil {
			s.Close()
		}
	}()

	ls, err := fileLoggers(a, logger)
	if err != nil {
		return nil, err
	}
	for _, l := range ls {
		s.chains[0].AddLogger(l)
	}

	if len(s.chains) == 1 {
		if cp != nil {
			s.chains[0].AddLogger(cp)
		}
		return s, nil
	}
	s.mc3, err = mcmc.NewMC3(s.chains, mcmc.MC3Options{
		ChainLength:      a.MCMC.ChainLength,
		SwapEvery:        a.MCMC.SwapEvery,
		Temperatures:     a.MCMC.Temperatures,
		DeltaTemperature: a.MCMC.DeltaTemperature,
		Seed:             s.Seed,
		RunID:            s.RunID,
		Logger:           logger,
	})
	if err != nil {
		stopAll(ls)
		return nil, &config.InputError{Element: "mcmc", Err: err}
	}
	if cp != nil {
		s.mc3.SetCheckpoint(cp)
	}
	return s, nil
}

//fileLoggers opens the trace and tree logs and adds the screen report.
func fileLoggers(a *config.Analysis, logger *slog.Logger) ([]loggers.Logger, error) {
	var ls []loggers.Logger
	if f := a.Logs.Trace; f.File != "" && f.Every > 0 {
		tr, err := loggers.NewTraceFile(a.Path(f.File), f.Every)
		if err != nil {
			return nil, &config.InputError{Element: "logs.trace.file", Err: err}
		}
		ls = append(ls, tr)
	}
	if f := a.Logs.Trees; f.File != "" && f.Every > 0 {
		tl, err := loggers.NewTreeLogFile(a.Path(f.File), f.Every)
		if err != nil {
			stopAll(ls)
			return nil, &config.InputError{Element: "logs.trees.file", Err: err}
		}
		ls = append(ls, tl)
	}
	if every := a.Logs.Screen.Every; every > 0 {
		ls = append(ls, loggers.NewScreen(logger, every, 3))
	}
	return ls, nil
}

func stopAll(ls []loggers.Logger) {
	for _, l := range ls {
		_ = l.Stop()
	}
}

//Chains returns the chains, the first one cold before sampling starts.
func (s *Sampler) Chains() []*mcmc.Chain {
	return s.chains
}

//MC3 returns the coupling driver, or nil for a single chain.
func (s *Sampler) MC3() *mcmc.MC3 {
	return s.mc3
}

//Resume loads the last checkpoint of the run.
func (s *Sampler) Resume() error {
	if s.store == nil {
		return config.Errorf("logs.checkpoint.dir", "resuming needs a checkpoint directory")
	}
	st, err := s.store.Load(s.RunID)
	if err != nil {
		return err
	}
	if s.mc3 != nil {
		err = s.mc3.Restore(st)
	} else {
		err = s.chains[0].Restore(st)
	}
	if err != nil {
		return fmt.Errorf("resume %s: %w", s.RunID, err)
	}
	s.logger.Info("resumed from checkpoint", slog.Int("iteration", st.Iteration), slog.Time("saved", st.Saved))
	return nil
}

//Run samples until the chain length is reached or ctx is cancelled.
func (s *Sampler) Run(ctx context.Context) error {
	if s.mc3 != nil {
		return s.mc3.Run(ctx)
	}
	return s.chains[0].Run(ctx)
}

//Pause suspends sampling before the next iteration.
func (s *Sampler) Pause() {
	if s.mc3 != nil {
		s.mc3.Pause()
		return
	}
	s.chains[0].Pause()
}

//Continue lets a paused sampler go on.
func (s *Sampler) Continue() {
	if s.mc3 != nil {
		s.mc3.Resume()
		return
	}
	s.chains[0].Resume()
}

//Close releases the checkpoint store.
func (s *Sampler) Close() error {
	if s.store == nil {
		return nil
	}
	err := s.store.Close()
	s.store = nil
	return err
}

//EvaluateLikelihood computes the tree likelihood of a's data on a's
//tree once, without sampling.
func EvaluateLikelihood(a *config.Analysis) (float64, error) {
	if a.Tree.Newick == "" && a.Tree.File == "" {
		return 0, &config.InputError{Element: "tree", Err: ErrNoTree}
	}
	patterns, err := ReadData(a)
	if err != nil {
		return 0, err
	}
	start, err := StartingTree(a, patterns, nil)
	if err != nil {
		return 0, err
	}
	g, err := BuildGraph(a, patterns, start)
	if err != nil {
		return 0, err
	}
	return g.Likelihood.LogLikelihood()
}
