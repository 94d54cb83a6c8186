// Package config reads the YAML analysis document: the data, the starting
// tree, the models, priors, operators, chain settings and logs of a run.
//
// Loading follows defaults -> file -> environment (GOBEAST_*) ->
// validation. Every error that points at the document is an *InputError
// naming the offending element.
package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

//Analysis is the whole analysis document.
type Analysis struct {
	RunID string `yaml:"run_id"`
	Seed  uint64 `yaml:"seed"`

	Data       Data        `yaml:"data"`
	Tree       Tree        `yaml:"tree"`
	Model      Model       `yaml:"model"`
	TreePrior  TreePrior   `yaml:"tree_prior"`
	Parameters []Parameter `yaml:"parameters" validate:"dive"`
	Priors     []Prior     `yaml:"priors" validate:"dive"`
	Operators  []Operator  `yaml:"operators" validate:"dive"`
	MCMC       MCMC        `yaml:"mcmc"`
	Logs       Logs        `yaml:"logs"`
	Logging    Logging     `yaml:"logging"`

	// BaseDir resolves relative paths; Load sets it to the document's
	// directory.
	BaseDir string `yaml:"-"`
}

//Data names the alignment.
type Data struct {
	Alignment string `yaml:"alignment" validate:"required"`
}

//Tree is the starting tree: Newick inline, a Newick file, or (when both
//are empty) a random coalescent tree.
type Tree struct {
	ID      string  `yaml:"id" validate:"required"`
	Newick  string  `yaml:"newick" validate:"excluded_with=File"`
	File    string  `yaml:"file"`
	PopSize float64 `yaml:"pop_size" validate:"gt=0"`
}

//Model is the substitution, site and clock model.
type Model struct {
	Substitution string      `yaml:"substitution" validate:"oneof=jc hky gtr"`
	Kappa        float64     `yaml:"kappa" validate:"gt=0"`
	Rates        []float64   `yaml:"rates" validate:"omitempty,len=6,dive,gt=0"`
	Frequencies  Frequencies `yaml:"frequencies"`
	Gamma        *Gamma      `yaml:"gamma"`
	Invariant    float64     `yaml:"invariant" validate:"gte=0,lt=1"`
	ClockRate    float64     `yaml:"clock_rate" validate:"gt=0"`
	Scaling      bool        `yaml:"scaling"`
}

//Frequencies is written either as "equal", "empirical" or as a list of
//four fixed values.
type Frequencies struct {
	Kind   string    `validate:"oneof=equal empirical fixed"`
	Values []float64 `validate:"omitempty,len=4,dive,gt=0"`
}

//UnmarshalYAML accepts a scalar kind or a sequence of values.
func (f *Frequencies) UnmarshalYAML(n *yaml.Node) error {
	switch n.Kind {
	case yaml.ScalarNode:
		f.Kind, f.Values = n.Value, nil
		return nil
	case yaml.SequenceNode:
		f.Kind = "fixed"
		return n.Decode(&f.Values)
	}
	return fmt.Errorf("line %d: frequencies must be a name or a list", n.Line)
}

//Gamma is discrete gamma rate heterogeneity.
type Gamma struct {
	Alpha      float64 `yaml:"alpha" validate:"gt=0"`
	Categories int     `yaml:"categories" validate:"gte=1,lte=64"`
}

//TreePrior is the prior on the tree.
type TreePrior struct {
	Type    string  `yaml:"type" validate:"oneof=coalescent none"`
	PopSize float64 `yaml:"pop_size" validate:"gt=0"`
}

//Parameter declares an extra free parameter, e.g. the precision of a
//GMRF prior.
type Parameter struct {
	ID     string    `yaml:"id" validate:"required"`
	Values []float64 `yaml:"values" validate:"required,min=1"`
	Lower  *float64  `yaml:"lower"`
	Upper  *float64  `yaml:"upper"`
}

//Prior puts a distribution on a parameter. Distribution "gmrf" is the
//smoothing prior on a vector parameter with precision Precision.
type Prior struct {
	Parameter    string    `yaml:"parameter" validate:"required"`
	Distribution string    `yaml:"distribution" validate:"oneof=normal lognormal exponential gamma uniform beta gmrf"`
	Args         []float64 `yaml:"args" validate:"max=2"`
	Precision    string    `yaml:"precision" validate:"required_if=Distribution gmrf"`
}

//Operator is one proposal move and its weight.
type Operator struct {
	Type      string  `yaml:"type" validate:"oneof=scale random_walk uniform node_height_uniform tree_scale subtree_slide narrow_exchange wide_exchange wilson_balding gmrf_gibbs"`
	Parameter string  `yaml:"parameter"`
	Weight    float64 `yaml:"weight" validate:"gt=0"`
	Tuning    float64 `yaml:"tuning" validate:"gte=0"`
	All       bool    `yaml:"all"`
	// Shape and Rate are the gamma hyperprior of a gmrf_gibbs operator.
	Shape float64 `yaml:"shape" validate:"gte=0"`
	Rate  float64 `yaml:"rate" validate:"gte=0"`
}

//MCMC holds the chain settings.
type MCMC struct {
	ChainLength         int       `yaml:"chain_length" validate:"gt=0"`
	TuneEvery           int       `yaml:"tune_every" validate:"gte=0"`
	TuneUntil           int       `yaml:"tune_until" validate:"gte=0"`
	FullEvaluationEvery int       `yaml:"full_evaluation_every" validate:"gte=0"`
	Chains              int       `yaml:"chains" validate:"gte=1,lte=64"`
	DeltaTemperature    float64   `yaml:"delta_temperature" validate:"gt=0"`
	Temperatures        []float64 `yaml:"temperatures" validate:"omitempty,dive,gt=0,lte=1"`
	SwapEvery           int       `yaml:"swap_every" validate:"gt=0"`
}

//Logs holds the output settings. An empty file disables that log.
type Logs struct {
	Trace      FileLog       `yaml:"trace"`
	Trees      FileLog       `yaml:"trees"`
	Screen     ScreenLog     `yaml:"screen"`
	Checkpoint CheckpointLog `yaml:"checkpoint"`
}

//FileLog is a periodic log written to a file.
type FileLog struct {
	File  string `yaml:"file"`
	Every int    `yaml:"every" validate:"gte=0"`
}

//ScreenLog is the periodic progress report.
type ScreenLog struct {
	Every int `yaml:"every" validate:"gte=0"`
}

//CheckpointLog stores checkpoints in a BadgerDB directory.
type CheckpointLog struct {
	Dir   string `yaml:"dir"`
	Every int    `yaml:"every" validate:"gte=0"`
}

//Logging configures slog.
type Logging struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=text json"`
}

//Default returns the settings a document starts from.
func Default() Analysis {
	return Analysis{
		Tree: Tree{ID: "tree", PopSize: 1},
		Model: Model{
			Substitution: "hky",
			Kappa:        2,
			Frequencies:  Frequencies{Kind: "empirical"},
			ClockRate:    1,
		},
		TreePrior: TreePrior{Type: "coalescent", PopSize: 1},
		MCMC: MCMC{
			ChainLength:         10000000,
			TuneEvery:           100,
			TuneUntil:           100000,
			FullEvaluationEvery: 0,
			Chains:              1,
			DeltaTemperature:    0.1,
			SwapEvery:           100,
		},
		Logs: Logs{
			Trace:  FileLog{Every: 1000},
			Trees:  FileLog{Every: 1000},
			Screen: ScreenLog{Every: 10000},
			Checkpoint: CheckpointLog{
				Every: 100000,
			},
		},
		Logging: Logging{Level: "info", Format: "text"},
	}
}
