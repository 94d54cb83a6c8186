package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tomopfuku/gobeast/analysis"
	"github.com/tomopfuku/gobeast/config"
)

type likelihoodFlags struct {
	tree       string
	alignment  string
	model      string
	kappa      float64
	alpha      float64
	categories int
	scaling    bool
}

func newLikelihoodCmd() *cobra.Command {
	var f likelihoodFlags
	cmd := &cobra.Command{
		Use:   "likelihood",
		Short: "Print the log likelihood of an alignment on a fixed tree",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := f.analysis()
			if err != nil {
				return err
			}
			lnl, err := analysis.EvaluateLikelihood(a)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%.6f\n", lnl)
			return nil
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.tree, "tree", "", "Newick tree file")
	fl.StringVar(&f.alignment, "alignment", "", "aligned FASTA file")
	fl.StringVar(&f.model, "model", "hky", "substitution model: jc, hky")
	fl.Float64Var(&f.kappa, "kappa", 2, "HKY transition/transversion ratio")
	fl.Float64Var(&f.alpha, "alpha", 0, "gamma shape; 0 disables rate heterogeneity")
	fl.IntVar(&f.categories, "categories", 4, "number of gamma categories")
	fl.BoolVar(&f.scaling, "scaling", false, "scale partials to avoid underflow")
	return cmd
}

//analysis describes the evaluation as an analysis document so that it
//goes through the same validation and model construction as a run.
func (f likelihoodFlags) analysis() (*config.Analysis, error) {
	if f.tree == "" || f.alignment == "" {
		return nil, usageError{fmt.Errorf("--tree and --alignment are required")}
	}
	a := config.Default()
	a.Data.Alignment = f.alignment
	a.Tree.File = f.tree
	a.Model.Substitution = f.model
	a.Model.Kappa = f.kappa
	a.Model.Scaling = f.scaling
	if f.alpha > 0 {
		a.Model.Gamma = &config.Gamma{Alpha: f.alpha, Categories: f.categories}
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return &a, nil
}
