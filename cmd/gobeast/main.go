// Command gobeast samples phylogenies and model parameters from their
// posterior with Metropolis-Hastings, optionally coupling heated chains.
//
//	gobeast run analysis.yaml --chains 4 --metrics-addr :9090
//	gobeast likelihood --tree hominid.nwk --alignment hominid.fasta --model hky --kappa 2
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/tomopfuku/gobeast/checkpoint"
	"github.com/tomopfuku/gobeast/config"
	"github.com/tomopfuku/gobeast/mcmc"
)

const (
	exitOK           = 0
	exitFailure      = 1
	exitBadInput     = 2
	exitInconsistent = 3
	exitInterrupted  = 130
)

//usageError marks a malformed command line.
type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

func main() {
	os.Exit(execute(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

//execute runs the command line and maps its outcome to an exit code.
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	return exitCode(stderr, func() error {
		root := newRootCmd(stdout, stderr)
		root.SetArgs(args)
		return root.ExecuteContext(ctx)
	})
}

//exitCode reports the error of run on stderr. A panic is a broken
//invariant somewhere in the model graph.
func exitCode(stderr io.Writer, run func() error) (code int) {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(stderr, "internal inconsistency: %v\n", r)
			code = exitInconsistent
		}
	}()
	err := run()
	if err == nil {
		return exitOK
	}
	var (
		input *config.InputError
		usage usageError
	)
	switch {
	case errors.Is(err, mcmc.ErrInconsistent):
		fmt.Fprintf(stderr, "internal inconsistency: %v\n", err)
		return exitInconsistent
	case errors.As(err, &input), errors.As(err, &usage),
		errors.Is(err, checkpoint.ErrNotFound), errors.Is(err, checkpoint.ErrIncompatible),
		errors.Is(err, mcmc.ErrZeroStart):
		fmt.Fprintf(stderr, "bad input: %v\n", err)
		return exitBadInput
	case errors.Is(err, context.Canceled):
		fmt.Fprintln(stderr, "interrupted")
		return exitInterrupted
	}
	fmt.Fprintf(stderr, "error: %v\n", err)
	return exitFailure
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "gobeast",
		Short:         "Bayesian phylogenetic inference by MCMC",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError{err}
	})
	root.AddCommand(newRunCmd(), newLikelihoodCmd())
	return root
}

func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(n)(cmd, args); err != nil {
			return usageError{err}
		}
		return nil
	}
}
