package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime/pprof"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/tomopfuku/gobeast/analysis"
	"github.com/tomopfuku/gobeast/config"
	"github.com/tomopfuku/gobeast/internal/logging"
)

type runFlags struct {
	chains           int
	temperatures     []float64
	deltaTemperature float64
	swapEvery        int
	seed             uint64
	resume           bool
	metricsAddr      string
	logLevel         string
	logFormat        string
	cpuProfile       string
}

func newRunCmd() *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run <analysis.yaml>",
		Short: "Sample the posterior of an analysis",
		Long: `Reads the analysis document, builds one model graph per chain and
samples until the chain length is reached. SIGINT stops the run after the
current iteration; SIGUSR1 pauses and resumes it.`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalysis(cmd, args[0], f)
		},
	}
	fl := cmd.Flags()
	fl.IntVar(&f.chains, "chains", 1, "number of coupled chains (MC3 when above 1)")
	fl.Float64SliceVar(&f.temperatures, "temperatures", nil, "explicit temperature of every chain, one of them 1")
	fl.Float64Var(&f.deltaTemperature, "delta-temperature", 0.1, "temperature increment of the MC3 ladder")
	fl.IntVar(&f.swapEvery, "swap-every", 100, "iterations between swap proposals")
	fl.Uint64Var(&f.seed, "seed", 0, "random seed (0 draws one)")
	fl.BoolVar(&f.resume, "resume", false, "continue from the run's last checkpoint")
	fl.StringVar(&f.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	fl.StringVar(&f.logLevel, "log-level", "", "debug, info, warn or error")
	fl.StringVar(&f.logFormat, "log-format", "", "text or json")
	fl.StringVar(&f.cpuProfile, "cpuprofile", "", "write a CPU profile to this file")
	return cmd
}

//override copies the flags given on the command line over the document.
func (f runFlags) override(cmd *cobra.Command, a *config.Analysis) error {
	fl := cmd.Flags()
	if fl.Changed("chains") {
		a.MCMC.Chains = f.chains
	}
	if fl.Changed("temperatures") {
		a.MCMC.Temperatures = f.temperatures
		if !fl.Changed("chains") {
			a.MCMC.Chains = len(f.temperatures)
		}
	}
	if fl.Changed("delta-temperature") {
		a.MCMC.DeltaTemperature = f.deltaTemperature
	}
	if fl.Changed("swap-every") {
		a.MCMC.SwapEvery = f.swapEvery
	}
	if fl.Changed("seed") {
		a.Seed = f.seed
	}
	if fl.Changed("log-level") {
		a.Logging.Level = f.logLevel
	}
	if fl.Changed("log-format") {
		a.Logging.Format = f.logFormat
	}
	return a.Validate()
}

func runAnalysis(cmd *cobra.Command, path string, f runFlags) error {
	a, err := config.Load(path)
	if err != nil {
		return err
	}
	if err := f.override(cmd, a); err != nil {
		return err
	}
	logger, err := logging.Setup(a.Logging.Level, a.Logging.Format, cmd.ErrOrStderr())
	if err != nil {
		return &config.InputError{Element: "logging", Err: err}
	}

	if f.cpuProfile != "" {
		prof, err := os.Create(f.cpuProfile)
		if err != nil {
			return err
		}
		defer prof.Close()
		if err := pprof.StartCPUProfile(prof); err != nil {
			return err
		}
		defer pprof.StopCPUProfile()
	}

	s, err := analysis.New(a, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.Close(); cerr != nil {
			logger.Warn("closing checkpoint store", slog.Any("error", cerr))
		}
	}()
	if f.resume {
		if err := s.Resume(); err != nil {
			return err
		}
	}

	if f.metricsAddr != "" {
		srv := &http.Server{Addr: f.metricsAddr, Handler: promhttp.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics endpoint failed", slog.String("addr", f.metricsAddr), slog.Any("error", err))
			}
		}()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(ctx)
		}()
		logger.Info("serving metrics", slog.String("addr", f.metricsAddr))
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	stopPausing := pauseOnSignal(ctx, s, logger)
	defer stopPausing()

	start := time.Now()
	if err := s.Run(ctx); err != nil {
		return fmt.Errorf("run %s: %w", s.RunID, err)
	}
	logger.Info("run finished", slog.String("run_id", s.RunID), slog.Duration("elapsed", time.Since(start)))
	return nil
}
