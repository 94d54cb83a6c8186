package mcmc

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	proposalsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gobeast_proposals_total",
		Help: "Proposals by operator and outcome (accepted, rejected, failed)",
	}, []string{"operator", "outcome"})

	logPosterior = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "gobeast_log_posterior",
		Help: "Current log posterior of each chain",
	}, []string{"chain"})

	temperatureGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "gobeast_chain_temperature",
		Help: "Current temperature (beta) of each chain",
	}, []string{"chain"})

	stepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gobeast_step_duration_seconds",
		Help:    "Wall time of one proposal, evaluation and accept/reject",
		Buckets: prometheus.ExponentialBuckets(1e-6, 4, 12),
	})

	partialsRecomputed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gobeast_partials_recomputed_total",
		Help: "Node partial likelihoods recomputed by tree likelihoods",
	})

	fullEvaluations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gobeast_full_evaluations_total",
		Help: "Consistency checks that recomputed the posterior from scratch",
	})

	swapsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gobeast_swaps_total",
		Help: "MC3 temperature swap proposals by outcome",
	}, []string{"outcome"})

	loggerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gobeast_logger_failures_total",
		Help: "Logger writes that failed",
	}, []string{"logger"})
)
