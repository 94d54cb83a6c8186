package loggers

import (
	"log/slog"
	"time"
)

//Screen reports progress through slog: the iteration, the first columns
//of the source and the sampling speed.
type Screen struct {
	logger  *slog.Logger
	every   int
	columns int
	started time.Time
	last    int
}

//NewScreen will report every `every` iterations, showing the first
//`columns` columns (posterior, prior and likelihood for a chain).
func NewScreen(logger *slog.Logger, every, columns int) *Screen {
	if logger == nil {
		logger = slog.Default()
	}
	return &Screen{logger: logger, every: every, columns: columns}
}

func (s *Screen) Name() string { return "screen" }
func (s *Screen) Every() int   { return s.every }

func (s *Screen) Start(Source) error {
	s.started = time.Now()
	return nil
}

func (s *Screen) Log(iteration int, src Source) error {
	cols := src.Columns()
	if len(cols) > s.columns {
		cols = cols[:s.columns]
	}
	attrs := make([]any, 0, len(cols)+2)
	attrs = append(attrs, slog.Int("iteration", iteration))
	for _, c := range cols {
		attrs = append(attrs, slog.Float64(c.Label, c.Value()))
	}
	if elapsed := time.Since(s.started); elapsed > 0 && iteration > s.last {
		attrs = append(attrs, slog.Float64("states_per_second", float64(iteration)/elapsed.Seconds()))
	}
	s.last = iteration
	s.logger.Info("chain state", attrs...)
	return nil
}

func (s *Screen) Stop() error {
	s.logger.Info("chain finished", slog.Duration("elapsed", time.Since(s.started)))
	return nil
}
