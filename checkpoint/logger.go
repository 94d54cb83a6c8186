package checkpoint

import (
	"fmt"

	"github.com/tomopfuku/gobeast/loggers"
)

//Snapshotter is a logger source that can describe its resumable state.
type Snapshotter interface {
	Snapshot(iteration int) (*State, error)
}

//Logger saves a checkpoint every Every() iterations and once more when
//the run ends, however it ends.
type Logger struct {
	store *Store
	every int
}

//NewLogger will checkpoint into store every `every` iterations.
func NewLogger(store *Store, every int) *Logger {
	return &Logger{store: store, every: every}
}

func (l *Logger) Name() string { return "checkpoint" }
func (l *Logger) Every() int   { return l.every }

func (l *Logger) Start(src loggers.Source) error {
	if _, ok := src.(Snapshotter); !ok {
		return fmt.Errorf("checkpoint logger: %T cannot be snapshotted", src)
	}
	return nil
}

func (l *Logger) Log(iteration int, src loggers.Source) error {
	s, ok := src.(Snapshotter)
	if !ok {
		return fmt.Errorf("checkpoint logger: %T cannot be snapshotted", src)
	}
	st, err := s.Snapshot(iteration)
	if err != nil {
		return err
	}
	return l.store.Save(st)
}

//Finish implements loggers.Finisher.
func (l *Logger) Finish(iteration int, src loggers.Source) error {
	return l.Log(iteration, src)
}

func (l *Logger) Stop() error { return nil }
