// Package checkpoint persists the resumable state of a run in BadgerDB.
//
// Each run is stored under the key "checkpoint/<run-id>" as a JSON
// document. Saving overwrites the previous checkpoint of the run.
package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/tomopfuku/gobeast/operators"
	"github.com/tomopfuku/gobeast/tree"
)

const keyPrefix = "checkpoint/"

var (
	// ErrNotFound indicates no checkpoint exists for the run.
	ErrNotFound = errors.New("checkpoint not found")

	// ErrIncompatible indicates a checkpoint that does not fit the model
	// graph it is being restored into.
	ErrIncompatible = errors.New("checkpoint does not match the analysis")
)

//Chain is the resumable state of one Markov chain.
type Chain struct {
	Temperature float64                    `json:"temperature"`
	RNG         []byte                     `json:"rng"`
	Parameters  map[string][]float64       `json:"parameters"`
	Trees       map[string]tree.Arena      `json:"trees"`
	Tunings     map[string]float64         `json:"tunings"`
	Stats       map[string]operators.Stats `json:"stats"`
}

//State is everything needed to resume a run at Iteration.
type State struct {
	RunID     string    `json:"run_id"`
	Iteration int       `json:"iteration"`
	Saved     time.Time `json:"saved"`
	Chains    []Chain   `json:"chains"`
	// SwapRNG is the generator that drives MC3 swap proposals.
	SwapRNG []byte `json:"swap_rng,omitempty"`
}

//Config says where the store lives.
type Config struct {
	Path     string
	InMemory bool
	Logger   *slog.Logger
}

//Store reads and writes checkpoints.
type Store struct {
	db     *badger.DB
	logger *slog.Logger
}

type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Infof(format string, args ...any) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Debugf(format string, args ...any) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

//Open will open (creating if needed) the checkpoint database.
func Open(cfg Config) (*Store, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, errors.New("checkpoint path is required")
		}
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create checkpoint directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path).WithSyncWrites(true)
	}
	opts = opts.WithNumVersionsToKeep(1).WithLogger(&badgerLogger{logger: logger.With(slog.String("component", "badger"))})
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint database: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

//Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func key(runID string) []byte {
	return []byte(keyPrefix + runID)
}

//Save writes st, replacing any earlier checkpoint of the same run.
func (s *Store) Save(st *State) error {
	if st.RunID == "" {
		return errors.New("checkpoint without run id")
	}
	if st.Saved.IsZero() {
		st.Saved = time.Now().UTC()
	}
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode checkpoint %s: %w", st.RunID, err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key(st.RunID), data)
	})
	if err != nil {
		return fmt.Errorf("write checkpoint %s: %w", st.RunID, err)
	}
	s.logger.Debug("checkpoint saved",
		slog.String("run_id", st.RunID),
		slog.Int("iteration", st.Iteration),
		slog.Int("bytes", len(data)))
	return nil
}

//Load reads the checkpoint of runID.
func (s *Store) Load(runID string) (*State, error) {
	var st State
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(runID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: %s", ErrNotFound, runID)
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &st)
		})
	})
	if err != nil {
		return nil, err
	}
	return &st, nil
}

//Delete removes the checkpoint of runID, if any.
func (s *Store) Delete(runID string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key(runID))
	})
}

//Runs lists the run ids that have a checkpoint, sorted.
func (s *Store) Runs() ([]string, error) {
	var out []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			out = append(out, strings.TrimPrefix(string(it.Item().Key()), keyPrefix))
		}
		return nil
	})
	sort.Strings(out)
	return out, err
}
