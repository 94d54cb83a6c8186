package checkpoint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomopfuku/gobeast/model"
	"github.com/tomopfuku/gobeast/operators"
	"github.com/tomopfuku/gobeast/tree"
)

func openMemory(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Config{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleState(runID string, iteration int) *State {
	return &State{
		RunID:     runID,
		Iteration: iteration,
		Chains: []Chain{{
			Temperature: 1,
			RNG:         []byte{1, 2, 3},
			Parameters:  map[string][]float64{"kappa": {2.5}, "frequencies": {0.25, 0.25, 0.25, 0.25}},
			Trees: map[string]tree.Arena{"tree": {
				Root:     2,
				Taxa:     []string{"a", "b"},
				Heights:  []float64{0, 0, 1.5},
				Children: [][]int{nil, nil, {0, 1}},
			}},
			Tunings: map[string]float64{"kappa.scale": 0.6},
			Stats:   map[string]operators.Stats{"kappa.scale": {Accepted: 4, Rejected: 6}},
		}},
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := openMemory(t)
	want := sampleState("run-1", 1000)
	require.NoError(t, s.Save(want))
	assert.False(t, want.Saved.IsZero())

	got, err := s.Load("run-1")
	require.NoError(t, err)
	assert.Equal(t, want.Iteration, got.Iteration)
	assert.Equal(t, want.Chains, got.Chains)
	assert.True(t, want.Saved.Equal(got.Saved))
}

func TestSaveOverwrites(t *testing.T) {
	s := openMemory(t)
	require.NoError(t, s.Save(sampleState("run-1", 10)))
	require.NoError(t, s.Save(sampleState("run-1", 20)))
	got, err := s.Load("run-1")
	require.NoError(t, err)
	assert.Equal(t, 20, got.Iteration)
}

func TestLoadMissing(t *testing.T) {
	s := openMemory(t)
	_, err := s.Load("nope")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Error(t, s.Save(&State{}))
}

func TestRunsAndDelete(t *testing.T) {
	s := openMemory(t)
	require.NoError(t, s.Save(sampleState("b", 1)))
	require.NoError(t, s.Save(sampleState("a", 1)))
	runs, err := s.Runs()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, runs)

	require.NoError(t, s.Delete("a"))
	runs, err = s.Runs()
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, runs)
}

func TestOpenOnDisk(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(Config{Path: dir})
	require.NoError(t, err)
	require.NoError(t, s.Save(sampleState("disk", 5)))
	require.NoError(t, s.Close())

	s, err = Open(Config{Path: dir})
	require.NoError(t, err)
	defer s.Close()
	got, err := s.Load("disk")
	require.NoError(t, err)
	assert.Equal(t, 5, got.Iteration)

	_, err = Open(Config{})
	assert.Error(t, err)
}

type fakeSource struct {
	calls []int
}

func (f *fakeSource) Columns() []model.Column { return nil }
func (f *fakeSource) Trees() []*tree.Tree     { return nil }
func (f *fakeSource) Snapshot(iteration int) (*State, error) {
	f.calls = append(f.calls, iteration)
	return sampleState("logged", iteration), nil
}

type plainSource struct{}

func (plainSource) Columns() []model.Column { return nil }
func (plainSource) Trees() []*tree.Tree     { return nil }

func TestLoggerSavesPeriodicallyAndAtFinish(t *testing.T) {
	s := openMemory(t)
	l := NewLogger(s, 100)
	src := &fakeSource{}
	require.NoError(t, l.Start(src))
	require.NoError(t, l.Log(100, src))
	require.NoError(t, l.Finish(150, src))
	require.NoError(t, l.Stop())
	assert.Equal(t, []int{100, 150}, src.calls)

	got, err := s.Load("logged")
	require.NoError(t, err)
	assert.Equal(t, 150, got.Iteration)

	assert.Error(t, l.Start(plainSource{}))
}
