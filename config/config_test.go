package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const doc = `
run_id: primates
seed: 42
data:
  alignment: primates.fasta
tree:
  newick: "((human:1,chimp:1):1,gorilla:2);"
model:
  substitution: hky
  kappa: 3
  frequencies: [0.1, 0.2, 0.3, 0.4]
  gamma:
    alpha: 0.5
    categories: 4
priors:
  - parameter: kappa
    distribution: lognormal
    args: [1, 1.25]
operators:
  - type: scale
    parameter: kappa
    weight: 1
    tuning: 0.75
  - type: subtree_slide
    weight: 5
mcmc:
  chain_length: 5000
logs:
  trace:
    file: primates.log
    every: 10
`

func noEnv(string) (string, bool) { return "", false }

func TestParseOverDefaults(t *testing.T) {
	a, err := Parse([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, "primates", a.RunID)
	assert.Equal(t, uint64(42), a.Seed)
	assert.Equal(t, "tree", a.Tree.ID)
	assert.Equal(t, 3., a.Model.Kappa)
	assert.Equal(t, Frequencies{Kind: "fixed", Values: []float64{0.1, 0.2, 0.3, 0.4}}, a.Model.Frequencies)
	require.NotNil(t, a.Model.Gamma)
	assert.Equal(t, 4, a.Model.Gamma.Categories)
	assert.Equal(t, 5000, a.MCMC.ChainLength)
	assert.Equal(t, 100, a.MCMC.TuneEvery, "unset keys keep their default")
	assert.Equal(t, 10, a.Logs.Trace.Every)
	assert.Equal(t, 1000, a.Logs.Trees.Every)
	require.Len(t, a.Operators, 2)
	assert.Equal(t, "subtree_slide", a.Operators[1].Type)
}

func TestFrequenciesByName(t *testing.T) {
	a, err := Parse([]byte("data: {alignment: a.fasta}\nmodel: {frequencies: equal}\n"))
	require.NoError(t, err)
	assert.Equal(t, "equal", a.Model.Frequencies.Kind)
	assert.Nil(t, a.Model.Frequencies.Values)
}

func TestValidationNamesElement(t *testing.T) {
	cases := []struct {
		name    string
		doc     string
		element string
	}{
		{"missing alignment", "tree: {id: t}\n", "data.alignment"},
		{"bad substitution", "data: {alignment: a}\nmodel: {substitution: k80}\n", "model.substitution"},
		{"negative length", "data: {alignment: a}\nmcmc: {chain_length: -1}\n", "mcmc.chain_length"},
		{"bad operator", "data: {alignment: a}\noperators: [{type: scale, parameter: kappa, weight: 0}]\n", "operators[0].weight"},
		{"operator without parameter", "data: {alignment: a}\noperators: [{type: scale, weight: 1}]\n", "operators[0].parameter"},
		{"gmrf without precision", "data: {alignment: a}\npriors: [{parameter: x, distribution: gmrf}]\n", "priors[0].precision"},
		{"frequencies off", "data: {alignment: a}\nmodel: {frequencies: [0.5, 0.5, 0.5, 0.5]}\n", "model.frequencies"},
		{"gtr without rates", "data: {alignment: a}\nmodel: {substitution: gtr}\n", "model.rates"},
		{"ladder size", "data: {alignment: a}\nmcmc: {chains: 2, temperatures: [1, 0.5, 0.25]}\n", "mcmc.temperatures"},
		{"duplicate parameter", "data: {alignment: a}\nparameters: [{id: x, values: [1]}, {id: x, values: [2]}]\n", "parameters[1].id"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.doc))
			var ie *InputError
			require.ErrorAs(t, err, &ie)
			assert.Equal(t, tc.element, ie.Element)
			assert.ErrorIs(t, err, ErrInvalid)
			assert.Contains(t, err.Error(), tc.element)
		})
	}
}

func TestUnknownKeyIsInputError(t *testing.T) {
	_, err := Parse([]byte("data: {alignment: a}\nmcmc: {chain_lenght: 10}\n"))
	var ie *InputError
	require.ErrorAs(t, err, &ie)
	assert.Contains(t, err.Error(), "chain_lenght")
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"GOBEAST_SEED":           "7",
		"GOBEAST_CHAIN_LENGTH":   "123",
		"GOBEAST_CHAINS":         "4",
		"GOBEAST_LOG_LEVEL":      "debug",
		"GOBEAST_CHECKPOINT_DIR": "/tmp/cp",
	}
	a := Default()
	require.NoError(t, a.ApplyEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}))
	assert.Equal(t, uint64(7), a.Seed)
	assert.Equal(t, 123, a.MCMC.ChainLength)
	assert.Equal(t, 4, a.MCMC.Chains)
	assert.Equal(t, "debug", a.Logging.Level)
	assert.Equal(t, "/tmp/cp", a.Logs.Checkpoint.Dir)

	b := Default()
	require.NoError(t, b.ApplyEnv(noEnv))
	assert.Equal(t, Default(), b)

	err := b.ApplyEnv(func(k string) (string, bool) {
		return "many", k == "GOBEAST_CHAINS"
	})
	var ie *InputError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, "env.GOBEAST_CHAINS", ie.Element)
}

func TestLoadResolvesPaths(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
	a, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "primates.fasta"), a.Path(a.Data.Alignment))
	assert.Equal(t, "/abs/x.log", a.Path("/abs/x.log"))
	assert.Equal(t, "", a.Path(""))

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	var ie *InputError
	assert.ErrorAs(t, err, &ie)
}
