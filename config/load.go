package config

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const envPrefix = "GOBEAST_"

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return strings.ToLower(fld.Name)
		}
		return name
	})
	return v
}

//Load reads the document at path over the defaults, applies GOBEAST_*
//environment overrides and validates the result.
func Load(path string) (*Analysis, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &InputError{Err: fmt.Errorf("read analysis: %w", err)}
	}
	a, err := Parse(data)
	if err != nil {
		return nil, err
	}
	a.BaseDir = filepath.Dir(path)
	return a, nil
}

//Parse is Load for a document already in memory. Relative paths resolve
//against the working directory.
func Parse(data []byte) (*Analysis, error) {
	a := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&a); err != nil {
		return nil, &InputError{Err: fmt.Errorf("parse analysis: %w", err)}
	}
	if err := a.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return &a, nil
}

//ApplyEnv overrides settings from the environment. lookup is
//os.LookupEnv outside tests.
func (a *Analysis) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(envPrefix + key); ok {
			*dst = v
		}
	}
	integer := func(key string, dst *int) error {
		v, ok := lookup(envPrefix + key)
		if !ok {
			return nil
		}
		i, err := strconv.Atoi(v)
		if err != nil {
			return &InputError{Element: "env." + envPrefix + key, Err: err}
		}
		*dst = i
		return nil
	}
	str("RUN_ID", &a.RunID)
	str("LOG_LEVEL", &a.Logging.Level)
	str("LOG_FORMAT", &a.Logging.Format)
	str("CHECKPOINT_DIR", &a.Logs.Checkpoint.Dir)
	if v, ok := lookup(envPrefix + "SEED"); ok {
		seed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return &InputError{Element: "env." + envPrefix + "SEED", Err: err}
		}
		a.Seed = seed
	}
	if err := integer("CHAIN_LENGTH", &a.MCMC.ChainLength); err != nil {
		return err
	}
	if err := integer("CHAINS", &a.MCMC.Chains); err != nil {
		return err
	}
	return integer("FULL_EVALUATION_EVERY", &a.MCMC.FullEvaluationEvery)
}

//Validate checks field constraints and the cross references a struct tag
//cannot express.
func (a *Analysis) Validate() error {
	if err := validate.Struct(a); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return &InputError{
				Element: elementPath(fe.Namespace()),
				Err:     fmt.Errorf("%w: %v fails %q", ErrInvalid, fe.Value(), tagText(fe)),
			}
		}
		return &InputError{Err: err}
	}
	f := a.Model.Frequencies
	if f.Kind == "fixed" {
		if len(f.Values) != 4 {
			return Errorf("model.frequencies", "%w: need 4 values, got %d", ErrInvalid, len(f.Values))
		}
		sum := 0.
		for _, v := range f.Values {
			sum += v
		}
		if math.Abs(sum-1) > 1e-6 {
			return Errorf("model.frequencies", "%w: values sum to %g", ErrInvalid, sum)
		}
	}
	if a.Model.Substitution == "gtr" && len(a.Model.Rates) == 0 {
		return Errorf("model.rates", "%w: gtr needs six exchange rates", ErrInvalid)
	}
	if n := len(a.MCMC.Temperatures); n > 0 && n != a.MCMC.Chains {
		return Errorf("mcmc.temperatures", "%w: %d temperatures for %d chains", ErrInvalid, n, a.MCMC.Chains)
	}
	seen := make(map[string]bool)
	for i, p := range a.Parameters {
		if seen[p.ID] {
			return Errorf(fmt.Sprintf("parameters[%d].id", i), "%w: duplicate id %q", ErrInvalid, p.ID)
		}
		seen[p.ID] = true
	}
	for i, op := range a.Operators {
		needsParam := op.Type == "scale" || op.Type == "random_walk" || op.Type == "uniform" || op.Type == "gmrf_gibbs"
		if needsParam && op.Parameter == "" {
			return Errorf(fmt.Sprintf("operators[%d].parameter", i), "%w: %s needs a parameter", ErrInvalid, op.Type)
		}
	}
	return nil
}

//Path resolves p against the document directory.
func (a *Analysis) Path(p string) string {
	if p == "" || filepath.IsAbs(p) || a.BaseDir == "" {
		return p
	}
	return filepath.Join(a.BaseDir, p)
}

//elementPath turns "Analysis.mcmc.chain_length" into "mcmc.chain_length".
func elementPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func tagText(fe validator.FieldError) string {
	if fe.Param() == "" {
		return fe.Tag()
	}
	return fe.Tag() + "=" + fe.Param()
}
