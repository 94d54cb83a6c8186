// Package substmodel provides time-reversible nucleotide substitution
// models. Rate matrices are normalised to one expected substitution per
// unit time and exponentiated through the eigen decomposition of their
// symmetrised form.
package substmodel

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/tomopfuku/gobeast/model"
)

var (
	// ErrFrequencies indicates base frequencies that are not a positive probability vector.
	ErrFrequencies = errors.New("frequencies must be positive and sum to 1")

	// ErrEigen indicates a failed eigen decomposition of the rate matrix.
	ErrEigen = errors.New("eigen decomposition failed")
)

//Model is what a tree likelihood needs from a substitution model.
type Model interface {
	model.Model
	StateCount() int
	Frequencies() []float64
	// TransitionProbabilities fills dst (row-major, states x states) with
	// P(t) for an expected number of substitutions t.
	TransitionProbabilities(t float64, dst []float64)
}

//Reversible is a time-reversible model defined by exchangeabilities and
//stationary frequencies.
type Reversible struct {
	model.Base
	freqs    *model.Parameter
	exchange func() []float64
	n        int

	eig         *eigenSystem
	dirty       bool
	storedEig   *eigenSystem
	storedDirty bool

	expL []float64 // scratch for TransitionProbabilities
}

type eigenSystem struct {
	values []float64
	// left = D^-1/2 U, right = U^T D^1/2, both row-major n x n
	left, right []float64
}

func newReversible(id string, freqs *model.Parameter, exchange func() []float64, params ...*model.Parameter) (*Reversible, error) {
	if err := checkFrequencies(freqs.Values()); err != nil {
		return nil, fmt.Errorf("%s: %w", id, err)
	}
	r := &Reversible{freqs: freqs, exchange: exchange, n: freqs.Dimension(), dirty: true}
	r.expL = make([]float64, r.n)
	r.Init(id, r)
	for _, p := range params {
		r.AddParameter(p)
	}
	r.AddParameter(freqs)
	if err := r.update(); err != nil {
		return nil, fmt.Errorf("%s: %w", id, err)
	}
	return r, nil
}

func checkFrequencies(f []float64) error {
	for _, v := range f {
		if v <= 0 || math.IsNaN(v) {
			return ErrFrequencies
		}
	}
	if math.Abs(floats.Sum(f)-1) > 1e-6 {
		return ErrFrequencies
	}
	return nil
}

//StateCount returns the number of states.
func (r *Reversible) StateCount() int {
	return r.n
}

//Frequencies returns a copy of the stationary frequencies.
func (r *Reversible) Frequencies() []float64 {
	return r.freqs.Values()
}

//TransitionProbabilities implements Model.
func (r *Reversible) TransitionProbabilities(t float64, dst []float64) {
	if r.dirty {
		if err := r.update(); err != nil {
			// bounded parameters keep the matrix decomposable
			panic(fmt.Errorf("%s: %w", r.ID(), err))
		}
	}
	n := r.n
	e := r.eig
	expL := r.expL
	for k := range expL {
		expL[k] = math.Exp(e.values[k] * t)
	}
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			s := 0.
			for k := 0; k < n; k++ {
				s += e.left[i*n+k] * expL[k] * e.right[k*n+j]
			}
			if s < 0 {
				s = 0
			}
			dst[i*n+j] = s
		}
	}
}

//RateMatrix returns the normalised instantaneous rate matrix.
func (r *Reversible) RateMatrix() *mat.Dense {
	q, _ := r.rateMatrix()
	return q
}

func (r *Reversible) rateMatrix() (*mat.Dense, []float64) {
	n := r.n
	pi := r.freqs.Values()
	ex := r.exchange()
	q := mat.NewDense(n, n, nil)
	k := 0
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			q.Set(i, j, ex[k]*pi[j])
			q.Set(j, i, ex[k]*pi[i])
			k++
		}
	}
	mu := 0.
	for i := 0; i < n; i++ {
		row := 0.
		for j := 0; j < n; j++ {
			if j != i {
				row += q.At(i, j)
			}
		}
		q.Set(i, i, -row)
		mu += pi[i] * row
	}
	q.Scale(1/mu, q)
	return q, pi
}

func (r *Reversible) update() error {
	n := r.n
	q, pi := r.rateMatrix()
	sq := make([]float64, n)
	for i := range pi {
		sq[i] = math.Sqrt(pi[i])
	}
	sym := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			sym.SetSym(i, j, q.At(i, j)*sq[i]/sq[j])
		}
	}
	var es mat.EigenSym
	if ok := es.Factorize(sym, true); !ok {
		return ErrEigen
	}
	var u mat.Dense
	es.VectorsTo(&u)
	e := &eigenSystem{
		values: es.Values(nil),
		left:   make([]float64, n*n),
		right:  make([]float64, n*n),
	}
	for i := 0; i < n; i++ {
		for k := 0; k < n; k++ {
			e.left[i*n+k] = u.At(i, k) / sq[i]
			e.right[k*n+i] = u.At(i, k) * sq[i]
		}
	}
	r.eig = e
	r.dirty = false
	return nil
}

func (r *Reversible) HandleModelChanged(model.Event) {}

func (r *Reversible) HandleParameterChanged(*model.Parameter, int) {
	r.dirty = true
}

func (r *Reversible) StoreState() {
	r.storedEig = r.eig
	r.storedDirty = r.dirty
}

func (r *Reversible) RestoreState() {
	r.eig = r.storedEig
	r.dirty = r.storedDirty
}

func (r *Reversible) AcceptState() {}
