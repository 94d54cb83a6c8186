package substmodel

import (
	"fmt"

	"github.com/tomopfuku/gobeast/model"
)

//NewHKY will build the HKY85 model: transitions (A<->G, C<->T) occur
//kappa times faster than transversions.
func NewHKY(id string, kappa, freqs *model.Parameter) (*Reversible, error) {
	if freqs.Dimension() != 4 {
		return nil, fmt.Errorf("%s: HKY needs 4 frequencies, got %d", id, freqs.Dimension())
	}
	ex := make([]float64, 6)
	return newReversible(id, freqs, func() []float64 {
		k := kappa.Value(0)
		// AC AG AT CG CT GT
		ex[0], ex[1], ex[2], ex[3], ex[4], ex[5] = 1, k, 1, 1, k, 1
		return ex
	}, kappa)
}

//NewGTR will build the general time-reversible model from six
//exchangeabilities in the order AC, AG, AT, CG, CT, GT.
func NewGTR(id string, rates, freqs *model.Parameter) (*Reversible, error) {
	if rates.Dimension() != 6 {
		return nil, fmt.Errorf("%s: GTR needs 6 rates, got %d", id, rates.Dimension())
	}
	if freqs.Dimension() != 4 {
		return nil, fmt.Errorf("%s: GTR needs 4 frequencies, got %d", id, freqs.Dimension())
	}
	ex := make([]float64, 6)
	return newReversible(id, freqs, func() []float64 {
		for i := range ex {
			ex[i] = rates.Value(i)
		}
		return ex
	}, rates)
}

//NewJC will build Jukes-Cantor as HKY with kappa fixed at 1 and equal
//frequencies.
func NewJC(id string) *Reversible {
	m, err := NewHKY(id, model.NewParameter(id+".kappa", 1), EqualFrequencies(id+".frequencies", 4))
	if err != nil {
		panic(err)
	}
	return m
}

//EqualFrequencies returns a frequency parameter with every state at 1/n.
func EqualFrequencies(id string, n int) *model.Parameter {
	v := make([]float64, n)
	for i := range v {
		v[i] = 1 / float64(n)
	}
	return model.NewParameter(id, v...).SetBounds(0, 1)
}
