package tree

import (
	"fmt"
	"math/rand/v2"
)

//Rexp will draw an exponential waiting time with the given rate.
func Rexp(rng *rand.Rand, rate float64) float64 {
	return rng.ExpFloat64() / rate
}

//RandomCoalescent will simulate a starting tree under the constant-size
//coalescent. All taxa are sampled at height 0.
func RandomCoalescent(id string, taxa []string, popSize float64, rng *rand.Rand) (*Tree, error) {
	if len(taxa) == 0 {
		return nil, ErrEmptyTree
	}
	if popSize <= 0 {
		return nil, fmt.Errorf("population size must be positive, got %g", popSize)
	}
	lineages := make([]*Vertex, len(taxa))
	for i, name := range taxa {
		lineages[i] = &Vertex{Name: name}
	}
	h := 0.
	for len(lineages) > 1 {
		k := float64(len(lineages))
		h += Rexp(rng, k*(k-1)/(2*popSize))
		i := rng.IntN(len(lineages))
		a := lineages[i]
		lineages[i] = lineages[len(lineages)-1]
		lineages = lineages[:len(lineages)-1]
		j := rng.IntN(len(lineages))
		b := lineages[j]
		parent := &Vertex{Height: h}
		parent.AddChild(a)
		parent.AddChild(b)
		lineages[j] = parent
	}
	return Adopt(id, lineages[0], Heights)
}
