package alignment

import (
	"math/bits"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/floats"
)

//Patterns is an alignment with identical columns merged. States is
//indexed [taxon][pattern]; Weights counts how many sites share a pattern.
type Patterns struct {
	Taxa    []string
	States  [][]uint32
	Weights []float64
	index   map[string]int
}

//Compress will merge identical columns, keeping first-seen order.
func Compress(a *Alignment) *Patterns {
	p := &Patterns{
		Taxa:   append([]string(nil), a.Taxa...),
		States: make([][]uint32, len(a.Taxa)),
	}
	seen := make(map[string]int)
	var key strings.Builder
	for j := 0; j < a.SiteCount(); j++ {
		key.Reset()
		for i := range a.Taxa {
			key.WriteString(strconv.FormatUint(uint64(a.Sites[i][j]), 16))
			key.WriteByte(',')
		}
		if at, ok := seen[key.String()]; ok {
			p.Weights[at]++
			continue
		}
		seen[key.String()] = len(p.Weights)
		p.Weights = append(p.Weights, 1)
		for i := range a.Taxa {
			p.States[i] = append(p.States[i], a.Sites[i][j])
		}
	}
	p.indexTaxa()
	return p
}

func (p *Patterns) indexTaxa() {
	p.index = make(map[string]int, len(p.Taxa))
	for i, t := range p.Taxa {
		p.index[t] = i
	}
}

//PatternCount returns the number of distinct patterns.
func (p *Patterns) PatternCount() int {
	return len(p.Weights)
}

//SiteCount returns the number of sites the patterns stand for.
func (p *Patterns) SiteCount() int {
	return int(floats.Sum(p.Weights))
}

//StateCount returns the number of states of the data type.
func (p *Patterns) StateCount() int {
	return StateCount
}

//TaxonIndex returns the row of taxon.
func (p *Patterns) TaxonIndex(taxon string) (int, bool) {
	i, ok := p.index[taxon]
	return i, ok
}

//Frequencies will return the empirical state frequencies. Ambiguous
//observations are split evenly between the states they admit; fully
//missing ones are ignored.
func (p *Patterns) Frequencies() []float64 {
	freqs := make([]float64, StateCount)
	for _, row := range p.States {
		for j, m := range row {
			if m == Missing || m == 0 {
				continue
			}
			share := p.Weights[j] / float64(bits.OnesCount32(m))
			for s := 0; s < StateCount; s++ {
				if m&(1<<s) != 0 {
					freqs[s] += share
				}
			}
		}
	}
	total := floats.Sum(freqs)
	if total == 0 {
		for i := range freqs {
			freqs[i] = 1. / StateCount
		}
		return freqs
	}
	floats.Scale(1/total, freqs)
	return freqs
}
