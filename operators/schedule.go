package operators

import (
	"fmt"
	"math"
	"math/rand/v2"
)

//Stats counts what happened to an operator's proposals.
type Stats struct {
	Accepted int
	Rejected int
	Failed   int

	windowAccepted int
	windowTotal    int
}

//AcceptanceRate is accepted over all proposals, failed ones included.
func (s *Stats) AcceptanceRate() float64 {
	total := s.Accepted + s.Rejected + s.Failed
	if total == 0 {
		return 0
	}
	return float64(s.Accepted) / float64(total)
}

type entry struct {
	op    Operator
	limit float64
	stats Stats
}

//Schedule picks operators with probability proportional to weight and
//keeps their acceptance statistics.
type Schedule struct {
	entries []entry
	total   float64
}

//NewSchedule will build a schedule over ops. Weights must be positive.
func NewSchedule(ops ...Operator) (*Schedule, error) {
	s := &Schedule{}
	for _, op := range ops {
		if err := s.Add(op); err != nil {
			return nil, err
		}
	}
	return s, nil
}

//Add registers op.
func (s *Schedule) Add(op Operator) error {
	w := op.Weight()
	if w <= 0 || math.IsNaN(w) || math.IsInf(w, 0) {
		return fmt.Errorf("operator %s: weight must be positive, got %g", op.Name(), w)
	}
	s.total += w
	s.entries = append(s.entries, entry{op: op, limit: s.total})
	return nil
}

//Len returns the number of operators.
func (s *Schedule) Len() int {
	return len(s.entries)
}

//Operator returns operator i.
func (s *Schedule) Operator(i int) Operator {
	return s.entries[i].op
}

//Stats returns the statistics of operator i.
func (s *Schedule) Stats(i int) *Stats {
	return &s.entries[i].stats
}

//Next draws an operator index by scanning the cumulative weights.
func (s *Schedule) Next(rng *rand.Rand) int {
	u := rng.Float64() * s.total
	for i, e := range s.entries {
		if u < e.limit {
			return i
		}
	}
	return len(s.entries) - 1
}

//Outcome is the fate of one proposal.
type Outcome int

const (
	Accepted Outcome = iota
	Rejected
	FailedProposal
)

//Record counts the outcome of a proposal by operator i.
func (s *Schedule) Record(i int, o Outcome) {
	st := &s.entries[i].stats
	switch o {
	case Accepted:
		st.Accepted++
		st.windowAccepted++
	case Rejected:
		st.Rejected++
	case FailedProposal:
		st.Failed++
	}
	st.windowTotal++
}

//Tune adapts every coercible operator to its acceptance rate over the
//window since the last call, then starts a new window.
func (s *Schedule) Tune() {
	for i := range s.entries {
		e := &s.entries[i]
		c, ok := e.op.(Coercible)
		if ok && e.stats.windowTotal > 0 {
			rate := float64(e.stats.windowAccepted) / float64(e.stats.windowTotal)
			c.SetTuning(AdjustTuning(c.Tuning(), rate, c.TargetAcceptance()))
		}
		e.stats.windowAccepted = 0
		e.stats.windowTotal = 0
	}
}

//AdjustTuning will move a step length toward the value that hits the
//target acceptance rate: p * tan(pi/2 * rate) / tan(pi/2 * target).
func AdjustTuning(p, rate, target float64) float64 {
	rate = math.Min(math.Max(rate, 0.01), 0.99)
	s := math.Pi / 2
	return p * math.Tan(s*rate) / math.Tan(s*target)
}

//Tunings returns the tuning value of every coercible operator by name.
func (s *Schedule) Tunings() map[string]float64 {
	out := make(map[string]float64)
	for _, e := range s.entries {
		if c, ok := e.op.(Coercible); ok {
			out[e.op.Name()] = c.Tuning()
		}
	}
	return out
}

//SetTunings restores tuning values saved by Tunings.
func (s *Schedule) SetTunings(v map[string]float64) {
	for _, e := range s.entries {
		if c, ok := e.op.(Coercible); ok {
			if t, ok := v[e.op.Name()]; ok {
				c.SetTuning(t)
			}
		}
	}
}

//AllStats returns a copy of every operator's counters, by name.
func (s *Schedule) AllStats() map[string]Stats {
	out := make(map[string]Stats, len(s.entries))
	for _, e := range s.entries {
		out[e.op.Name()] = e.stats
	}
	return out
}

//SetStats restores counters saved by AllStats.
func (s *Schedule) SetStats(v map[string]Stats) {
	for i := range s.entries {
		if st, ok := v[s.entries[i].op.Name()]; ok {
			s.entries[i].stats.Accepted = st.Accepted
			s.entries[i].stats.Rejected = st.Rejected
			s.entries[i].stats.Failed = st.Failed
		}
	}
}
