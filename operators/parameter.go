package operators

import (
	"math"
	"math/rand/v2"

	"github.com/tomopfuku/gobeast/model"
)

//Scale multiplies a positive parameter by c = exp(eps(u-0.5)). With all
//set every dimension is scaled by the same c.
type Scale struct {
	common
	param *model.Parameter
	eps   float64
	all   bool
}

//NewScale will build a scale operator with step eps.
func NewScale(name string, weight float64, p *model.Parameter, eps float64, all bool) *Scale {
	return &Scale{common: common{name, weight}, param: p, eps: eps, all: all}
}

//Operate implements Operator. The Hastings ratio is c^k for k scaled
//dimensions.
func (s *Scale) Operate(rng *rand.Rand) Result {
	c := multiplier(rng, s.eps)
	if !s.all {
		i := rng.IntN(s.param.Dimension())
		v := s.param.Value(i) * c
		if !s.param.InBounds(v) {
			return Failed("scaled value out of bounds")
		}
		s.param.SetValue(i, v)
		return Proposed(math.Log(c))
	}
	for i := 0; i < s.param.Dimension(); i++ {
		v := s.param.Value(i) * c
		if !s.param.InBounds(v) {
			return Failed("scaled value out of bounds")
		}
		s.param.SetValueQuietly(i, v)
	}
	s.param.FireChanged(-1)
	return Proposed(float64(s.param.Dimension()) * math.Log(c))
}

func (s *Scale) Tuning() float64           { return s.eps }
func (s *Scale) SetTuning(v float64)       { s.eps = v }
func (s *Scale) TargetAcceptance() float64 { return DefaultTarget }

//RandomWalk adds a uniform step from [-w/2, w/2] to one dimension and
//reflects the result back inside the parameter bounds.
type RandomWalk struct {
	common
	param  *model.Parameter
	window float64
}

//NewRandomWalk will build a random walk with the given window.
func NewRandomWalk(name string, weight float64, p *model.Parameter, window float64) *RandomWalk {
	return &RandomWalk{common: common{name, weight}, param: p, window: window}
}

//Operate implements Operator.
func (r *RandomWalk) Operate(rng *rand.Rand) Result {
	i := rng.IntN(r.param.Dimension())
	v := r.param.Value(i) - r.window/2 + r.window*rng.Float64()
	v = reflect(v, r.param.Lower(), r.param.Upper())
	if !r.param.InBounds(v) {
		return Failed("window wider than parameter range")
	}
	r.param.SetValue(i, v)
	return Proposed(0)
}

func reflect(v, lower, upper float64) float64 {
	for i := 0; i < 8 && (v < lower || v > upper); i++ {
		if v < lower {
			v = 2*lower - v
		}
		if v > upper {
			v = 2*upper - v
		}
	}
	return v
}

func (r *RandomWalk) Tuning() float64           { return r.window }
func (r *RandomWalk) SetTuning(v float64)       { r.window = v }
func (r *RandomWalk) TargetAcceptance() float64 { return DefaultTarget }

//Uniform redraws one dimension uniformly between the parameter bounds.
type Uniform struct {
	common
	param *model.Parameter
}

//NewUniform will build a uniform operator; p must have finite bounds.
func NewUniform(name string, weight float64, p *model.Parameter) *Uniform {
	return &Uniform{common: common{name, weight}, param: p}
}

//Operate implements Operator.
func (u *Uniform) Operate(rng *rand.Rand) Result {
	lo, hi := u.param.Lower(), u.param.Upper()
	if math.IsInf(lo, 0) || math.IsInf(hi, 0) {
		return Failed("uniform proposal needs finite bounds")
	}
	i := rng.IntN(u.param.Dimension())
	u.param.SetValue(i, lo+(hi-lo)*rng.Float64())
	return Proposed(0)
}
