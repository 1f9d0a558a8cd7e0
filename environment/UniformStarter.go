package environment

import (
	"golang.org/x/exp/rand"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r1"
	"gonum.org/v1/gonum/stat/distmv"
)

// UniformStarter samples environment starting states uniformly from a
// hyper-rectangle of bounds
type UniformStarter struct {
	features int
	seed     uint64
	rand     *distmv.Uniform
}

// NewUniformStarter returns a UniformStarter sampling uniformly from
// bounds, one interval per state feature
func NewUniformStarter(bounds []r1.Interval, seed uint64) UniformStarter {
	source := rand.NewSource(seed)
	rand := distmv.NewUniform(bounds, source)

	return UniformStarter{len(bounds), seed, rand}
}

// Start samples a single starting state
func (u UniformStarter) Start() mat.Vector {
	return mat.NewVecDense(u.features, u.rand.Rand(nil))
}

// StartN samples n independent starting states, returned as the rows
// of a matrix. Multi-agent environments use one row per agent.
func (u UniformStarter) StartN(n int) *mat.Dense {
	states := mat.NewDense(n, u.features, nil)
	for i := 0; i < n; i++ {
		states.SetRow(i, u.rand.Rand(nil))
	}
	return states
}
