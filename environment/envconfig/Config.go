// Package envconfig provides configuration structs for constructing
// vectorized environment fleets with default scenario parameters.
// Configurations in this package are JSON serializable.
package envconfig

import (
	"fmt"

	"github.com/some45bucks/HARL/environment"
	"github.com/some45bucks/HARL/environment/ballchase"
	"github.com/some45bucks/HARL/vecenv"
)

// ScenarioName stores the name of scenarios that can be configured
// with this package
type ScenarioName string

// Scenarios available for configuration
const (
	BallChase ScenarioName = "BallChase"
)

// Config implements a specific configuration of a fleet of identical
// scenario instances behind one vectorized environment
type Config struct {
	Scenario      ScenarioName
	NumEnvs       int
	Async         bool
	NumAgents     int
	EpisodeCutoff uint
	PerAgentDone  bool
	Seed          uint64
}

// NewConfig returns a new fleet Config
func NewConfig(scenario ScenarioName, numEnvs int, async bool,
	numAgents int, episodeCutoff uint, perAgentDone bool,
	seed uint64) Config {
	return Config{
		Scenario:      scenario,
		NumEnvs:       numEnvs,
		Async:         async,
		NumAgents:     numAgents,
		EpisodeCutoff: episodeCutoff,
		PerAgentDone:  perAgentDone,
		Seed:          seed,
	}
}

// Create returns the vectorized environment described by the Config.
// Each instance is seeded with Seed offset by its batch index, so the
// instances differ while the fleet as a whole stays reproducible.
func (c Config) Create() (vecenv.VecEnv, error) {
	if c.NumEnvs < 1 {
		return nil, fmt.Errorf("create: NumEnvs must be positive, got %v",
			c.NumEnvs)
	}

	makers := make([]vecenv.Maker, c.NumEnvs)
	for i := range makers {
		maker, err := c.maker(c.Seed + uint64(i))
		if err != nil {
			return nil, fmt.Errorf("create: %v", err)
		}
		makers[i] = maker
	}

	if c.Async {
		return vecenv.NewAsync(makers)
	}
	return vecenv.NewSync(makers)
}

// maker returns the single-instance factory for the configured
// scenario
func (c Config) maker(seed uint64) (vecenv.Maker, error) {
	switch c.Scenario {
	case BallChase:
		return func() (environment.Environment, error) {
			return ballchase.New(c.NumAgents, int(c.EpisodeCutoff),
				c.PerAgentDone, seed)
		}, nil
	}
	return nil, fmt.Errorf("maker: cannot create scenario %v, no such "+
		"scenario", c.Scenario)
}
