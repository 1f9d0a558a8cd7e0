package environment

// Done reports episode termination for a single environment instance.
//
// Termination comes in two representations: a single flag for the
// whole episode, or one flag per agent. Done is a tagged variant
// covering both, so that code consuming termination signals never
// inspects the underlying representation directly; the All method is
// the single normalization used everywhere an episode-over decision
// is needed.
type Done struct {
	agents []bool // nil when the scalar representation is used
	scalar bool
}

// ScalarDone returns a Done using the whole-episode representation
func ScalarDone(done bool) Done {
	return Done{scalar: done}
}

// PerAgentDone returns a Done using the per-agent representation. The
// slice is retained, not copied.
func PerAgentDone(flags []bool) Done {
	return Done{agents: flags}
}

// PerAgent returns whether the Done uses the per-agent representation
func (d Done) PerAgent() bool {
	return d.agents != nil
}

// All returns whether the episode has terminated: the scalar flag
// itself, or, in the per-agent representation, whether every agent
// has terminated.
func (d Done) All() bool {
	if d.agents == nil {
		return d.scalar
	}
	for _, done := range d.agents {
		if !done {
			return false
		}
	}
	return true
}

// Flags returns the termination flags with one entry per agent.
// In the scalar representation the episode flag is broadcast across
// all numAgents agents.
func (d Done) Flags(numAgents int) []bool {
	if d.agents != nil {
		return d.agents
	}
	flags := make([]bool, numAgents)
	for i := range flags {
		flags[i] = d.scalar
	}
	return flags
}
