package environment

import "gorgonia.org/tensor"

// Keys under which the terminal observation, shared observation, and
// available-action mask of an auto-reset episode are stored in the
// InfoRecord of agent 0.
const (
	OriginalObs          = "original_obs"
	OriginalState        = "original_state"
	OriginalAvailActions = "original_avail_actions"
)

// InfoRecord holds auxiliary, scenario-specific data for one agent at
// one timestep.
type InfoRecord map[string]interface{}

// StepResult packages together everything a single environment
// instance returns for one timestep.
type StepResult struct {
	Obs          *tensor.Dense // [numAgents, obsDim]
	SharedObs    *tensor.Dense // [numAgents, sharedObsDim]
	Reward       *tensor.Dense // [numAgents, 1]
	Done         Done
	Info         []InfoRecord // one record per agent
	AvailActions *tensor.Dense // [numAgents, numActions]
}

// RecordOriginal stores deep copies of the step's observation, shared
// observation, and available-action mask in the info record of agent
// 0, so that the terminal transition survives the auto-reset that
// overwrites the returned tensors. The info slice is extended with an
// empty record if the environment returned none.
func (s *StepResult) RecordOriginal() {
	if len(s.Info) == 0 {
		s.Info = []InfoRecord{{}}
	}
	if s.Info[0] == nil {
		s.Info[0] = InfoRecord{}
	}
	s.Info[0][OriginalObs] = s.Obs.Clone().(*tensor.Dense)
	s.Info[0][OriginalState] = s.SharedObs.Clone().(*tensor.Dense)
	if s.AvailActions != nil {
		s.Info[0][OriginalAvailActions] = s.AvailActions.Clone().(*tensor.Dense)
	}
}
