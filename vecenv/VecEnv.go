// Package vecenv batches many independent copies of a multi-agent
// environment behind a single vectorized step/reset interface, so a
// caller can advance all of them in lockstep and work with batched
// tensors instead of per-instance results.
//
// Two implementations are provided. AsyncVecEnv runs each instance in
// its own worker goroutine, driven over a private command channel; the
// orchestrator fans actions out and collects replies. SyncVecEnv holds
// the instances directly and steps them one after another on the
// calling goroutine. Both satisfy VecEnv and behave identically, so
// callers can switch between them freely; SyncVecEnv exists for
// debugging and for workloads where worker handoff overhead is not
// worth paying.
//
// Both implementations auto-reset an instance the moment its episode
// terminates: the step that observes termination returns the fresh
// post-reset observation, while the terminal observation, shared
// observation, and available-action mask are preserved in the info
// record of agent 0 under the environment.Original* keys.
package vecenv

import (
	"fmt"
	"image"

	"gonum.org/v1/gonum/mat"
	"gorgonia.org/tensor"

	"github.com/some45bucks/HARL/environment"
	"github.com/some45bucks/HARL/utils/tensorutils"
)

// Render modes accepted by VecEnv.Render and environment.Renderer
const (
	ModeHuman    = "human"
	ModeRGBArray = "rgb_array"
)

// Maker constructs a single environment instance. In an AsyncVecEnv
// the Maker runs inside the worker goroutine that will own the
// instance, so the instance is never touched by any other goroutine.
type Maker func() (environment.Environment, error)

// VecEnv presents N environment instances as one vectorized
// environment. Batch index i corresponds to instance i across Reset,
// StepAsync, and StepWait for the lifetime of the VecEnv.
type VecEnv interface {
	// Reset starts a new episode in every instance, returning the
	// stacked observations, shared observations, and available-action
	// masks.
	Reset() (obs, sharedObs, availActions *tensor.Dense, err error)

	// StepAsync fans actions out to the instances and returns without
	// waiting for any of them to advance. Element i of actions is the
	// per-agent action matrix for instance i. Calling StepAsync while
	// a step is already pending is a protocol violation.
	StepAsync(actions []*mat.Dense) error

	// StepWait blocks until every instance has advanced and returns
	// the batched results. Calling StepWait without a pending
	// StepAsync is a protocol violation.
	StepWait() (*BatchedStep, error)

	// Step is the synchronous composition of StepAsync and StepWait.
	Step(actions []*mat.Dense) (*BatchedStep, error)

	// ResetTask re-samples the task in every instance and stacks the
	// results. Every instance must provide the TaskResetter
	// capability.
	ResetTask() (*tensor.Dense, error)

	// Render draws all instances. With mode "rgb_array" the
	// per-instance frames are tiled into a single image on a
	// near-square grid; with mode "human" each instance displays
	// itself and the returned image is nil. Every instance must
	// provide the Renderer capability.
	Render(mode string) (image.Image, error)

	// Close shuts down every instance and releases all workers.
	// Close is idempotent; calling it a second time is a no-op.
	Close() error

	NumEnvs() int
	NumAgents() int
	ObservationSpec() []environment.Spec
	ShareObservationSpec() []environment.Spec
	ActionSpec() []environment.Spec
}

// BatchedStep is the stacked union of the per-instance step results
// for one vectorized step, with batch index as the leading axis of
// every tensor. Info is not stacked: instances report heterogeneous
// info, so it stays an ordered per-instance, per-agent sequence.
type BatchedStep struct {
	Obs       *tensor.Dense // [numEnvs, numAgents, obsDim]
	SharedObs *tensor.Dense // [numEnvs, numAgents, sharedObsDim]
	Reward    *tensor.Dense // [numEnvs, numAgents, 1]

	// Done has shape [numEnvs] when the instances report
	// whole-episode termination and [numEnvs, numAgents] when they
	// report per-agent termination.
	Done *tensor.Dense

	Info [][]environment.InfoRecord // [numEnvs][numAgents]

	// AvailActions is nil when the scenario has no discrete action
	// mask.
	AvailActions *tensor.Dense // [numEnvs, numAgents, numActions]
}

// batchSteps stacks N per-instance step results into one BatchedStep
func batchSteps(results []environment.StepResult) (*BatchedStep, error) {
	n := len(results)
	obs := make([]*tensor.Dense, n)
	sharedObs := make([]*tensor.Dense, n)
	rewards := make([]*tensor.Dense, n)
	dones := make([]environment.Done, n)
	info := make([][]environment.InfoRecord, n)
	availActions := make([]*tensor.Dense, n)

	for i, res := range results {
		obs[i] = res.Obs
		sharedObs[i] = res.SharedObs
		rewards[i] = res.Reward
		dones[i] = res.Done
		info[i] = res.Info
		availActions[i] = res.AvailActions
	}

	batch := &BatchedStep{Info: info}

	var err error
	if batch.Obs, err = tensorutils.Stack(obs); err != nil {
		return nil, fmt.Errorf("batchSteps: could not stack "+
			"observations: %w", err)
	}
	if batch.SharedObs, err = tensorutils.Stack(sharedObs); err != nil {
		return nil, fmt.Errorf("batchSteps: could not stack shared "+
			"observations: %w", err)
	}
	if batch.Reward, err = tensorutils.Stack(rewards); err != nil {
		return nil, fmt.Errorf("batchSteps: could not stack rewards: %w", err)
	}
	if batch.Done, err = stackDones(dones); err != nil {
		return nil, fmt.Errorf("batchSteps: could not stack dones: %w", err)
	}
	if batch.AvailActions, err = stackAvailActions(availActions); err != nil {
		return nil, fmt.Errorf("batchSteps: could not stack available "+
			"actions: %w", err)
	}

	return batch, nil
}

// batchResets stacks N per-instance reset results
func batchResets(obs, sharedObs, availActions []*tensor.Dense) (*tensor.Dense,
	*tensor.Dense, *tensor.Dense, error) {
	obsBatch, err := tensorutils.Stack(obs)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("batchResets: could not stack "+
			"observations: %w", err)
	}
	sharedObsBatch, err := tensorutils.Stack(sharedObs)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("batchResets: could not stack "+
			"shared observations: %w", err)
	}
	availBatch, err := stackAvailActions(availActions)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("batchResets: could not stack "+
			"available actions: %w", err)
	}
	return obsBatch, sharedObsBatch, availBatch, nil
}

// stackAvailActions stacks available-action masks, passing through a
// nil batch for scenarios without discrete action masks. Either every
// instance returns a mask or none does; this is part of the
// single-environment contract and is not re-validated.
func stackAvailActions(masks []*tensor.Dense) (*tensor.Dense, error) {
	if len(masks) == 0 || masks[0] == nil {
		return nil, nil
	}
	return tensorutils.Stack(masks)
}

// stackDones stacks per-instance termination signals. All instances
// must use the same Done representation.
func stackDones(dones []environment.Done) (*tensor.Dense, error) {
	n := len(dones)

	if !dones[0].PerAgent() {
		backing := make([]bool, n)
		for i, done := range dones {
			if done.PerAgent() {
				return nil, fmt.Errorf("stackDones: instance %v uses "+
					"per-agent termination, instance 0 uses whole-episode "+
					"termination", i)
			}
			backing[i] = done.All()
		}
		return tensor.New(tensor.WithShape(n),
			tensor.WithBacking(backing)), nil
	}

	width := len(dones[0].Flags(0))
	backing := make([]bool, n*width)
	for i, done := range dones {
		if !done.PerAgent() {
			return nil, fmt.Errorf("stackDones: instance %v uses "+
				"whole-episode termination, instance 0 uses per-agent "+
				"termination", i)
		}
		flags := done.Flags(0)
		if len(flags) != width {
			return nil, fmt.Errorf("stackDones: instance %v reports %v "+
				"agents, instance 0 reports %v", i, len(flags), width)
		}
		copy(backing[i*width:(i+1)*width], flags)
	}
	return tensor.New(tensor.WithShape(n, width),
		tensor.WithBacking(backing)), nil
}
