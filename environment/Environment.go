// Package environment outlines the interfaces and structs needed to
// implement concrete multi-agent environments.
//
// An Environment in this package is a single simulation instance in
// which a fixed population of agents acts simultaneously. On each step
// every agent submits one action, and the environment returns one
// observation per agent, a shared (global) observation per agent, one
// reward per agent, a termination signal, per-agent auxiliary info,
// and a mask of currently legal actions.
//
// Environments expose only the fixed operation set below. Anything
// beyond it (task resets, rendering, global state access) is an
// optional capability declared by implementing one of the capability
// interfaces; callers check for a capability with a type assertion
// before using it, never by reflective lookup.
package environment

import (
	"image"

	"gonum.org/v1/gonum/mat"
	"gorgonia.org/tensor"
)

// Starter implements a distribution of starting states and samples
// starting states for environments
type Starter interface {
	Start() mat.Vector
}

// Environment implements a single multi-agent simulation instance.
//
// Observations, shared observations, and available-action masks are
// dense tensors whose leading axis indexes agents. Actions are a
// dense matrix with one row per agent. Implementations must return
// tensors of the same shape on every Reset and Step for the lifetime
// of the instance; the vectorized environments stack them without
// re-validating shapes.
type Environment interface {
	// Reset starts a new episode, returning the first observation,
	// shared observation, and available-action mask.
	Reset() (obs, sharedObs, availActions *tensor.Dense, err error)

	// Step advances the environment by one timestep. Row i of actions
	// is agent i's action.
	Step(actions *mat.Dense) (StepResult, error)

	// Close releases any resources held by the instance. No methods
	// may be called after Close.
	Close() error

	ObservationSpec() []Spec
	ShareObservationSpec() []Spec
	ActionSpec() []Spec
	NumAgents() int
}

// TaskResetter is an optional capability for environments whose task
// can be re-sampled without restarting the whole instance.
type TaskResetter interface {
	ResetTask() (*tensor.Dense, error)
}

// Renderer is an optional capability for environments that can draw
// themselves. Mode "rgb_array" must return a frame; mode "human" may
// return a nil image after displaying the frame by its own means.
type Renderer interface {
	Render(mode string) (image.Image, error)
}

// Stater is an optional capability exposing the environment's global
// state vector, independent of any one agent's observation.
type Stater interface {
	State() (*tensor.Dense, error)
}

// VulnerabilityRenderer is an optional capability for scenarios that
// can visualize a vulnerability or attack path given scenario-specific
// data.
type VulnerabilityRenderer interface {
	RenderVulnerability(data interface{}) (image.Image, error)
}
