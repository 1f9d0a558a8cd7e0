package vecenv

import (
	"fmt"
	"image"

	"gonum.org/v1/gonum/mat"
	"gorgonia.org/tensor"

	"github.com/some45bucks/HARL/environment"
	"github.com/some45bucks/HARL/utils/imageutils"
	"github.com/some45bucks/HARL/utils/tensorutils"
)

// SyncVecEnv presents N directly-held environment instances as one
// vectorized environment. There is no concurrency at all: StepAsync
// only records the action batch, and StepWait steps the instances one
// after another on the calling goroutine, applying the same
// auto-reset policy as AsyncVecEnv. It is a drop-in substitute for
// AsyncVecEnv wherever process isolation and parallelism are not
// wanted, such as debugging.
type SyncVecEnv struct {
	envs    []environment.Environment
	actions []*mat.Dense
	closed  bool

	numAgents    int
	obsSpec      []environment.Spec
	shareObsSpec []environment.Spec
	actionSpec   []environment.Spec
}

// NewSync constructs one environment per Maker and returns the
// vectorized environment holding them. The agent count and space
// specifications are adopted from instance 0.
func NewSync(makers []Maker) (*SyncVecEnv, error) {
	if len(makers) == 0 {
		return nil, fmt.Errorf("newSync: need at least one environment")
	}

	s := &SyncVecEnv{envs: make([]environment.Environment, len(makers))}
	for i, maker := range makers {
		env, err := maker()
		if err != nil {
			for _, made := range s.envs[:i] {
				made.Close()
			}
			return nil, fmt.Errorf("newSync: could not construct "+
				"environment %v: %v", i, err)
		}
		s.envs[i] = env
	}

	s.numAgents = s.envs[0].NumAgents()
	s.obsSpec = s.envs[0].ObservationSpec()
	s.shareObsSpec = s.envs[0].ShareObservationSpec()
	s.actionSpec = s.envs[0].ActionSpec()

	return s, nil
}

// StepAsync records the action batch for the next StepWait
func (s *SyncVecEnv) StepAsync(actions []*mat.Dense) error {
	if s.closed {
		return &VecEnvError{Op: "stepAsync", Err: errClosed}
	}
	if s.actions != nil {
		return &VecEnvError{Op: "stepAsync", Err: errProtocolViolation}
	}
	if len(actions) != len(s.envs) {
		return fmt.Errorf("stepAsync: got %v action matrices for %v "+
			"environments", len(actions), len(s.envs))
	}

	s.actions = actions
	return nil
}

// StepWait advances every instance with the recorded action batch and
// stacks the results
func (s *SyncVecEnv) StepWait() (*BatchedStep, error) {
	if s.closed {
		return nil, &VecEnvError{Op: "stepWait", Err: errClosed}
	}
	if s.actions == nil {
		return nil, &VecEnvError{Op: "stepWait", Err: errProtocolViolation}
	}
	actions := s.actions
	s.actions = nil

	results := make([]environment.StepResult, len(s.envs))
	for i, env := range s.envs {
		res, err := stepEnv(env, actions[i])
		if err != nil {
			return nil, &VecEnvError{
				Op:  "stepWait",
				Err: fmt.Errorf("environment %v: %v: %w", i, err,
					errWorkerFailure),
			}
		}
		results[i] = res
	}

	batch, err := batchSteps(results)
	if err != nil {
		return nil, fmt.Errorf("stepWait: %w", err)
	}
	return batch, nil
}

// Step advances every instance synchronously
func (s *SyncVecEnv) Step(actions []*mat.Dense) (*BatchedStep, error) {
	if err := s.StepAsync(actions); err != nil {
		return nil, err
	}
	return s.StepWait()
}

// Reset starts a new episode in every instance, discarding any
// recorded action batch
func (s *SyncVecEnv) Reset() (*tensor.Dense, *tensor.Dense, *tensor.Dense,
	error) {
	if s.closed {
		return nil, nil, nil, &VecEnvError{Op: "reset", Err: errClosed}
	}
	s.actions = nil

	obs := make([]*tensor.Dense, len(s.envs))
	sharedObs := make([]*tensor.Dense, len(s.envs))
	availActions := make([]*tensor.Dense, len(s.envs))
	for i, env := range s.envs {
		var err error
		obs[i], sharedObs[i], availActions[i], err = env.Reset()
		if err != nil {
			return nil, nil, nil, fmt.Errorf("reset: could not reset "+
				"environment %v: %v", i, err)
		}
	}

	obsBatch, sharedObsBatch, availBatch, err := batchResets(obs, sharedObs,
		availActions)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("reset: %w", err)
	}
	return obsBatch, sharedObsBatch, availBatch, nil
}

// ResetTask re-samples the task in every instance and stacks the
// results
func (s *SyncVecEnv) ResetTask() (*tensor.Dense, error) {
	if s.closed {
		return nil, &VecEnvError{Op: "resetTask", Err: errClosed}
	}

	tasks := make([]*tensor.Dense, len(s.envs))
	for i, env := range s.envs {
		resetter, ok := env.(environment.TaskResetter)
		if !ok {
			return nil, &VecEnvError{
				Op: "resetTask",
				Err: fmt.Errorf("environment %v: %w", i,
					errMissingCapability),
			}
		}
		task, err := resetter.ResetTask()
		if err != nil {
			return nil, fmt.Errorf("resetTask: could not reset task in "+
				"environment %v: %v", i, err)
		}
		tasks[i] = task
	}

	batch, err := tensorutils.Stack(tasks)
	if err != nil {
		return nil, fmt.Errorf("resetTask: could not stack task "+
			"observations: %w", err)
	}
	return batch, nil
}

// Render draws all instances. With mode "rgb_array" the frames are
// collected and tiled into one image; with mode "human" each instance
// displays itself.
func (s *SyncVecEnv) Render(mode string) (image.Image, error) {
	if s.closed {
		return nil, &VecEnvError{Op: "render", Err: errClosed}
	}
	if mode != ModeHuman && mode != ModeRGBArray {
		return nil, fmt.Errorf("render: unknown mode %q", mode)
	}

	frames := make([]image.Image, len(s.envs))
	for i, env := range s.envs {
		renderer, ok := env.(environment.Renderer)
		if !ok {
			return nil, &VecEnvError{
				Op: "render",
				Err: fmt.Errorf("environment %v: %w", i,
					errMissingCapability),
			}
		}
		frame, err := renderer.Render(mode)
		if err != nil {
			return nil, fmt.Errorf("render: could not render "+
				"environment %v: %v", i, err)
		}
		frames[i] = frame
	}

	if mode == ModeHuman {
		return nil, nil
	}

	img, err := imageutils.Tile(frames)
	if err != nil {
		return nil, fmt.Errorf("render: could not tile frames: %v", err)
	}
	return img, nil
}

// Close closes every instance. Close is idempotent.
func (s *SyncVecEnv) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	for i, env := range s.envs {
		if err := env.Close(); err != nil {
			return fmt.Errorf("close: could not close environment %v: %v",
				i, err)
		}
	}
	return nil
}

// NumEnvs returns the number of environment instances in the batch
func (s *SyncVecEnv) NumEnvs() int {
	return len(s.envs)
}

// NumAgents returns the per-instance agent count, adopted from
// instance 0
func (s *SyncVecEnv) NumAgents() int {
	return s.numAgents
}

// ObservationSpec returns the per-agent observation specifications
func (s *SyncVecEnv) ObservationSpec() []environment.Spec {
	return s.obsSpec
}

// ShareObservationSpec returns the per-agent shared observation
// specifications
func (s *SyncVecEnv) ShareObservationSpec() []environment.Spec {
	return s.shareObsSpec
}

// ActionSpec returns the per-agent action specifications
func (s *SyncVecEnv) ActionSpec() []environment.Spec {
	return s.actionSpec
}
