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

// AsyncVecEnv presents N worker-backed environment instances as one
// vectorized environment. Each instance lives in its own worker
// goroutine and is driven over a private command/reply channel pair;
// the orchestrator holds no reference to any instance. All methods
// must be called from a single goroutine.
//
// A straggler instance stalls the whole batch: StepWait and Reset
// block until every worker has replied, with no timeout. Recovery
// from a hung instance is the caller's supervision problem, not this
// type's.
type AsyncVecEnv struct {
	conns   []*conn
	waiting bool
	closed  bool

	numAgents    int
	obsSpec      []environment.Spec
	shareObsSpec []environment.Spec
	actionSpec   []environment.Spec
}

// NewAsync spawns one worker per Maker and returns the vectorized
// environment driving them. The agent count and space specifications
// are adopted from worker 0; all instances are assumed homogeneous,
// which is part of the single-environment contract and not verified.
func NewAsync(makers []Maker) (*AsyncVecEnv, error) {
	if len(makers) == 0 {
		return nil, fmt.Errorf("newAsync: need at least one environment")
	}

	a := &AsyncVecEnv{conns: make([]*conn, len(makers))}
	for i, maker := range makers {
		a.conns[i] = newConn()
		w := &worker{conn: a.conns[i], make: maker}
		go w.run()
	}

	fail := func(err error) (*AsyncVecEnv, error) {
		a.Close()
		return nil, fmt.Errorf("newAsync: %v", err)
	}

	if err := a.conns[0].send(command{tag: cmdGetNumAgents}); err != nil {
		return fail(err)
	}
	r, err := a.conns[0].recv()
	if err != nil {
		return fail(err)
	}
	a.numAgents = r.numAgents

	if err := a.conns[0].send(command{tag: cmdGetSpaces}); err != nil {
		return fail(err)
	}
	if r, err = a.conns[0].recv(); err != nil {
		return fail(err)
	}
	a.obsSpec = r.obsSpec
	a.shareObsSpec = r.shareObsSpec
	a.actionSpec = r.actionSpec

	return a, nil
}

// StepAsync sends one step command to every worker and returns
// without waiting for replies
func (a *AsyncVecEnv) StepAsync(actions []*mat.Dense) error {
	if a.closed {
		return &VecEnvError{Op: "stepAsync", Err: errClosed}
	}
	if a.waiting {
		return &VecEnvError{Op: "stepAsync", Err: errProtocolViolation}
	}
	if len(actions) != len(a.conns) {
		return fmt.Errorf("stepAsync: got %v action matrices for %v "+
			"environments", len(actions), len(a.conns))
	}

	for i, conn := range a.conns {
		err := conn.send(command{tag: cmdStep, actions: actions[i]})
		if err != nil {
			a.cancelPending()
			return &VecEnvError{
				Op:  "stepAsync",
				Err: fmt.Errorf("worker %v: %w", i, err),
			}
		}
	}
	a.waiting = true
	return nil
}

// StepWait blocks for one reply from every worker, in worker order,
// and stacks the results
func (a *AsyncVecEnv) StepWait() (*BatchedStep, error) {
	if a.closed {
		return nil, &VecEnvError{Op: "stepWait", Err: errClosed}
	}
	if !a.waiting {
		return nil, &VecEnvError{Op: "stepWait", Err: errProtocolViolation}
	}

	results := make([]environment.StepResult, len(a.conns))
	for i, conn := range a.conns {
		r, err := conn.recv()
		if err != nil {
			a.cancelPending()
			return nil, &VecEnvError{
				Op:  "stepWait",
				Err: fmt.Errorf("worker %v: %w", i, err),
			}
		}
		results[i] = r.step
	}
	a.waiting = false

	batch, err := batchSteps(results)
	if err != nil {
		return nil, fmt.Errorf("stepWait: %w", err)
	}
	return batch, nil
}

// Step advances every instance synchronously
func (a *AsyncVecEnv) Step(actions []*mat.Dense) (*BatchedStep, error) {
	if err := a.StepAsync(actions); err != nil {
		return nil, err
	}
	return a.StepWait()
}

// Reset starts a new episode in every instance. A step still pending
// from StepAsync is cancelled: its replies are drained and discarded.
func (a *AsyncVecEnv) Reset() (*tensor.Dense, *tensor.Dense, *tensor.Dense,
	error) {
	if a.closed {
		return nil, nil, nil, &VecEnvError{Op: "reset", Err: errClosed}
	}
	a.cancelPending()

	for i, conn := range a.conns {
		if err := conn.send(command{tag: cmdReset}); err != nil {
			a.cancelPending()
			return nil, nil, nil, &VecEnvError{
				Op:  "reset",
				Err: fmt.Errorf("worker %v: %w", i, err),
			}
		}
	}

	obs := make([]*tensor.Dense, len(a.conns))
	sharedObs := make([]*tensor.Dense, len(a.conns))
	availActions := make([]*tensor.Dense, len(a.conns))
	for i, conn := range a.conns {
		r, err := conn.recv()
		if err != nil {
			a.cancelPending()
			return nil, nil, nil, &VecEnvError{
				Op:  "reset",
				Err: fmt.Errorf("worker %v: %w", i, err),
			}
		}
		obs[i] = r.obs
		sharedObs[i] = r.sharedObs
		availActions[i] = r.availActions
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
func (a *AsyncVecEnv) ResetTask() (*tensor.Dense, error) {
	if a.closed {
		return nil, &VecEnvError{Op: "resetTask", Err: errClosed}
	}
	a.cancelPending()

	for i, conn := range a.conns {
		if err := conn.send(command{tag: cmdResetTask}); err != nil {
			a.cancelPending()
			return nil, &VecEnvError{
				Op:  "resetTask",
				Err: fmt.Errorf("worker %v: %w", i, err),
			}
		}
	}

	tasks := make([]*tensor.Dense, len(a.conns))
	for i, conn := range a.conns {
		r, err := conn.recv()
		if err != nil {
			a.cancelPending()
			return nil, &VecEnvError{
				Op:  "resetTask",
				Err: fmt.Errorf("worker %v: %w", i, err),
			}
		}
		tasks[i] = r.task
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
func (a *AsyncVecEnv) Render(mode string) (image.Image, error) {
	if a.closed {
		return nil, &VecEnvError{Op: "render", Err: errClosed}
	}
	if mode != ModeHuman && mode != ModeRGBArray {
		return nil, fmt.Errorf("render: unknown mode %q", mode)
	}
	a.cancelPending()

	for i, conn := range a.conns {
		if err := conn.send(command{tag: cmdRender, mode: mode}); err != nil {
			a.cancelPending()
			return nil, &VecEnvError{
				Op:  "render",
				Err: fmt.Errorf("worker %v: %w", i, err),
			}
		}
	}

	frames := make([]image.Image, len(a.conns))
	for i, conn := range a.conns {
		r, err := conn.recv()
		if err != nil {
			a.cancelPending()
			return nil, &VecEnvError{
				Op:  "render",
				Err: fmt.Errorf("worker %v: %w", i, err),
			}
		}
		frames[i] = r.frame
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

// Close drains any pending step, shuts every worker down, and waits
// for all of them to terminate. Close is idempotent.
func (a *AsyncVecEnv) Close() error {
	if a.closed {
		return nil
	}
	a.closed = true

	a.cancelPending()
	for _, conn := range a.conns {
		if conn.dead {
			continue
		}
		conn.send(command{tag: cmdClose})
	}
	for _, conn := range a.conns {
		conn.join()
	}
	return nil
}

// cancelPending drains and discards any replies still owed on any
// connection so no worker is left blocked mid-send. This covers both
// a pending async step and a collection abandoned partway through by
// an earlier failure.
func (a *AsyncVecEnv) cancelPending() {
	for _, conn := range a.conns {
		conn.drain()
	}
	a.waiting = false
}

// NumEnvs returns the number of environment instances in the batch
func (a *AsyncVecEnv) NumEnvs() int {
	return len(a.conns)
}

// NumAgents returns the per-instance agent count, adopted from
// worker 0
func (a *AsyncVecEnv) NumAgents() int {
	return a.numAgents
}

// ObservationSpec returns the per-agent observation specifications
func (a *AsyncVecEnv) ObservationSpec() []environment.Spec {
	return a.obsSpec
}

// ShareObservationSpec returns the per-agent shared observation
// specifications
func (a *AsyncVecEnv) ShareObservationSpec() []environment.Spec {
	return a.shareObsSpec
}

// ActionSpec returns the per-agent action specifications
func (a *AsyncVecEnv) ActionSpec() []environment.Spec {
	return a.actionSpec
}
