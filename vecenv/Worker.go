package vecenv

import (
	"fmt"
	"image"

	"gonum.org/v1/gonum/mat"
	"gorgonia.org/tensor"

	"github.com/some45bucks/HARL/environment"
)

// commandTag identifies the operation a command asks a worker to
// perform
type commandTag int

const (
	cmdStep commandTag = iota
	cmdReset
	cmdResetTask
	cmdRender
	cmdClose
	cmdGetSpaces
	cmdGetNumAgents
	cmdRenderVulnerability
)

func (c commandTag) String() string {
	switch c {
	case cmdStep:
		return "step"
	case cmdReset:
		return "reset"
	case cmdResetTask:
		return "reset_task"
	case cmdRender:
		return "render"
	case cmdClose:
		return "close"
	case cmdGetSpaces:
		return "get_spaces"
	case cmdGetNumAgents:
		return "get_num_agents"
	case cmdRenderVulnerability:
		return "render_vulnerability"
	default:
		return fmt.Sprintf("commandTag(%v)", int(c))
	}
}

// command is a tagged request sent from the orchestrator to a worker.
// Only the field relevant to the tag is set.
type command struct {
	tag     commandTag
	actions *mat.Dense  // cmdStep
	mode    string      // cmdRender
	data    interface{} // cmdRenderVulnerability
}

// reply is a worker's response to a single command. Every command
// except cmdClose produces exactly one reply. A reply with a non-nil
// err and fatal set marks the worker as terminated: it processes no
// further commands and its reply channel is closed.
type reply struct {
	step environment.StepResult // cmdStep

	obs          *tensor.Dense // cmdReset
	sharedObs    *tensor.Dense
	availActions *tensor.Dense

	task *tensor.Dense // cmdResetTask

	frame image.Image // cmdRender, cmdRenderVulnerability

	obsSpec      []environment.Spec // cmdGetSpaces
	shareObsSpec []environment.Spec
	actionSpec   []environment.Spec

	numAgents int // cmdGetNumAgents

	err   error
	fatal bool
}

// conn is the orchestrator's end of the duplex channel pair shared
// with one worker. Exactly one request may be outstanding at a time;
// pending tracks whether a reply is owed. A conn whose worker has
// terminated is dead: nothing may be sent on it again.
type conn struct {
	cmds    chan command
	replies chan reply
	pending bool
	dead    bool
}

func newConn() *conn {
	return &conn{
		cmds:    make(chan command),
		replies: make(chan reply),
	}
}

// send delivers one command to the worker. Every command except
// cmdClose owes a reply.
func (c *conn) send(cmd command) error {
	if c.dead {
		return fmt.Errorf("send: cannot send %v: %w", cmd.tag,
			errWorkerFailure)
	}
	c.cmds <- cmd
	c.pending = cmd.tag != cmdClose
	return nil
}

// recv blocks for the worker's next reply. An unexpected channel
// close or a fatal reply marks the conn dead.
func (c *conn) recv() (reply, error) {
	r, ok := <-c.replies
	c.pending = false
	if !ok {
		c.dead = true
		return reply{}, fmt.Errorf("recv: reply channel closed "+
			"unexpectedly: %w", errWorkerFailure)
	}
	if r.fatal {
		c.dead = true
		return r, fmt.Errorf("recv: %w: %w", r.err, errWorkerFailure)
	}
	if r.err != nil {
		return r, fmt.Errorf("recv: %w", r.err)
	}
	return r, nil
}

// drain discards an owed reply so the worker is not left blocked
// mid-send
func (c *conn) drain() {
	if c.pending && !c.dead {
		c.recv()
	}
}

// join waits for the worker goroutine to terminate
func (c *conn) join() {
	for range c.replies {
	}
	c.dead = true
}

// stepEnv advances a single instance one timestep, applying the
// auto-reset policy: when the step terminates the episode, the
// terminal observation, shared observation, and available-action mask
// are deep-copied into the info record of agent 0, the instance is
// reset, and the fresh reset outputs replace the returned
// observation, shared observation, and mask. The reward, done, and
// info values of the terminal step are preserved unchanged.
//
// Both vectorized implementations advance instances through this one
// function, so their auto-reset behavior is identical.
func stepEnv(env environment.Environment,
	actions *mat.Dense) (environment.StepResult, error) {
	res, err := env.Step(actions)
	if err != nil {
		return environment.StepResult{}, fmt.Errorf("stepEnv: could not "+
			"step environment: %v", err)
	}

	if res.Done.All() {
		res.RecordOriginal()
		obs, sharedObs, availActions, err := env.Reset()
		if err != nil {
			return environment.StepResult{}, fmt.Errorf("stepEnv: could "+
				"not auto-reset environment: %v", err)
		}
		res.Obs = obs
		res.SharedObs = sharedObs
		res.AvailActions = availActions
	}

	return res, nil
}

// worker owns exactly one environment instance and executes commands
// received on its conn until cmdClose or a fatal failure
type worker struct {
	conn *conn
	make Maker
}

// run is the worker loop. The environment is constructed here, inside
// the worker goroutine, so no other goroutine ever holds a reference
// to it. The loop terminates on cmdClose, on an environment error, or
// on an unrecognized command; the deferred close of the reply channel
// is the worker's termination signal to the orchestrator.
func (w *worker) run() {
	defer close(w.conn.replies)

	env, err := w.make()
	if err != nil {
		// Construction failed: report it on the first command so the
		// orchestrator observes the failure, then terminate.
		cmd, ok := <-w.conn.cmds
		if !ok || cmd.tag == cmdClose {
			return
		}
		w.conn.replies <- reply{
			err:   fmt.Errorf("run: could not construct environment: %v", err),
			fatal: true,
		}
		return
	}

	for cmd := range w.conn.cmds {
		switch cmd.tag {
		case cmdStep:
			res, err := stepEnv(env, cmd.actions)
			if err != nil {
				w.conn.replies <- reply{err: err, fatal: true}
				return
			}
			w.conn.replies <- reply{step: res}

		case cmdReset:
			obs, sharedObs, availActions, err := env.Reset()
			if err != nil {
				w.conn.replies <- reply{
					err:   fmt.Errorf("run: could not reset: %v", err),
					fatal: true,
				}
				return
			}
			w.conn.replies <- reply{
				obs:          obs,
				sharedObs:    sharedObs,
				availActions: availActions,
			}

		case cmdResetTask:
			resetter, ok := env.(environment.TaskResetter)
			if !ok {
				w.conn.replies <- reply{err: fmt.Errorf("run: reset_task: "+
					"%w", errMissingCapability)}
				continue
			}
			task, err := resetter.ResetTask()
			if err != nil {
				w.conn.replies <- reply{
					err:   fmt.Errorf("run: could not reset task: %v", err),
					fatal: true,
				}
				return
			}
			w.conn.replies <- reply{task: task}

		case cmdRender:
			renderer, ok := env.(environment.Renderer)
			if !ok {
				w.conn.replies <- reply{err: fmt.Errorf("run: render: %w",
					errMissingCapability)}
				continue
			}
			frame, err := renderer.Render(cmd.mode)
			if err != nil {
				w.conn.replies <- reply{
					err:   fmt.Errorf("run: could not render: %v", err),
					fatal: true,
				}
				return
			}
			if cmd.mode == ModeHuman {
				// The instance displayed the frame itself; the reply
				// only acknowledges completion.
				w.conn.replies <- reply{}
				continue
			}
			w.conn.replies <- reply{frame: frame}

		case cmdRenderVulnerability:
			renderer, ok := env.(environment.VulnerabilityRenderer)
			if !ok {
				w.conn.replies <- reply{err: fmt.Errorf("run: "+
					"render_vulnerability: %w", errMissingCapability)}
				continue
			}
			frame, err := renderer.RenderVulnerability(cmd.data)
			if err != nil {
				w.conn.replies <- reply{
					err: fmt.Errorf("run: could not render "+
						"vulnerability: %v", err),
					fatal: true,
				}
				return
			}
			w.conn.replies <- reply{frame: frame}

		case cmdGetSpaces:
			w.conn.replies <- reply{
				obsSpec:      env.ObservationSpec(),
				shareObsSpec: env.ShareObservationSpec(),
				actionSpec:   env.ActionSpec(),
			}

		case cmdGetNumAgents:
			w.conn.replies <- reply{numAgents: env.NumAgents()}

		case cmdClose:
			env.Close()
			return

		default:
			w.conn.replies <- reply{
				err:   fmt.Errorf("run: %v: %w", cmd.tag, errUnsupportedCommand),
				fatal: true,
			}
			return
		}
	}
}
