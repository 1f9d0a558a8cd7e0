// Package ballchase implements a small cooperative multi-agent
// environment in which n agents push themselves around a walled,
// top-down arena trying to reach a free-rolling ball.
//
// Each agent observes its own position and velocity and the offset to
// the ball; agent 0 is the scout and additionally observes the ball's
// velocity, so the per-agent observation lengths differ and are
// padded to a rectangle. Actions are continuous 2D forces. Rewards
// are the negative distance to the ball, one per agent.
//
// The environment supports both termination representations: with
// per-agent termination, each agent terminates once it has touched
// the ball and the episode ends when all have; otherwise a single
// episode flag is raised at the step cutoff.
package ballchase

import (
	"fmt"
	"image"
	"math"

	"github.com/ByteArena/box2d"
	"github.com/fogleman/gg"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r1"
	"gonum.org/v1/gonum/stat/distuv"
	"gorgonia.org/tensor"

	env "github.com/some45bucks/HARL/environment"
	"github.com/some45bucks/HARL/utils/floatutils"
	"github.com/some45bucks/HARL/utils/tensorutils"
)

const (
	// ArenaSize is the side length of the square arena in world units
	ArenaSize float64 = 10.0

	// AgentRadius and BallRadius are the body radii in world units
	AgentRadius float64 = 0.25
	BallRadius  float64 = 0.25

	// CaptureRadius is the centre distance below which an agent
	// counts as having reached the ball
	CaptureRadius float64 = 0.75

	// MaxForce bounds each component of an agent's action
	MaxForce float64 = 5.0

	// Physics stepping parameters
	Timestep           float64 = 1.0 / 30.0
	VelocityIterations int     = 8
	PositionIterations int     = 3

	// Scale is the number of pixels per world unit when rendering
	Scale float64 = 48.0

	scoutFeatures    int = 8 // agent 0 also sees the ball's velocity
	agentFeatures    int = 6
	ballDamping          = 0.5
	agentDamping         = 1.0
)

// BallChase implements a single ball-chasing environment instance
type BallChase struct {
	world    box2d.B2World
	boundary []*box2d.B2Body
	agents   []*box2d.B2Body
	ball     *box2d.B2Body

	starter      env.UniformStarter
	rng          distuv.Uniform
	actionBounds r1.Interval

	numAgents    int
	cutoff       int
	perAgentDone bool

	stepNum  int
	captured []bool
	frameNum int
}

// New returns a new BallChase with numAgents agents. The episode ends
// after cutoff steps; with perAgentDone, each agent additionally
// terminates on reaching the ball and the episode ends when all have.
func New(numAgents, cutoff int, perAgentDone bool,
	seed uint64) (*BallChase, error) {
	if numAgents < 1 {
		return nil, fmt.Errorf("new: numAgents must be positive, got %v",
			numAgents)
	}
	if cutoff < 1 {
		return nil, fmt.Errorf("new: cutoff must be positive, got %v",
			cutoff)
	}

	b := &BallChase{
		numAgents:    numAgents,
		cutoff:       cutoff,
		perAgentDone: perAgentDone,
		captured:     make([]bool, numAgents),
		actionBounds: r1.Interval{Min: -MaxForce, Max: MaxForce},
	}

	// Top-down world, no gravity
	b.world = box2d.MakeB2World(box2d.MakeB2Vec2(0.0, 0.0))

	// Walls
	b.boundary = make([]*box2d.B2Body, 4)
	corners := [5]box2d.B2Vec2{
		box2d.MakeB2Vec2(0.0, 0.0),
		box2d.MakeB2Vec2(0.0, ArenaSize),
		box2d.MakeB2Vec2(ArenaSize, ArenaSize),
		box2d.MakeB2Vec2(ArenaSize, 0.0),
		box2d.MakeB2Vec2(0.0, 0.0),
	}
	for i := 0; i < 4; i++ {
		wallDef := box2d.NewB2BodyDef()
		wallDef.Type = 0 // Static body
		b.boundary[i] = b.world.CreateBody(wallDef)
		wallShape := box2d.NewB2EdgeShape()
		wallShape.Set(corners[i], corners[i+1])
		wallFix := box2d.MakeB2FixtureDef()
		wallFix.Shape = wallShape
		b.boundary[i].CreateFixtureFromDef(&wallFix)
	}

	// Agents
	b.agents = make([]*box2d.B2Body, numAgents)
	for i := range b.agents {
		agentDef := box2d.NewB2BodyDef()
		agentDef.Type = 2 // Dynamic body
		agentDef.LinearDamping = agentDamping
		body := b.world.CreateBody(agentDef)

		agentShape := box2d.NewB2CircleShape()
		agentShape.M_radius = AgentRadius
		agentFix := box2d.MakeB2FixtureDef()
		agentFix.Shape = agentShape
		agentFix.Density = 1.0
		agentFix.Friction = 0.3
		agentFix.Restitution = 0.3
		body.CreateFixtureFromDef(&agentFix)
		b.agents[i] = body
	}

	// Ball
	ballDef := box2d.NewB2BodyDef()
	ballDef.Type = 2 // Dynamic body
	ballDef.LinearDamping = ballDamping
	b.ball = b.world.CreateBody(ballDef)
	ballShape := box2d.NewB2CircleShape()
	ballShape.M_radius = BallRadius
	ballFix := box2d.MakeB2FixtureDef()
	ballFix.Shape = ballShape
	ballFix.Density = 0.5
	ballFix.Friction = 0.1
	ballFix.Restitution = 0.8
	b.ball.CreateFixtureFromDef(&ballFix)

	// Start states are sampled away from the walls
	margin := ArenaSize * 0.1
	bounds := []r1.Interval{
		{Min: margin, Max: ArenaSize - margin},
		{Min: margin, Max: ArenaSize - margin},
	}
	b.starter = env.NewUniformStarter(bounds, seed)
	b.rng = distuv.Uniform{Min: -1.0, Max: 1.0,
		Src: rand.NewSource(seed)}

	return b, nil
}

// Reset starts a new episode with fresh body placements
func (b *BallChase) Reset() (*tensor.Dense, *tensor.Dense, *tensor.Dense,
	error) {
	b.stepNum = 0
	for i := range b.captured {
		b.captured[i] = false
	}

	starts := b.starter.StartN(b.numAgents + 1)
	for i, agent := range b.agents {
		b.place(agent, starts.At(i, 0), starts.At(i, 1))
	}
	b.place(b.ball, starts.At(b.numAgents, 0), starts.At(b.numAgents, 1))
	b.kickBall()

	obs, err := b.observations()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("reset: %v", err)
	}
	return obs, b.sharedObservations(), nil, nil
}

// Step advances the environment one timestep. Row i of actions holds
// agent i's 2D force.
func (b *BallChase) Step(actions *mat.Dense) (env.StepResult, error) {
	rows, cols := actions.Dims()
	if rows != b.numAgents || cols != 2 {
		return env.StepResult{}, fmt.Errorf("step: actions must be "+
			"%vx2, got %vx%v", b.numAgents, rows, cols)
	}

	for i, agent := range b.agents {
		force := box2d.MakeB2Vec2(
			floatutils.ClipInterval(actions.At(i, 0), b.actionBounds),
			floatutils.ClipInterval(actions.At(i, 1), b.actionBounds),
		)
		agent.ApplyForceToCenter(force, true)
	}

	b.world.Step(Timestep, VelocityIterations, PositionIterations)
	b.stepNum++

	rewards := make([]float64, b.numAgents)
	info := make([]env.InfoRecord, b.numAgents)
	for i, agent := range b.agents {
		dist := b.ballDistance(agent)
		rewards[i] = -dist / ArenaSize
		if dist <= CaptureRadius {
			b.captured[i] = true
		}
		info[i] = env.InfoRecord{"distance": dist}
	}

	obs, err := b.observations()
	if err != nil {
		return env.StepResult{}, fmt.Errorf("step: %v", err)
	}

	res := env.StepResult{
		Obs:       obs,
		SharedObs: b.sharedObservations(),
		Reward: tensor.New(tensor.WithShape(b.numAgents, 1),
			tensor.WithBacking(rewards)),
		Done: b.done(),
		Info: info,
	}
	return res, nil
}

// done builds the termination signal for the current step
func (b *BallChase) done() env.Done {
	cutoff := b.stepNum >= b.cutoff

	if !b.perAgentDone {
		allCaptured := true
		for _, captured := range b.captured {
			allCaptured = allCaptured && captured
		}
		return env.ScalarDone(cutoff || allCaptured)
	}

	flags := make([]bool, b.numAgents)
	for i, captured := range b.captured {
		flags[i] = captured || cutoff
	}
	return env.PerAgentDone(flags)
}

// ResetTask re-places the ball, keeping the agents where they are,
// and returns the resulting observations
func (b *BallChase) ResetTask() (*tensor.Dense, error) {
	start := b.starter.Start()
	b.place(b.ball, start.AtVec(0), start.AtVec(1))
	b.kickBall()

	obs, err := b.observations()
	if err != nil {
		return nil, fmt.Errorf("resetTask: %v", err)
	}
	return obs, nil
}

// State returns the global state vector: the ball's position and
// velocity followed by every agent's position
func (b *BallChase) State() (*tensor.Dense, error) {
	return tensor.New(tensor.WithShape(4+2*b.numAgents),
		tensor.WithBacking(b.stateVector())), nil
}

// Render draws the arena. Mode "rgb_array" returns the frame; mode
// "human" saves the frame as a PNG in the working directory and
// returns a nil image.
func (b *BallChase) Render(mode string) (image.Image, error) {
	dc := gg.NewContext(int(ArenaSize*Scale), int(ArenaSize*Scale))
	dc.SetRGB(0.12, 0.12, 0.12)
	dc.Clear()

	dc.SetRGB255(255, 166, 0)
	dc.SetLineWidth(4.0)
	dc.DrawRectangle(0, 0, ArenaSize*Scale, ArenaSize*Scale)
	dc.Stroke()

	dc.SetRGB255(230, 230, 230)
	ballPos := b.ball.GetPosition()
	dc.DrawCircle(ballPos.X*Scale, ballPos.Y*Scale, BallRadius*Scale)
	dc.Fill()

	for i, agent := range b.agents {
		if i == 0 {
			dc.SetRGB255(128, 102, 230) // scout
		} else {
			dc.SetRGB255(77, 77, 128)
		}
		pos := agent.GetPosition()
		dc.DrawCircle(pos.X*Scale, pos.Y*Scale, AgentRadius*Scale)
		dc.Fill()
	}

	switch mode {
	case "rgb_array":
		return dc.Image(), nil
	case "human":
		b.frameNum++
		name := fmt.Sprintf("./ballchase%v.png", b.frameNum)
		if err := dc.SavePNG(name); err != nil {
			return nil, fmt.Errorf("render: could not save frame: %v", err)
		}
		return nil, nil
	}
	return nil, fmt.Errorf("render: unknown mode %q", mode)
}

// Close releases the instance. BallChase holds no external resources,
// so this only invalidates the bodies.
func (b *BallChase) Close() error {
	for _, agent := range b.agents {
		b.world.DestroyBody(agent)
	}
	b.world.DestroyBody(b.ball)
	for _, wall := range b.boundary {
		b.world.DestroyBody(wall)
	}
	b.agents = nil
	b.ball = nil
	b.boundary = nil
	return nil
}

// ObservationSpec returns the per-agent observation specifications.
// The scout's observation is longer than the others'.
func (b *BallChase) ObservationSpec() []env.Spec {
	specs := make([]env.Spec, b.numAgents)
	for i := range specs {
		features := agentFeatures
		if i == 0 {
			features = scoutFeatures
		}
		specs[i] = boxSpec(features, env.Observation, -ArenaSize, ArenaSize)
	}
	return specs
}

// ShareObservationSpec returns the per-agent shared observation
// specifications
func (b *BallChase) ShareObservationSpec() []env.Spec {
	specs := make([]env.Spec, b.numAgents)
	for i := range specs {
		specs[i] = boxSpec(4+2*b.numAgents, env.ShareObservation,
			-ArenaSize, ArenaSize)
	}
	return specs
}

// ActionSpec returns the per-agent action specifications
func (b *BallChase) ActionSpec() []env.Spec {
	specs := make([]env.Spec, b.numAgents)
	for i := range specs {
		specs[i] = boxSpec(2, env.Action, -MaxForce, MaxForce)
	}
	return specs
}

// NumAgents returns the number of agents in the arena
func (b *BallChase) NumAgents() int {
	return b.numAgents
}

// observations assembles the per-agent observation vectors, padding
// the shorter ones so all agents share one rectangular tensor
func (b *BallChase) observations() (*tensor.Dense, error) {
	ballPos := b.ball.GetPosition()
	ballVel := b.ball.GetLinearVelocity()

	perAgent := make([]*tensor.Dense, b.numAgents)
	for i, agent := range b.agents {
		pos := agent.GetPosition()
		vel := agent.GetLinearVelocity()
		features := []float64{
			pos.X, pos.Y, vel.X, vel.Y,
			ballPos.X - pos.X, ballPos.Y - pos.Y,
		}
		if i == 0 {
			features = append(features, ballVel.X, ballVel.Y)
		}
		perAgent[i] = tensor.New(tensor.WithShape(len(features)),
			tensor.WithBacking(features))
	}

	obs, err := tensorutils.StackPadded(perAgent, 0)
	if err != nil {
		return nil, fmt.Errorf("observations: could not assemble "+
			"per-agent observations: %v", err)
	}
	return obs, nil
}

// sharedObservations broadcasts the global state vector to one row
// per agent
func (b *BallChase) sharedObservations() *tensor.Dense {
	state := b.stateVector()
	backing := make([]float64, 0, b.numAgents*len(state))
	for i := 0; i < b.numAgents; i++ {
		backing = append(backing, state...)
	}
	return tensor.New(tensor.WithShape(b.numAgents, len(state)),
		tensor.WithBacking(backing))
}

func (b *BallChase) stateVector() []float64 {
	ballPos := b.ball.GetPosition()
	ballVel := b.ball.GetLinearVelocity()
	state := make([]float64, 0, 4+2*b.numAgents)
	state = append(state, ballPos.X, ballPos.Y, ballVel.X, ballVel.Y)
	for _, agent := range b.agents {
		pos := agent.GetPosition()
		state = append(state, pos.X, pos.Y)
	}
	return state
}

func (b *BallChase) ballDistance(agent *box2d.B2Body) float64 {
	pos := agent.GetPosition()
	ballPos := b.ball.GetPosition()
	return math.Hypot(ballPos.X-pos.X, ballPos.Y-pos.Y)
}

// place moves a body to (x, y) at rest
func (b *BallChase) place(body *box2d.B2Body, x, y float64) {
	body.SetTransform(box2d.MakeB2Vec2(x, y), 0.0)
	body.SetLinearVelocity(box2d.MakeB2Vec2(0.0, 0.0))
	body.SetAngularVelocity(0.0)
}

// kickBall gives the ball a small random initial velocity
func (b *BallChase) kickBall() {
	b.ball.SetLinearVelocity(box2d.MakeB2Vec2(b.rng.Rand(), b.rng.Rand()))
}

func boxSpec(features int, specType env.SpecType, low,
	high float64) env.Spec {
	shape := mat.NewVecDense(features, nil)
	lower := mat.NewVecDense(features, nil)
	upper := mat.NewVecDense(features, nil)
	for i := 0; i < features; i++ {
		lower.SetVec(i, low)
		upper.SetVec(i, high)
	}
	return env.NewSpec(shape, specType, lower, upper, env.Continuous)
}
