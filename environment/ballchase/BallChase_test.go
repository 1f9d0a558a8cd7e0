package ballchase

import (
	"testing"

	"gonum.org/v1/gonum/mat"
	"gorgonia.org/tensor"

	env "github.com/some45bucks/HARL/environment"
)

func TestNew(t *testing.T) {
	b, err := New(3, 100, false, 42)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer b.Close()

	if b.NumAgents() != 3 {
		t.Errorf("NumAgents is %v, expected 3", b.NumAgents())
	}

	// The scout observes more features than the other agents
	obsSpec := b.ObservationSpec()
	if obsSpec[0].Shape.Len() != scoutFeatures {
		t.Errorf("scout spec has %v features, expected %v",
			obsSpec[0].Shape.Len(), scoutFeatures)
	}
	for i := 1; i < 3; i++ {
		if obsSpec[i].Shape.Len() != agentFeatures {
			t.Errorf("agent %v spec has %v features, expected %v", i,
				obsSpec[i].Shape.Len(), agentFeatures)
		}
	}

	if got := b.ShareObservationSpec()[0].Shape.Len(); got != 10 {
		t.Errorf("shared observation spec has %v features, expected 10",
			got)
	}
	if got := b.ActionSpec()[0].Shape.Len(); got != 2 {
		t.Errorf("action spec has %v features, expected 2", got)
	}
}

func TestResetAndStep(t *testing.T) {
	b, err := New(3, 100, false, 42)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer b.Close()

	obs, sharedObs, availActions, err := b.Reset()
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	// Observations pad the non-scout agents up to the scout's length
	if !obs.Shape().Eq(tensor.Shape{3, scoutFeatures}) {
		t.Fatalf("reset: observation shape is %v, expected (3, %v)",
			obs.Shape(), scoutFeatures)
	}
	if !sharedObs.Shape().Eq(tensor.Shape{3, 10}) {
		t.Fatalf("reset: shared observation shape is %v, expected "+
			"(3, 10)", sharedObs.Shape())
	}
	if availActions != nil {
		t.Error("reset: continuous actions should have no action mask")
	}

	// Non-scout observations are padded with zeros
	for _, agent := range []int{1, 2} {
		for _, feature := range []int{6, 7} {
			got, err := obs.At(agent, feature)
			if err != nil {
				t.Fatalf("reset: could not index observation: %v", err)
			}
			if got.(float64) != 0 {
				t.Errorf("reset: agent %v feature %v is %v, expected "+
					"padding to be 0", agent, feature, got)
			}
		}
	}

	actions := mat.NewDense(3, 2, []float64{
		1, 0,
		0, 1,
		-1, -1,
	})
	for step := 1; step <= 5; step++ {
		res, err := b.Step(actions)
		if err != nil {
			t.Fatalf("step %v: %v", step, err)
		}
		if !res.Obs.Shape().Eq(tensor.Shape{3, scoutFeatures}) {
			t.Fatalf("step %v: observation shape is %v", step,
				res.Obs.Shape())
		}
		if !res.Reward.Shape().Eq(tensor.Shape{3, 1}) {
			t.Fatalf("step %v: reward shape is %v, expected (3, 1)", step,
				res.Reward.Shape())
		}
		if res.Done.All() {
			t.Fatalf("step %v: episode ended before the cutoff", step)
		}
		if len(res.Info) != 3 {
			t.Fatalf("step %v: got %v info records, expected 3", step,
				len(res.Info))
		}
		if _, ok := res.Info[0]["distance"]; !ok {
			t.Errorf("step %v: info is missing the ball distance", step)
		}

		// Rewards are negative distances
		for agent := 0; agent < 3; agent++ {
			reward, err := res.Reward.At(agent, 0)
			if err != nil {
				t.Fatalf("step %v: could not index reward: %v", step, err)
			}
			if reward.(float64) > 0 {
				t.Errorf("step %v: agent %v reward is %v, expected a "+
					"non-positive distance penalty", step, agent, reward)
			}
		}
	}
}

func TestEpisodeCutoff(t *testing.T) {
	b, err := New(2, 3, false, 7)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer b.Close()

	if _, _, _, err := b.Reset(); err != nil {
		t.Fatalf("reset: %v", err)
	}

	actions := mat.NewDense(2, 2, nil)
	for step := 1; step <= 3; step++ {
		res, err := b.Step(actions)
		if err != nil {
			t.Fatalf("step %v: %v", step, err)
		}
		if terminal := step == 3; res.Done.All() != terminal {
			t.Errorf("step %v: Done.All() = %v, expected %v", step,
				res.Done.All(), terminal)
		}
	}
}

func TestPerAgentDoneAtCutoff(t *testing.T) {
	b, err := New(2, 1, true, 7)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer b.Close()

	if _, _, _, err := b.Reset(); err != nil {
		t.Fatalf("reset: %v", err)
	}

	res, err := b.Step(mat.NewDense(2, 2, nil))
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	if !res.Done.PerAgent() {
		t.Fatal("expected the per-agent termination representation")
	}
	if !res.Done.All() {
		t.Error("expected every agent to terminate at the cutoff")
	}
}

func TestActionValidation(t *testing.T) {
	b, err := New(2, 100, false, 7)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer b.Close()

	if _, _, _, err := b.Reset(); err != nil {
		t.Fatalf("reset: %v", err)
	}

	if _, err := b.Step(mat.NewDense(3, 2, nil)); err == nil {
		t.Error("step should reject an action matrix with the wrong " +
			"number of rows")
	}
	if _, err := b.Step(mat.NewDense(2, 3, nil)); err == nil {
		t.Error("step should reject an action matrix with the wrong " +
			"number of columns")
	}
}

func TestResetTask(t *testing.T) {
	b, err := New(2, 100, false, 7)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer b.Close()

	if _, _, _, err := b.Reset(); err != nil {
		t.Fatalf("reset: %v", err)
	}

	before := b.agents[0].GetPosition()
	obs, err := b.ResetTask()
	if err != nil {
		t.Fatalf("resetTask: %v", err)
	}
	if !obs.Shape().Eq(tensor.Shape{2, scoutFeatures}) {
		t.Errorf("resetTask: observation shape is %v", obs.Shape())
	}

	// Task resets move the ball, not the agents
	after := b.agents[0].GetPosition()
	if before.X != after.X || before.Y != after.Y {
		t.Error("resetTask moved an agent")
	}
}

func TestState(t *testing.T) {
	b, err := New(3, 100, false, 7)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer b.Close()

	if _, _, _, err := b.Reset(); err != nil {
		t.Fatalf("reset: %v", err)
	}

	var _ env.Stater = b
	state, err := b.State()
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if !state.Shape().Eq(tensor.Shape{10}) {
		t.Errorf("state shape is %v, expected (10)", state.Shape())
	}
}

func TestRender(t *testing.T) {
	b, err := New(2, 100, false, 7)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer b.Close()

	if _, _, _, err := b.Reset(); err != nil {
		t.Fatalf("reset: %v", err)
	}

	frame, err := b.Render("rgb_array")
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	want := int(ArenaSize * Scale)
	if frame.Bounds().Dx() != want || frame.Bounds().Dy() != want {
		t.Errorf("render: frame is %vx%v, expected %vx%v",
			frame.Bounds().Dx(), frame.Bounds().Dy(), want, want)
	}

	if _, err := b.Render("invalid"); err == nil {
		t.Error("render should reject unknown modes")
	}
}
