package environment

import (
	"testing"

	"gorgonia.org/tensor"
)

func TestDone(t *testing.T) {
	tests := []struct {
		name     string
		done     Done
		perAgent bool
		all      bool
	}{
		{"scalar false", ScalarDone(false), false, false},
		{"scalar true", ScalarDone(true), false, true},
		{"per-agent all", PerAgentDone([]bool{true, true}), true, true},
		{"per-agent partial", PerAgentDone([]bool{true, false}), true,
			false},
		{"per-agent none", PerAgentDone([]bool{false, false}), true, false},
	}

	for _, test := range tests {
		if got := test.done.PerAgent(); got != test.perAgent {
			t.Errorf("%v: PerAgent() = %v, expected %v", test.name, got,
				test.perAgent)
		}
		if got := test.done.All(); got != test.all {
			t.Errorf("%v: All() = %v, expected %v", test.name, got,
				test.all)
		}
	}
}

func TestDoneFlagsBroadcast(t *testing.T) {
	flags := ScalarDone(true).Flags(3)
	if len(flags) != 3 {
		t.Fatalf("got %v flags, expected 3", len(flags))
	}
	for i, flag := range flags {
		if !flag {
			t.Errorf("flag %v is false, expected the scalar to broadcast",
				i)
		}
	}
}

// The recorded terminal tensors must be deep copies: mutating the
// step's tensors after recording must not change the record.
func TestRecordOriginalDeepCopies(t *testing.T) {
	obs := tensor.New(tensor.WithShape(1, 2),
		tensor.WithBacking([]float64{1, 2}))
	sharedObs := tensor.New(tensor.WithShape(1, 2),
		tensor.WithBacking([]float64{3, 4}))
	avail := tensor.New(tensor.WithShape(1, 2),
		tensor.WithBacking([]float64{5, 6}))

	res := StepResult{Obs: obs, SharedObs: sharedObs, AvailActions: avail}
	res.RecordOriginal()

	obs.Data().([]float64)[0] = -1
	sharedObs.Data().([]float64)[0] = -1
	avail.Data().([]float64)[0] = -1

	record := res.Info[0]
	if got := record[OriginalObs].(*tensor.Dense).Data().([]float64)[0]; got != 1 {
		t.Errorf("recorded observation is %v, expected the pre-mutation "+
			"value 1", got)
	}
	if got := record[OriginalState].(*tensor.Dense).Data().([]float64)[0]; got != 3 {
		t.Errorf("recorded state is %v, expected the pre-mutation value "+
			"3", got)
	}
	if got := record[OriginalAvailActions].(*tensor.Dense).Data().([]float64)[0]; got != 5 {
		t.Errorf("recorded available actions are %v, expected the "+
			"pre-mutation value 5", got)
	}
}
