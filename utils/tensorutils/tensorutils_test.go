package tensorutils

import (
	"testing"

	"gorgonia.org/tensor"
)

func vec(values ...float64) *tensor.Dense {
	return tensor.New(tensor.WithShape(len(values)),
		tensor.WithBacking(values))
}

func TestStack(t *testing.T) {
	stacked, err := Stack([]*tensor.Dense{
		vec(1, 2, 3),
		vec(4, 5, 6),
	})
	if err != nil {
		t.Fatalf("stack: %v", err)
	}
	if !stacked.Shape().Eq(tensor.Shape{2, 3}) {
		t.Fatalf("stack: got shape %v, expected (2, 3)", stacked.Shape())
	}

	want := []float64{1, 2, 3, 4, 5, 6}
	for i, expected := range want {
		if got := stacked.Data().([]float64)[i]; got != expected {
			t.Errorf("stack: entry %v is %v, expected %v", i, got, expected)
		}
	}
}

func TestStackBool(t *testing.T) {
	stacked, err := Stack([]*tensor.Dense{
		tensor.New(tensor.WithShape(2), tensor.WithBacking([]bool{true,
			false})),
		tensor.New(tensor.WithShape(2), tensor.WithBacking([]bool{false,
			true})),
	})
	if err != nil {
		t.Fatalf("stack: %v", err)
	}
	if !stacked.Shape().Eq(tensor.Shape{2, 2}) {
		t.Fatalf("stack: got shape %v, expected (2, 2)", stacked.Shape())
	}

	want := []bool{true, false, false, true}
	for i, expected := range want {
		if got := stacked.Data().([]bool)[i]; got != expected {
			t.Errorf("stack: entry %v is %v, expected %v", i, got, expected)
		}
	}
}

func TestStackShapeMismatch(t *testing.T) {
	_, err := Stack([]*tensor.Dense{vec(1, 2, 3), vec(1, 2)})
	if !IsShapeMismatch(err) {
		t.Errorf("stack returned %v, expected a shape mismatch", err)
	}
}

// TestStackPadded verifies the padding round trip: last-dimension
// sizes (3, 5, 2) padded with 0 must produce a rectangular tensor of
// last dimension 5 whose entries beyond each original extent are
// exactly 0.
func TestStackPadded(t *testing.T) {
	stacked, err := StackPadded([]*tensor.Dense{
		vec(1, 2, 3),
		vec(4, 5, 6, 7, 8),
		vec(9, 10),
	}, 0)
	if err != nil {
		t.Fatalf("stackPadded: %v", err)
	}
	if !stacked.Shape().Eq(tensor.Shape{3, 5}) {
		t.Fatalf("stackPadded: got shape %v, expected (3, 5)",
			stacked.Shape())
	}

	want := [][]float64{
		{1, 2, 3, 0, 0},
		{4, 5, 6, 7, 8},
		{9, 10, 0, 0, 0},
	}
	for i, row := range want {
		for j, expected := range row {
			got, err := stacked.At(i, j)
			if err != nil {
				t.Fatalf("stackPadded: could not index (%v, %v): %v", i, j,
					err)
			}
			if got.(float64) != expected {
				t.Errorf("stackPadded: entry (%v, %v) is %v, expected %v",
					i, j, got, expected)
			}
		}
	}
}

func TestStackPaddedFillValue(t *testing.T) {
	stacked, err := StackPadded([]*tensor.Dense{
		vec(1),
		vec(2, 3),
	}, -1)
	if err != nil {
		t.Fatalf("stackPadded: %v", err)
	}

	got, err := stacked.At(0, 1)
	if err != nil {
		t.Fatalf("stackPadded: could not index (0, 1): %v", err)
	}
	if got.(float64) != -1 {
		t.Errorf("stackPadded: padded entry is %v, expected the fill "+
			"value -1", got)
	}
}

// Higher-rank tensors keep their outer dimensions and gain the stack
// axis immediately before the last axis.
func TestStackPaddedRank2(t *testing.T) {
	a := tensor.New(tensor.WithShape(2, 2),
		tensor.WithBacking([]float64{1, 2, 3, 4}))
	b := tensor.New(tensor.WithShape(2, 3),
		tensor.WithBacking([]float64{5, 6, 7, 8, 9, 10}))

	stacked, err := StackPadded([]*tensor.Dense{a, b}, 0)
	if err != nil {
		t.Fatalf("stackPadded: %v", err)
	}
	if !stacked.Shape().Eq(tensor.Shape{2, 2, 3}) {
		t.Fatalf("stackPadded: got shape %v, expected (2, 2, 3)",
			stacked.Shape())
	}

	// Outer index 1, tensor 0, is row (3, 4) padded to (3, 4, 0)
	checks := map[[3]int]float64{
		{0, 0, 0}: 1, {0, 0, 1}: 2, {0, 0, 2}: 0,
		{0, 1, 0}: 5, {0, 1, 1}: 6, {0, 1, 2}: 7,
		{1, 0, 0}: 3, {1, 0, 1}: 4, {1, 0, 2}: 0,
		{1, 1, 0}: 8, {1, 1, 1}: 9, {1, 1, 2}: 10,
	}
	for coords, expected := range checks {
		got, err := stacked.At(coords[0], coords[1], coords[2])
		if err != nil {
			t.Fatalf("stackPadded: could not index %v: %v", coords, err)
		}
		if got.(float64) != expected {
			t.Errorf("stackPadded: entry %v is %v, expected %v", coords,
				got, expected)
		}
	}
}

// A single-element sequence is unsqueezed with no padding.
func TestStackPaddedSingle(t *testing.T) {
	stacked, err := StackPadded([]*tensor.Dense{vec(1, 2, 3)}, 0)
	if err != nil {
		t.Fatalf("stackPadded: %v", err)
	}
	if !stacked.Shape().Eq(tensor.Shape{1, 3}) {
		t.Fatalf("stackPadded: got shape %v, expected (1, 3)",
			stacked.Shape())
	}
	for j, expected := range []float64{1, 2, 3} {
		got, err := stacked.At(0, j)
		if err != nil {
			t.Fatalf("stackPadded: could not index (0, %v): %v", j, err)
		}
		if got.(float64) != expected {
			t.Errorf("stackPadded: entry (0, %v) is %v, expected %v", j,
				got, expected)
		}
	}
}

func TestStackPaddedShapeMismatch(t *testing.T) {
	a := tensor.New(tensor.WithShape(2, 2),
		tensor.WithBacking([]float64{1, 2, 3, 4}))
	b := tensor.New(tensor.WithShape(3, 2),
		tensor.WithBacking([]float64{1, 2, 3, 4, 5, 6}))

	if _, err := StackPadded([]*tensor.Dense{a, b}, 0); !IsShapeMismatch(err) {
		t.Errorf("stackPadded returned %v, expected a shape mismatch", err)
	}
}
