// Package tensorutils provides utilities for combining dense tensors
// into batches.
package tensorutils

import (
	"errors"
	"fmt"

	"gorgonia.org/tensor"
)

var errShapeMismatch = errors.New("tensors disagree on a non-paddable " +
	"dimension")

// IsShapeMismatch returns whether an error reports that a sequence of
// tensors could not be stacked because their shapes disagree in a
// dimension that stacking cannot reconcile.
func IsShapeMismatch(err error) bool {
	return errors.Is(err, errShapeMismatch)
}

// Stack combines a sequence of identically-shaped Float64 or Bool
// tensors into one tensor with a new leading batch axis: stacking n
// tensors of shape s yields a tensor of shape (n, s...). Position i
// along the new axis holds tensors[i].
func Stack(ts []*tensor.Dense) (*tensor.Dense, error) {
	if len(ts) == 0 {
		return nil, fmt.Errorf("stack: no tensors to stack")
	}

	shape := ts[0].Shape()
	for i, t := range ts[1:] {
		if !t.Shape().Eq(shape) {
			return nil, fmt.Errorf("stack: tensor %v has shape %v, "+
				"expected %v: %w", i+1, t.Shape(), shape, errShapeMismatch)
		}
	}

	size := shape.TotalSize()
	outShape := append([]int{len(ts)}, shape...)

	switch ts[0].Data().(type) {
	case []float64, float64:
		backing := make([]float64, len(ts)*size)
		for i, t := range ts {
			copy(backing[i*size:(i+1)*size], float64Data(t))
		}
		return tensor.New(tensor.WithShape(outShape...),
			tensor.WithBacking(backing)), nil

	case []bool, bool:
		backing := make([]bool, len(ts)*size)
		for i, t := range ts {
			copy(backing[i*size:(i+1)*size], boolData(t))
		}
		return tensor.New(tensor.WithShape(outShape...),
			tensor.WithBacking(backing)), nil
	}

	return nil, fmt.Errorf("stack: unsupported tensor dtype %v",
		ts[0].Dtype())
}

// StackPadded combines a sequence of Float64 tensors that agree on
// every dimension except the last into one rectangular tensor. Each
// tensor's last dimension is right-padded with fill up to the largest
// last-dimension extent in the sequence, and the padded tensors are
// stacked along a new axis placed immediately before the last axis:
// stacking n tensors of shape (s..., d_i) yields shape
// (s..., n, max(d_i)). Entries within each tensor's original extent
// are copied unchanged; entries beyond it are exactly fill.
//
// A single-element sequence is returned unsqueezed with no padding.
func StackPadded(ts []*tensor.Dense, fill float64) (*tensor.Dense,
	error) {
	if len(ts) == 0 {
		return nil, fmt.Errorf("stackPadded: no tensors to stack")
	}

	first := ts[0].Shape()
	if len(first) < 1 {
		return nil, fmt.Errorf("stackPadded: tensors must have rank >= 1")
	}
	outer := first[:len(first)-1]

	maxSize := 0
	for i, t := range ts {
		shape := t.Shape()
		if len(shape) != len(first) ||
			!tensor.Shape(shape[:len(shape)-1]).Eq(tensor.Shape(outer)) {
			return nil, fmt.Errorf("stackPadded: tensor %v has shape %v, "+
				"expected %v in all but the last dimension: %w",
				i, shape, first, errShapeMismatch)
		}
		if last := shape[len(shape)-1]; last > maxSize {
			maxSize = last
		}
	}

	outerSize := 1
	for _, d := range outer {
		outerSize *= d
	}

	n := len(ts)
	backing := make([]float64, outerSize*n*maxSize)
	if fill != 0 {
		for i := range backing {
			backing[i] = fill
		}
	}

	// Row-major layout: row o of tensor i lands at block (o*n + i).
	for i, t := range ts {
		data := float64Data(t)
		last := t.Shape()[len(first)-1]
		for o := 0; o < outerSize; o++ {
			dst := (o*n + i) * maxSize
			copy(backing[dst:dst+last], data[o*last:(o+1)*last])
		}
	}

	outShape := append(append([]int{}, outer...), n, maxSize)
	return tensor.New(tensor.WithShape(outShape...),
		tensor.WithBacking(backing)), nil
}

// float64Data returns the backing data of a Float64 tensor. Tensors
// with a single element report their data as a bare scalar, which is
// re-wrapped here so callers always see a slice.
func float64Data(t *tensor.Dense) []float64 {
	switch data := t.Data().(type) {
	case []float64:
		return data
	case float64:
		return []float64{data}
	}
	panic(fmt.Sprintf("float64Data: tensor has dtype %v, expected %v",
		t.Dtype(), tensor.Float64))
}

// boolData returns the backing data of a Bool tensor
func boolData(t *tensor.Dense) []bool {
	switch data := t.Data().(type) {
	case []bool:
		return data
	case bool:
		return []bool{data}
	}
	panic(fmt.Sprintf("boolData: tensor has dtype %v, expected %v",
		t.Dtype(), tensor.Bool))
}
