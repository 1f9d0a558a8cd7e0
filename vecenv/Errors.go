package vecenv

import (
	"errors"

	"github.com/some45bucks/HARL/utils/tensorutils"
)

// VecEnvError implements errors unique to a vectorized environment.
type VecEnvError struct {
	Op  string
	Err error
}

// Error satisfies the error interface
func (e *VecEnvError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

// Unwrap returns the underlying error
func (e *VecEnvError) Unwrap() error {
	return e.Err
}

var errProtocolViolation = errors.New("two-phase step protocol violated")

var errUnsupportedCommand = errors.New("unsupported command")

var errMissingCapability = errors.New("environment does not provide " +
	"capability")

var errWorkerFailure = errors.New("worker failed")

var errClosed = errors.New("vectorized environment is closed")

// IsProtocolViolation returns whether an error reports a violation of
// the two-phase step protocol: calling StepWait with no pending
// StepAsync, or calling StepAsync while a step is already pending.
func IsProtocolViolation(err error) bool {
	return errors.Is(err, errProtocolViolation)
}

// IsUnsupportedCommand returns whether an error reports that a worker
// received a command it does not recognize.
func IsUnsupportedCommand(err error) bool {
	return errors.Is(err, errUnsupportedCommand)
}

// IsMissingCapability returns whether an error reports that an
// operation required an optional environment capability that the
// wrapped environment does not declare.
func IsMissingCapability(err error) bool {
	return errors.Is(err, errMissingCapability)
}

// IsWorkerFailure returns whether an error reports that a worker
// failed while executing a command. A failed worker processes no
// further commands; the vectorized environment it belongs to can only
// be closed.
func IsWorkerFailure(err error) bool {
	return errors.Is(err, errWorkerFailure)
}

// IsClosed returns whether an error reports use of a vectorized
// environment after Close.
func IsClosed(err error) bool {
	return errors.Is(err, errClosed)
}

// IsShapeMismatch returns whether an error reports that per-instance
// results disagreed in a dimension that batching cannot reconcile.
func IsShapeMismatch(err error) bool {
	return tensorutils.IsShapeMismatch(err)
}
