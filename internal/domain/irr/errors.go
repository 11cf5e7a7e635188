package irr

import (
	"errors"
	"fmt"
)

// ErrNoConvergence is returned when no rate could be found. Its code on the
// wire is IRR_NO_CONVERGENCE.
var ErrNoConvergence = errors.New("IRR_NO_CONVERGENCE")

// ConvergenceError explains why the solver gave up.
type ConvergenceError struct {
	Method     string
	Iterations int
	Reason     string
}

func (e *ConvergenceError) Error() string {
	return fmt.Sprintf("irr %s did not converge after %d iterations: %s", e.Method, e.Iterations, e.Reason)
}

func (e *ConvergenceError) Unwrap() error { return ErrNoConvergence }
