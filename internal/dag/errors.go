package dag

import (
	"errors"
	"fmt"
)

// ErrTaskClosureFailure wraps a panic recovered from a task closure. The
// instruction is still considered executed: its successors proceed with
// whatever partial writes happened before the panic.
var ErrTaskClosureFailure = errors.New("dag: task closure failed")

func newClosureFailure(recovered any) error {
	return fmt.Errorf("%w: %v", ErrTaskClosureFailure, recovered)
}

// ErrIndependentTransfer is returned by TransferTo if asked to transfer
// into an instruction that never declared a dependency on the source.
var ErrIndependentTransfer = errors.New("dag: transfer target does not depend on source")
