package workflow

import "errors"

// ErrNoEventBus is returned by Enqueue when the runner has no event bus attached.
var ErrNoEventBus = errors.New("runner has no event bus")

// RunErrorKind classifies why a run ended failed.
type RunErrorKind string

const (
	// KindDefinitionLoad means the workflow was missing or malformed; no node ran.
	KindDefinitionLoad RunErrorKind = "definition_load"
	// KindCyclicGraph means strict graph mode rejected nodes that can never become ready.
	KindCyclicGraph RunErrorKind = "cyclic_graph"
	// KindExecutor means a node executor returned an error.
	KindExecutor RunErrorKind = "executor"
	// KindCancelled means the run context was cancelled or timed out between nodes.
	KindCancelled RunErrorKind = "cancelled"
)

// RunError is the error a failed run surfaces to its caller.
// Its message is the underlying error message unchanged, which is also what
// the execution record stores.
type RunError struct {
	Kind   RunErrorKind
	NodeID string
	Err    error
}

func (e *RunError) Error() string {
	return e.Err.Error()
}

func (e *RunError) Unwrap() error {
	return e.Err
}

// IsRunError reports whether err carries a RunError of the given kind.
func IsRunError(err error, kind RunErrorKind) bool {
	var runErr *RunError

	return errors.As(err, &runErr) && runErr.Kind == kind
}
