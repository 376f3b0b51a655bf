package loopviz

import (
	"errors"
	"fmt"
)

// Standard errors.
var (
	// ErrCapacityExceeded is returned by Add when the list is full.
	ErrCapacityExceeded = errors.New(`loopviz: event limit reached`)

	// ErrBusyWhileRunning is returned when an operation is rejected because
	// a run is in progress.
	ErrBusyWhileRunning = errors.New(`loopviz: run in progress`)

	// ErrEmptyExecutionList is returned by Run when there is nothing to run.
	ErrEmptyExecutionList = errors.New(`loopviz: execution list is empty`)

	// ErrUnknownTemplate is returned when a template id is not in the catalog.
	ErrUnknownTemplate = errors.New(`loopviz: unknown template`)

	// ErrClosed is returned by operations on a closed Visualizer.
	ErrClosed = errors.New(`loopviz: visualizer closed`)
)

// Banner messages, as displayed by the presentation layer.
const (
	msgEmptyExecutionList  = `Add events to execute`
	msgCantAddWhileRunning = `Can't add events while function is running`
)

func msgEventLimit(capacity int) string {
	return fmt.Sprintf(`Max event limit is %d`, capacity)
}

// SubmitError reports a scheduling request the host loop refused, e.g.
// because it was shutting down. The instance is settled without a rank.
type SubmitError struct {
	Err        error
	InstanceID string
	Kind       Kind
}

func (e *SubmitError) Error() string {
	return fmt.Sprintf(`loopviz: submit %s %q: %v`, e.Kind, e.InstanceID, e.Err)
}

func (e *SubmitError) Unwrap() error {
	return e.Err
}
