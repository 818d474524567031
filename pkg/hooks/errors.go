package hooks

import (
	"fmt"

	"github.com/glorpus-work/wheelhouse/pkg/errutils"
)

// Common hook errors.
var (
	// ErrHookTypeEmpty is returned when a hook type is empty.
	ErrHookTypeEmpty = fmt.Errorf("hook type cannot be empty")

	// ErrHookExecution is returned when there's an error executing a hook.
	ErrHookExecution = fmt.Errorf("error executing hook")

	// ErrHookScript is returned when a hook script vetoes the operation.
	ErrHookScript = fmt.Errorf("hook script error")

	// ErrHookLoad is returned when there's an error loading a hook.
	ErrHookLoad = fmt.Errorf("failed to load hook")
)

// ErrUnsupportedHookType is returned for a hook type outside AllTypes.
func ErrUnsupportedHookType(hookType string) error {
	return errutils.Wrapf(ErrHookLoad, "unsupported hook type: %s", hookType)
}
