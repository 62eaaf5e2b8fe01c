package pipeline

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-voxel/engine/renderer/shader"
)

// EntryPointError reports a pipeline created for an entry point its shader does not declare.
type EntryPointError struct {
	Key        string
	EntryPoint string
}

func (e *EntryPointError) Error() string {
	return fmt.Sprintf("pipeline %s: entry point %q not declared", e.Key, e.EntryPoint)
}

func (e *EntryPointError) Unwrap() error {
	return shader.ErrNoEntryPoint
}
