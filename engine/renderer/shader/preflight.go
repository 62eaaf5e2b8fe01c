package shader

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gogpu/naga"
)

// ErrPreflight is returned when a shader fails offline WGSL validation.
var ErrPreflight = errors.New("shader: preflight failed")

// ErrPreflightUnsupported is returned when the offline compiler cannot handle a feature the source
// uses. The device compiler remains authoritative in that case.
var ErrPreflightUnsupported = errors.New("shader: preflight unsupported")

// unsupportedMarkers are substrings of offline compiler errors that indicate a compiler limitation
// rather than an invalid shader.
var unsupportedMarkers = []string{
	"not yet implemented",
	"not supported",
	"lowering error",
	"atomic",
	"storage texture",
}

// Preflight compiles the shader's WGSL to SPIR-V offline, catching syntax and type errors before
// pipeline creation reaches the device.
//
// Parameters:
//   - s: the shader to validate
//
// Returns:
//   - int: the size of the generated SPIR-V in bytes
//   - error: ErrPreflight for an invalid shader, ErrPreflightUnsupported for a compiler limitation
func Preflight(s Shader) (int, error) {
	spirv, err := naga.Compile(s.Source())
	if err != nil {
		msg := err.Error()
		for _, marker := range unsupportedMarkers {
			if strings.Contains(msg, marker) {
				return 0, fmt.Errorf("%w: %s: %v", ErrPreflightUnsupported, s.Key(), err)
			}
		}
		return 0, fmt.Errorf("%w: %s: %v", ErrPreflight, s.Key(), err)
	}
	if len(spirv) < 4 {
		return 0, fmt.Errorf("%w: %s: empty SPIR-V output", ErrPreflight, s.Key())
	}
	return len(spirv), nil
}
