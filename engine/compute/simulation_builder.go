package compute

import (
	"time"

	"github.com/Carmen-Shannon/oxy-voxel/engine/compute/scheduler"
	"go.uber.org/zap"
)

// SimulationBuilderOption is a functional option applied to a simulation during construction via NewSimulation.
type SimulationBuilderOption func(*simulation)

// WithPreset selects the kernel chain. Defaults to PresetLegacy.
//
// Parameters:
//   - preset: the pipeline preset
//
// Returns:
//   - SimulationBuilderOption: a function that applies the preset to a simulation
func WithPreset(preset Preset) SimulationBuilderOption {
	return func(s *simulation) {
		s.preset = preset
	}
}

// WithGrid sets the grid texture size and hierarchy level count. Defaults to 128 and 4.
//
// Parameters:
//   - textureSize: the per-axis texture size, a power of two
//   - levels: the number of hierarchy levels
//
// Returns:
//   - SimulationBuilderOption: a function that applies the grid dimensions to a simulation
func WithGrid(textureSize uint32, levels int) SimulationBuilderOption {
	return func(s *simulation) {
		s.textureSize = textureSize
		s.levels = levels
	}
}

// WithVoxelsPerMeter sets the world-to-voxel scale.
func WithVoxelsPerMeter(vpm uint32) SimulationBuilderOption {
	return func(s *simulation) {
		s.voxelsPerMeter = vpm
	}
}

// WithCapacity sets the decoration and physics buffer capacities, in words.
//
// Parameters:
//   - decorationWords: the decoration buffer capacity
//   - physicsWords: the physics buffer capacity, also the readback buffer's
//
// Returns:
//   - SimulationBuilderOption: a function that applies the capacities to a simulation
func WithCapacity(decorationWords, physicsWords int) SimulationBuilderOption {
	return func(s *simulation) {
		s.decorationWords = decorationWords
		s.physicsWords = physicsWords
	}
}

// WithPortalSlots sets the number of slots in the portal table.
func WithPortalSlots(slots int) SimulationBuilderOption {
	return func(s *simulation) {
		s.portalSlots = slots
	}
}

// WithStrictMapping makes an overlapping readback map panic.
func WithStrictMapping(strict bool) SimulationBuilderOption {
	return func(s *simulation) {
		s.strictMapping = strict
	}
}

// WithMapTimeout bounds each readback map.
func WithMapTimeout(timeout time.Duration) SimulationBuilderOption {
	return func(s *simulation) {
		s.mapTimeout = timeout
	}
}

// WithComputeEnabled sets whether frames after the first ready frame dispatch. Defaults to true.
func WithComputeEnabled(enabled bool) SimulationBuilderOption {
	return func(s *simulation) {
		s.computeEnabled = enabled
	}
}

// WithKernels sets the per-kernel enable flags. Defaults to scheduler.AllKernels.
func WithKernels(flags scheduler.Flags) SimulationBuilderOption {
	return func(s *simulation) {
		s.kernels = flags
	}
}

// WithLogger sets the logger. The simulation logs under the "compute" name.
//
// Parameters:
//   - logger: the zap logger
//
// Returns:
//   - SimulationBuilderOption: a function that applies the logger option to a simulation
func WithLogger(logger *zap.Logger) SimulationBuilderOption {
	return func(s *simulation) {
		if logger != nil {
			s.logger = logger.Named("compute")
		}
	}
}
