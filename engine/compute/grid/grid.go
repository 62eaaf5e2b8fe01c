// Package grid exposes the sizing of the voxel grid hierarchy: the per-axis texture dimension used
// for whole-grid dispatches and the byte length of the hierarchy's backing storage.
package grid

import (
	"errors"
	"fmt"
	"math/bits"
	"sync"

	"github.com/Carmen-Shannon/oxy-voxel/common"
	"go.uber.org/zap"
)

// ErrInvalidSize is returned when a grid configuration cannot describe a hierarchy.
var ErrInvalidSize = errors.New("grid: invalid hierarchy size")

// Sizing is a snapshot of the values derived from a hierarchy configuration.
type Sizing struct {
	// TextureSize is the grid texture dimension along each axis, in voxels.
	TextureSize uint32
	// Levels is the number of hierarchy levels, including the full-resolution level.
	Levels int
	// StorageByteLength is the size of the hierarchy's occupancy storage: one bit per cell across
	// every level, rounded up to whole words.
	StorageByteLength uint64
}

// StorageWords returns StorageByteLength in 32-bit words.
func (s Sizing) StorageWords() uint64 {
	return s.StorageByteLength / 4
}

// hierarchy is the implementation of the Hierarchy interface.
type hierarchy struct {
	mu     sync.RWMutex
	sizing Sizing
	logger *zap.Logger
}

// Hierarchy holds the grid hierarchy's configuration. Derived values are computed on Configure and
// read without recomputation every frame. Thread-safe for concurrent access.
type Hierarchy interface {
	// Configure replaces the hierarchy's dimensions.
	//
	// Parameters:
	//   - textureSize: the per-axis voxel count; must be a power of two
	//   - levels: the number of levels; the coarsest level must still be at least one cell wide
	//
	// Returns:
	//   - error: ErrInvalidSize if the dimensions are rejected, leaving the previous configuration
	Configure(textureSize uint32, levels int) error

	// Sizing returns the current derived values.
	Sizing() Sizing
}

var _ Hierarchy = &hierarchy{}

// NewHierarchy creates a configured Hierarchy.
//
// Parameters:
//   - textureSize: the per-axis voxel count
//   - levels: the number of hierarchy levels
//   - options: functional options to further configure the hierarchy
//
// Returns:
//   - Hierarchy: the hierarchy
//   - error: ErrInvalidSize if the dimensions are rejected
func NewHierarchy(textureSize uint32, levels int, options ...HierarchyBuilderOption) (Hierarchy, error) {
	h := &hierarchy{logger: zap.NewNop()}
	for _, option := range options {
		option(h)
	}
	if err := h.Configure(textureSize, levels); err != nil {
		return nil, err
	}
	return h, nil
}

func (h *hierarchy) Configure(textureSize uint32, levels int) error {
	sizing, err := computeSizing(textureSize, levels)
	if err != nil {
		return err
	}

	h.mu.Lock()
	h.sizing = sizing
	h.mu.Unlock()

	h.logger.Info("grid hierarchy configured",
		zap.Uint32("texture_size", sizing.TextureSize),
		zap.Int("levels", sizing.Levels),
		zap.Uint64("storage_bytes", sizing.StorageByteLength),
	)
	return nil
}

func (h *hierarchy) Sizing() Sizing {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.sizing
}

func computeSizing(textureSize uint32, levels int) (Sizing, error) {
	if textureSize == 0 || bits.OnesCount32(textureSize) != 1 {
		return Sizing{}, fmt.Errorf("%w: texture size %d is not a power of two", ErrInvalidSize, textureSize)
	}
	if levels < 1 || textureSize>>(levels-1) == 0 {
		return Sizing{}, fmt.Errorf("%w: %d levels for texture size %d", ErrInvalidSize, levels, textureSize)
	}

	var cells uint64
	for l := 0; l < levels; l++ {
		side := uint64(textureSize >> l)
		cells += side * side * side
	}
	byteLen := common.AlignUp((cells+7)/8, 4)

	return Sizing{
		TextureSize:       textureSize,
		Levels:            levels,
		StorageByteLength: byteLen,
	}, nil
}
