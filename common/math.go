package common

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// WorldToVoxel converts a world-space position in meters into integer voxel-grid coordinates.
// Each axis is scaled by voxelsPerMeter, floored, and shifted by half the grid size so that the
// world origin lands in the center of the grid.
//
// Parameters:
//   - worldPos: the world-space position in meters
//   - voxelsPerMeter: the number of voxels spanning one meter
//   - gridSize: the per-axis voxel grid texture dimension
//
// Returns:
//   - IVec3: the voxel coordinates of worldPos
func WorldToVoxel(worldPos mgl32.Vec3, voxelsPerMeter, gridSize uint32) IVec3 {
	half := int32(gridSize / 2)
	var out IVec3
	for i := 0; i < 3; i++ {
		scaled := worldPos[i] * float32(voxelsPerMeter)
		out[i] = int32(math.Floor(float64(scaled))) + half
	}
	return out
}

// WorldToRender converts a world-space position into the [-1, 1] render space of the voxel grid.
//
// Parameters:
//   - worldPos: the world-space position in meters
//   - voxelsPerMeter: the number of voxels spanning one meter
//   - gridSize: the per-axis voxel grid texture dimension
//
// Returns:
//   - mgl32.Vec3: the render-space position
func WorldToRender(worldPos mgl32.Vec3, voxelsPerMeter, gridSize uint32) mgl32.Vec3 {
	var out mgl32.Vec3
	for i := 0; i < 3; i++ {
		out[i] = 2.0 * worldPos[i] * float32(voxelsPerMeter) / float32(gridSize)
	}
	return out
}

// HalfVoxelSize returns half the render-space edge length of a single voxel.
// Render space spans 2 units across gridSize voxels.
func HalfVoxelSize(gridSize uint32) float32 {
	voxelSize := 2.0 / float32(gridSize)
	return voxelSize / 2.0
}

// AlignUp rounds n up to the next multiple of alignment. An alignment of zero returns n unchanged.
func AlignUp(n, alignment uint64) uint64 {
	if alignment == 0 {
		return n
	}
	return (n + alignment - 1) / alignment * alignment
}
