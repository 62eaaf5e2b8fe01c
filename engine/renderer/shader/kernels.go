package shader

import _ "embed"

// VoxelComputeSource is the WGSL module holding every voxel simulation kernel.
//
//go:embed kernels/voxel_compute.wgsl
var VoxelComputeSource string

// VoxelComputeKey is the shader key of VoxelComputeSource.
const VoxelComputeKey = "voxel_compute"

// Kernel entry points declared by VoxelComputeSource.
const (
	EntryClear           = "clear"
	EntryAutomata        = "automata"
	EntryAnimation       = "animation"
	EntryUpdate          = "update"
	EntryUpdatePhysics   = "update_physics"
	EntryUpdateAnimation = "update_animation"
	EntryRebuild         = "rebuild_gh"
)

// Bind group 0 bindings shared by every kernel.
const (
	BindingUniforms      = 0
	BindingPhysics       = 1
	BindingAnimation     = 2
	BindingGridTexture   = 3
	BindingGridHierarchy = 4
)

// VoxelCompute parses VoxelComputeSource.
func VoxelCompute() (Shader, error) {
	return NewShader(VoxelComputeKey, VoxelComputeSource)
}
