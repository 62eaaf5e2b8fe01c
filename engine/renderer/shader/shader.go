package shader

import (
	"errors"
	"fmt"
	"os"
	"slices"

	"github.com/cogentcore/webgpu/wgpu"
)

// ErrNoEntryPoint is returned when a shader source declares no @compute entry point, or not the
// one requested.
var ErrNoEntryPoint = errors.New("shader: compute entry point not found")

// shader is the implementation of the Shader interface.
// It holds the kernel source and the layout metadata reflected from it.
type shader struct {
	key                        string
	source                     string
	entryPoints                []string
	bindGroupLayoutDescriptors map[int]wgpu.BindGroupLayoutDescriptor
	bindingVarNames            map[int]map[int]string
	workGroupSize              [3]uint32
	module                     *wgpu.ShaderModuleDescriptor
}

// Shader is a WGSL compute module. A single module may declare several @compute entry points that
// share one bind group layout; pipelines select the entry point they run.
type Shader interface {
	// Key retrieves the unique identifier for this shader, used for caching and lookups.
	//
	// Returns:
	//   - string: the shader's unique key
	Key() string

	// Source retrieves the WGSL shader source code.
	//
	// Returns:
	//   - string: the WGSL source code of the shader
	Source() string

	// EntryPoints returns the names of every @compute function in declaration order.
	EntryPoints() []string

	// HasEntryPoint reports whether the module declares the named @compute function.
	HasEntryPoint(name string) bool

	// BindGroupLayoutDescriptor retrieves the reflected layout of one bind group.
	//
	// Parameters:
	//   - group: the bind group index
	//
	// Returns:
	//   - wgpu.BindGroupLayoutDescriptor: the layout, or an empty descriptor if the group is unused
	BindGroupLayoutDescriptor(group int) wgpu.BindGroupLayoutDescriptor

	// BindGroupLayoutDescriptors retrieves every reflected bind group layout keyed by group index.
	BindGroupLayoutDescriptors() map[int]wgpu.BindGroupLayoutDescriptor

	// BindGroupVarName retrieves the WGSL variable name bound at a group and binding.
	//
	// Parameters:
	//   - group: the bind group index
	//   - binding: the binding index within the group
	//
	// Returns:
	//   - string: the variable name, or an empty string if not found
	BindGroupVarName(group, binding int) string

	// WorkgroupSize returns the first @workgroup_size in the module, [1, 1, 1] if none is declared.
	WorkgroupSize() [3]uint32

	// Module returns the wgpu.ShaderModuleDescriptor used to create the device shader module.
	Module() *wgpu.ShaderModuleDescriptor
}

var _ Shader = &shader{}

// NewShader parses a WGSL compute source.
//
// Parameters:
//   - key: a unique identifier for the shader, used for caching and lookups
//   - source: the WGSL source
//
// Returns:
//   - Shader: the parsed shader
//   - error: ErrNoEntryPoint if the source declares no @compute function
func NewShader(key, source string) (Shader, error) {
	s := &shader{
		key:    key,
		source: source,
		module: &wgpu.ShaderModuleDescriptor{
			Label: key,
			WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{
				Code: source,
			},
		},
	}
	s.entryPoints = parseComputeEntryPoints(source)
	if len(s.entryPoints) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoEntryPoint, key)
	}
	s.workGroupSize = parseWorkgroupSize(source)
	s.bindGroupLayoutDescriptors, s.bindingVarNames = parseBindGroupLayouts(source, wgpu.ShaderStageCompute)
	return s, nil
}

// NewShaderFromPath reads and parses a WGSL compute source file.
//
// Parameters:
//   - key: a unique identifier for the shader
//   - path: the WGSL file path
//
// Returns:
//   - Shader: the parsed shader
//   - error: a read error or ErrNoEntryPoint
func NewShaderFromPath(key, path string) (Shader, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read shader source %q: %w", path, err)
	}
	return NewShader(key, string(data))
}

func (s *shader) Key() string {
	return s.key
}

func (s *shader) Source() string {
	return s.source
}

func (s *shader) EntryPoints() []string {
	return s.entryPoints
}

func (s *shader) HasEntryPoint(name string) bool {
	return slices.Contains(s.entryPoints, name)
}

func (s *shader) WorkgroupSize() [3]uint32 {
	return s.workGroupSize
}

func (s *shader) BindGroupLayoutDescriptor(group int) wgpu.BindGroupLayoutDescriptor {
	return s.bindGroupLayoutDescriptors[group]
}

func (s *shader) BindGroupLayoutDescriptors() map[int]wgpu.BindGroupLayoutDescriptor {
	return s.bindGroupLayoutDescriptors
}

func (s *shader) BindGroupVarName(group, binding int) string {
	if s.bindingVarNames[group] == nil {
		return ""
	}
	return s.bindingVarNames[group][binding]
}

func (s *shader) Module() *wgpu.ShaderModuleDescriptor {
	return s.module
}
