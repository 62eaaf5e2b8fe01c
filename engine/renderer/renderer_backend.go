package renderer

import (
	"context"

	"github.com/Carmen-Shannon/oxy-voxel/engine/renderer/pipeline"
	"github.com/cogentcore/webgpu/wgpu"
)

// RendererBackendType identifies the GPU backend implementation used by the Renderer.
type RendererBackendType int

const (
	// BackendTypeWGPU selects the headless WebGPU compute backend.
	BackendTypeWGPU RendererBackendType = iota
)

// BufferKind selects the usage a device buffer is created with.
type BufferKind int

const (
	// BufferKindUniform is a small uniform buffer written from the host every frame.
	BufferKindUniform BufferKind = iota

	// BufferKindStorage is a storage buffer kernels read or write. It may be the source of a copy.
	BufferKindStorage

	// BufferKindReadback is a host-mappable staging buffer that only receives copies.
	BufferKindReadback
)

func (k BufferKind) String() string {
	switch k {
	case BufferKindUniform:
		return "uniform"
	case BufferKindStorage:
		return "storage"
	case BufferKindReadback:
		return "readback"
	default:
		return "unknown"
	}
}

// BufferDescriptor describes one named device buffer.
type BufferDescriptor struct {
	Key  string
	Kind BufferKind
	Size uint64
	// Binding is the bind group 0 binding index, or -1 for a buffer that is not bound.
	Binding int
}

// ResourcesDescriptor describes every device resource the compute kernels share.
type ResourcesDescriptor struct {
	// Layout is the bind group layout reflected from the kernel shader.
	Layout  wgpu.BindGroupLayoutDescriptor
	Buffers []BufferDescriptor
	// GridTextureSize is the per-axis size of the 3D r32uint voxel texture.
	GridTextureSize    uint32
	GridTextureBinding int
}

// Limits holds the device limits the compute layer sizes its resources against.
type Limits struct {
	MinUniformBufferOffsetAlignment  uint64
	MaxStorageBufferBindingSize      uint64
	MaxComputeWorkgroupsPerDimension uint32
}

// RendererBackend is the device-facing half of the Renderer. The frontend validates every call
// before it reaches the backend, so backends only translate to their GPU API.
type RendererBackend interface {
	// Limits returns the limits of the device the backend opened.
	//
	// Returns:
	//   - Limits: the device limits
	Limits() Limits

	// CreateBuffer creates a device buffer with the usage implied by its kind.
	//
	// Parameters:
	//   - desc: the buffer to create, Size already aligned
	//
	// Returns:
	//   - error: an error if the buffer could not be created
	CreateBuffer(desc BufferDescriptor) error

	// CreateGridTexture creates the 3D storage texture holding the voxel grid.
	//
	// Parameters:
	//   - binding: the binding index the texture view is bound at
	//   - size: the per-axis texture size
	//
	// Returns:
	//   - error: an error if the texture could not be created
	CreateGridTexture(binding int, size uint32) error

	// CreateBindGroup creates the bind group layout and the bind group over the buffers and
	// texture created so far.
	//
	// Parameters:
	//   - layout: the bind group layout descriptor
	//
	// Returns:
	//   - error: an error if a binding has no resource or creation fails
	CreateBindGroup(layout wgpu.BindGroupLayoutDescriptor) error

	// CompileComputePipeline creates the device pipeline for p and stores it with
	// p.SetComputePipeline. Called from compile workers.
	//
	// Parameters:
	//   - p: the pipeline to compile
	//
	// Returns:
	//   - error: an error if the module or pipeline could not be created
	CompileComputePipeline(p pipeline.Pipeline) error

	// WriteBuffer queues a host write into a buffer.
	//
	// Parameters:
	//   - key: the buffer key
	//   - offset: the byte offset
	//   - data: the bytes to write
	//
	// Returns:
	//   - error: an error if the buffer does not exist
	WriteBuffer(key string, offset uint64, data []byte) error

	// BeginComputeFrame creates a single command encoder for batching all compute dispatches
	// within a frame into one GPU submission.
	//
	// Returns:
	//   - error: an error if the command encoder could not be created
	BeginComputeFrame() error

	// DispatchCompute encodes a compute pass within the current compute frame.
	//
	// Parameters:
	//   - p: the ready pipeline to dispatch
	//   - workGroupCount: the number of workgroups in x, y and z
	//
	// Returns:
	//   - error: an error if no compute frame is open
	DispatchCompute(p pipeline.Pipeline, workGroupCount [3]uint32) error

	// CopyBuffer encodes a buffer to buffer copy within the current compute frame.
	//
	// Parameters:
	//   - src: the source buffer key
	//   - dst: the destination buffer key
	//   - size: the number of bytes to copy
	//
	// Returns:
	//   - error: an error if no compute frame is open or a buffer is missing
	CopyBuffer(src, dst string, size uint64) error

	// EndComputeFrame finishes the compute command encoder and submits it to the queue.
	//
	// Returns:
	//   - error: an error if the command buffer could not be finished
	EndComputeFrame() error

	// MapRead maps a readback buffer, copies size bytes out and unmaps it. Blocks until the queue
	// has completed prior work on the buffer or ctx is done.
	//
	// Parameters:
	//   - ctx: bounds the wait
	//   - key: the readback buffer key
	//   - size: the number of bytes to read
	//
	// Returns:
	//   - []byte: a host copy of the mapped bytes
	//   - error: a map failure or ctx.Err()
	MapRead(ctx context.Context, key string, size uint64) ([]byte, error)

	// Release frees every device object the backend owns.
	Release()
}
