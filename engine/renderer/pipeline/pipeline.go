package pipeline

import (
	"sync"
	"sync/atomic"

	"github.com/Carmen-Shannon/oxy-voxel/engine/renderer/shader"
	"github.com/cogentcore/webgpu/wgpu"
)

// State is the compilation state of a compute pipeline.
type State int32

const (
	// StateMissing reports a pipeline key the renderer does not know.
	StateMissing State = iota

	// StateQueued indicates the pipeline is registered and waiting for a compile worker.
	StateQueued

	// StateCompiling indicates a worker is creating the device pipeline.
	StateCompiling

	// StateReady indicates the device pipeline exists and may be dispatched.
	StateReady

	// StateFailed indicates compilation failed. Err holds the cause.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateQueued:
		return "queued"
	case StateCompiling:
		return "compiling"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "missing"
	}
}

// pipeline is the implementation of the Pipeline interface.
// It holds one compute entry point of a shader and the device pipeline created for it.
type pipeline struct {
	// pipelineKey is the unique identifier for this pipeline, used for caching and lookups
	pipelineKey string
	// entryPoint selects the @compute function of computeShader this pipeline runs
	entryPoint    string
	computeShader shader.Shader

	state atomic.Int32

	mu              sync.RWMutex
	computePipeline *wgpu.ComputePipeline
	err             error

	workgroupSize [3]uint32
	label         string
}

// Pipeline is a compute pipeline bound to a single entry point. Pipelines are compiled
// asynchronously, so callers poll State before dispatching.
type Pipeline interface {
	// PipelineKey returns the unique key associated with this pipeline, used for caching and lookups.
	//
	// Returns:
	//   - string: the unique key for this pipeline
	PipelineKey() string

	// EntryPoint returns the @compute function this pipeline runs.
	//
	// Returns:
	//   - string: the entry point name
	EntryPoint() string

	// Shader retrieves the shader module the entry point is declared in.
	//
	// Returns:
	//   - shader.Shader: the compute shader
	Shader() shader.Shader

	// Label returns the debug label used for device objects, the key unless overridden.
	Label() string

	// WorkgroupSize returns the shader's declared workgroup size.
	WorkgroupSize() [3]uint32

	// State returns the current compilation state. Safe for concurrent use.
	//
	// Returns:
	//   - State: the pipeline's compilation state
	State() State

	// SetState moves the pipeline to a new compilation state.
	//
	// Parameters:
	//   - s: the new state
	SetState(s State)

	// ComputePipeline returns the device pipeline, nil until the pipeline is ready.
	//
	// Returns:
	//   - *wgpu.ComputePipeline: the device compute pipeline
	ComputePipeline() *wgpu.ComputePipeline

	// SetComputePipeline stores the device pipeline and marks the pipeline ready.
	//
	// Parameters:
	//   - p: the WebGPU compute pipeline to set
	SetComputePipeline(p *wgpu.ComputePipeline)

	// SetFailed records a compile error and marks the pipeline failed.
	//
	// Parameters:
	//   - err: the compilation error
	SetFailed(err error)

	// Err returns the compile error of a failed pipeline, nil otherwise.
	Err() error

	// Release frees the device pipeline if one was created.
	Release()
}

var _ Pipeline = &pipeline{}

// NewPipeline creates a queued compute pipeline for one entry point of a shader.
//
// Parameters:
//   - pipelineKey: the unique key for this pipeline
//   - computeShader: the shader module declaring entryPoint
//   - entryPoint: the @compute function to run
//   - opts: a variadic list of PipelineBuilderOption functions to configure the pipeline
//
// Returns:
//   - Pipeline: a new Pipeline in StateQueued
//   - error: shader.ErrNoEntryPoint if the shader does not declare entryPoint
func NewPipeline(pipelineKey string, computeShader shader.Shader, entryPoint string, opts ...PipelineBuilderOption) (Pipeline, error) {
	if computeShader == nil || !computeShader.HasEntryPoint(entryPoint) {
		return nil, &EntryPointError{Key: pipelineKey, EntryPoint: entryPoint}
	}
	p := &pipeline{
		pipelineKey:   pipelineKey,
		entryPoint:    entryPoint,
		computeShader: computeShader,
		workgroupSize: computeShader.WorkgroupSize(),
		label:         pipelineKey,
	}
	p.state.Store(int32(StateQueued))
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func (p *pipeline) PipelineKey() string {
	return p.pipelineKey
}

func (p *pipeline) EntryPoint() string {
	return p.entryPoint
}

func (p *pipeline) Shader() shader.Shader {
	return p.computeShader
}

func (p *pipeline) Label() string {
	return p.label
}

func (p *pipeline) WorkgroupSize() [3]uint32 {
	return p.workgroupSize
}

func (p *pipeline) State() State {
	return State(p.state.Load())
}

func (p *pipeline) SetState(s State) {
	p.state.Store(int32(s))
}

func (p *pipeline) ComputePipeline() *wgpu.ComputePipeline {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.computePipeline
}

func (p *pipeline) SetComputePipeline(cp *wgpu.ComputePipeline) {
	p.mu.Lock()
	p.computePipeline = cp
	p.err = nil
	p.mu.Unlock()
	p.state.Store(int32(StateReady))
}

func (p *pipeline) SetFailed(err error) {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
	p.state.Store(int32(StateFailed))
}

func (p *pipeline) Err() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.err
}

func (p *pipeline) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.computePipeline != nil {
		p.computePipeline.Release()
		p.computePipeline = nil
	}
}
