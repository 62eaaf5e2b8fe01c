package renderer

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"runtime"
	"sync"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-voxel/common"
	"github.com/Carmen-Shannon/oxy-voxel/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-voxel/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-voxel/engine/renderer/shader"
	"github.com/cogentcore/webgpu/wgpu"
	"go.uber.org/zap"
)

var (
	// ErrPipelineNotFound is returned when a pipeline key has not been registered.
	ErrPipelineNotFound = errors.New("renderer: pipeline not found")

	// ErrPipelineNotReady is returned when dispatching a pipeline that has not finished compiling.
	ErrPipelineNotReady = errors.New("renderer: pipeline not ready")

	// ErrNotInitialized is returned when a call needs device resources before InitResources.
	ErrNotInitialized = errors.New("renderer: resources not initialized")

	// ErrInvalidResources is returned by InitResources for a descriptor that does not match its layout.
	ErrInvalidResources = errors.New("renderer: invalid resources")

	// ErrBufferNotFound is returned for an unknown buffer key.
	ErrBufferNotFound = errors.New("renderer: buffer not found")

	// ErrBufferOverflow is returned when a write, copy or map would cross the end of a buffer.
	ErrBufferOverflow = errors.New("renderer: buffer overflow")

	// ErrInvalidWorkgroups is returned for a dispatch with a zero or over-limit workgroup count.
	ErrInvalidWorkgroups = errors.New("renderer: invalid workgroup count")
)

// renderer is the implementation of the Renderer interface.
type renderer struct {
	mu *sync.Mutex

	pipelineCache map[string]pipeline.Pipeline
	buffers       map[string]BufferDescriptor
	initialized   bool

	backendType RendererBackendType
	backend     RendererBackend
	limits      Limits

	compilePool    worker.DynamicWorkerPool
	compileWorkers int
	compiling      sync.WaitGroup
	taskID         int

	preflight   bool
	preflightMu sync.Mutex
	preflighted map[string]error
	logger      *zap.Logger

	// Pre-creation config collected from builder options
	forceFallbackAdapter bool
}

// Renderer is the compute side of the GPU: a cache of asynchronously compiled compute pipelines,
// the named buffers and voxel texture the kernels share, and batched compute frames.
//
// Every call is validated before it reaches the backend, so a misuse is an error rather than a
// device validation failure.
type Renderer interface {
	// Limits returns the device limits.
	//
	// Returns:
	//   - Limits: the limits of the opened device
	Limits() Limits

	// InitResources creates every buffer, the voxel grid texture, and the bind group over them.
	// It may be called once.
	//
	// Parameters:
	//   - desc: the resources to create
	//
	// Returns:
	//   - error: ErrInvalidResources for a descriptor that does not match its layout, or a backend error
	InitResources(desc ResourcesDescriptor) error

	// BufferSize returns the created size of a buffer, which for uniforms is aligned up to the
	// device's minimum uniform alignment.
	//
	// Parameters:
	//   - key: the buffer key
	//
	// Returns:
	//   - uint64: the buffer size in bytes
	//   - bool: false if no such buffer exists
	BufferSize(key string) (uint64, bool)

	// RegisterPipelines caches the pipelines and queues each for asynchronous compilation on the
	// compile worker pool. Keys that are already registered are skipped.
	//
	// Parameters:
	//   - pipelines: the Pipelines to register
	RegisterPipelines(pipelines ...pipeline.Pipeline)

	// Pipeline retrieves the cached Pipeline associated with the given key.
	//
	// Parameters:
	//   - key: the unique identifier for the Pipeline to retrieve
	//
	// Returns:
	//   - pipeline.Pipeline: the Pipeline associated with the key, or nil if not found
	Pipeline(key string) pipeline.Pipeline

	// Pipelines retrieves a copy of the pipeline cache.
	//
	// Returns:
	//   - map[string]pipeline.Pipeline: a map of pipeline keys to their corresponding Pipeline objects
	Pipelines() map[string]pipeline.Pipeline

	// PipelineState returns the compile state of a pipeline, pipeline.StateMissing for unknown keys.
	//
	// Parameters:
	//   - key: the pipeline key
	//
	// Returns:
	//   - pipeline.State: the pipeline's state
	PipelineState(key string) pipeline.State

	// WaitPipelines blocks until every queued compile has finished or ctx is done.
	//
	// Parameters:
	//   - ctx: bounds the wait
	//
	// Returns:
	//   - error: ctx.Err(), or the joined errors of failed pipelines
	WaitPipelines(ctx context.Context) error

	// WriteBuffers validates and queues host writes. No write is queued if any write is invalid.
	//
	// Parameters:
	//   - writes: the writes to queue
	//
	// Returns:
	//   - error: ErrNotInitialized, ErrBufferNotFound or ErrBufferOverflow
	WriteBuffers(writes []bind_group_provider.BufferWrite) error

	// BeginComputeFrame creates a single command encoder for batching all compute dispatches
	// within a frame into one GPU submission. Must be paired with EndComputeFrame.
	//
	// Returns:
	//   - error: ErrNotInitialized or a backend error
	BeginComputeFrame() error

	// DispatchCompute encodes a compute pass for a cached pipeline within the current frame.
	//
	// Parameters:
	//   - pipelineKey: the unique identifier for the cached compute Pipeline to use
	//   - workGroupCount: the number of workgroups to dispatch in the x, y, and z dimensions
	//
	// Returns:
	//   - error: ErrPipelineNotFound, ErrPipelineNotReady, ErrInvalidWorkgroups or a backend error
	DispatchCompute(pipelineKey string, workGroupCount [3]uint32) error

	// CopyBuffer encodes a copy of the first size bytes of src into dst within the current frame.
	//
	// Parameters:
	//   - src: the source buffer key
	//   - dst: the destination buffer key
	//   - size: the number of bytes to copy
	//
	// Returns:
	//   - error: ErrBufferNotFound, ErrBufferOverflow or a backend error
	CopyBuffer(src, dst string, size uint64) error

	// EndComputeFrame finishes the batched compute command encoder and submits it.
	//
	// Returns:
	//   - error: a backend error
	EndComputeFrame() error

	// MapRead reads size bytes back from a readback buffer. It blocks until prior device work on
	// the buffer completes or ctx is done.
	//
	// Parameters:
	//   - ctx: bounds the wait
	//   - key: the readback buffer key
	//   - size: the number of bytes to read
	//
	// Returns:
	//   - []byte: the bytes read
	//   - error: ErrBufferNotFound, ErrBufferOverflow, ctx.Err() or a backend error
	MapRead(ctx context.Context, key string, size uint64) ([]byte, error)

	// Release stops the compile workers and frees pipelines and device resources.
	Release()
}

var _ Renderer = &renderer{}

// NewRenderer creates a Renderer over the given backend type. WithBackend replaces the backend
// entirely, which is how tests run without a device.
//
// Parameters:
//   - backendType: the type of GPU backend to open
//   - options: variadic list of RendererBuilderOption functions to configure the Renderer
//
// Returns:
//   - Renderer: the renderer
//   - error: an error if no adapter or device could be acquired
func NewRenderer(backendType RendererBackendType, options ...RendererBuilderOption) (Renderer, error) {
	r := &renderer{
		mu:             &sync.Mutex{},
		pipelineCache:  make(map[string]pipeline.Pipeline),
		buffers:        make(map[string]BufferDescriptor),
		backendType:    backendType,
		compileWorkers: max(runtime.NumCPU()-1, 1),
		preflight:      true,
		preflighted:    make(map[string]error),
		logger:         zap.NewNop(),
	}

	for _, opt := range options {
		opt(r)
	}

	if r.backend == nil {
		switch backendType {
		case BackendTypeWGPU:
			fallthrough
		default:
			b, err := newWGPURendererBackend(r.forceFallbackAdapter, r.logger)
			if err != nil {
				return nil, err
			}
			r.backend = b
		}
	}

	r.limits = r.backend.Limits()
	r.compilePool = worker.NewDynamicWorkerPool(r.compileWorkers, 64, 1*time.Second)
	return r, nil
}

func (r *renderer) Limits() Limits {
	return r.limits
}

func (r *renderer) InitResources(desc ResourcesDescriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.initialized {
		return fmt.Errorf("%w: already initialized", ErrInvalidResources)
	}
	buffers, err := r.validateResources(desc)
	if err != nil {
		return err
	}

	for _, b := range desc.Buffers {
		if err := r.backend.CreateBuffer(buffers[b.Key]); err != nil {
			return fmt.Errorf("failed to create buffer %s: %w", b.Key, err)
		}
	}
	if desc.GridTextureSize > 0 {
		if err := r.backend.CreateGridTexture(desc.GridTextureBinding, desc.GridTextureSize); err != nil {
			return fmt.Errorf("failed to create grid texture: %w", err)
		}
	}
	if err := r.backend.CreateBindGroup(desc.Layout); err != nil {
		return fmt.Errorf("failed to create bind group: %w", err)
	}

	r.buffers = buffers
	r.initialized = true
	r.logger.Info("compute resources initialized",
		zap.Int("buffers", len(buffers)),
		zap.Uint32("grid_size", desc.GridTextureSize),
	)
	return nil
}

// validateResources checks desc against its layout and the device limits and returns the buffer
// descriptors with their final sizes.
func (r *renderer) validateResources(desc ResourcesDescriptor) (map[string]BufferDescriptor, error) {
	buffers := make(map[string]BufferDescriptor, len(desc.Buffers))
	bound := make(map[int]BufferDescriptor)

	for _, b := range desc.Buffers {
		if b.Key == "" || b.Size == 0 {
			return nil, fmt.Errorf("%w: buffer %q has no key or size", ErrInvalidResources, b.Key)
		}
		if _, dup := buffers[b.Key]; dup {
			return nil, fmt.Errorf("%w: duplicate buffer %s", ErrInvalidResources, b.Key)
		}
		switch b.Kind {
		case BufferKindUniform:
			b.Size = common.AlignUp(b.Size, max(r.limits.MinUniformBufferOffsetAlignment, 4))
		case BufferKindStorage:
			if r.limits.MaxStorageBufferBindingSize > 0 && b.Size > r.limits.MaxStorageBufferBindingSize {
				return nil, fmt.Errorf("%w: buffer %s is %d bytes, limit %d", ErrInvalidResources, b.Key, b.Size, r.limits.MaxStorageBufferBindingSize)
			}
			b.Size = common.AlignUp(b.Size, 4)
		default:
			b.Size = common.AlignUp(b.Size, 4)
		}
		if b.Binding >= 0 {
			if b.Kind == BufferKindReadback {
				return nil, fmt.Errorf("%w: readback buffer %s cannot be bound", ErrInvalidResources, b.Key)
			}
			if other, dup := bound[b.Binding]; dup {
				return nil, fmt.Errorf("%w: buffers %s and %s share binding %d", ErrInvalidResources, other.Key, b.Key, b.Binding)
			}
			bound[b.Binding] = b
		}
		buffers[b.Key] = b
	}

	for _, entry := range desc.Layout.Entries {
		binding := int(entry.Binding)
		switch {
		case entry.Buffer.Type != wgpu.BufferBindingTypeUndefined:
			b, ok := bound[binding]
			if !ok {
				return nil, fmt.Errorf("%w: no buffer for binding %d", ErrInvalidResources, binding)
			}
			wantUniform := entry.Buffer.Type == wgpu.BufferBindingTypeUniform
			if wantUniform != (b.Kind == BufferKindUniform) {
				return nil, fmt.Errorf("%w: buffer %s is %s, binding %d wants another kind", ErrInvalidResources, b.Key, b.Kind, binding)
			}
			if b.Size < entry.Buffer.MinBindingSize {
				return nil, fmt.Errorf("%w: buffer %s smaller than binding %d minimum", ErrInvalidResources, b.Key, binding)
			}
			delete(bound, binding)
		case entry.StorageTexture.Format != wgpu.TextureFormatUndefined:
			if binding != desc.GridTextureBinding || desc.GridTextureSize == 0 {
				return nil, fmt.Errorf("%w: no grid texture for binding %d", ErrInvalidResources, binding)
			}
		default:
			return nil, fmt.Errorf("%w: binding %d is neither a buffer nor a storage texture", ErrInvalidResources, binding)
		}
	}
	for binding, b := range bound {
		return nil, fmt.Errorf("%w: buffer %s bound at %d which the layout does not declare", ErrInvalidResources, b.Key, binding)
	}

	return buffers, nil
}

func (r *renderer) BufferSize(key string) (uint64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.buffers[key]
	return b.Size, ok
}

func (r *renderer) RegisterPipelines(pipelines ...pipeline.Pipeline) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range pipelines {
		key := p.PipelineKey()
		if _, exists := r.pipelineCache[key]; exists {
			continue
		}
		r.pipelineCache[key] = p
		p.SetState(pipeline.StateQueued)

		r.compiling.Add(1)
		r.compilePool.SubmitTask(worker.Task{
			ID:      r.taskID,
			Payload: key,
			Do: func() (any, error) {
				defer r.compiling.Done()
				return nil, r.compile(p)
			},
		})
		r.taskID++
	}
}

func (r *renderer) compile(p pipeline.Pipeline) error {
	p.SetState(pipeline.StateCompiling)
	log := r.logger.With(zap.String("pipeline", p.PipelineKey()), zap.String("entry_point", p.EntryPoint()))

	r.preflightShader(p.Shader())

	start := time.Now()
	if err := r.backend.CompileComputePipeline(p); err != nil {
		err = fmt.Errorf("failed to compile pipeline %s: %w", p.PipelineKey(), err)
		p.SetFailed(err)
		log.Error("pipeline compile failed", zap.Error(err))
		return err
	}
	if p.State() != pipeline.StateReady {
		p.SetState(pipeline.StateReady)
	}
	log.Debug("pipeline ready", zap.Duration("took", time.Since(start)))
	return nil
}

// preflightShader validates a shader offline once per shader key. The device compiler has the
// final say, so a failure is only logged.
func (r *renderer) preflightShader(s shader.Shader) {
	if !r.preflight {
		return
	}
	r.preflightMu.Lock()
	defer r.preflightMu.Unlock()

	if _, done := r.preflighted[s.Key()]; done {
		return
	}
	n, err := shader.Preflight(s)
	log := r.logger.With(zap.String("shader", s.Key()))
	switch {
	case err == nil:
		log.Debug("shader preflight passed", zap.Int("spirv_bytes", n))
	case errors.Is(err, shader.ErrPreflightUnsupported):
		log.Debug("shader preflight skipped", zap.Error(err))
	default:
		log.Warn("shader preflight failed", zap.Error(err))
	}
	r.preflighted[s.Key()] = err
}

func (r *renderer) Pipeline(key string) pipeline.Pipeline {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pipelineCache[key]
}

func (r *renderer) Pipelines() map[string]pipeline.Pipeline {
	r.mu.Lock()
	defer r.mu.Unlock()
	return maps.Clone(r.pipelineCache)
}

func (r *renderer) PipelineState(key string) pipeline.State {
	p := r.Pipeline(key)
	if p == nil {
		return pipeline.StateMissing
	}
	return p.State()
}

func (r *renderer) WaitPipelines(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.compiling.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
	}

	var errs []error
	for _, p := range r.Pipelines() {
		if p.State() == pipeline.StateFailed {
			errs = append(errs, p.Err())
		}
	}
	return errors.Join(errs...)
}

func (r *renderer) WriteBuffers(writes []bind_group_provider.BufferWrite) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.initialized {
		return ErrNotInitialized
	}
	for _, w := range writes {
		b, ok := r.buffers[w.Key]
		if !ok {
			return fmt.Errorf("%w: %s", ErrBufferNotFound, w.Key)
		}
		if w.Offset%4 != 0 || len(w.Data)%4 != 0 || w.End() > b.Size {
			return fmt.Errorf("%w: write [%d, %d) into %s of %d bytes", ErrBufferOverflow, w.Offset, w.End(), w.Key, b.Size)
		}
	}

	var errs []error
	for _, w := range writes {
		if len(w.Data) == 0 {
			continue
		}
		if err := r.backend.WriteBuffer(w.Key, w.Offset, w.Data); err != nil {
			errs = append(errs, fmt.Errorf("failed to write buffer %s: %w", w.Key, err))
		}
	}
	return errors.Join(errs...)
}

func (r *renderer) BeginComputeFrame() error {
	r.mu.Lock()
	initialized := r.initialized
	r.mu.Unlock()

	if !initialized {
		return ErrNotInitialized
	}
	return r.backend.BeginComputeFrame()
}

func (r *renderer) DispatchCompute(pipelineKey string, workGroupCount [3]uint32) error {
	p := r.Pipeline(pipelineKey)
	if p == nil {
		return fmt.Errorf("%w: %s", ErrPipelineNotFound, pipelineKey)
	}
	if state := p.State(); state != pipeline.StateReady {
		return fmt.Errorf("%w: %s is %s", ErrPipelineNotReady, pipelineKey, state)
	}
	for _, n := range workGroupCount {
		if n == 0 || (r.limits.MaxComputeWorkgroupsPerDimension > 0 && n > r.limits.MaxComputeWorkgroupsPerDimension) {
			return fmt.Errorf("%w: %v for %s", ErrInvalidWorkgroups, workGroupCount, pipelineKey)
		}
	}
	return r.backend.DispatchCompute(p, workGroupCount)
}

func (r *renderer) CopyBuffer(src, dst string, size uint64) error {
	r.mu.Lock()
	s, okSrc := r.buffers[src]
	d, okDst := r.buffers[dst]
	r.mu.Unlock()

	switch {
	case !okSrc:
		return fmt.Errorf("%w: %s", ErrBufferNotFound, src)
	case !okDst:
		return fmt.Errorf("%w: %s", ErrBufferNotFound, dst)
	case size%4 != 0 || size > s.Size || size > d.Size:
		return fmt.Errorf("%w: copy of %d bytes from %s to %s", ErrBufferOverflow, size, src, dst)
	case size == 0:
		return nil
	}
	return r.backend.CopyBuffer(src, dst, size)
}

func (r *renderer) EndComputeFrame() error {
	return r.backend.EndComputeFrame()
}

func (r *renderer) MapRead(ctx context.Context, key string, size uint64) ([]byte, error) {
	r.mu.Lock()
	b, ok := r.buffers[key]
	r.mu.Unlock()

	if !ok || b.Kind != BufferKindReadback {
		return nil, fmt.Errorf("%w: readback buffer %s", ErrBufferNotFound, key)
	}
	if size > b.Size {
		return nil, fmt.Errorf("%w: map of %d bytes from %s of %d bytes", ErrBufferOverflow, size, key, b.Size)
	}
	if size == 0 {
		return nil, nil
	}
	return r.backend.MapRead(ctx, key, size)
}

func (r *renderer) Release() {
	r.compilePool.Stop()

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.pipelineCache {
		p.Release()
	}
	clear(r.pipelineCache)
	r.backend.Release()
	r.initialized = false
}
