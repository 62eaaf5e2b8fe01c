package renderer

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxy-voxel/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-voxel/engine/renderer/pipeline"
	"github.com/cogentcore/webgpu/wgpu"
	"go.uber.org/zap"
)

// mapPollInterval is how long MapRead sleeps between device polls while a map is pending.
const mapPollInterval = 100 * time.Microsecond

var errNoComputeFrame = errors.New("no compute frame open")

type wgpuRendererBackendImpl struct {
	mu     *sync.Mutex
	device *wgpu.Device
	queue  *wgpu.Queue

	instance *wgpu.Instance
	adapter  *wgpu.Adapter

	limits    Limits
	resources bind_group_provider.BindGroupProvider
	modules   map[string]*wgpu.ShaderModule

	// Compute frame state for batching all compute dispatches into a single GPU submission
	computeFrameEncoder *wgpu.CommandEncoder

	// abandoned holds map callbacks of reads whose context ended before the map completed. The
	// buffer stays mapped-pending until the callback fires and must be unmapped before reuse.
	abandoned map[string]chan wgpu.BufferMapAsyncStatus

	logger *zap.Logger
}

var _ RendererBackend = &wgpuRendererBackendImpl{}

// newWGPURendererBackend opens a headless device. No surface is created; the device only runs
// compute work.
func newWGPURendererBackend(forceFallbackAdapter bool, logger *zap.Logger) (RendererBackend, error) {
	runtime.LockOSThread()
	w := &wgpuRendererBackendImpl{
		mu:        &sync.Mutex{},
		instance:  wgpu.CreateInstance(nil),
		resources: bind_group_provider.NewBindGroupProvider("Voxel Compute"),
		modules:   make(map[string]*wgpu.ShaderModule),
		abandoned: make(map[string]chan wgpu.BufferMapAsyncStatus),
		logger:    logger,
	}

	a, err := w.instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		ForceFallbackAdapter: forceFallbackAdapter,
	})
	if err != nil {
		w.instance.Release()
		return nil, fmt.Errorf("failed to request adapter: %w", err)
	}
	w.adapter = a

	limits := wgpu.DefaultLimits()
	d, err := a.RequestDevice(&wgpu.DeviceDescriptor{
		Label: "Compute Device",
		RequiredLimits: &wgpu.RequiredLimits{
			Limits: limits,
		},
	})
	if err != nil {
		a.Release()
		w.instance.Release()
		return nil, fmt.Errorf("failed to request device: %w", err)
	}
	w.device = d
	w.queue = d.GetQueue()

	// The requested limits are undefined sentinels; the device reports what it actually supports.
	supported := d.GetLimits().Limits
	w.limits = Limits{
		MinUniformBufferOffsetAlignment:  uint64(supported.MinUniformBufferOffsetAlignment),
		MaxStorageBufferBindingSize:      supported.MaxStorageBufferBindingSize,
		MaxComputeWorkgroupsPerDimension: supported.MaxComputeWorkgroupsPerDimension,
	}

	logger.Info("compute device ready", zap.Bool("fallback_adapter", forceFallbackAdapter))
	return w, nil
}

func (b *wgpuRendererBackendImpl) Limits() Limits {
	return b.limits
}

func (b *wgpuRendererBackendImpl) CreateBuffer(desc BufferDescriptor) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var usage wgpu.BufferUsage
	switch desc.Kind {
	case BufferKindUniform:
		usage = wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst
	case BufferKindStorage:
		usage = wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst | wgpu.BufferUsageCopySrc
	case BufferKindReadback:
		usage = wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst
	}

	buf, err := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: b.resources.Label() + " " + desc.Key,
		Size:  desc.Size,
		Usage: usage,
	})
	if err != nil {
		return err
	}
	b.resources.SetBuffer(desc.Key, buf)
	if desc.Binding >= 0 {
		b.resources.Bind(desc.Binding, desc.Key)
	}
	return nil
}

func (b *wgpuRendererBackendImpl) CreateGridTexture(binding int, size uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	tex, err := b.device.CreateTexture(&wgpu.TextureDescriptor{
		Label:     b.resources.Label() + " Grid",
		Usage:     wgpu.TextureUsageStorageBinding | wgpu.TextureUsageCopyDst,
		Dimension: wgpu.TextureDimension3D,
		Size: wgpu.Extent3D{
			Width:              size,
			Height:             size,
			DepthOrArrayLayers: size,
		},
		Format:        wgpu.TextureFormatR32Uint,
		MipLevelCount: 1,
		SampleCount:   1,
	})
	if err != nil {
		return err
	}
	view, err := tex.CreateView(nil)
	if err != nil {
		tex.Release()
		return err
	}
	b.resources.SetTexture(binding, tex, view)
	return nil
}

func (b *wgpuRendererBackendImpl) CreateBindGroup(layout wgpu.BindGroupLayoutDescriptor) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	layout.Label = b.resources.Label() + " Layout"
	bgl, err := b.device.CreateBindGroupLayout(&layout)
	if err != nil {
		return err
	}
	b.resources.SetBindGroupLayout(bgl)

	entries := make([]wgpu.BindGroupEntry, len(layout.Entries))
	for i, entry := range layout.Entries {
		binding := int(entry.Binding)
		if entry.StorageTexture.Format != wgpu.TextureFormatUndefined {
			tv := b.resources.TextureView(binding)
			if tv == nil {
				return fmt.Errorf("storage texture binding %d has no texture view", binding)
			}
			entries[i] = wgpu.BindGroupEntry{
				Binding:     entry.Binding,
				TextureView: tv,
			}
			continue
		}

		key, ok := b.resources.BoundBuffer(binding)
		if !ok {
			return fmt.Errorf("buffer binding %d has no buffer", binding)
		}
		entries[i] = wgpu.BindGroupEntry{
			Binding: entry.Binding,
			Buffer:  b.resources.Buffer(key),
			Offset:  0,
			Size:    wgpu.WholeSize,
		}
	}

	bindGroup, err := b.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   b.resources.Label() + " Bind Group",
		Layout:  bgl,
		Entries: entries,
	})
	if err != nil {
		return err
	}
	b.resources.SetBindGroup(bindGroup)
	return nil
}

func (b *wgpuRendererBackendImpl) CompileComputePipeline(p pipeline.Pipeline) error {
	computeShader := p.Shader()
	module, err := b.shaderModule(computeShader.Key(), computeShader.Module())
	if err != nil {
		return err
	}

	descriptors := computeShader.BindGroupLayoutDescriptors()
	maxGroup := -1
	for g := range descriptors {
		maxGroup = max(maxGroup, g)
	}
	bindGroupLayouts := make([]*wgpu.BindGroupLayout, maxGroup+1)
	for g, desc := range descriptors {
		bgl, bglErr := b.device.CreateBindGroupLayout(&desc)
		if bglErr != nil {
			return fmt.Errorf("failed to create bind group layout for group %d: %w", g, bglErr)
		}
		defer bgl.Release()
		bindGroupLayouts[g] = bgl
	}

	layout, err := b.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            p.Label(),
		BindGroupLayouts: bindGroupLayouts,
	})
	if err != nil {
		return err
	}
	defer layout.Release()

	created, err := b.device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label:  p.Label() + " Compute Pipeline",
		Layout: layout,
		Compute: wgpu.ProgrammableStageDescriptor{
			Module:     module,
			EntryPoint: p.EntryPoint(),
		},
	})
	if err != nil {
		return err
	}

	p.SetComputePipeline(created)
	return nil
}

// shaderModule creates a shader module once per shader key. Every kernel entry point of a
// module shares it.
func (b *wgpuRendererBackendImpl) shaderModule(key string, desc *wgpu.ShaderModuleDescriptor) (*wgpu.ShaderModule, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if m, ok := b.modules[key]; ok {
		return m, nil
	}
	m, err := b.device.CreateShaderModule(desc)
	if err != nil {
		return nil, err
	}
	b.modules[key] = m
	return m, nil
}

func (b *wgpuRendererBackendImpl) WriteBuffer(key string, offset uint64, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	buf := b.resources.Buffer(key)
	if buf == nil {
		return fmt.Errorf("buffer %s does not exist", key)
	}
	b.queue.WriteBuffer(buf, offset, data)
	return nil
}

func (b *wgpuRendererBackendImpl) BeginComputeFrame() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.computeFrameEncoder != nil {
		b.computeFrameEncoder.Release()
	}
	encoder, err := b.device.CreateCommandEncoder(nil)
	if err != nil {
		return err
	}
	b.computeFrameEncoder = encoder
	return nil
}

func (b *wgpuRendererBackendImpl) DispatchCompute(p pipeline.Pipeline, workGroupCount [3]uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.computeFrameEncoder == nil {
		return errNoComputeFrame
	}
	computePipeline := p.ComputePipeline()
	if computePipeline == nil {
		return fmt.Errorf("pipeline %s has no device pipeline", p.PipelineKey())
	}

	pass := b.computeFrameEncoder.BeginComputePass(nil)
	pass.SetPipeline(computePipeline)
	pass.SetBindGroup(0, b.resources.BindGroup(), nil)
	pass.DispatchWorkgroups(workGroupCount[0], workGroupCount[1], workGroupCount[2])
	pass.End()
	return nil
}

func (b *wgpuRendererBackendImpl) CopyBuffer(src, dst string, size uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.computeFrameEncoder == nil {
		return errNoComputeFrame
	}
	srcBuf, dstBuf := b.resources.Buffer(src), b.resources.Buffer(dst)
	if srcBuf == nil || dstBuf == nil {
		return fmt.Errorf("copy %s -> %s: buffer does not exist", src, dst)
	}
	b.computeFrameEncoder.CopyBufferToBuffer(srcBuf, 0, dstBuf, 0, size)
	return nil
}

func (b *wgpuRendererBackendImpl) EndComputeFrame() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.computeFrameEncoder == nil {
		return nil
	}
	defer func() {
		b.computeFrameEncoder.Release()
		b.computeFrameEncoder = nil
	}()

	commandBuffer, err := b.computeFrameEncoder.Finish(nil)
	if err != nil {
		return err
	}
	b.queue.Submit(commandBuffer)
	commandBuffer.Release()
	return nil
}

func (b *wgpuRendererBackendImpl) MapRead(ctx context.Context, key string, size uint64) ([]byte, error) {
	b.mu.Lock()
	buf := b.resources.Buffer(key)
	pending := b.abandoned[key]
	b.mu.Unlock()

	if buf == nil {
		return nil, fmt.Errorf("buffer %s does not exist", key)
	}

	if pending != nil {
		if _, err := b.awaitMap(ctx, pending); err != nil {
			return nil, err
		}
		buf.Unmap()
		b.mu.Lock()
		delete(b.abandoned, key)
		b.mu.Unlock()
	}

	done := make(chan wgpu.BufferMapAsyncStatus, 1)
	buf.MapAsync(wgpu.MapModeRead, 0, size, func(status wgpu.BufferMapAsyncStatus) {
		done <- status
	})

	status, err := b.awaitMap(ctx, done)
	if err != nil {
		b.mu.Lock()
		b.abandoned[key] = done
		b.mu.Unlock()
		return nil, err
	}
	if status != wgpu.BufferMapAsyncStatusSuccess {
		return nil, fmt.Errorf("map of %s failed with status %v", key, status)
	}

	out := make([]byte, size)
	copy(out, buf.GetMappedRange(0, uint(size)))
	buf.Unmap()
	return out, nil
}

// awaitMap polls the device until a map callback reports or ctx is done.
func (b *wgpuRendererBackendImpl) awaitMap(ctx context.Context, done <-chan wgpu.BufferMapAsyncStatus) (wgpu.BufferMapAsyncStatus, error) {
	for {
		b.device.Poll(false, nil)
		select {
		case status := <-done:
			return status, nil
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(mapPollInterval):
		}
	}
}

func (b *wgpuRendererBackendImpl) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.computeFrameEncoder != nil {
		b.computeFrameEncoder.Release()
		b.computeFrameEncoder = nil
	}
	b.resources.Release()
	for key, m := range b.modules {
		m.Release()
		delete(b.modules, key)
	}
	if b.device != nil {
		b.device.Release()
		b.device = nil
	}
	if b.adapter != nil {
		b.adapter.Release()
		b.adapter = nil
	}
	if b.instance != nil {
		b.instance.Release()
		b.instance = nil
	}
}
