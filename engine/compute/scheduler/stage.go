package scheduler

import (
	"fmt"
	"math"

	"github.com/Carmen-Shannon/oxy-voxel/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-voxel/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-voxel/engine/renderer/shader"
)

// Kernel is the pipeline key of a compute kernel. Pipelines are registered under their entry
// point name.
type Kernel string

const (
	KernelClear           Kernel = shader.EntryClear
	KernelAutomata        Kernel = shader.EntryAutomata
	KernelAnimation       Kernel = shader.EntryAnimation
	KernelUpdate          Kernel = shader.EntryUpdate
	KernelUpdatePhysics   Kernel = shader.EntryUpdatePhysics
	KernelUpdateAnimation Kernel = shader.EntryUpdateAnimation
	KernelRebuild         Kernel = shader.EntryRebuild
)

// Flags selects which optional kernels may dispatch. The grid update kernel has no flag and
// always runs while dispatch is active.
type Flags uint8

const (
	FlagClear Flags = 1 << iota
	FlagAutomata
	FlagAnimation
	FlagPhysics
	FlagRebuild

	AllKernels = FlagClear | FlagAutomata | FlagAnimation | FlagPhysics | FlagRebuild
)

// Has reports whether every bit of f is set.
func (k Flags) Has(f Flags) bool {
	return k&f == f
}

// Scope orders stages. Every ScopeFrame stage runs before any ScopeView stage.
type Scope int

const (
	// ScopeFrame stages run once per frame, independent of any view.
	ScopeFrame Scope = iota

	// ScopeView stages run once per view after the frame stages.
	ScopeView
)

// Frame is the input of one scheduler frame.
type Frame struct {
	Number         uint64
	ComputeEnabled bool
	Kernels        Flags
	// GridSize is the per-axis grid texture size, the workgroup count of whole-grid kernels.
	GridSize         uint32
	PhysicsRecords   int
	PhysicsBytes     uint64
	AnimationRecords int
	// Uploads are written before the first dispatch of an active frame.
	Uploads []bind_group_provider.BufferWrite
}

// Device is the part of the renderer the scheduler drives.
type Device interface {
	PipelineState(key string) pipeline.State
	WriteBuffers(writes []bind_group_provider.BufferWrite) error
	BeginComputeFrame() error
	DispatchCompute(key string, workGroupCount [3]uint32) error
	CopyBuffer(src, dst string, size uint64) error
	EndComputeFrame() error
}

// Stage is one kernel dispatch in the frame's chain.
type Stage struct {
	Name   string
	Kernel Kernel
	Scope  Scope
	// Flag gates the stage on Frame.Kernels. Zero means the stage always runs.
	Flag Flags
	// Enabled is an extra readiness predicate, nil means always enabled.
	Enabled func(Frame) bool
	// Dispatch encodes the stage. It reports false when it had nothing to do.
	Dispatch func(Device, Frame) (bool, error)
}

func (s Stage) enabled(f Frame) bool {
	if s.Flag != 0 && !f.Kernels.Has(s.Flag) {
		return false
	}
	return s.Enabled == nil || s.Enabled(f)
}

// DispatchSize returns the per-axis workgroup count that tiles n records as a cube: the smallest
// c with c*c*c >= n. It returns 0 for n <= 0, which callers treat as skip.
func DispatchSize(n int) uint32 {
	if n <= 0 {
		return 0
	}
	target := uint64(n)
	c := uint64(math.Ceil(math.Cbrt(float64(n))))
	for c > 1 && (c-1)*(c-1)*(c-1) >= target {
		c--
	}
	for c*c*c < target {
		c++
	}
	return uint32(c)
}

// GridStage dispatches a kernel over the whole grid, GridSize workgroups per axis.
//
// Parameters:
//   - kernel: the kernel to dispatch
//   - scope: when the stage runs
//   - flag: the kernel flag gating the stage, zero for always
//
// Returns:
//   - Stage: the stage
func GridStage(kernel Kernel, scope Scope, flag Flags) Stage {
	return Stage{
		Name:   string(kernel),
		Kernel: kernel,
		Scope:  scope,
		Flag:   flag,
		Dispatch: func(d Device, f Frame) (bool, error) {
			n := f.GridSize
			if n == 0 {
				return false, nil
			}
			return true, d.DispatchCompute(string(kernel), [3]uint32{n, n, n})
		},
	}
}

// RecordStage dispatches a kernel once per record of a tagged buffer, DispatchSize(count)
// workgroups per axis. A buffer with no records skips the kernel.
//
// Parameters:
//   - kernel: the kernel to dispatch
//   - scope: when the stage runs
//   - flag: the kernel flag gating the stage
//   - count: returns the record count of the frame's buffer
//
// Returns:
//   - Stage: the stage
func RecordStage(kernel Kernel, scope Scope, flag Flags, count func(Frame) int) Stage {
	return Stage{
		Name:   string(kernel),
		Kernel: kernel,
		Scope:  scope,
		Flag:   flag,
		Dispatch: func(d Device, f Frame) (bool, error) {
			n := DispatchSize(count(f))
			if n == 0 {
				return false, nil
			}
			return true, d.DispatchCompute(string(kernel), [3]uint32{n, n, n})
		},
	}
}

// PhysicsStage dispatches the physics kernel over the frame's bodies, then copies the physics
// buffer into the host-mappable readback buffer in the same submission.
//
// Parameters:
//   - src: the physics storage buffer key
//   - dst: the readback buffer key
//
// Returns:
//   - Stage: the stage
func PhysicsStage(src, dst string) Stage {
	s := RecordStage(KernelUpdatePhysics, ScopeView, FlagPhysics, physicsRecords)
	dispatch := s.Dispatch
	s.Dispatch = func(d Device, f Frame) (bool, error) {
		ran, err := dispatch(d, f)
		if !ran || err != nil {
			return ran, err
		}
		if err := d.CopyBuffer(src, dst, f.PhysicsBytes); err != nil {
			return true, fmt.Errorf("failed to copy %s to %s: %w", src, dst, err)
		}
		return true, nil
	}
	return s
}

func physicsRecords(f Frame) int   { return f.PhysicsRecords }
func animationRecords(f Frame) int { return f.AnimationRecords }

// LegacyStages is the per-view chain: grid update, physics, animation, hierarchy rebuild.
//
// Parameters:
//   - physicsKey: the physics storage buffer key
//   - readbackKey: the physics readback buffer key
//
// Returns:
//   - []Stage: the four stages in dispatch order
func LegacyStages(physicsKey, readbackKey string) []Stage {
	return []Stage{
		GridStage(KernelUpdate, ScopeView, 0),
		PhysicsStage(physicsKey, readbackKey),
		RecordStage(KernelUpdateAnimation, ScopeView, FlagAnimation, animationRecords),
		GridStage(KernelRebuild, ScopeView, FlagRebuild),
	}
}

// ExpandedStages prefixes the legacy chain with the frame-global clear, automata and animation
// kernels.
//
// Parameters:
//   - physicsKey: the physics storage buffer key
//   - readbackKey: the physics readback buffer key
//
// Returns:
//   - []Stage: the seven stages in dispatch order
func ExpandedStages(physicsKey, readbackKey string) []Stage {
	return append([]Stage{
		GridStage(KernelClear, ScopeFrame, FlagClear),
		GridStage(KernelAutomata, ScopeFrame, FlagAutomata),
		RecordStage(KernelAnimation, ScopeFrame, FlagAnimation, animationRecords),
	}, LegacyStages(physicsKey, readbackKey)...)
}
