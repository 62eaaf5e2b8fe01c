// Package scheduler drives the compute kernels of a frame. It owns pipeline readiness: nothing
// dispatches until every stage's pipeline has compiled, the first ready frame always dispatches,
// and later frames dispatch only while compute is enabled.
package scheduler

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/Carmen-Shannon/oxy-voxel/engine/renderer/pipeline"
	"go.uber.org/zap"
)

// State is the scheduler's readiness state.
type State int

const (
	// StateLoading waits for every stage pipeline to compile. Nothing dispatches.
	StateLoading State = iota

	// StateInit is the first ready frame. It dispatches regardless of ComputeEnabled.
	StateInit

	// StateUpdate is the steady state, dispatching while ComputeEnabled.
	StateUpdate
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateInit:
		return "init"
	case StateUpdate:
		return "update"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Report describes what one frame did.
type Report struct {
	Frame uint64
	// State is the state the frame ran in.
	State        State
	Transitioned bool
	Active       bool
	Dispatches   []Kernel
	Skipped      []Kernel
}

// Ran reports whether the frame dispatched kernel.
func (r Report) Ran(kernel Kernel) bool {
	return slices.Contains(r.Dispatches, kernel)
}

// scheduler is the implementation of the Scheduler interface.
type scheduler struct {
	mu     *sync.Mutex
	stages []Stage
	device Device
	state  State

	// reportedFailures keeps a failed pipeline from being logged every frame.
	reportedFailures map[Kernel]bool
	logger           *zap.Logger
}

// Scheduler runs an ordered list of stages against a device once per frame.
type Scheduler interface {
	// State returns the current readiness state.
	//
	// Returns:
	//   - State: the scheduler state
	State() State

	// Stages returns the stages in dispatch order.
	//
	// Returns:
	//   - []Stage: a copy of the stage list
	Stages() []Stage

	// Pending returns the kernels whose pipelines are not ready yet.
	//
	// Returns:
	//   - []Kernel: kernels in stage order
	Pending() []Kernel

	// RunFrame advances the state machine and, when the frame is active, uploads the frame's
	// buffers and dispatches every enabled stage whose pipeline is ready, in order, inside one
	// compute frame. A stage error does not stop later stages.
	//
	// Parameters:
	//   - f: the frame input
	//
	// Returns:
	//   - Report: what the frame did
	//   - error: an upload or compute frame error, or the joined stage errors
	RunFrame(f Frame) (Report, error)
}

var _ Scheduler = &scheduler{}

// New creates a scheduler in StateLoading. Stages are stably ordered so frame-scope stages run
// before view-scope stages.
//
// Parameters:
//   - stages: the stages, in dispatch order within each scope
//   - device: the device the stages dispatch on
//   - opts: variadic list of SchedulerBuilderOption functions
//
// Returns:
//   - Scheduler: the scheduler
func New(stages []Stage, device Device, opts ...SchedulerBuilderOption) Scheduler {
	s := &scheduler{
		mu:               &sync.Mutex{},
		stages:           slices.Clone(stages),
		device:           device,
		state:            StateLoading,
		reportedFailures: make(map[Kernel]bool),
		logger:           zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	slices.SortStableFunc(s.stages, func(a, b Stage) int {
		return cmp.Compare(a.Scope, b.Scope)
	})
	return s
}

func (s *scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *scheduler) Stages() []Stage {
	return slices.Clone(s.stages)
}

func (s *scheduler) Pending() []Kernel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending()
}

func (s *scheduler) pending() []Kernel {
	var pending []Kernel
	for _, st := range s.stages {
		state := s.device.PipelineState(string(st.Kernel))
		if state == pipeline.StateReady {
			continue
		}
		pending = append(pending, st.Kernel)
		if state == pipeline.StateFailed && !s.reportedFailures[st.Kernel] {
			s.reportedFailures[st.Kernel] = true
			s.logger.Error("pipeline failed, scheduler stays loading", zap.String("kernel", string(st.Kernel)))
		}
	}
	return pending
}

func (s *scheduler) RunFrame(f Frame) (Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	report := Report{Frame: f.Number, State: s.state}
	switch s.state {
	case StateLoading:
		if pending := s.pending(); len(pending) > 0 {
			s.logger.Debug("pipelines not ready", zap.Uint64("frame", f.Number), zap.Int("pending", len(pending)))
			return report, nil
		}
		s.state = StateInit
		report.Transitioned = true
		s.logger.Info("pipelines ready", zap.Uint64("frame", f.Number), zap.Int("stages", len(s.stages)))
	case StateInit:
		s.state = StateUpdate
		report.Transitioned = true
	}
	report.State = s.state

	report.Active = s.state == StateInit || f.ComputeEnabled
	if !report.Active {
		return report, nil
	}

	if err := s.device.WriteBuffers(f.Uploads); err != nil {
		return report, fmt.Errorf("failed to upload frame %d: %w", f.Number, err)
	}
	if err := s.device.BeginComputeFrame(); err != nil {
		return report, fmt.Errorf("failed to begin compute frame %d: %w", f.Number, err)
	}

	var errs []error
	for _, st := range s.stages {
		if !st.enabled(f) {
			report.Skipped = append(report.Skipped, st.Kernel)
			continue
		}
		if state := s.device.PipelineState(string(st.Kernel)); state != pipeline.StateReady {
			s.logger.Debug("stage pipeline not ready", zap.String("stage", st.Name), zap.Stringer("state", state))
			report.Skipped = append(report.Skipped, st.Kernel)
			continue
		}

		ran, err := st.Dispatch(s.device, f)
		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("stage %s: %w", st.Name, err))
		case ran:
			report.Dispatches = append(report.Dispatches, st.Kernel)
		default:
			report.Skipped = append(report.Skipped, st.Kernel)
		}
	}

	if err := s.device.EndComputeFrame(); err != nil {
		errs = append(errs, fmt.Errorf("failed to end compute frame %d: %w", f.Number, err))
	}
	return report, errors.Join(errs...)
}
