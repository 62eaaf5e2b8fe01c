package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-voxel/engine/compute"
	"github.com/Carmen-Shannon/oxy-voxel/engine/compute/grid"
	"github.com/Carmen-Shannon/oxy-voxel/engine/compute/scheduler"
	"github.com/Carmen-Shannon/oxy-voxel/engine/scene"
)

type fakeSimulation struct {
	mu      sync.Mutex
	steps   int
	failAt  int
	panicAt int
	block   bool
	last    time.Duration
}

var errStep = errors.New("step failed")

func (f *fakeSimulation) Init() error { return nil }

func (f *fakeSimulation) Step(ctx context.Context, sc compute.Scene, elapsed, dt time.Duration) (compute.Report, error) {
	f.mu.Lock()
	f.steps++
	n := f.steps
	if elapsed < f.last {
		f.mu.Unlock()
		return compute.Report{}, errors.New("elapsed went backwards")
	}
	f.last = elapsed
	f.mu.Unlock()

	switch {
	case n == f.failAt:
		return compute.Report{}, errStep
	case n == f.panicAt:
		panic("stale map")
	case f.block:
		<-ctx.Done()
		return compute.Report{}, ctx.Err()
	}
	return compute.Report{Report: scheduler.Report{Frame: uint64(n), Active: true}}, nil
}

func (f *fakeSimulation) State() scheduler.State           { return scheduler.StateUpdate }
func (f *fakeSimulation) Sizing() grid.Sizing              { return grid.Sizing{} }
func (f *fakeSimulation) SetComputeEnabled(enabled bool)   {}
func (f *fakeSimulation) SetKernels(flags scheduler.Flags) {}
func (f *fakeSimulation) Release()                         {}

func (f *fakeSimulation) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.steps
}

func runWithTimeout(t *testing.T, e Engine) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := e.Run(ctx)
	if ctx.Err() != nil {
		t.Fatal("engine did not stop before the test timeout")
	}
	return err
}

func TestRunRequiresSimulationAndScene(t *testing.T) {
	if err := NewEngine().Run(context.Background()); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("err = %v", err)
	}
}

func TestRunStopsAfterMaxFrames(t *testing.T) {
	sim := &fakeSimulation{}
	var frames atomic.Int32
	e := NewEngine(
		WithSimulation(sim),
		WithScene(scene.NewScene("test")),
		WithMaxFrames(5),
		WithProfiling(true),
	)
	e.SetFrameCallback(func(compute.Report) { frames.Add(1) })

	if err := runWithTimeout(t, e); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sim.count() != 5 || frames.Load() != 5 {
		t.Errorf("steps = %d callbacks = %d, want 5", sim.count(), frames.Load())
	}
}

func TestRunStopsOnFailure(t *testing.T) {
	tests := []struct {
		name string
		sim  *fakeSimulation
		want error
	}{
		{"step error", &fakeSimulation{failAt: 3}, errStep},
		{"panic", &fakeSimulation{panicAt: 2}, ErrFramePanic},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEngine(WithSimulation(tt.sim), WithScene(scene.NewScene("test")))
			if err := runWithTimeout(t, e); !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestQuitReleasesBlockedStep(t *testing.T) {
	sim := &fakeSimulation{block: true}
	e := NewEngine(WithSimulation(sim), WithScene(scene.NewScene("test")))

	go func() {
		for sim.count() == 0 {
			time.Sleep(time.Millisecond)
		}
		e.Quit()
		e.Quit()
	}()
	if err := runWithTimeout(t, e); err != nil {
		t.Fatalf("Run after Quit: %v", err)
	}
}

func TestContextCancelStopsRun(t *testing.T) {
	e := NewEngine(WithSimulation(&fakeSimulation{}), WithScene(scene.NewScene("test")), WithFrameLimit(1000))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run ignored context cancellation")
	}
}

func TestTickCallback(t *testing.T) {
	e := NewEngine(WithSimulation(&fakeSimulation{}), WithScene(scene.NewScene("test")), WithTickRate(1000), WithFrameLimit(1000))
	ticks := make(chan float32, 1)
	e.SetTickCallback(func(dt float32) {
		select {
		case ticks <- dt:
		default:
		}
		e.Quit()
	})
	if err := runWithTimeout(t, e); err != nil {
		t.Fatalf("Run: %v", err)
	}
	select {
	case dt := <-ticks:
		if dt <= 0 {
			t.Errorf("tick dt = %v", dt)
		}
	default:
		t.Fatal("tick callback never ran")
	}
}

func TestRateSetters(t *testing.T) {
	e := NewEngine().(*engine)

	tests := []struct {
		fps  float64
		tick time.Duration
	}{
		{120, time.Second / 120},
		{0, time.Second / 60},
		{-5, time.Second / 60},
	}
	for _, tt := range tests {
		e.SetTickRate(tt.fps)
		if e.engineTickRate != tt.tick {
			t.Errorf("SetTickRate(%v) = %v, want %v", tt.fps, e.engineTickRate, tt.tick)
		}
	}

	e.SetFrameLimit(50)
	if got := time.Duration(e.frameLimit.Load()); got != 20*time.Millisecond {
		t.Errorf("frame limit = %v", got)
	}
	e.SetFrameLimit(0)
	if e.frameLimit.Load() != 0 {
		t.Error("frame limit not cleared")
	}
}
