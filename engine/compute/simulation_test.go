package compute

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-voxel/engine/compute/scheduler"
	"github.com/Carmen-Shannon/oxy-voxel/engine/compute/tagged_buffer"
	"github.com/Carmen-Shannon/oxy-voxel/engine/renderer"
	"github.com/Carmen-Shannon/oxy-voxel/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-voxel/engine/scene"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/go-gl/mathgl/mgl32"
)

// deviceBackend keeps buffers in host memory and runs the physics kernel as x += v * dt.
type deviceBackend struct {
	mu         sync.Mutex
	buffers    map[string][]byte
	gridSize   uint32
	dispatches []string
	writes     map[string]int
	gate       chan struct{}
}

func newDeviceBackend() *deviceBackend {
	return &deviceBackend{
		buffers: make(map[string][]byte),
		writes:  make(map[string]int),
	}
}

func (d *deviceBackend) Limits() renderer.Limits {
	return renderer.Limits{
		MinUniformBufferOffsetAlignment:  256,
		MaxStorageBufferBindingSize:      1 << 27,
		MaxComputeWorkgroupsPerDimension: 65535,
	}
}

func (d *deviceBackend) CreateBuffer(desc renderer.BufferDescriptor) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.buffers[desc.Key] = make([]byte, desc.Size)
	return nil
}

func (d *deviceBackend) CreateGridTexture(binding int, size uint32) error {
	d.gridSize = size
	return nil
}

func (d *deviceBackend) CreateBindGroup(layout wgpu.BindGroupLayoutDescriptor) error { return nil }

func (d *deviceBackend) CompileComputePipeline(p pipeline.Pipeline) error {
	if d.gate != nil {
		<-d.gate
	}
	p.SetComputePipeline(nil)
	return nil
}

func (d *deviceBackend) WriteBuffer(key string, offset uint64, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	copy(d.buffers[key][offset:], data)
	d.writes[key]++
	return nil
}

func (d *deviceBackend) BeginComputeFrame() error { return nil }

func (d *deviceBackend) DispatchCompute(p pipeline.Pipeline, workGroupCount [3]uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dispatches = append(d.dispatches, p.PipelineKey())
	if p.PipelineKey() == string(scheduler.KernelUpdatePhysics) {
		return d.integrate()
	}
	return nil
}

func (d *deviceBackend) integrate() error {
	dt := math.Float32frombits(binary.LittleEndian.Uint32(d.buffers[BufferUniform][4:]))
	words := tagged_buffer.BytesToWords(d.buffers[BufferPhysics])
	cur, err := tagged_buffer.NewCursor(words)
	if err != nil {
		return err
	}
	for slot := 0; slot < cur.HeaderCount(); slot++ {
		_, off, err := cur.Header(slot)
		if err != nil {
			return err
		}
		for axis := 0; axis < 3; axis++ {
			pos := math.Float32frombits(words[off+axis])
			vel := math.Float32frombits(words[off+3+axis])
			words[off+axis] = math.Float32bits(pos + vel*dt)
		}
	}
	copy(d.buffers[BufferPhysics], tagged_buffer.WordsToBytes(words))
	return nil
}

func (d *deviceBackend) CopyBuffer(src, dst string, size uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	copy(d.buffers[dst][:size], d.buffers[src][:size])
	return nil
}

func (d *deviceBackend) EndComputeFrame() error { return nil }

func (d *deviceBackend) MapRead(ctx context.Context, key string, size uint64) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.buffers[key][:size]), nil
}

func (d *deviceBackend) Release() {}

func (d *deviceBackend) count(key string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, k := range d.dispatches {
		if k == key {
			n++
		}
	}
	return n
}

func newTestSimulation(t *testing.T, d *deviceBackend, opts ...SimulationBuilderOption) Simulation {
	t.Helper()
	r, err := renderer.NewRenderer(renderer.BackendTypeWGPU,
		renderer.WithBackend(d),
		renderer.WithCompileWorkers(2),
		renderer.WithPreflight(false),
	)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(r.Release)

	opts = append([]SimulationBuilderOption{WithGrid(8, 2), WithCapacity(256, 256)}, opts...)
	sim, err := NewSimulation(r, opts...)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(sim.Release)

	if err := sim.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if d.gate == nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := r.WaitPipelines(ctx); err != nil {
			t.Fatal(err)
		}
	}
	return sim
}

func bodyScene() (scene.Scene, scene.EntityID) {
	s := scene.NewScene("bodies")
	id := s.Spawn(scene.Entity{
		Transform: scene.NewTransform(mgl32.Vec3{0, 0, 0}),
		Body:      &scene.Body{Velocity: mgl32.Vec3{1, 0, 0}},
	})
	s.Spawn(scene.Entity{
		Transform: scene.NewTransform(mgl32.Vec3{1, 1, 1}),
		Particle:  &scene.Particle{Material: 2},
	})
	return s, id
}

func step(t *testing.T, sim Simulation, sc Scene, n int) Report {
	t.Helper()
	const dt = 500 * time.Millisecond
	report, err := sim.Step(context.Background(), sc, time.Duration(n)*dt, dt)
	if err != nil {
		t.Fatalf("Step %d: %v", n, err)
	}
	return report
}

func positionX(t *testing.T, s scene.Scene, id scene.EntityID) float32 {
	t.Helper()
	tr, ok := s.Transform(id)
	if !ok {
		t.Fatalf("entity %d missing", id)
	}
	return tr.Position.X()
}

func TestStepBeforeInit(t *testing.T) {
	r, err := renderer.NewRenderer(renderer.BackendTypeWGPU, renderer.WithBackend(newDeviceBackend()))
	if err != nil {
		t.Fatal(err)
	}
	defer r.Release()
	sim, err := NewSimulation(r)
	if err != nil {
		t.Fatal(err)
	}
	defer sim.Release()

	sc, _ := bodyScene()
	if _, err := sim.Step(context.Background(), sc, 0, 0); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("err = %v, want ErrNotInitialized", err)
	}
}

func TestNewSimulationRejectsConfig(t *testing.T) {
	r, err := renderer.NewRenderer(renderer.BackendTypeWGPU, renderer.WithBackend(newDeviceBackend()))
	if err != nil {
		t.Fatal(err)
	}
	defer r.Release()

	tests := []struct {
		name string
		opt  SimulationBuilderOption
	}{
		{"grid not power of two", WithGrid(100, 1)},
		{"too many levels", WithGrid(8, 5)},
		{"unknown preset", WithPreset("fancy")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewSimulation(r, tt.opt); err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}

func TestInitCreatesResources(t *testing.T) {
	tests := []struct {
		preset    Preset
		pipelines int
	}{
		{PresetLegacy, 4},
		{PresetExpanded, 7},
	}
	for _, tt := range tests {
		t.Run(string(tt.preset), func(t *testing.T) {
			d := newDeviceBackend()
			sim := newTestSimulation(t, d, WithPreset(tt.preset))

			if d.gridSize != 8 {
				t.Errorf("grid texture = %d, want 8", d.gridSize)
			}
			want := map[string]int{
				BufferUniform:         256,
				BufferPhysics:         1024,
				BufferPhysicsReadback: 1024,
				BufferAnimation:       1024,
				BufferGridStorage:     int(sim.Sizing().StorageByteLength),
				BufferPortals:         2560,
			}
			for key, size := range want {
				if got := len(d.buffers[key]); got != size {
					t.Errorf("buffer %s = %d bytes, want %d", key, got, size)
				}
			}
			if n := len(sim.(*simulation).scheduler.Stages()); n != tt.pipelines {
				t.Errorf("stages = %d, want %d", n, tt.pipelines)
			}
			if err := sim.Init(); err != nil {
				t.Errorf("second Init: %v", err)
			}
		})
	}
}

func TestPhysicsResultsApplyNextFrame(t *testing.T) {
	d := newDeviceBackend()
	sim := newTestSimulation(t, d)
	sc, id := bodyScene()

	first := step(t, sim, sc, 1)
	if first.State != scheduler.StateInit || !first.Ran(scheduler.KernelUpdatePhysics) {
		t.Fatalf("first frame: state %v dispatches %v", first.State, first.Dispatches)
	}
	if x := positionX(t, sc, id); x != 0 {
		t.Fatalf("position after frame 1 = %v, want 0 until the next frame", x)
	}

	second := step(t, sim, sc, 2)
	if second.State != scheduler.StateUpdate {
		t.Errorf("second frame state = %v", second.State)
	}
	if second.Reconciled.Applied != 1 {
		t.Errorf("reconciled = %+v", second.Reconciled)
	}
	if x := positionX(t, sc, id); x != 0.5 {
		t.Errorf("position after frame 2 = %v, want 0.5", x)
	}

	step(t, sim, sc, 3)
	if x := positionX(t, sc, id); x != 1 {
		t.Errorf("position after frame 3 = %v, want 1", x)
	}
}

func TestDisabledComputeStopsReconcile(t *testing.T) {
	d := newDeviceBackend()
	sim := newTestSimulation(t, d, WithComputeEnabled(false))
	sc, id := bodyScene()

	if r := step(t, sim, sc, 1); !r.Active {
		t.Fatal("init frame must dispatch while compute is disabled")
	}
	second := step(t, sim, sc, 2)
	if second.Active || second.Reconciled.Applied != 1 {
		t.Fatalf("second frame active=%v reconciled=%+v", second.Active, second.Reconciled)
	}
	third := step(t, sim, sc, 3)
	if third.Reconciled.Applied != 0 {
		t.Errorf("third frame reconciled %+v without a dispatch", third.Reconciled)
	}
	if x := positionX(t, sc, id); x != 0.5 {
		t.Errorf("position = %v, want 0.5", x)
	}

	sim.SetComputeEnabled(true)
	if r := step(t, sim, sc, 4); !r.Ran(scheduler.KernelUpdatePhysics) {
		t.Errorf("re-enabled frame dispatches = %v", r.Dispatches)
	}
}

func TestKernelFlags(t *testing.T) {
	d := newDeviceBackend()
	sim := newTestSimulation(t, d, WithKernels(scheduler.AllKernels&^scheduler.FlagPhysics))
	sc, _ := bodyScene()

	step(t, sim, sc, 1)
	second := step(t, sim, sc, 2)
	if second.Reconciled.Applied != 0 {
		t.Errorf("reconciled %+v with physics disabled", second.Reconciled)
	}
	if n := d.count(string(scheduler.KernelUpdatePhysics)); n != 0 {
		t.Errorf("physics dispatched %d times", n)
	}
	if n := d.count(string(scheduler.KernelUpdate)); n != 2 {
		t.Errorf("update dispatched %d times, want 2", n)
	}

	sim.SetKernels(scheduler.AllKernels)
	if r := step(t, sim, sc, 3); !r.Ran(scheduler.KernelUpdatePhysics) {
		t.Errorf("dispatches = %v", r.Dispatches)
	}
}

func TestLoadingFrameUploadsNothing(t *testing.T) {
	d := newDeviceBackend()
	d.gate = make(chan struct{})
	sim := newTestSimulation(t, d)
	t.Cleanup(func() { close(d.gate) })
	sc, _ := bodyScene()

	r := step(t, sim, sc, 1)
	if r.State != scheduler.StateLoading || r.Active || len(r.Dispatches) != 0 {
		t.Fatalf("loading frame report = %+v", r.Report)
	}
	if r.PhysicsRecords != 1 || r.DecorationRecords != 1 {
		t.Errorf("records physics=%d decoration=%d", r.PhysicsRecords, r.DecorationRecords)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.writes) != 0 {
		t.Errorf("loading frame wrote %v", d.writes)
	}
}

func TestUniformUpload(t *testing.T) {
	d := newDeviceBackend()
	sim := newTestSimulation(t, d)
	sc, _ := bodyScene()

	step(t, sim, sc, 3)
	got := d.buffers[BufferUniform]
	if tm := math.Float32frombits(binary.LittleEndian.Uint32(got[0:])); tm != 1.5 {
		t.Errorf("time = %v, want 1.5", tm)
	}
	if dt := math.Float32frombits(binary.LittleEndian.Uint32(got[4:])); dt != 0.5 {
		t.Errorf("delta_time = %v, want 0.5", dt)
	}
	for _, key := range []string{BufferUniform, BufferPhysics, BufferAnimation, BufferGridStorage, BufferPortals} {
		if d.writes[key] != 1 {
			t.Errorf("buffer %s written %d times, want 1", key, d.writes[key])
		}
	}
}

func TestParsePreset(t *testing.T) {
	tests := []struct {
		name string
		want Preset
		err  error
	}{
		{"", PresetLegacy, nil},
		{"legacy", PresetLegacy, nil},
		{"expanded", PresetExpanded, nil},
		{"other", "", ErrUnknownPreset},
	}
	for _, tt := range tests {
		got, err := ParsePreset(tt.name)
		if got != tt.want || !errors.Is(err, tt.err) {
			t.Errorf("ParsePreset(%q) = %q, %v", tt.name, got, err)
		}
	}
}
