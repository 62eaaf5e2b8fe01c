package extractor

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/Carmen-Shannon/oxy-voxel/common"
	"github.com/Carmen-Shannon/oxy-voxel/engine/compute/grid"
	"github.com/Carmen-Shannon/oxy-voxel/engine/compute/tagged_buffer"
	"github.com/Carmen-Shannon/oxy-voxel/engine/scene"
	"github.com/go-gl/mathgl/mgl32"
)

var testSizing = grid.Sizing{TextureSize: 128, Levels: 1}

func portalAt(x float32, normal mgl32.Vec3) scene.Entity {
	return scene.Entity{
		Transform: scene.NewTransform(mgl32.Vec3{x, 0, 0}),
		Portal:    &scene.Portal{Material: 3, HalfSize: common.IVec3{2, 4, 0}, Normal: normal},
	}
}

func TestPortalPairingSymmetry(t *testing.T) {
	s := scene.NewScene("portals", scene.WithEntities(
		portalAt(1, mgl32.Vec3{1, 0, 0}),
		portalAt(2, mgl32.Vec3{-1, 0, 0}),
		portalAt(3, mgl32.Vec3{0, 1, 0}),
		portalAt(4, mgl32.Vec3{0, -1, 0}),
	))

	frame := NewDecorationExtractor().Extract(s, testSizing)
	table := frame.Portals
	if len(table.Slots) != DefaultPortalSlots {
		t.Fatalf("slots = %d, want %d", len(table.Slots), DefaultPortalSlots)
	}
	if table.Pairs != 2 || table.Dropped != 0 {
		t.Fatalf("pairs = %d dropped = %d", table.Pairs, table.Dropped)
	}
	for k := 0; k < 2; k++ {
		a, b := table.Slots[2*k], table.Slots[2*k+1]
		if a.OtherPos != b.Pos || b.OtherPos != a.Pos {
			t.Errorf("pair %d positions not symmetric: %+v %+v", k, a, b)
		}
		if a.OtherNormal != b.Normal || b.OtherNormal != a.Normal {
			t.Errorf("pair %d normals not symmetric", k)
		}
	}
	if got := table.Slots[0].Pos; got != [4]float32{0.0703125, 0.0078125, 0.0078125, 0} {
		t.Errorf("render pos = %v", got)
	}
	if table.Slots[0].HalfSize != [4]int32{2, 4, 0, 0} {
		t.Errorf("half size = %v", table.Slots[0].HalfSize)
	}
	for i := 4; i < len(table.Slots); i++ {
		if table.Slots[i] != (ExtractedPortal{}) {
			t.Fatalf("unused slot %d not zeroed", i)
		}
	}
}

func TestPortalDrops(t *testing.T) {
	tests := []struct {
		name    string
		portals int
		slots   int
		pairs   int
		dropped int
	}{
		{"unpaired tail", 3, 32, 1, 1},
		{"over capacity", 7, 4, 2, 3},
		{"none", 0, 32, 0, 0},
		{"exactly full", 4, 4, 2, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := scene.NewScene("portals")
			for i := 0; i < tt.portals; i++ {
				s.Spawn(portalAt(float32(i), mgl32.Vec3{0, 0, 1}))
			}
			frame := NewDecorationExtractor(WithPortalSlots(tt.slots)).Extract(s, testSizing)
			if frame.Portals.Pairs != tt.pairs || frame.Portals.Dropped != tt.dropped {
				t.Fatalf("pairs = %d dropped = %d, want %d, %d",
					frame.Portals.Pairs, frame.Portals.Dropped, tt.pairs, tt.dropped)
			}
			if len(frame.Portals.Marshal()) != tt.slots*80 {
				t.Fatalf("marshaled table is %d bytes", len(frame.Portals.Marshal()))
			}
			// every portal still reaches the decoration buffer
			if frame.Records != tt.portals {
				t.Fatalf("records = %d, want %d", frame.Records, tt.portals)
			}
		})
	}
}

func TestDecorationLayout(t *testing.T) {
	s := scene.NewScene("layout")
	s.Spawn(scene.Entity{
		Transform: scene.NewTransform(mgl32.Vec3{0, 0, 0}),
		Edges:     &scene.Edges{Material: 9, HalfSize: common.IVec3{1, 1, 1}},
	})
	s.Spawn(portalAt(-1, mgl32.Vec3{1, 0, 0}))
	s.Spawn(scene.Entity{
		Transform: scene.NewTransform(mgl32.Vec3{0.5, -0.3, 2}),
		Particle:  &scene.Particle{Material: 7},
	})

	frame := NewDecorationExtractor().Extract(s, testSizing)
	if frame.Records != 3 || frame.Rejected != 0 {
		t.Fatalf("records = %d rejected = %d", frame.Records, frame.Rejected)
	}

	cur, err := tagged_buffer.NewCursor(frame.Words)
	if err != nil {
		t.Fatal(err)
	}
	if cur.HeaderCount() != 3 {
		t.Fatalf("header count = %d", cur.HeaderCount())
	}

	// particles, then portals, then edges, regardless of spawn order
	tag, words, err := cur.Record(0, 4)
	if err != nil || tag != TagParticle {
		t.Fatalf("slot 0: tag %d err %v", tag, err)
	}
	if words[0] != 7 || int32(words[1]) != 66 || int32(words[2]) != 62 || int32(words[3]) != 72 {
		t.Errorf("particle = %v", words)
	}

	tag, words, err = cur.Record(1, 8)
	if err != nil || tag != TagPortal {
		t.Fatalf("slot 1: tag %d err %v", tag, err)
	}
	if words[0] != 3 || int32(words[1]) != 60 || words[4] != 0 || int32(words[5]) != 2 || int32(words[6]) != 4 {
		t.Errorf("portal = %v", words)
	}

	tag, words, err = cur.Record(2, 7)
	if err != nil || tag != TagEdges {
		t.Fatalf("slot 2: tag %d err %v", tag, err)
	}
	if words[0] != 9 || int32(words[1]) != 64 || int32(words[4]) != 1 {
		t.Errorf("edges = %v", words)
	}
	if len(frame.Words) != 1+3+4+8+7 {
		t.Errorf("buffer length = %d", len(frame.Words))
	}
}

func TestDecorationCapacityRejectsWholeRecords(t *testing.T) {
	s := scene.NewScene("full")
	for i := 0; i < 4; i++ {
		s.Spawn(scene.Entity{Particle: &scene.Particle{}})
	}
	s.Spawn(scene.Entity{Edges: &scene.Edges{}})

	// header word + 2 particles of 5 words each
	frame := NewDecorationExtractor(WithDecorationCapacity(11)).Extract(s, testSizing)
	if frame.Records != 2 || frame.Rejected != 3 {
		t.Fatalf("records = %d rejected = %d", frame.Records, frame.Rejected)
	}
	if len(frame.Words) != 11 {
		t.Fatalf("buffer length = %d", len(frame.Words))
	}
	cur, err := tagged_buffer.NewCursor(frame.Words)
	if err != nil {
		t.Fatal(err)
	}
	for slot := 0; slot < cur.HeaderCount(); slot++ {
		if _, _, err := cur.Record(slot, 4); err != nil {
			t.Fatalf("slot %d: %v", slot, err)
		}
	}
}

// fakeMapper serves the most recently "dispatched" physics buffer.
type fakeMapper struct {
	result []uint32
	err    error
	calls  int
	words  []int
}

func (m *fakeMapper) MapRead(_ context.Context, _ string, words int) ([]uint32, error) {
	m.calls++
	m.words = append(m.words, words)
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

func (m *fakeMapper) InFlight(string) bool { return false }

func TestPhysicsRoundTrip(t *testing.T) {
	s := scene.NewScene("physics")
	id := s.Spawn(scene.Entity{Transform: scene.NewTransform(mgl32.Vec3{1, 2, 3}), Body: &scene.Body{}})
	mapper := &fakeMapper{}
	p := NewPhysicsExtractor(mapper, "physics_readback")

	frame, err := p.Step(context.Background(), s, false)
	if err != nil {
		t.Fatal(err)
	}
	if frame.Records != 1 || frame.Index[id] != 0 {
		t.Fatalf("frame = %+v", frame)
	}

	// scene drifts; readback must restore the encoded bits exactly
	s.SetBodyState(id, mgl32.Vec3{9, 9, 9}, mgl32.Vec3{9, 9, 9})
	mapper.result = frame.Words
	if _, err := p.Step(context.Background(), s, true); err != nil {
		t.Fatal(err)
	}

	tr, _ := s.Transform(id)
	b, _ := s.Body(id)
	want := [3]float32{1, 2, 3}
	for i := range want {
		if math.Float32bits(tr.Position[i]) != math.Float32bits(want[i]) {
			t.Errorf("position[%d] = %v", i, tr.Position[i])
		}
		if math.Float32bits(b.Velocity[i]) != 0 {
			t.Errorf("velocity[%d] = %v", i, b.Velocity[i])
		}
	}
	if mapper.words[0] != len(frame.Words) {
		t.Errorf("mapped %d words, want %d", mapper.words[0], len(frame.Words))
	}
}

func TestPhysicsOneFrameLatency(t *testing.T) {
	s := scene.NewScene("latency")
	id := s.Spawn(scene.Entity{
		Transform: scene.NewTransform(mgl32.Vec3{0, 0, 0}),
		Body:      &scene.Body{Velocity: mgl32.Vec3{1, 0, 0}},
	})
	mapper := &fakeMapper{}
	p := NewPhysicsExtractor(mapper, "physics_readback")

	// frame N: extract only
	frameN, err := p.Step(context.Background(), s, false)
	if err != nil {
		t.Fatal(err)
	}
	if mapper.calls != 0 {
		t.Fatal("frame N mapped the result buffer")
	}

	// device integrates frame N's buffer
	result := append([]uint32(nil), frameN.Words...)
	off := int(result[1] & tagged_buffer.OffsetMask)
	result[off] = math.Float32bits(1)
	mapper.result = result

	if tr, _ := s.Transform(id); tr.Position[0] != 0 {
		t.Fatal("position changed within frame N")
	}

	// frame N+1: results from N are applied before re-extraction
	frameN1, err := p.Step(context.Background(), s, true)
	if err != nil {
		t.Fatal(err)
	}
	if tr, _ := s.Transform(id); tr.Position[0] != 1 {
		t.Fatalf("position = %v after frame N+1", tr.Position)
	}
	if frameN1.Reconciled.Applied != 1 {
		t.Fatalf("reconciled = %+v", frameN1.Reconciled)
	}
	_, words, _ := mustCursor(t, frameN1.Words).Record(0, 6)
	if math.Float32frombits(words[0]) != 1 {
		t.Fatal("frame N+1 buffer not built from reconciled state")
	}
}

func TestPhysicsMapErrorKeepsIndex(t *testing.T) {
	s := scene.NewScene("error")
	s.Spawn(scene.Entity{Body: &scene.Body{}})
	s.Spawn(scene.Entity{Body: &scene.Body{}})
	mapper := &fakeMapper{}
	p := NewPhysicsExtractor(mapper, "physics_readback")

	if _, err := p.Step(context.Background(), s, false); err != nil {
		t.Fatal(err)
	}
	mapper.err = errors.New("device lost")
	if _, err := p.Step(context.Background(), s, true); !errors.Is(err, mapper.err) {
		t.Fatalf("err = %v", err)
	}
	if p.Pending() != 2 {
		t.Fatalf("pending = %d after failed readback", p.Pending())
	}
}

func TestPhysicsCapacity(t *testing.T) {
	s := scene.NewScene("full")
	var ids []scene.EntityID
	for i := 0; i < 3; i++ {
		ids = append(ids, s.Spawn(scene.Entity{Body: &scene.Body{}}))
	}

	// header word + 2 bodies of 7 words each
	frame, err := NewPhysicsExtractor(&fakeMapper{}, "physics_readback", WithPhysicsCapacity(15)).
		Step(context.Background(), s, false)
	if err != nil {
		t.Fatal(err)
	}
	if frame.Records != 2 || frame.Rejected != 1 || len(frame.Index) != 2 {
		t.Fatalf("frame = %+v", frame)
	}
	if _, ok := frame.Index[ids[2]]; ok {
		t.Fatal("rejected body is indexed")
	}
}

func mustCursor(t *testing.T, words []uint32) tagged_buffer.Cursor {
	t.Helper()
	c, err := tagged_buffer.NewCursor(words)
	if err != nil {
		t.Fatal(err)
	}
	return c
}
