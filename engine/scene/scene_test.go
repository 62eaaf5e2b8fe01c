package scene

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func TestSpawnAssignsIncreasingIDs(t *testing.T) {
	s := NewScene("test")
	a := s.Spawn(Entity{Transform: NewTransform(mgl32.Vec3{})})
	b := s.Spawn(Entity{Transform: NewTransform(mgl32.Vec3{})})
	if a == 0 || b <= a {
		t.Fatalf("ids not increasing: %d, %d", a, b)
	}
	if !s.Despawn(a) {
		t.Fatal("despawn of live entity returned false")
	}
	if s.Despawn(a) {
		t.Fatal("second despawn returned true")
	}
	c := s.Spawn(Entity{})
	if c == a {
		t.Fatal("despawned id reused")
	}
	if s.Count() != 2 {
		t.Fatalf("count = %d, want 2", s.Count())
	}
}

func TestPortalsIterateInSpawnOrder(t *testing.T) {
	s := NewScene("test")
	var want []EntityID
	for i := 0; i < 5; i++ {
		id := s.Spawn(Entity{
			Transform: NewTransform(mgl32.Vec3{float32(i), 0, 0}),
			Portal:    &Portal{Normal: mgl32.Vec3{0, 0, 1}},
		})
		want = append(want, id)
		s.Spawn(Entity{Particle: &Particle{}})
	}
	s.Despawn(want[1])
	want = append(want[:1], want[2:]...)

	var got []EntityID
	s.Portals(func(id EntityID, _ Transform, _ Portal) bool {
		got = append(got, id)
		return true
	})
	if len(got) != len(want) {
		t.Fatalf("got %d portals, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("portal %d = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestIteratorStopsEarly(t *testing.T) {
	s := NewScene("test", WithEntities(
		Entity{Particle: &Particle{}},
		Entity{Particle: &Particle{}},
		Entity{Particle: &Particle{}},
	))
	n := 0
	s.Particles(func(EntityID, Transform, Particle) bool {
		n++
		return n < 2
	})
	if n != 2 {
		t.Fatalf("visited %d particles, want 2", n)
	}
}

func TestSetBodyState(t *testing.T) {
	s := NewScene("test")
	body := s.Spawn(Entity{Transform: NewTransform(mgl32.Vec3{1, 2, 3}), Body: &Body{}})
	plain := s.Spawn(Entity{Transform: NewTransform(mgl32.Vec3{1, 2, 3})})

	pos := mgl32.Vec3{4, 5, 6}
	vel := mgl32.Vec3{0, -1, 0}
	if !s.SetBodyState(body, pos, vel) {
		t.Fatal("SetBodyState on body entity returned false")
	}
	tr, _ := s.Transform(body)
	if tr.Position != pos {
		t.Fatalf("position = %v, want %v", tr.Position, pos)
	}
	b, _ := s.Body(body)
	if b.Velocity != vel {
		t.Fatalf("velocity = %v, want %v", b.Velocity, vel)
	}
	if s.SetBodyState(plain, pos, vel) {
		t.Fatal("SetBodyState on entity without body returned true")
	}
	s.Despawn(body)
	if s.SetBodyState(body, pos, vel) {
		t.Fatal("SetBodyState on despawned entity returned true")
	}
}

func TestSpawnCopiesComponents(t *testing.T) {
	s := NewScene("test")
	b := &Body{Velocity: mgl32.Vec3{1, 0, 0}}
	id := s.Spawn(Entity{Body: b})
	b.Velocity = mgl32.Vec3{9, 9, 9}
	got, _ := s.Body(id)
	if got.Velocity != (mgl32.Vec3{1, 0, 0}) {
		t.Fatalf("scene body aliased caller's component: %v", got.Velocity)
	}
}
