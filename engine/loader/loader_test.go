package loader

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Carmen-Shannon/oxy-voxel/common"
	"github.com/Carmen-Shannon/oxy-voxel/engine/scene"
	"github.com/go-gl/mathgl/mgl32"
)

const portalRoom = `
name: portal-room
entities:
  - position: [1, 0, 0]
    portal: {material: 3, half_size: [2, 4, 0], normal: [1, 0, 0]}
  - position: [-1, 0, 0]
    portal: {material: 3, half_size: [2, 4, 0], normal: [-1, 0, 0]}
  - position: [0, 2, 0]
    rotation: [0, 0, 0, 2]
    body: {velocity: [0, -1, 0]}
    particle: {material: 5}
  - position: [0, 0, 3]
    edges: {material: 1, half_size: [1, 1, 1]}
`

func TestLoadAndPopulate(t *testing.T) {
	f, err := Load(strings.NewReader(portalRoom))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if f.Name != "portal-room" || len(f.Entities) != 4 {
		t.Fatalf("fixture = %s with %d entities", f.Name, len(f.Entities))
	}

	sc := scene.NewScene(f.Name)
	ids := f.Populate(sc)
	if len(ids) != 4 || sc.Count() != 4 {
		t.Fatalf("spawned %d, scene has %d", len(ids), sc.Count())
	}

	var portals []scene.Portal
	sc.Portals(func(_ scene.EntityID, _ scene.Transform, p scene.Portal) bool {
		portals = append(portals, p)
		return true
	})
	if len(portals) != 2 || portals[0].Normal != (mgl32.Vec3{1, 0, 0}) || portals[1].HalfSize != (common.IVec3{2, 4, 0}) {
		t.Errorf("portals = %+v", portals)
	}

	body, ok := sc.Body(ids[2])
	if !ok || body.Velocity != (mgl32.Vec3{0, -1, 0}) {
		t.Errorf("body = %+v, %v", body, ok)
	}
	tr, _ := sc.Transform(ids[2])
	if !tr.Rotation.ApproxEqual(mgl32.Quat{W: 0, V: mgl32.Vec3{0, 0, 1}}) {
		t.Errorf("rotation = %v, want normalized", tr.Rotation)
	}
	tr, _ = sc.Transform(ids[3])
	if tr.Rotation != mgl32.QuatIdent() {
		t.Errorf("default rotation = %v", tr.Rotation)
	}
}

func TestLoadRejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want error
	}{
		{"diagonal normal", "entities:\n  - portal: {normal: [1, 1, 0]}\n", ErrInvalidFixture},
		{"zero normal", "entities:\n  - portal: {material: 1}\n", ErrInvalidFixture},
		{"zero rotation", "entities:\n  - rotation: [0, 0, 0, 0]\n", ErrInvalidFixture},
		{"short vector", "entities:\n  - position: [1, 2]\n", nil},
		{"unknown field", "entities:\n  - colour: red\n", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(strings.NewReader(tt.yaml))
			if err == nil {
				t.Fatal("expected an error")
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestLoadEmpty(t *testing.T) {
	f, err := Load(strings.NewReader(""))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := f.Populate(scene.NewScene("empty")); len(got) != 0 {
		t.Errorf("spawned %d entities", len(got))
	}
}

func TestLoaderCaches(t *testing.T) {
	path := filepath.Join(t.TempDir(), "room.yaml")
	if err := os.WriteFile(path, []byte(portalRoom), 0o644); err != nil {
		t.Fatal(err)
	}

	l := NewLoader()
	first, err := l.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	second, err := l.Load(path)
	if err != nil || second != first {
		t.Fatalf("cached load = %p, %v; want %p", second, err, first)
	}
	if l.Get(path) != first || len(l.Fixtures()) != 1 {
		t.Errorf("cache = %v", l.Fixtures())
	}

	if _, err := l.Load(filepath.Join(t.TempDir(), "missing.yaml")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing file err = %v", err)
	}
	if _, err := l.LoadReader("bad", strings.NewReader("entities: 3")); err == nil {
		t.Error("LoadReader accepted a malformed fixture")
	}
	if l.Get("bad") != nil {
		t.Error("failed load was cached")
	}
}

func TestShippedScene(t *testing.T) {
	f, err := LoadFile(filepath.Join("..", "..", "scenes", "portal_room.yaml"))
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	sc := scene.NewScene(f.Name)
	f.Populate(sc)

	bodies := 0
	sc.Bodies(func(scene.EntityID, scene.Transform, scene.Body) bool {
		bodies++
		return true
	})
	if sc.Count() != 6 || bodies != 2 {
		t.Errorf("entities = %d bodies = %d", sc.Count(), bodies)
	}
}
