package loader

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/Carmen-Shannon/oxy-voxel/common"
	"github.com/Carmen-Shannon/oxy-voxel/engine/scene"
	"github.com/go-gl/mathgl/mgl32"
	"gopkg.in/yaml.v3"
)

// ErrInvalidFixture is returned when a fixture decodes but describes an entity the scene cannot hold.
var ErrInvalidFixture = errors.New("loader: invalid fixture")

// Fixture is a declarative scene: a name and the entities to spawn, in order. Portals pair up in
// the order they appear.
type Fixture struct {
	Name     string          `yaml:"name"`
	Entities []EntityFixture `yaml:"entities"`
}

// EntityFixture is one entity. Rotation is a quaternion in w, x, y, z order; omitted means identity.
type EntityFixture struct {
	Position mgl32.Vec3       `yaml:"position"`
	Rotation *[4]float32      `yaml:"rotation,omitempty"`
	Particle *ParticleFixture `yaml:"particle,omitempty"`
	Portal   *PortalFixture   `yaml:"portal,omitempty"`
	Edges    *EdgesFixture    `yaml:"edges,omitempty"`
	Body     *BodyFixture     `yaml:"body,omitempty"`
}

type ParticleFixture struct {
	Material uint8 `yaml:"material"`
}

type PortalFixture struct {
	Material uint8        `yaml:"material"`
	HalfSize common.IVec3 `yaml:"half_size"`
	Normal   mgl32.Vec3   `yaml:"normal"`
}

type EdgesFixture struct {
	Material uint8        `yaml:"material"`
	HalfSize common.IVec3 `yaml:"half_size"`
}

type BodyFixture struct {
	Velocity mgl32.Vec3 `yaml:"velocity"`
}

// Load decodes and validates a YAML fixture.
//
// Parameters:
//   - r: the YAML source
//
// Returns:
//   - *Fixture: the fixture
//   - error: a decode error or ErrInvalidFixture
func Load(r io.Reader) (*Fixture, error) {
	var f Fixture
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse fixture: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// LoadFile reads the YAML fixture at path.
func LoadFile(path string) (*Fixture, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture: %w", err)
	}
	defer file.Close()

	f, err := Load(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Validate checks every entity. Portal normals must be a unit vector along one axis.
func (f *Fixture) Validate() error {
	var errs []error
	for i, e := range f.Entities {
		if e.Portal != nil && !axisAligned(e.Portal.Normal) {
			errs = append(errs, fmt.Errorf("%w: entity %d portal normal %v is not a unit axis", ErrInvalidFixture, i, e.Portal.Normal))
		}
		if e.Rotation != nil {
			q := mgl32.Quat{W: e.Rotation[0], V: mgl32.Vec3{e.Rotation[1], e.Rotation[2], e.Rotation[3]}}
			if q.Len() == 0 {
				errs = append(errs, fmt.Errorf("%w: entity %d has a zero rotation", ErrInvalidFixture, i))
			}
		}
		for axis := 0; axis < 3; axis++ {
			if math.IsNaN(float64(e.Position[axis])) || math.IsInf(float64(e.Position[axis]), 0) {
				errs = append(errs, fmt.Errorf("%w: entity %d position %v", ErrInvalidFixture, i, e.Position))
				break
			}
		}
	}
	return errors.Join(errs...)
}

// Populate spawns the fixture's entities into sc in order.
//
// Parameters:
//   - sc: the scene to populate
//
// Returns:
//   - []scene.EntityID: the spawned IDs, in fixture order
func (f *Fixture) Populate(sc scene.Scene) []scene.EntityID {
	ids := make([]scene.EntityID, 0, len(f.Entities))
	for _, e := range f.Entities {
		ids = append(ids, sc.Spawn(e.entity()))
	}
	return ids
}

func (e EntityFixture) entity() scene.Entity {
	t := scene.NewTransform(e.Position)
	if e.Rotation != nil {
		t.Rotation = mgl32.Quat{W: e.Rotation[0], V: mgl32.Vec3{e.Rotation[1], e.Rotation[2], e.Rotation[3]}}.Normalize()
	}

	out := scene.Entity{Transform: t}
	if e.Particle != nil {
		out.Particle = &scene.Particle{Material: e.Particle.Material}
	}
	if e.Portal != nil {
		out.Portal = &scene.Portal{Material: e.Portal.Material, HalfSize: e.Portal.HalfSize, Normal: e.Portal.Normal}
	}
	if e.Edges != nil {
		out.Edges = &scene.Edges{Material: e.Edges.Material, HalfSize: e.Edges.HalfSize}
	}
	if e.Body != nil {
		out.Body = &scene.Body{Velocity: e.Body.Velocity}
	}
	return out
}

func axisAligned(n mgl32.Vec3) bool {
	nonZero := 0
	for _, c := range n {
		switch c {
		case 0:
		case 1, -1:
			nonZero++
		default:
			return false
		}
	}
	return nonZero == 1
}
