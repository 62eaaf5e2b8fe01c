package scene

import (
	"github.com/Carmen-Shannon/oxy-voxel/common"
	"github.com/go-gl/mathgl/mgl32"
)

// EntityID uniquely identifies an entity for the lifetime of a Scene. IDs are never reused.
type EntityID uint64

// Transform is an entity's world-space placement.
type Transform struct {
	// Position is the world-space position in meters.
	Position mgl32.Vec3
	// Rotation is the world-space orientation.
	Rotation mgl32.Quat
}

// NewTransform returns a Transform at pos with identity rotation.
func NewTransform(pos mgl32.Vec3) Transform {
	return Transform{Position: pos, Rotation: mgl32.QuatIdent()}
}

// Particle marks an entity drawn as a single animated voxel.
type Particle struct {
	Material uint8
}

// Portal marks an entity as one end of a portal pair. Portals pair up in spawn order.
type Portal struct {
	Material uint8
	// HalfSize is the portal's half-extent in voxels.
	HalfSize common.IVec3
	// Normal must be a normalized, voxel-aligned normal.
	Normal mgl32.Vec3
}

// Edges marks an entity drawn as the wireframe of a voxel box.
type Edges struct {
	Material uint8
	HalfSize common.IVec3
}

// Body marks an entity whose motion is integrated by the physics kernel.
type Body struct {
	Velocity mgl32.Vec3
}

// Entity describes an entity to spawn. Nil component pointers leave that component off.
type Entity struct {
	Transform Transform
	Particle  *Particle
	Portal    *Portal
	Edges     *Edges
	Body      *Body
}
