// Package extractor walks live scene state once per frame and serializes it into tagged buffers for
// the compute kernels: a decoration buffer of particles, portals and edges, and a physics buffer of
// dynamic bodies together with the entity index used to read the results back.
package extractor

import (
	"github.com/Carmen-Shannon/oxy-voxel/engine/compute/readback"
	"github.com/Carmen-Shannon/oxy-voxel/engine/scene"
)

// Decoration buffer record tags.
const (
	TagParticle uint8 = 0
	TagPortal   uint8 = 1
	TagEdges    uint8 = 2
)

// TagBody is the physics buffer record tag.
const TagBody uint8 = 0

// Default buffer capacities, in words.
const (
	DefaultDecorationWords = 1000000
	DefaultPhysicsWords    = 1024000
)

// DefaultVoxelsPerMeter is the grid resolution used when none is configured.
const DefaultVoxelsPerMeter = 4

// DecorationSource is the scene state read by the decoration extractor.
type DecorationSource interface {
	Particles(fn func(id scene.EntityID, t scene.Transform, p scene.Particle) bool)
	Portals(fn func(id scene.EntityID, t scene.Transform, p scene.Portal) bool)
	Edges(fn func(id scene.EntityID, t scene.Transform, e scene.Edges) bool)
}

// BodyStore is the scene state read and written by the physics extractor.
type BodyStore interface {
	readback.BodyWriter
	Bodies(fn func(id scene.EntityID, t scene.Transform, b scene.Body) bool)
}
