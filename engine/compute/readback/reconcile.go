// Package readback applies device-computed physics results to scene entities and guards the host
// mapping of device buffers.
package readback

import (
	"math"

	"github.com/Carmen-Shannon/oxy-voxel/engine/compute/tagged_buffer"
	"github.com/Carmen-Shannon/oxy-voxel/engine/scene"
	"github.com/go-gl/mathgl/mgl32"
)

// BodyWords is the number of data words a physics record carries: position xyz then velocity xyz.
const BodyWords = 6

// EntityIndex maps a body entity to the header slot of its record in the physics buffer it was
// extracted into. An index is only valid against that one buffer.
type EntityIndex map[scene.EntityID]int

// BodyWriter receives reconciled body state.
type BodyWriter interface {
	SetBodyState(id scene.EntityID, position, velocity mgl32.Vec3) bool
}

// Stats summarizes one reconciliation.
type Stats struct {
	// Applied is the number of entities updated.
	Applied int
	// Missing is the number of indexed entities that no longer exist or no longer have a body.
	Missing int
	// Invalid is the number of indexed slots whose header or data fell outside the result buffer.
	Invalid int
}

// Reconcile decodes result using index and writes each body's simulated position and velocity back
// onto the store. Entities that have since been despawned are skipped. A result buffer whose header
// cannot be read marks every entry Invalid and returns the decode error.
//
// Parameters:
//   - store: the scene receiving body state
//   - index: the entity index built when result's buffer was extracted
//   - result: the mapped physics buffer
//
// Returns:
//   - Stats: counts of applied, missing and invalid entries
//   - error: a decode error if the buffer header is unreadable
func Reconcile(store BodyWriter, index EntityIndex, result []uint32) (Stats, error) {
	var stats Stats
	if len(index) == 0 {
		return stats, nil
	}

	cur, err := tagged_buffer.NewCursor(result)
	if err != nil {
		stats.Invalid = len(index)
		return stats, err
	}

	for id, slot := range index {
		_, words, err := cur.Record(slot, BodyWords)
		if err != nil {
			stats.Invalid++
			continue
		}
		pos := mgl32.Vec3{
			math.Float32frombits(words[0]),
			math.Float32frombits(words[1]),
			math.Float32frombits(words[2]),
		}
		vel := mgl32.Vec3{
			math.Float32frombits(words[3]),
			math.Float32frombits(words[4]),
			math.Float32frombits(words[5]),
		}
		if store.SetBodyState(id, pos, vel) {
			stats.Applied++
		} else {
			stats.Missing++
		}
	}
	return stats, nil
}
