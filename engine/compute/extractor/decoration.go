package extractor

import (
	"github.com/Carmen-Shannon/oxy-voxel/common"
	"github.com/Carmen-Shannon/oxy-voxel/engine/compute/grid"
	"github.com/Carmen-Shannon/oxy-voxel/engine/compute/tagged_buffer"
	"github.com/Carmen-Shannon/oxy-voxel/engine/scene"
	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/zap"
)

// DecorationFrame is one frame's decoration extraction.
type DecorationFrame struct {
	// Words is the finished tagged buffer.
	Words []uint32
	// Records is the number of records encoded.
	Records int
	// Rejected is the number of records left out because the buffer was full.
	Rejected int
	// Portals is the frame's portal pairing table.
	Portals PortalTable
}

// decorationExtractor is the implementation of the DecorationExtractor interface.
type decorationExtractor struct {
	capacity       int
	portalSlots    int
	voxelsPerMeter uint32
	logger         *zap.Logger
}

// DecorationExtractor serializes particles, portals and edges into the decoration buffer and derives
// the portal pairing table from the same traversal.
type DecorationExtractor interface {
	// Extract encodes the current scene state. Particles are encoded first, then portals, then
	// edges, each in scene traversal order. Once a record does not fit, it and every later record
	// are counted as Rejected; the buffer never holds a partial record.
	//
	// Parameters:
	//   - src: the scene state to read
	//   - sizing: the grid hierarchy sizing used for voxel and render-space conversion
	//
	// Returns:
	//   - DecorationFrame: the encoded buffer, counts and portal table
	Extract(src DecorationSource, sizing grid.Sizing) DecorationFrame

	// PortalSlots returns the size of the portal table.
	PortalSlots() int
}

var _ DecorationExtractor = &decorationExtractor{}

// NewDecorationExtractor creates a DecorationExtractor.
//
// Parameters:
//   - options: functional options to further configure the extractor
//
// Returns:
//   - DecorationExtractor: the extractor
func NewDecorationExtractor(options ...DecorationExtractorBuilderOption) DecorationExtractor {
	d := &decorationExtractor{
		capacity:       DefaultDecorationWords,
		portalSlots:    DefaultPortalSlots,
		voxelsPerMeter: DefaultVoxelsPerMeter,
		logger:         zap.NewNop(),
	}

	for _, option := range options {
		option(d)
	}

	return d
}

func (d *decorationExtractor) PortalSlots() int {
	return d.portalSlots
}

type portalEntry struct {
	transform scene.Transform
	portal    scene.Portal
}

func (d *decorationExtractor) Extract(src DecorationSource, sizing grid.Sizing) DecorationFrame {
	enc := tagged_buffer.New(d.capacity)
	size := sizing.TextureSize
	rejected := 0

	push := func(tag uint8, write func(e *tagged_buffer.Encoder)) {
		if rejected > 0 {
			rejected++
			return
		}
		if err := enc.PushObject(tag, write); err != nil {
			rejected++
		}
	}

	src.Particles(func(_ scene.EntityID, t scene.Transform, p scene.Particle) bool {
		pos := common.WorldToVoxel(t.Position, d.voxelsPerMeter, size)
		push(TagParticle, func(e *tagged_buffer.Encoder) {
			e.PushU32(uint32(p.Material))
			e.PushIVec3(pos)
		})
		return true
	})

	var portals []portalEntry
	src.Portals(func(_ scene.EntityID, t scene.Transform, p scene.Portal) bool {
		pairIndex := uint32(len(portals))
		portals = append(portals, portalEntry{transform: t, portal: p})
		pos := common.WorldToVoxel(t.Position, d.voxelsPerMeter, size)
		push(TagPortal, func(e *tagged_buffer.Encoder) {
			e.PushU32(uint32(p.Material))
			e.PushIVec3(pos)
			e.PushU32(pairIndex)
			e.PushIVec3(p.HalfSize)
		})
		return true
	})

	src.Edges(func(_ scene.EntityID, t scene.Transform, ed scene.Edges) bool {
		pos := common.WorldToVoxel(t.Position, d.voxelsPerMeter, size)
		push(TagEdges, func(e *tagged_buffer.Encoder) {
			e.PushU32(uint32(ed.Material))
			e.PushIVec3(pos)
			e.PushIVec3(ed.HalfSize)
		})
		return true
	})

	frame := DecorationFrame{
		Records:  enc.Records(),
		Rejected: rejected,
		Portals:  d.pairPortals(portals, size),
	}
	frame.Words = enc.Finish()

	if rejected > 0 {
		d.logger.Warn("decoration buffer full, records rejected",
			zap.Int("encoded", frame.Records),
			zap.Int("rejected", rejected),
			zap.Int("capacity_words", d.capacity),
		)
	}
	if frame.Portals.Dropped > 0 {
		d.logger.Warn("portals dropped from pairing table",
			zap.Int("dropped", frame.Portals.Dropped),
			zap.Int("slots", d.portalSlots),
		)
	}
	return frame
}

// pairPortals pairs portals (2k, 2k+1) in traversal order and writes both directions of each pair
// into slots 2k and 2k+1.
func (d *decorationExtractor) pairPortals(portals []portalEntry, gridSize uint32) PortalTable {
	table := PortalTable{Slots: make([]ExtractedPortal, d.portalSlots)}
	half := common.HalfVoxelSize(gridSize)

	renderPos := func(p portalEntry) [4]float32 {
		r := common.WorldToRender(p.transform.Position, d.voxelsPerMeter, gridSize)
		return common.Vec4(r.Add(mgl32.Vec3{half, half, half}), 0)
	}

	for i := 1; i < len(portals); i += 2 {
		if i >= d.portalSlots {
			break
		}
		first, second := portals[i-1], portals[i]
		firstPos, secondPos := renderPos(first), renderPos(second)
		firstNormal := common.Vec4(first.portal.Normal, 0)
		secondNormal := common.Vec4(second.portal.Normal, 0)

		table.Slots[i-1] = ExtractedPortal{
			Pos:         firstPos,
			OtherPos:    secondPos,
			Normal:      firstNormal,
			OtherNormal: secondNormal,
			HalfSize:    common.IVec4(first.portal.HalfSize, 0),
		}
		table.Slots[i] = ExtractedPortal{
			Pos:         secondPos,
			OtherPos:    firstPos,
			Normal:      secondNormal,
			OtherNormal: firstNormal,
			HalfSize:    common.IVec4(second.portal.HalfSize, 0),
		}
		table.Pairs++
	}
	table.Dropped = len(portals) - 2*table.Pairs
	return table
}
