package extractor

import (
	"encoding/binary"
	"math"
	"unsafe"
)

// DefaultPortalSlots is the number of portal slots in the uniform portal table.
const DefaultPortalSlots = 32

// ExtractedPortal is the GPU-aligned representation of one traversal direction of a portal pair.
// Size: 80 bytes (std140 / WGSL aligned).
type ExtractedPortal struct {
	Pos         [4]float32 // offset  0: render-space position of this portal, w unused
	OtherPos    [4]float32 // offset 16: render-space position of the counterpart
	Normal      [4]float32 // offset 32: this portal's normal
	OtherNormal [4]float32 // offset 48: the counterpart's normal
	HalfSize    [4]int32   // offset 64: this portal's half-extent in voxels
}

// Size returns the size of the ExtractedPortal struct in bytes.
//
// Returns:
//   - int: the struct size in bytes (80)
func (p *ExtractedPortal) Size() int {
	return int(unsafe.Sizeof(*p))
}

// Marshal serializes the ExtractedPortal into little-endian bytes.
//
// Returns:
//   - []byte: 80-byte buffer ready for GPU upload
func (p *ExtractedPortal) Marshal() []byte {
	buf := make([]byte, 80)
	p.marshalInto(buf)
	return buf
}

func (p *ExtractedPortal) marshalInto(buf []byte) {
	vecs := [4][4]float32{p.Pos, p.OtherPos, p.Normal, p.OtherNormal}
	for v, vec := range vecs {
		for i, f := range vec {
			binary.LittleEndian.PutUint32(buf[v*16+i*4:], math.Float32bits(f))
		}
	}
	for i, n := range p.HalfSize {
		binary.LittleEndian.PutUint32(buf[64+i*4:], uint32(n))
	}
}

// PortalTable is the per-frame portal pairing. Slot i holds the portal visited i-th in traversal
// order; unused slots are zero.
type PortalTable struct {
	Slots []ExtractedPortal
	// Dropped counts portals that were left out of the table, either because their traversal index
	// exceeded the slot count or because they had no partner.
	Dropped int
	// Pairs is the number of complete pairs written.
	Pairs int
}

// Marshal serializes every slot, in order, for upload into the portal uniform array.
//
// Returns:
//   - []byte: len(Slots) * 80 bytes
func (t PortalTable) Marshal() []byte {
	buf := make([]byte, len(t.Slots)*80)
	for i := range t.Slots {
		t.Slots[i].marshalInto(buf[i*80:])
	}
	return buf
}
