package compute

import (
	"encoding/binary"
	"math"
	"unsafe"

	"github.com/Carmen-Shannon/oxy-voxel/engine/compute/extractor"
)

const (
	uniformsSize = uint64(unsafe.Sizeof(ComputeUniforms{}))
	portalSize   = uint64(unsafe.Sizeof(extractor.ExtractedPortal{}))
)

// ComputeUniforms is the GPU-aligned uniform block shared by every kernel.
// Size: 8 bytes, padded to the device's uniform alignment on upload.
type ComputeUniforms struct {
	Time      float32 // offset 0: seconds since the simulation started
	DeltaTime float32 // offset 4: seconds since the previous frame
}

// Marshal serializes the ComputeUniforms into little-endian bytes.
//
// Returns:
//   - []byte: 8-byte buffer ready for GPU upload
func (u ComputeUniforms) Marshal() []byte {
	buf := make([]byte, uniformsSize)
	binary.LittleEndian.PutUint32(buf[0:], math.Float32bits(u.Time))
	binary.LittleEndian.PutUint32(buf[4:], math.Float32bits(u.DeltaTime))
	return buf
}
