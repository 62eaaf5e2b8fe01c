// Package tagged_buffer implements the self-describing word buffer consumed by the voxel compute kernels.
//
// A finished buffer is laid out as [header_count, header[0..header_count], data...]. Each header word
// packs an 8-bit type tag in the top byte and a 24-bit absolute word offset into the buffer in the low bytes.
package tagged_buffer

import (
	"errors"
	"fmt"
	"math"

	"github.com/Carmen-Shannon/oxy-voxel/common"
	"github.com/go-gl/mathgl/mgl32"
)

const (
	// TagShift is the bit position of the type tag inside a header word.
	TagShift = 24
	// OffsetMask selects the 24-bit data offset inside a header word.
	OffsetMask = 0x00FFFFFF
)

var (
	// ErrCapacityExceeded is returned when appending a record would grow the finished buffer past its word capacity.
	ErrCapacityExceeded = errors.New("tagged buffer: capacity exceeded")
	// ErrOffsetOverflow is returned when a record's absolute offset would no longer fit in 24 bits.
	ErrOffsetOverflow = errors.New("tagged buffer: offset exceeds 24 bits")
	// ErrFinished is returned when appending to an encoder whose buffer was already finished.
	ErrFinished = errors.New("tagged buffer: encoder already finished")
)

// Encoder accumulates tagged records into separate header and data segments.
// An Encoder is single use: Finish flattens the segments and retires the encoder.
type Encoder struct {
	capacity int
	header   []uint32
	data     []uint32
	finished bool
}

// New creates an empty Encoder whose finished buffer may hold at most capacityWords words.
// A capacity of zero or less disables the bound.
//
// Parameters:
//   - capacityWords: the word capacity of the device buffer this encoder feeds
//
// Returns:
//   - *Encoder: the new encoder
func New(capacityWords int) *Encoder {
	return &Encoder{capacity: capacityWords}
}

// PushObject appends a header entry for a record of the given tag, then calls write to append the record's fields.
// The record is accepted whole or not at all: if the finished buffer would exceed the encoder's capacity, or the
// record's offset would overflow 24 bits, every word written by write is discarded and an error is returned.
//
// Parameters:
//   - tag: the record type tag stored in the top byte of the header word
//   - write: appends the record's fields via PushU32, PushF32, PushVec3 and PushIVec3
//
// Returns:
//   - error: ErrCapacityExceeded, ErrOffsetOverflow or ErrFinished if the record was rejected
func (e *Encoder) PushObject(tag uint8, write func(e *Encoder)) error {
	if e.finished {
		return ErrFinished
	}

	headerLen, dataLen := len(e.header), len(e.data)
	e.header = append(e.header, uint32(dataLen)|uint32(tag)<<TagShift)
	write(e)

	// The newest record always carries the largest adjusted offset.
	if uint64(dataLen)+uint64(len(e.header))+1 > OffsetMask {
		e.rollback(headerLen, dataLen)
		return fmt.Errorf("%w: record %d (tag %d)", ErrOffsetOverflow, headerLen, tag)
	}
	if e.capacity > 0 && e.Len() > e.capacity {
		words := len(e.data) - dataLen + 1
		e.rollback(headerLen, dataLen)
		return fmt.Errorf("%w: record %d (tag %d) needs %d words, %d of %d used",
			ErrCapacityExceeded, headerLen, tag, words, e.Len(), e.capacity)
	}
	return nil
}

func (e *Encoder) rollback(headerLen, dataLen int) {
	e.header = e.header[:headerLen]
	e.data = e.data[:dataLen]
}

// PushU32 appends one raw word to the current record.
func (e *Encoder) PushU32(v uint32) {
	e.data = append(e.data, v)
}

// PushF32 appends the bit pattern of a float as one word.
func (e *Encoder) PushF32(v float32) {
	e.data = append(e.data, math.Float32bits(v))
}

// PushVec3 appends the bit patterns of v in x, y, z order.
func (e *Encoder) PushVec3(v mgl32.Vec3) {
	e.data = append(e.data, math.Float32bits(v[0]), math.Float32bits(v[1]), math.Float32bits(v[2]))
}

// PushIVec3 appends the two's complement bit patterns of v in x, y, z order.
func (e *Encoder) PushIVec3(v common.IVec3) {
	e.data = append(e.data, uint32(v[0]), uint32(v[1]), uint32(v[2]))
}

// Records returns the number of records accepted so far.
func (e *Encoder) Records() int {
	return len(e.header)
}

// Len returns the word count the finished buffer would have right now.
func (e *Encoder) Len() int {
	return 1 + len(e.header) + len(e.data)
}

// Finish shifts every header offset past the header segment and returns the flattened buffer.
// The encoder must not be used afterwards; calling Finish twice panics.
//
// Returns:
//   - []uint32: the finished buffer [header_count, header..., data...]
func (e *Encoder) Finish() []uint32 {
	if e.finished {
		panic("tagged_buffer: Finish called on a finished encoder")
	}
	e.finished = true

	shift := uint32(len(e.header) + 1)
	out := make([]uint32, 0, e.Len())
	out = append(out, uint32(len(e.header)))
	for _, h := range e.header {
		out = append(out, h+shift)
	}
	out = append(out, e.data...)

	e.header, e.data = nil, nil
	return out
}
