package tagged_buffer

import (
	"errors"
	"fmt"
)

// ErrOutOfBounds is returned when a header slot or data range lies outside the buffer.
var ErrOutOfBounds = errors.New("tagged buffer: read out of bounds")

// Cursor provides bounds-checked reads over a finished tagged buffer.
type Cursor struct {
	words []uint32
	count int
}

// NewCursor validates the header of a finished buffer and returns a Cursor over it.
// The buffer may be longer than the encoded content, as is the case for a mapped device buffer.
//
// Parameters:
//   - words: the finished buffer
//
// Returns:
//   - Cursor: the cursor
//   - error: ErrOutOfBounds if the buffer is empty or too short for its header count
func NewCursor(words []uint32) (Cursor, error) {
	if len(words) == 0 {
		return Cursor{}, fmt.Errorf("%w: empty buffer", ErrOutOfBounds)
	}
	count := int(words[0])
	if count < 0 || count+1 > len(words) {
		return Cursor{}, fmt.Errorf("%w: header count %d exceeds %d words", ErrOutOfBounds, words[0], len(words))
	}
	return Cursor{words: words, count: count}, nil
}

// HeaderCount returns the number of records the buffer declares.
func (c Cursor) HeaderCount() int {
	return c.count
}

// Header decodes the header word of a record slot.
//
// Parameters:
//   - slot: the record's header slot index
//
// Returns:
//   - uint8: the record type tag
//   - int: the absolute word offset of the record's first data word
//   - error: ErrOutOfBounds if the slot or its offset is invalid
func (c Cursor) Header(slot int) (uint8, int, error) {
	if slot < 0 || slot >= c.count {
		return 0, 0, fmt.Errorf("%w: slot %d of %d", ErrOutOfBounds, slot, c.count)
	}
	word := c.words[slot+1]
	offset := int(word & OffsetMask)
	if offset < c.count+1 || offset >= len(c.words) {
		return 0, 0, fmt.Errorf("%w: slot %d points at word %d", ErrOutOfBounds, slot, offset)
	}
	return uint8(word >> TagShift), offset, nil
}

// Words returns n words starting at an absolute offset.
func (c Cursor) Words(offset, n int) ([]uint32, error) {
	if offset < 0 || n < 0 || offset+n > len(c.words) {
		return nil, fmt.Errorf("%w: words [%d, %d) of %d", ErrOutOfBounds, offset, offset+n, len(c.words))
	}
	return c.words[offset : offset+n], nil
}

// Record returns the first n data words of the record in a header slot.
func (c Cursor) Record(slot, n int) (uint8, []uint32, error) {
	tag, offset, err := c.Header(slot)
	if err != nil {
		return 0, nil, err
	}
	words, err := c.Words(offset, n)
	if err != nil {
		return 0, nil, err
	}
	return tag, words, nil
}
