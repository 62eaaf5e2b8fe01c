package tagged_buffer

import "encoding/binary"

// WordsToBytes encodes words as little-endian bytes for upload to a device buffer.
func WordsToBytes(words []uint32) []byte {
	out := make([]byte, len(words)*4)
	for i, w := range words {
		binary.LittleEndian.PutUint32(out[i*4:], w)
	}
	return out
}

// BytesToWords decodes little-endian bytes read back from a device buffer. Trailing bytes that do not
// form a whole word are ignored.
func BytesToWords(b []byte) []uint32 {
	out := make([]uint32, len(b)/4)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(b[i*4:])
	}
	return out
}
