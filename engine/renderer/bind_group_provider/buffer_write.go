package bind_group_provider

// BufferWrite describes a single GPU buffer write operation targeting a named buffer at a given
// byte offset.
type BufferWrite struct {
	Key    string
	Offset uint64
	Data   []byte
}

// End returns the byte offset one past the last byte written.
func (w BufferWrite) End() uint64 {
	return w.Offset + uint64(len(w.Data))
}
