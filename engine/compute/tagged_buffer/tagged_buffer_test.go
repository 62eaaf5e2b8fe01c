package tagged_buffer

import (
	"errors"
	"math"
	"testing"

	"github.com/Carmen-Shannon/oxy-voxel/common"
	"github.com/go-gl/mathgl/mgl32"
)

func TestFinishEmpty(t *testing.T) {
	words := New(0).Finish()
	if len(words) != 1 || words[0] != 0 {
		t.Fatalf("empty buffer = %v, expected [0]", words)
	}
	c, err := NewCursor(words)
	if err != nil {
		t.Fatalf("NewCursor: %v", err)
	}
	if c.HeaderCount() != 0 {
		t.Errorf("HeaderCount = %d, expected 0", c.HeaderCount())
	}
}

func TestOffsetsPointAtFirstField(t *testing.T) {
	// Records of varying length; the first field of each is a marker equal to 1000+i.
	sizes := []int{1, 4, 7, 3, 8, 2}
	e := New(0)
	for i, n := range sizes {
		marker := uint32(1000 + i)
		err := e.PushObject(uint8(i%3), func(e *Encoder) {
			e.PushU32(marker)
			for j := 1; j < n; j++ {
				e.PushU32(uint32(j))
			}
		})
		if err != nil {
			t.Fatalf("PushObject %d: %v", i, err)
		}
	}
	words := e.Finish()

	if int(words[0]) != len(sizes) {
		t.Fatalf("header_count = %d, expected %d", words[0], len(sizes))
	}

	prev := 0
	for i := range sizes {
		header := words[i+1]
		tag := uint8(header >> TagShift)
		offset := int(header & OffsetMask)
		if tag != uint8(i%3) {
			t.Errorf("slot %d tag = %d, expected %d", i, tag, i%3)
		}
		if offset <= prev {
			t.Errorf("slot %d offset %d not strictly increasing after %d", i, offset, prev)
		}
		prev = offset
		if words[offset] != uint32(1000+i) {
			t.Errorf("slot %d offset %d holds %d, expected marker %d", i, offset, words[offset], 1000+i)
		}
	}

	total := 1 + len(sizes)
	for _, n := range sizes {
		total += n
	}
	if len(words) != total {
		t.Errorf("len = %d, expected %d", len(words), total)
	}
}

func TestVectorEncoding(t *testing.T) {
	e := New(0)
	_ = e.PushObject(0, func(e *Encoder) {
		e.PushVec3(mgl32.Vec3{1, -2.5, 3})
		e.PushIVec3(common.IVec3{-1, 0, 7})
		e.PushF32(0.25)
	})
	words := e.Finish()
	data := words[2:]

	expected := []uint32{
		math.Float32bits(1), math.Float32bits(-2.5), math.Float32bits(3),
		0xFFFFFFFF, 0, 7,
		math.Float32bits(0.25),
	}
	if len(data) != len(expected) {
		t.Fatalf("data len = %d, expected %d", len(data), len(expected))
	}
	for i := range expected {
		if data[i] != expected[i] {
			t.Errorf("data[%d] = %#x, expected %#x", i, data[i], expected[i])
		}
	}
}

func TestCapacityRejectsWholeRecord(t *testing.T) {
	// 1 count word + 2 * (1 header + 6 data) = 15 words.
	e := New(15)
	body := func(e *Encoder) {
		e.PushVec3(mgl32.Vec3{1, 2, 3})
		e.PushVec3(mgl32.Vec3{})
	}
	for i := 0; i < 2; i++ {
		if err := e.PushObject(0, body); err != nil {
			t.Fatalf("PushObject %d: %v", i, err)
		}
	}

	err := e.PushObject(0, body)
	if !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("third PushObject error = %v, expected ErrCapacityExceeded", err)
	}
	if e.Records() != 2 || e.Len() != 15 {
		t.Errorf("after rejection Records=%d Len=%d, expected 2 and 15", e.Records(), e.Len())
	}

	// A smaller record may still not fit: 15 + 2 > 15.
	if err := e.PushObject(1, func(e *Encoder) { e.PushU32(9) }); !errors.Is(err, ErrCapacityExceeded) {
		t.Errorf("small record error = %v, expected ErrCapacityExceeded", err)
	}

	words := e.Finish()
	if len(words) != 15 || words[0] != 2 {
		t.Errorf("finished len=%d count=%d, expected 15 and 2", len(words), words[0])
	}
}

func TestPushAfterFinish(t *testing.T) {
	e := New(0)
	e.Finish()
	if err := e.PushObject(0, func(*Encoder) {}); !errors.Is(err, ErrFinished) {
		t.Errorf("PushObject after Finish = %v, expected ErrFinished", err)
	}

	defer func() {
		if recover() == nil {
			t.Error("second Finish did not panic")
		}
	}()
	e.Finish()
}

func TestCursor(t *testing.T) {
	e := New(0)
	_ = e.PushObject(2, func(e *Encoder) {
		e.PushU32(5)
		e.PushU32(6)
	})
	_ = e.PushObject(1, func(e *Encoder) { e.PushU32(7) })
	words := e.Finish()

	c, err := NewCursor(words)
	if err != nil {
		t.Fatalf("NewCursor: %v", err)
	}

	tag, rec, err := c.Record(0, 2)
	if err != nil || tag != 2 || rec[0] != 5 || rec[1] != 6 {
		t.Errorf("Record(0) = %d %v %v", tag, rec, err)
	}
	tag, rec, err = c.Record(1, 1)
	if err != nil || tag != 1 || rec[0] != 7 {
		t.Errorf("Record(1) = %d %v %v", tag, rec, err)
	}

	if _, _, err := c.Header(2); !errors.Is(err, ErrOutOfBounds) {
		t.Errorf("Header(2) error = %v, expected ErrOutOfBounds", err)
	}
	if _, _, err := c.Record(1, 2); !errors.Is(err, ErrOutOfBounds) {
		t.Errorf("Record(1, 2) error = %v, expected ErrOutOfBounds", err)
	}
}

func TestCursorRejectsCorruptHeader(t *testing.T) {
	tests := []struct {
		name  string
		words []uint32
	}{
		{"empty", nil},
		{"count too large", []uint32{5, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewCursor(tt.words); !errors.Is(err, ErrOutOfBounds) {
				t.Errorf("NewCursor error = %v, expected ErrOutOfBounds", err)
			}
		})
	}

	// Offset pointing back into the header segment.
	c, err := NewCursor([]uint32{1, 1, 0})
	if err != nil {
		t.Fatalf("NewCursor: %v", err)
	}
	if _, _, err := c.Header(0); !errors.Is(err, ErrOutOfBounds) {
		t.Errorf("Header into header segment error = %v, expected ErrOutOfBounds", err)
	}
}

func TestWireRoundTrip(t *testing.T) {
	words := []uint32{0, 1, 0xDEADBEEF, math.Float32bits(-1)}
	b := WordsToBytes(words)
	if len(b) != 16 || b[8] != 0xEF || b[11] != 0xDE {
		t.Fatalf("WordsToBytes not little-endian: % x", b)
	}
	got := BytesToWords(append(b, 0xFF))
	if len(got) != len(words) {
		t.Fatalf("BytesToWords len = %d, expected %d", len(got), len(words))
	}
	for i := range words {
		if got[i] != words[i] {
			t.Errorf("word %d = %#x, expected %#x", i, got[i], words[i])
		}
	}
}
