package grid

import (
	"errors"
	"testing"
)

func TestSizing(t *testing.T) {
	tests := []struct {
		name   string
		size   uint32
		levels int
		bytes  uint64
	}{
		{"single level 8", 8, 1, 64},
		{"two levels 8", 8, 2, 72},
		{"single cell", 1, 1, 4},
		{"default", 128, 4, 299520},
		{"coarsest level one cell", 4, 3, 12},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := NewHierarchy(tt.size, tt.levels)
			if err != nil {
				t.Fatal(err)
			}
			s := h.Sizing()
			if s.TextureSize != tt.size || s.Levels != tt.levels {
				t.Fatalf("sizing = %+v", s)
			}
			if s.StorageByteLength != tt.bytes {
				t.Fatalf("storage bytes = %d, want %d", s.StorageByteLength, tt.bytes)
			}
			if s.StorageByteLength%4 != 0 {
				t.Fatal("storage not word aligned")
			}
		})
	}
}

func TestConfigureRejects(t *testing.T) {
	h, err := NewHierarchy(64, 2)
	if err != nil {
		t.Fatal(err)
	}
	before := h.Sizing()

	bad := []struct {
		size   uint32
		levels int
	}{
		{0, 1},
		{96, 1},
		{64, 0},
		{8, 5},
	}
	for _, b := range bad {
		if err := h.Configure(b.size, b.levels); !errors.Is(err, ErrInvalidSize) {
			t.Errorf("Configure(%d, %d) = %v, want ErrInvalidSize", b.size, b.levels, err)
		}
	}
	if h.Sizing() != before {
		t.Fatal("rejected configure changed sizing")
	}

	if err := h.Configure(32, 1); err != nil {
		t.Fatal(err)
	}
	if h.Sizing().TextureSize != 32 {
		t.Fatal("configure did not apply")
	}
}
