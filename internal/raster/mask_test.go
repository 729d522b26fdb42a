package raster

import "testing"

func TestMaskSetAt(t *testing.T) {
	m := New(3, 2)
	m.Set(1, 2, true)
	if !m.At(1, 2) {
		t.Fatalf("expected bit set at (1,2)")
	}
	if m.At(0, 0) {
		t.Fatalf("expected unset bit at (0,0)")
	}
}

func TestMaskAreaRatio(t *testing.T) {
	m := New(2, 2)
	if got := m.AreaRatio(); got != 0 {
		t.Fatalf("empty mask area ratio = %v, want 0", got)
	}
	m.Set(0, 0, true)
	m.Set(0, 1, true)
	if got := m.AreaRatio(); got != 0.5 {
		t.Fatalf("area ratio = %v, want 0.5", got)
	}
}

func TestMaskDilateGrowsOnly(t *testing.T) {
	m := New(5, 5)
	m.Set(2, 2, true)
	dilated := m.Dilate(1)

	if !dilated.At(2, 2) {
		t.Fatalf("dilated mask must still contain the original set pixel")
	}
	if !dilated.At(1, 2) || !dilated.At(3, 2) || !dilated.At(2, 1) || !dilated.At(2, 3) {
		t.Fatalf("dilated mask must grow into the 4-neighborhood")
	}
	if dilated.AreaRatio() < m.AreaRatio() {
		t.Fatalf("dilate must never shrink the set area")
	}
}
