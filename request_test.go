package vtexcore

import "testing"

func TestPageRequestLess(t *testing.T) {
	a := PageRequest{LOD: 0, X: 0, Y: 0}
	b := PageRequest{LOD: 0, X: 0, Y: 1}
	c := PageRequest{LOD: 1, X: 0, Y: 0}

	if !a.Less(b) {
		t.Error("a should sort before b on Y")
	}
	if b.Less(a) {
		t.Error("b should not sort before a")
	}
	if !b.Less(c) {
		t.Error("b should sort before c on LOD")
	}
	if a.Less(a) {
		t.Error("a request should not be Less than itself")
	}
}

func TestPageRequestKeyUniqueness(t *testing.T) {
	seen := make(map[uint64]PageRequest)
	for lod := uint32(0); lod < 4; lod++ {
		for x := int32(0); x < 8; x++ {
			for y := int32(0); y < 8; y++ {
				r := PageRequest{LOD: lod, X: x, Y: y}
				k := r.Key()
				if other, ok := seen[k]; ok {
					t.Fatalf("Key collision: %v and %v both produced %d", r, other, k)
				}
				seen[k] = r
			}
		}
	}
}

func TestPageRequestInBounds(t *testing.T) {
	cfg := Config{VirtualSize: 2048, PageSize: 512, AtlasSlots: 2}
	d, err := cfg.Derive()
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}

	cases := []struct {
		req  PageRequest
		want bool
	}{
		{PageRequest{LOD: 0, X: 3, Y: 3}, true},
		{PageRequest{LOD: 0, X: 4, Y: 0}, false},
		{PageRequest{LOD: 2, X: 0, Y: 0}, true},
		{PageRequest{LOD: 2, X: 1, Y: 0}, false},
		{PageRequest{LOD: 3, X: 0, Y: 0}, false},
		{PageRequest{LOD: 0, X: -1, Y: 0}, false},
	}
	for _, tc := range cases {
		if got := tc.req.InBounds(d); got != tc.want {
			t.Errorf("InBounds(%v) = %v, want %v", tc.req, got, tc.want)
		}
	}
}

func TestPageSlotString(t *testing.T) {
	s := PageSlot{X: 1, Y: 2}
	if got, want := s.String(), "(1,2)"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
