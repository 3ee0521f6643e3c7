package vtexcore

import "testing"

func TestConfigDerive(t *testing.T) {
	cfg := Config{VirtualSize: 8192, PageSize: 512, PagePadding: 4, AtlasSlots: 2, MinPinnedLOD: 3}
	d, err := cfg.Derive()
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}
	if d.PagesPerEdge != 16 {
		t.Errorf("PagesPerEdge = %d, want 16", d.PagesPerEdge)
	}
	if d.LODCount != 5 {
		t.Errorf("LODCount = %d, want 5", d.LODCount)
	}
	if d.SlotSize != 520 {
		t.Errorf("SlotSize = %d, want 520", d.SlotSize)
	}
	if d.AtlasSize != 1040 {
		t.Errorf("AtlasSize = %d, want 1040", d.AtlasSize)
	}
}

func TestConfigDeriveRejectsNonMultiple(t *testing.T) {
	cfg := Config{VirtualSize: 1000, PageSize: 512, AtlasSlots: 2}
	if _, err := cfg.Derive(); err == nil {
		t.Fatal("expected error for non-multiple VirtualSize/PageSize")
	}
}

func TestConfigDeriveRejectsOversizedGrid(t *testing.T) {
	cfg := Config{VirtualSize: 512 * 512, PageSize: 512, AtlasSlots: 2}
	if _, err := cfg.Derive(); err == nil {
		t.Fatal("expected error for pages-per-edge exceeding the encoding limit")
	}
}

func TestConfigDeriveRejectsInvalidPinnedLOD(t *testing.T) {
	cfg := Config{VirtualSize: 2048, PageSize: 512, AtlasSlots: 2, MinPinnedLOD: 99}
	if _, err := cfg.Derive(); err == nil {
		t.Fatal("expected error for MinPinnedLOD > LODCount")
	}
}

func TestPagesAtLOD(t *testing.T) {
	cfg := Config{VirtualSize: 2048, PageSize: 512, AtlasSlots: 2}
	d, err := cfg.Derive()
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}
	// PagesPerEdge = 4, LODCount = 3 (4, 2, 1).
	tests := []struct {
		lod    uint32
		wantXY int
	}{
		{0, 4},
		{1, 2},
		{2, 1},
	}
	for _, tc := range tests {
		x, y := d.PagesAtLOD(tc.lod)
		if x != tc.wantXY || y != tc.wantXY {
			t.Errorf("PagesAtLOD(%d) = (%d,%d), want (%d,%d)", tc.lod, x, y, tc.wantXY, tc.wantXY)
		}
	}
}
