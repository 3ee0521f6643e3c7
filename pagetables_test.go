package vtexcore

import "testing"

func TestPageTableEntryRoundTrip(t *testing.T) {
	slot := PageSlot{X: 5, Y: 9}
	entry := EncodeEntry(slot)
	if !entry.IsValid() {
		t.Fatal("encoded entry should be valid")
	}
	if got := entry.Slot(); got != slot {
		t.Errorf("Slot() = %v, want %v", got, slot)
	}
}

func TestPageTableEntryZeroIsInvalid(t *testing.T) {
	var entry PageTableEntry
	if entry.IsValid() {
		t.Error("zero-value PageTableEntry should be invalid")
	}
}

func TestNewPageTablesDimensions(t *testing.T) {
	cfg := Config{VirtualSize: 2048, PageSize: 512, AtlasSlots: 2}
	d, err := cfg.Derive()
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}
	pt := NewPageTables(d)

	for lod := uint32(0); lod < d.LODCount; lod++ {
		w, h := pt.LevelDims(lod)
		wantW, wantH := d.PagesAtLOD(lod)
		if w != wantW || h != wantH {
			t.Errorf("LevelDims(%d) = (%d,%d), want (%d,%d)", lod, w, h, wantW, wantH)
		}
	}
	if len(pt.Levels()) != int(d.LODCount) {
		t.Errorf("len(Levels()) = %d, want %d", len(pt.Levels()), d.LODCount)
	}
}

func TestPageTablesWriteAndIsResident(t *testing.T) {
	cfg := Config{VirtualSize: 2048, PageSize: 512, AtlasSlots: 2}
	d, err := cfg.Derive()
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}
	pt := NewPageTables(d)

	req := PageRequest{LOD: 0, X: 1, Y: 1}
	if pt.IsResident(req) {
		t.Fatal("freshly constructed page tables should have no resident pages")
	}

	entry := EncodeEntry(PageSlot{X: 0, Y: 0})
	pt.Write(req, entry)
	if !pt.IsResident(req) {
		t.Error("expected request to be resident after Write")
	}
	if got := pt.Entry(req); got != entry {
		t.Errorf("Entry() = %d, want %d", got, entry)
	}

	pt.Write(req, 0)
	if pt.IsResident(req) {
		t.Error("expected request to be non-resident after clearing its entry")
	}
}

func TestPageTablesWriteOutOfRangeLODIsNoop(t *testing.T) {
	cfg := Config{VirtualSize: 2048, PageSize: 512, AtlasSlots: 2}
	d, err := cfg.Derive()
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}
	pt := NewPageTables(d)

	req := PageRequest{LOD: d.LODCount + 5, X: 0, Y: 0}
	pt.Write(req, EncodeEntry(PageSlot{X: 0, Y: 0}))
	if pt.IsResident(req) {
		t.Error("out-of-range LOD write should be a no-op, not resident")
	}
}

type fakeGPUSync struct {
	mips map[uint32][]uint32
}

func newFakeGPUSync() *fakeGPUSync {
	return &fakeGPUSync{mips: make(map[uint32][]uint32)}
}

func (f *fakeGPUSync) UploadMip(lod uint32, width, height int, data []uint32) error {
	cp := make([]uint32, len(data))
	copy(cp, data)
	f.mips[lod] = cp
	return nil
}

// S6, page-table side: once the coarsest (pinned) tile's entry is
// written, the page tables report it resident and the uploaded mip
// contains a valid entry. The Manager-driven preload path is covered by
// TestNewManagerPreloadsPinnedTier.
func TestPageTablesS6EndToEnd(t *testing.T) {
	cfg := Config{VirtualSize: 2048, PageSize: 512, AtlasSlots: 1, MinPinnedLOD: 2} // LODCount=3, coarsest lod=2
	d, err := cfg.Derive()
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}
	pt := NewPageTables(d)
	coarsest := d.LODCount - 1

	req := PageRequest{LOD: coarsest, X: 0, Y: 0}
	entry := EncodeEntry(PageSlot{X: 0, Y: 0})
	pt.Write(req, entry)

	if !pt.IsResident(req) {
		t.Fatal("expected the coarsest tile to be resident after Write")
	}

	sink := newFakeGPUSync()
	if err := pt.Update(sink); err != nil {
		t.Fatalf("Update: %v", err)
	}

	mip, ok := sink.mips[coarsest]
	if !ok {
		t.Fatalf("expected mip %d to be uploaded", coarsest)
	}
	if len(mip) != 1 || mip[0]&1 != 1 {
		t.Errorf("uploaded coarsest mip = %v, want a single valid entry", mip)
	}
}

func TestPageTablesUpdateSkipsWhenNotDirty(t *testing.T) {
	cfg := Config{VirtualSize: 1024, PageSize: 512, AtlasSlots: 1}
	d, err := cfg.Derive()
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}
	pt := NewPageTables(d)
	sink := newFakeGPUSync()

	if err := pt.Update(sink); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if len(sink.mips) != 0 {
		t.Errorf("Update on a clean PageTables uploaded %d mips, want 0", len(sink.mips))
	}
}
