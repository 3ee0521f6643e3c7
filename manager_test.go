package vtexcore

import (
	"sync"
	"testing"
)

type fakeAtlasWriter struct {
	mu     sync.Mutex
	writes map[PageSlot][]byte
}

func newFakeAtlasWriter() *fakeAtlasWriter {
	return &fakeAtlasWriter{writes: make(map[PageSlot][]byte)}
}

func (a *fakeAtlasWriter) WriteSlot(slotX, slotY int, pixels []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.writes[PageSlot{X: slotX, Y: slotY}] = pixels
	return nil
}

func (a *fakeAtlasWriter) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.writes)
}

func syntheticLoader(concurrency int) *Loader {
	l := NewLoader(concurrency)
	l.decode = func(path string) (*DecodedImage, error) {
		return &DecodedImage{Width: 1, Height: 1, Pixels: []byte{1, 2, 3, 4}}, nil
	}
	return l
}

func TestNewManagerPreloadsPinnedTier(t *testing.T) {
	cfg := Config{VirtualSize: 1024, PageSize: 512, AtlasSlots: 2, MinPinnedLOD: 1}
	d, err := cfg.Derive()
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}
	// PagesPerEdge=2, LODCount=2: lod 0 is a 2x2 grid, lod 1 is a 1x1
	// grid, so the MinPinnedLOD=1 preload should request exactly 1 page.

	atlasWriter := newFakeAtlasWriter()
	loader := syntheticLoader(1)
	m := NewManager(d, atlasWriter, nil, loader)
	loader.Wait()
	m.DrainCompletions()

	if !m.Tables().IsResident(PageRequest{LOD: 1, X: 0, Y: 0}) {
		t.Error("expected the pinned coarsest tile to be resident after preload")
	}
	if m.Tables().IsResident(PageRequest{LOD: 0, X: 0, Y: 0}) {
		t.Error("did not expect an unpinned tile to be preloaded")
	}
	if atlasWriter.count() != 1 {
		t.Errorf("atlas writes = %d, want 1", atlasWriter.count())
	}
}

func TestManagerRequestPageThenDrainMakesPageResident(t *testing.T) {
	cfg := Config{VirtualSize: 1024, PageSize: 512, AtlasSlots: 2, MinPinnedLOD: 2}
	d, err := cfg.Derive()
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}

	atlasWriter := newFakeAtlasWriter()
	loader := syntheticLoader(2)
	m := NewManager(d, atlasWriter, nil, loader)

	req := PageRequest{LOD: 0, X: 0, Y: 0}
	m.RequestPage(req)
	loader.Wait()
	m.DrainCompletions()

	if !m.Tables().IsResident(req) {
		t.Error("expected requested page to be resident after drain")
	}
	if m.Cache().ResidentCount() != 1 {
		t.Errorf("ResidentCount() = %d, want 1", m.Cache().ResidentCount())
	}
}

func TestManagerDrainCompletionsHandlesFailure(t *testing.T) {
	cfg := Config{VirtualSize: 1024, PageSize: 512, AtlasSlots: 2, MinPinnedLOD: 2}
	d, err := cfg.Derive()
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}

	loader := NewLoader(1)
	loadErr := errDecodeFailure{}
	loader.decode = func(path string) (*DecodedImage, error) { return nil, loadErr }

	atlasWriter := newFakeAtlasWriter()
	m := NewManager(d, atlasWriter, nil, loader)

	req := PageRequest{LOD: 0, X: 0, Y: 0}
	freeBefore := m.Cache().FreeCount()
	m.RequestPage(req)
	loader.Wait()
	m.DrainCompletions()

	if m.Tables().IsResident(req) {
		t.Error("a failed load should not become resident")
	}
	if got := m.Cache().FreeCount(); got != freeBefore {
		t.Errorf("FreeCount() = %d after failed load, want restored to %d", got, freeBefore)
	}
	if atlasWriter.count() != 0 {
		t.Errorf("atlas writes = %d, want 0 after a failed load", atlasWriter.count())
	}
}

type errDecodeFailure struct{}

func (errDecodeFailure) Error() string { return "synthetic decode failure" }

func TestManagerIngestFeedbackRequestsUnknownPages(t *testing.T) {
	cfg := Config{VirtualSize: 1024, PageSize: 512, AtlasSlots: 2, MinPinnedLOD: 2}
	d, err := cfg.Derive()
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}

	loader := syntheticLoader(2)
	m := NewManager(d, newFakeAtlasWriter(), nil, loader)

	feedbackWord := encodeForTest(0, 1, 1)
	m.IngestFeedback([]uint32{feedbackWord})
	loader.Wait()
	m.DrainCompletions()

	if !m.Tables().IsResident(PageRequest{LOD: 0, X: 1, Y: 1}) {
		t.Error("expected feedback-requested page to become resident")
	}
}

func TestManagerRequestPageOutOfBoundsDropped(t *testing.T) {
	cfg := Config{VirtualSize: 1024, PageSize: 512, AtlasSlots: 2, MinPinnedLOD: 2}
	d, err := cfg.Derive()
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}

	loader := syntheticLoader(2)
	m := NewManager(d, newFakeAtlasWriter(), nil, loader)

	freeBefore := m.Cache().FreeCount()
	// LOD 0's grid is 2x2 here; (5, 5) is bit-range valid but outside it.
	m.RequestPage(PageRequest{LOD: 0, X: 5, Y: 5})

	if got := m.Cache().FreeCount(); got != freeBefore {
		t.Errorf("FreeCount() = %d after an out-of-bounds request, want unchanged %d", got, freeBefore)
	}
	if m.Tables().IsResident(PageRequest{LOD: 0, X: 5, Y: 5}) {
		t.Error("an out-of-bounds request should never become resident")
	}
}

func TestManagerIngestFeedbackDropsOutOfBoundsRequest(t *testing.T) {
	cfg := Config{VirtualSize: 1024, PageSize: 512, AtlasSlots: 2, MinPinnedLOD: 2}
	d, err := cfg.Derive()
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}

	loader := syntheticLoader(2)
	m := NewManager(d, newFakeAtlasWriter(), nil, loader)

	freeBefore := m.Cache().FreeCount()
	// LOD 0's grid is 2x2; (5, 5) decodes to a bit-range-valid feedback
	// word but is out of the configured grid, and must never consume a
	// slot or get redispatched frame after frame.
	m.IngestFeedback([]uint32{encodeForTest(0, 5, 5)})
	loader.Wait()
	m.DrainCompletions()

	if got := m.Cache().FreeCount(); got != freeBefore {
		t.Errorf("FreeCount() = %d after out-of-bounds feedback, want unchanged %d", got, freeBefore)
	}
}

func TestManagerFrameFullSequence(t *testing.T) {
	cfg := Config{VirtualSize: 1024, PageSize: 512, AtlasSlots: 2, MinPinnedLOD: 2}
	d, err := cfg.Derive()
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}

	loader := syntheticLoader(2)
	sink := newFakeGPUSync()
	m := NewManager(d, newFakeAtlasWriter(), sink, loader)

	feedbackWord := encodeForTest(0, 0, 0)
	if err := m.Frame([]uint32{feedbackWord}); err != nil {
		t.Fatalf("Frame: %v", err)
	}
	loader.Wait()
	// A second frame drains the completion from the first and re-syncs
	// the now-dirty page tables.
	if err := m.Frame(nil); err != nil {
		t.Fatalf("Frame: %v", err)
	}

	if !m.Tables().IsResident(PageRequest{LOD: 0, X: 0, Y: 0}) {
		t.Error("expected page requested via feedback to be resident after two frames")
	}
	if len(sink.mips) == 0 {
		t.Error("expected SyncPageTables to have uploaded at least one mip")
	}
}

func TestManagerStats(t *testing.T) {
	cfg := Config{VirtualSize: 1024, PageSize: 512, AtlasSlots: 2, MinPinnedLOD: 2}
	d, err := cfg.Derive()
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}
	loader := syntheticLoader(2)
	m := NewManager(d, newFakeAtlasWriter(), nil, loader)

	before := m.Stats()
	if before.Resident != 0 || before.Free != d.AtlasSlots*d.AtlasSlots {
		t.Errorf("Stats() before any request = %+v", before)
	}

	m.RequestPage(PageRequest{LOD: 0, X: 0, Y: 0})
	loader.Wait()
	m.DrainCompletions()

	after := m.Stats()
	if after.Resident != 1 {
		t.Errorf("Stats().Resident = %d, want 1", after.Resident)
	}
	if after.Processing != 0 {
		t.Errorf("Stats().Processing = %d, want 0 after drain", after.Processing)
	}
}
