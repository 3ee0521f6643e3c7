package vtexcore

import "github.com/rs/zerolog"

// PageTableEntry is the 32-bit word stored per virtual page per mip.
// Bit 0: valid (1 = resident). Bits 1..8: slot.X. Bits 9..16: slot.Y.
// Bits 17..31: reserved, must be zero. This layout is a contract with the
// sampling shader and must not change independently of it.
type PageTableEntry uint32

// EncodeEntry builds the normative PageTableEntry for a resident slot.
func EncodeEntry(slot PageSlot) PageTableEntry {
	return PageTableEntry(1 | (uint32(slot.X)&0xFF)<<1 | (uint32(slot.Y)&0xFF)<<9)
}

// IsValid reports the entry's bit 0.
func (e PageTableEntry) IsValid() bool { return e&1 == 1 }

// Slot decodes bits 1..16 into a PageSlot. Only meaningful when IsValid.
func (e PageTableEntry) Slot() PageSlot {
	return PageSlot{
		X: int((e >> 1) & 0xFF),
		Y: int((e >> 9) & 0xFF),
	}
}

// PageTables holds one CPU-side grid of PageTableEntry per mip level,
// mirroring a GPU-side mipmapped R32UI texture. Level 0 has the finest
// (largest) grid; the coarsest level is 1x1.
type PageTables struct {
	levels [][]PageTableEntry // levels[lod][y*width+x]
	widths []int
	heights []int

	log zerolog.Logger

	dirty bool
}

// NewPageTables constructs a zero-filled table for every mip level implied
// by d, computed the same way the original does: repeatedly halving each
// dimension (flooring, clamped to 1) until both reach 1.
func NewPageTables(d Derived) *PageTables {
	pt := &PageTables{
		levels:  make([][]PageTableEntry, d.LODCount),
		widths:  make([]int, d.LODCount),
		heights: make([]int, d.LODCount),
		log:     defaultLogger(),
	}
	for lod := uint32(0); lod < d.LODCount; lod++ {
		w, h := d.PagesAtLOD(lod)
		pt.widths[lod] = w
		pt.heights[lod] = h
		pt.levels[lod] = make([]PageTableEntry, w*h)
	}
	return pt
}

// Write sets the CPU-side entry at (request.LOD, request.X, request.Y).
// An out-of-range LOD is a silent no-op (defensive against malformed
// feedback); an out-of-range (X,Y) within a valid LOD is a caller bug,
// governed by debugAssert.
func (pt *PageTables) Write(request PageRequest, entry PageTableEntry) {
	if request.LOD >= uint32(len(pt.levels)) {
		return
	}
	w, h := pt.widths[request.LOD], pt.heights[request.LOD]
	inBounds := request.X >= 0 && int(request.X) < w && request.Y >= 0 && int(request.Y) < h
	debugAssert(pt.log, inBounds, "PageTables.Write: (x,y) out of range for lod")
	if !inBounds {
		return
	}
	pt.levels[request.LOD][int(request.Y)*w+int(request.X)] = entry
	pt.dirty = true
}

// IsResident inspects the CPU-side entry and reports whether its valid
// bit is set. Out-of-range requests are treated as non-resident.
func (pt *PageTables) IsResident(request PageRequest) bool {
	if request.LOD >= uint32(len(pt.levels)) {
		return false
	}
	w, h := pt.widths[request.LOD], pt.heights[request.LOD]
	if request.X < 0 || int(request.X) >= w || request.Y < 0 || int(request.Y) >= h {
		return false
	}
	return pt.levels[request.LOD][int(request.Y)*w+int(request.X)].IsValid()
}

// Entry returns the raw entry at a request's coordinates, or 0 if the
// coordinates are out of range.
func (pt *PageTables) Entry(request PageRequest) PageTableEntry {
	if request.LOD >= uint32(len(pt.levels)) {
		return 0
	}
	w, h := pt.widths[request.LOD], pt.heights[request.LOD]
	if request.X < 0 || int(request.X) >= w || request.Y < 0 || int(request.Y) >= h {
		return 0
	}
	return pt.levels[request.LOD][int(request.Y)*w+int(request.X)]
}

// Levels returns the CPU-side grids, one per mip, for mirroring into a
// GPU texture. The returned slices are owned by PageTables and must not
// be retained past the next Write call.
func (pt *PageTables) Levels() [][]PageTableEntry {
	return pt.levels
}

// LevelDims returns the (width, height) of the grid at lod.
func (pt *PageTables) LevelDims(lod uint32) (int, int) {
	return pt.widths[lod], pt.heights[lod]
}

// GPUSync is the interface the owner of the mirrored R32UI texture
// implements; see gpu.PageTableTexture for the concrete Vulkan-backed
// implementation.
type GPUSync interface {
	UploadMip(lod uint32, width, height int, data []uint32) error
}

// Update uploads every CPU-side level to the matching mip of sink. This
// is the only sync point for the GPU view of the page tables and must
// run once per frame, after all Writes for that frame. If nothing was
// written since the last Update, it uploads nothing. If sink is nil,
// Update only clears the dirty flag.
func (pt *PageTables) Update(sink GPUSync) error {
	if !pt.dirty {
		return nil
	}
	if sink != nil {
		for lod, level := range pt.levels {
			raw := make([]uint32, len(level))
			for i, e := range level {
				raw[i] = uint32(e)
			}
			if err := sink.UploadMip(uint32(lod), pt.widths[lod], pt.heights[lod], raw); err != nil {
				return err
			}
		}
	}
	pt.dirty = false
	return nil
}
