// Package vtexcore implements the residency manager for a virtual texture:
// feedback decoding, LRU-with-pinned-tier page caching, mip-mapped page
// tables, an async page loader, and the manager that glues them together.
package vtexcore

import "fmt"

// Config holds the design-time constants that shape a virtual texture.
// All fields are required; use Derive to compute everything else.
type Config struct {
	// VirtualSize is the logical image dimensions in pixels (square).
	VirtualSize int

	// PageSize is pixels per page, edge length.
	PageSize int

	// PagePadding is pixels of gutter per side of a page in the atlas.
	PagePadding int

	// AtlasSlots is the atlas grid dimensions, slots per axis.
	AtlasSlots int

	// MinPinnedLOD: all mip levels >= this value are pinned, never evictable.
	// Set it to the config's own LODCount to pin nothing.
	MinPinnedLOD uint32
}

// Derived holds the values computed from a Config.
type Derived struct {
	Config

	// PagesPerEdge is VirtualSize / PageSize.
	PagesPerEdge int

	// LODCount is the number of mip levels, L = floor(log2(PagesPerEdge)) + 1.
	LODCount uint32

	// SlotSize is PageSize + 2*PagePadding.
	SlotSize int

	// AtlasSize is SlotSize * AtlasSlots.
	AtlasSize int
}

// maxEncodablePagesPerEdge is the largest pages-per-edge the feedback word
// and PageTableEntry bit layouts (8 bits each for x and y) can address.
const maxEncodablePagesPerEdge = 256

// Derive validates cfg and computes the derived quantities. The feedback
// word and page-table entry bit layouts use fixed 8-bit fields for x and
// y; configuring a virtual texture whose pages-per-edge exceeds that
// range would silently miscode slot coordinates, so it is rejected here
// instead.
func (cfg Config) Derive() (Derived, error) {
	if cfg.VirtualSize <= 0 || cfg.PageSize <= 0 {
		return Derived{}, fmt.Errorf("vtexcore: VirtualSize and PageSize must be positive")
	}
	if cfg.VirtualSize%cfg.PageSize != 0 {
		return Derived{}, fmt.Errorf("vtexcore: VirtualSize %d must be a multiple of PageSize %d", cfg.VirtualSize, cfg.PageSize)
	}
	if cfg.AtlasSlots <= 0 {
		return Derived{}, fmt.Errorf("vtexcore: AtlasSlots must be positive")
	}
	if cfg.PagePadding < 0 {
		return Derived{}, fmt.Errorf("vtexcore: PagePadding must not be negative")
	}

	pagesPerEdge := cfg.VirtualSize / cfg.PageSize
	if pagesPerEdge > maxEncodablePagesPerEdge {
		return Derived{}, fmt.Errorf("vtexcore: pages-per-edge %d exceeds the 8-bit feedback/page-table encoding limit of %d", pagesPerEdge, maxEncodablePagesPerEdge)
	}

	lodCount := uint32(1)
	for n := pagesPerEdge; n > 1; n >>= 1 {
		lodCount++
	}

	if cfg.MinPinnedLOD > lodCount {
		return Derived{}, fmt.Errorf("vtexcore: MinPinnedLOD %d must be <= LODCount %d", cfg.MinPinnedLOD, lodCount)
	}

	slotSize := cfg.PageSize + 2*cfg.PagePadding

	return Derived{
		Config:       cfg,
		PagesPerEdge: pagesPerEdge,
		LODCount:     lodCount,
		SlotSize:     slotSize,
		AtlasSize:    slotSize * cfg.AtlasSlots,
	}, nil
}

// PagesAtLOD returns the page grid dimensions (x, y) at the given mip
// level: max(1, pages_per_edge >> lod) on both axes.
func (d Derived) PagesAtLOD(lod uint32) (int, int) {
	n := d.PagesPerEdge >> lod
	if n < 1 {
		n = 1
	}
	return n, n
}
