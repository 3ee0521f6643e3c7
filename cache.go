package vtexcore

import (
	"container/list"

	"github.com/rs/zerolog"
)

// Cache owns the atlas slots: a free-slot stack, an LRU list of resident
// requests with a pinned tier that is never scanned for eviction, and the
// request->slot mapping. Cache is not safe for concurrent use; per spec
// §5 it is render-thread-private.
type Cache struct {
	minPinnedLOD uint32

	freeSlots []PageSlot // stack, LIFO; top = freeSlots[len-1]

	lruList *list.List                    // front = most recently used
	lruMap  map[PageRequest]*list.Element // request -> its node in lruList
	reqToSlot map[PageRequest]PageSlot

	log zerolog.Logger
}

// NewCache creates a cache over an atlasSlots x atlasSlots grid of slots,
// all initially free, with tiers >= minPinnedLOD protected from eviction.
func NewCache(atlasSlots int, minPinnedLOD uint32) *Cache {
	c := &Cache{
		minPinnedLOD: minPinnedLOD,
		freeSlots:    make([]PageSlot, 0, atlasSlots*atlasSlots),
		lruList:      list.New(),
		lruMap:       make(map[PageRequest]*list.Element),
		reqToSlot:    make(map[PageRequest]PageSlot),
		log:          defaultLogger(),
	}
	// Push in reverse so that (0,0) ends up on top of the stack.
	for y := atlasSlots - 1; y >= 0; y-- {
		for x := atlasSlots - 1; x >= 0; x-- {
			c.freeSlots = append(c.freeSlots, PageSlot{X: x, Y: y})
		}
	}
	return c
}

// Commit records that request has been uploaded into slot. Precondition:
// request is not already resident; violating it is a caller bug.
func (c *Cache) Commit(request PageRequest, slot PageSlot) {
	if _, resident := c.reqToSlot[request]; resident {
		debugAssert(c.log, false, "Cache.Commit: request already resident")
		return
	}
	c.reqToSlot[request] = slot
	c.lruMap[request] = c.lruList.PushFront(request)
}

// Touch updates recency for request. Pinned tiers (LOD >= minPinnedLOD)
// are never reshuffled — this is a no-op for them. Touching a
// non-resident request is silently ignored.
func (c *Cache) Touch(request PageRequest) {
	if request.LOD >= c.minPinnedLOD {
		return
	}
	if elem, ok := c.lruMap[request]; ok {
		c.lruList.MoveToFront(elem)
	}
}

// Acquire resolves residency for request, in priority order: a cache hit,
// then a free slot, then an LRU eviction of the first non-pinned entry
// scanning from the back of the list. Returns a decision with no slot if
// the cache is saturated by pinned and in-flight pages.
func (c *Cache) Acquire(request PageRequest) ResidencyDecision {
	if slot, ok := c.reqToSlot[request]; ok {
		return ResidencyDecision{Slot: slot, HasSlot: true}
	}

	if n := len(c.freeSlots); n > 0 {
		slot := c.freeSlots[n-1]
		c.freeSlots = c.freeSlots[:n-1]
		return ResidencyDecision{Slot: slot, HasSlot: true}
	}

	for elem := c.lruList.Back(); elem != nil; elem = elem.Prev() {
		victim := elem.Value.(PageRequest)
		if victim.LOD >= c.minPinnedLOD {
			continue
		}
		slot := c.reqToSlot[victim]
		c.lruList.Remove(elem)
		delete(c.lruMap, victim)
		delete(c.reqToSlot, victim)
		return ResidencyDecision{
			Slot: slot, HasSlot: true,
			Evicted: victim, HasEvicted: true,
		}
	}

	return ResidencyDecision{}
}

// Cancel returns slot to the free-slot stack. Used when a load fails; the
// slot was never committed, so no LRU/map fix-up is required. Cancelling
// a slot twice is a caller bug.
func (c *Cache) Cancel(slot PageSlot) {
	for _, free := range c.freeSlots {
		if free == slot {
			debugAssert(c.log, false, "Cache.Cancel: slot already free")
			return
		}
	}
	c.freeSlots = append(c.freeSlots, slot)
}

// ResidentCount returns the number of currently committed pages.
func (c *Cache) ResidentCount() int { return len(c.reqToSlot) }

// FreeCount returns the number of currently free slots.
func (c *Cache) FreeCount() int { return len(c.freeSlots) }
