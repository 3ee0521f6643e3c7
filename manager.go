package vtexcore

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// AtlasWriter is implemented by the physical atlas texture backing (see
// package atlas). The Manager only needs to blit decoded page pixels into
// a slot; it owns no GPU resources and never renders anything itself.
type AtlasWriter interface {
	WriteSlot(slotX, slotY int, pixels []byte) error
}

type uploadItem struct {
	request PageRequest
	slot    PageSlot
	image   *DecodedImage
}

type failureItem struct {
	request PageRequest
	slot    PageSlot
	err     error
}

// Manager orchestrates the Cache, PageTables, AtlasWriter and Loader into
// a three-step per-frame pipeline: drain completions, ingest feedback,
// sync page tables. Manager itself is render-thread private except for
// the upload/failure queues, which are the only state shared with loader
// worker goroutines.
type Manager struct {
	derived Derived
	cache   *Cache
	tables  *PageTables
	atlas   AtlasWriter
	loader  *Loader
	gpu     GPUSync

	processingMu sync.Mutex // guards processing only; every current caller runs on the render thread
	processing   map[PageRequest]PageSlot

	queueMu         sync.Mutex
	pendingUploads  []uploadItem
	pendingFailures []failureItem

	log zerolog.Logger
}

// NewManager constructs a Manager and kicks off the pinned-tier preload:
// every page at every mip level >= d.MinPinnedLOD is requested
// immediately, matching the original's constructor-time
// `for page in GetLowResPages(): RequestPage(page.id)` but generalized to
// every pinned tier, not just the coarsest one.
//
// atlas and gpu may be nil, in which case uploads and page-table syncs
// are skipped — useful for exercising the residency state machine
// without a GPU backend (e.g. in tests).
func NewManager(d Derived, atlas AtlasWriter, gpu GPUSync, loader *Loader) *Manager {
	m := &Manager{
		derived:    d,
		cache:      NewCache(d.AtlasSlots, d.MinPinnedLOD),
		tables:     NewPageTables(d),
		atlas:      atlas,
		loader:     loader,
		gpu:        gpu,
		processing: make(map[PageRequest]PageSlot),
		log:        defaultLogger(),
	}

	for lod := d.MinPinnedLOD; lod < d.LODCount; lod++ {
		px, py := d.PagesAtLOD(lod)
		for y := 0; y < py; y++ {
			for x := 0; x < px; x++ {
				m.RequestPage(PageRequest{LOD: lod, X: int32(x), Y: int32(y)})
			}
		}
	}

	return m
}

// Tables exposes the page tables, e.g. for tests asserting residency.
func (m *Manager) Tables() *PageTables { return m.tables }

// Cache exposes the page cache, e.g. for tests asserting invariants.
func (m *Manager) Cache() *Cache { return m.cache }

// pagePath is the fixed page source path convention:
// "assets/pages/{lod}_{x}_{y}.png".
func pagePath(r PageRequest) string {
	return fmt.Sprintf("assets/pages/%d_%d_%d.png", r.LOD, r.X, r.Y)
}

// RequestPage acquires a slot for request, evicting if necessary; clears
// the evicted page's table entry; marks the request as processing; and
// dispatches the load.
func (m *Manager) RequestPage(request PageRequest) {
	if !request.InBounds(m.derived) {
		m.log.Warn().Stringer("request", request).Msg("request out of bounds for configured grid, dropping")
		m.processingMu.Lock()
		delete(m.processing, request)
		m.processingMu.Unlock()
		return
	}

	decision := m.cache.Acquire(request)

	if !decision.HasSlot {
		m.log.Warn().Stringer("request", request).Msg("no evictable slot, dropping request")
		m.processingMu.Lock()
		delete(m.processing, request)
		m.processingMu.Unlock()
		return
	}

	if decision.HasEvicted {
		m.tables.Write(decision.Evicted, 0)
	}

	slot := decision.Slot
	m.processingMu.Lock()
	m.processing[request] = slot
	m.processingMu.Unlock()

	path := pagePath(request)
	m.loader.LoadAsync(path, func(img *DecodedImage, err error) {
		m.queueMu.Lock()
		defer m.queueMu.Unlock()
		if err != nil {
			m.log.Error().Err(err).Stringer("request", request).Msg("page load failed")
			m.pendingFailures = append(m.pendingFailures, failureItem{request: request, slot: slot, err: err})
			return
		}
		m.pendingUploads = append(m.pendingUploads, uploadItem{request: request, slot: slot, image: img})
	})
}

// DrainCompletions is step 1 of the per-frame sequence: swap the pending
// upload/failure queues out under the mutex, then process the local
// copies lock-free, exactly mirroring the gviegas-neo3 texture-staging
// Commit() swap-and-drain idiom this loader's queue discipline is
// grounded on.
func (m *Manager) DrainCompletions() {
	m.queueMu.Lock()
	uploads := m.pendingUploads
	failures := m.pendingFailures
	m.pendingUploads = nil
	m.pendingFailures = nil
	m.queueMu.Unlock()

	for _, f := range failures {
		m.cache.Cancel(f.slot)
		m.processingMu.Lock()
		delete(m.processing, f.request)
		m.processingMu.Unlock()
	}

	for _, u := range uploads {
		if m.atlas != nil {
			if err := m.atlas.WriteSlot(u.slot.X, u.slot.Y, u.image.Pixels); err != nil {
				m.log.Error().Err(err).Stringer("request", u.request).Msg("atlas upload failed")
				m.cache.Cancel(u.slot)
				m.processingMu.Lock()
				delete(m.processing, u.request)
				m.processingMu.Unlock()
				continue
			}
		}
		entry := EncodeEntry(u.slot)
		m.tables.Write(u.request, entry)
		m.cache.Commit(u.request, u.slot)
		m.processingMu.Lock()
		delete(m.processing, u.request)
		m.processingMu.Unlock()
	}
}

// IngestFeedback is step 2 of the per-frame sequence: decode the
// feedback buffer, Touch every decoded request (a no-op for pinned or
// non-resident ones), and RequestPage
// every request that is neither resident nor already in flight.
func (m *Manager) IngestFeedback(pixels []uint32) {
	for _, req := range DecodeFeedback(pixels) {
		m.cache.Touch(req)

		m.processingMu.Lock()
		_, inFlight := m.processing[req]
		m.processingMu.Unlock()

		if !m.tables.IsResident(req) && !inFlight {
			m.RequestPage(req)
		}
	}
}

// SyncPageTables is step 3 of the per-frame sequence: if any entry was
// written since the last sync, upload every CPU-side level to the
// mirrored GPU texture, once per frame.
func (m *Manager) SyncPageTables() error {
	return m.tables.Update(m.gpu)
}

// Frame runs the full per-frame sequence in a fixed order: drain
// completions before ingesting feedback, so a request completed this
// frame is visible as resident before deciding whether to re-request it.
func (m *Manager) Frame(feedbackPixels []uint32) error {
	m.DrainCompletions()
	m.IngestFeedback(feedbackPixels)
	return m.SyncPageTables()
}

// Stats is a point-in-time snapshot of residency state, supplementing
// the original's ImGui debug window with a GUI-independent equivalent.
type Stats struct {
	Resident   int
	Processing int
	Free       int
}

// Stats returns a snapshot of current residency counts.
func (m *Manager) Stats() Stats {
	m.processingMu.Lock()
	processing := len(m.processing)
	m.processingMu.Unlock()

	return Stats{
		Resident:   m.cache.ResidentCount(),
		Processing: processing,
		Free:       m.cache.FreeCount(),
	}
}
