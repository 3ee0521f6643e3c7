// Package atlas holds the CPU-side mirror of the physical atlas texture:
// a single mutable RGBA8 byte buffer organized as a grid of padded page
// slots, plus the dirty-rectangle bookkeeping needed to upload only what
// changed each frame.
//
// This generalizes the vala/canvas package (Canvas interface,
// DenseCanvas/SparseCanvas, PixelToPage/PageToPixel helpers) from a
// Vulkan-image-backed canvas into a backend-agnostic byte buffer: the
// Atlas here owns no GPU resource, since the residency core never
// renders or owns GPU state itself. A real GPU mirror is wired on top of
// it by package gpu.
package atlas

import "fmt"

const bytesPerPixel = 4 // RGBA8

// Atlas is an atlasSize x atlasSize RGBA8 buffer, organized as a grid of
// slotSize x slotSize slots. Padding bytes are included in every slot
// write, which is what makes hardware bilinear filtering safe at page
// boundaries.
type Atlas struct {
	atlasSlots int
	slotSize   int
	size       int // atlasSlots * slotSize

	pixels []byte

	dirty    bool
	dirtyMinX, dirtyMinY int
	dirtyMaxX, dirtyMaxY int // exclusive
}

// New creates a zero-filled atlas of atlasSlots x atlasSlots slots, each
// slotSize x slotSize pixels.
func New(atlasSlots, slotSize int) *Atlas {
	size := atlasSlots * slotSize
	return &Atlas{
		atlasSlots: atlasSlots,
		slotSize:   slotSize,
		size:       size,
		pixels:     make([]byte, size*size*bytesPerPixel),
	}
}

// Size returns the atlas edge length in pixels.
func (a *Atlas) Size() int { return a.size }

// WriteSlot blits a slotSize x slotSize RGBA8 image into the slot at
// (slotX, slotY), at pixel offset (slotX*slotSize, slotY*slotSize),
// implementing vtexcore.AtlasWriter.
func (a *Atlas) WriteSlot(slotX, slotY int, pixels []byte) error {
	want := a.slotSize * a.slotSize * bytesPerPixel
	if len(pixels) != want {
		return fmt.Errorf("atlas: slot image is %d bytes, want %d (slotSize=%d)", len(pixels), want, a.slotSize)
	}
	if slotX < 0 || slotX >= a.atlasSlots || slotY < 0 || slotY >= a.atlasSlots {
		return fmt.Errorf("atlas: slot (%d,%d) out of range for %dx%d atlas", slotX, slotY, a.atlasSlots, a.atlasSlots)
	}

	originX := slotX * a.slotSize
	originY := slotY * a.slotSize
	stride := a.size * bytesPerPixel
	rowBytes := a.slotSize * bytesPerPixel

	for row := 0; row < a.slotSize; row++ {
		dstOff := (originY+row)*stride + originX*bytesPerPixel
		srcOff := row * rowBytes
		copy(a.pixels[dstOff:dstOff+rowBytes], pixels[srcOff:srcOff+rowBytes])
	}

	a.markDirty(originX, originY, originX+a.slotSize, originY+a.slotSize)
	return nil
}

func (a *Atlas) markDirty(minX, minY, maxX, maxY int) {
	if !a.dirty {
		a.dirty = true
		a.dirtyMinX, a.dirtyMinY, a.dirtyMaxX, a.dirtyMaxY = minX, minY, maxX, maxY
		return
	}
	if minX < a.dirtyMinX {
		a.dirtyMinX = minX
	}
	if minY < a.dirtyMinY {
		a.dirtyMinY = minY
	}
	if maxX > a.dirtyMaxX {
		a.dirtyMaxX = maxX
	}
	if maxY > a.dirtyMaxY {
		a.dirtyMaxY = maxY
	}
}

// GPUUpload is implemented by the owner of the physical atlas texture.
type GPUUpload interface {
	Upload(x, y, width, height int, pixels []byte) error
}

// Sync uploads only the dirty rectangle accumulated since the last Sync
// call, then clears it. If sink is nil, Sync only clears the dirty
// state.
func (a *Atlas) Sync(sink GPUUpload) error {
	if !a.dirty {
		return nil
	}
	if sink != nil {
		w := a.dirtyMaxX - a.dirtyMinX
		h := a.dirtyMaxY - a.dirtyMinY
		stride := a.size * bytesPerPixel
		region := make([]byte, w*h*bytesPerPixel)
		rowBytes := w * bytesPerPixel
		for row := 0; row < h; row++ {
			srcOff := (a.dirtyMinY+row)*stride + a.dirtyMinX*bytesPerPixel
			copy(region[row*rowBytes:row*rowBytes+rowBytes], a.pixels[srcOff:srcOff+rowBytes])
		}
		if err := sink.Upload(a.dirtyMinX, a.dirtyMinY, w, h, region); err != nil {
			return err
		}
	}
	a.dirty = false
	return nil
}

// ReadPixel returns the RGBA8 pixel at (x, y), for tests.
func (a *Atlas) ReadPixel(x, y int) [4]byte {
	off := (y*a.size + x) * bytesPerPixel
	return [4]byte{a.pixels[off], a.pixels[off+1], a.pixels[off+2], a.pixels[off+3]}
}
