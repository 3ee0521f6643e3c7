package vtexcore

import (
	"fmt"
	"image"
	"image/draw"
	_ "image/png" // register PNG decoder, matching vala's image import convention
	"os"
	"sync"

	"golang.org/x/sync/errgroup"
)

// DecodedImage is an owned, contiguous RGBA8 byte buffer plus dimensions,
// as delivered by the Loader to a completion callback.
type DecodedImage struct {
	Width  int
	Height int
	Pixels []byte // RGBA8, row-major, bottom-origin after the vertical flip below
}

// decodeFunc loads and decodes one page image. The production decoder
// reads a PNG from disk; tests substitute a synthetic decoder so the
// loader's concurrency and callback plumbing can be exercised without
// real files on disk.
type decodeFunc func(path string) (*DecodedImage, error)

// Loader is a thread-pool backed image decoder. A pool of worker
// goroutines, bounded by concurrency rather than explicit channel
// management (golang.org/x/sync/errgroup.Group.SetLimit), serves decode
// requests; completions are delivered to the caller-supplied callback on
// a worker goroutine, never on the caller's goroutine. Cancellation is
// not supported: once submitted, a load always eventually completes or
// fails.
type Loader struct {
	group   *errgroup.Group
	pending sync.WaitGroup // submissions not yet handed to group.Go
	decode  decodeFunc
}

// NewLoader creates a Loader whose worker pool allows at most
// concurrency simultaneous decodes. concurrency <= 0 means unbounded.
func NewLoader(concurrency int) *Loader {
	g := &errgroup.Group{}
	if concurrency > 0 {
		g.SetLimit(concurrency)
	}
	return &Loader{group: g, decode: decodePNGFile}
}

// LoadAsync dispatches path to the worker pool and returns without
// waiting for a worker to become free. callback is invoked exactly once,
// on a worker goroutine, with either a decoded image or an error — never
// both, never neither.
func (l *Loader) LoadAsync(path string, callback func(*DecodedImage, error)) {
	l.pending.Add(1)
	go func() {
		defer l.pending.Done()
		l.group.Go(func() error {
			img, err := l.decode(path)
			callback(img, err)
			return nil // errors are reported via the callback, not propagated to Wait
		})
	}()
}

// Wait blocks until all dispatched loads have completed. Intended for
// orderly shutdown (e.g. in tests); the render thread never calls it
// during normal operation, since the loader has no notion of "done".
func (l *Loader) Wait() {
	l.pending.Wait()
	_ = l.group.Wait()
}

// decodePNGFile is the production decodeFunc: it reads and decodes a PNG
// from disk, normalizes it to RGBA8 via image/draw, and flips it
// vertically, matching the project's fixed "flip on load" convention:
// orientation is corrected once here, not in the sampling UV.
func decodePNGFile(path string) (*DecodedImage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("vtexcore: failed to load image %s: %w", path, err)
	}
	defer f.Close()

	src, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("vtexcore: failed to decode image %s: %w", path, err)
	}

	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	rgba := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(rgba, rgba.Bounds(), src, bounds.Min, draw.Src)

	flipVertical(rgba.Pix, w, h)

	return &DecodedImage{Width: w, Height: h, Pixels: rgba.Pix}, nil
}

// flipVertical reverses the row order of a tightly-packed RGBA8 buffer
// in place.
func flipVertical(pix []byte, w, h int) {
	stride := w * 4
	row := make([]byte, stride)
	for y := 0; y < h/2; y++ {
		top := pix[y*stride : y*stride+stride]
		bot := pix[(h-1-y)*stride : (h-1-y)*stride+stride]
		copy(row, top)
		copy(top, bot)
		copy(bot, row)
	}
}
