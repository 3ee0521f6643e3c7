package vtexcore

import (
	"fmt"
	"sync"
	"testing"
)

func TestLoaderLoadAsyncDeliversDecodedImage(t *testing.T) {
	l := NewLoader(2)
	l.decode = func(path string) (*DecodedImage, error) {
		return &DecodedImage{Width: 4, Height: 4, Pixels: make([]byte, 4*4*4)}, nil
	}

	var wg sync.WaitGroup
	wg.Add(1)
	var gotImg *DecodedImage
	var gotErr error
	l.LoadAsync("assets/pages/0_0_0.png", func(img *DecodedImage, err error) {
		gotImg, gotErr = img, err
		wg.Done()
	})
	wg.Wait()

	if gotErr != nil {
		t.Fatalf("unexpected error: %v", gotErr)
	}
	if gotImg == nil || gotImg.Width != 4 || gotImg.Height != 4 {
		t.Errorf("got %+v, want a 4x4 image", gotImg)
	}
}

func TestLoaderLoadAsyncDeliversError(t *testing.T) {
	l := NewLoader(1)
	wantErr := fmt.Errorf("boom")
	l.decode = func(path string) (*DecodedImage, error) {
		return nil, wantErr
	}

	var wg sync.WaitGroup
	wg.Add(1)
	var gotImg *DecodedImage
	var gotErr error
	l.LoadAsync("assets/pages/0_0_0.png", func(img *DecodedImage, err error) {
		gotImg, gotErr = img, err
		wg.Done()
	})
	wg.Wait()

	if gotImg != nil {
		t.Errorf("expected nil image on error, got %+v", gotImg)
	}
	if gotErr != wantErr {
		t.Errorf("gotErr = %v, want %v", gotErr, wantErr)
	}
}

func TestLoaderRespectsConcurrencyLimit(t *testing.T) {
	const limit = 2
	l := NewLoader(limit)

	var mu sync.Mutex
	inFlight, maxInFlight := 0, 0
	release := make(chan struct{})

	l.decode = func(path string) (*DecodedImage, error) {
		mu.Lock()
		inFlight++
		if inFlight > maxInFlight {
			maxInFlight = inFlight
		}
		mu.Unlock()

		<-release

		mu.Lock()
		inFlight--
		mu.Unlock()
		return &DecodedImage{}, nil
	}

	var wg sync.WaitGroup
	const total = 6
	wg.Add(total)
	for i := 0; i < total; i++ {
		l.LoadAsync("assets/pages/0_0_0.png", func(*DecodedImage, error) { wg.Done() })
	}

	close(release)
	wg.Wait()
	l.Wait()

	if maxInFlight > limit {
		t.Errorf("observed %d concurrent decodes, want <= %d", maxInFlight, limit)
	}
}

func TestFlipVertical(t *testing.T) {
	// 2x2 RGBA image: row0 = red,green ; row1 = blue,yellow.
	pix := []byte{
		255, 0, 0, 255, 0, 255, 0, 255,
		0, 0, 255, 255, 255, 255, 0, 255,
	}
	flipVertical(pix, 2, 2)
	want := []byte{
		0, 0, 255, 255, 255, 255, 0, 255,
		255, 0, 0, 255, 0, 255, 0, 255,
	}
	for i := range want {
		if pix[i] != want[i] {
			t.Fatalf("flipVertical result = %v, want %v", pix, want)
		}
	}
}
