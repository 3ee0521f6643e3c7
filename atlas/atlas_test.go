package atlas

import (
	"bytes"
	"testing"
)

func solidSlot(slotSize int, r, g, b, a byte) []byte {
	px := make([]byte, slotSize*slotSize*4)
	for i := 0; i < slotSize*slotSize; i++ {
		px[i*4+0], px[i*4+1], px[i*4+2], px[i*4+3] = r, g, b, a
	}
	return px
}

func TestWriteSlotBlitsIntoCorrectOffset(t *testing.T) {
	a := New(2, 4) // 2x2 slots of 4x4 pixels each; atlas is 8x8

	red := solidSlot(4, 255, 0, 0, 255)
	if err := a.WriteSlot(1, 0, red); err != nil {
		t.Fatalf("WriteSlot: %v", err)
	}

	// Slot (1,0) occupies pixel rows [0,4), columns [4,8).
	got := a.ReadPixel(4, 0)
	want := [4]byte{255, 0, 0, 255}
	if got != want {
		t.Errorf("ReadPixel(4,0) = %v, want %v", got, want)
	}

	// An untouched slot must remain zeroed.
	if got := a.ReadPixel(0, 0); got != ([4]byte{}) {
		t.Errorf("untouched pixel = %v, want zero", got)
	}
}

func TestWriteSlotRejectsWrongSize(t *testing.T) {
	a := New(2, 4)
	if err := a.WriteSlot(0, 0, make([]byte, 10)); err == nil {
		t.Fatal("expected an error for a mis-sized slot image")
	}
}

func TestWriteSlotRejectsOutOfRangeSlot(t *testing.T) {
	a := New(2, 4)
	if err := a.WriteSlot(5, 0, solidSlot(4, 0, 0, 0, 0)); err == nil {
		t.Fatal("expected an error for an out-of-range slot coordinate")
	}
}

type recordingSink struct {
	x, y, w, h int
	pixels     []byte
	calls      int
}

func (s *recordingSink) Upload(x, y, width, height int, pixels []byte) error {
	s.x, s.y, s.w, s.h = x, y, width, height
	s.pixels = append([]byte(nil), pixels...)
	s.calls++
	return nil
}

func TestSyncUploadsOnlyDirtyRegion(t *testing.T) {
	a := New(4, 4) // 16x16 atlas
	sink := &recordingSink{}

	if err := a.Sync(sink); err != nil {
		t.Fatalf("Sync on a clean atlas: %v", err)
	}
	if sink.calls != 0 {
		t.Fatalf("Sync on a clean atlas called Upload %d times, want 0", sink.calls)
	}

	red := solidSlot(4, 255, 0, 0, 255)
	if err := a.WriteSlot(2, 1, red); err != nil {
		t.Fatalf("WriteSlot: %v", err)
	}
	if err := a.Sync(sink); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if sink.calls != 1 {
		t.Fatalf("Sync calls = %d, want 1", sink.calls)
	}
	if sink.x != 8 || sink.y != 4 || sink.w != 4 || sink.h != 4 {
		t.Errorf("dirty rect = (%d,%d,%d,%d), want (8,4,4,4)", sink.x, sink.y, sink.w, sink.h)
	}
	if !bytes.Equal(sink.pixels, red) {
		t.Error("uploaded region does not match the written slot's pixels")
	}

	// A second Sync with nothing new written should be a no-op.
	sink.calls = 0
	if err := a.Sync(sink); err != nil {
		t.Fatalf("second Sync: %v", err)
	}
	if sink.calls != 0 {
		t.Errorf("second Sync on a clean atlas called Upload %d times, want 0", sink.calls)
	}
}

func TestSyncGrowsDirtyRectAcrossMultipleWrites(t *testing.T) {
	a := New(4, 4)
	sink := &recordingSink{}

	if err := a.WriteSlot(0, 0, solidSlot(4, 1, 1, 1, 1)); err != nil {
		t.Fatalf("WriteSlot: %v", err)
	}
	if err := a.WriteSlot(3, 3, solidSlot(4, 2, 2, 2, 2)); err != nil {
		t.Fatalf("WriteSlot: %v", err)
	}
	if err := a.Sync(sink); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	if sink.x != 0 || sink.y != 0 || sink.w != 16 || sink.h != 16 {
		t.Errorf("dirty rect = (%d,%d,%d,%d), want (0,0,16,16)", sink.x, sink.y, sink.w, sink.h)
	}
}

func TestSyncWithNilSinkOnlyClearsDirtyFlag(t *testing.T) {
	a := New(2, 4)
	if err := a.WriteSlot(0, 0, solidSlot(4, 9, 9, 9, 9)); err != nil {
		t.Fatalf("WriteSlot: %v", err)
	}
	if err := a.Sync(nil); err != nil {
		t.Fatalf("Sync(nil): %v", err)
	}

	sink := &recordingSink{}
	if err := a.Sync(sink); err != nil {
		t.Fatalf("Sync after nil-sink sync: %v", err)
	}
	if sink.calls != 0 {
		t.Error("dirty flag should already have been cleared by Sync(nil)")
	}
}

func TestSize(t *testing.T) {
	a := New(3, 5)
	if got, want := a.Size(), 15; got != want {
		t.Errorf("Size() = %d, want %d", got, want)
	}
}
