package vtexcore

import (
	"reflect"
	"testing"
)

// S5 — feedback decode: a sentinel pixel is dropped and the surviving
// words decode to distinct, deterministically ordered requests.
func TestDecodeFeedbackS5(t *testing.T) {
	pixels := []uint32{0xFFFFFFFF, 0x00000001, 0x00000021}
	got := DecodeFeedback(pixels)
	want := []PageRequest{
		{LOD: 1, X: 0, Y: 0},
		{LOD: 1, X: 1, Y: 0},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("DecodeFeedback(%v) = %v, want %v", pixels, got, want)
	}
}

func TestDecodeFeedbackDedup(t *testing.T) {
	pixels := []uint32{0x00000001, 0x00000001, 0x00000001}
	got := DecodeFeedback(pixels)
	if len(got) != 1 {
		t.Fatalf("DecodeFeedback duplicate words = %v, want exactly one request", got)
	}
}

func TestDecodeFeedbackAllSentinel(t *testing.T) {
	pixels := []uint32{feedbackSentinel, feedbackSentinel}
	got := DecodeFeedback(pixels)
	if len(got) != 0 {
		t.Fatalf("DecodeFeedback all-sentinel input = %v, want empty", got)
	}
}

func TestDecodeFeedbackEmpty(t *testing.T) {
	got := DecodeFeedback(nil)
	if len(got) != 0 {
		t.Fatalf("DecodeFeedback(nil) = %v, want empty", got)
	}
}

func TestDecodeFeedbackOrdering(t *testing.T) {
	// lod=2,x=0,y=0 ; lod=0,x=5,y=0 ; lod=0,x=0,y=0 — expect sorted by (LOD,X,Y).
	pixels := []uint32{
		encodeForTest(2, 0, 0),
		encodeForTest(0, 5, 0),
		encodeForTest(0, 0, 0),
	}
	got := DecodeFeedback(pixels)
	want := []PageRequest{
		{LOD: 0, X: 0, Y: 0},
		{LOD: 0, X: 5, Y: 0},
		{LOD: 2, X: 0, Y: 0},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("DecodeFeedback ordering = %v, want %v", got, want)
	}
}

func encodeForTest(lod uint32, x, y int32) uint32 {
	return (lod & 0x1F) | (uint32(x)&0xFF)<<5 | (uint32(y)&0xFF)<<13
}
