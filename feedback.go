package vtexcore

import "sort"

// feedbackSentinel marks a feedback pixel that contributed no request.
const feedbackSentinel = 0xFFFFFFFF

// DecodeFeedback parses one frame's worth of packed feedback words into a
// deduplicated, deterministically ordered slice of PageRequests.
//
// Bit layout of a feedback word w (normative, matches the rasterizer
// shader contract): bits 0..4 = lod (5 bits), bits 5..12 = x (8 bits),
// bits 13..20 = y (8 bits). A word equal to 0xFFFFFFFF is the
// no-contribution sentinel and is skipped.
//
// No range validation is performed here: out-of-range (lod,x,y) triples
// are forwarded as-is. Manager.RequestPage bounds-checks them against the
// configured grid and drops anything out of range.
func DecodeFeedback(pixels []uint32) []PageRequest {
	seen := make(map[PageRequest]struct{}, len(pixels))
	for _, w := range pixels {
		if w == feedbackSentinel {
			continue
		}
		req := PageRequest{
			LOD: w & 0x1F,
			X:   int32((w >> 5) & 0xFF),
			Y:   int32((w >> 13) & 0xFF),
		}
		seen[req] = struct{}{}
	}

	out := make([]PageRequest, 0, len(seen))
	for req := range seen {
		out = append(out, req)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}
