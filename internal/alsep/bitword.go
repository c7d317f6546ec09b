package alsep

// Bits returns the width-bit unsigned field that starts bitOffset bits into
// buf, most significant bit first. Bits past the end of buf read as zero.
func Bits(buf []byte, bitOffset, width int) uint64 {
	var v uint64
	for i := 0; i < width; i++ {
		pos := bitOffset + i
		v <<= 1
		idx := pos >> 3
		if idx < 0 || idx >= len(buf) {
			continue
		}
		v |= uint64(buf[idx]>>(7-(pos&7))) & 1
	}
	return v
}

// PutBits stores the low width bits of v at bitOffset, most significant bit
// first. It is the inverse of Bits and is used to build synthetic frames.
func PutBits(buf []byte, bitOffset, width int, v uint64) {
	for i := 0; i < width; i++ {
		pos := bitOffset + i
		idx := pos >> 3
		if idx < 0 || idx >= len(buf) {
			continue
		}
		mask := byte(1) << (7 - (pos & 7))
		if v>>(width-1-i)&1 == 1 {
			buf[idx] |= mask
		} else {
			buf[idx] &^= mask
		}
	}
}

// Word3 holds the three 10-bit logical words packed into one 32-bit group.
type Word3 struct {
	A, B, C int32
}

// Offsets of the three words inside a 32-bit group. Bits 10 and 21 are
// unused separators.
const (
	wordOffsetA = 0
	wordOffsetB = 11
	wordOffsetC = 22
	wordWidth   = 10

	frameDataStart = 12
	groupSize      = 4
)

func decodeGroup(group []byte) Word3 {
	return Word3{
		A: int32(Bits(group, wordOffsetA, wordWidth)),
		B: int32(Bits(group, wordOffsetB, wordWidth)),
		C: int32(Bits(group, wordOffsetC, wordWidth)),
	}
}

func encodeGroup(group []byte, w Word3) {
	PutBits(group, wordOffsetA, wordWidth, uint64(w.A))
	PutBits(group, wordOffsetB, wordWidth, uint64(w.B))
	PutBits(group, wordOffsetC, wordWidth, uint64(w.C))
}

// decodeWords unpacks n groups starting at the frame data offset.
func decodeWords(frame []byte, n int) []Word3 {
	out := make([]Word3, n)
	for i := 0; i < n; i++ {
		base := frameDataStart + groupSize*i
		if base+groupSize > len(frame) {
			break
		}
		out[i] = decodeGroup(frame[base : base+groupSize])
	}
	return out
}

// wordRef addresses one logical word: group index and slot 0..2 for A, B, C.
type wordRef struct {
	group int
	slot  int
}

func refA(g int) wordRef { return wordRef{g, 0} }
func refB(g int) wordRef { return wordRef{g, 1} }
func refC(g int) wordRef { return wordRef{g, 2} }

func (r wordRef) of(words []Word3) int32 {
	if r.group < 0 || r.group >= len(words) {
		return 0
	}
	w := words[r.group]
	switch r.slot {
	case 0:
		return w.A
	case 1:
		return w.B
	default:
		return w.C
	}
}
