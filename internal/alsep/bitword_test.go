package alsep

import "testing"

func referenceGroup(g []byte) Word3 {
	return Word3{
		A: int32(g[0])<<2 | int32(g[1]>>6),
		B: int32(g[1]&0x1f)<<5 | int32(g[2]>>3)&0x1f,
		C: int32(g[2]&0x03)<<8 | int32(g[3]),
	}
}

func TestDecodeGroupMatchesByteLayout(t *testing.T) {
	groups := [][]byte{
		{0x00, 0x00, 0x00, 0x00},
		{0xff, 0xff, 0xff, 0xff},
		{0xa5, 0x5a, 0xc3, 0x3c},
		{0x12, 0x34, 0x56, 0x78},
		{0x80, 0x20, 0x04, 0x01},
		{0x7f, 0xdf, 0xfb, 0xfe},
	}
	for _, g := range groups {
		got := decodeGroup(g)
		want := referenceGroup(g)
		if got != want {
			t.Fatalf("decodeGroup(% x) = %+v, want %+v", g, got, want)
		}
	}
}

func TestUnusedBitsAreIgnored(t *testing.T) {
	// Only bits 10 and 21 set.
	g := []byte{0x00, 0x20, 0x04, 0x00}
	if w := decodeGroup(g); w != (Word3{}) {
		t.Fatalf("decodeGroup(% x) = %+v, want zero words", g, w)
	}
}

func TestPutBitsRoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		offset int
		width  int
		value  uint64
	}{
		{name: "byte aligned", offset: 8, width: 16, value: 0xbeef},
		{name: "unaligned 35 bit", offset: 1, width: 35, value: 31_535_999_999},
		{name: "single bit", offset: 95, width: 1, value: 1},
		{name: "straddles bytes", offset: 54, width: 10, value: 0x2a5},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			buf := make([]byte, 12)
			for i := range buf {
				buf[i] = 0x5a
			}
			PutBits(buf, tc.offset, tc.width, tc.value)
			if got := Bits(buf, tc.offset, tc.width); got != tc.value {
				t.Fatalf("Bits = %d, want %d", got, tc.value)
			}
		})
	}
}

func TestBitsPastEndReadZero(t *testing.T) {
	buf := []byte{0xff}
	if got := Bits(buf, 4, 8); got != 0xf0 {
		t.Fatalf("Bits = 0x%x, want 0xf0", got)
	}
}

func TestEncodeGroupInverse(t *testing.T) {
	w := Word3{A: 1023, B: 512, C: 7}
	g := make([]byte, 4)
	encodeGroup(g, w)
	if got := decodeGroup(g); got != w {
		t.Fatalf("decodeGroup(encodeGroup(%+v)) = %+v", w, got)
	}
	if got := referenceGroup(g); got != w {
		t.Fatalf("byte layout of %+v decodes as %+v", w, got)
	}
}
