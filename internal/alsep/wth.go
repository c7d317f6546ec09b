package alsep

const (
	wthSamples        = 20
	wthFirstSampleBit = 74
	wthSampleStart    = 12
)

var wthSubFrame = [4]int32{-1, 2, 3, 1}

// decodeWTHFrame unpacks 20 samples of the four geophones. Sample 0 carries
// 5-bit values squeezed behind the sync code; samples 1 to 19 use 7 bits per
// geophone plus a 2-bit status in 32-bit groups.
func decodeWTHFrame(b []byte, f *Frame) {
	f.Sync = uint32(Bits(b, bitSync, widthSyncWTH))
	g := &Geophone{}

	g.DP1[0] = int32(Bits(b, wthFirstSampleBit, 5)) << 3
	g.DP6[0] = int32(Bits(b, wthFirstSampleBit+5, 5)) << 3
	g.DP11[0] = int32(Bits(b, wthFirstSampleBit+10, 5)) << 3
	g.DP16[0] = int32(Bits(b, wthFirstSampleBit+15, 5)) << 3
	g.Status[0] = -1

	for i := 1; i < wthSamples; i++ {
		base := (wthSampleStart + (i-1)*groupSize) * 8
		g.DP1[i] = int32(Bits(b, base, 7)) << 1
		g.DP6[i] = int32(Bits(b, base+7, 7)) << 1
		g.DP11[i] = int32(Bits(b, base+14, 7)) << 1
		g.DP16[i] = int32(Bits(b, base+21, 7)) << 1
		g.Status[i] = int32(Bits(b, base+28, 2))
	}
	g.SubFrame = wthSubFrame[g.Status[wthSamples-1]&3]
	f.Geophone = g
}
