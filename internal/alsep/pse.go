package alsep

// pseLayout is the channel map of one PSE record variant.
type pseLayout struct {
	groups        int
	hasSPZ        bool
	lp            [4][3]wordRef
	tidal         [2]wordRef
	tidalFill     int32
	housekeeping  wordRef
	commandVerify wordRef
}

var pseLayouts = map[PSEVariant]pseLayout{
	PSEOld: {
		groups: 15,
		hasSPZ: true,
		lp: [4][3]wordRef{
			{refA(1), refC(1), refB(2)},
			{refC(4), refB(5), refA(6)},
			{refB(9), refA(10), refC(10)},
			{refC(12), refB(13), refA(14)},
		},
		tidal:         [2]wordRef{refC(7), refB(8)},
		tidalFill:     DataNone,
		housekeeping:  refA(7),
		commandVerify: refA(11),
	},
	PSENew: {
		groups: 6,
		lp: [4][3]wordRef{
			{refA(0), refB(0), refC(0)},
			{refA(1), refB(1), refC(1)},
			{refA(3), refB(3), refC(3)},
			{refB(4), refC(4), refA(5)},
		},
		tidal:         [2]wordRef{refB(2), refC(2)},
		housekeeping:  refA(2),
		commandVerify: refA(4),
	},
}

// pseSPZ maps short-period sample indices to words for OLD records. Samples
// 11, 22 and 27 are handled separately and sample 0 is left to stitching.
var pseSPZ = map[int]wordRef{
	1: refA(0), 2: refB(0), 3: refC(0), 4: refB(1), 5: refA(2),
	6: refC(2), 7: refA(3), 8: refB(3), 9: refC(3), 10: refA(4),
	12: refA(5), 13: refC(5), 14: refB(6), 15: refC(6), 16: refB(7),
	17: refA(8), 18: refC(8), 19: refA(9), 20: refC(9), 21: refB(10),
	23: refB(11), 24: refC(11), 25: refA(12), 26: refB(12),
	28: refA(13), 29: refC(13), 30: refB(14), 31: refC(14),
}

func decodePSEFrame(rec Record, b []byte, f *Frame) {
	f.BitErrorRate = uint32(Bits(b, bitBitErrorRate, 6))
	f.DataRate = uint32(Bits(b, bitDataRate, 1))
	f.AlsepWord5 = uint32(Bits(b, bitAlsepWord5, 10))
	decodeSyncAndCounter(b, f)

	layout, ok := pseLayouts[rec.Variant]
	if !ok {
		f.Seismic = &Seismic{}
		return
	}
	words := decodeWords(b, layout.groups)
	s := &Seismic{HasSPZ: layout.hasSPZ}

	if layout.hasSPZ {
		for idx, ref := range pseSPZ {
			s.SPZ[idx] = ref.of(words)
		}
		if rec.Station == 15 {
			s.SPZ[11] = Interpolate(s.SPZ[9], s.SPZ[10], s.SPZ[12], s.SPZ[13])
		} else {
			s.SPZ[11] = refB(4).of(words)
		}
		if rec.Station != 14 {
			s.SPZ[22] = Interpolate(s.SPZ[20], s.SPZ[21], s.SPZ[23], s.SPZ[24])
		} else {
			s.SPZ[22] = refA(11).of(words)
		}
		s.SPZ[27] = Interpolate(s.SPZ[25], s.SPZ[26], s.SPZ[28], s.SPZ[29])
	}

	for i, lp := range layout.lp {
		s.LPX[i] = lp[0].of(words)
		s.LPY[i] = lp[1].of(words)
		s.LPZ[i] = lp[2].of(words)
	}

	s.TidalX, s.TidalY, s.TidalZ, s.InstTemp = layout.tidalFill, layout.tidalFill, layout.tidalFill, layout.tidalFill
	first, second := layout.tidal[0].of(words), layout.tidal[1].of(words)
	if f.FrameCount%2 == 0 {
		s.TidalX, s.TidalY = first, second
	} else {
		s.TidalZ, s.InstTemp = first, second
	}

	s.Housekeeping = layout.housekeeping.of(words)
	if rec.Variant == PSEOld && rec.Station == 14 {
		s.CommandVerify = int32(f.AlsepWord5 >> 1)
	} else {
		s.CommandVerify = layout.commandVerify.of(words) >> 1
	}
	f.Seismic = s
}
