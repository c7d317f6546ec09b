package alsep

const (
	wtnGroups = 21
	lsgBias   = 511
)

var (
	wtnLP = [4][3]wordRef{
		{refC(1), refB(2), refA(3)},
		{refA(7), refC(7), refB(8)},
		{refB(12), refA(13), refC(13)},
		{refC(17), refB(18), refA(19)},
	}
	wtnTidal        = [2]wordRef{refB(10), refA(11)}
	wtnHousekeeping = refC(9)
	wtnCommand      = refA(14)
	wtnCommand14    = refB(0)

	wtnLSMStatus  = refB(0)
	wtnLSMSamples = [6]wordRef{refB(4), refA(5), refC(5), refA(15), refC(15), refB(16)}

	lsgTide = refA(7)
	lsgFree = refC(7)
	lsgTemp = refB(8)
)

// interleaved walks the A, C, B(+1) pattern work tapes use for 31 evenly
// spaced samples: groups 0, 2, ... 18 give three samples each and A of group
// 20 gives the last one.
func interleaved(words []Word3, fn func(i int, v int32)) {
	n := 0
	for g := 0; g < 20; g += 2 {
		fn(n, refA(g).of(words))
		fn(n+1, refC(g).of(words))
		fn(n+2, refB(g+1).of(words))
		n += 3
	}
	fn(n, refA(20).of(words))
}

func decodeWTNFrame(b []byte, f *Frame) {
	decodeSyncAndCounter(b, f)
	words := decodeWords(b, wtnGroups)

	if f.Package == PackageApollo17 {
		g := &Gravimeter{}
		interleaved(words, func(i int, v int32) { g.Seismic[i] = lsgBias - v })
		g.Tide = lsgBias - lsgTide.of(words)
		g.Free = lsgBias - lsgFree.of(words)
		g.Temp = lsgBias - lsgTemp.of(words)
		f.Gravimeter = g
		return
	}

	s := &Seismic{HasSPZ: true}
	interleaved(words, func(i int, v int32) { s.SPZ[i+1] = v })
	if f.Package == PackageApollo15 {
		s.SPZ[11] = Interpolate(s.SPZ[9], s.SPZ[10], s.SPZ[12], s.SPZ[13])
	}
	if f.Package != PackageApollo14 {
		s.SPZ[22] = Interpolate(s.SPZ[20], s.SPZ[21], s.SPZ[23], s.SPZ[24])
	}
	s.SPZ[27] = Interpolate(s.SPZ[25], s.SPZ[26], s.SPZ[28], s.SPZ[29])

	for i, lp := range wtnLP {
		s.LPX[i] = lp[0].of(words)
		s.LPY[i] = lp[1].of(words)
		s.LPZ[i] = lp[2].of(words)
	}
	first, second := wtnTidal[0].of(words), wtnTidal[1].of(words)
	if f.FrameCount%2 == 0 {
		s.TidalX, s.TidalY = first, second
	} else {
		s.TidalZ, s.InstTemp = first, second
	}
	s.Housekeeping = wtnHousekeeping.of(words)
	if f.Package == PackageApollo14 {
		s.CommandVerify = wtnCommand14.of(words) >> 1
	} else {
		s.CommandVerify = wtnCommand.of(words) >> 1
	}
	f.Seismic = s

	switch f.Package {
	case PackageApollo12, PackageApollo15, PackageApollo16:
		m := &Magnetometer{Status: wtnLSMStatus.of(words)}
		for i, ref := range wtnLSMSamples {
			m.Samples[i] = ref.of(words)
		}
		f.Magnetometer = m
	}
}
