package alsep

const day = int64(86400000)

// numberedWords gives every logical word a distinct value: group g holds
// 3g+1, 3g+2 and 3g+3 in its A, B and C slots.
func numberedWords(n int) []Word3 {
	out := make([]Word3, n)
	for g := range out {
		out[g] = Word3{A: int32(3*g + 1), B: int32(3*g + 2), C: int32(3*g + 3)}
	}
	return out
}

func pseRecord(station int, variant PSEVariant, phys uint32) Record {
	return Record{
		Format:       FormatPSE,
		TapeID:       1,
		Station:      station,
		TapeSeq:      7,
		RecordNumber: 1,
		Year:         1973,
		Variant:      variant,
		PhysRecords:  phys,
	}
}

func wtnRecord(packages ...Package) Record {
	rec := Record{Format: FormatWTN, TapeID: 3, Year: 1976, NumActive: uint32(len(packages))}
	for i, p := range packages {
		rec.ActiveStations[i] = uint32(p)
	}
	return rec
}

// pseSequence builds n frames with consecutive counters spaced exactly one
// nominal period apart.
func pseSequence(n int, startMsec int64, words int) []RawFrame {
	frames := make([]RawFrame, n)
	for i := range frames {
		frames[i] = RawFrame{
			MsecOfYear: startMsec + int64(i)*FramePeriodMs,
			Sync:       SyncCode,
			SyncComp:   SyncCodeComplement,
			FrameCount: uint32(i % FramesPerPhysRecord),
			Words:      numberedWords(words),
		}
	}
	return frames
}

func blocksOf(rec Record, raws []RawFrame) [][]byte {
	out := make([][]byte, len(raws))
	for i, raw := range raws {
		out[i] = EncodeFrame(rec, raw)
	}
	return out
}
