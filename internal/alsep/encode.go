package alsep

import (
	"encoding/binary"
	"fmt"
)

// RawFrame holds the transmitted field values of one frame before packing.
// It is the input of EncodeFrame and mirrors what DecodeFrame reads.
type RawFrame struct {
	SoftwareTime    bool
	MsecOfYear      int64
	TrackingStation uint32

	BitErrorRate uint32
	DataRate     uint32
	AlsepWord5   uint32

	Package        Package
	BitSync        BitSync
	OriginalRecNum uint32

	Sync       uint32
	SyncComp   uint32
	FrameCount uint32
	ModeBit    uint32

	// Words are the data groups following the 12-byte frame header.
	Words []Word3

	// Geophone samples of a WTH frame, in decoded units. Sample 0 keeps its
	// top 5 bits and later samples their top 7 bits.
	Geophone *Geophone
}

// EncodeRecord packs rec into a 16-byte header.
func EncodeRecord(rec Record) ([]byte, error) {
	b := make([]byte, HeaderSize)
	put := func(off int, v uint32) { binary.BigEndian.PutUint16(b[off:off+2], uint16(v)) }
	switch rec.Format {
	case FormatPSE:
		put(0, rec.TapeID)
		put(2, uint32(rec.Station))
		put(4, rec.TapeSeq)
		put(6, rec.RecordNumber)
		put(8, uint32(rec.Year))
		put(10, uint32(rec.Variant))
		put(12, rec.PhysRecords)
		put(14, rec.ReadErr)
	case FormatWTN, FormatWTH:
		put(0, rec.TapeID)
		if rec.Format == FormatWTN {
			for i, s := range rec.ActiveStations {
				PutBits(b, bitActiveStart+3*i, 3, uint64(s))
			}
		} else {
			b[3] = byte(rec.ActiveStations[0] & 0x07)
		}
		put(4, rec.NumActive)
		put(6, rec.OriginalID)
		put(8, uint32(rec.Year))
		PutBits(b, bitFirstMsec, widthFirstMsec, uint64(rec.FirstMsec))
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownFormat, int(rec.Format))
	}
	return b, nil
}

// EncodeFrame packs raw into a frame block sized for rec.
func EncodeFrame(rec Record, raw RawFrame) []byte {
	b := make([]byte, FrameSize(rec))
	if raw.SoftwareTime {
		PutBits(b, bitSoftwareTime, 1, 1)
	}
	PutBits(b, bitMsec, widthMsec, uint64(raw.MsecOfYear))
	PutBits(b, bitTracking, widthTracking, uint64(raw.TrackingStation))

	if rec.Format == FormatPSE {
		PutBits(b, bitBitErrorRate, 6, uint64(raw.BitErrorRate))
		PutBits(b, bitDataRate, 1, uint64(raw.DataRate))
		PutBits(b, bitAlsepWord5, 10, uint64(raw.AlsepWord5))
	} else {
		PutBits(b, bitPackage, 3, uint64(raw.Package))
		putFlag(b, bitSearch, raw.BitSync.Search)
		putFlag(b, bitVerify, raw.BitSync.Verify)
		putFlag(b, bitConfirm, raw.BitSync.Confirm)
		putFlag(b, bitLock, raw.BitSync.Lock)
		putFlag(b, bitInputLevel, raw.BitSync.InputLevel)
		PutBits(b, bitOrigRecNum, 16, uint64(raw.OriginalRecNum))
	}

	if rec.Format == FormatWTH {
		PutBits(b, bitSync, widthSyncWTH, uint64(raw.Sync))
		if g := raw.Geophone; g != nil {
			encodeGeophone(b, g)
		}
		return b
	}

	PutBits(b, bitSync, widthSync, uint64(raw.Sync))
	PutBits(b, bitSyncComp, widthSync, uint64(raw.SyncComp))
	PutBits(b, bitFrameCount, widthFrameCnt, uint64(raw.FrameCount))
	PutBits(b, bitModeBit, 1, uint64(raw.ModeBit))
	for i, w := range raw.Words {
		base := frameDataStart + groupSize*i
		if base+groupSize > len(b) {
			break
		}
		encodeGroup(b[base:base+groupSize], w)
	}
	return b
}

func putFlag(b []byte, bit int, v bool) {
	if v {
		PutBits(b, bit, 1, 1)
	}
}

func encodeGeophone(b []byte, g *Geophone) {
	PutBits(b, wthFirstSampleBit, 5, uint64(g.DP1[0]>>3))
	PutBits(b, wthFirstSampleBit+5, 5, uint64(g.DP6[0]>>3))
	PutBits(b, wthFirstSampleBit+10, 5, uint64(g.DP11[0]>>3))
	PutBits(b, wthFirstSampleBit+15, 5, uint64(g.DP16[0]>>3))
	for i := 1; i < wthSamples; i++ {
		base := (wthSampleStart + (i-1)*groupSize) * 8
		PutBits(b, base, 7, uint64(g.DP1[i]>>1))
		PutBits(b, base+7, 7, uint64(g.DP6[i]>>1))
		PutBits(b, base+14, 7, uint64(g.DP11[i]>>1))
		PutBits(b, base+21, 7, uint64(g.DP16[i]>>1))
		PutBits(b, base+28, 2, uint64(g.Status[i]))
	}
}

// EncodePSERecord assembles a full 19456-byte PSE record from a header and
// frames. Unused space is zero filled.
func EncodePSERecord(rec Record, frames []RawFrame) ([]byte, error) {
	header, err := EncodeRecord(rec)
	if err != nil {
		return nil, err
	}
	out := make([]byte, PSERecordSize)
	copy(out, header)
	size := FrameSize(rec)
	for i, raw := range frames {
		off := HeaderSize + i*size
		if off+size > len(out) {
			return nil, fmt.Errorf("pse record holds at most %d frames, got %d", (PSERecordSize-HeaderSize)/size, len(frames))
		}
		copy(out[off:], EncodeFrame(rec, raw))
	}
	return out, nil
}

// EncodeWorkTape assembles a WTN or WTH file: the header twice followed by
// the frames.
func EncodeWorkTape(rec Record, frames []RawFrame) ([]byte, error) {
	header, err := EncodeRecord(rec)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, 2*HeaderSize+len(frames)*WorkFrameSize)
	out = append(out, header...)
	out = append(out, header...)
	for _, raw := range frames {
		out = append(out, EncodeFrame(rec, raw)...)
	}
	return out, nil
}
