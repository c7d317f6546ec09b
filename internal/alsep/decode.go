package alsep

import (
	"encoding/binary"
	"fmt"
)

// Bit positions of the frame fields shared by all three formats.
const (
	bitSoftwareTime = 0
	bitMsec         = 1
	widthMsec       = 35
	bitTracking     = 36
	widthTracking   = 4

	bitBitErrorRate = 40
	bitDataRate     = 46
	bitAlsepWord5   = 54

	bitPackage    = 40
	bitSearch     = 43
	bitVerify     = 44
	bitConfirm    = 45
	bitLock       = 46
	bitInputLevel = 47
	bitOrigRecNum = 48

	bitSync        = 64
	widthSync      = 11
	widthSyncWTH   = 10
	bitSyncComp    = 76
	bitFrameCount  = 88
	widthFrameCnt  = 7
	bitModeBit     = 95
	bitActiveStart = 17
	bitFirstMsec   = 80
	widthFirstMsec = 36
)

// DecodeRecord decodes a 16-byte record header. Content problems are
// reported through rec.Errors; only a header shorter than 16 bytes fails.
func DecodeRecord(format Format, b []byte) (Record, error) {
	if !format.valid() {
		return Record{}, fmt.Errorf("%w: %d", ErrUnknownFormat, int(format))
	}
	if len(b) < HeaderSize {
		return Record{}, fmt.Errorf("%w: got %d bytes", ErrHeaderSize, len(b))
	}
	rec := Record{Format: format}
	u16 := func(off int) uint32 { return uint32(binary.BigEndian.Uint16(b[off : off+2])) }
	switch format {
	case FormatPSE:
		rec.TapeID = u16(0)
		rec.Station = int(u16(2))
		rec.TapeSeq = u16(4)
		rec.RecordNumber = u16(6)
		rec.Year = int(u16(8))
		rec.Variant = PSEVariant(u16(10))
		rec.PhysRecords = u16(12)
		rec.ReadErr = u16(14)
	case FormatWTN:
		rec.TapeID = u16(0)
		for i := range rec.ActiveStations {
			rec.ActiveStations[i] = uint32(Bits(b, bitActiveStart+3*i, 3))
		}
		rec.NumActive = u16(4)
		rec.OriginalID = u16(6)
		rec.Year = int(u16(8))
		rec.FirstMsec = int64(Bits(b, bitFirstMsec, widthFirstMsec))
		rec.Station = rec.ApolloStation()
	case FormatWTH:
		rec.TapeID = u16(0)
		rec.ActiveStations[0] = uint32(b[3] & 0x07)
		rec.NumActive = u16(4)
		rec.OriginalID = u16(6)
		rec.Year = int(u16(8))
		rec.FirstMsec = int64(Bits(b, bitFirstMsec, widthFirstMsec))
		rec.Station = 17
	}
	rec.Errors = ValidateRecord(rec)
	return rec, nil
}

// FrameSize is the byte length of one frame of rec.
func FrameSize(rec Record) int {
	if rec.Format == FormatPSE {
		if rec.Variant == PSEOld {
			return PSEFrameSizeOld
		}
		return PSEFrameSizeNew
	}
	return WorkFrameSize
}

// PSEFrameCount is the number of frames carried by a PSE record: 90 per
// physical record, bounded by what fits in the block.
func PSEFrameCount(rec Record) int {
	n := FramesPerPhysRecord * int(rec.PhysRecords)
	capacity := (PSERecordSize - HeaderSize) / FrameSize(rec)
	if n > capacity {
		n = capacity
	}
	return n
}

// DecodeFrame decodes one frame block of rec. Blocks shorter than the frame
// size decode as if zero padded.
func DecodeFrame(rec Record, b []byte) Frame {
	size := FrameSize(rec)
	if len(b) < size {
		padded := make([]byte, size)
		copy(padded, b)
		b = padded
	}
	f := decodeFrameTime(b)
	switch rec.Format {
	case FormatPSE:
		decodePSEFrame(rec, b, &f)
	case FormatWTN:
		decodeWorkFrameHeader(b, &f)
		decodeWTNFrame(b, &f)
	case FormatWTH:
		decodeWorkFrameHeader(b, &f)
		decodeWTHFrame(b, &f)
	}
	return f
}

func decodeFrameTime(b []byte) Frame {
	return Frame{
		SoftwareTime:    Bits(b, bitSoftwareTime, 1) == 1,
		MsecOfYear:      int64(Bits(b, bitMsec, widthMsec)),
		TrackingStation: uint32(Bits(b, bitTracking, widthTracking)),
	}
}

func decodeSyncAndCounter(b []byte, f *Frame) {
	f.Sync = uint32(Bits(b, bitSync, widthSync))
	f.SyncComp = uint32(Bits(b, bitSyncComp, widthSync))
	f.FrameCount = uint32(Bits(b, bitFrameCount, widthFrameCnt))
	f.ModeBit = uint32(Bits(b, bitModeBit, 1))
}

func decodeWorkFrameHeader(b []byte, f *Frame) {
	f.Package = Package(Bits(b, bitPackage, 3))
	f.BitSync = BitSync{
		Search:     Bits(b, bitSearch, 1) == 1,
		Verify:     Bits(b, bitVerify, 1) == 1,
		Confirm:    Bits(b, bitConfirm, 1) == 1,
		Lock:       Bits(b, bitLock, 1) == 1,
		InputLevel: Bits(b, bitInputLevel, 1) == 1,
	}
	f.OriginalRecNum = uint32(Bits(b, bitOrigRecNum, 16))
}
