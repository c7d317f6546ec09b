package alsep

import (
	"fmt"
	"strings"
)

// Format identifies the archival tape layout.
type Format int

const (
	FormatPSE Format = iota + 1
	FormatWTN
	FormatWTH
)

func (f Format) String() string {
	switch f {
	case FormatPSE:
		return "pse"
	case FormatWTN:
		return "wtn"
	case FormatWTH:
		return "wth"
	default:
		return fmt.Sprintf("format(%d)", int(f))
	}
}

// ParseFormat accepts "pse", "wtn" or "wth" in any case.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pse":
		return FormatPSE, nil
	case "wtn":
		return FormatWTN, nil
	case "wth":
		return FormatWTH, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

func (f Format) valid() bool {
	return f >= FormatPSE && f <= FormatWTH
}

// NominalPeriodMs is the expected spacing between consecutive frames.
func (f Format) NominalPeriodMs() int64 {
	if f == FormatWTH {
		return FramePeriodWTHMs
	}
	return FramePeriodMs
}

const (
	HeaderSize           = 16
	PSERecordSize        = 19456
	PSEFrameSizeOld      = 72
	PSEFrameSizeNew      = 36
	WorkFrameSize        = 96
	FramesPerPhysRecord  = 90
	DataNone             = 9999
	SyncCode             = 1810
	SyncCodeComplement   = 0x7ff ^ SyncCode
	SyncCodeWTH          = 59
	FramePeriodMs        = 604
	FramePeriodWTHMs     = 170
	SmallTimeThresholdMs = 10
	LargeTimeThresholdMs = 100

	workTapeIDNormal = 3
	workTapeIDHigh   = 4
)

// Frame durations in seconds: 64 ten-bit words at 1060 bit/s for PSE and
// WTN frames, 20 thirty-bit words at 3533 bit/s for WTH sub-frames.
const (
	FrameSeconds    = 64 * 10 / 1060.0
	SubFrameSeconds = 20 * 30 / 3533.0
)

// FrameSecondsOf returns the nominal duration of one frame of format f.
func FrameSecondsOf(f Format) float64 {
	if f == FormatWTH {
		return SubFrameSeconds
	}
	return FrameSeconds
}

// PSEVariant is the PSE record format code: OLD records carry 72-byte frames
// with short-period data, NEW records 36-byte frames without it.
type PSEVariant uint32

const (
	PSEOld PSEVariant = 0
	PSENew PSEVariant = 1
)

func (v PSEVariant) String() string {
	switch v {
	case PSEOld:
		return "old"
	case PSENew:
		return "new"
	}
	return fmt.Sprintf("variant(%d)", uint32(v))
}

// Package is the 3-bit ALSEP package id carried by work tape frames.
type Package uint32

const (
	PackageApollo12 Package = 1
	PackageApollo15 Package = 2
	PackageApollo16 Package = 3
	PackageApollo14 Package = 4
	PackageApollo17 Package = 5
)

var packageStations = map[Package]int{
	PackageApollo12: 12,
	PackageApollo15: 15,
	PackageApollo16: 16,
	PackageApollo14: 14,
	PackageApollo17: 17,
}

// Station maps the package id to its Apollo station number, or -1.
func (p Package) Station() int {
	if s, ok := packageStations[p]; ok {
		return s
	}
	return -1
}

func (p Package) Valid() bool {
	_, ok := packageStations[p]
	return ok
}

// Record is the decoded 16-byte header of a PSE physical record or a work
// tape file.
type Record struct {
	Format Format

	// TapeID is the PSE tape type (1 or 2) or the work tape id (3 for WTN,
	// 4 for WTH).
	TapeID  uint32
	Station int
	Year    int

	TapeSeq      uint32
	RecordNumber uint32
	Variant      PSEVariant
	PhysRecords  uint32
	ReadErr      uint32

	ActiveStations [5]uint32
	NumActive      uint32
	OriginalID     uint32
	FirstMsec      int64

	Errors ErrorMask
}

// ApolloStation returns the station the record's frames belong to. Work
// tapes with several active packages report -1.
func (r Record) ApolloStation() int {
	switch r.Format {
	case FormatPSE:
		return r.Station
	case FormatWTH:
		return 17
	}
	if r.NumActive == 1 {
		return Package(r.ActiveStations[0]).Station()
	}
	return -1
}

// BitSync holds the bit synchronizer status bits of a work tape frame.
type BitSync struct {
	Search     bool
	Verify     bool
	Confirm    bool
	Lock       bool
	InputLevel bool
}

// FrameLink is what a frame remembers about its predecessor in sequence.
type FrameLink struct {
	FrameCount uint32
	MsecOfYear int64
}

// Seismic carries PSE style channel data.
type Seismic struct {
	HasSPZ bool
	SPZ    [32]int32

	LPX [4]int32
	LPY [4]int32
	LPZ [4]int32

	TidalX   int32
	TidalY   int32
	TidalZ   int32
	InstTemp int32

	Housekeeping  int32
	CommandVerify int32
}

// Gravimeter carries the Apollo 17 lunar surface gravimeter channels, already
// inverted to 511 - raw.
type Gravimeter struct {
	Seismic [31]int32
	Tide    int32
	Free    int32
	Temp    int32
}

// Magnetometer carries the LSM words of packages 1 to 3.
type Magnetometer struct {
	Status  int32
	Samples [6]int32
}

// Geophone carries 20 samples of the four LSPE geophones of a WTH frame.
type Geophone struct {
	DP1      [20]int32
	DP6      [20]int32
	DP11     [20]int32
	DP16     [20]int32
	Status   [20]int32
	SubFrame int32
}

// Frame is one decoded telemetry frame. Only the channel group matching the
// record format and package is populated.
type Frame struct {
	Index  int
	Offset int64

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

	Seismic      *Seismic
	Gravimeter   *Gravimeter
	Magnetometer *Magnetometer
	Geophone     *Geophone

	Prev     *FrameLink
	TimeDiff int64
	Flags    ProcessFlag
	Errors   ErrorMask
}

// Station resolves the Apollo station of the frame using the package id on
// work tapes and the record header on PSE tapes.
func (f Frame) Station(rec Record) int {
	switch rec.Format {
	case FormatPSE:
		return rec.Station
	default:
		return f.Package.Station()
	}
}

// Batch is the set of frames decoded from one logical record.
type Batch struct {
	Index       int
	Offset      int64
	FrameOffset int64
	FrameSize   int
	Record      Record
	Frames      []Frame
}

// ErrorFrames counts frames with a non-zero error mask.
func (b Batch) ErrorFrames() int {
	n := 0
	for i := range b.Frames {
		if b.Frames[i].Errors != 0 {
			n++
		}
	}
	return n
}
