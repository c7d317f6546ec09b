package alsep

import (
	"errors"
	"strings"
)

var (
	ErrShortBlock          = errors.New("short block: input ended inside a record or frame")
	ErrHeaderSize          = errors.New("record header shorter than 16 bytes")
	ErrHeaderNotDuplicated = errors.New("work tape header is not duplicated")
	ErrUnknownFormat       = errors.New("unknown tape format")
)

// ErrorMask is the 16-bit quality mask attached to records and frames. Zero
// means the unit passed every check.
type ErrorMask uint16

const (
	MaskInvalidSync          ErrorMask = 0x4000
	MaskOriginalData         ErrorMask = 0x2000
	MaskInvalidDatetime      ErrorMask = 0x1000
	MaskInvalidFrameCounter  ErrorMask = 0x0800
	MaskInvalidValue         ErrorMask = 0x0400
	MaskInvalidFormat        ErrorMask = 0x0200
	MaskFrameSequence        ErrorMask = 0x0010
	MaskInvalidStation       ErrorMask = 0x0008
	MaskInvalidGroundStation ErrorMask = 0x0004
	MaskLargeTimeError       ErrorMask = 0x0002
	MaskSmallTimeError       ErrorMask = 0x0001
)

var maskNames = []struct {
	mask ErrorMask
	name string
}{
	{MaskInvalidSync, "sync"},
	{MaskOriginalData, "original-data"},
	{MaskInvalidDatetime, "datetime"},
	{MaskInvalidFrameCounter, "frame-counter"},
	{MaskInvalidValue, "value"},
	{MaskInvalidFormat, "format"},
	{MaskFrameSequence, "frame-sequence"},
	{MaskInvalidStation, "apollo-station"},
	{MaskInvalidGroundStation, "ground-station"},
	{MaskLargeTimeError, "time-large"},
	{MaskSmallTimeError, "time-small"},
}

// AllMasks lists every defined error bit, most significant first.
func AllMasks() []ErrorMask {
	out := make([]ErrorMask, 0, len(maskNames))
	for _, m := range maskNames {
		out = append(out, m.mask)
	}
	return out
}

func (m ErrorMask) Has(bit ErrorMask) bool {
	return m&bit != 0
}

// Names returns the short names of the bits set in m.
func (m ErrorMask) Names() []string {
	var out []string
	for _, n := range maskNames {
		if m&n.mask != 0 {
			out = append(out, n.name)
		}
	}
	return out
}

func (m ErrorMask) String() string {
	if m == 0 {
		return "ok"
	}
	return strings.Join(m.Names(), "|")
}

// ParseMask resolves a bit name as produced by Names.
func ParseMask(name string) (ErrorMask, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, n := range maskNames {
		if n.name == name {
			return n.mask, true
		}
	}
	return 0, false
}

// ProcessFlag marks how a frame was stitched into its sequence.
type ProcessFlag uint16

const (
	FlagFirstOfFile       ProcessFlag = 0x0001
	FlagTopOfRecord       ProcessFlag = 0x0002
	FlagFirstSampleCopied ProcessFlag = 0x0004
)

func (f ProcessFlag) Has(bit ProcessFlag) bool {
	return f&bit != 0
}
