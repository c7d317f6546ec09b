package alsep

// StitchOptions tunes how frames are linked into sequences.
type StitchOptions struct {
	// CarryAcrossRecords links the first frame of a PSE record to the last
	// frame of the previous record instead of starting a new sequence.
	CarryAcrossRecords bool
	// CopyOnError copies sample 1 into sample 0 instead of interpolating
	// across a frame that failed validation.
	CopyOnError bool
}

// tail is what a sequence slot keeps of its most recent frame.
type tail struct {
	link   FrameLink
	pkg    Package
	hasSPZ bool
	spz30  int32
	spz31  int32
}

func tailOf(f *Frame) *tail {
	t := &tail{
		link: FrameLink{FrameCount: f.FrameCount, MsecOfYear: f.MsecOfYear},
		pkg:  f.Package,
	}
	if f.Seismic != nil && f.Seismic.HasSPZ {
		t.hasSPZ = true
		t.spz30 = f.Seismic.SPZ[30]
		t.spz31 = f.Seismic.SPZ[31]
	}
	return t
}

// Stitcher decodes frame blocks and links each frame to its predecessor in
// the same interleave slot. A Stitcher keeps state between records so file
// level flags and optional cross-record links work; use one per input file.
type Stitcher struct {
	opts    StitchOptions
	started bool
	last    *tail
}

func NewStitcher(opts StitchOptions) *Stitcher {
	return &Stitcher{opts: opts}
}

// interleave is the number of sequences multiplexed in a record: one per
// active package on WTN tapes, one otherwise.
func interleave(rec Record) int {
	if rec.Format == FormatWTN && rec.NumActive >= 1 && rec.NumActive <= 5 {
		return int(rec.NumActive)
	}
	return 1
}

// Stitch decodes, links and validates the frame blocks of one record.
func (s *Stitcher) Stitch(rec Record, blocks [][]byte) []Frame {
	frames := make([]Frame, len(blocks))
	stride := interleave(rec)
	slots := make([]*tail, stride)

	for i, block := range blocks {
		f := DecodeFrame(rec, block)
		f.Index = i

		var pred *tail
		if i >= stride {
			pred = slots[i%stride]
		} else if i == 0 && rec.Format == FormatPSE && s.opts.CarryAcrossRecords {
			pred = s.last
		}
		if pred != nil && rec.Format != FormatPSE && pred.pkg != f.Package {
			pred = nil
		}

		if i < stride {
			f.Flags |= FlagTopOfRecord
		}
		if !s.started {
			f.Flags |= FlagFirstOfFile
			s.started = true
		}
		link(&f, pred)
		f.Errors = ValidateFrame(rec, f)
		if s.opts.CopyOnError && f.Errors != 0 && pred != nil {
			copyFirstSample(&f)
		}

		frames[i] = f
		slots[i%stride] = tailOf(&frames[i])
	}
	if len(frames) > 0 {
		s.last = tailOf(&frames[len(frames)-1])
	}
	return frames
}

func link(f *Frame, pred *tail) {
	if pred == nil {
		f.Prev = nil
		f.TimeDiff = f.MsecOfYear
		copyFirstSample(f)
		return
	}
	prev := pred.link
	f.Prev = &prev
	f.TimeDiff = f.MsecOfYear - prev.MsecOfYear
	if f.Seismic != nil && f.Seismic.HasSPZ && pred.hasSPZ {
		f.Seismic.SPZ[0] = Interpolate(pred.spz30, pred.spz31, f.Seismic.SPZ[1], f.Seismic.SPZ[2])
	}
}

func copyFirstSample(f *Frame) {
	if f.Seismic == nil || !f.Seismic.HasSPZ {
		return
	}
	f.Seismic.SPZ[0] = f.Seismic.SPZ[1]
	f.Flags |= FlagFirstSampleCopied
}

// StitchAndValidateFrames is the stateless form of Stitcher.Stitch for a
// single record.
func StitchAndValidateFrames(rec Record, blocks [][]byte) []Frame {
	return NewStitcher(StitchOptions{}).Stitch(rec, blocks)
}
