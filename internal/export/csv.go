package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"example.com/alsepgate/internal/alsep"
)

// CSV channel file suffixes.
const (
	FileSPZ  = "spz"
	FileLP   = "lp"
	FileTDXY = "tdxy"
	FileTDZI = "tdzi"
	FileLSG  = "lsg"
	FileLSM  = "lsm"
	FileGP   = "gp"
	FileMeta = "meta"
)

// CSVFiles lists the channel files written for a tape format.
func CSVFiles(f alsep.Format) []string {
	switch f {
	case alsep.FormatPSE:
		return []string{FileSPZ, FileLP, FileTDXY, FileTDZI, FileMeta}
	case alsep.FormatWTN:
		return []string{FileSPZ, FileLP, FileTDXY, FileTDZI, FileLSG, FileLSM, FileMeta}
	case alsep.FormatWTH:
		return []string{FileGP, FileMeta}
	}
	return nil
}

// CSVWriter writes one CSV file per channel group. Each row starts with the
// tape name, the frame offset, the record header, the frame header and the
// sample timestamp.
type CSVWriter struct {
	name   string
	format alsep.Format
	files  map[string]*os.File
	csv    map[string]*csv.Writer
	paths  []string
}

// NewCSVWriter creates "<dir>/<name>_<channel>.csv" for every channel of format.
func NewCSVWriter(dir, name string, format alsep.Format) (*CSVWriter, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	w := &CSVWriter{
		name:   name,
		format: format,
		files:  make(map[string]*os.File),
		csv:    make(map[string]*csv.Writer),
	}
	for _, ch := range CSVFiles(format) {
		p := filepath.Join(dir, fmt.Sprintf("%s_%s.csv", name, ch))
		f, err := os.Create(p)
		if err != nil {
			w.Close()
			return nil, err
		}
		w.files[ch] = f
		w.csv[ch] = csv.NewWriter(f)
		w.paths = append(w.paths, p)
	}
	return w, nil
}

// Paths returns the files created by the writer.
func (w *CSVWriter) Paths() []string {
	return append([]string(nil), w.paths...)
}

func (w *CSVWriter) Close() error {
	var first error
	for ch, f := range w.files {
		if cw := w.csv[ch]; cw != nil {
			cw.Flush()
			if err := cw.Error(); err != nil && first == nil {
				first = err
			}
		}
		if err := f.Close(); err != nil && first == nil {
			first = err
		}
	}
	w.files = nil
	w.csv = nil
	return first
}

// SampleOffsetUs is the microsecond offset of sample i of n within a frame,
// truncated toward zero.
func SampleOffsetUs(format alsep.Format, i, n int) int64 {
	if n <= 0 {
		return 0
	}
	return int64(alsep.FrameSecondsOf(format) * 1e6 * float64(i) / float64(n))
}

func (w *CSVWriter) WriteBatch(b alsep.Batch) error {
	for i := range b.Frames {
		if err := w.writeFrame(b, &b.Frames[i]); err != nil {
			return err
		}
	}
	return nil
}

func (w *CSVWriter) writeFrame(b alsep.Batch, f *alsep.Frame) error {
	rec := b.Record
	rows := rowSet{w: w, prefix: w.headerFields(rec, f)}

	rows.add(FileMeta, 0, w.metaFields(b, f)...)
	switch rec.Format {
	case alsep.FormatPSE, alsep.FormatWTN:
		if s := f.Seismic; s != nil {
			if s.HasSPZ {
				for i, v := range s.SPZ {
					rows.add(FileSPZ, SampleOffsetUs(rec.Format, i, len(s.SPZ)), itoa(v))
				}
			}
			for i := range s.LPX {
				rows.add(FileLP, SampleOffsetUs(rec.Format, i, len(s.LPX)), itoa(s.LPX[i]), itoa(s.LPY[i]), itoa(s.LPZ[i]))
			}
			if f.FrameCount%2 == 0 {
				rows.add(FileTDXY, 0, itoa(s.TidalX), itoa(s.TidalY))
			} else {
				rows.add(FileTDZI, 0, itoa(s.TidalZ), itoa(s.InstTemp))
			}
		}
		if g := f.Gravimeter; g != nil {
			for i, v := range g.Seismic {
				rows.add(FileLSG, SampleOffsetUs(rec.Format, i, len(g.Seismic)), itoa(v))
			}
		}
		if m := f.Magnetometer; m != nil {
			fields := []string{itoa(m.Status)}
			for _, v := range m.Samples {
				fields = append(fields, itoa(v))
			}
			rows.add(FileLSM, 0, fields...)
		}
	case alsep.FormatWTH:
		if g := f.Geophone; g != nil {
			for i := range g.DP1 {
				rows.add(FileGP, SampleOffsetUs(rec.Format, i, len(g.DP1)),
					itoa(g.DP1[i]), itoa(g.DP6[i]), itoa(g.DP11[i]), itoa(g.DP16[i]), itoa(g.Status[i]))
			}
		}
	}
	return rows.err
}

type rowSet struct {
	w      *CSVWriter
	prefix func(offsetUs int64) []string
	err    error
}

func (r *rowSet) add(ch string, offsetUs int64, values ...string) {
	if r.err != nil {
		return
	}
	cw := r.w.csv[ch]
	if cw == nil {
		return
	}
	r.err = cw.Write(append(r.prefix(offsetUs), values...))
}

func (w *CSVWriter) headerFields(rec alsep.Record, f *alsep.Frame) func(int64) []string {
	var fixed []string
	fixed = append(fixed, w.name, strconv.FormatInt(f.Offset, 10))
	switch rec.Format {
	case alsep.FormatPSE:
		fixed = append(fixed,
			utoa(rec.TapeID), strconv.Itoa(rec.Station), utoa(rec.TapeSeq), utoa(rec.RecordNumber),
			strconv.Itoa(rec.Year), strconv.Itoa(int(rec.Variant)), utoa(rec.PhysRecords), utoa(rec.ReadErr),
			btoa(f.SoftwareTime), strconv.FormatInt(f.MsecOfYear, 10), utoa(f.TrackingStation),
			utoa(f.BitErrorRate), utoa(f.DataRate), utoa(f.AlsepWord5),
			utoa(f.Sync), utoa(f.SyncComp), utoa(f.FrameCount), utoa(f.ModeBit))
	default:
		fixed = append(fixed, utoa(rec.TapeID))
		for _, a := range rec.ActiveStations {
			fixed = append(fixed, utoa(a))
		}
		fixed = append(fixed,
			utoa(rec.NumActive), utoa(rec.OriginalID), strconv.Itoa(rec.Year), strconv.FormatInt(rec.FirstMsec, 10),
			btoa(f.SoftwareTime), strconv.FormatInt(f.MsecOfYear, 10), strconv.Itoa(f.Package.Station()),
			utoa(f.TrackingStation), strconv.Itoa(int(f.Package)),
			btoa(f.BitSync.Search), btoa(f.BitSync.Verify), btoa(f.BitSync.Confirm),
			btoa(f.BitSync.Lock), btoa(f.BitSync.InputLevel), utoa(f.OriginalRecNum),
			utoa(f.Sync), utoa(f.SyncComp))
		if rec.Format == alsep.FormatWTN {
			fixed = append(fixed, utoa(f.FrameCount), utoa(f.ModeBit))
		}
	}
	return func(offsetUs int64) []string {
		ts, _ := alsep.Timestamp(rec.Year, f.MsecOfYear, offsetUs)
		row := make([]string, 0, len(fixed)+8)
		row = append(row, fixed...)
		return append(row, ts)
	}
}

// metaFields carries the frame position, the process flags and one 0/1
// column per error condition.
func (w *CSVWriter) metaFields(b alsep.Batch, f *alsep.Frame) []string {
	rec := b.Record
	var pos []string
	if rec.Format == alsep.FormatPSE {
		pos = []string{strconv.Itoa(b.Index), strconv.Itoa(f.Index)}
	} else {
		stride := int(rec.NumActive)
		if stride < 1 {
			stride = 1
		}
		pos = []string{strconv.Itoa(f.Index), strconv.Itoa(f.Index % stride)}
	}
	return append(pos,
		btoa(f.Flags.Has(alsep.FlagFirstOfFile)),
		btoa(f.Flags.Has(alsep.FlagTopOfRecord)),
		btoa(f.Flags.Has(alsep.FlagFirstSampleCopied)),
		btoa(rec.Errors.Has(alsep.MaskInvalidFormat)),
		btoa(rec.Errors.Has(alsep.MaskInvalidStation)),
		btoa(rec.Errors.Has(alsep.MaskInvalidDatetime)),
		btoa(f.Errors.Has(alsep.MaskInvalidDatetime)),
		btoa(f.Errors.Has(alsep.MaskInvalidValue)),
		btoa(f.Errors.Has(alsep.MaskSmallTimeError)),
		btoa(f.Errors.Has(alsep.MaskLargeTimeError)),
		btoa(f.Errors.Has(alsep.MaskInvalidSync)),
		btoa(f.Errors.Has(alsep.MaskFrameSequence)),
	)
}

func itoa(v int32) string  { return strconv.FormatInt(int64(v), 10) }
func utoa(v uint32) string { return strconv.FormatUint(uint64(v), 10) }

func btoa(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
