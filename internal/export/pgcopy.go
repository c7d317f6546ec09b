package export

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"example.com/alsepgate/internal/alsep"
)

// Table describes a COPY target.
type Table struct {
	Name    string
	Columns []string
}

var (
	TablePSE = Table{"tbl_pse", []string{
		"file_id", "pos", "length", "frame_count", "ap_station", "ground_station",
		"time_original", "time", "time_diff", "sp_z", "lp_x", "lp_y", "lp_z",
		"tidal_x", "tidal_y", "tidal_z", "inst_temp", "process_flag", "error_flag", "time_flag",
	}}
	TableLSG = Table{"tbl_lsg", []string{
		"file_id", "pos", "length", "frame_count", "ap_station", "ground_station",
		"time_original", "time", "time_diff",
		"lsg", "lsg_tide", "lsg_free", "lsg_temp", "process_flag", "error_flag", "time_flag",
	}}
	TableLSPE = Table{"tbl_lspe", []string{
		"file_id", "pos", "length", "ap_station", "ground_station",
		"time_original", "time", "time_diff", "gp1", "gp2", "gp3", "gp4", "status",
		"process_flag", "error_flag", "time_flag",
	}}
)

// Statement renders the COPY ... FROM stdin header line.
func (t Table) Statement() string {
	cols := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		if c == "time" {
			c = `"time"`
		}
		cols[i] = c
	}
	return fmt.Sprintf("COPY %s (%s) FROM stdin;", t.Name, strings.Join(cols, ", "))
}

// CopyOptions selects the COPY target for a tape.
type CopyOptions struct {
	FileID int
	// LSG routes WTN package 17 frames to tbl_lsg instead of seismic frames
	// to tbl_pse.
	LSG bool
}

// TableFor returns the COPY table used for a format.
func TableFor(f alsep.Format, opts CopyOptions) Table {
	switch {
	case f == alsep.FormatWTH:
		return TableLSPE
	case f == alsep.FormatWTN && opts.LSG:
		return TableLSG
	}
	return TablePSE
}

// Rows converts a batch into COPY rows for TableFor(b.Record.Format, opts).
// Frames that belong to another table are skipped. A nil value stands for
// SQL NULL.
func Rows(b alsep.Batch, opts CopyOptions) [][]any {
	rec := b.Record
	var rows [][]any
	for i := range b.Frames {
		f := &b.Frames[i]
		var row []any
		switch rec.Format {
		case alsep.FormatPSE:
			row = seismicRow(opts.FileID, b.FrameSize, rec.Station, rec, f)
		case alsep.FormatWTN:
			st := f.Package.Station()
			if opts.LSG {
				if st != 17 || f.Gravimeter == nil {
					continue
				}
				row = lsgRow(opts.FileID, b.FrameSize, st, rec, f)
			} else {
				if st < 0 || st == 17 || f.Seismic == nil {
					continue
				}
				row = seismicRow(opts.FileID, b.FrameSize, st, rec, f)
			}
		case alsep.FormatWTH:
			st := f.Package.Station()
			if st != 17 || f.Geophone == nil {
				continue
			}
			row = lspeRow(opts.FileID, b.FrameSize, st, rec, f)
		}
		if row != nil {
			rows = append(rows, row)
		}
	}
	return rows
}

func copyTime(year int, msec int64) any {
	t := alsep.CopyTime(year, msec)
	if t == `\N` {
		return nil
	}
	return t
}

func frameRowHead(id, length, station int, rec alsep.Record, f *alsep.Frame, withCount bool) []any {
	t := copyTime(rec.Year, f.MsecOfYear)
	row := []any{id, f.Offset, length}
	if withCount {
		row = append(row, int(f.FrameCount))
	}
	return append(row, station, int(f.TrackingStation), t, t, f.TimeDiff)
}

func frameRowTail(row []any, f *alsep.Frame) []any {
	return append(row, int(f.Flags), int(f.Errors), 0)
}

func seismicRow(id, length, station int, rec alsep.Record, f *alsep.Frame) []any {
	s := f.Seismic
	if s == nil {
		return nil
	}
	spz := "{}"
	if s.HasSPZ {
		spz = IntArray(s.SPZ[:])
	}
	row := frameRowHead(id, length, station, rec, f, true)
	row = append(row, spz, IntArray(s.LPX[:]), IntArray(s.LPY[:]), IntArray(s.LPZ[:]),
		int(s.TidalX), int(s.TidalY), int(s.TidalZ), int(s.InstTemp))
	return frameRowTail(row, f)
}

func lsgRow(id, length, station int, rec alsep.Record, f *alsep.Frame) []any {
	g := f.Gravimeter
	row := frameRowHead(id, length, station, rec, f, true)
	row = append(row, IntArray(g.Seismic[:]), int(g.Tide), int(g.Free), int(g.Temp))
	return frameRowTail(row, f)
}

func lspeRow(id, length, station int, rec alsep.Record, f *alsep.Frame) []any {
	g := f.Geophone
	row := frameRowHead(id, length, station, rec, f, false)
	row = append(row, IntArray(g.DP1[:]), IntArray(g.DP6[:]), IntArray(g.DP11[:]), IntArray(g.DP16[:]), IntArray(g.Status[:]))
	return frameRowTail(row, f)
}

// IntArray renders a PostgreSQL array literal.
func IntArray(v []int32) string {
	var b strings.Builder
	b.WriteByte('{')
	for i, x := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatInt(int64(x), 10))
	}
	b.WriteByte('}')
	return b.String()
}

// CopyWriter emits PostgreSQL COPY text: one COPY block per batch, each
// terminated by "\.".
type CopyWriter struct {
	w    *bufio.Writer
	opts CopyOptions
	rows int
}

func NewCopyWriter(w io.Writer, opts CopyOptions) *CopyWriter {
	return &CopyWriter{w: bufio.NewWriter(w), opts: opts}
}

// Rows returns the number of data rows written so far.
func (c *CopyWriter) Rows() int {
	return c.rows
}

func (c *CopyWriter) WriteBatch(b alsep.Batch) error {
	t := TableFor(b.Record.Format, c.opts)
	if _, err := fmt.Fprintln(c.w, t.Statement()); err != nil {
		return err
	}
	for _, row := range Rows(b, c.opts) {
		if _, err := fmt.Fprintln(c.w, FormatCopyRow(row)); err != nil {
			return err
		}
		c.rows++
	}
	if _, err := fmt.Fprintln(c.w, `\.`); err != nil {
		return err
	}
	return nil
}

func (c *CopyWriter) Flush() error {
	return c.w.Flush()
}

// FormatCopyRow joins values with tabs, writing nil as \N.
func FormatCopyRow(row []any) string {
	parts := make([]string, len(row))
	for i, v := range row {
		if v == nil {
			parts[i] = `\N`
			continue
		}
		parts[i] = fmt.Sprint(v)
	}
	return strings.Join(parts, "\t")
}
