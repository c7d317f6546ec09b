package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"example.com/alsepgate/internal/alsep"
	"example.com/alsepgate/internal/common"
)

type infoShow struct {
	Records bool
	Frames  bool
	Data    bool
}

// writeInfo dumps the tape at path and ends with one summary line:
// file, identity, year, first and last frame time, and the record count.
func writeInfo(out io.Writer, path string, opts alsep.ReaderOptions, show infoShow) error {
	r, err := alsep.Open(path, opts)
	if err != nil {
		return err
	}
	defer r.Close()
	w := bufio.NewWriter(out)
	defer w.Flush()

	var (
		rec         alsep.Record
		records     int
		first, last *alsep.Frame
	)
	for {
		b, err := r.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			if errors.Is(err, alsep.ErrShortBlock) {
				common.Warnf("%s: %v", path, err)
				break
			}
			return err
		}
		rec = b.Record
		records++
		if show.Records {
			writeRecordInfo(w, b)
		}
		for i := range b.Frames {
			f := &b.Frames[i]
			if f.Errors != 0 {
				common.Warnf("frame error: mask=0x%04x (%s) offset=%d msec_of_year=%d", uint16(f.Errors), f.Errors, f.Offset, f.MsecOfYear)
			}
			if alsep.SplitMsecOfYear(f.MsecOfYear).DOY > 0 {
				if first == nil {
					first = f
				}
				last = f
			}
			if show.Frames {
				writeFrameInfo(w, rec, f)
			}
			if show.Data {
				writeFrameData(w, f)
			}
		}
	}
	if records == 0 {
		return fmt.Errorf("%s: no records", path)
	}

	fields := []string{path}
	if rec.Format == alsep.FormatPSE {
		fields = append(fields, strconv.Itoa(rec.Station), strconv.Itoa(int(rec.TapeSeq)))
	} else {
		fields = append(fields, strconv.Itoa(int(rec.OriginalID)), activeDigits(rec))
	}
	fields = append(fields, strconv.Itoa(rec.Year))
	if rec.Format == alsep.FormatPSE {
		fields = append(fields, strconv.Itoa(int(rec.Variant)))
	}
	fields = append(fields, dayTime(first), dayTime(last), strconv.Itoa(records))
	fmt.Fprintln(w, strings.Join(fields, ","))
	return nil
}

func activeDigits(rec alsep.Record) string {
	var sb strings.Builder
	for _, s := range rec.ActiveStations {
		sb.WriteString(strconv.Itoa(int(s)))
	}
	return sb.String()
}

func dayTime(f *alsep.Frame) string {
	if f == nil {
		return "-1,--:--:--.---"
	}
	dt := alsep.SplitMsecOfYear(f.MsecOfYear)
	return fmt.Sprintf("%d,%02d:%02d:%02d.%03d", dt.DOY, dt.Hour, dt.Minute, dt.Second, dt.Milli)
}

func writeRecordInfo(w io.Writer, b alsep.Batch) {
	rec := b.Record
	fmt.Fprintln(w, "--- record info ---")
	fmt.Fprintf(w, "offset in file: %d\n", b.Offset)
	fmt.Fprintf(w, "format: %s\n", rec.Format)
	if rec.Format == alsep.FormatPSE {
		fmt.Fprintf(w, "tape type: %d\n", rec.TapeID)
		fmt.Fprintf(w, "apollo station: %d\n", rec.Station)
		fmt.Fprintf(w, "tape seq: %d\n", rec.TapeSeq)
		fmt.Fprintf(w, "record number: %d\n", rec.RecordNumber)
		fmt.Fprintf(w, "year: %d\n", rec.Year)
		fmt.Fprintf(w, "variant: %s\n", rec.Variant)
		fmt.Fprintf(w, "phys records: %d\n", rec.PhysRecords)
		fmt.Fprintf(w, "read error: %d\n", rec.ReadErr)
	} else {
		fmt.Fprintf(w, "id: %d\n", rec.TapeID)
		fmt.Fprintf(w, "active stations: %s\n", activeDigits(rec))
		fmt.Fprintf(w, "num active: %d\n", rec.NumActive)
		fmt.Fprintf(w, "original 9 track id: %d\n", rec.OriginalID)
		fmt.Fprintf(w, "year: %d\n", rec.Year)
		fmt.Fprintf(w, "first msec: %d\n", rec.FirstMsec)
	}
	fmt.Fprintf(w, "error flag: 0x%04x %s\n\n", uint16(rec.Errors), rec.Errors)
}

func writeFrameInfo(w io.Writer, rec alsep.Record, f *alsep.Frame) {
	dt := alsep.SplitMsecOfYear(f.MsecOfYear)
	fmt.Fprintf(w, "frame info: frame_count=%d,doy=%d,time=%02d:%02d:%02d.%03d,msec=%d,diff=%d",
		f.FrameCount, dt.DOY, dt.Hour, dt.Minute, dt.Second, dt.Milli, f.MsecOfYear, f.TimeDiff)
	fmt.Fprintf(w, ",track=%d", f.TrackingStation)
	if rec.Format != alsep.FormatPSE {
		fmt.Fprintf(w, ",package=%d,orig=%d", f.Package, f.OriginalRecNum)
	}
	fmt.Fprintf(w, ",sync=%d,time_flag=%t", f.Sync, f.SoftwareTime)
	if g := f.Geophone; g != nil {
		fmt.Fprintf(w, ",sub_frame=%d", g.SubFrame)
	}
	fmt.Fprintf(w, ",process=0x%02x,error=0x%04x\n", uint16(f.Flags), uint16(f.Errors))
}

func writeSeries(w io.Writer, name string, v []int32) {
	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = strconv.Itoa(int(x))
	}
	fmt.Fprintf(w, "#%s: %s\n", name, strings.Join(parts, ","))
}

func writeFrameData(w io.Writer, f *alsep.Frame) {
	if s := f.Seismic; s != nil {
		if s.HasSPZ {
			writeSeries(w, "spz", s.SPZ[:])
		}
		writeSeries(w, "lpx", s.LPX[:])
		writeSeries(w, "lpy", s.LPY[:])
		writeSeries(w, "lpz", s.LPZ[:])
		if f.FrameCount%2 == 0 {
			fmt.Fprintf(w, "#tidal_x: %d\n#tidal_y: %d\n", s.TidalX, s.TidalY)
		} else {
			fmt.Fprintf(w, "#tidal_z: %d\n#inst_temp: %d\n", s.TidalZ, s.InstTemp)
		}
	}
	if m := f.Magnetometer; m != nil {
		fmt.Fprintf(w, "#lsm_eng_stat: %d\n", m.Status)
		writeSeries(w, "lsm", m.Samples[:])
	}
	if g := f.Gravimeter; g != nil {
		writeSeries(w, "lsg", g.Seismic[:])
		fmt.Fprintf(w, "#lsg_tide: %d\n#lsg_free: %d\n#lsg_temp: %d\n", g.Tide, g.Free, g.Temp)
	}
	if g := f.Geophone; g != nil {
		writeSeries(w, "dp1", g.DP1[:])
		writeSeries(w, "dp6", g.DP6[:])
		writeSeries(w, "dp11", g.DP11[:])
		writeSeries(w, "dp16", g.DP16[:])
		writeSeries(w, "status", g.Status[:])
	}
	fmt.Fprintln(w)
}
