package export

import (
	"encoding/binary"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/GeoNet/kit/seis/ms"

	"example.com/alsepgate/internal/alsep"
	"example.com/alsepgate/internal/catalog"
)

const (
	mseedRecordLength = 512
	mseedRecordExp    = 9
	mseedDataOffset   = 64
	// MSeedSamplesPerRecord is the int32 capacity of one 512-byte record.
	MSeedSamplesPerRecord = (mseedRecordLength - mseedDataOffset) / 4
)

type stream struct {
	entry   catalog.Entry
	factor  int16
	mult    int16
	period  time.Duration
	start   time.Time
	next    time.Time
	samples []int32
}

// MSeedWriter packs decoded channels into 512-byte miniSEED records with
// big-endian int32 samples and a Blockette 1000. A new record starts when
// a frame does not continue its predecessor.
type MSeedWriter struct {
	w       io.Writer
	cat     *catalog.Store
	seq     int
	records int
	streams map[string]*stream
	// Missing counts samples dropped for channels absent from the catalog.
	Missing int
}

func NewMSeedWriter(w io.Writer, cat *catalog.Store) *MSeedWriter {
	return &MSeedWriter{w: w, cat: cat, streams: make(map[string]*stream)}
}

// Records returns the number of records written.
func (m *MSeedWriter) Records() int {
	return m.records
}

// rateFactors expresses n samples per frame as a SEED rate factor and
// division multiplier.
func rateFactors(format alsep.Format, n int) (int16, int16) {
	num, den := n*1060, 64*10
	if format == alsep.FormatWTH {
		num, den = n*3533, 20*30
	}
	g := gcd(num, den)
	num, den = num/g, den/g
	if den == 1 {
		return int16(num), 1
	}
	return int16(num), int16(-den)
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

// FrameTime converts a tape year and millisecond of year to UTC.
func FrameTime(year int, msec int64) time.Time {
	return time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(msec) * time.Millisecond)
}

func (m *MSeedWriter) WriteBatch(b alsep.Batch) error {
	rec := b.Record
	for i := range b.Frames {
		f := &b.Frames[i]
		if f.Errors.Has(alsep.MaskInvalidDatetime) {
			continue
		}
		station := f.Station(rec)
		at := FrameTime(rec.Year, f.MsecOfYear)
		if s := f.Seismic; s != nil {
			if s.HasSPZ {
				if err := m.push(rec.Format, station, catalog.ChannelSPZ, at, f, s.SPZ[:]); err != nil {
					return err
				}
			}
			for _, lp := range []struct {
				ch string
				v  []int32
			}{{catalog.ChannelLPX, s.LPX[:]}, {catalog.ChannelLPY, s.LPY[:]}, {catalog.ChannelLPZ, s.LPZ[:]}} {
				if err := m.push(rec.Format, station, lp.ch, at, f, lp.v); err != nil {
					return err
				}
			}
		}
		if g := f.Gravimeter; g != nil {
			if err := m.push(rec.Format, station, catalog.ChannelLSG, at, f, g.Seismic[:]); err != nil {
				return err
			}
		}
		if g := f.Geophone; g != nil {
			for _, gp := range []struct {
				ch string
				v  []int32
			}{{catalog.ChannelGP1, g.DP1[:]}, {catalog.ChannelGP2, g.DP6[:]}, {catalog.ChannelGP3, g.DP11[:]}, {catalog.ChannelGP4, g.DP16[:]}} {
				if err := m.push(rec.Format, station, gp.ch, at, f, gp.v); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (m *MSeedWriter) push(format alsep.Format, station int, channel string, at time.Time, f *alsep.Frame, v []int32) error {
	entry, ok := m.cat.Lookup(station, channel)
	if !ok {
		m.Missing += len(v)
		return nil
	}
	key := fmt.Sprintf("%d/%s", station, channel)
	s := m.streams[key]
	if s == nil {
		factor, mult := rateFactors(format, len(v))
		s = &stream{entry: entry, factor: factor, mult: mult}
		s.period = time.Duration(alsep.FrameSecondsOf(format) * float64(time.Second) / float64(len(v)))
		m.streams[key] = s
	}
	if len(s.samples) > 0 && (f.Prev == nil || !continues(s.next, at)) {
		if err := m.flush(s); err != nil {
			return err
		}
	}
	for i, x := range v {
		if len(s.samples) == 0 {
			s.start = at.Add(time.Duration(i) * s.period)
		}
		s.samples = append(s.samples, x)
		if len(s.samples) == MSeedSamplesPerRecord {
			if err := m.flush(s); err != nil {
				return err
			}
		}
	}
	s.next = at.Add(time.Duration(len(v)) * s.period)
	return nil
}

// continues reports whether a frame starting at got follows a stream whose
// next sample is due at want, within the large time error threshold.
func continues(want, got time.Time) bool {
	d := got.Sub(want)
	if d < 0 {
		d = -d
	}
	return d <= time.Duration(alsep.LargeTimeThresholdMs)*time.Millisecond
}

func (m *MSeedWriter) flush(s *stream) error {
	if len(s.samples) == 0 {
		return nil
	}
	m.seq++
	var hdr ms.RecordHeader
	hdr.SetSeqNumber(m.seq % 1000000)
	hdr.DataQualityIndicator = 'D'
	hdr.ReservedByte = ' '
	hdr.SetStation(s.entry.Code)
	hdr.SetLocation(s.entry.Location)
	hdr.SetChannel(s.entry.SEED)
	hdr.SetNetwork(s.entry.Network)
	hdr.SetStartTime(s.start)
	hdr.NumberOfSamples = uint16(len(s.samples))
	hdr.SampleRateFactor = s.factor
	hdr.SampleRateMultiplier = s.mult
	hdr.NumberOfBlockettesThatFollow = 1
	hdr.BeginningOfData = mseedDataOffset
	hdr.FirstBlockette = ms.RecordHeaderSize

	buf := make([]byte, mseedRecordLength)
	copy(buf, ms.EncodeRecordHeader(hdr))
	p := ms.RecordHeaderSize
	copy(buf[p:], ms.EncodeBlocketteHeader(ms.BlocketteHeader{BlocketteType: 1000}))
	p += ms.BlocketteHeaderSize
	copy(buf[p:], ms.EncodeBlockette1000(ms.Blockette1000{
		Encoding:     uint8(ms.EncodingInt32),
		WordOrder:    uint8(ms.BigEndian),
		RecordLength: mseedRecordExp,
	}))
	for i, x := range s.samples {
		binary.BigEndian.PutUint32(buf[mseedDataOffset+4*i:], uint32(x))
	}
	if _, err := m.w.Write(buf); err != nil {
		return err
	}
	m.records++
	s.samples = s.samples[:0]
	return nil
}

// Close flushes every partially filled stream in station/channel order.
func (m *MSeedWriter) Close() error {
	keys := make([]string, 0, len(m.streams))
	for k := range m.streams {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := m.flush(m.streams[k]); err != nil {
			return err
		}
	}
	return nil
}
