package summary

import (
	"errors"
	"io"
	"math"
	"math/cmplx"
	"sort"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"example.com/alsepgate/internal/alsep"
	"example.com/alsepgate/internal/catalog"
)

// DefaultMaxSamples bounds the samples kept per channel.
const DefaultMaxSamples = 1 << 16

type Stats struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stdDev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

func statsOf(x []float64) Stats {
	if len(x) == 0 {
		return Stats{}
	}
	s := Stats{Count: len(x), Min: floats.Min(x), Max: floats.Max(x)}
	if len(x) == 1 {
		s.Mean = x[0]
		return s
	}
	s.Mean, s.StdDev = stat.MeanStdDev(x, nil)
	return s
}

type ChannelStats struct {
	Station    int     `json:"station"`
	Channel    string  `json:"channel"`
	SampleRate float64 `json:"sampleRate"`
	PeakHz     float64 `json:"peakHz"`
	Stats
}

type Summary struct {
	File        string         `json:"file,omitempty"`
	Format      string         `json:"format"`
	Records     int            `json:"records"`
	Frames      int            `json:"frames"`
	ErrorFrames int            `json:"errorFrames"`
	Year        int            `json:"year"`
	FirstMsec   int64          `json:"firstMsec"`
	LastMsec    int64          `json:"lastMsec"`
	Interval    Stats          `json:"intervalMs"`
	Masks       map[string]int `json:"masks"`
	Channels    []ChannelStats `json:"channels"`
}

type channelKey struct {
	station int
	channel string
}

// Collector accumulates batches into a Summary.
type Collector struct {
	maxSamples int
	format     alsep.Format
	records    int
	frames     int
	errFrames  int
	year       int
	firstMsec  int64
	lastMsec   int64
	intervals  []float64
	masks      map[string]int
	samples    map[channelKey][]float64
}

func NewCollector(maxSamples int) *Collector {
	if maxSamples <= 0 {
		maxSamples = DefaultMaxSamples
	}
	return &Collector{
		maxSamples: maxSamples,
		masks:      make(map[string]int),
		samples:    make(map[channelKey][]float64),
	}
}

func (c *Collector) push(station int, channel string, vals ...int32) {
	k := channelKey{station, channel}
	buf := c.samples[k]
	for _, v := range vals {
		if len(buf) >= c.maxSamples {
			break
		}
		if v == alsep.DataNone {
			continue
		}
		buf = append(buf, float64(v))
	}
	c.samples[k] = buf
}

func (c *Collector) Add(b alsep.Batch) {
	c.format = b.Record.Format
	if c.records == 0 {
		c.year = b.Record.Year
	}
	c.records++
	for i := range b.Frames {
		f := &b.Frames[i]
		if c.frames == 0 {
			c.firstMsec = f.MsecOfYear
		}
		c.lastMsec = f.MsecOfYear
		c.frames++
		if f.Errors != 0 {
			c.errFrames++
			for _, name := range f.Errors.Names() {
				c.masks[name]++
			}
		}
		if f.Prev != nil && len(c.intervals) < c.maxSamples {
			c.intervals = append(c.intervals, float64(f.TimeDiff))
		}
		station := f.Station(b.Record)
		if s := f.Seismic; s != nil {
			if s.HasSPZ {
				c.push(station, catalog.ChannelSPZ, s.SPZ[:]...)
			}
			c.push(station, catalog.ChannelLPX, s.LPX[:]...)
			c.push(station, catalog.ChannelLPY, s.LPY[:]...)
			c.push(station, catalog.ChannelLPZ, s.LPZ[:]...)
		}
		if g := f.Gravimeter; g != nil {
			c.push(station, catalog.ChannelLSG, g.Seismic[:]...)
		}
		if g := f.Geophone; g != nil {
			c.push(station, catalog.ChannelGP1, g.DP1[:]...)
			c.push(station, catalog.ChannelGP2, g.DP6[:]...)
			c.push(station, catalog.ChannelGP3, g.DP11[:]...)
			c.push(station, catalog.ChannelGP4, g.DP16[:]...)
		}
	}
}

var samplesPerFrame = map[string]float64{
	catalog.ChannelSPZ: 32,
	catalog.ChannelLPX: 4,
	catalog.ChannelLPY: 4,
	catalog.ChannelLPZ: 4,
	catalog.ChannelLSG: 31,
	catalog.ChannelGP1: 20,
	catalog.ChannelGP2: 20,
	catalog.ChannelGP3: 20,
	catalog.ChannelGP4: 20,
}

func (c *Collector) Summary() Summary {
	s := Summary{
		Format:      c.format.String(),
		Records:     c.records,
		Frames:      c.frames,
		ErrorFrames: c.errFrames,
		Year:        c.year,
		FirstMsec:   c.firstMsec,
		LastMsec:    c.lastMsec,
		Interval:    statsOf(c.intervals),
		Masks:       c.masks,
	}
	frameSeconds := alsep.FrameSecondsOf(c.format)
	for k, x := range c.samples {
		if len(x) == 0 {
			continue
		}
		rate := samplesPerFrame[k.channel] / frameSeconds
		s.Channels = append(s.Channels, ChannelStats{
			Station:    k.station,
			Channel:    k.channel,
			SampleRate: rate,
			PeakHz:     PeakFrequency(x, rate),
			Stats:      statsOf(x),
		})
	}
	sort.Slice(s.Channels, func(i, j int) bool {
		if s.Channels[i].Station != s.Channels[j].Station {
			return s.Channels[i].Station < s.Channels[j].Station
		}
		return s.Channels[i].Channel < s.Channels[j].Channel
	})
	return s
}

// PeakFrequency returns the frequency of the strongest non-DC bin of the
// mean-removed series.
func PeakFrequency(x []float64, sampleRate float64) float64 {
	n := len(x)
	if n < 4 || sampleRate <= 0 {
		return 0
	}
	mean := stat.Mean(x, nil)
	centered := make([]float64, n)
	for i, v := range x {
		centered[i] = v - mean
	}
	fft := fourier.NewFFT(n)
	coeffs := fft.Coefficients(nil, centered)
	best, bestPower := 0, 0.0
	for i := 1; i < len(coeffs); i++ {
		p := math.Pow(cmplx.Abs(coeffs[i]), 2)
		if p > bestPower {
			best, bestPower = i, p
		}
	}
	if best == 0 {
		return 0
	}
	return fft.Freq(best) * sampleRate
}

// Tape decodes the tape at path and summarizes it.
func Tape(path string, opts alsep.ReaderOptions, maxSamples int) (Summary, error) {
	r, err := alsep.Open(path, opts)
	if err != nil {
		return Summary{}, err
	}
	defer r.Close()
	c := NewCollector(maxSamples)
	c.format = opts.Format
	for {
		b, err := r.Next()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, alsep.ErrShortBlock) {
				break
			}
			return Summary{}, err
		}
		c.Add(b)
	}
	s := c.Summary()
	s.File = path
	return s, nil
}
