package summary

import (
	"math"
	"testing"

	"example.com/alsepgate/internal/alsep"
	"example.com/alsepgate/internal/catalog"
)

func TestPeakFrequency(t *testing.T) {
	const rate = 64.0
	x := make([]float64, 256)
	for i := range x {
		x[i] = 100 + 50*math.Sin(2*math.Pi*8*float64(i)/rate)
	}
	got := PeakFrequency(x, rate)
	if math.Abs(got-8) > 0.25 {
		t.Fatalf("PeakFrequency = %v, want 8", got)
	}
	if got := PeakFrequency(x[:3], rate); got != 0 {
		t.Fatalf("PeakFrequency short = %v, want 0", got)
	}
}

func TestCollectorSkipsNoData(t *testing.T) {
	rec := alsep.Record{Format: alsep.FormatPSE, Station: 12, Year: 1970}
	f0 := alsep.Frame{MsecOfYear: 1000, Seismic: &alsep.Seismic{}}
	f0.Seismic.LPX = [4]int32{1, 2, 3, alsep.DataNone}
	f1 := alsep.Frame{MsecOfYear: 1604, Seismic: &alsep.Seismic{},
		Prev: &alsep.FrameLink{MsecOfYear: 1000}, TimeDiff: 604,
		Errors: alsep.MaskInvalidSync}
	f1.Seismic.LPX = [4]int32{5, 5, 5, 5}

	c := NewCollector(0)
	c.Add(alsep.Batch{Record: rec, Frames: []alsep.Frame{f0, f1}})
	s := c.Summary()

	if s.Frames != 2 || s.ErrorFrames != 1 || s.Records != 1 {
		t.Fatalf("counts = %d/%d/%d, want 2/1/1", s.Frames, s.ErrorFrames, s.Records)
	}
	if s.Masks["sync"] != 1 {
		t.Fatalf("sync mask count = %d, want 1", s.Masks["sync"])
	}
	if s.Interval.Count != 1 || s.Interval.Mean != 604 {
		t.Fatalf("interval = %+v, want one 604 ms", s.Interval)
	}
	var lpx *ChannelStats
	for i := range s.Channels {
		if s.Channels[i].Channel == catalog.ChannelLPX {
			lpx = &s.Channels[i]
		}
	}
	if lpx == nil {
		t.Fatalf("lpx channel missing from %+v", s.Channels)
	}
	if lpx.Count != 7 || lpx.Min != 1 || lpx.Max != 5 {
		t.Fatalf("lpx = %+v, want 7 samples in [1,5]", lpx.Stats)
	}
	if lpx.Station != 12 {
		t.Fatalf("lpx station = %d, want 12", lpx.Station)
	}
	wantRate := 4 / alsep.FrameSeconds
	if math.Abs(lpx.SampleRate-wantRate) > 1e-9 {
		t.Fatalf("lpx rate = %v, want %v", lpx.SampleRate, wantRate)
	}
}

func TestCollectorCapsSamples(t *testing.T) {
	rec := alsep.Record{Format: alsep.FormatPSE, Station: 14}
	fr := alsep.Frame{Seismic: &alsep.Seismic{LPZ: [4]int32{1, 2, 3, 4}}}
	c := NewCollector(6)
	c.Add(alsep.Batch{Record: rec, Frames: []alsep.Frame{fr, fr, fr}})
	for _, ch := range c.Summary().Channels {
		if ch.Channel == catalog.ChannelLPZ && ch.Count != 6 {
			t.Fatalf("lpz count = %d, want 6", ch.Count)
		}
	}
}
