package alsep

import (
	"errors"
	"testing"
)

func TestDecodeRecordPSE(t *testing.T) {
	want := pseRecord(15, PSENew, 4)
	want.ReadErr = 2
	b, err := EncodeRecord(want)
	if err != nil {
		t.Fatalf("EncodeRecord: %v", err)
	}
	got, err := DecodeRecord(FormatPSE, b)
	if err != nil {
		t.Fatalf("DecodeRecord: %v", err)
	}
	if got.Station != 15 || got.Year != 1973 || got.Variant != PSENew || got.PhysRecords != 4 || got.ReadErr != 2 {
		t.Fatalf("DecodeRecord = %+v", got)
	}
	if got.Errors != 0 {
		t.Fatalf("Errors = %v, want none", got.Errors)
	}
}

func TestDecodeRecordShortHeader(t *testing.T) {
	_, err := DecodeRecord(FormatWTN, make([]byte, 10))
	if !errors.Is(err, ErrHeaderSize) {
		t.Fatalf("DecodeRecord error = %v, want ErrHeaderSize", err)
	}
}

func TestDecodeRecordWTN(t *testing.T) {
	rec := wtnRecord(PackageApollo12, PackageApollo15, PackageApollo16, PackageApollo14, PackageApollo17)
	rec.OriginalID = 42
	rec.FirstMsec = 200*day + 1
	b, err := EncodeRecord(rec)
	if err != nil {
		t.Fatalf("EncodeRecord: %v", err)
	}
	got, err := DecodeRecord(FormatWTN, b)
	if err != nil {
		t.Fatalf("DecodeRecord: %v", err)
	}
	if got.ActiveStations != [5]uint32{1, 2, 3, 4, 5} {
		t.Fatalf("ActiveStations = %v", got.ActiveStations)
	}
	if got.NumActive != 5 || got.OriginalID != 42 || got.FirstMsec != rec.FirstMsec {
		t.Fatalf("DecodeRecord = %+v", got)
	}
	if got.Errors != 0 {
		t.Fatalf("Errors = %v, want none", got.Errors)
	}
	if got.ApolloStation() != -1 {
		t.Fatalf("ApolloStation = %d, want -1 for several packages", got.ApolloStation())
	}
}

func TestDecodeRecordWTNActiveStationBits(t *testing.T) {
	b := make([]byte, HeaderSize)
	b[2] = 0x5b // 0101 1011
	b[3] = 0x9c // 1001 1100
	rec, err := DecodeRecord(FormatWTN, b)
	if err != nil {
		t.Fatalf("DecodeRecord: %v", err)
	}
	want := [5]uint32{
		uint32(b[2]&0x70) >> 4,
		uint32(b[2]&0x0e) >> 1,
		uint32(b[2]&0x01)<<2 + uint32(b[3]>>6),
		uint32(b[3]&0x38) >> 3,
		uint32(b[3] & 0x07),
	}
	if rec.ActiveStations != want {
		t.Fatalf("ActiveStations = %v, want %v", rec.ActiveStations, want)
	}
}

func TestDecodePSEOldChannels(t *testing.T) {
	tests := []struct {
		name      string
		station   int
		count     uint32
		spz11     int32
		spz22     int32
		cv        int32
		tidal     [4]int32
		alsepWord uint32
	}{
		{name: "apollo 12 even", station: 12, count: 0, spz11: 14, spz22: 34, cv: 17, tidal: [4]int32{24, 26, DataNone, DataNone}},
		{name: "apollo 15 odd", station: 15, count: 1, spz11: 14, spz22: 34, cv: 17, tidal: [4]int32{DataNone, DataNone, 24, 26}},
		{name: "apollo 14 word 5", station: 14, count: 2, spz11: 14, spz22: 34, cv: 150, tidal: [4]int32{24, 26, DataNone, DataNone}, alsepWord: 301},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := pseRecord(tc.station, PSEOld, 1)
			raw := RawFrame{FrameCount: tc.count, Sync: SyncCode, AlsepWord5: tc.alsepWord, Words: numberedWords(15)}
			f := DecodeFrame(rec, EncodeFrame(rec, raw))
			s := f.Seismic
			if s == nil || !s.HasSPZ {
				t.Fatalf("Seismic = %+v, want short-period data", s)
			}
			checks := []struct {
				name string
				got  int32
				want int32
			}{
				{"spz1", s.SPZ[1], 1},
				{"spz2", s.SPZ[2], 2},
				{"spz4", s.SPZ[4], 5},
				{"spz10", s.SPZ[10], 13},
				{"spz11", s.SPZ[11], tc.spz11},
				{"spz21", s.SPZ[21], 32},
				{"spz22", s.SPZ[22], tc.spz22},
				{"spz27", s.SPZ[27], 39},
				{"spz31", s.SPZ[31], 45},
				{"lpx0", s.LPX[0], 4},
				{"lpy0", s.LPY[0], 6},
				{"lpz0", s.LPZ[0], 8},
				{"lpx3", s.LPX[3], 39},
				{"lpy3", s.LPY[3], 41},
				{"lpz3", s.LPZ[3], 43},
				{"tidalX", s.TidalX, tc.tidal[0]},
				{"tidalY", s.TidalY, tc.tidal[1]},
				{"tidalZ", s.TidalZ, tc.tidal[2]},
				{"instTemp", s.InstTemp, tc.tidal[3]},
				{"hk", s.Housekeeping, 22},
				{"cv", s.CommandVerify, tc.cv},
			}
			for _, c := range checks {
				if c.got != c.want {
					t.Fatalf("%s = %d, want %d", c.name, c.got, c.want)
				}
			}
		})
	}
}

func TestDecodePSENewChannels(t *testing.T) {
	rec := pseRecord(12, PSENew, 1)
	raw := RawFrame{FrameCount: 4, Sync: SyncCode, Words: numberedWords(6)}
	f := DecodeFrame(rec, EncodeFrame(rec, raw))
	s := f.Seismic
	if s.HasSPZ {
		t.Fatalf("HasSPZ = true, want false for NEW records")
	}
	if s.LPX[0] != 1 || s.LPY[0] != 2 || s.LPZ[0] != 3 {
		t.Fatalf("lp[0] = %d %d %d, want 1 2 3", s.LPX[0], s.LPY[0], s.LPZ[0])
	}
	if s.LPX[3] != 14 || s.LPY[3] != 15 || s.LPZ[3] != 16 {
		t.Fatalf("lp[3] = %d %d %d, want 14 15 16", s.LPX[3], s.LPY[3], s.LPZ[3])
	}
	if s.TidalX != 8 || s.TidalY != 9 || s.TidalZ != 0 || s.InstTemp != 0 {
		t.Fatalf("tidal = %d %d %d %d", s.TidalX, s.TidalY, s.TidalZ, s.InstTemp)
	}
	if s.Housekeeping != 7 || s.CommandVerify != 6 {
		t.Fatalf("hk/cv = %d/%d, want 7/6", s.Housekeeping, s.CommandVerify)
	}
}

func TestDecodeFrameHeaderFields(t *testing.T) {
	rec := pseRecord(12, PSEOld, 1)
	raw := RawFrame{
		SoftwareTime:    true,
		MsecOfYear:      300*day + 12345,
		TrackingStation: 9,
		BitErrorRate:    33,
		DataRate:        1,
		AlsepWord5:      777,
		Sync:            SyncCode,
		SyncComp:        SyncCodeComplement,
		FrameCount:      89,
		ModeBit:         1,
	}
	f := DecodeFrame(rec, EncodeFrame(rec, raw))
	if !f.SoftwareTime || f.MsecOfYear != raw.MsecOfYear || f.TrackingStation != 9 {
		t.Fatalf("time fields = %v %d %d", f.SoftwareTime, f.MsecOfYear, f.TrackingStation)
	}
	if f.BitErrorRate != 33 || f.DataRate != 1 || f.AlsepWord5 != 777 {
		t.Fatalf("pse fields = %d %d %d", f.BitErrorRate, f.DataRate, f.AlsepWord5)
	}
	if f.Sync != SyncCode || f.SyncComp != SyncCodeComplement || f.FrameCount != 89 || f.ModeBit != 1 {
		t.Fatalf("sync fields = %d %d %d %d", f.Sync, f.SyncComp, f.FrameCount, f.ModeBit)
	}
}

func TestDecodeFrameShortBlockPads(t *testing.T) {
	rec := pseRecord(12, PSEOld, 1)
	f := DecodeFrame(rec, []byte{0x80})
	if !f.SoftwareTime || f.MsecOfYear != 0 {
		t.Fatalf("DecodeFrame(short) = %+v", f)
	}
}

func TestDecodeWTNSeismicPackages(t *testing.T) {
	tests := []struct {
		name  string
		pkg   Package
		spz11 int32
		spz22 int32
		cv    int32
		lsm   bool
	}{
		{name: "apollo 12", pkg: PackageApollo12, spz11: 21, spz22: 43, cv: 21, lsm: true},
		{name: "apollo 15", pkg: PackageApollo15, spz11: 21, spz22: 43, cv: 21, lsm: true},
		{name: "apollo 14", pkg: PackageApollo14, spz11: 21, spz22: 43, cv: 1, lsm: false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := wtnRecord(tc.pkg)
			raw := RawFrame{Package: tc.pkg, Sync: SyncCode, Words: numberedWords(21)}
			f := DecodeFrame(rec, EncodeFrame(rec, raw))
			if f.Package != tc.pkg {
				t.Fatalf("Package = %d, want %d", f.Package, tc.pkg)
			}
			s := f.Seismic
			if s == nil {
				t.Fatalf("Seismic = nil")
			}
			if s.SPZ[1] != 1 || s.SPZ[2] != 3 || s.SPZ[3] != 5 || s.SPZ[31] != 61 {
				t.Fatalf("spz1..3,31 = %d %d %d %d", s.SPZ[1], s.SPZ[2], s.SPZ[3], s.SPZ[31])
			}
			if s.SPZ[11] != tc.spz11 {
				t.Fatalf("spz11 = %d, want %d", s.SPZ[11], tc.spz11)
			}
			if s.SPZ[22] != tc.spz22 {
				t.Fatalf("spz22 = %d, want %d", s.SPZ[22], tc.spz22)
			}
			if s.LPX[0] != 6 || s.LPY[0] != 8 || s.LPZ[0] != 10 {
				t.Fatalf("lp[0] = %d %d %d", s.LPX[0], s.LPY[0], s.LPZ[0])
			}
			if s.TidalX != 32 || s.TidalY != 34 {
				t.Fatalf("tidal = %d %d", s.TidalX, s.TidalY)
			}
			if s.Housekeeping != 30 || s.CommandVerify != tc.cv {
				t.Fatalf("hk/cv = %d/%d, want 30/%d", s.Housekeeping, s.CommandVerify, tc.cv)
			}
			if (f.Magnetometer != nil) != tc.lsm {
				t.Fatalf("Magnetometer present = %v, want %v", f.Magnetometer != nil, tc.lsm)
			}
			if tc.lsm {
				m := f.Magnetometer
				if m.Status != 2 || m.Samples != [6]int32{14, 16, 18, 46, 48, 50} {
					t.Fatalf("Magnetometer = %+v", m)
				}
			}
		})
	}
}

func TestDecodeWTNApollo14KeepsTransmittedSPZ22(t *testing.T) {
	rec := wtnRecord(PackageApollo14)
	raw := RawFrame{Package: PackageApollo14, Words: numberedWords(21)}
	f := DecodeFrame(rec, EncodeFrame(rec, raw))
	if f.Seismic.SPZ[22] != 43 {
		t.Fatalf("spz22 = %d, want transmitted word 43", f.Seismic.SPZ[22])
	}
}

func TestDecodeWTNGravimeter(t *testing.T) {
	rec := wtnRecord(PackageApollo17)
	raw := RawFrame{Package: PackageApollo17, Sync: SyncCode, Words: numberedWords(21)}
	f := DecodeFrame(rec, EncodeFrame(rec, raw))
	if f.Seismic != nil {
		t.Fatalf("Seismic = %+v, want nil for package 5", f.Seismic)
	}
	g := f.Gravimeter
	if g == nil {
		t.Fatalf("Gravimeter = nil")
	}
	if g.Seismic[0] != 510 || g.Seismic[1] != 508 || g.Seismic[2] != 506 || g.Seismic[30] != 450 {
		t.Fatalf("lsg = %d %d %d ... %d", g.Seismic[0], g.Seismic[1], g.Seismic[2], g.Seismic[30])
	}
	if g.Tide != 489 || g.Free != 487 || g.Temp != 485 {
		t.Fatalf("tide/free/temp = %d/%d/%d", g.Tide, g.Free, g.Temp)
	}
}

func TestDecodeWTHGeophone(t *testing.T) {
	rec := Record{Format: FormatWTH, TapeID: 4, Year: 1976, NumActive: 1}
	rec.ActiveStations[0] = uint32(PackageApollo17)
	want := &Geophone{}
	for i := 0; i < 20; i++ {
		if i == 0 {
			want.DP1[0], want.DP6[0], want.DP11[0], want.DP16[0] = 8, 16, 248, 128
			want.Status[0] = -1
			continue
		}
		want.DP1[i] = int32(2 * i)
		want.DP6[i] = int32(254 - 2*i)
		want.DP11[i] = int32(4 * i)
		want.DP16[i] = int32(100 + 2*i)
		want.Status[i] = int32(i % 4)
	}
	want.Status[19] = 3
	want.SubFrame = 1

	raw := RawFrame{Package: PackageApollo17, Sync: SyncCodeWTH, MsecOfYear: 240 * day, Geophone: want}
	b := EncodeFrame(rec, raw)
	if len(b) != WorkFrameSize {
		t.Fatalf("frame size = %d, want %d", len(b), WorkFrameSize)
	}
	f := DecodeFrame(rec, b)
	if f.Sync != SyncCodeWTH {
		t.Fatalf("Sync = %d, want %d", f.Sync, SyncCodeWTH)
	}
	if *f.Geophone != *want {
		t.Fatalf("Geophone = %+v, want %+v", *f.Geophone, *want)
	}
}

func TestWTHSubFrameFromLastStatus(t *testing.T) {
	rec := Record{Format: FormatWTH}
	for status, want := range []int32{-1, 2, 3, 1} {
		g := &Geophone{}
		g.Status[19] = int32(status)
		f := DecodeFrame(rec, EncodeFrame(rec, RawFrame{Geophone: g}))
		if f.Geophone.SubFrame != want {
			t.Fatalf("status %d: SubFrame = %d, want %d", status, f.Geophone.SubFrame, want)
		}
	}
}

func TestPSEFrameCount(t *testing.T) {
	tests := []struct {
		variant PSEVariant
		phys    uint32
		want    int
	}{
		{PSEOld, 1, 90},
		{PSEOld, 3, 270},
		{PSENew, 6, 540},
		{PSEOld, 6, 270},
	}
	for _, tc := range tests {
		rec := pseRecord(12, tc.variant, tc.phys)
		if got := PSEFrameCount(rec); got != tc.want {
			t.Fatalf("PSEFrameCount(%v, %d) = %d, want %d", tc.variant, tc.phys, got, tc.want)
		}
	}
}

func TestDecodeWTNSPZ11Interpolation(t *testing.T) {
	words := numberedWords(21)
	words[6].C = 1000
	tests := []struct {
		pkg  Package
		want int32
	}{
		{PackageApollo15, 21},
		{PackageApollo12, 1000},
	}
	for _, tc := range tests {
		rec := wtnRecord(tc.pkg)
		f := DecodeFrame(rec, EncodeFrame(rec, RawFrame{Package: tc.pkg, Words: words}))
		if got := f.Seismic.SPZ[11]; got != tc.want {
			t.Fatalf("package %d: spz11 = %d, want %d", tc.pkg, got, tc.want)
		}
	}
}
