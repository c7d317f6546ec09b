package alsep

import "testing"

func TestDateString(t *testing.T) {
	tests := []struct {
		year int
		doy  int
		want string
		ok   bool
	}{
		{1972, 60, "1972-02-29", true},
		{1973, 60, "1973-03-01", true},
		{1972, 366, "1972-12-31", true},
		{1972, 367, "", false},
		{1969, 365, "1969-12-31", true},
		{1969, 366, "", false},
		{1976, 1, "1976-01-01", true},
		{1976, 0, "", false},
	}
	for _, tc := range tests {
		got, ok := DateString(tc.year, tc.doy)
		if ok != tc.ok || got != tc.want {
			t.Fatalf("DateString(%d, %d) = %q, %v, want %q, %v", tc.year, tc.doy, got, ok, tc.want, tc.ok)
		}
	}
}

func TestSplitMsecOfYear(t *testing.T) {
	msec := int64(100*86400000 + 13*3600000 + 5*60000 + 7*1000 + 250)
	got := SplitMsecOfYear(msec)
	want := DayTime{DOY: 100, Hour: 13, Minute: 5, Second: 7, Milli: 250}
	if got != want {
		t.Fatalf("SplitMsecOfYear = %+v, want %+v", got, want)
	}
}

func TestTimestamp(t *testing.T) {
	msec := int64(60*86400000 + 3600000 + 999)
	tests := []struct {
		name   string
		offset int64
		want   string
	}{
		{name: "no offset", offset: 0, want: "1972-02-29 01:00:00.999000"},
		{name: "sub millisecond", offset: 377, want: "1972-02-29 01:00:00.999377"},
		{name: "carries into next second", offset: 1500, want: "1972-02-29 01:00:01.000500"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := Timestamp(1972, msec, tc.offset)
			if !ok {
				t.Fatalf("Timestamp reported invalid date")
			}
			if got != tc.want {
				t.Fatalf("Timestamp = %q, want %q", got, tc.want)
			}
		})
	}
	if _, ok := Timestamp(1973, 366*86400000, 0); ok {
		t.Fatalf("Timestamp accepted day 366 of 1973")
	}
}

func TestCopyTime(t *testing.T) {
	if got := CopyTime(1973, 100*86400000+1234); got != "1973.100 00:00:01.234" {
		t.Fatalf("CopyTime = %q", got)
	}
	if got := CopyTime(1973, 500); got != `\N` {
		t.Fatalf("CopyTime day 0 = %q, want null marker", got)
	}
}

func TestInterpolate(t *testing.T) {
	tests := []struct {
		x    [4]int32
		want int32
	}{
		{[4]int32{10, 20, 30, 40}, 25},
		{[4]int32{1, 2, 3, 4}, 3},
		{[4]int32{0, 0, 0, 0}, 0},
		{[4]int32{512, 512, 512, 512}, 512},
	}
	for _, tc := range tests {
		if got := Interpolate(tc.x[0], tc.x[1], tc.x[2], tc.x[3]); got != tc.want {
			t.Fatalf("Interpolate(%v) = %d, want %d", tc.x, got, tc.want)
		}
	}
}
