package alsep

import "fmt"

// DayTime is a millisecond-of-year count split into calendar parts.
type DayTime struct {
	DOY    int
	Hour   int
	Minute int
	Second int
	Milli  int
}

// SplitMsecOfYear converts milliseconds since the start of the year. The day
// count is one-based by convention of the recorder, so the result is passed
// through unchanged.
func SplitMsecOfYear(msec int64) DayTime {
	sec := msec / 1000
	return DayTime{
		DOY:    int(sec / 86400),
		Hour:   int(sec % 86400 / 3600),
		Minute: int(sec % 3600 / 60),
		Second: int(sec % 60),
		Milli:  int(msec % 1000),
	}
}

func isLeapTapeYear(year int) bool {
	return year == 1972 || year == 1976
}

var monthDays = [12]int{31, 28, 31, 30, 31, 30, 31, 31, 30, 31, 30, 31}

// MonthDay resolves a day of year. February has 29 days only in 1972 and
// 1976, the two leap years the tapes span.
func MonthDay(year, doy int) (month, day int, ok bool) {
	if doy < 1 {
		return 0, 0, false
	}
	d := doy
	for m := 0; m < 12; m++ {
		n := monthDays[m]
		if m == 1 && isLeapTapeYear(year) {
			n = 29
		}
		if d <= n {
			return m + 1, d, true
		}
		d -= n
	}
	return 0, 0, false
}

// DateString formats year and day of year as "YYYY-MM-DD".
func DateString(year, doy int) (string, bool) {
	month, day, ok := MonthDay(year, doy)
	if !ok {
		return "", false
	}
	return fmt.Sprintf("%04d-%02d-%02d", year, month, day), true
}

// Timestamp renders "YYYY-MM-DD hh:mm:ss.uuuuuu" for msec plus a sub-frame
// offset in microseconds. Offsets that carry past a second roll into the
// next second.
func Timestamp(year int, msec int64, offsetUs int64) (string, bool) {
	total := msec*1000 + offsetUs
	dt := SplitMsecOfYear(total / 1000)
	date, ok := DateString(year, dt.DOY)
	if !ok {
		return "", false
	}
	return fmt.Sprintf("%s %02d:%02d:%02d.%06d", date, dt.Hour, dt.Minute, dt.Second, total%1000000), true
}

// CopyTime renders "YYYY.DDD hh:mm:ss.mmm" for database loading, or the
// COPY null marker when the day of year is out of range.
func CopyTime(year int, msec int64) string {
	dt := SplitMsecOfYear(msec)
	if dt.DOY < 1 || dt.DOY > 366 {
		return `\N`
	}
	return fmt.Sprintf("%04d.%03d %02d:%02d:%02d.%03d", year, dt.DOY, dt.Hour, dt.Minute, dt.Second, dt.Milli)
}

// Interpolate estimates a missing sample from two neighbours on each side:
// ((x2+x3)*4 - (x1+x4) + 3) / 6 with integer division.
func Interpolate(x1, x2, x3, x4 int32) int32 {
	return ((x2+x3)*4 - (x1 + x4) + 3) / 6
}
