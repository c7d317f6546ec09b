package alsep

// dayRange is an inclusive span of (year, day-of-year) positions.
type dayRange struct {
	fromYear, fromDOY int
	toYear, toDOY     int
}

func (r dayRange) contains(year, doy int) bool {
	if year < r.fromYear || year > r.toYear {
		return false
	}
	if year == r.fromYear && doy < r.fromDOY {
		return false
	}
	if year == r.toYear && doy > r.toDOY {
		return false
	}
	return true
}

// missionWindows lists the operational periods per Apollo station. Stations
// missing from the table are not restricted beyond the calendar check.
var missionWindows = map[int][]dayRange{
	11: {{1969, 202, 1969, 214}, {1969, 231, 1969, 237}},
	12: {{1969, 323, 1977, 273}},
	14: {{1971, 36, 1977, 273}},
	15: {{1971, 212, 1977, 273}},
	16: {{1972, 112, 1977, 273}},
	17: {{1976, 61, 1977, 273}},
}

// lspeWindow is the period during which the listening mode of the Apollo 17
// lunar seismic profiling experiment produced WTH data.
var lspeWindow = dayRange{1976, 228, 1977, 115}

func daysInTapeYear(year int) int {
	switch {
	case year == 1972 || year == 1976:
		return 366
	case year >= 1969 && year <= 1977:
		return 365
	}
	return 0
}

// ValidDate reports whether msec falls on a real day of year and inside the
// station's mission window.
func ValidDate(station, year int, msec int64) bool {
	doy := SplitMsecOfYear(msec).DOY
	if doy < 1 || doy > daysInTapeYear(year) {
		return false
	}
	windows, ok := missionWindows[station]
	if !ok {
		return true
	}
	for _, w := range windows {
		if w.contains(year, doy) {
			return true
		}
	}
	return false
}

// InLSPEWindow reports whether a WTH frame time lies in the listening mode
// period.
func InLSPEWindow(year int, msec int64) bool {
	return lspeWindow.contains(year, SplitMsecOfYear(msec).DOY)
}

var pseStations = map[int]bool{11: true, 12: true, 14: true, 15: true, 16: true}

// ValidateRecord checks a decoded header. It never fails; every failed check
// sets its bit in the returned mask.
func ValidateRecord(rec Record) ErrorMask {
	var mask ErrorMask
	switch rec.Format {
	case FormatPSE:
		if rec.TapeID != 1 && rec.TapeID != 2 {
			mask |= MaskInvalidFormat
		}
		if !pseStations[rec.Station] {
			mask |= MaskInvalidStation
		}
		if rec.Year < 1969 || rec.Year > 1977 {
			mask |= MaskInvalidDatetime
		}
		maxPhys := uint32(6)
		switch rec.Variant {
		case PSEOld:
			maxPhys = 3
		case PSENew:
		default:
			mask |= MaskInvalidFormat
		}
		if rec.PhysRecords < 1 || rec.PhysRecords > maxPhys {
			mask |= MaskInvalidFormat
		}
	case FormatWTN:
		if rec.TapeID != workTapeIDNormal {
			mask |= MaskInvalidFormat
		}
		if rec.NumActive < 1 || rec.NumActive > 5 {
			mask |= MaskInvalidFormat
		} else {
			for i := 0; i < int(rec.NumActive); i++ {
				if !Package(rec.ActiveStations[i]).Valid() {
					mask |= MaskInvalidStation
				}
			}
		}
		if rec.Year != 1976 && rec.Year != 1977 {
			mask |= MaskInvalidDatetime
		}
	case FormatWTH:
		if rec.TapeID != workTapeIDHigh {
			mask |= MaskInvalidFormat
		}
		if rec.NumActive != 1 {
			mask |= MaskInvalidFormat
		}
		if Package(rec.ActiveStations[0]) != PackageApollo17 {
			mask |= MaskInvalidStation
		}
		if rec.Year != 1976 && rec.Year != 1977 {
			mask |= MaskInvalidDatetime
		}
	default:
		mask |= MaskInvalidFormat
	}
	return mask
}

// ValidateFrame runs the per-frame checks. Frames without a predecessor skip
// the interval and sequence checks since they have nothing to compare with.
func ValidateFrame(rec Record, f Frame) ErrorMask {
	var mask ErrorMask
	switch rec.Format {
	case FormatPSE:
		if !ValidDate(rec.Station, rec.Year, f.MsecOfYear) {
			mask |= MaskInvalidDatetime
		}
		if f.Seismic != nil && f.Seismic.Housekeeping > 255 {
			mask |= MaskInvalidValue
		}
		if f.FrameCount >= FramesPerPhysRecord {
			mask |= MaskInvalidFrameCounter
		}
		if f.Sync != SyncCode {
			mask |= MaskInvalidSync
		}
		mask |= intervalMask(rec.Format, f)
		mask |= sequenceMask(f)
	case FormatWTN:
		if !f.Package.Valid() {
			mask |= MaskInvalidStation
		}
		if !ValidDate(f.Package.Station(), rec.Year, f.MsecOfYear) {
			mask |= MaskInvalidDatetime
		}
		if f.FrameCount >= FramesPerPhysRecord {
			mask |= MaskInvalidFormat
		}
		if f.Sync != SyncCode {
			mask |= MaskInvalidSync
		}
		mask |= intervalMask(rec.Format, f)
		mask |= sequenceMask(f)
	case FormatWTH:
		if f.MsecOfYear == 0 {
			mask |= MaskInvalidDatetime
		}
		if f.Package != PackageApollo17 {
			mask |= MaskInvalidStation
		}
		if f.Sync != SyncCodeWTH {
			mask |= MaskInvalidSync
		}
		mask |= intervalMask(rec.Format, f)
	default:
		mask |= MaskInvalidFormat
	}
	return mask
}

func intervalMask(format Format, f Frame) ErrorMask {
	if f.Prev == nil {
		return 0
	}
	delta := f.TimeDiff - format.NominalPeriodMs()
	if delta < 0 {
		delta = -delta
	}
	switch {
	case delta > LargeTimeThresholdMs:
		return MaskLargeTimeError
	case delta > SmallTimeThresholdMs:
		return MaskSmallTimeError
	}
	return 0
}

func sequenceMask(f Frame) ErrorMask {
	if f.Prev == nil {
		return 0
	}
	// The counter runs 0..89; 89 -> 0 is the only wrap.
	if f.FrameCount == (f.Prev.FrameCount+1)%FramesPerPhysRecord {
		return 0
	}
	return MaskFrameSequence
}
