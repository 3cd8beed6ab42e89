package value

import "time"

// Spreadsheet serial dates. In the 1900 system serial 1 is 1900-01-01 and
// serial 60 is the phantom 1900-02-29 that never existed; dates on or after
// 1900-03-01 are offset by one day to compensate. Time of day is stored as a
// fractional day. The 1904 system counts days from 1904-01-01 with no
// phantom day.

// DateSystem selects which serial date epoch a workbook uses.
type DateSystem uint8

const (
	DateSystem1900 DateSystem = iota
	DateSystem1904
)

func (d DateSystem) String() string {
	if d == DateSystem1904 {
		return "1904"
	}
	return "1900"
}

// ParseDateSystem accepts the manifest spellings "1900" and "1904".
func ParseDateSystem(s string) (DateSystem, bool) {
	switch s {
	case "", "1900":
		return DateSystem1900, true
	case "1904":
		return DateSystem1904, true
	}
	return DateSystem1900, false
}

var (
	epoch1900    = time.Date(1899, time.December, 31, 0, 0, 0, 0, time.UTC)
	epoch1904    = time.Date(1904, time.January, 1, 0, 0, 0, 0, time.UTC)
	march1900    = time.Date(1900, time.March, 1, 0, 0, 0, 0, time.UTC)
	secondsInDay = 86400.0
)

// SerialFromTime converts a wall-clock time to a spreadsheet serial number.
// The time's own location is used for the date and time-of-day components.
func SerialFromTime(t time.Time, ds DateSystem) float64 {
	date := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	secs := float64(t.Hour()*3600 + t.Minute()*60 + t.Second())

	if ds == DateSystem1904 {
		days := int64(date.Sub(epoch1904).Hours() / 24)
		return float64(days) + secs/secondsInDay
	}

	days := int64(date.Sub(epoch1900).Hours() / 24)
	if !date.Before(march1900) {
		days++ // account for the phantom 1900-02-29
	}
	return float64(days) + secs/secondsInDay
}

// TimeFromSerial converts a serial number back to a time in UTC.
func TimeFromSerial(serial float64, ds DateSystem) time.Time {
	days := int64(serial)
	frac := serial - float64(days)
	secs := int(frac*secondsInDay + 0.5)

	var date time.Time
	if ds == DateSystem1904 {
		date = epoch1904.AddDate(0, 0, int(days))
	} else if days == 60 {
		// the phantom day maps to the real 1900-02-28
		date = time.Date(1900, time.February, 28, 0, 0, 0, 0, time.UTC)
	} else {
		offset := days
		if days > 60 {
			offset--
		}
		date = epoch1900.AddDate(0, 0, int(offset))
	}
	return date.Add(time.Duration(secs) * time.Second)
}
