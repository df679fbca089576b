package xlrd

import (
	"fmt"
	"math"
	"time"

	errors "gopkg.in/src-d/go-errors.v1"
)

var (
	jdnDelta = [2]int{2415080 - 61, 2416482 - 1}
)

const (
	xldaysTooLarge1900 = 2958466
	xldaysTooLarge1904 = 2958466 - 1462
)

var (
	epoch1904       = time.Date(1904, 1, 1, 0, 0, 0, 0, time.UTC)
	epoch1900       = time.Date(1899, 12, 31, 0, 0, 0, 0, time.UTC)
	epoch1900Minus1 = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)
)

var daysInMonth = [13]int{0, 31, 28, 31, 30, 31, 30, 31, 31, 30, 31, 30, 31}

// DateRangeError kinds. IsDateRangeError matches any of them.
var (
	ErrXLDateNegative    = errors.NewKind("xldate < 0.00: %v")
	ErrXLDateAmbiguous   = errors.NewKind("1900 leap-year problem: %v")
	ErrXLDateTooLarge    = errors.NewKind("xldate too large: %v")
	ErrXLDateBadDatemode = errors.NewKind("invalid datemode: %d")
	ErrXLDateBadTuple    = errors.NewKind("invalid tuple: %s")
)

// DateTuple is a Gregorian date and time of day. A time-only value has a
// zero Year, Month and Day.
type DateTuple struct {
	Year, Month, Day     int
	Hour, Minute, Second int
}

func (t DateTuple) String() string {
	return fmt.Sprintf("(%d, %d, %d, %d, %d, %d)", t.Year, t.Month, t.Day, t.Hour, t.Minute, t.Second)
}

// leap returns 1 if year is a leap year, 0 otherwise.
func leap(y int) int {
	if y%4 != 0 {
		return 0
	}
	if y%100 != 0 {
		return 1
	}
	if y%400 != 0 {
		return 0
	}
	return 1
}

// XldateAsTuple converts an Excel number (presumed to represent a date, a
// datetime or a time) into a DateTuple.
//
// datemode: 0: 1900-based, 1: 1904-based.
//
// If 0.0 <= xldate < 1.0 it is assumed to represent a time and the date
// fields are zero. The time is rounded to the nearest second; rounding up to
// a whole day carries into the date.
func XldateAsTuple(xldate float64, datemode int) (DateTuple, error) {
	if datemode != 0 && datemode != 1 {
		return DateTuple{}, ErrXLDateBadDatemode.New(datemode)
	}
	if xldate == 0.00 {
		return DateTuple{}, nil
	}
	if xldate < 0.00 {
		return DateTuple{}, ErrXLDateNegative.New(xldate)
	}
	xldays := int(xldate)
	frac := xldate - float64(xldays)
	seconds := int(math.Round(frac * 86400.0))

	var t DateTuple
	if seconds == 86400 {
		xldays++
	} else {
		minutes := seconds / 60
		t.Second = seconds % 60
		t.Hour = minutes / 60
		t.Minute = minutes % 60
	}

	xldaysTooLarge := xldaysTooLarge1900
	if datemode == 1 {
		xldaysTooLarge = xldaysTooLarge1904
	}
	if xldays >= xldaysTooLarge {
		return DateTuple{}, ErrXLDateTooLarge.New(xldate)
	}
	if xldays == 0 {
		return t, nil
	}
	if xldays < 61 && datemode == 0 {
		return DateTuple{}, ErrXLDateAmbiguous.New(xldate)
	}

	jdn := xldays + jdnDelta[datemode]
	yreg := ((((jdn*4+274277)/146097)*3/4)+jdn+1363)*4 + 3
	mp := ((yreg%1461)/4)*535 + 333
	t.Day = ((mp % 16384) / 535) + 1
	mp >>= 14
	if mp >= 10 {
		t.Year, t.Month = (yreg/1461)-4715, mp-9
	} else {
		t.Year, t.Month = (yreg/1461)-4716, mp+3
	}
	return t, nil
}

// XldateAsDatetime converts an Excel number (presumed to represent a date, a datetime or a time)
// into a time.Time value.
//
// xldate: The Excel number
// datemode: 0: 1900-based, 1: 1904-based.
//
// Returns: time.Time value.
func XldateAsDatetime(xldate float64, datemode int) (time.Time, error) {
	if datemode != 0 && datemode != 1 {
		return time.Time{}, ErrXLDateBadDatemode.New(datemode)
	}
	if xldate < 0 {
		return time.Time{}, ErrXLDateNegative.New(xldate)
	}
	var epoch time.Time
	if datemode == 1 {
		epoch = epoch1904
	} else {
		if xldate < 60 {
			epoch = epoch1900
		} else {
			// Workaround Excel 1900 leap year bug by adjusting the epoch.
			epoch = epoch1900Minus1
		}
	}

	days := int(xldate)
	fraction := xldate - float64(days)

	// Get the integer and decimal seconds in Excel's millisecond resolution.
	seconds := int(math.Round(fraction * 86400000.0))
	secs := seconds / 1000
	milliseconds := seconds % 1000

	return epoch.AddDate(0, 0, days).Add(time.Duration(secs)*time.Second + time.Duration(milliseconds)*time.Millisecond), nil
}

// XldateFromDateTuple converts a date tuple to an Excel date number.
func XldateFromDateTuple(year, month, day int, datemode int) (float64, error) {
	if datemode != 0 && datemode != 1 {
		return 0.0, ErrXLDateBadDatemode.New(datemode)
	}

	if year == 0 && month == 0 && day == 0 {
		return 0.00, nil
	}

	if year < 1900 || year > 9999 {
		return 0.0, ErrXLDateBadTuple.New(fmt.Sprintf("year out of range (%d, %d, %d)", year, month, day))
	}
	if month < 1 || month > 12 {
		return 0.0, ErrXLDateBadTuple.New(fmt.Sprintf("month out of range (%d, %d, %d)", year, month, day))
	}
	maxDay := daysInMonth[month]
	if month == 2 && leap(year) == 1 {
		maxDay = 29
	}
	if day < 1 || day > maxDay {
		return 0.0, ErrXLDateBadTuple.New(fmt.Sprintf("day out of range (%d, %d, %d)", year, month, day))
	}

	Yp := year + 4716
	M := month
	var Mp int
	if M <= 2 {
		Yp = Yp - 1
		Mp = M + 9
	} else {
		Mp = M - 3
	}
	jdn := (1461*Yp/4) + ((979*Mp+16)/32) + day - 1364 - (((Yp+184)/100)*3/4)
	xldays := jdn - jdnDelta[datemode]
	if xldays <= 0 {
		return 0.0, ErrXLDateBadTuple.New(fmt.Sprintf("date before epoch (%d, %d, %d)", year, month, day))
	}
	if xldays < 61 && datemode == 0 {
		return 0.0, ErrXLDateAmbiguous.New(fmt.Sprintf("before 1900-03-01 (%d, %d, %d)", year, month, day))
	}
	return float64(xldays), nil
}

// XldateFromTimeTuple converts a time tuple to an Excel date number.
func XldateFromTimeTuple(hour, minute, second int) (float64, error) {
	if hour < 0 || hour >= 24 || minute < 0 || minute >= 60 || second < 0 || second >= 60 {
		return 0.0, ErrXLDateBadTuple.New(fmt.Sprintf("time out of range (%d, %d, %d)", hour, minute, second))
	}
	return ((float64(second)/60.0 + float64(minute)) / 60.0 + float64(hour)) / 24.0, nil
}

// XldateFromDatetimeTuple converts a datetime tuple to an Excel date number.
func XldateFromDatetimeTuple(year, month, day, hour, minute, second int, datemode int) (float64, error) {
	datePart, err := XldateFromDateTuple(year, month, day, datemode)
	if err != nil {
		return 0.0, err
	}
	timePart, err := XldateFromTimeTuple(hour, minute, second)
	if err != nil {
		return 0.0, err
	}
	return datePart + timePart, nil
}

// XldateFromTuple is the inverse of XldateAsTuple. A tuple with a zero date
// converts to a pure time value.
func XldateFromTuple(t DateTuple, datemode int) (float64, error) {
	if t.Year == 0 && t.Month == 0 && t.Day == 0 {
		if datemode != 0 && datemode != 1 {
			return 0.0, ErrXLDateBadDatemode.New(datemode)
		}
		return XldateFromTimeTuple(t.Hour, t.Minute, t.Second)
	}
	return XldateFromDatetimeTuple(t.Year, t.Month, t.Day, t.Hour, t.Minute, t.Second, datemode)
}
