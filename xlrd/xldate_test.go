package xlrd

import (
	"math"
	"math/rand"
	"testing"
)

const datemode = 0 // 1900-based

func TestXldateAsTuple(t *testing.T) {
	tests := []struct {
		xldate   float64
		datemode int
		want     DateTuple
	}{
		{2741., 0, DateTuple{1907, 7, 3, 0, 0, 0}},
		{38406., 0, DateTuple{2005, 2, 23, 0, 0, 0}},
		{32266., 0, DateTuple{1988, 5, 3, 0, 0, 0}},
		{0.273611, 0, DateTuple{0, 0, 0, 6, 34, 0}},
		{0.538889, 0, DateTuple{0, 0, 0, 12, 56, 0}},
		{0.741123, 0, DateTuple{0, 0, 0, 17, 47, 13}},
		{0, 0, DateTuple{}},
		{1, 1, DateTuple{1904, 1, 2, 0, 0, 0}},
		// rounds up to midnight of the next day
		{2741.9999999, 0, DateTuple{1907, 7, 4, 0, 0, 0}},
	}

	for _, tt := range tests {
		got, err := XldateAsTuple(tt.xldate, tt.datemode)
		if err != nil {
			t.Errorf("XldateAsTuple(%f, %d) error = %v", tt.xldate, tt.datemode, err)
			continue
		}
		if got != tt.want {
			t.Errorf("XldateAsTuple(%f, %d) = %v, want %v", tt.xldate, tt.datemode, got, tt.want)
		}
	}
}

func TestXldateAsTupleErrors(t *testing.T) {
	tests := []struct {
		name     string
		xldate   float64
		datemode int
		isKind   func(error) bool
	}{
		{"negative", -1, 0, ErrXLDateNegative.Is},
		{"leap year bug", 59, 0, ErrXLDateAmbiguous.Is},
		{"too large 1900", 2958466, 0, ErrXLDateTooLarge.Is},
		{"too large 1904", 2958466 - 1462, 1, ErrXLDateTooLarge.Is},
		{"bad datemode", 100, 2, ErrXLDateBadDatemode.Is},
	}

	for _, tt := range tests {
		_, err := XldateAsTuple(tt.xldate, tt.datemode)
		if err == nil || !tt.isKind(err) {
			t.Errorf("%s: XldateAsTuple(%f, %d) error = %v", tt.name, tt.xldate, tt.datemode, err)
			continue
		}
		if !IsDateRangeError(err) {
			t.Errorf("%s: IsDateRangeError(%v) = false", tt.name, err)
		}
	}
}

func TestXldateFromDateTuple(t *testing.T) {
	tests := []struct {
		year    int
		month   int
		day     int
		want    float64
		wantErr bool
	}{
		{1907, 7, 3, 2741., false},
		{2005, 2, 23, 38406., false},
		{1988, 5, 3, 32266., false},
		{0, 0, 0, 0, false},
		{1900, 2, 28, 0, true},
		{1999, 2, 29, 0, true},
		{2000, 13, 1, 0, true},
		{10000, 1, 1, 0, true},
	}

	for _, tt := range tests {
		got, err := XldateFromDateTuple(tt.year, tt.month, tt.day, datemode)
		if (err != nil) != tt.wantErr {
			t.Errorf("XldateFromDateTuple(%d, %d, %d, %d) error = %v, wantErr %v", tt.year, tt.month, tt.day, datemode, err, tt.wantErr)
			continue
		}
		if err == nil && math.Abs(got-tt.want) > 0.0001 {
			t.Errorf("XldateFromDateTuple(%d, %d, %d, %d) = %f, want %f", tt.year, tt.month, tt.day, datemode, got, tt.want)
		}
	}
}

func TestXldateFromTimeTuple(t *testing.T) {
	tests := []struct {
		hour    int
		minute  int
		second  int
		want    float64
		wantErr bool
	}{
		{6, 34, 0, 0.273611, false},
		{12, 56, 0, 0.538889, false},
		{17, 47, 13, 0.741123, false},
		{24, 0, 0, 0, true},
		{0, 60, 0, 0, true},
	}

	for _, tt := range tests {
		got, err := XldateFromTimeTuple(tt.hour, tt.minute, tt.second)
		if (err != nil) != tt.wantErr {
			t.Errorf("XldateFromTimeTuple(%d, %d, %d) error = %v, wantErr %v", tt.hour, tt.minute, tt.second, err, tt.wantErr)
			continue
		}
		if err == nil && math.Abs(got-tt.want) > 0.000001 {
			t.Errorf("XldateFromTimeTuple(%d, %d, %d) = %f, want %f", tt.hour, tt.minute, tt.second, got, tt.want)
		}
	}
}

func TestXldateFromDatetimeTuple(t *testing.T) {
	tests := []struct {
		year, month, day     int
		hour, minute, second int
		want                 float64
	}{
		{1907, 7, 3, 6, 34, 0, 2741.273611},
		{2005, 2, 23, 12, 56, 0, 38406.538889},
		{1988, 5, 3, 17, 47, 13, 32266.741123},
	}

	for _, tt := range tests {
		got, err := XldateFromDatetimeTuple(tt.year, tt.month, tt.day, tt.hour, tt.minute, tt.second, datemode)
		if err != nil {
			t.Errorf("XldateFromDatetimeTuple(%d, %d, %d, %d, %d, %d) error = %v",
				tt.year, tt.month, tt.day, tt.hour, tt.minute, tt.second, err)
			continue
		}
		if math.Abs(got-tt.want) > 0.000001 {
			t.Errorf("XldateFromDatetimeTuple(%d, %d, %d, %d, %d, %d) = %f, want %f",
				tt.year, tt.month, tt.day, tt.hour, tt.minute, tt.second, got, tt.want)
		}
	}
}

func TestXldateTupleRoundTrip(t *testing.T) {
	for _, mode := range []int{0, 1} {
		for _, tup := range []DateTuple{
			{2005, 2, 23, 12, 56, 0},
			{1988, 5, 3, 17, 47, 13},
			{0, 0, 0, 6, 34, 0},
		} {
			x, err := XldateFromTuple(tup, mode)
			if err != nil {
				t.Errorf("XldateFromTuple(%v, %d) error = %v", tup, mode, err)
				continue
			}
			back, err := XldateAsTuple(x, mode)
			if err != nil {
				t.Errorf("XldateAsTuple(%f, %d) error = %v", x, mode, err)
				continue
			}
			if back != tup {
				t.Errorf("round trip of %v in datemode %d gave %v", tup, mode, back)
			}
		}
	}
}

func TestXldateSerialRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	limits := []int{xldaysTooLarge1900, xldaysTooLarge1904}
	for mode, limit := range limits {
		for i := 0; i < 20000; i++ {
			days := rng.Intn(limit)
			if mode == 0 && days >= 1 && days < 61 {
				continue
			}
			x := float64(days) + float64(rng.Intn(86400))/86400.0

			tup, err := XldateAsTuple(x, mode)
			if err != nil {
				t.Fatalf("XldateAsTuple(%v, %d) error = %v", x, mode, err)
			}
			back, err := XldateFromTuple(tup, mode)
			if err != nil {
				t.Fatalf("XldateFromTuple(%v, %d) error = %v", tup, mode, err)
			}
			if math.Abs(back-x) > 1e-9 {
				t.Fatalf("serial %v in datemode %d came back as %v via %v", x, mode, back, tup)
			}
		}
	}
}
