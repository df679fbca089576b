package xlrd

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const (
	layoutDate     = "2006-01-02"
	layoutDateTime = "2006-01-02T15:04:05.000"
)

// Serial numbers and the dates Excel displays for them.
var serialDates = []struct {
	datemode int
	layout   string
	serial   float64
	want     string
}{
	// day 0 is the last day of 1899
	{0, layoutDateTime, 0, "1899-12-31T00:00:00.000"},
	{0, layoutDateTime, 59.09111094906, "1900-02-28T02:11:11.986"},
	// 1900-02-29 does not exist, serial 60 is skipped
	{0, layoutDateTime, 61.24078782403, "1900-03-01T05:46:44.068"},
	{0, layoutDateTime, 30188.010650613425, "1982-08-25T00:15:20.213"},
	{0, layoutDateTime, 60376.011670023145, "2065-04-19T00:16:48.290"},
	{0, layoutDateTime, 483014.13065105322, "3222-06-11T03:08:08.251"},
	{0, layoutDateTime, 1479232.5416002662, "5949-12-30T12:59:54.263"},
	{0, layoutDateTime, 2958465.999988426, "9999-12-31T23:59:59.000"},

	{0, layoutDate, 1, "1900-01-01"},
	{0, layoutDate, 1001, "1902-09-27"},
	{0, layoutDate, 36525, "1999-12-31"},
	{0, layoutDate, 36526, "2000-01-01"},
	{0, layoutDate, 767376, "4000-12-31"},
	{0, layoutDate, 2958101, "9999-01-01"},

	{1, layoutDate, 0, "1904-01-01"},
	{1, layoutDate, 243, "1904-08-31"},
	{1, layoutDate, 34757, "1999-02-28"},
	{1, layoutDate, 35064, "2000-01-01"},
	{1, layoutDate, 181526, "2400-12-31"},
	{1, layoutDate, 2957003, "9999-12-31"},

	// time only, fractions of day 0
	{0, layoutDateTime, 1.0650613425925924e-2, "1899-12-31T00:15:20.213"},
	{0, layoutDateTime, 0.2059698148148148, "1899-12-31T04:56:35.792"},
	{0, layoutDateTime, 0.50681252314814818, "1899-12-31T12:09:48.602"},
	{0, layoutDateTime, 0.80167445601851861, "1899-12-31T19:14:24.673"},
	{0, layoutDateTime, 0.99999998842592586, "1899-12-31T23:59:59.999"},
}

func TestXldateAsDatetime(t *testing.T) {
	for _, tc := range serialDates {
		t.Run(fmt.Sprintf("%d/%v", tc.datemode, tc.serial), func(t *testing.T) {
			want, err := time.Parse(tc.layout, tc.want)
			require.NoError(t, err)

			got, err := XldateAsDatetime(tc.serial, tc.datemode)
			require.NoError(t, err)
			if tc.layout == layoutDate {
				got = got.Truncate(24 * time.Hour)
			}
			require.WithinDuration(t, want, got, time.Millisecond)
		})
	}
}

func TestXldateAsDatetimeErrors(t *testing.T) {
	_, err := XldateAsDatetime(1, 2)
	require.True(t, ErrXLDateBadDatemode.Is(err), "%v", err)

	_, err = XldateAsDatetime(-0.5, 0)
	require.True(t, ErrXLDateNegative.Is(err), "%v", err)
}
