package interval

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDayKey(t *testing.T) {
	moscow := time.FixedZone("MSK", 3*60*60)

	t.Run("IgnoresTimeOfDay", func(t *testing.T) {
		a := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
		b := time.Date(2024, 1, 10, 23, 59, 59, 999, time.UTC)
		assert.Equal(t, "2024-01-10", DayKey(a))
		assert.Equal(t, DayKey(a), DayKey(b))
		assert.Equal(t, DayNumber(a), DayNumber(b))
	})

	t.Run("NormalizesToUTC", func(t *testing.T) {
		local := time.Date(2024, 1, 11, 1, 0, 0, 0, moscow)
		assert.Equal(t, "2024-01-10", DayKey(local))
		assert.Equal(t, time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC), Day(local))
	})

	t.Run("DayNumberRoundTrip", func(t *testing.T) {
		d := time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC)
		assert.Equal(t, d, FromDayNumber(DayNumber(d)))
		assert.Equal(t, 1, DayNumber(d.AddDate(0, 0, 1))-DayNumber(d))
	})
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2024-01-15")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), d)

	d, err = ParseDate("2024-01-15T18:30:00Z")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), d)

	_, err = ParseDate("15.01.2024")
	assert.ErrorIs(t, err, ErrInvalidDate)
}

func TestNights(t *testing.T) {
	jan := func(d int) time.Time { return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC) }

	stay := OccupiedNights(jan(10), jan(15))
	assert.Equal(t, 5, stay.Count())
	assert.True(t, stay.Contains(DayNumber(jan(10))))
	assert.True(t, stay.Contains(DayNumber(jan(14))))
	assert.False(t, stay.Contains(DayNumber(jan(15))), "checkout day is free")

	assert.False(t, stay.Overlaps(OccupiedNights(jan(15), jan(18))))
	assert.False(t, stay.Overlaps(OccupiedNights(jan(5), jan(10))))
	assert.True(t, stay.Overlaps(OccupiedNights(jan(14), jan(16))))
	assert.True(t, stay.Overlaps(OccupiedNights(jan(11), jan(12))))
	assert.False(t, stay.Overlaps(OccupiedNights(jan(12), jan(12))), "empty range never overlaps")

	days := stay.Days()
	require.Len(t, days, 5)
	assert.Equal(t, jan(10), days[0])
	assert.Equal(t, jan(14), days[4])

	assert.Equal(t, 0, OccupiedNights(jan(15), jan(10)).Count())
}

func TestHourOverlap(t *testing.T) {
	tests := []struct {
		name string
		a, b HourRange
		want bool
	}{
		{"disjoint", HourRange{9, 12}, HourRange{13, 16}, false},
		{"touching", HourRange{9, 12}, HourRange{12, 15}, false},
		{"nested", HourRange{9, 18}, HourRange{12, 15}, true},
		{"partial", HourRange{9, 13}, HourRange{12, 15}, true},
		{"identical", HourRange{10, 14}, HourRange{10, 14}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.a.Overlaps(tt.b))
			assert.Equal(t, tt.want, tt.b.Overlaps(tt.a))
		})
	}

	booked := HourRange{10, 14}
	assert.Equal(t, HourRange{14, 15}, booked.CleaningBlock(1))
	assert.Equal(t, HourRange{10, 15}, booked.WithBuffer(1))
	assert.True(t, booked.CleaningBlock(1).Contains(14))
	assert.Equal(t, "10:00-14:00", booked.String())
}

func TestParseHour(t *testing.T) {
	for in, want := range map[string]int{"09:00": 9, "9": 9, "00:00": 0, "23:00": 23, " 14:00 ": 14} {
		got, err := ParseHour(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	for _, in := range []string{"", "ab:00", "09:30", "25:00", "-1:00", "10:xx"} {
		_, err := ParseHour(in)
		assert.ErrorIs(t, err, ErrInvalidHour, in)
	}

	assert.Equal(t, "09:00", FormatHour(9))
}
