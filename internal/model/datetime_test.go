package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDate(t *testing.T) {
	t.Run("parse and format round trip", func(t *testing.T) {
		d, err := ParseDate("2026-09-07")
		require.NoError(t, err)
		assert.Equal(t, "2026-09-07", d.String())
		assert.Equal(t, time.Monday, d.Weekday())
	})

	t.Run("rejects malformed input", func(t *testing.T) {
		_, err := ParseDate("07/09/2026")
		assert.Error(t, err)
		_, err = ParseDate("2026-13-40")
		assert.Error(t, err)
	})

	t.Run("add days crosses month boundary", func(t *testing.T) {
		d, err := ParseDate("2026-08-30")
		require.NoError(t, err)
		assert.Equal(t, "2026-09-02", d.AddDays(3).String())
	})

	t.Run("comparisons", func(t *testing.T) {
		a, _ := ParseDate("2026-09-07")
		b, _ := ParseDate("2026-09-08")
		assert.True(t, a.Before(b))
		assert.True(t, b.After(a))
		assert.True(t, a.Equal(a))
		assert.Equal(t, 1, a.DaysUntil(b))
	})

	t.Run("JSON round trip", func(t *testing.T) {
		d, _ := ParseDate("2026-09-07")
		data, err := json.Marshal(d)
		require.NoError(t, err)
		assert.Equal(t, `"2026-09-07"`, string(data))

		var decoded Date
		require.NoError(t, json.Unmarshal(data, &decoded))
		assert.True(t, d.Equal(decoded))
	})

	t.Run("scan from driver types", func(t *testing.T) {
		var d Date
		require.NoError(t, d.Scan(time.Date(2026, 9, 7, 13, 45, 0, 0, time.UTC)))
		assert.Equal(t, "2026-09-07", d.String())

		require.NoError(t, d.Scan([]byte("2026-09-08")))
		assert.Equal(t, "2026-09-08", d.String())

		assert.Error(t, d.Scan(42))
	})

	t.Run("At produces the slot start instant", func(t *testing.T) {
		d, _ := ParseDate("2026-09-07")
		at := d.At(NewTimeOfDay(14, 30))
		assert.Equal(t, 14, at.Hour())
		assert.Equal(t, 30, at.Minute())
		assert.Equal(t, 7, at.Day())
	})
}

func TestTimeOfDay(t *testing.T) {
	t.Run("parse minutes", func(t *testing.T) {
		tod, err := ParseTimeOfDay("09:30")
		require.NoError(t, err)
		assert.Equal(t, 9, tod.Hour())
		assert.Equal(t, 30, tod.Minute())
		assert.Equal(t, "09:30", tod.String())
	})

	t.Run("parse with seconds discards them", func(t *testing.T) {
		tod, err := ParseTimeOfDay("09:30:45")
		require.NoError(t, err)
		assert.Equal(t, "09:30", tod.String())
	})

	t.Run("rejects malformed input", func(t *testing.T) {
		_, err := ParseTimeOfDay("9am")
		assert.Error(t, err)
		_, err = ParseTimeOfDay("25:00")
		assert.Error(t, err)
	})

	t.Run("add keeps minute arithmetic", func(t *testing.T) {
		tod := NewTimeOfDay(9, 45)
		assert.Equal(t, "10:15", tod.Add(30).String())
	})

	t.Run("valid range", func(t *testing.T) {
		assert.True(t, NewTimeOfDay(0, 0).Valid())
		assert.True(t, NewTimeOfDay(23, 59).Valid())
		assert.False(t, NewTimeOfDay(24, 0).Valid())
		assert.False(t, TimeOfDay(-1).Valid())
	})

	t.Run("database value uses seconds precision", func(t *testing.T) {
		v, err := NewTimeOfDay(9, 5).Value()
		require.NoError(t, err)
		assert.Equal(t, "09:05:00", v)
	})

	t.Run("scan from driver types", func(t *testing.T) {
		var tod TimeOfDay
		require.NoError(t, tod.Scan("14:30:00"))
		assert.Equal(t, "14:30", tod.String())

		require.NoError(t, tod.Scan(time.Date(0, 1, 1, 8, 15, 0, 0, time.UTC)))
		assert.Equal(t, "08:15", tod.String())

		assert.Error(t, tod.Scan(3.14))
	})

	t.Run("JSON round trip", func(t *testing.T) {
		tod := NewTimeOfDay(16, 0)
		data, err := json.Marshal(tod)
		require.NoError(t, err)
		assert.Equal(t, `"16:00"`, string(data))

		var decoded TimeOfDay
		require.NoError(t, json.Unmarshal(data, &decoded))
		assert.Equal(t, tod, decoded)
	})
}
