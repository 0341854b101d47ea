package availability

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/telehealth-api/internal/model"
)

func weekdayTemplate(t *testing.T) *model.WeeklyTemplate {
	t.Helper()
	return &model.WeeklyTemplate{
		DoctorID: uuid.New(),
		Days: model.DayWindows{
			model.Monday: {Start: mustTime(t, "09:00"), End: mustTime(t, "17:00"), Available: true},
			model.Friday: {Available: false},
		},
		SlotDurationMinutes: 30,
	}
}

// 2026-09-07 is a Monday, 2026-09-11 a Friday, 2026-09-12 a Saturday.
func mustDate(t *testing.T, s string) model.Date {
	t.Helper()
	d, err := model.ParseDate(s)
	require.NoError(t, err)
	return d
}

func TestResolve(t *testing.T) {
	tmpl := weekdayTemplate(t)

	t.Run("template alone opens the day", func(t *testing.T) {
		day := Resolve(tmpl, nil, mustDate(t, "2026-09-07"))

		require.True(t, day.Open)
		assert.Equal(t, "09:00", day.Start.String())
		assert.Equal(t, "17:00", day.End.String())
		assert.Empty(t, day.Exclusions)
	})

	t.Run("weekday absent from template is closed", func(t *testing.T) {
		day := Resolve(tmpl, nil, mustDate(t, "2026-09-12"))
		assert.False(t, day.Open)
	})

	t.Run("weekday marked unavailable is closed", func(t *testing.T) {
		day := Resolve(tmpl, nil, mustDate(t, "2026-09-11"))
		assert.False(t, day.Open)
	})

	t.Run("no template and no override", func(t *testing.T) {
		day := Resolve(nil, nil, mustDate(t, "2026-09-07"))
		assert.False(t, day.Open)
	})

	t.Run("unavailable override closes an open weekday", func(t *testing.T) {
		override := &model.DailyOverride{
			Date:      mustDate(t, "2026-09-07"),
			Available: false,
			Reason:    "conference",
		}
		day := Resolve(tmpl, override, override.Date)
		assert.False(t, day.Open)
	})

	t.Run("override window replaces template window", func(t *testing.T) {
		start, end := mustTime(t, "12:00"), mustTime(t, "15:00")
		override := &model.DailyOverride{
			Date:      mustDate(t, "2026-09-07"),
			Available: true,
			Start:     &start,
			End:       &end,
		}
		day := Resolve(tmpl, override, override.Date)

		require.True(t, day.Open)
		assert.Equal(t, "12:00", day.Start.String())
		assert.Equal(t, "15:00", day.End.String())
	})

	t.Run("override without window inherits template window", func(t *testing.T) {
		override := &model.DailyOverride{
			Date:      mustDate(t, "2026-09-07"),
			Available: true,
			BlockTimes: model.BlockTimeSlots{
				{Start: mustTime(t, "12:00"), End: mustTime(t, "13:00"), Reason: model.BlockReasonLunch},
			},
		}
		day := Resolve(tmpl, override, override.Date)

		require.True(t, day.Open)
		assert.Equal(t, "09:00", day.Start.String())
		assert.Equal(t, "17:00", day.End.String())
		require.Len(t, day.Exclusions, 1)
		assert.Equal(t, model.BlockReasonLunch, day.Exclusions[0].Reason)
	})

	t.Run("available override can open a closed weekday", func(t *testing.T) {
		start, end := mustTime(t, "10:00"), mustTime(t, "14:00")
		override := &model.DailyOverride{
			Date:      mustDate(t, "2026-09-12"),
			Available: true,
			Start:     &start,
			End:       &end,
		}
		day := Resolve(tmpl, override, override.Date)

		require.True(t, day.Open)
		assert.Equal(t, "10:00", day.Start.String())
	})

	t.Run("available override without window on a closed weekday stays closed", func(t *testing.T) {
		override := &model.DailyOverride{
			Date:      mustDate(t, "2026-09-12"),
			Available: true,
		}
		day := Resolve(tmpl, override, override.Date)
		assert.False(t, day.Open)
	})
}
