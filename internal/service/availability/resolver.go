package availability

import (
	"github.com/jwalitptl/telehealth-api/internal/model"
)

// Resolve layers a date's daily override (if any) on top of the weekly
// template and returns the effective availability for that date.
//
// Precedence:
//   - override marked unavailable closes the day outright
//   - an available override uses its own window when set, otherwise it
//     inherits the template window; its block times become exclusions
//   - with no override the template window decides alone
//
// Bookings are invisible here. The resolver describes what the doctor
// scheduled, not what is left to book.
func Resolve(tmpl *model.WeeklyTemplate, override *model.DailyOverride, date model.Date) model.EffectiveDay {
	var templateWindow *model.DayWindow
	if tmpl != nil {
		if w, ok := tmpl.Window(date); ok && w.Available {
			templateWindow = &w
		}
	}

	if override == nil {
		if templateWindow == nil {
			return model.EffectiveDay{}
		}
		return model.EffectiveDay{
			Open:  true,
			Start: templateWindow.Start,
			End:   templateWindow.End,
		}
	}

	if !override.Available {
		return model.EffectiveDay{}
	}

	var start, end model.TimeOfDay
	switch {
	case override.Start != nil && override.End != nil:
		start, end = *override.Start, *override.End
	case templateWindow != nil:
		start, end = templateWindow.Start, templateWindow.End
	default:
		// Available override without a window on a day the template never
		// opens: nothing to derive a window from.
		return model.EffectiveDay{}
	}

	return model.EffectiveDay{
		Open:       true,
		Start:      start,
		End:        end,
		Exclusions: override.BlockTimes,
	}
}
