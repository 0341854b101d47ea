package availability

import (
	"github.com/jwalitptl/telehealth-api/internal/model"
)

// TimeGrid enumerates slot start times inside a window: fixed steps of
// durationMinutes from start, keeping only slots that end on or before the
// window end and do not intersect an exclusion.
func TimeGrid(start, end model.TimeOfDay, durationMinutes int, exclusions []model.BlockTimeSlot) []model.TimeOfDay {
	if durationMinutes <= 0 || start >= end {
		return nil
	}

	times := make([]model.TimeOfDay, 0)
	for at := start; at.Add(durationMinutes) <= end; at = at.Add(durationMinutes) {
		if excluded(at, at.Add(durationMinutes), exclusions) {
			continue
		}
		times = append(times, at)
	}
	return times
}

func excluded(start, end model.TimeOfDay, exclusions []model.BlockTimeSlot) bool {
	for _, block := range exclusions {
		if block.Overlaps(start, end) {
			return true
		}
	}
	return false
}
