package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Weekday string

const (
	Monday    Weekday = "monday"
	Tuesday   Weekday = "tuesday"
	Wednesday Weekday = "wednesday"
	Thursday  Weekday = "thursday"
	Friday    Weekday = "friday"
	Saturday  Weekday = "saturday"
	Sunday    Weekday = "sunday"
)

var weekdayNames = map[time.Weekday]Weekday{
	time.Monday:    Monday,
	time.Tuesday:   Tuesday,
	time.Wednesday: Wednesday,
	time.Thursday:  Thursday,
	time.Friday:    Friday,
	time.Saturday:  Saturday,
	time.Sunday:    Sunday,
}

func WeekdayOf(d time.Weekday) Weekday {
	return weekdayNames[d]
}

type BlockTimeReason string

const (
	BlockReasonLunch     BlockTimeReason = "lunch"
	BlockReasonSurgery   BlockTimeReason = "surgery"
	BlockReasonPersonal  BlockTimeReason = "personal"
	BlockReasonMeeting   BlockTimeReason = "meeting"
	BlockReasonEmergency BlockTimeReason = "emergency"
	BlockReasonBreak     BlockTimeReason = "break"
	BlockReasonTraining  BlockTimeReason = "training"
	BlockReasonOther     BlockTimeReason = "other"
)

// BlockTimeReasons is the closed catalog exposed by the API.
func BlockTimeReasons() []BlockTimeReason {
	return []BlockTimeReason{
		BlockReasonLunch, BlockReasonSurgery, BlockReasonPersonal,
		BlockReasonMeeting, BlockReasonEmergency, BlockReasonBreak,
		BlockReasonTraining, BlockReasonOther,
	}
}

func (r BlockTimeReason) Valid() bool {
	switch r {
	case BlockReasonLunch, BlockReasonSurgery, BlockReasonPersonal,
		BlockReasonMeeting, BlockReasonEmergency, BlockReasonBreak,
		BlockReasonTraining, BlockReasonOther:
		return true
	}
	return false
}

// DayWindow is one weekday's open interval in a weekly template.
type DayWindow struct {
	Start     TimeOfDay `json:"start"`
	End       TimeOfDay `json:"end"`
	Available bool      `json:"available"`
}

func (w DayWindow) Validate() error {
	if !w.Available {
		return nil
	}
	if !w.Start.Valid() || !w.End.Valid() {
		return fmt.Errorf("window bounds out of range")
	}
	if w.Start >= w.End {
		return fmt.Errorf("window start %s must be before end %s", w.Start, w.End)
	}
	return nil
}

// DayWindows maps weekday name to its window; stored as JSONB.
type DayWindows map[Weekday]DayWindow

func (d DayWindows) Value() (driver.Value, error) {
	return json.Marshal(d)
}

func (d *DayWindows) Scan(src interface{}) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, d)
	case string:
		return json.Unmarshal([]byte(v), d)
	default:
		return fmt.Errorf("cannot scan %T into DayWindows", src)
	}
}

// WeeklyTemplate is a doctor's recurring availability. One per doctor;
// replacing it regenerates all future slots.
type WeeklyTemplate struct {
	DoctorID            uuid.UUID  `db:"doctor_id" json:"doctor_id"`
	Days                DayWindows `db:"days" json:"days"`
	SlotDurationMinutes int        `db:"slot_duration_minutes" json:"slot_duration_minutes"`
	CreatedAt           time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time  `db:"updated_at" json:"updated_at"`
}

func (t *WeeklyTemplate) Validate() error {
	if t.SlotDurationMinutes <= 0 {
		return fmt.Errorf("slot duration must be positive")
	}
	for day, window := range t.Days {
		if err := window.Validate(); err != nil {
			return fmt.Errorf("%s: %w", day, err)
		}
	}
	return nil
}

// Window returns the template entry governing the given date.
func (t *WeeklyTemplate) Window(date Date) (DayWindow, bool) {
	w, ok := t.Days[WeekdayOf(date.Weekday())]
	return w, ok
}

// BlockTimeSlot is an exclusion window carved out of an otherwise open day.
type BlockTimeSlot struct {
	Start       TimeOfDay       `json:"start"`
	End         TimeOfDay       `json:"end"`
	Reason      BlockTimeReason `json:"reason"`
	Description string          `json:"description,omitempty"`
}

func (b BlockTimeSlot) Validate() error {
	if b.Start >= b.End {
		return fmt.Errorf("block time start %s must be before end %s", b.Start, b.End)
	}
	if !b.Reason.Valid() {
		return fmt.Errorf("unknown block time reason %q", b.Reason)
	}
	return nil
}

// Overlaps reports whether [start, end) intersects the block window.
func (b BlockTimeSlot) Overlaps(start, end TimeOfDay) bool {
	return start < b.End && end > b.Start
}

// BlockTimeSlots is stored as JSONB on the override row.
type BlockTimeSlots []BlockTimeSlot

func (b BlockTimeSlots) Value() (driver.Value, error) {
	if b == nil {
		return json.Marshal([]BlockTimeSlot{})
	}
	return json.Marshal(b)
}

func (b *BlockTimeSlots) Scan(src interface{}) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, b)
	case string:
		return json.Unmarshal([]byte(v), b)
	default:
		return fmt.Errorf("cannot scan %T into BlockTimeSlots", src)
	}
}

// DailyOverride replaces the weekly template for one calendar date.
// At most one exists per (doctor, date).
type DailyOverride struct {
	ID         uuid.UUID      `db:"id" json:"id"`
	DoctorID   uuid.UUID      `db:"doctor_id" json:"doctor_id"`
	Date       Date           `db:"override_date" json:"date"`
	Available  bool           `db:"is_available" json:"available"`
	Start      *TimeOfDay     `db:"start_time" json:"start,omitempty"`
	End        *TimeOfDay     `db:"end_time" json:"end,omitempty"`
	BlockTimes BlockTimeSlots `db:"block_times" json:"block_times"`
	Reason     string         `db:"reason" json:"reason,omitempty"`
	CreatedAt  time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time      `db:"updated_at" json:"updated_at"`
}

func (o *DailyOverride) Validate() error {
	if o.Date.IsZero() {
		return fmt.Errorf("override date is required")
	}
	if o.Start != nil && o.End != nil && *o.Start >= *o.End {
		return fmt.Errorf("override start %s must be before end %s", *o.Start, *o.End)
	}
	if (o.Start == nil) != (o.End == nil) {
		return fmt.Errorf("override start and end must be set together")
	}
	for _, block := range o.BlockTimes {
		if err := block.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// SetTemplateRequest is the payload for replacing a doctor's weekly template.
type SetTemplateRequest struct {
	Days                map[Weekday]DayWindow `json:"days" binding:"required"`
	SlotDurationMinutes int                   `json:"slot_duration_minutes" binding:"required,gt=0"`
}

// CreateOverrideRequest creates or replaces the override for one date.
type CreateOverrideRequest struct {
	Date       Date            `json:"date" binding:"required"`
	Available  bool            `json:"available"`
	Start      *TimeOfDay      `json:"start"`
	End        *TimeOfDay      `json:"end"`
	BlockTimes []BlockTimeSlot `json:"block_times"`
	Reason     string          `json:"reason" binding:"max=500"`
}

// AddBlockTimeRequest appends an exclusion window to a date.
type AddBlockTimeRequest struct {
	Date        Date            `json:"date" binding:"required"`
	Start       TimeOfDay       `json:"start" binding:"required"`
	End         TimeOfDay       `json:"end" binding:"required"`
	Reason      BlockTimeReason `json:"reason" binding:"required,blockreason"`
	Description string          `json:"description" binding:"max=500"`
}

// DayView aggregates everything governing one doctor-date: template entry,
// override, existing slots, and the resolved effective availability.
type DayView struct {
	DoctorID     uuid.UUID          `json:"doctor_id"`
	Date         Date               `json:"date"`
	Weekday      Weekday            `json:"weekday"`
	Template     *WeeklyTemplate    `json:"template,omitempty"`
	Override     *DailyOverride     `json:"override,omitempty"`
	Slots        []*AppointmentSlot `json:"slots"`
	EffectiveDay EffectiveDay       `json:"effective"`
}

// EffectiveDay is the resolver output for a single date.
type EffectiveDay struct {
	Open       bool            `json:"open"`
	Start      TimeOfDay       `json:"start,omitempty"`
	End        TimeOfDay       `json:"end,omitempty"`
	Exclusions []BlockTimeSlot `json:"exclusions,omitempty"`
}
