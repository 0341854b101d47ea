package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AppointmentSlot is the atomic bookable unit, uniquely identified by
// (doctor, date, time) — the table enforces that key.
//
// ScheduledOpen and AppointmentID are deliberately separate: generation owns
// the former, booking owns the latter, and neither may touch the other's
// field. A slot is bookable only when ScheduledOpen is true and no
// appointment holds it.
type AppointmentSlot struct {
	DoctorID        uuid.UUID  `db:"doctor_id" json:"doctor_id"`
	Date            Date       `db:"slot_date" json:"date"`
	Time            TimeOfDay  `db:"slot_time" json:"time"`
	DurationMinutes int        `db:"duration_minutes" json:"duration_minutes"`
	ScheduledOpen   bool       `db:"scheduled_open" json:"scheduled_open"`
	AppointmentID   *uuid.UUID `db:"appointment_id" json:"appointment_id,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}

func (s *AppointmentSlot) Bookable() bool {
	return s.ScheduledOpen && s.AppointmentID == nil
}

func (s *AppointmentSlot) Booked() bool {
	return s.AppointmentID != nil
}

func (s *AppointmentSlot) Key() SlotKey {
	return SlotKey{DoctorID: s.DoctorID, Date: s.Date, Time: s.Time}
}

// SlotKey identifies one slot.
type SlotKey struct {
	DoctorID uuid.UUID `json:"doctor_id"`
	Date     Date      `json:"date"`
	Time     TimeOfDay `json:"time"`
}

func (k SlotKey) String() string {
	return fmt.Sprintf("%s/%s/%s", k.DoctorID, k.Date, k.Time)
}
