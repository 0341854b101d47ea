package model

import (
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	AppointmentStatusScheduled AppointmentStatus = "scheduled"
	AppointmentStatusConfirmed AppointmentStatus = "confirmed"
	AppointmentStatusCompleted AppointmentStatus = "completed"
	AppointmentStatusCancelled AppointmentStatus = "cancelled"
	AppointmentStatusNoShow    AppointmentStatus = "no_show"
)

// validTransitions is the closed status machine. cancelled, completed and
// no_show are terminal.
var validTransitions = map[AppointmentStatus][]AppointmentStatus{
	AppointmentStatusScheduled: {
		AppointmentStatusConfirmed,
		AppointmentStatusCancelled,
		AppointmentStatusNoShow,
	},
	AppointmentStatusConfirmed: {
		AppointmentStatusCompleted,
		AppointmentStatusCancelled,
		AppointmentStatusNoShow,
	},
}

func (s AppointmentStatus) CanTransitionTo(next AppointmentStatus) bool {
	for _, allowed := range validTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s AppointmentStatus) Terminal() bool {
	return len(validTransitions[s]) == 0
}

// Live statuses hold a slot; cancelled and other terminal states do not
// block re-booking of the same key.
func (s AppointmentStatus) Live() bool {
	return s == AppointmentStatusScheduled || s == AppointmentStatusConfirmed
}

func (s AppointmentStatus) Valid() bool {
	switch s {
	case AppointmentStatusScheduled, AppointmentStatusConfirmed,
		AppointmentStatusCompleted, AppointmentStatusCancelled,
		AppointmentStatusNoShow:
		return true
	}
	return false
}

type AppointmentType string

const (
	AppointmentTypeConsultation AppointmentType = "consultation"
	AppointmentTypeFollowUp     AppointmentType = "follow_up"
)

type Appointment struct {
	ID              uuid.UUID         `db:"id" json:"id"`
	PatientID       uuid.UUID         `db:"patient_id" json:"patient_id"`
	DoctorID        uuid.UUID         `db:"doctor_id" json:"doctor_id"`
	Date            Date              `db:"appointment_date" json:"date"`
	Time            TimeOfDay         `db:"appointment_time" json:"time"`
	DurationMinutes int               `db:"duration_minutes" json:"duration_minutes"`
	Type            AppointmentType   `db:"appointment_type" json:"type"`
	Notes           string            `db:"notes" json:"notes,omitempty"`
	Status          AppointmentStatus `db:"status" json:"status"`
	CancelReason    *string           `db:"cancel_reason" json:"cancel_reason,omitempty"`
	CreatedAt       time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time         `db:"updated_at" json:"updated_at"`
}

func (a *Appointment) SlotKey() SlotKey {
	return SlotKey{DoctorID: a.DoctorID, Date: a.Date, Time: a.Time}
}

// StartsBefore reports whether the appointment's start precedes the instant.
func (a *Appointment) StartsBefore(t time.Time) bool {
	return a.Date.At(a.Time).Before(t)
}

type CreateAppointmentRequest struct {
	DoctorID uuid.UUID       `json:"doctor_id" binding:"required"`
	Date     Date            `json:"date" binding:"required"`
	Time     TimeOfDay       `json:"time" binding:"required"`
	Type     AppointmentType `json:"type" binding:"required,oneof=consultation follow_up"`
	Notes    string          `json:"notes" binding:"max=1000"`
}

type RescheduleAppointmentRequest struct {
	Date Date      `json:"date" binding:"required"`
	Time TimeOfDay `json:"time" binding:"required"`
}

type UpdateAppointmentStatusRequest struct {
	Status AppointmentStatus `json:"status" binding:"required"`
}

type CancelAppointmentRequest struct {
	Reason string `json:"reason" binding:"max=500"`
}

type AppointmentFilters struct {
	DoctorID  uuid.UUID
	PatientID uuid.UUID
	Status    AppointmentStatus
	From      Date
	To        Date
}
