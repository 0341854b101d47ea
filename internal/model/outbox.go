package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type OutboxStatus string

const (
	OutboxStatusPending   OutboxStatus = "PENDING"
	OutboxStatusProcessed OutboxStatus = "PROCESSED"
	OutboxStatusRetry     OutboxStatus = "RETRY"
	OutboxStatusFailed    OutboxStatus = "FAILED"
)

// Outbox event types emitted by the scheduling core.
const (
	EventAppointmentCreated   = "appointment.created"
	EventAppointmentCancelled = "appointment.cancelled"
	EventScheduleConflict     = "schedule.conflict"
)

type OutboxEvent struct {
	ID           uuid.UUID       `db:"id" json:"id"`
	EventType    string          `db:"event_type" json:"event_type"`
	Payload      json.RawMessage `db:"payload" json:"payload"`
	Status       OutboxStatus    `db:"status" json:"status"`
	ErrorMessage *string         `db:"error_message" json:"error_message,omitempty"`
	RetryCount   int             `db:"retry_count" json:"retry_count"`
	RetryAt      *time.Time      `db:"retry_at" json:"retry_at,omitempty"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	ProcessedAt  *time.Time      `db:"processed_at" json:"processed_at,omitempty"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`
}

// AppointmentEventPayload is the body of appointment.created/cancelled events.
type AppointmentEventPayload struct {
	AppointmentID uuid.UUID       `json:"appointment_id"`
	PatientID     uuid.UUID       `json:"patient_id"`
	DoctorID      uuid.UUID       `json:"doctor_id"`
	Date          Date            `json:"date"`
	Time          TimeOfDay       `json:"time"`
	Type          AppointmentType `json:"type"`
}

// ScheduleConflictPayload flags a booked slot that regeneration determined is
// no longer covered by the doctor's availability. Resolution is manual.
type ScheduleConflictPayload struct {
	DoctorID      uuid.UUID `json:"doctor_id"`
	Date          Date      `json:"date"`
	Time          TimeOfDay `json:"time"`
	AppointmentID uuid.UUID `json:"appointment_id"`
}
