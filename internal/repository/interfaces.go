package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/telehealth-api/internal/model"
)

// All repository interfaces in one file. Lookup methods return (nil, nil)
// when the row does not exist; callers decide whether absence is an error.
type (
	// ScheduleRepository stores weekly templates and daily overrides.
	ScheduleRepository interface {
		UpsertTemplate(ctx context.Context, tmpl *model.WeeklyTemplate) error
		GetTemplate(ctx context.Context, doctorID uuid.UUID) (*model.WeeklyTemplate, error)
		DeleteTemplate(ctx context.Context, doctorID uuid.UUID) (bool, error)

		UpsertOverride(ctx context.Context, override *model.DailyOverride) error
		GetOverride(ctx context.Context, doctorID uuid.UUID, date model.Date) (*model.DailyOverride, error)
		ListOverrides(ctx context.Context, doctorID uuid.UUID, from, to model.Date) ([]*model.DailyOverride, error)
		DeleteOverride(ctx context.Context, doctorID uuid.UUID, date model.Date) (bool, error)
	}

	// SlotRepository owns the slot table. The unique (doctor_id, slot_date,
	// slot_time) key makes upserts idempotent; Claim and Release are the
	// only writers of appointment_id.
	SlotRepository interface {
		Get(ctx context.Context, key model.SlotKey) (*model.AppointmentSlot, error)
		ListByDate(ctx context.Context, doctorID uuid.UUID, date model.Date) ([]*model.AppointmentSlot, error)
		ListAvailable(ctx context.Context, doctorID uuid.UUID, from, to model.Date) ([]*model.AppointmentSlot, error)

		// UpsertOpen writes the generated slot set for one date, reopening
		// rows that already exist without touching their booking fields.
		UpsertOpen(ctx context.Context, slots []*model.AppointmentSlot) error
		// DeleteUnbookedExcept removes unbooked slots on the date whose time
		// is not in keep. An empty keep removes all unbooked slots.
		DeleteUnbookedExcept(ctx context.Context, doctorID uuid.UUID, date model.Date, keep []model.TimeOfDay) (int64, error)
		// CloseBookedExcept flags booked-but-open slots that fell outside the
		// resolved availability and returns them for conflict follow-up.
		CloseBookedExcept(ctx context.Context, doctorID uuid.UUID, date model.Date, keep []model.TimeOfDay) ([]*model.AppointmentSlot, error)
		// DeleteUnbookedFrom clears unbooked slots for the doctor from a date
		// onward (template delete / full cleanup).
		DeleteUnbookedFrom(ctx context.Context, doctorID uuid.UUID, from model.Date) (int64, error)

		// Claim atomically books a bookable slot; false means conflict.
		Claim(ctx context.Context, key model.SlotKey, appointmentID uuid.UUID) (bool, error)
		// Release clears the booking held by the appointment; false means
		// nothing was held.
		Release(ctx context.Context, appointmentID uuid.UUID) (bool, error)
		// ReleaseKey clears one specific slot if the appointment holds it.
		// During a reschedule the appointment briefly holds two slots, and
		// only the old one must be freed.
		ReleaseKey(ctx context.Context, key model.SlotKey, appointmentID uuid.UUID) (bool, error)
	}

	AppointmentRepository interface {
		Create(ctx context.Context, appointment *model.Appointment) error
		Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error)
		Update(ctx context.Context, appointment *model.Appointment) error
		List(ctx context.Context, filters *model.AppointmentFilters) ([]*model.Appointment, error)
		// ExistsLive reports whether a scheduled or confirmed appointment
		// already references the slot key.
		ExistsLive(ctx context.Context, key model.SlotKey) (bool, error)
		ListUpcoming(ctx context.Context, subjectID uuid.UUID, role string, from model.Date, limit int) ([]*model.Appointment, error)
		CountByStatus(ctx context.Context, doctorID uuid.UUID) (map[model.AppointmentStatus]int, error)
	}

	OutboxRepository interface {
		Create(ctx context.Context, eventType string, payload interface{}) error
		GetPending(ctx context.Context, limit int) ([]*model.OutboxEvent, error)
		MarkProcessed(ctx context.Context, id uuid.UUID) error
		MarkFailed(ctx context.Context, id uuid.UUID, errMsg string, retryAt *time.Time) error
	}
)
