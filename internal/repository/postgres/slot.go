package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/jwalitptl/telehealth-api/internal/model"
)

func timesToArray(times []model.TimeOfDay) pq.StringArray {
	arr := make(pq.StringArray, 0, len(times))
	for _, t := range times {
		arr = append(arr, t.String()+":00")
	}
	return arr
}

func (r *slotRepository) Get(ctx context.Context, key model.SlotKey) (*model.AppointmentSlot, error) {
	query := `
		SELECT doctor_id, slot_date, slot_time, duration_minutes,
		       scheduled_open, appointment_id, created_at, updated_at
		FROM appointment_slots
		WHERE doctor_id = $1 AND slot_date = $2 AND slot_time = $3
	`
	var slot model.AppointmentSlot
	err := r.db.GetContext(ctx, &slot, query, key.DoctorID, key.Date, key.Time)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get slot: %w", err)
	}
	return &slot, nil
}

func (r *slotRepository) ListByDate(ctx context.Context, doctorID uuid.UUID, date model.Date) ([]*model.AppointmentSlot, error) {
	query := `
		SELECT doctor_id, slot_date, slot_time, duration_minutes,
		       scheduled_open, appointment_id, created_at, updated_at
		FROM appointment_slots
		WHERE doctor_id = $1 AND slot_date = $2
		ORDER BY slot_time ASC
	`
	var slots []*model.AppointmentSlot
	err := r.db.SelectContext(ctx, &slots, query, doctorID, date)
	if err != nil {
		return nil, fmt.Errorf("failed to list slots for date: %w", err)
	}
	return slots, nil
}

func (r *slotRepository) ListAvailable(ctx context.Context, doctorID uuid.UUID, from, to model.Date) ([]*model.AppointmentSlot, error) {
	query := `
		SELECT doctor_id, slot_date, slot_time, duration_minutes,
		       scheduled_open, appointment_id, created_at, updated_at
		FROM appointment_slots
		WHERE doctor_id = $1
		AND slot_date BETWEEN $2 AND $3
		AND scheduled_open = true
		AND appointment_id IS NULL
		ORDER BY slot_date ASC, slot_time ASC
	`
	var slots []*model.AppointmentSlot
	err := r.db.SelectContext(ctx, &slots, query, doctorID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list available slots: %w", err)
	}
	return slots, nil
}

// UpsertOpen relies on the unique key for idempotence: regenerating the same
// date twice updates rows in place instead of appending. Booking fields are
// never touched here.
func (r *slotRepository) UpsertOpen(ctx context.Context, slots []*model.AppointmentSlot) error {
	query := `
		INSERT INTO appointment_slots (
			doctor_id, slot_date, slot_time, duration_minutes,
			scheduled_open, created_at, updated_at
		) VALUES ($1, $2, $3, $4, true, $5, $5)
		ON CONFLICT (doctor_id, slot_date, slot_time) DO UPDATE
		SET scheduled_open = true,
		    duration_minutes = EXCLUDED.duration_minutes,
		    updated_at = EXCLUDED.updated_at
	`
	now := time.Now()
	for _, slot := range slots {
		_, err := r.db.ExecContext(ctx, query,
			slot.DoctorID,
			slot.Date,
			slot.Time,
			slot.DurationMinutes,
			now,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert slot %s: %w", slot.Key(), err)
		}
	}
	return nil
}

func (r *slotRepository) DeleteUnbookedExcept(ctx context.Context, doctorID uuid.UUID, date model.Date, keep []model.TimeOfDay) (int64, error) {
	query := `
		DELETE FROM appointment_slots
		WHERE doctor_id = $1
		AND slot_date = $2
		AND appointment_id IS NULL
		AND slot_time <> ALL($3::time[])
	`
	result, err := r.db.ExecContext(ctx, query, doctorID, date, timesToArray(keep))
	if err != nil {
		return 0, fmt.Errorf("failed to delete uncovered slots: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows, nil
}

func (r *slotRepository) CloseBookedExcept(ctx context.Context, doctorID uuid.UUID, date model.Date, keep []model.TimeOfDay) ([]*model.AppointmentSlot, error) {
	query := `
		UPDATE appointment_slots
		SET scheduled_open = false, updated_at = $4
		WHERE doctor_id = $1
		AND slot_date = $2
		AND appointment_id IS NOT NULL
		AND scheduled_open = true
		AND slot_time <> ALL($3::time[])
		RETURNING doctor_id, slot_date, slot_time, duration_minutes,
		          scheduled_open, appointment_id, created_at, updated_at
	`
	var closed []*model.AppointmentSlot
	err := r.db.SelectContext(ctx, &closed, query, doctorID, date, timesToArray(keep), time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to close booked slots: %w", err)
	}
	return closed, nil
}

func (r *slotRepository) DeleteUnbookedFrom(ctx context.Context, doctorID uuid.UUID, from model.Date) (int64, error) {
	query := `
		DELETE FROM appointment_slots
		WHERE doctor_id = $1
		AND slot_date >= $2
		AND appointment_id IS NULL
	`
	result, err := r.db.ExecContext(ctx, query, doctorID, from)
	if err != nil {
		return 0, fmt.Errorf("failed to delete slots: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows, nil
}

// Claim is the linearization point for booking: one conditional update,
// exactly one concurrent caller can match the WHERE clause.
func (r *slotRepository) Claim(ctx context.Context, key model.SlotKey, appointmentID uuid.UUID) (bool, error) {
	query := `
		UPDATE appointment_slots
		SET appointment_id = $4, updated_at = $5
		WHERE doctor_id = $1
		AND slot_date = $2
		AND slot_time = $3
		AND scheduled_open = true
		AND appointment_id IS NULL
	`
	result, err := r.db.ExecContext(ctx, query, key.DoctorID, key.Date, key.Time, appointmentID, time.Now())
	if err != nil {
		return false, fmt.Errorf("failed to claim slot %s: %w", key, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}

func (r *slotRepository) ReleaseKey(ctx context.Context, key model.SlotKey, appointmentID uuid.UUID) (bool, error) {
	query := `
		UPDATE appointment_slots
		SET appointment_id = NULL, updated_at = $5
		WHERE doctor_id = $1
		AND slot_date = $2
		AND slot_time = $3
		AND appointment_id = $4
	`
	result, err := r.db.ExecContext(ctx, query, key.DoctorID, key.Date, key.Time, appointmentID, time.Now())
	if err != nil {
		return false, fmt.Errorf("failed to release slot %s: %w", key, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}

func (r *slotRepository) Release(ctx context.Context, appointmentID uuid.UUID) (bool, error) {
	query := `
		UPDATE appointment_slots
		SET appointment_id = NULL, updated_at = $2
		WHERE appointment_id = $1
	`
	result, err := r.db.ExecContext(ctx, query, appointmentID, time.Now())
	if err != nil {
		return false, fmt.Errorf("failed to release slot for appointment %s: %w", appointmentID, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}
