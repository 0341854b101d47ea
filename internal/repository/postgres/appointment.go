package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/telehealth-api/internal/model"
)

func (r *appointmentRepository) Create(ctx context.Context, appointment *model.Appointment) error {
	query := `
		INSERT INTO appointments (
			id, patient_id, doctor_id, appointment_date, appointment_time,
			duration_minutes, appointment_type, notes, status,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
	`
	if appointment.ID == uuid.Nil {
		appointment.ID = uuid.New()
	}
	now := time.Now()
	appointment.CreatedAt = now
	appointment.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, query,
		appointment.ID,
		appointment.PatientID,
		appointment.DoctorID,
		appointment.Date,
		appointment.Time,
		appointment.DurationMinutes,
		appointment.Type,
		appointment.Notes,
		appointment.Status,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to create appointment: %w", err)
	}
	return nil
}

func (r *appointmentRepository) Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	query := `
		SELECT id, patient_id, doctor_id, appointment_date, appointment_time,
		       duration_minutes, appointment_type, notes, status, cancel_reason,
		       created_at, updated_at
		FROM appointments
		WHERE id = $1
	`
	var appointment model.Appointment
	err := r.db.GetContext(ctx, &appointment, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get appointment: %w", err)
	}
	return &appointment, nil
}

func (r *appointmentRepository) Update(ctx context.Context, appointment *model.Appointment) error {
	query := `
		UPDATE appointments
		SET appointment_date = $2,
		    appointment_time = $3,
		    appointment_type = $4,
		    notes = $5,
		    status = $6,
		    cancel_reason = $7,
		    updated_at = $8
		WHERE id = $1
	`
	appointment.UpdatedAt = time.Now()

	result, err := r.db.ExecContext(ctx, query,
		appointment.ID,
		appointment.Date,
		appointment.Time,
		appointment.Type,
		appointment.Notes,
		appointment.Status,
		appointment.CancelReason,
		appointment.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update appointment: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (r *appointmentRepository) List(ctx context.Context, filters *model.AppointmentFilters) ([]*model.Appointment, error) {
	conditions := []string{"1=1"}
	args := []interface{}{}
	argCount := 1

	if filters.DoctorID != uuid.Nil {
		conditions = append(conditions, fmt.Sprintf("doctor_id = $%d", argCount))
		args = append(args, filters.DoctorID)
		argCount++
	}
	if filters.PatientID != uuid.Nil {
		conditions = append(conditions, fmt.Sprintf("patient_id = $%d", argCount))
		args = append(args, filters.PatientID)
		argCount++
	}
	if filters.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argCount))
		args = append(args, filters.Status)
		argCount++
	}
	if !filters.From.IsZero() {
		conditions = append(conditions, fmt.Sprintf("appointment_date >= $%d", argCount))
		args = append(args, filters.From)
		argCount++
	}
	if !filters.To.IsZero() {
		conditions = append(conditions, fmt.Sprintf("appointment_date <= $%d", argCount))
		args = append(args, filters.To)
		argCount++
	}

	query := fmt.Sprintf(`
		SELECT id, patient_id, doctor_id, appointment_date, appointment_time,
		       duration_minutes, appointment_type, notes, status, cancel_reason,
		       created_at, updated_at
		FROM appointments
		WHERE %s
		ORDER BY appointment_date ASC, appointment_time ASC
	`, strings.Join(conditions, " AND "))

	var appointments []*model.Appointment
	err := r.db.SelectContext(ctx, &appointments, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list appointments: %w", err)
	}
	return appointments, nil
}

func (r *appointmentRepository) ExistsLive(ctx context.Context, key model.SlotKey) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE doctor_id = $1
			AND appointment_date = $2
			AND appointment_time = $3
			AND status IN ('scheduled', 'confirmed')
		)
	`
	var exists bool
	err := r.db.GetContext(ctx, &exists, query, key.DoctorID, key.Date, key.Time)
	if err != nil {
		return false, fmt.Errorf("failed to check live appointment: %w", err)
	}
	return exists, nil
}

func (r *appointmentRepository) ListUpcoming(ctx context.Context, subjectID uuid.UUID, role string, from model.Date, limit int) ([]*model.Appointment, error) {
	column := "patient_id"
	if role == "doctor" {
		column = "doctor_id"
	}
	query := fmt.Sprintf(`
		SELECT id, patient_id, doctor_id, appointment_date, appointment_time,
		       duration_minutes, appointment_type, notes, status, cancel_reason,
		       created_at, updated_at
		FROM appointments
		WHERE %s = $1
		AND appointment_date >= $2
		AND status IN ('scheduled', 'confirmed')
		ORDER BY appointment_date ASC, appointment_time ASC
		LIMIT $3
	`, column)

	var appointments []*model.Appointment
	err := r.db.SelectContext(ctx, &appointments, query, subjectID, from, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list upcoming appointments: %w", err)
	}
	return appointments, nil
}

func (r *appointmentRepository) CountByStatus(ctx context.Context, doctorID uuid.UUID) (map[model.AppointmentStatus]int, error) {
	query := `
		SELECT status, COUNT(*) AS count
		FROM appointments
		WHERE doctor_id = $1
		GROUP BY status
	`
	rows, err := r.db.QueryxContext(ctx, query, doctorID)
	if err != nil {
		return nil, fmt.Errorf("failed to count appointments: %w", err)
	}
	defer rows.Close()

	counts := make(map[model.AppointmentStatus]int)
	for rows.Next() {
		var status model.AppointmentStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		counts[status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate status counts: %w", err)
	}
	return counts, nil
}
